package repository

import (
	"errors"
	"fmt"

	"github.com/okian/noderank/internal/domain/errkind"
)

// Sentinel kinds for record store errors. ErrNotFound carries errkind.ErrNotFound.
var (
	ErrNotFound      = fmt.Errorf("model record: %w", errkind.ErrNotFound)
	ErrDuplicate     = errors.New("model record already exists")
	ErrInvalidRecord = errors.New("invalid model record")
	ErrUnknownDriver = errors.New("unknown database driver")
)

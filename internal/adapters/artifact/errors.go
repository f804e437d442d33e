package artifact

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	ErrNotFound   = fmt.Errorf("artifact not found: %w", fs.ErrNotExist)
	ErrInvalidID  = errors.New("invalid artifact id")
	ErrWriterFail = errors.New("artifact writer failed")
)

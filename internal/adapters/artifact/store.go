// Package artifact persists serialized predictors on a filesystem, one
// directory per model id under a configured root.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const defaultFileName = "model.json"

// Store reads and writes artifacts under root/<id>/. Writes are atomic: the
// payload goes to a temp file in the same directory and is renamed into place.
type Store struct {
	fs       afero.Fs
	root     string
	fileName string
}

// NewStore returns a Store rooted at root on the OS filesystem unless WithFs is given.
func NewStore(root string, opts ...Option) *Store {
	s := &Store{
		fs:       afero.NewOsFs(),
		root:     path.Clean(root),
		fileName: defaultFileName,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the directory that holds the artifact for id.
func (s *Store) Location(id string) string {
	return path.Join(s.root, id)
}

func (s *Store) file(id string) string {
	return path.Join(s.Location(id), s.fileName)
}

func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Save writes the bytes produced by write as the artifact for id and returns
// the number of bytes stored. An existing artifact is replaced only after the
// new one is fully written.
func (s *Store) Save(ctx context.Context, id string, write func(io.Writer) error) (int64, error) {
	if err := checkID(id); err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrWriterFail, err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	dir := s.Location(id)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := afero.TempFile(s.fs, dir, "."+s.fileName+"-*")
	if err != nil {
		return 0, fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	n, err := io.Copy(tmp, &buf)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = s.fs.Remove(tmpName)
		return 0, fmt.Errorf("write temp artifact: %w", err)
	}
	if err := s.fs.Rename(tmpName, s.file(id)); err != nil {
		_ = s.fs.Remove(tmpName)
		return 0, fmt.Errorf("commit artifact: %w", err)
	}
	return n, nil
}

// Open returns a reader over the artifact for id and its size.
func (s *Store) Open(_ context.Context, id string) (io.ReadCloser, int64, error) {
	if err := checkID(id); err != nil {
		return nil, 0, err
	}
	f, err := s.fs.Open(s.file(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, 0, fmt.Errorf("open artifact: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat artifact: %w", err)
	}
	return f, info.Size(), nil
}

// Remove deletes the directory for id. Removing a missing artifact succeeds.
func (s *Store) Remove(_ context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := s.fs.RemoveAll(s.Location(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

// Orphans lists directory names under root that look like model ids but are
// not in known. Used at startup to report leftovers from interrupted creates.
func (s *Store) Orphans(known map[string]struct{}) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := uuid.Parse(e.Name()); err != nil {
			continue
		}
		if _, ok := known[e.Name()]; !ok {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

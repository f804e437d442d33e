package artifact

import "github.com/spf13/afero"

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithFs replaces the backing filesystem. Tests use afero.NewMemMapFs.
func WithFs(fs afero.Fs) Option {
	return func(s *Store) {
		if fs != nil {
			s.fs = fs
		}
	}
}

// WithFileName sets the artifact file name inside each model directory.
func WithFileName(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.fileName = name
		}
	}
}

package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/spf13/afero"
)

// Local stores objects on an afero filesystem.
type Local struct {
	fs      afero.Fs
	baseURL string
}

var _ Store = (*Local)(nil)

// NewLocal creates a filesystem-backed store.
func NewLocal(fs afero.Fs, baseURL string) *Local {
	return &Local{fs: fs, baseURL: baseURL}
}

// Upload writes the object, creating parent directories.
func (l *Local) Upload(ctx context.Context, objectPath string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := Clean(objectPath)
	if err != nil {
		return "", err
	}
	if err := l.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create directory for %s: %w", p, err)
	}
	if err := afero.WriteFile(l.fs, p, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", p, err)
	}
	return p, nil
}

// Open opens the object for reading.
func (l *Local) Open(_ context.Context, objectPath string) (io.ReadCloser, error) {
	p, err := Clean(objectPath)
	if err != nil {
		return nil, err
	}
	f, err := l.fs.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// PublicURL returns the URL of the object.
func (l *Local) PublicURL(objectPath string) string {
	return publicURL(l.baseURL, objectPath)
}

// Remove deletes the objects.
func (l *Local) Remove(ctx context.Context, objectPaths ...string) error {
	var errs []error
	for _, objectPath := range objectPaths {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := Clean(objectPath)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := l.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

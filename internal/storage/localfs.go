package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/containerd/errdefs"
)

// LocalFS stores objects under a root directory that is also served statically at URLPrefix.
type LocalFS struct {
	root      string
	urlPrefix string
}

// NewLocalFS creates the root directory if needed.
func NewLocalFS(root, urlPrefix string) (*LocalFS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("%w: storage root is required", errdefs.ErrInvalidArgument)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	prefix := "/" + strings.Trim(strings.TrimSpace(urlPrefix), "/")
	return &LocalFS{root: root, urlPrefix: prefix}, nil
}

// Root returns the directory objects are written to.
func (l *LocalFS) Root() string {
	return l.root
}

// URLPrefix returns the path the root is served under.
func (l *LocalFS) URLPrefix() string {
	return l.urlPrefix
}

func (l *LocalFS) Put(_ context.Context, key string, reader io.Reader) error {
	target, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("create object: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, reader); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("commit object: %w", err)
	}
	return nil
}

func (l *LocalFS) Open(_ context.Context, key string) (io.ReadCloser, error) {
	target, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: object %s", errdefs.ErrNotFound, key)
		}
		return nil, err
	}
	return f, nil
}

func (l *LocalFS) Stat(_ context.Context, key string) (int64, error) {
	target, err := l.resolve(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: object %s", errdefs.ErrNotFound, key)
		}
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%w: object %s", errdefs.ErrNotFound, key)
	}
	return info.Size(), nil
}

func (l *LocalFS) AccessPath(key string) string {
	return path.Join(l.urlPrefix, path.Clean("/"+key))
}

// resolve maps key to a path inside root, rejecting traversal.
func (l *LocalFS) resolve(key string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(key))
	if clean == "/" {
		return "", fmt.Errorf("%w: storage key is required", errdefs.ErrInvalidArgument)
	}
	return filepath.Join(l.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

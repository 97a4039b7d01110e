// Package storage keeps uploaded attachments behind a small object interface.
package storage

import (
	"context"
	"io"
)

// Provider stores attachment bytes by key. Missing keys yield errdefs.ErrNotFound.
type Provider interface {
	Put(ctx context.Context, key string, reader io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Stat returns the stored size of key.
	Stat(ctx context.Context, key string) (int64, error)
	// AccessPath returns the link clients use to fetch key, e.g. "/uploads/voices/ab/abcd.ogg".
	AccessPath(key string) string
}

var _ Provider = (*LocalFS)(nil)

package federation

import (
	"context"
	"errors"
	"io"
)

var (
	ErrFileNotFound  = errors.New("file not found")
	ErrInvalidConfig = errors.New("invalid backend configuration")
)

// Backend stores attachment blobs. Keys are attachment file identifiers.
type Backend interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

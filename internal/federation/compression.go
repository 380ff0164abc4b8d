package federation

import (
	"context"
	"io"

	"github.com/klauspost/compress/zstd"
)

// ZstdBackend wraps a Backend, compressing blobs on the way in and
// decompressing on the way out.
type ZstdBackend struct {
	backend Backend
}

func NewZstdBackend(backend Backend) *ZstdBackend {
	return &ZstdBackend{backend: backend}
}

func (c *ZstdBackend) Put(ctx context.Context, key string, r io.Reader) error {
	pr, pw := io.Pipe()
	go func() {
		enc, err := zstd.NewWriter(pw)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(enc, r); err != nil {
			enc.Close()
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(enc.Close())
	}()
	return c.backend.Put(ctx, key, pr)
}

func (c *ZstdBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := c.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return &zstdReadCloser{dec: dec, underlying: rc}, nil
}

func (c *ZstdBackend) Delete(ctx context.Context, key string) error {
	return c.backend.Delete(ctx, key)
}

func (c *ZstdBackend) Exists(ctx context.Context, key string) (bool, error) {
	return c.backend.Exists(ctx, key)
}

type zstdReadCloser struct {
	dec        *zstd.Decoder
	underlying io.Closer
}

func (z *zstdReadCloser) Read(p []byte) (int, error) {
	return z.dec.Read(p)
}

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return z.underlying.Close()
}

package blob

import (
	"context"
	"io"
)

// Store is durable object storage: write a stream of bytes under a key,
// get back a retrievable URL. Writing the same key twice overwrites, which
// makes retried uploads safe.
type Store interface {
	PutStream(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
}

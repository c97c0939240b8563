package model

import (
	"context"
	"io"
)

// Archive is the off-ledger store for raw consent and record payloads, keyed
// by their data hash. Anchoring works without one; a configured archive keeps
// the full documents retrievable after the in-memory state is gone.
type Archive interface {
	Upload(ctx context.Context, key string, reader io.Reader) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

package blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/lease-intake/internal/common"
)

// Store is a flat key/value area for durable records (drafts, finals).
// Missing keys yield an error wrapping common.ErrNotFound.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

func checkKey(key string) error {
	if key == "" || key == "." || key == ".." ||
		strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0) {
		return fmt.Errorf("%w: bad object key %q", common.ErrInvalidInput, key)
	}
	return nil
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", common.ErrNotFound, key)
}

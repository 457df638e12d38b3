package signing

import (
	"context"

	"github.com/timmy/memetag/internal/storage"
)

// StoreResolver resolves identities against the asset stores.
type StoreResolver struct {
	Stores *storage.Stores
}

// Resolve reports whether the identity names an existing asset.
func (r StoreResolver) Resolve(ctx context.Context, identity string) (bool, error) {
	kind, key, ok := SplitIdentity(identity)
	if !ok {
		return false, nil
	}
	store, ok := r.Stores.ForKind(kind)
	if !ok {
		return false, nil
	}
	return store.Exists(ctx, key)
}

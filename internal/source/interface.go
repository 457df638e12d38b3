// Package source enumerates images to import from outside the asset store.
package source

import "context"

// Item is one importable image.
type Item struct {
	SourceID  string // unique within the source
	LocalPath string
	Format    string // jpg, png, gif, webp
	// Caption is free text derived from the item's location, fed to the
	// tagger the same way a chat caption is.
	Caption string
}

// Source defines the interface for import sources.
type Source interface {
	// Name returns a human-readable name for this source.
	Name() string

	// FetchBatch fetches a batch of items starting from the given cursor.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - cursor: pagination cursor or empty for first page.
	//   - limit: maximum number of items to fetch.
	// Returns:
	//   - items: batch of items.
	//   - nextCursor: cursor for the next batch or empty if done.
	//   - err: non-nil if fetching fails.
	FetchBatch(ctx context.Context, cursor string, limit int) (items []Item, nextCursor string, err error)
}

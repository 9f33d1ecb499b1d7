// Package recent tracks the products a browser session viewed last. The
// list is per-scope, capped, most recent first, and is purged when the
// session leaves the authenticated state.
package recent

import "context"

// DefaultLimit caps how many product IDs a scope retains.
const DefaultLimit = 10

// Store is a per-scope recently-viewed list. Recording a product the scope
// already viewed moves it to the front instead of duplicating it.
type Store interface {
	Record(ctx context.Context, scope, productID string) error
	List(ctx context.Context, scope string) ([]string, error)
	PurgeScope(ctx context.Context, scope string) error
}

// Package dedup prevents re-billing and re-persisting near-identical content.
// Matching is exact title within a rolling window; fuzzy matching is a known
// product gap, not something to bolt on here.
package dedup

import (
	"context"
	"strings"
	"time"
)

// Store is the claim lookup the guard needs.
type Store interface {
	FindActiveTitle(ctx context.Context, clientID, contentType, title string) (string, bool, error)
}

// Guard answers "has this client already produced this exact title recently".
// It is consulted twice per job: before generation (to avoid wasted provider
// spend) and again at artifact write time (to close the race between
// concurrent jobs; see store.CreateArtifact).
type Guard struct {
	store  Store
	window time.Duration
}

func New(st Store, window time.Duration) *Guard {
	if window == 0 {
		window = 24 * time.Hour
	}
	return &Guard{store: st, window: window}
}

// Check returns the existing artifact ID when an unexpired claim matches the
// triple exactly.
func (g *Guard) Check(ctx context.Context, clientID, contentType, title string) (string, bool, error) {
	return g.store.FindActiveTitle(ctx, clientID, contentType, Normalize(title))
}

// Window is the rolling span claims stay live for.
func (g *Guard) Window() time.Duration {
	return g.window
}

// Normalize trims surrounding whitespace so cosmetic padding does not defeat
// the exact match. No other transformation is applied.
func Normalize(title string) string {
	return strings.TrimSpace(title)
}

package transport

import (
	"sync"

	"golang.org/x/oauth2"
)

// tokenCache caches tokens from an underlying source and supports an
// explicit refresh that bypasses the cache. oauth2.ReuseTokenSource cannot
// be forced to refetch, which the one-retry auth policy needs.
type tokenCache struct {
	mu     sync.Mutex
	src    oauth2.TokenSource
	cached *oauth2.Token
}

func newTokenCache(src oauth2.TokenSource) *tokenCache {
	return &tokenCache{src: src}
}

// Token returns the cached token when still valid, fetching otherwise.
func (t *tokenCache) Token() (*oauth2.Token, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cached.Valid() {
		return t.cached, nil
	}
	return t.fetchLocked()
}

// Refresh drops the cache and fetches a fresh token.
func (t *tokenCache) Refresh() (*oauth2.Token, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cached = nil
	return t.fetchLocked()
}

func (t *tokenCache) fetchLocked() (*oauth2.Token, error) {
	tok, err := t.src.Token()
	if err != nil {
		return nil, err
	}
	t.cached = tok
	return tok, nil
}

var _ oauth2.TokenSource = (*tokenCache)(nil)

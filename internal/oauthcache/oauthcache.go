// Package oauthcache caches OAuth2 client-credentials tokens shared by the
// mcp and http transports, keyed by (token_url, client_id, scope) so two
// call templates pointed at the same authorization server reuse one grant
// (§4.7, §9).
package oauthcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/viant/utcp/types"
)

type key struct {
	tokenURL string
	clientID string
	scope    string
}

type entry struct {
	accessToken string
	expiresAt   time.Time
}

// refreshSkew is how much validity must remain on a cached token before it
// is reused rather than refreshed.
const refreshSkew = 30 * time.Second

// Cache is a concurrency-safe OAuth2 client-credentials token cache.
type Cache struct {
	mu      sync.Mutex
	entries map[key]entry
	group   singleflight.Group
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: map[key]entry{}}
}

// Token returns a bearer token for auth, fetching or refreshing via the
// client-credentials grant as needed. auth must be of type oauth2; any other
// type (or nil) returns an empty token with no error. Concurrent callers for
// the same (token_url, client_id, scope) key share a single in-flight fetch
// via singleflight, so an uncached key is only ever fetched once (§8).
func (c *Cache) Token(ctx context.Context, auth *types.Auth) (string, error) {
	if auth == nil || auth.Type != types.AuthOAuth2 {
		return "", nil
	}

	k := key{tokenURL: auth.TokenURL, clientID: auth.ClientID, scope: auth.Scope}

	if tok, ok := c.lookup(k); ok {
		return tok, nil
	}

	sfKey := fmt.Sprintf("%s|%s|%s", k.tokenURL, k.clientID, k.scope)
	v, err, _ := c.group.Do(sfKey, func() (interface{}, error) {
		// Recheck inside singleflight: a sibling call may have already
		// populated the cache while this goroutine waited for its turn.
		if tok, ok := c.lookup(k); ok {
			return tok, nil
		}

		cfg := clientcredentials.Config{
			ClientID:     auth.ClientID,
			ClientSecret: auth.ClientSecret,
			TokenURL:     auth.TokenURL,
		}
		if auth.Scope != "" {
			cfg.Scopes = []string{auth.Scope}
		}

		token, err := cfg.Token(ctx)
		if err != nil {
			return "", &types.AuthError{Stage: "oauth2_client_credentials", Cause: fmt.Errorf("fetch token from %s: %w", auth.TokenURL, err)}
		}

		expiresAt := token.Expiry
		if expiresAt.IsZero() {
			expiresAt = time.Now().Add(time.Hour)
		}

		c.mu.Lock()
		c.entries[k] = entry{accessToken: token.AccessToken, expiresAt: expiresAt}
		c.mu.Unlock()

		return token.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Cache) lookup(k key) (string, bool) {
	c.mu.Lock()
	cached, ok := c.entries[k]
	c.mu.Unlock()
	if ok && time.Until(cached.expiresAt) > refreshSkew {
		return cached.accessToken, true
	}
	return "", false
}

// Clear drops every cached token.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = map[key]entry{}
	c.mu.Unlock()
}

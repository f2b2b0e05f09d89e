package oauthcache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/utcp/types"
)

func tokenServer(t *testing.T, accessToken string) *httptest.Server {
	t.Helper()
	srv, _ := countingTokenServer(t, accessToken)
	return srv
}

// countingTokenServer is tokenServer plus a live counter of requests served,
// so tests can assert exactly how many token-URL fetches actually happened.
func countingTokenServer(t *testing.T, accessToken string) (*httptest.Server, *int64) {
	t.Helper()
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"` + accessToken + `","token_type":"bearer","expires_in":3600}`))
	}))
	return srv, &calls
}

func TestTokenNonOAuth2AuthReturnsEmpty(t *testing.T) {
	c := New()
	token, err := c.Token(context.Background(), &types.Auth{Type: types.AuthBasic})
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestTokenNilAuthReturnsEmpty(t *testing.T) {
	c := New()
	token, err := c.Token(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestTokenFetchesAndCaches(t *testing.T) {
	srv, calls := countingTokenServer(t, "abc123")
	defer srv.Close()

	c := New()
	auth := &types.Auth{Type: types.AuthOAuth2, TokenURL: srv.URL, ClientID: "id", ClientSecret: "secret"}

	token, err := c.Token(context.Background(), auth)
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)

	// Second call within the token's lifetime must hit the cache, not the
	// server: same token, and the server still saw only one fetch.
	token2, err := c.Token(context.Background(), auth)
	require.NoError(t, err)
	assert.Equal(t, "abc123", token2)
	assert.Equal(t, int64(1), atomic.LoadInt64(calls))
}

func TestTokenDistinctKeysAreCachedSeparately(t *testing.T) {
	srv := tokenServer(t, "tok-a")
	defer srv.Close()

	c := New()
	authA := &types.Auth{Type: types.AuthOAuth2, TokenURL: srv.URL, ClientID: "a"}
	authB := &types.Auth{Type: types.AuthOAuth2, TokenURL: srv.URL, ClientID: "b"}

	_, err := c.Token(context.Background(), authA)
	require.NoError(t, err)
	_, err = c.Token(context.Background(), authB)
	require.NoError(t, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Len(t, c.entries, 2)
}

func TestTokenFetchFailureWrapsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New()
	auth := &types.Auth{Type: types.AuthOAuth2, TokenURL: srv.URL, ClientID: "id", ClientSecret: "bad"}
	_, err := c.Token(context.Background(), auth)
	require.Error(t, err)
	var authErr *types.AuthError
	assert.ErrorAs(t, err, &authErr)
}

// TestTokenConcurrentCallersShareOneFetch is the quantified invariant from
// §8: N concurrent callers needing the same uncached key perform exactly one
// token-URL fetch between them, via singleflight deduplication.
func TestTokenConcurrentCallersShareOneFetch(t *testing.T) {
	srv, calls := countingTokenServer(t, "shared-tok")
	defer srv.Close()

	c := New()
	auth := &types.Auth{Type: types.AuthOAuth2, TokenURL: srv.URL, ClientID: "id", ClientSecret: "secret"}

	const n = 25
	var wg sync.WaitGroup
	tokens := make([]string, n)
	errs := make([]error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = c.Token(context.Background(), auth)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared-tok", tokens[i])
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(calls), "exactly one token-URL fetch must be performed for N concurrent callers on the same uncached key")
}

func TestClearDropsCachedTokens(t *testing.T) {
	srv := tokenServer(t, "abc123")
	defer srv.Close()

	c := New()
	auth := &types.Auth{Type: types.AuthOAuth2, TokenURL: srv.URL, ClientID: "id"}
	_, err := c.Token(context.Background(), auth)
	require.NoError(t, err)

	c.Clear()
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	assert.Equal(t, 0, n)
}

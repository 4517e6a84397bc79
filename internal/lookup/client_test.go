package lookup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/scenecast/scenecast/internal/domain"
)

func testClient(serverURL string) *Client {
	c := NewClient(serverURL)
	c.limiter = rate.NewLimiter(rate.Inf, 0) // no throttling in tests
	return c
}

func TestFetchPostByRef(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/posts/t3_abc", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"t3_abc","url":"https://example.com/p/abc","created_utc":1717243200}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	post, err := client.FetchPostByRef(context.Background(), "t3_abc")

	require.NoError(t, err)
	assert.Equal(t, "t3_abc", post.Name)
	assert.Equal(t, "https://example.com/p/abc", post.URL)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), post.CreatedAt)
}

func TestFetchPostByRef_ResolvesShortRef(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// API canonicalizes the short ref; the returned name differs.
		_, _ = w.Write([]byte(`{"name":"t3_canonical","url":"https://example.com/p/c","created_utc":0}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	post, err := client.FetchPostByRef(context.Background(), "abc")

	require.NoError(t, err)
	assert.Equal(t, "t3_canonical", post.Name)
}

func TestFetchPostByURL_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/posts/by-url", r.URL.Path)
		assert.Equal(t, "https://example.com/gone", r.URL.Query().Get("url"))
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.FetchPostByURL(context.Background(), "https://example.com/gone")

	assert.ErrorIs(t, err, domain.ErrPostNotFound)
}

func TestFetch_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.FetchPostByRef(context.Background(), "t3_abc")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestFetch_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := testClient(server.URL)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := client.FetchPostByRef(ctx, "t3_abc")
		require.Error(t, err)
	}
	require.EqualValues(t, 5, hits.Load())

	// Breaker is open now: the next call fails fast without hitting the API.
	_, err := client.FetchPostByRef(ctx, "t3_abc")
	require.Error(t, err)
	assert.EqualValues(t, 5, hits.Load())
}

func TestFetch_NotFoundDoesNotTripBreaker(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := testClient(server.URL)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := client.FetchPostByRef(ctx, "t3_abc")
		assert.ErrorIs(t, err, domain.ErrPostNotFound)
	}
	assert.EqualValues(t, 10, hits.Load(), "not-found answers must keep reaching the API")
}

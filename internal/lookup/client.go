// Package lookup implements the client for the external post lookup API.
//
// The API is rate-limited upstream, so the client throttles itself with a
// token bucket and trips a circuit breaker when the API misbehaves, failing
// enrichment fast instead of stalling whole batches.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/scenecast/scenecast/internal/domain"
	"github.com/scenecast/scenecast/internal/metrics"
)

const (
	requestTimeout = 5 * time.Second

	// Conservative defaults for a third-party API: 1 request/s sustained
	// with small bursts.
	requestsPerSecond = 1
	burstSize         = 4
)

// Client talks to the external post lookup API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

var _ domain.PostFetcher = (*Client)(nil)

// postPayload is the API's wire shape for a post.
type postPayload struct {
	Name      string  `json:"name"`
	URL       string  `json:"url"`
	CreatedAt float64 `json:"created_utc"`
}

func NewClient(baseURL string) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "post-lookup",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// A clean not-found is a healthy API answer, not a failure.
			return err == nil || errors.Is(err, domain.ErrPostNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Lookup circuit breaker state changed", "from", from.String(), "to", to.String())
			if to == gobreaker.StateOpen {
				metrics.LookupBreakerOpen.Set(1)
			} else {
				metrics.LookupBreakerOpen.Set(0)
			}
		},
	})

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), burstSize),
		breaker:    breaker,
	}
}

// FetchPostByRef fetches post metadata for an external ref. The returned
// Name is the canonical ref, which may differ from the requested one when
// the API resolves a shortened reference.
func (c *Client) FetchPostByRef(ctx context.Context, ref string) (domain.Post, error) {
	endpoint := fmt.Sprintf("%s/api/posts/%s", c.baseURL, url.PathEscape(ref))
	return c.fetch(ctx, endpoint)
}

// FetchPostByURL fetches post metadata by its public URL. Returns
// domain.ErrPostNotFound when the API does not know the URL.
func (c *Client) FetchPostByURL(ctx context.Context, postURL string) (domain.Post, error) {
	endpoint := fmt.Sprintf("%s/api/posts/by-url?url=%s", c.baseURL, url.QueryEscape(postURL))
	return c.fetch(ctx, endpoint)
}

func (c *Client) fetch(ctx context.Context, endpoint string) (domain.Post, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Post{}, fmt.Errorf("rate limiter wait: %w", err)
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doFetch(ctx, endpoint)
	})
	metrics.LookupDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, domain.ErrPostNotFound) {
			metrics.LookupRequests.WithLabelValues("not_found").Inc()
			return domain.Post{}, err
		}
		metrics.LookupRequests.WithLabelValues("error").Inc()
		return domain.Post{}, err
	}

	metrics.LookupRequests.WithLabelValues("ok").Inc()
	return result.(domain.Post), nil
}

func (c *Client) doFetch(ctx context.Context, endpoint string) (domain.Post, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Post{}, fmt.Errorf("failed to create lookup request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Post{}, fmt.Errorf("failed to execute lookup request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Post{}, domain.ErrPostNotFound
	case resp.StatusCode != http.StatusOK:
		return domain.Post{}, fmt.Errorf("lookup API returned status %d", resp.StatusCode)
	}

	var payload postPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Post{}, fmt.Errorf("failed to decode lookup response: %w", err)
	}

	sec := int64(payload.CreatedAt)
	nsec := int64((payload.CreatedAt - float64(sec)) * float64(time.Second))
	return domain.Post{
		Name:      payload.Name,
		URL:       payload.URL,
		CreatedAt: time.Unix(sec, nsec).UTC(),
	}, nil
}

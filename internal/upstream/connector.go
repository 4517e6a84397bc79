// Package upstream maintains the persistent connection to the upstream feed
// service and applies its heartbeats to the state store.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/scenecast/scenecast/internal/domain"
	"github.com/scenecast/scenecast/internal/metrics"
)

const (
	// ReconnectDelay is the fixed wait between connection attempts. There is
	// no backoff growth and no retry cap: the connector retries forever.
	ReconnectDelay = 5 * time.Second

	endpointTimeout = 10 * time.Second
	dialTimeout     = 10 * time.Second
)

// heartbeatApplier is the subset of the state store the connector needs.
type heartbeatApplier interface {
	ApplyHeartbeat(remaining map[string]string)
}

// Connector owns the single upstream streaming connection. At most one
// connection is live at a time; each reconnect cycle builds a brand-new one.
type Connector struct {
	feedBaseURL string
	store       heartbeatApplier
	clock       clockwork.Clock
	httpClient  *http.Client
	dialer      *websocket.Dialer
}

func NewConnector(feedBaseURL string, store heartbeatApplier, clock clockwork.Clock) *Connector {
	return &Connector{
		feedBaseURL: feedBaseURL,
		store:       store,
		clock:       clock,
		httpClient:  &http.Client{Timeout: endpointTimeout},
		dialer:      &websocket.Dialer{HandshakeTimeout: dialTimeout},
	}
}

// Run connects and reads frames until ctx is cancelled. Every failure -
// endpoint discovery, dial, or read - is reported and followed by a fixed
// delay before the next attempt. Run never returns an error to its caller;
// it is tied to process lifetime.
func (c *Connector) Run(ctx context.Context) {
	for {
		if err := c.connectAndRead(ctx); err != nil {
			slog.Error("Upstream feed connection lost", "error", err)
		}

		if ctx.Err() != nil {
			slog.Info("Upstream connector stopped")
			return
		}

		metrics.FeedReconnects.Inc()
		slog.Info("Scheduling upstream reconnect", "delay", ReconnectDelay)

		timer := c.clock.NewTimer(ReconnectDelay)
		select {
		case <-timer.Chan():
		case <-ctx.Done():
			timer.Stop()
			slog.Info("Upstream connector stopped")
			return
		}
	}
}

func (c *Connector) connectAndRead(ctx context.Context) error {
	endpoint, err := c.fetchStreamEndpoint(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch stream endpoint: %w", err)
	}

	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}
	defer conn.Close()

	slog.Info("Upstream feed connected", "endpoint", endpoint)
	metrics.FeedConnected.Set(1)
	defer metrics.FeedConnected.Set(0)

	// Tear the read loop down promptly on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		c.handleFrame(data)
	}
}

// handleFrame parses one inbound frame and applies recognized heartbeats.
// Malformed payloads are dropped with a warning; nothing here may take the
// connection down, so a panic in frame handling is recovered and reported.
func (c *Connector) handleFrame(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic while handling upstream frame", "panic", r)
			metrics.FeedFramesDropped.Inc()
		}
	}()

	var frame domain.FeedFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		slog.Warn("Dropping malformed upstream frame", "error", err)
		metrics.FeedFramesDropped.Inc()
		return
	}

	if frame.Type != domain.FeedFrameHeartbeat {
		return
	}

	var hb domain.Heartbeat
	if err := json.Unmarshal(frame.Payload, &hb); err != nil {
		slog.Warn("Dropping malformed heartbeat payload", "error", err)
		metrics.FeedFramesDropped.Inc()
		return
	}

	c.store.ApplyHeartbeat(hb.RemainingScenes)
}

// fetchStreamEndpoint asks the feed service where to connect.
func (c *Connector) fetchStreamEndpoint(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedBaseURL+"/stream/endpoint", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create endpoint request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute endpoint request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("feed service returned status %d", resp.StatusCode)
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode endpoint response: %w", err)
	}
	if payload.URL == "" {
		return "", fmt.Errorf("feed service returned empty endpoint URL")
	}

	return payload.URL, nil
}

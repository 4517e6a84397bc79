package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/scenecast/scenecast/internal/domain"
	"github.com/scenecast/scenecast/internal/metrics"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
	catalogTimeout = 2 * time.Second
	recordTimeout  = 5 * time.Second

	// maxSubscribers bounds resource use; the expected audience is small.
	maxSubscribers = 256
)

// subscriberCounter is the subset of the state store the hub mutates.
type subscriberCounter interface {
	AddSubscriber() int
	RemoveSubscriber() int
}

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	connection   *websocket.Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseHubCmd
	connection *websocket.Conn
}

type broadcastAllCmd struct {
	baseHubCmd
}

type clientCountCmd struct {
	baseHubCmd
	replyChannel chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub tracks the set of live subscriber connections and fans scene state out
// to them. The authoritative fullname list comes from the catalog on every
// broadcast - the catalog decides which scenes exist, the state store only
// tracks which remain outstanding.
type Hub struct {
	cmdCh    chan hubCmd
	clock    clockwork.Clock
	clients  map[*websocket.Conn]*clientWriter
	catalog  domain.SceneCatalog
	recorder domain.FeedbackRecorder
	counter  subscriberCounter
	done     chan struct{}
}

func NewHub(catalog domain.SceneCatalog, recorder domain.FeedbackRecorder, counter subscriberCounter, clock clockwork.Clock) *Hub {
	h := &Hub{
		cmdCh:    make(chan hubCmd, 256),
		clock:    clock,
		clients:  make(map[*websocket.Conn]*clientWriter),
		catalog:  catalog,
		recorder: recorder,
		counter:  counter,
		done:     make(chan struct{}),
	}
	go h.run()
	return h
}

// Register adds a subscriber connection. The new subscriber immediately gets
// a targeted scenes frame, before any other server-initiated frame.
func (h *Hub) Register(conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	h.cmdCh <- registerCmd{connection: conn, errorChannel: errCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a subscriber connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.cmdCh <- unregisterCmd{connection: conn}
}

// BroadcastAll pushes the current scene state to every connected subscriber.
// Called after any admin mutation of the scene catalog.
func (h *Hub) BroadcastAll() {
	h.cmdCh <- broadcastAllCmd{}
}

// ClientCount returns the number of connected subscribers, or -1 on timeout.
func (h *Hub) ClientCount() int {
	replyCh := make(chan int, 1)
	h.cmdCh <- clientCountCmd{replyChannel: replyCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts the hub down, closing all subscriber connections. Blocks until
// the hub goroutine has exited or the stop timeout is reached.
func (h *Hub) Stop() {
	h.cmdCh <- stopCmd{}

	timer := h.clock.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timer.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
	}
}

// HandleInbound processes one frame received from a subscriber. Only
// feedback frames are acted on; recording happens on its own goroutine with
// its own error handling, so a failed insert never touches the read loop.
func (h *Hub) HandleInbound(data []byte) {
	var frame domain.FeedbackFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		slog.Warn("Dropping malformed subscriber frame", "error", err)
		return
	}

	if frame.Type != domain.FrameFeedback || frame.ID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := h.recorder.Record(ctx, frame.ID, frame.Upvoted); err != nil {
			slog.Error("Failed to record feedback", "id", frame.ID, "error", err)
			metrics.FeedbackRecorded.WithLabelValues("error").Inc()
			return
		}
		metrics.FeedbackRecorded.WithLabelValues("ok").Inc()
	}()
}

func (h *Hub) run() {
	defer close(h.done)

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			h.handleRegister(c)
		case unregisterCmd:
			h.handleUnregister(c.connection)
		case broadcastAllCmd:
			h.handleBroadcastAll()
		case clientCountCmd:
			c.replyChannel <- len(h.clients)
		case stopCmd:
			h.handleStop()
			return
		default:
			slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	if len(h.clients) >= maxSubscribers {
		slog.Warn("Rejecting subscriber: max connections reached", "max", maxSubscribers)
		c.connection.Close()
		c.errorChannel <- fmt.Errorf("max subscribers (%d) reached", maxSubscribers)
		return
	}

	h.clients[c.connection] = newClientWriter(c.connection, h.clock)
	count := h.counter.AddSubscriber()
	slog.Info("Subscriber connected", "subscribers", count)
	c.errorChannel <- nil

	// New subscribers get current state without waiting for the next
	// admin-triggered broadcast.
	h.handleBroadcastTo(c.connection)
}

func (h *Hub) handleUnregister(conn *websocket.Conn) {
	cw, exists := h.clients[conn]
	if !exists {
		return
	}

	cw.stop()
	delete(h.clients, conn)
	count := h.counter.RemoveSubscriber()
	slog.Info("Subscriber disconnected", "subscribers", count)
}

func (h *Hub) handleBroadcastAll() {
	data, err := h.buildScenesFrame()
	if err != nil {
		slog.Error("Broadcast aborted", "error", err)
		metrics.BroadcastFailures.Inc()
		return
	}

	var slow []*websocket.Conn
	for conn, writer := range h.clients {
		select {
		case writer.sendChannel <- data:
			metrics.BroadcastsSent.Inc()
		default:
			slow = append(slow, conn)
		}
	}

	for _, conn := range slow {
		slog.Warn("Disconnecting slow subscriber")
		metrics.SlowSubscribersEvicted.Inc()
		h.handleUnregister(conn)
	}
}

func (h *Hub) handleBroadcastTo(conn *websocket.Conn) {
	writer, exists := h.clients[conn]
	if !exists {
		return
	}

	data, err := h.buildScenesFrame()
	if err != nil {
		slog.Error("Targeted broadcast aborted", "error", err)
		metrics.BroadcastFailures.Inc()
		return
	}

	select {
	case writer.sendChannel <- data:
		metrics.BroadcastsSent.Inc()
	default:
		slog.Warn("Disconnecting slow subscriber")
		metrics.SlowSubscribersEvicted.Inc()
		h.handleUnregister(conn)
	}
}

// buildScenesFrame reads the authoritative scene list from the catalog and
// serializes it as a scenes frame.
func (h *Hub) buildScenesFrame() ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), catalogTimeout)
	defer cancel()

	scenes, err := h.catalog.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog read failed: %w", err)
	}

	fullnames := make([]string, 0, len(scenes))
	for _, scene := range scenes {
		fullnames = append(fullnames, scene.ExternalRef)
	}

	data, err := json.Marshal(domain.ScenesFrame{Type: domain.FrameScenes, Fullnames: fullnames})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scenes frame: %w", err)
	}
	return data, nil
}

func (h *Hub) handleStop() {
	slog.Info("Hub shutting down", "subscribers", len(h.clients))
	for conn, cw := range h.clients {
		cw.stopGraceful("Server shutting down")
		delete(h.clients, conn)
		h.counter.RemoveSubscriber()
	}
}

// Package streaming fans batch commit progress out to Server-Sent Event
// clients. A session is one import batch, keyed by batch id.
package streaming

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/finreport/internal/logger"
)

const (
	clientBuffer      = 10
	sessionBuffer     = 100
	terminalSendWait  = 100 * time.Millisecond
	terminalClientMax = 50 * time.Millisecond

	// finishedTTL is how long the outcome of a batch stays replayable
	finishedTTL = 15 * time.Minute
)

// Client represents a connected SSE client
type Client struct {
	Events chan SSEEvent
}

// NewClient creates a new SSE client
func NewClient() *Client {
	return &Client{
		Events: make(chan SSEEvent, clientBuffer),
	}
}

// SessionBroadcaster broadcasts events to every client of one batch
type SessionBroadcaster struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	events   chan SSEEvent
	ctx      context.Context
	cancel   context.CancelFunc
	log      *zerolog.Logger
	stopOnce sync.Once
	stopped  bool
}

// NewSessionBroadcaster creates a broadcaster bound to ctx; it logs through
// the context's logger.
func NewSessionBroadcaster(ctx context.Context) *SessionBroadcaster {
	log := logger.FromContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	return &SessionBroadcaster{
		clients: make(map[*Client]bool),
		events:  make(chan SSEEvent, sessionBuffer),
		ctx:     ctx,
		cancel:  cancel,
		log:     log,
	}
}

// Register adds a client to the broadcaster
func (b *SessionBroadcaster) Register(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = true
	b.log.Debug().Int("clients", len(b.clients)).Msg("client registered")
}

// Unregister removes a client from the broadcaster
func (b *SessionBroadcaster) Unregister(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		// Stop already closed every client channel
		if !b.stopped {
			close(client.Events)
		}
		b.log.Debug().Int("clients", len(b.clients)).Msg("client unregistered")
	}
}

func (b *SessionBroadcaster) isStopped() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stopped
}

// ClientCount returns the number of connected clients
func (b *SessionBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast queues an event for all registered clients. Progress events are
// dropped when the queue is full; terminal events wait briefly.
func (b *SessionBroadcaster) Broadcast(event SSEEvent) {
	b.mu.RLock()
	if b.stopped {
		b.mu.RUnlock()
		return
	}
	b.mu.RUnlock()

	if event.IsTerminal() {
		select {
		case b.events <- event:
		case <-b.ctx.Done():
		case <-time.After(terminalSendWait):
			b.log.Error().Str("event", string(event.Type)).Int("capacity", cap(b.events)).Msg("failed to queue terminal event, clients may hang")
		}
		return
	}

	select {
	case b.events <- event:
	case <-b.ctx.Done():
	default:
		b.log.Warn().Str("event", string(event.Type)).Msg("event queue full, dropping event")
	}
}

// Stop stops the broadcaster and closes every client channel
func (b *SessionBroadcaster) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.stopped = true
		for client := range b.clients {
			close(client.Events)
			delete(b.clients, client)
		}
		b.mu.Unlock()
		b.cancel()
	})
}

// Start delivers queued events until the context ends or a terminal event
// has been sent.
func (b *SessionBroadcaster) Start() {
	go func() {
		defer b.Stop()
		for {
			select {
			case <-b.ctx.Done():
				return
			case event := <-b.events:
				b.broadcastToClients(event)
				if event.IsTerminal() {
					// give clients a moment to drain before their channels close
					time.Sleep(terminalSendWait)
					return
				}
			}
		}
	}()
}

func (b *SessionBroadcaster) broadcastToClients(event SSEEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		if event.IsTerminal() {
			select {
			case client.Events <- event:
			case <-time.After(terminalClientMax):
				b.log.Error().Str("event", string(event.Type)).Msg("failed to deliver terminal event to client")
			}
			continue
		}

		select {
		case client.Events <- event:
		default:
			b.log.Warn().Str("event", string(event.Type)).Msg("client channel full, skipping event")
		}
	}
}

// StreamHub manages broadcasters for concurrent batch commits. It also
// remembers which batches are being written and the terminal event of each
// finished one, so a client that subscribes late still gets the outcome.
type StreamHub struct {
	mu           sync.RWMutex
	broadcasters map[string]*SessionBroadcaster
	running      map[string]bool
	finished     *cache.Cache
	log          zerolog.Logger
}

// NewStreamHub creates a new stream hub
func NewStreamHub() *StreamHub {
	return &StreamHub{
		broadcasters: make(map[string]*SessionBroadcaster),
		running:      make(map[string]bool),
		finished:     cache.New(finishedTTL, 2*finishedTTL),
		log:          zerolog.Nop(),
	}
}

// SetLogger sets the logger for hub-level messages
func (h *StreamHub) SetLogger(log zerolog.Logger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log = log
}

// Begin marks a batch as being written. Its events are streamed to
// subscribers until a terminal event ends it.
func (h *StreamHub) Begin(batchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running[batchID] = true
	h.finished.Delete(batchID)
	h.log.Debug().Str("batch_id", batchID).Msg("batch started")
}

// Subscription is what a client sees of one batch when it subscribes
type Subscription struct {
	// Client receives the batch's events while it is being written
	Client *Client
	// Final is the terminal event of a batch that already ended
	Final *SSEEvent
}

// Known reports whether the hub had anything for the batch. Batches started
// by another process, or finished longer ago than the hub remembers, are
// unknown.
func (s Subscription) Known() bool {
	return s.Client != nil || s.Final != nil
}

// Subscribe registers a client for a running batch or returns the terminal
// event of a finished one. The check and the registration happen under one
// lock, so a batch ending concurrently is never missed.
func (h *StreamHub) Subscribe(ctx context.Context, batchID string) Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ev, ok := h.finished.Get(batchID); ok {
		final := ev.(SSEEvent)
		return Subscription{Final: &final}
	}
	if !h.running[batchID] {
		return Subscription{}
	}
	return Subscription{Client: h.register(ctx, batchID)}
}

// Register registers a client for a batch and returns the client
func (h *StreamHub) Register(ctx context.Context, batchID string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.register(ctx, batchID)
}

func (h *StreamHub) register(ctx context.Context, batchID string) *Client {
	client := NewClient()

	broadcaster, exists := h.broadcasters[batchID]
	if !exists || broadcaster.isStopped() {
		broadcaster = NewSessionBroadcaster(ctx)
		h.broadcasters[batchID] = broadcaster
		broadcaster.Start()
		h.log.Debug().Str("batch_id", batchID).Msg("broadcaster created")
	}

	broadcaster.Register(client)
	return client
}

// Unregister removes a client; the last client out stops the broadcaster
func (h *StreamHub) Unregister(batchID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	broadcaster, exists := h.broadcasters[batchID]
	if !exists {
		return
	}

	broadcaster.Unregister(client)

	if broadcaster.ClientCount() == 0 {
		broadcaster.Stop()
		delete(h.broadcasters, batchID)
		h.log.Debug().Str("batch_id", batchID).Msg("broadcaster cleaned up")
	}
}

// Broadcast sends an event to all clients of a batch. Progress for a batch
// nobody is watching is discarded; a terminal event is always remembered
// and ends the batch.
func (h *StreamHub) Broadcast(batchID string, event SSEEvent) {
	if event.IsTerminal() {
		h.mu.Lock()
		delete(h.running, batchID)
		h.finished.SetDefault(batchID, event)
		broadcaster, exists := h.broadcasters[batchID]
		h.mu.Unlock()

		if exists {
			broadcaster.Broadcast(event)
		}
		h.log.Debug().Str("batch_id", batchID).Str("event", string(event.Type)).Msg("batch finished")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	broadcaster, exists := h.broadcasters[batchID]
	if !exists {
		h.log.Debug().Str("batch_id", batchID).Str("event", string(event.Type)).Msg("no listeners, event discarded")
		return
	}

	broadcaster.Broadcast(event)
}

// IsRunning checks if a batch has a broadcaster
func (h *StreamHub) IsRunning(batchID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.broadcasters[batchID]
	return exists
}

// IsWriting reports whether a batch was begun and has not ended yet
func (h *StreamHub) IsWriting(batchID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running[batchID]
}

// Package sse implements a Server-Sent Events broker that streams
// working-tree and history changes to connected clients.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/engram/internal/models"
)

// Event types emitted by the broker.
const (
	TypeBlockCreated  = "block.created"
	TypeBlockUpdated  = "block.updated"
	TypeBlockDeleted  = "block.deleted"
	TypeStatusUpdated = "status.updated"
	TypeHeadUpdated   = "head.updated"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type blockEventReq struct {
	kind     string
	category string
}

// Broker manages SSE client connections and broadcasts events.
//
// A single internal loop owns the client set, the event sequence and the
// status throttle; public methods talk to it over channels. A status.updated
// suppressed by the throttle is emitted once the window closes, so clients
// always see the last change.
type Broker struct {
	statusMin time.Duration
	keepAlive time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	blockEventCh  chan blockEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker with the given status throttle interval.
func NewBroker(statusThrottle time.Duration) *Broker {
	if statusThrottle <= 0 {
		statusThrottle = 2 * time.Second
	}

	b := &Broker{
		statusMin:     statusThrottle,
		keepAlive:     30 * time.Second,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		blockEventCh:  make(chan blockEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var seq uint64
	var lastStatus time.Time
	var trailing *time.Timer
	var trailingCh <-chan time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	emitStatus := func(now time.Time) {
		lastStatus = now
		broadcast(Event{Type: TypeStatusUpdated, Data: map[string]string{}})
	}

	for {
		select {
		case <-b.stopCh:
			if trailing != nil {
				trailing.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.blockEventCh:
			data := map[string]string{"category": req.category}
			switch req.kind {
			case "created":
				broadcast(Event{Type: TypeBlockCreated, Data: data})
			case "updated":
				broadcast(Event{Type: TypeBlockUpdated, Data: data})
			case "deleted":
				broadcast(Event{Type: TypeBlockDeleted, Data: data})
			}

			now := time.Now()
			if wait := b.statusMin - now.Sub(lastStatus); wait <= 0 {
				emitStatus(now)
			} else if trailingCh == nil {
				trailing = time.NewTimer(wait)
				trailingCh = trailing.C
			}

		case now := <-trailingCh:
			trailing, trailingCh = nil, nil
			emitStatus(now)

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops the broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishBlockEvent publishes a category change reported by the index
// watcher, followed by a throttled status.updated.
func (b *Broker) PublishBlockEvent(kind, category string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.blockEventCh <- blockEventReq{kind: kind, category: category}:
	case <-b.stopped:
	}
}

// PublishHead announces that a history operation moved HEAD.
func (b *Broker) PublishHead(op string, head models.Head) {
	b.Publish(Event{Type: TypeHeadUpdated, Data: map[string]any{
		"op":       op,
		"branch":   head.Branch,
		"hash":     head.Hash,
		"detached": head.Detached,
	}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

// Package sse implements a Server-Sent Events broker for link index updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types broadcast by the broker.
const (
	TypeDocumentIndexed = "document.indexed"
	TypeDocumentRemoved = "document.removed"
	TypeDocumentMoved   = "document.moved"
	TypeBrokenChanged   = "broken.changed"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type documentEventReq struct {
	kind    string
	path    string
	oldPath string
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients and the broken.changed throttle). Public methods communicate with
// this loop through channels, so no mutexes are required.
type Broker struct {
	brokenMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	documentCh    chan documentEventReq
	brokenCh      chan int
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. broken.changed events are sent at most
// once per brokenThrottle; counts arriving in between are coalesced into the
// latest one.
func NewBroker(brokenThrottle time.Duration) *Broker {
	if brokenThrottle <= 0 {
		brokenThrottle = 2 * time.Second
	}

	b := &Broker{
		brokenMin:     brokenThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		documentCh:    make(chan documentEventReq, 256),
		brokenCh:      make(chan int, 16),
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

	var (
		lastBroken    time.Time
		pendingBroken = -1
		brokenTimer   *time.Timer
		brokenFire    <-chan time.Time
	)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	sendBroken := func(n int) {
		lastBroken = time.Now()
		pendingBroken = -1
		broadcast(Event{Type: TypeBrokenChanged, Data: map[string]int{"count": n}})
	}

	for {
		select {
		case <-b.stopCh:
			if brokenTimer != nil {
				brokenTimer.Stop()
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

		case req := <-b.documentCh:
			data := map[string]string{"path": req.path}
			switch req.kind {
			case TypeDocumentIndexed, TypeDocumentRemoved:
				broadcast(Event{Type: req.kind, Data: data})
			case TypeDocumentMoved:
				data["old_path"] = req.oldPath
				broadcast(Event{Type: req.kind, Data: data})
			}

		case n := <-b.brokenCh:
			if wait := b.brokenMin - time.Since(lastBroken); wait > 0 {
				pendingBroken = n
				if brokenFire == nil {
					brokenTimer = time.NewTimer(wait)
					brokenFire = brokenTimer.C
				}
				continue
			}
			sendBroken(n)

		case <-brokenFire:
			brokenTimer, brokenFire = nil, nil
			if pendingBroken >= 0 {
				sendBroken(pendingBroken)
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
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

// PublishDocumentEvent broadcasts an index change. kind is one of the
// TypeDocument* constants; oldPath is only sent for moves. Unknown kinds are
// dropped.
func (b *Broker) PublishDocumentEvent(kind, path, oldPath string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.documentCh <- documentEventReq{kind: kind, path: path, oldPath: oldPath}:
	case <-b.stopped:
	}
}

// PublishBroken reports the current number of broken links as a throttled
// broken.changed event.
func (b *Broker) PublishBroken(count int) {
	if b.closed.Load() {
		return
	}
	select {
	case b.brokenCh <- count:
	case <-b.stopped:
	}
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

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

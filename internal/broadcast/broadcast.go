package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/italolelis/ytmusic_downloader/internal/logctx"
	"github.com/italolelis/ytmusic_downloader/internal/telemetry"
	"github.com/italolelis/ytmusic_downloader/internal/track"
)

const (
	listenerBuffer = 64
	pingInterval   = 15 * time.Second
)

// Listener is one connected progress stream.
type Listener struct {
	events chan []byte
}

// Events returns the encoded events delivered to this listener.
func (l *Listener) Events() <-chan []byte {
	return l.events
}

// Broadcaster fans progress events out to every connected listener. Events are not
// replayed: a listener only sees what is published after it subscribed.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	telemetry *telemetry.Telemetry
	ping      time.Duration
}

func NewBroadcaster(tel *telemetry.Telemetry) *Broadcaster {
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
		telemetry: tel,
		ping:      pingInterval,
	}
}

func (b *Broadcaster) Subscribe(ctx context.Context) *Listener {
	l := &Listener{events: make(chan []byte, listenerBuffer)}

	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()

	b.telemetry.AddListeners(ctx, 1)

	return l
}

// Unsubscribe removes the listener. Calling it twice is a no-op.
func (b *Broadcaster) Unsubscribe(ctx context.Context, l *Listener) {
	b.mu.Lock()
	_, ok := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()

	if ok {
		b.telemetry.AddListeners(ctx, -1)
	}
}

func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.listeners)
}

// Publish delivers ev to all listeners. A listener whose buffer is full misses the event
// rather than stalling the download loop.
func (b *Broadcaster) Publish(ctx context.Context, ev track.ProgressEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to encode progress event", "err", err)

		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for l := range b.listeners {
		select {
		case l.events <- data:
		default:
			logctx.LoggerFromContext(ctx).Warn("dropping progress event for slow listener", "video_id", ev.ID)
		}
	}
}

// Report lets the broadcaster act as the queue's progress reporter.
func (b *Broadcaster) Report(ctx context.Context, ev track.ProgressEvent) {
	b.Publish(ctx, ev)
}

// ServeHTTP streams events as server-sent events until the client goes away.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := rc.Flush(); err != nil {
		logger.Error("streaming unsupported", "err", err)

		return
	}

	l := b.Subscribe(ctx)
	defer b.Unsubscribe(context.WithoutCancel(ctx), l)

	logger.Debug("progress listener connected", "listeners", b.Count())

	ticker := time.NewTicker(b.ping)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("progress listener disconnected")

			return
		case data := <-l.events:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}

		if err := rc.Flush(); err != nil {
			return
		}
	}
}

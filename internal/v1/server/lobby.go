package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/parlorhq/parlor/internal/v1/logging"
	"github.com/parlorhq/parlor/internal/v1/metrics"
	"github.com/parlorhq/parlor/internal/v1/types"
)

// lobbyEvent is one pre-serialized server-sent event.
type lobbyEvent struct {
	name string
	data []byte
}

// lobby fans room add/remove/state-change events out to the watch streams.
// Each subscriber gets a bounded queue; a subscriber that cannot keep up
// loses events rather than stalling the publisher.
type lobby struct {
	mu          sync.Mutex
	subscribers map[chan lobbyEvent]struct{}
	closed      bool
}

func newLobby() *lobby {
	return &lobby{subscribers: make(map[chan lobbyEvent]struct{})}
}

// subscribe registers a new watcher. The returned cancel function is safe
// to call after close. Returns a nil channel when the lobby has closed.
func (l *lobby) subscribe() (chan lobbyEvent, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, func() {}
	}
	ch := make(chan lobbyEvent, 16)
	l.subscribers[ch] = struct{}{}
	metrics.LobbySubscribers.Inc()
	return ch, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := l.subscribers[ch]; ok {
			delete(l.subscribers, ch)
			metrics.LobbySubscribers.Dec()
		}
	}
}

func (l *lobby) publish(name string, id types.RoomID, summary types.RoomSummary) {
	data, err := json.Marshal(types.LobbyEvent{Name: name, RoomID: id, Value: summary})
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal lobby event")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	for ch := range l.subscribers {
		select {
		case ch <- lobbyEvent{name: name, data: data}:
		default:
			logging.Warn(context.Background(), "Lobby subscriber queue full - dropping event")
		}
	}
}

// close terminates every stream by closing its channel; the handlers see
// the closed channel as the end-of-stream sentinel and finish cleanly.
func (l *lobby) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	for ch := range l.subscribers {
		close(ch)
		delete(l.subscribers, ch)
		metrics.LobbySubscribers.Dec()
	}
}

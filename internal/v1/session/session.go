package session

import (
	"sync"
	"time"

	"github.com/parlorhq/parlor/internal/v1/metrics"
	"github.com/parlorhq/parlor/internal/v1/types"
)

// Session is a seat-bound Spectator. It is created FREE when its room is
// created, before any client exists, and it survives disconnects: the game
// worker blocks in ReconnectSync until the player comes back or the
// reconnection window elapses.
type Session struct {
	Spectator

	seat    types.SeatID
	timeout time.Duration
}

// NewSession creates the session for one seat. Goroutines are registered on
// wg so the room can await them on close.
func NewSession(room Roomer, seat types.SeatID, timeout time.Duration, queueLen int, wg *sync.WaitGroup) *Session {
	s := &Session{seat: seat, timeout: timeout}
	s.init(room, queueLen, wg)
	s.reconnectable = true
	s.kind = "session"
	s.startSendLoop()
	return s
}

// Seat returns the seat this session is bound to.
func (s *Session) Seat() types.SeatID {
	return s.seat
}

// Claim reserves the session for an incoming connection. Only a FREE
// session can be claimed; the HTTP handler maps the error to 404.
func (s *Session) Claim() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != types.StateFree {
		return &types.DisconnectedError{State: s.state}
	}
	s.state = types.StateClaimed
	return nil
}

// ReleaseClaim puts a CLAIMED session back to FREE. Used when the upgrade
// fails between claim and handshake.
func (s *Session) ReleaseClaim() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == types.StateClaimed {
		s.state = types.StateFree
		s.cond.Broadcast()
	}
}

// ReconnectSync blocks the worker until the session is CONNECTED again.
// It fails with a DisconnectedError on interrupt and a TimeoutError when
// the reconnection window elapses.
func (s *Session) ReconnectSync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(s.timeout)
	// sync.Cond has no timed wait; a timer broadcast stands in for one.
	timer := time.AfterFunc(s.timeout, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()

	for {
		switch s.state {
		case types.StateInterrupted:
			return &types.DisconnectedError{State: types.StateInterrupted}
		case types.StateConnected:
			return nil
		}
		if !time.Now().Before(deadline) {
			return &types.TimeoutError{Seat: s.seat, Waited: s.timeout}
		}
		s.cond.Wait()
	}
}

// GetSync refines Spectator.GetSync with the rejoin semantics: a plain
// disconnect blocks on ReconnectSync and retries, an interrupt propagates.
func (s *Session) GetSync() (string, error) {
	for {
		msg, err := s.Spectator.GetSync()
		if err == nil {
			return msg, nil
		}
		if disc, ok := err.(*types.DisconnectedError); ok && !disc.Interrupted() {
			metrics.Reconnects.Inc()
			if rerr := s.ReconnectSync(); rerr != nil {
				return "", rerr
			}
			continue
		}
		return "", err
	}
}

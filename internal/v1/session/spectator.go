// Package session implements the per-connection state machines that bridge
// the network side of the server (HTTP handlers, read pumps, send loops)
// and the game worker, which is allowed to block. A Spectator is a
// read-mostly viewer; a Session is a seat-bound spectator that survives
// disconnects; a NetworkAgent adapts a Session to the game.Agent contract.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/v1/logging"
	"github.com/parlorhq/parlor/internal/v1/metrics"
	"github.com/parlorhq/parlor/internal/v1/transport"
	"github.com/parlorhq/parlor/internal/v1/types"
)

// Roomer is the room-side surface a spectator reports to. It exists so the
// room package can own membership and lobby events without this package
// importing it.
type Roomer interface {
	// HandleClientDisconnect is called on the network side when a read pump
	// ends. Plain spectators are removed; sessions stay claimable.
	HandleClientDisconnect(s *Spectator)
	// HandleStateChange is called after any observable state transition so
	// the lobby can be notified.
	HandleStateChange(s *Spectator)
}

// Spectator is one viewer connection to a room.
//
// Two execution domains touch it: the network side (read pump, send loop,
// HTTP handlers) and the worker side (GetSync/SendSync). The mutex and
// condition guard the inbound queue, the state and the listening flag; the
// outbound queue is a bounded channel drained only by the send loop. Those
// queues are the only state shared across the boundary.
type Spectator struct {
	room Roomer
	wg   *sync.WaitGroup

	mu          sync.Mutex
	cond        *sync.Cond
	state       types.SessionState
	listening   bool
	inbound     []string
	interceptor func(string) bool
	closeReason string

	outbound chan []byte
	priority chan []byte

	done      chan struct{}
	closeOnce sync.Once

	// connCh hands a freshly upgraded connection to the send loop. Claims
	// are serialized by the state machine, so capacity 1 is enough.
	connCh chan transport.Conn

	// reconnectable spectators (sessions) park in-flight outbound frames
	// across a reconnect instead of dropping them with the connection.
	reconnectable bool

	kind string // metrics label
}

// NewSpectator creates an ad-hoc spectator. It is created at connect time,
// so it starts CLAIMED. Goroutines are registered on wg so the room can
// await them on close.
func NewSpectator(room Roomer, queueLen int, wg *sync.WaitGroup) *Spectator {
	s := &Spectator{}
	s.init(room, queueLen, wg)
	s.state = types.StateClaimed
	s.kind = "spectator"
	s.startSendLoop()
	return s
}

func (s *Spectator) init(room Roomer, queueLen int, wg *sync.WaitGroup) {
	s.room = room
	s.wg = wg
	s.state = types.StateFree
	s.outbound = make(chan []byte, queueLen)
	s.priority = make(chan []byte, 4)
	s.done = make(chan struct{})
	s.connCh = make(chan transport.Conn, 1)
	s.cond = sync.NewCond(&s.mu)
}

func (s *Spectator) startSendLoop() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sendLoop()
	}()
}

// State returns the current connection state.
func (s *Spectator) State() types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnConnect installs a freshly upgraded connection. The claim must already
// have been made; the CLAIMED -> CONNECTED transition happens here, after
// the WebSocket handshake has completed.
func (s *Spectator) OnConnect(conn transport.Conn) error {
	s.mu.Lock()
	if s.state != types.StateClaimed {
		state := s.state
		s.mu.Unlock()
		return &types.DisconnectedError{State: state}
	}
	s.state = types.StateConnected
	s.cond.Broadcast()
	s.mu.Unlock()

	s.connCh <- conn
	metrics.ConnectionsActive.WithLabelValues(s.kind).Inc()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readPump(conn)
	}()

	s.room.HandleStateChange(s)
	return nil
}

// readPump reads frames from one connection until it closes. Text frames go
// through the interceptor slot, then the inbound queue; anything else closes
// the transport.
func (s *Spectator) readPump(conn transport.Conn) {
	defer func() {
		_ = conn.Close()
		metrics.ConnectionsActive.WithLabelValues(s.kind).Dec()

		s.mu.Lock()
		if s.state == types.StateConnected {
			s.state = types.StateFree
		}
		s.cond.Broadcast()
		s.mu.Unlock()

		s.room.HandleClientDisconnect(s)
		s.room.HandleStateChange(s)
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			logging.Warn(context.Background(), "Closing connection after non-text frame",
				zap.Int("messageType", messageType))
			return
		}
		metrics.FramesTotal.WithLabelValues("inbound").Inc()
		s.handleInbound(string(data))
	}
}

func (s *Spectator) handleInbound(msg string) {
	s.mu.Lock()
	interceptor := s.interceptor
	s.mu.Unlock()
	// Interceptors run outside the lock; they may call SendSync.
	if interceptor != nil && interceptor(msg) {
		return
	}

	s.mu.Lock()
	listening := s.listening
	if !listening && msg == types.ClientLostTrack {
		// The hint below already answers it; nothing to enqueue.
	} else {
		s.inbound = append(s.inbound, msg)
		s.cond.Broadcast()
	}
	s.mu.Unlock()

	if !listening {
		s.pushHint()
	}
}

// pushHint tells the client nobody is waiting for input. Advisory and
// droppable; it must never displace real frames.
func (s *Spectator) pushHint() {
	data, _ := json.Marshal(types.NotListeningHint)
	select {
	case s.priority <- data:
	default:
	}
}

// sendLoop is the single consumer of the outbound queue. It lives as long
// as the spectator and follows the current connection through reconnects,
// so enqueue order is preserved end-to-end.
func (s *Spectator) sendLoop() {
	var conn transport.Conn
	for {
		// A fresh connection or a shutdown wins over queued frames.
		select {
		case <-s.done:
			s.retireConn(conn)
			return
		case conn = <-s.connCh:
			continue
		default:
		}

		select {
		case <-s.done:
			s.retireConn(conn)
			return
		case conn = <-s.connCh:
		case data := <-s.priority:
			if conn != nil {
				_ = transport.WriteText(conn, data)
			}
		case data := <-s.outbound:
			if !s.writeFrame(&conn, data) {
				return
			}
		}
	}
}

// writeFrame delivers one frame, waiting out a reconnection if the current
// connection dies under it. Returns false when the loop should exit.
func (s *Spectator) writeFrame(conn *transport.Conn, data []byte) bool {
	for {
		if *conn == nil {
			if !s.reconnectable {
				return false
			}
			select {
			case <-s.done:
				s.retireConn(nil)
				return false
			case *conn = <-s.connCh:
			}
		}
		if err := transport.WriteText(*conn, data); err == nil {
			metrics.FramesTotal.WithLabelValues("outbound").Inc()
			return true
		}
		// Retry the same frame on the next connection; never reorder.
		_ = (*conn).Close()
		*conn = nil
	}
}

func (s *Spectator) retireConn(conn transport.Conn) {
	// Pick up a connection that raced the shutdown so it gets a close frame.
	if conn == nil {
		select {
		case conn = <-s.connCh:
		default:
		}
	}
	if conn == nil {
		return
	}
	s.mu.Lock()
	reason := s.closeReason
	s.mu.Unlock()
	transport.WriteClose(conn, reason)
	_ = conn.Close()
}

// Interrupt moves the spectator to its terminal state and wakes everything
// blocked on it: the worker (via the condition), the send loop (via done)
// and the read pump (via the closed connection). Idempotent.
func (s *Spectator) Interrupt(reason string) {
	s.mu.Lock()
	if s.state == types.StateInterrupted {
		s.mu.Unlock()
		return
	}
	s.state = types.StateInterrupted
	s.closeReason = reason
	s.cond.Broadcast()
	s.mu.Unlock()

	s.closeOnce.Do(func() { close(s.done) })
	s.room.HandleStateChange(s)
}

// SendSync enqueues a JSON-serializable frame for delivery. Worker side.
// The actual transmission is the send loop's job; after an interrupt the
// frame is discarded.
func (s *Spectator) SendSync(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-s.done:
		return &types.DisconnectedError{State: types.StateInterrupted}
	case s.outbound <- data:
		return nil
	}
}

// GetSync blocks until an inbound frame is available or the spectator
// leaves CONNECTED. Worker side. On a disconnect the listening flag is
// deliberately left set: the consumer is still mid-question and will
// resume waiting after a reconnect.
func (s *Spectator) GetSync() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listening = true
	for len(s.inbound) == 0 {
		if s.state != types.StateConnected {
			return "", &types.DisconnectedError{State: s.state}
		}
		s.cond.Wait()
	}
	s.listening = false

	msg := s.inbound[0]
	s.inbound = s.inbound[1:]
	return msg, nil
}

// SetInterceptor installs the chat interceptor. At most one at a time;
// nesting is a bug in the caller.
func (s *Spectator) SetInterceptor(fn func(string) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interceptor != nil {
		return errors.New("an interceptor is already installed")
	}
	s.interceptor = fn
	return nil
}

// ClearInterceptor removes the current interceptor, if any.
func (s *Spectator) ClearInterceptor() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interceptor = nil
}

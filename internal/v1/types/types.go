package types

import (
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

// --- Core Domain Types ---

// RoomID identifies a room within the server's index. IDs are dense
// integers allocated from zero and never reused within a process lifetime.
type RoomID int

// SeatID identifies one player slot in a room. Seats are numbered from 1
// in the order of the room's agent list.
type SeatID int

// Username is the display name bound to a seat on its first successful
// claim. Guest names carry a " (Guest)" suffix.
type Username string

// SessionState tracks the connection lifecycle of a spectator or session.
//
// The only transitions are FREE -> CLAIMED -> CONNECTED -> FREE (loop for
// reconnectable sessions) and any -> INTERRUPTED_BY_SERVER, which is
// terminal.
type SessionState int32

const (
	StateFree SessionState = iota
	StateClaimed
	StateConnected
	StateInterrupted
)

func (s SessionState) String() string {
	switch s {
	case StateFree:
		return "FREE"
	case StateClaimed:
		return "CLAIMED"
	case StateConnected:
		return "CONNECTED"
	case StateInterrupted:
		return "INTERRUPTED_BY_SERVER"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

// MarshalJSON serializes the state as its name, which is what the lobby
// endpoints expose.
func (s SessionState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// --- Wire Sentinels ---

// ClientLostTrack is the inbound sentinel a client sends when it lost track
// of the current question and wants it resent. It is only delivered to a
// waiting consumer; outside of a question it is answered by the
// not-listening hint and discarded.
const ClientLostTrack = "?"

// NotListeningHint is pushed out-of-band when a frame arrives while no
// consumer is waiting for input, so the client UI can lock its controls.
const NotListeningHint = "!Not listening"

// --- Domain Errors ---

// DisconnectedError reports that a blocking receive observed the session in
// a non-connected state. State is the state that was observed.
type DisconnectedError struct {
	State SessionState
}

func (e *DisconnectedError) Error() string {
	return fmt.Sprintf("session disconnected (state %s)", e.State)
}

// Interrupted reports whether the disconnect is terminal.
func (e *DisconnectedError) Interrupted() bool {
	return e.State == StateInterrupted
}

// TimeoutError reports that a session did not reconnect within its
// reconnection window. The game decides whether this means forfeit, pause
// or abort.
type TimeoutError struct {
	Seat   SeatID
	Waited time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("seat %d did not reconnect within %s", e.Seat, e.Waited)
}

// --- Lobby Types ---

// RoomSummary is the lobby serialization of a room: its spectator count and
// the state of every seat.
type RoomSummary struct {
	Spectators int                     `json:"spectators"`
	Seats      map[SeatID]SessionState `json:"seats"`
}

// MarshalLogObject lets summaries be logged as structured zap fields.
func (s RoomSummary) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("spectators", s.Spectators)
	return enc.AddObject("seats", zapcore.ObjectMarshalerFunc(func(e zapcore.ObjectEncoder) error {
		for seat, state := range s.Seats {
			e.AddString(fmt.Sprintf("%d", seat), state.String())
		}
		return nil
	}))
}

// Lobby event names carried on the room watch stream.
const (
	LobbyEventAdd         = "add"
	LobbyEventRemove      = "remove"
	LobbyEventStateChange = "state-change"
)

// LobbyEvent is one notification on the room watch stream.
type LobbyEvent struct {
	Name   string      `json:"-"`
	RoomID RoomID      `json:"roomID"`
	Value  RoomSummary `json:"value"`
}

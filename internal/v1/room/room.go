// Package room hosts one game instance: its Logic, one Session per network
// seat, an open set of spectators, and the worker goroutine that drives the
// game. Rooms close themselves when the game returns and remove themselves
// from the server.
package room

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/parlorhq/parlor/internal/v1/auth"
	"github.com/parlorhq/parlor/internal/v1/game"
	"github.com/parlorhq/parlor/internal/v1/logging"
	"github.com/parlorhq/parlor/internal/v1/metrics"
	"github.com/parlorhq/parlor/internal/v1/session"
	"github.com/parlorhq/parlor/internal/v1/types"
)

// Options carries the server-provided dependencies of a room.
type Options struct {
	Greeter          string
	ReconnectTimeout time.Duration
	QueueLen         int
	Cookies          *auth.Cookies
	Upgrader         *websocket.Upgrader

	// OnClose removes the room from the server index. Called exactly once,
	// from the worker, after every connection goroutine has finished.
	OnClose func(*Room)
	// OnChange publishes a lobby state-change event.
	OnChange func(*Room)
}

// Room is one game instance plus its attached connections.
type Room struct {
	ID    types.RoomID
	logic game.Logic
	kinds []game.AgentKind
	opts  Options

	mu           sync.RWMutex
	sessions     map[types.SeatID]*session.Session
	networkSeats set.Set[types.SeatID]
	spectators   map[*session.Spectator]struct{}
	usernames    map[types.SeatID]types.Username
	closing      bool

	wg         sync.WaitGroup
	workerDone chan struct{}
}

// New creates a room, allocates one FREE session per network seat and
// starts the game worker. Seats are numbered from 1 in agent-list order.
func New(id types.RoomID, logic game.Logic, kinds []game.AgentKind, opts Options) *Room {
	r := &Room{
		ID:           id,
		logic:        logic,
		kinds:        kinds,
		opts:         opts,
		sessions:     make(map[types.SeatID]*session.Session),
		networkSeats: set.New[types.SeatID](),
		spectators:   make(map[*session.Spectator]struct{}),
		usernames:    make(map[types.SeatID]types.Username),
		workerDone:   make(chan struct{}),
	}
	for i, kind := range kinds {
		if kind != game.AgentNetwork {
			continue
		}
		seat := types.SeatID(i + 1)
		r.sessions[seat] = session.NewSession(r, seat, opts.ReconnectTimeout, opts.QueueLen, &r.wg)
		r.networkSeats.Insert(seat)
	}

	metrics.RoomsActive.Inc()
	metrics.RoomsCreated.Inc()

	go r.runWorker()
	return r
}

// Summary serializes the room for the lobby: spectator count plus the
// state of every seat. Locally driven seats report as CONNECTED; they have
// no transport to lose.
func (r *Room) Summary() types.RoomSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seats := make(map[types.SeatID]types.SessionState, len(r.kinds))
	for i := range r.kinds {
		seat := types.SeatID(i + 1)
		if s, ok := r.sessions[seat]; ok {
			seats[seat] = s.State()
		} else {
			seats[seat] = types.StateConnected
		}
	}
	return types.RoomSummary{Spectators: len(r.spectators), Seats: seats}
}

// --- session.Roomer ---

// HandleClientDisconnect is called from a read pump when its connection
// ends. Plain spectators are discarded; sessions stay claimable.
func (r *Room) HandleClientDisconnect(s *session.Spectator) {
	r.mu.Lock()
	_, isSpectator := r.spectators[s]
	if isSpectator {
		delete(r.spectators, s)
	}
	r.mu.Unlock()

	if isSpectator {
		s.Interrupt("")
	}
}

// HandleStateChange publishes the new room summary to the lobby.
func (r *Room) HandleStateChange(*session.Spectator) {
	if r.opts.OnChange != nil {
		r.opts.OnChange(r)
	}
}

// --- worker ---

func (r *Room) runWorker() {
	defer close(r.workerDone)
	ctx := context.WithValue(context.Background(), logging.RoomIDKey, int(r.ID))

	summary, err := r.playGame(ctx)
	reason := "game over"
	if err != nil {
		reason = "game aborted"
		logging.Warn(ctx, "Game ended with error", zap.Error(err))
	} else if summary.Winner != game.NoWinner {
		logging.Info(ctx, "Game finished", zap.Int("winner", int(summary.Winner)))
	} else {
		logging.Info(ctx, "Game finished without a winner")
	}

	r.Interrupt(reason)
	r.wg.Wait()
	metrics.RoomsActive.Dec()
	if r.opts.OnClose != nil {
		r.opts.OnClose(r)
	}
}

// playGame awaits every seat, hands the agents to the game and runs it.
// Panics in game code are recovered into errors so a broken game cannot
// leak its room.
func (r *Room) playGame(ctx context.Context) (summary game.Summary, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("game panicked: %v", rec)
		}
	}()

	agents := make([]game.Agent, len(r.kinds))
	for i, kind := range r.kinds {
		seat := types.SeatID(i + 1)
		switch kind {
		case game.AgentNetwork:
			s := r.sessions[seat]
			if werr := s.ReconnectSync(); werr != nil {
				return game.Summary{}, fmt.Errorf("awaiting seat %d: %w", seat, werr)
			}
			r.mu.RLock()
			name := r.usernames[seat]
			r.mu.RUnlock()
			agents[i] = session.NewNetworkAgent(s, name)
		case game.AgentHuman:
			agents[i] = game.NewStdioAgent(types.Username(fmt.Sprintf("Player %d", seat)))
		}
	}
	logging.Info(ctx, "All seats resolved, starting game")

	r.logic.SetAgents(agents)
	return r.logic.Play()
}

// Interrupt moves every member to INTERRUPTED_BY_SERVER and refuses new
// connections. Any blocked worker call fails at its next observation
// point. Idempotent.
func (r *Room) Interrupt(reason string) {
	r.mu.Lock()
	r.closing = true
	members := r.members()
	r.mu.Unlock()

	for _, m := range members {
		m.Interrupt(reason)
	}
}

// members snapshots sessions and spectators. Caller holds r.mu.
func (r *Room) members() []interrupter {
	members := make([]interrupter, 0, len(r.sessions)+len(r.spectators))
	for _, s := range r.sessions {
		members = append(members, s)
	}
	for s := range r.spectators {
		members = append(members, s)
	}
	return members
}

type interrupter interface {
	Interrupt(reason string)
}

// AwaitClosed blocks until the worker has finished and the room has
// removed itself, or the context expires.
func (r *Room) AwaitClosed(ctx context.Context) error {
	select {
	case <-r.workerDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SeatUsername returns the username bound to a seat, if any.
func (r *Room) SeatUsername(seat types.SeatID) (types.Username, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.usernames[seat]
	return name, ok
}

// Session returns the session for a seat, if the seat is network-driven.
func (r *Room) Session(seat types.SeatID) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[seat]
	return s, ok
}

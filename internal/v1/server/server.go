// Package server owns the room index and the process-wide HTTP surface:
// room creation and listing, the lobby watch stream, login, and the
// dispatch of /r/{roomID} routes to room instances.
package server

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/v1/auth"
	"github.com/parlorhq/parlor/internal/v1/config"
	"github.com/parlorhq/parlor/internal/v1/game"
	"github.com/parlorhq/parlor/internal/v1/logging"
	"github.com/parlorhq/parlor/internal/v1/room"
	"github.com/parlorhq/parlor/internal/v1/transport"
	"github.com/parlorhq/parlor/internal/v1/types"
)

// Server indexes the active rooms and serves everything that is not
// room-scoped. One per process.
type Server struct {
	cfg      *config.Config
	registry *game.Registry
	cookies  *auth.Cookies
	upgrader *websocket.Upgrader
	lobby    *lobby

	mu      sync.Mutex
	rooms   map[types.RoomID]*room.Room
	nextID  types.RoomID
	closing bool
}

// New creates a server hosting the given game registry.
func New(cfg *config.Config, registry *game.Registry) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		cookies:  auth.NewCookies(cfg.CookieSecret),
		upgrader: transport.Upgrader(cfg.AllowedOrigins, cfg.DevelopmentMode()),
		lobby:    newLobby(),
		rooms:    make(map[types.RoomID]*room.Room),
	}
}

// Cookies exposes the cookie helper for tests and the login handler.
func (s *Server) Cookies() *auth.Cookies { return s.cookies }

// CreateRoom constructs the game, allocates a room ID and starts the room
// worker. IDs are dense integers allocated from zero, never reused.
func (s *Server) CreateRoom(req *game.RoomRequest) (types.RoomID, error) {
	if err := req.Validate(s.registry); err != nil {
		return 0, err
	}
	logic, err := s.registry.New(req.Game, req.Args, len(req.Agents))
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return 0, errors.New("server is shutting down")
	}
	id := s.nextID
	s.nextID++
	r := room.New(id, logic, req.Agents, room.Options{
		Greeter:          s.cfg.GreeterMessage,
		ReconnectTimeout: s.cfg.ReconnectTimeout,
		QueueLen:         s.cfg.OutboundQueueLen,
		Cookies:          s.cookies,
		Upgrader:         s.upgrader,
		OnClose:          s.removeRoom,
		OnChange:         s.roomChanged,
	})
	s.rooms[id] = r
	s.mu.Unlock()

	logging.Info(context.Background(), "Room created",
		zap.Int("roomId", int(id)), zap.String("game", req.Game), zap.Int("seats", len(req.Agents)))
	s.lobby.publish(types.LobbyEventAdd, id, r.Summary())
	return id, nil
}

// RoomByID looks up a live room.
func (s *Server) RoomByID(id types.RoomID) (*room.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	return r, ok
}

// RoomList snapshots every live room's lobby summary.
func (s *Server) RoomList() map[types.RoomID]types.RoomSummary {
	s.mu.Lock()
	rooms := make([]*room.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.Unlock()

	list := make(map[types.RoomID]types.RoomSummary, len(rooms))
	for _, r := range rooms {
		list[r.ID] = r.Summary()
	}
	return list
}

// RoomCount reports the number of live rooms (readiness probe).
func (s *Server) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// removeRoom is the room's OnClose callback; removal is self-initiated by
// the room worker after the game returns.
func (s *Server) removeRoom(r *room.Room) {
	s.mu.Lock()
	delete(s.rooms, r.ID)
	s.mu.Unlock()

	logging.Info(context.Background(), "Room removed", zap.Int("roomId", int(r.ID)))
	s.lobby.publish(types.LobbyEventRemove, r.ID, r.Summary())
}

// roomChanged is the room's OnChange callback.
func (s *Server) roomChanged(r *room.Room) {
	s.lobby.publish(types.LobbyEventStateChange, r.ID, r.Summary())
}

// Shutdown interrupts every room, waits for each to close itself, and
// terminates the lobby streams. Post-condition: zero live rooms.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	rooms := make([]*room.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.Unlock()

	logging.Info(ctx, "Shutting down server - interrupting all rooms", zap.Int("count", len(rooms)))
	for _, r := range rooms {
		r.Interrupt("Server shutdown")
	}
	for _, r := range rooms {
		if err := r.AwaitClosed(ctx); err != nil {
			return err
		}
	}

	s.lobby.close()
	logging.Info(ctx, "All rooms closed")
	return nil
}

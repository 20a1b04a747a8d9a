package game

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// AgentKind selects how a seat is driven.
type AgentKind string

const (
	// AgentNetwork is a seat claimed by a WebSocket client.
	AgentNetwork AgentKind = "network"
	// AgentHuman is a seat driven locally on the server's stdio.
	AgentHuman AgentKind = "human"
)

func (k AgentKind) valid() bool {
	return k == AgentNetwork || k == AgentHuman
}

// Constructor builds one game instance from its JSON arguments for the
// given number of seats.
type Constructor func(args json.RawMessage, seats int) (Logic, error)

// Registry is the closed set of games a server can host. Registration
// happens at startup; lookups happen per room creation.
type Registry struct {
	mu    sync.RWMutex
	games map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{games: make(map[string]Constructor)}
}

// Register adds a game under its public name. Re-registering a name is a
// programming error.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.games[name]; dup {
		panic(fmt.Sprintf("game %q registered twice", name))
	}
	r.games[name] = ctor
}

// Names lists the registered games in stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.games))
	for name := range r.games {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New constructs a game instance by name.
func (r *Registry) New(name string, args json.RawMessage, seats int) (Logic, error) {
	r.mu.RLock()
	ctor, ok := r.games[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown game %q", name)
	}
	return ctor(args, seats)
}

// RoomRequest is the body of POST /room.
type RoomRequest struct {
	Game   string          `json:"game"`
	Args   json.RawMessage `json:"args"`
	Agents []AgentKind     `json:"agents"`
}

// Validate rejects requests the registry cannot serve.
func (req *RoomRequest) Validate(r *Registry) error {
	r.mu.RLock()
	_, known := r.games[req.Game]
	r.mu.RUnlock()
	if !known {
		return fmt.Errorf("unknown game %q", req.Game)
	}
	if len(req.Agents) == 0 {
		return fmt.Errorf("at least one agent is required")
	}
	for i, kind := range req.Agents {
		if !kind.valid() {
			return fmt.Errorf("agent %d: unknown kind %q", i+1, kind)
		}
	}
	return nil
}

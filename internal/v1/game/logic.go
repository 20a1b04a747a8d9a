package game

import (
	"github.com/parlorhq/parlor/internal/v1/types"
)

// NoWinner is the Summary winner value for games that end without one.
const NoWinner types.SeatID = 0

// Summary is the outcome of a finished game.
type Summary struct {
	Winner types.SeatID
}

// Logic is the opaque game authority a room hosts. The room worker calls
// SetAgents once every seat has resolved, then Play exactly once. Play runs
// on the worker and may block indefinitely inside Agent calls.
//
// RenderView may be called concurrently with Play (the /html endpoint runs
// on request goroutines); implementations synchronize their own state.
type Logic interface {
	SetAgents(agents []Agent)
	Play() (Summary, error)

	// RenderView renders the current state as HTML for the given viewer.
	// A nil viewer is the anonymous spectator view; per-slot visibility is
	// the implementation's business.
	RenderView(viewer *types.SeatID) string
}

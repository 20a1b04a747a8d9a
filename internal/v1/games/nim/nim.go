// Package nim implements the game of Nim, the reference game shipped with
// the server. Players take turns removing sticks from heaps; under the
// default (normal) convention the player who takes the last stick wins.
package nim

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/parlorhq/parlor/internal/v1/game"
	"github.com/parlorhq/parlor/internal/v1/types"
)

// Name is the registry name of the game.
const Name = "nim"

var defaultHeaps = []int{3, 5, 7}

// Args configures one Nim instance.
type Args struct {
	// Heaps is the initial stick count per heap.
	Heaps []int `json:"heaps"`
	// Misere flips the winning condition: taking the last stick loses.
	Misere bool `json:"misere"`
}

// Nim is one game instance. Play runs on the room worker; RenderView runs
// on request goroutines concurrently with it, so heap state is guarded.
type Nim struct {
	mu     sync.Mutex
	heaps  []int
	turn   int // index into agents, not a SeatID
	misere bool
	agents []game.Agent
}

// Register adds Nim to a registry.
func Register(r *game.Registry) {
	r.Register(Name, New)
}

// New is the registry constructor.
func New(rawArgs json.RawMessage, seats int) (game.Logic, error) {
	if seats < 2 {
		return nil, fmt.Errorf("nim needs at least 2 players, got %d", seats)
	}
	args := Args{Heaps: defaultHeaps}
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, fmt.Errorf("bad nim args: %w", err)
		}
	}
	if len(args.Heaps) == 0 {
		return nil, fmt.Errorf("nim needs at least one heap")
	}
	for i, n := range args.Heaps {
		if n < 1 {
			return nil, fmt.Errorf("heap %d: size must be positive, got %d", i, n)
		}
	}
	heaps := make([]int, len(args.Heaps))
	copy(heaps, args.Heaps)
	return &Nim{heaps: heaps, misere: args.Misere}, nil
}

func (g *Nim) SetAgents(agents []game.Agent) {
	g.agents = agents
}

// Play drives the game to completion. Any agent error (disconnect,
// timeout, interrupt) aborts the game.
func (g *Nim) Play() (game.Summary, error) {
	variant := "normal"
	if g.misere {
		variant = "misère"
	}
	for _, a := range g.agents {
		a.Tell(fmt.Sprintf("Nim (%s): on your turn, pick a heap and take sticks from it.", variant))
	}
	if err := g.broadcastHeaps(); err != nil {
		return game.Summary{}, err
	}

	for {
		current := g.agents[g.currentTurn()]
		for _, a := range g.agents {
			if a == current {
				a.Tell("Your turn.", game.WithHighlight())
			} else {
				a.Tell(fmt.Sprintf("%s is thinking...", current.Name()))
			}
		}

		heap, taken, err := g.askMove(current)
		if err != nil {
			return game.Summary{}, err
		}
		last := g.applyMove(heap, taken)

		for _, a := range g.agents {
			a.Tell(fmt.Sprintf("%s took %d from heap %d.", current.Name(), taken, heap+1))
		}
		if err := g.broadcastHeaps(); err != nil {
			return game.Summary{}, err
		}

		if last {
			winner := g.currentTurn()
			if g.misere {
				// Taking the last stick loses; the next player wins.
				winner = (winner + 1) % len(g.agents)
			}
			for i, a := range g.agents {
				if i == winner {
					a.Tell("You win!", game.WithHighlight())
				} else {
					a.Tell(fmt.Sprintf("%s wins.", g.agents[winner].Name()))
				}
			}
			return game.Summary{Winner: types.SeatID(winner + 1)}, nil
		}
		g.advanceTurn()
	}
}

// askMove asks the current player which heap to draw from and how many
// sticks to take. The chosen heap is guaranteed non-empty.
func (g *Nim) askMove(a game.Agent) (heap, taken int, err error) {
	slots, indices := g.openHeaps()
	answer, err := a.AskSlot(slots, indices, nil)
	if err != nil {
		return 0, 0, err
	}
	heap = answer.Index

	size := g.heapSize(heap)
	if size == 1 {
		return heap, 1, nil
	}
	a.Tell(fmt.Sprintf("How many sticks from heap %d?", heap+1))
	taken, err = a.AskInt(1, size)
	if err != nil {
		return 0, 0, err
	}
	return heap, taken, nil
}

// applyMove removes sticks and reports whether the table is now empty.
func (g *Nim) applyMove(heap, taken int) (empty bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.heaps[heap] -= taken
	for _, n := range g.heaps {
		if n > 0 {
			return false
		}
	}
	return true
}

// openHeaps enumerates the slot addresses of the non-empty heaps paired
// with their heap indices.
func (g *Nim) openHeaps() (slots []string, indices []int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, n := range g.heaps {
		if n > 0 {
			slots = append(slots, heapKey(i))
			indices = append(indices, i)
		}
	}
	return slots, indices
}

func (g *Nim) heapSize(heap int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.heaps[heap]
}

func (g *Nim) currentTurn() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.turn
}

func (g *Nim) advanceTurn() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.turn = (g.turn + 1) % len(g.agents)
}

// broadcastHeaps pushes the current heap rendering to every seat.
func (g *Nim) broadcastHeaps() error {
	g.mu.Lock()
	diffs := make([]types.ViewDiff, len(g.heaps))
	for i, n := range g.heaps {
		diffs[i] = types.ViewDiff{Op: types.DiffReplace, Key: heapKey(i), Value: renderHeap(n)}
	}
	g.mu.Unlock()

	for _, a := range g.agents {
		if err := a.Update(diffs); err != nil {
			return err
		}
	}
	return nil
}

// RenderView renders the full table. The viewer whose turn it is gets a
// marker; a nil viewer is a plain spectator.
func (g *Nim) RenderView(viewer *types.SeatID) string {
	g.mu.Lock()
	heaps := make([]int, len(g.heaps))
	copy(heaps, g.heaps)
	turn := g.turn
	g.mu.Unlock()

	var b strings.Builder
	b.WriteString(`<div class="nim">`)
	for i, n := range heaps {
		fmt.Fprintf(&b, `<div class="heap" data-key=%q>%s</div>`, heapKey(i), renderHeap(n))
	}
	if viewer != nil && int(*viewer) == turn+1 {
		b.WriteString(`<p class="turn">Your turn</p>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func heapKey(i int) string {
	return fmt.Sprintf("/heap/%d", i)
}

func renderHeap(n int) string {
	return strings.Repeat("|", n)
}

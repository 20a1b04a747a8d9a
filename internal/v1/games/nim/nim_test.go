package nim

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorhq/parlor/internal/v1/game"
	"github.com/parlorhq/parlor/internal/v1/types"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, 1)
	assert.Error(t, err, "needs at least two players")

	_, err = New(json.RawMessage(`{"heaps":[]}`), 2)
	assert.Error(t, err, "needs at least one heap")

	_, err = New(json.RawMessage(`{"heaps":[3,0]}`), 2)
	assert.Error(t, err, "heap sizes must be positive")

	_, err = New(json.RawMessage(`{not json`), 2)
	assert.Error(t, err)

	logic, err := New(nil, 2)
	require.NoError(t, err)
	assert.NotNil(t, logic)
}

// scripted builds a local agent answering from a canned input script.
func scripted(name, input string) (game.Agent, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return game.NewLocalAgent(types.Username(name), strings.NewReader(input), out), out
}

func TestPlay_LastStickWins(t *testing.T) {
	logic, err := New(json.RawMessage(`{"heaps":[2]}`), 2)
	require.NoError(t, err)

	// Player 1 empties the single heap on the first turn and wins.
	p1, out1 := scripted("Alice", "/heap/0\n2\n")
	p2, out2 := scripted("Bob", "")
	logic.SetAgents([]game.Agent{p1, p2})

	summary, err := logic.Play()
	require.NoError(t, err)
	assert.Equal(t, types.SeatID(1), summary.Winner)

	assert.Contains(t, out1.String(), "You win!")
	assert.Contains(t, out2.String(), "Alice wins.")
	// Every move is broadcast as a view update.
	assert.Contains(t, out2.String(), "[replace] /heap/0")
}

func TestPlay_MisereFlipsWinner(t *testing.T) {
	logic, err := New(json.RawMessage(`{"heaps":[2],"misere":true}`), 2)
	require.NoError(t, err)

	p1, _ := scripted("Alice", "/heap/0\n2\n")
	p2, _ := scripted("Bob", "")
	logic.SetAgents([]game.Agent{p1, p2})

	summary, err := logic.Play()
	require.NoError(t, err)
	assert.Equal(t, types.SeatID(2), summary.Winner)
}

func TestPlay_TurnsAlternate(t *testing.T) {
	logic, err := New(json.RawMessage(`{"heaps":[1,1]}`), 2)
	require.NoError(t, err)

	// Each heap holds one stick, so the heap choice is the whole move.
	p1, _ := scripted("Alice", "/heap/0\n")
	p2, out2 := scripted("Bob", "/heap/1\n")
	logic.SetAgents([]game.Agent{p1, p2})

	summary, err := logic.Play()
	require.NoError(t, err)
	assert.Equal(t, types.SeatID(2), summary.Winner)
	assert.Contains(t, out2.String(), "You win!")
}

func TestPlay_DisconnectAbortsGame(t *testing.T) {
	logic, err := New(json.RawMessage(`{"heaps":[3]}`), 2)
	require.NoError(t, err)

	// Player 1's input ends immediately: the ask fails and the game aborts.
	p1, _ := scripted("Alice", "")
	p2, _ := scripted("Bob", "")
	logic.SetAgents([]game.Agent{p1, p2})

	_, err = logic.Play()
	var disc *types.DisconnectedError
	require.ErrorAs(t, err, &disc)
}

func TestRenderView(t *testing.T) {
	logic, err := New(json.RawMessage(`{"heaps":[3,1]}`), 2)
	require.NoError(t, err)
	g := logic.(*Nim)

	anonymous := g.RenderView(nil)
	assert.Contains(t, anonymous, "|||")
	assert.NotContains(t, anonymous, "Your turn")

	// It is seat 1's turn at the start.
	seat1 := types.SeatID(1)
	assert.Contains(t, g.RenderView(&seat1), "Your turn")

	seat2 := types.SeatID(2)
	assert.NotContains(t, g.RenderView(&seat2), "Your turn")
}

package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorhq/parlor/internal/v1/game"
	"github.com/parlorhq/parlor/internal/v1/types"
)

// connectedAgent builds an agent over a connected session.
func connectedAgent(t *testing.T) (*NetworkAgent, *mockConn) {
	t.Helper()
	s, _ := newTestSession(t, 1, 5*time.Second)
	conn := connectSession(t, s)
	return NewNetworkAgent(s, "Alice"), conn
}

func frameType(t *testing.T, raw string) string {
	t.Helper()
	var frame struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &frame))
	return frame.Type
}

func TestNetworkAgent_Name(t *testing.T) {
	a, _ := connectedAgent(t)
	assert.Equal(t, types.Username("Alice"), a.Name())
}

func TestNetworkAgent_TellOptions(t *testing.T) {
	a, conn := connectedAgent(t)

	a.Tell("hi")
	assert.JSONEq(t, `{"type":"message","text":"hi"}`, conn.nextText(t))

	a.Tell("psst", game.WithSender("Bob"), game.WithHighlight())
	assert.JSONEq(t, `{"type":"message","text":"psst","sender":"Bob","highlight":true}`, conn.nextText(t))
}

func TestNetworkAgent_UpdateSendsBareArray(t *testing.T) {
	a, conn := connectedAgent(t)

	require.NoError(t, a.Update(nil))
	assert.JSONEq(t, `[]`, conn.nextText(t))

	require.NoError(t, a.Update([]types.ViewDiff{
		{Op: types.DiffReplace, Key: "/board/3", Value: "<b>X</b>"},
		{Op: types.DiffRemove, Key: "/hand/0"},
	}))
	assert.JSONEq(t,
		`[{"op":"replace","key":"/board/3","value":"<b>X</b>"},{"op":"remove","key":"/hand/0"}]`,
		conn.nextText(t))
}

func TestNetworkAgent_AskInt(t *testing.T) {
	a, conn := connectedAgent(t)

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := a.AskInt(1, 5)
		done <- result{n, err}
	}()

	assert.JSONEq(t, `{"type":"choice","schema":{"type":"integer","minimum":1,"maximum":5}}`, conn.nextText(t))

	// Invalid answers get an error frame; the question stays open.
	conn.send(t, "abc")
	assert.Equal(t, types.FrameTypeError, frameType(t, conn.nextText(t)))
	conn.send(t, "7")
	assert.Equal(t, types.FrameTypeError, frameType(t, conn.nextText(t)))

	conn.send(t, "3")
	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, 3, res.n)
	case <-time.After(time.Second):
		t.Fatal("AskInt never returned")
	}
}

func TestNetworkAgent_AskIntResendsOnLostTrack(t *testing.T) {
	a, conn := connectedAgent(t)

	done := make(chan int, 1)
	go func() {
		n, err := a.AskInt(1, 9)
		if err == nil {
			done <- n
		}
	}()

	question := conn.nextText(t)

	// The lost-track sentinel gets the question again, verbatim.
	conn.send(t, types.ClientLostTrack)
	assert.JSONEq(t, question, conn.nextText(t))

	conn.send(t, "2")
	select {
	case n := <-done:
		assert.Equal(t, 2, n)
	case <-time.After(time.Second):
		t.Fatal("AskInt never returned")
	}
}

func TestNetworkAgent_AskText(t *testing.T) {
	a, conn := connectedAgent(t)

	done := make(chan string, 1)
	go func() {
		answer, err := a.AskText([]string{"rock", "paper"})
		if err == nil {
			done <- answer
		}
	}()

	assert.JSONEq(t, `{"type":"choice","schema":{"type":"string","enum":["rock","paper"]}}`, conn.nextText(t))

	conn.send(t, "scissors")
	assert.Equal(t, types.FrameTypeError, frameType(t, conn.nextText(t)))

	conn.send(t, "paper")
	select {
	case answer := <-done:
		assert.Equal(t, "paper", answer)
	case <-time.After(time.Second):
		t.Fatal("AskText never returned")
	}
}

func TestNetworkAgent_AskSlot(t *testing.T) {
	a, conn := connectedAgent(t)

	done := make(chan game.SlotAnswer, 1)
	go func() {
		answer, err := a.AskSlot([]string{"/hand/0", "/hand/2"}, []int{4, 9}, []string{"pass"})
		if err == nil {
			done <- answer
		}
	}()

	assert.JSONEq(t,
		`{"type":"choice","slots":["/hand/0","/hand/2"],"special_options":["pass"]}`,
		conn.nextText(t))

	conn.send(t, "/hand/1")
	assert.Equal(t, types.FrameTypeError, frameType(t, conn.nextText(t)))

	// The answer carries the caller's index for the chosen address.
	conn.send(t, "/hand/2")
	select {
	case answer := <-done:
		assert.Equal(t, game.SlotAnswer{Index: 9}, answer)
	case <-time.After(time.Second):
		t.Fatal("AskSlot never returned")
	}
}

func TestNetworkAgent_AskSlotSpecial(t *testing.T) {
	a, conn := connectedAgent(t)

	done := make(chan game.SlotAnswer, 1)
	go func() {
		answer, err := a.AskSlot([]string{"/a"}, nil, []string{"pass", "concede"})
		if err == nil {
			done <- answer
		}
	}()

	conn.nextText(t)
	conn.send(t, "concede")

	select {
	case answer := <-done:
		assert.True(t, answer.IsSpecial)
		assert.Equal(t, "concede", answer.Special)
	case <-time.After(time.Second):
		t.Fatal("AskSlot never returned")
	}
}

func TestNetworkAgent_AskBool(t *testing.T) {
	a, conn := connectedAgent(t)

	done := make(chan bool, 1)
	go func() {
		ok, err := a.AskBool("Play again?")
		if err == nil {
			done <- ok
		}
	}()

	assert.JSONEq(t, `{"type":"message","text":"Play again?"}`, conn.nextText(t))
	assert.JSONEq(t, `{"type":"choice","schema":{"type":"string","enum":["yes","no"]}}`, conn.nextText(t))

	conn.send(t, "yes")
	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("AskBool never returned")
	}
}

func TestNetworkAgent_AskPropagatesInterrupt(t *testing.T) {
	a, conn := connectedAgent(t)

	done := make(chan error, 1)
	go func() {
		_, err := a.AskInt(1, 5)
		done <- err
	}()

	conn.nextText(t)
	a.Session().Interrupt("shutdown")

	select {
	case err := <-done:
		var disc *types.DisconnectedError
		require.ErrorAs(t, err, &disc)
		assert.True(t, disc.Interrupted())
	case <-time.After(time.Second):
		t.Fatal("AskInt did not observe the interrupt")
	}
}

func TestNetworkAgent_OpenChat(t *testing.T) {
	a, conn := connectedAgent(t)

	stream, err := a.OpenChat()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"chatcontrol","set":"on"}`, conn.nextText(t))

	// Only one chat per seat.
	_, err = a.OpenChat()
	require.Error(t, err)

	// Slash frames become chat lines; plain frames stay game answers.
	conn.send(t, "/hello there")
	line, ok := stream.Next()
	require.True(t, ok)
	assert.Equal(t, "hello there", line)

	answered := make(chan string, 1)
	go func() {
		msg, err := a.Session().GetSync()
		if err == nil {
			answered <- msg
		}
	}()
	conn.send(t, "e4")
	select {
	case msg := <-answered:
		assert.Equal(t, "e4", msg)
	case <-time.After(time.Second):
		t.Fatal("plain frame never reached the inbound queue")
	}

	stream.Close()
	assert.JSONEq(t, `{"type":"chatcontrol","set":"off"}`, conn.nextText(t))
	_, ok = stream.Next()
	assert.False(t, ok)

	// Closing uninstalls the interceptor; a fresh chat can open.
	stream2, err := a.OpenChat()
	require.NoError(t, err)
	stream2.Close()
}

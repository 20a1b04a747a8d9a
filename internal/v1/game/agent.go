// Package game defines the worker-facing contracts a game implementation
// consumes: the Agent capability set for messaging and questioning one
// player, the Logic entry points the room worker drives, and the chat
// fan-out spanning a set of agents.
package game

import (
	"github.com/parlorhq/parlor/internal/v1/types"
)

// TellOption decorates an outgoing message frame.
type TellOption func(*types.MessageFrame)

// WithSender attributes the message to a named sender (chat).
func WithSender(name types.Username) TellOption {
	return func(f *types.MessageFrame) { f.Sender = name }
}

// WithHighlight asks the client UI to emphasize the message.
func WithHighlight() TellOption {
	return func(f *types.MessageFrame) { f.Highlight = true }
}

// SlotAnswer is the result of a slot choice: either the index paired with
// the chosen slot address, or one of the special string options.
type SlotAnswer struct {
	Index     int
	Special   string
	IsSpecial bool
}

// ChatStream yields chat lines typed by one player. Next blocks until a
// line arrives or the stream is closed.
type ChatStream interface {
	Next() (line string, ok bool)
	Close()
}

// Agent is the capability set a game uses to talk to one seat. All methods
// are synchronous; the Ask methods block until a valid answer has been
// read or the underlying session fails with a DisconnectedError or
// TimeoutError.
type Agent interface {
	// Name is the display name of the player behind the seat.
	Name() types.Username

	// Tell enqueues a message frame and returns immediately.
	Tell(text string, opts ...TellOption)

	// Update enqueues a view-update frame carrying an ordered list of diff
	// operations. An update enqueued before a question is delivered before
	// it, so clients can paint state before being prompted.
	Update(diffs []types.ViewDiff) error

	// AskInt asks for an integer in [minimum, maximum].
	AskInt(minimum, maximum int) (int, error)

	// AskText asks for one of the given options.
	AskText(options []string) (string, error)

	// AskSlot asks for one of the enumerated slot addresses or one of the
	// special options. The answer carries indices[i] for the chosen
	// address (the position itself when indices is nil).
	AskSlot(slots []string, indices []int, specials []string) (SlotAnswer, error)

	// AskBool tells the prompt and asks for yes or no.
	AskBool(prompt string) (bool, error)

	// OpenChat installs the chat interceptor for this seat and returns the
	// stream of chat lines. Closing the stream uninstalls it. At most one
	// open chat per seat.
	OpenChat() (ChatStream, error)
}

package game

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/parlorhq/parlor/internal/v1/types"
)

// LocalAgent drives a seat from a text terminal. It backs the "human"
// agent kind and doubles as the test double for the Agent contract: the
// same ask loops as the network agent, minus the wire.
type LocalAgent struct {
	name types.Username

	mu  sync.Mutex
	in  *bufio.Scanner
	out io.Writer
}

// NewLocalAgent creates an agent reading answers from in and printing to
// out.
func NewLocalAgent(name types.Username, in io.Reader, out io.Writer) *LocalAgent {
	return &LocalAgent{name: name, in: bufio.NewScanner(in), out: out}
}

// NewStdioAgent creates a LocalAgent on the process stdio.
func NewStdioAgent(name types.Username) *LocalAgent {
	return NewLocalAgent(name, os.Stdin, os.Stdout)
}

func (a *LocalAgent) Name() types.Username { return a.name }

func (a *LocalAgent) Tell(text string, opts ...TellOption) {
	frame := types.NewMessage(text)
	for _, opt := range opts {
		opt(&frame)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if frame.Sender != "" {
		fmt.Fprintf(a.out, "<%s> %s\n", frame.Sender, frame.Text)
	} else {
		fmt.Fprintln(a.out, frame.Text)
	}
}

func (a *LocalAgent) Update(diffs []types.ViewDiff) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, diff := range diffs {
		fmt.Fprintf(a.out, "[%s] %s\n", diff.Op, diff.Key)
	}
	return nil
}

// readLine blocks for the next input line. EOF surfaces as an interrupt so
// games unwind the same way they do when a network seat is gone for good.
func (a *LocalAgent) readLine(prompt string) (string, error) {
	a.mu.Lock()
	fmt.Fprint(a.out, prompt)
	a.mu.Unlock()
	if !a.in.Scan() {
		return "", &types.DisconnectedError{State: types.StateInterrupted}
	}
	return a.in.Text(), nil
}

func (a *LocalAgent) AskInt(minimum, maximum int) (int, error) {
	for {
		line, err := a.readLine(fmt.Sprintf("Enter a number between %d and %d: ", minimum, maximum))
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(line)
		if err != nil || n < minimum || n > maximum {
			a.Tell(fmt.Sprintf("%q is not a number between %d and %d, please try again", line, minimum, maximum))
			continue
		}
		return n, nil
	}
}

func (a *LocalAgent) AskText(options []string) (string, error) {
	for {
		line, err := a.readLine(fmt.Sprintf("Choose one of %v: ", options))
		if err != nil {
			return "", err
		}
		for _, option := range options {
			if line == option {
				return option, nil
			}
		}
		a.Tell(fmt.Sprintf("value %q not allowed, please try again", line))
	}
}

func (a *LocalAgent) AskSlot(slots []string, indices []int, specials []string) (SlotAnswer, error) {
	for {
		line, err := a.readLine(fmt.Sprintf("Choose one of %v%v: ", slots, specials))
		if err != nil {
			return SlotAnswer{}, err
		}
		for i, slot := range slots {
			if line != slot {
				continue
			}
			if indices != nil {
				i = indices[i]
			}
			return SlotAnswer{Index: i}, nil
		}
		for _, special := range specials {
			if line == special {
				return SlotAnswer{Special: special, IsSpecial: true}, nil
			}
		}
		a.Tell(fmt.Sprintf("%q is not a listed choice, please try again", line))
	}
}

func (a *LocalAgent) AskBool(prompt string) (bool, error) {
	a.Tell(prompt)
	answer, err := a.AskText([]string{"yes", "no"})
	if err != nil {
		return false, err
	}
	return answer == "yes", nil
}

// OpenChat returns a stream that never yields: a local seat has no chat
// input channel of its own. It still participates as a chat recipient via
// Tell.
func (a *LocalAgent) OpenChat() (ChatStream, error) {
	return newIdleChatStream(), nil
}

type idleChatStream struct {
	done chan struct{}
	once sync.Once
}

func newIdleChatStream() *idleChatStream {
	return &idleChatStream{done: make(chan struct{})}
}

func (s *idleChatStream) Next() (string, bool) {
	<-s.done
	return "", false
}

func (s *idleChatStream) Close() {
	s.once.Do(func() { close(s.done) })
}

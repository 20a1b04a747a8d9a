package session

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/parlorhq/parlor/internal/v1/game"
	"github.com/parlorhq/parlor/internal/v1/metrics"
	"github.com/parlorhq/parlor/internal/v1/types"
)

// NetworkAgent adapts a Session to the game.Agent contract: synchronous
// ask/tell calls marshaled as question and answer frames. It is the only
// thing the worker holds onto for a network seat.
type NetworkAgent struct {
	session *Session
	name    types.Username
}

// NewNetworkAgent binds an agent to a connected session. The name is the
// username claimed on the seat.
func NewNetworkAgent(s *Session, name types.Username) *NetworkAgent {
	return &NetworkAgent{session: s, name: name}
}

func (a *NetworkAgent) Name() types.Username { return a.name }

// Session exposes the underlying session, mainly for tests.
func (a *NetworkAgent) Session() *Session { return a.session }

func (a *NetworkAgent) Tell(text string, opts ...game.TellOption) {
	frame := types.NewMessage(text)
	for _, opt := range opts {
		opt(&frame)
	}
	_ = a.session.SendSync(frame)
}

func (a *NetworkAgent) Update(diffs []types.ViewDiff) error {
	if diffs == nil {
		diffs = []types.ViewDiff{}
	}
	// View updates travel as a bare array, not a tagged object.
	return a.session.SendSync(diffs)
}

// askWithValidation runs the question protocol: send the question once,
// then receive until an answer validates. The lost-track sentinel gets the
// question resent; an invalid answer gets an error frame and the loop
// keeps waiting. Session errors (interrupt, reconnect timeout) propagate.
func askWithValidation[T any](s *Session, kind string, question any, validate func(string) (T, error)) (T, error) {
	var zero T
	metrics.QuestionsTotal.WithLabelValues(kind).Inc()
	timer := prometheus.NewTimer(metrics.QuestionDuration.WithLabelValues(kind))
	defer timer.ObserveDuration()

	if err := s.SendSync(question); err != nil {
		return zero, err
	}
	for {
		answer, err := s.GetSync()
		if err != nil {
			return zero, err
		}
		if answer == types.ClientLostTrack {
			if err := s.SendSync(question); err != nil {
				return zero, err
			}
			continue
		}
		value, verr := validate(answer)
		if verr != nil {
			_ = s.SendSync(types.NewError(verr.Error()))
			continue
		}
		return value, nil
	}
}

func (a *NetworkAgent) AskInt(minimum, maximum int) (int, error) {
	question := types.NewIntChoice(minimum, maximum)
	return askWithValidation(a.session, "int", question, func(answer string) (int, error) {
		n, err := strconv.Atoi(answer)
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", answer)
		}
		if n < minimum {
			return 0, fmt.Errorf("please choose a number of at least %d", minimum)
		}
		if n > maximum {
			return 0, fmt.Errorf("please choose a number of at most %d", maximum)
		}
		return n, nil
	})
}

func (a *NetworkAgent) AskText(options []string) (string, error) {
	question := types.NewTextChoice(options)
	return askWithValidation(a.session, "text", question, func(answer string) (string, error) {
		for _, option := range options {
			if answer == option {
				return option, nil
			}
		}
		return "", fmt.Errorf("value %q not allowed", answer)
	})
}

func (a *NetworkAgent) AskSlot(slots []string, indices []int, specials []string) (game.SlotAnswer, error) {
	question := types.NewSlotChoice(slots, specials)
	byAddress := make(map[string]int, len(slots))
	for i, slot := range slots {
		if indices != nil {
			byAddress[slot] = indices[i]
		} else {
			byAddress[slot] = i
		}
	}
	return askWithValidation(a.session, "slot", question, func(answer string) (game.SlotAnswer, error) {
		if index, ok := byAddress[answer]; ok {
			return game.SlotAnswer{Index: index}, nil
		}
		for _, special := range specials {
			if answer == special {
				return game.SlotAnswer{Special: special, IsSpecial: true}, nil
			}
		}
		return game.SlotAnswer{}, fmt.Errorf("invalid choice, please try again")
	})
}

func (a *NetworkAgent) AskBool(prompt string) (bool, error) {
	a.Tell(prompt)
	answer, err := a.AskText([]string{"yes", "no"})
	if err != nil {
		return false, err
	}
	return answer == "yes", nil
}

// OpenChat installs the chat interceptor on the session: inbound frames
// starting with "/" become chat lines, everything else still reaches the
// inbound queue as a game answer. The client is told to enable its chat UI.
func (a *NetworkAgent) OpenChat() (game.ChatStream, error) {
	stream := &chatStream{
		session: a.session,
		lines:   make(chan string, 16),
		done:    make(chan struct{}),
	}
	if err := a.session.SetInterceptor(stream.intercept); err != nil {
		return nil, err
	}
	_ = a.session.SendSync(types.NewChatControl(true, ""))
	return stream, nil
}

type chatStream struct {
	session *Session
	lines   chan string
	done    chan struct{}
	once    sync.Once
}

// intercept runs on the read pump; it must not block, so a full stream
// drops the line rather than stalling the connection.
func (cs *chatStream) intercept(msg string) bool {
	if !strings.HasPrefix(msg, "/") {
		return false
	}
	select {
	case cs.lines <- strings.TrimPrefix(msg, "/"):
	case <-cs.done:
	default:
	}
	return true
}

func (cs *chatStream) Next() (string, bool) {
	select {
	case line := <-cs.lines:
		return line, true
	case <-cs.done:
		// Drain lines that raced the close.
		select {
		case line := <-cs.lines:
			return line, true
		default:
			return "", false
		}
	}
}

func (cs *chatStream) Close() {
	cs.once.Do(func() {
		cs.session.ClearInterceptor()
		close(cs.done)
		_ = cs.session.SendSync(types.NewChatControl(false, ""))
	})
}

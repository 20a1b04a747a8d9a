package game

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/v1/logging"
	"github.com/parlorhq/parlor/internal/v1/metrics"
)

// ChatFanout spans a chat over a set of agents: every line one member
// types is told to every other member, attributed to the sender. Chat
// lines travel out of band, so a player can converse and answer questions
// concurrently.
type ChatFanout struct {
	members []Agent
	streams []ChatStream
	wg      sync.WaitGroup
}

// OpenChat opens every member's chat stream and starts one forwarding
// goroutine per member. On any failure the already-opened streams are
// closed again and the error is returned.
func OpenChat(members []Agent) (*ChatFanout, error) {
	c := &ChatFanout{members: members}
	for _, member := range members {
		stream, err := member.OpenChat()
		if err != nil {
			for _, open := range c.streams {
				open.Close()
			}
			return nil, err
		}
		c.streams = append(c.streams, stream)
	}

	for i, stream := range c.streams {
		c.wg.Add(1)
		go func(sender int, stream ChatStream) {
			defer c.wg.Done()
			c.forward(sender, stream)
		}(i, stream)
	}
	return c, nil
}

func (c *ChatFanout) forward(sender int, stream ChatStream) {
	name := c.members[sender].Name()
	for {
		line, ok := stream.Next()
		if !ok {
			return
		}
		metrics.ChatMessages.Inc()
		logging.Debug(context.Background(), "Chat line",
			zap.String("sender", string(name)))
		for i, member := range c.members {
			if i == sender {
				continue
			}
			member.Tell(line, WithSender(name))
		}
	}
}

// Close closes every member stream (uninstalling the interceptors) and
// waits for the forwarding goroutines to drain.
func (c *ChatFanout) Close() {
	for _, stream := range c.streams {
		stream.Close()
	}
	c.wg.Wait()
}

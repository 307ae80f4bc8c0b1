// Package completiontest provides a scripted completion.Client for tests.
package completiontest

import (
	"context"
	"errors"
	"sync"

	"github.com/oslianyabel/basic-wa-bot/pkg/completion"
	"github.com/oslianyabel/basic-wa-bot/pkg/message"
)

// ErrScriptExhausted is returned when Complete is called more times than
// there are scripted steps
var ErrScriptExhausted = errors.New("completiontest: no scripted result left")

// Step is one scripted completion
type Step struct {
	Result *completion.Result
	Err    error
	// Block, when set, delays the step until it is closed or the context ends
	Block <-chan struct{}
}

// Client replays scripted steps in order and records every request
type Client struct {
	mu       sync.Mutex
	steps    []Step
	requests []completion.Request
	// Repeat replays the last step once the script is exhausted
	Repeat bool
}

// New creates a Client with the given steps
func New(steps ...Step) *Client {
	return &Client{steps: steps}
}

// Text is a step answering with plain text
func Text(text string) Step {
	return Step{Result: &completion.Result{ID: "resp", Items: []message.Item{
		message.PlainMessage{ID: "msg", Text: text},
	}}}
}

// Items is a step answering with the given output items
func Items(items ...message.Item) Step {
	return Step{Result: &completion.Result{ID: "resp", Items: items}}
}

// Fail is a step failing with err
func Fail(err error) Step {
	return Step{Err: &completion.TransportError{Provider: "test", Err: err}}
}

func (c *Client) Provider() string {
	return "test"
}

func (c *Client) Complete(ctx context.Context, request completion.Request) (*completion.Result, error) {
	c.mu.Lock()
	c.requests = append(c.requests, request)
	idx := len(c.requests) - 1
	var step Step
	switch {
	case idx < len(c.steps):
		step = c.steps[idx]
	case c.Repeat && len(c.steps) > 0:
		step = c.steps[len(c.steps)-1]
	default:
		c.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	c.mu.Unlock()

	if step.Block != nil {
		select {
		case <-step.Block:
		case <-ctx.Done():
			return nil, &completion.TransportError{Provider: "test", Err: ctx.Err()}
		}
	}
	return step.Result, step.Err
}

// Calls returns the number of Complete calls
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// Requests returns a copy of the recorded requests
func (c *Client) Requests() []completion.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]completion.Request, len(c.requests))
	copy(out, c.requests)
	return out
}

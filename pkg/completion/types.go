package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/oslianyabel/basic-wa-bot/pkg/message"
)

// Client produces a completion for a conversation
type Client interface {
	// Complete makes a single completion call. Errors are returned as-is to
	// the caller; the client never retries.
	Complete(ctx context.Context, request Request) (*Result, error)

	// Provider returns the provider name
	Provider() string
}

// ToolSchema describes a tool offered to the model. It is forwarded verbatim.
type ToolSchema struct {
	Type        string                 `json:"type"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// Request contains the parameters of a completion call
type Request struct {
	Model           string
	Input           []message.Message
	Tools           []ToolSchema
	Verbosity       string
	ReasoningEffort string
}

// Result is the ordered output of a completion call
type Result struct {
	ID    string
	Items []message.Item
}

// Text returns the first assistant text of the result
func (r *Result) Text() (string, bool) {
	if r == nil {
		return "", false
	}
	return message.FirstText(r.Items)
}

// Outcome is delivered by CompleteAsync
type Outcome struct {
	Result *Result
	Err    error
}

// CompleteAsync runs Complete on its own goroutine. The channel receives
// exactly one Outcome and is then closed.
func CompleteAsync(ctx context.Context, client Client, request Request) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		result, err := client.Complete(ctx, request)
		out <- Outcome{Result: result, Err: err}
	}()
	return out
}

// TransportError wraps any failure of the remote completion call
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s completion failed: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Generation controls used for the gpt-5 family
const (
	VerbosityLow = "low"
	EffortLow    = "low"
)

// ApplyModelControls sets the low-verbosity, low-effort tier when the model
// supports it
func ApplyModelControls(request *Request) {
	if strings.HasPrefix(request.Model, "gpt-5") {
		request.Verbosity = VerbosityLow
		request.ReasoningEffort = EffortLow
	}
}

package agent

import (
	"errors"

	"github.com/oslianyabel/basic-wa-bot/pkg/completion"
)

// FallbackAnswer is returned when the final completion has no text
const FallbackAnswer = "No Answer"

// ApologyMessage is sent to the user after a failed run
const ApologyMessage = "Ha ocurrido un error y el chat fue reiniciado. Por favor, comencemos de nuevo"

// DefaultMaxRounds caps completion rounds per run
const DefaultMaxRounds = 25

// ErrMaxRoundsExceeded is returned when the model keeps requesting tools past
// the round cap
var ErrMaxRoundsExceeded = errors.New("maximum completion rounds exceeded")

// State is a step of the orchestration loop
type State string

const (
	StateIdle               State = "idle"
	StateAwaitingCompletion State = "awaiting_completion"
	StateDispatchingTools   State = "dispatching_tools"
	StateFinished           State = "finished"
	StateFailed             State = "failed"
)

// RunOptions tunes a single run
type RunOptions struct {
	// Tools overrides the registry schemas sent with each request. An empty
	// non-nil slice sends no tools.
	Tools []completion.ToolSchema
	// OnReasoning receives the reasoning summaries of rounds that request tools
	OnReasoning func(summaries []string)
	// OnState observes state transitions
	OnState func(state State)
}

// RunOutcome is delivered by RunAsync
type RunOutcome struct {
	Reply string
	Err   error
}

// Reply is delivered by ProcessAsync
type Reply struct {
	Text string
	OK   bool
	// Busy is set when Text is a wait notice
	Busy bool
}

package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/oslianyabel/basic-wa-bot/internal/observability"
	"github.com/oslianyabel/basic-wa-bot/internal/tracing"
	"github.com/oslianyabel/basic-wa-bot/pkg/completion"
	"github.com/oslianyabel/basic-wa-bot/pkg/conversation"
	"github.com/oslianyabel/basic-wa-bot/pkg/message"
	"github.com/oslianyabel/basic-wa-bot/pkg/toolexecutor"
)

// Agent runs the completion loop for one user at a time
type Agent struct {
	store             *conversation.Store
	client            completion.Client
	dispatcher        *toolexecutor.Dispatcher
	registry          *toolexecutor.Registry
	model             string
	maxRounds         int
	completionTimeout time.Duration
	logger            zerolog.Logger
}

// Config holds agent configuration
type Config struct {
	Store      *conversation.Store
	Client     completion.Client
	Dispatcher *toolexecutor.Dispatcher
	// Registry provides the tool schemas sent with each request
	Registry *toolexecutor.Registry
	Model    string
	// MaxRounds caps completion rounds per run; 0 means unbounded
	MaxRounds int
	// CompletionTimeout bounds each completion call; 0 means unbounded
	CompletionTimeout time.Duration
	Logger            zerolog.Logger
}

// New creates a new Agent
func New(cfg Config) (*Agent, error) {
	observability.EnsureRegistered()

	if cfg.Store == nil {
		return nil, fmt.Errorf("conversation store is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("completion client is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.MaxRounds < 0 {
		return nil, fmt.Errorf("max rounds cannot be negative")
	}

	registry := cfg.Registry
	if registry == nil {
		registry = toolexecutor.NewRegistry()
	}
	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = toolexecutor.NewDispatcher(registry, toolexecutor.DefaultDispatcherOptions())
	}

	return &Agent{
		store:             cfg.Store,
		client:            cfg.Client,
		dispatcher:        dispatcher,
		registry:          registry,
		model:             cfg.Model,
		maxRounds:         cfg.MaxRounds,
		completionTimeout: cfg.CompletionTimeout,
		logger:            cfg.Logger,
	}, nil
}

// Store returns the conversation store the agent writes to
func (a *Agent) Store() *conversation.Store {
	return a.store
}

// Run appends text as a user turn and loops until the model answers without
// requesting tools. The answer is appended to the history and returned.
func (a *Agent) Run(ctx context.Context, userID, text string, opts RunOptions) (string, error) {
	if tracing.GetRunID(ctx) == "" {
		ctx = tracing.NewRunContext(ctx, userID)
	}
	logger := tracing.LoggerFromContext(ctx, a.logger)

	startTime := time.Now()
	rounds, reply, err := a.run(ctx, logger, userID, text, opts)
	duration := time.Since(startTime)
	observability.RecordAgentRun(a.client.Provider(), duration, rounds, err == nil)

	if err != nil {
		setState(opts, StateFailed)
		logger.Error().Err(err).Int("rounds", rounds).Dur("duration", duration).Msg("Agent run failed")
		return "", err
	}

	logger.Debug().Int("rounds", rounds).Dur("duration", duration).Msg("Agent run finished")
	return reply, nil
}

// RunAsync runs Run on its own goroutine. The channel receives exactly one
// outcome and is then closed.
func (a *Agent) RunAsync(ctx context.Context, userID, text string, opts RunOptions) <-chan RunOutcome {
	out := make(chan RunOutcome, 1)
	go func() {
		defer close(out)
		reply, err := a.Run(ctx, userID, text, opts)
		out <- RunOutcome{Reply: reply, Err: err}
	}()
	return out
}

func (a *Agent) run(ctx context.Context, logger zerolog.Logger, userID, text string, opts RunOptions) (int, string, error) {
	if err := a.store.Append(userID, text, message.RoleUser); err != nil {
		return 0, "", fmt.Errorf("failed to append user message: %w", err)
	}

	tools := opts.Tools
	if tools == nil {
		tools = a.registry.Schemas()
	}

	rounds := 0
	for {
		if a.maxRounds > 0 && rounds >= a.maxRounds {
			return rounds, "", fmt.Errorf("%w (%d)", ErrMaxRoundsExceeded, a.maxRounds)
		}
		rounds++

		setState(opts, StateAwaitingCompletion)
		result, err := a.complete(ctx, userID, tools)
		if err != nil {
			return rounds, "", err
		}
		a.store.RecordCompletion(userID, result)

		functions, custom := message.Partition(result.Items)
		if len(functions) == 0 && len(custom) == 0 {
			break
		}

		if opts.OnReasoning != nil {
			if summaries := message.ReasoningSummaries(result.Items); len(summaries) > 0 {
				opts.OnReasoning(summaries)
			}
		}

		setState(opts, StateDispatchingTools)
		logger.Debug().
			Int("round", rounds).
			Int("function_calls", len(functions)).
			Int("custom_calls", len(custom)).
			Msg("Dispatching tool calls")

		for _, batch := range [][]message.ToolCall{functions, custom} {
			if len(batch) == 0 {
				continue
			}
			for _, res := range a.dispatcher.Dispatch(ctx, userID, batch) {
				a.store.AppendToolOutput(userID, res)
			}
		}
	}

	setState(opts, StateFinished)
	a.store.PurgeToolBuffer(userID)

	reply, ok := a.store.LastResult(userID).Text()
	if !ok {
		reply = FallbackAnswer
	}
	if err := a.store.Append(userID, reply, message.RoleAssistant); err != nil {
		return rounds, "", fmt.Errorf("failed to append assistant message: %w", err)
	}

	return rounds, reply, nil
}

func (a *Agent) complete(ctx context.Context, userID string, tools []completion.ToolSchema) (*completion.Result, error) {
	req := completion.Request{
		Model: a.model,
		Input: a.store.Get(userID, true),
	}
	if len(tools) > 0 {
		req.Tools = tools
	}
	completion.ApplyModelControls(&req)

	callCtx := ctx
	if a.completionTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.completionTimeout)
		defer cancel()
	}

	startTime := time.Now()
	result, err := a.client.Complete(callCtx, req)
	observability.RecordCompletion(a.client.Provider(), time.Since(startTime), err == nil)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &completion.Result{}
	}
	return result, nil
}

func setState(opts RunOptions, state State) {
	if opts.OnState != nil {
		opts.OnState(state)
	}
}

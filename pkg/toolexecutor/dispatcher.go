package toolexecutor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"github.com/xeipuuv/gojsonschema"

	"github.com/oslianyabel/basic-wa-bot/internal/errtrack"
	"github.com/oslianyabel/basic-wa-bot/internal/observability"
	"github.com/oslianyabel/basic-wa-bot/pkg/message"
)

// ToolErrorMessage replaces the output of any failed tool call
const ToolErrorMessage = "Ha ocurrido un error inesperado"

// DefaultToolTimeout bounds a single tool call
const DefaultToolTimeout = 30 * time.Second

// DefaultUserKey is the argument name carrying the caller's user ID
const DefaultUserKey = "phone"

// customInputKey wraps the raw input of a custom tool call
const customInputKey = "tool_input"

// ToolExecutionError describes why a tool call failed
type ToolExecutionError struct {
	Tool   string
	CallID string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s (call %s) failed: %v", e.Tool, e.CallID, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// Outcome is the typed result of one tool call
type Outcome struct {
	Output string
	Err    error
}

// Result flattens the outcome into the value recorded in the conversation
func (o Outcome) Result(call message.ToolCall) message.ToolResult {
	output := o.Output
	if o.Err != nil {
		output = ToolErrorMessage
	}
	return message.ToolResult{CallID: call.ID, Output: output, Custom: call.Kind == message.ToolKindCustom}
}

// DispatcherOptions configures a Dispatcher
type DispatcherOptions struct {
	// Timeout bounds each call; 0 disables it
	Timeout time.Duration
	// UserKey is the argument the user ID is injected under
	UserKey string
	// MaxConcurrency caps parallel calls within a batch; 0 means one goroutine per call
	MaxConcurrency int
	Logger         zerolog.Logger
}

// DefaultDispatcherOptions returns the default options
func DefaultDispatcherOptions() DispatcherOptions {
	return DispatcherOptions{
		Timeout: DefaultToolTimeout,
		UserKey: DefaultUserKey,
		Logger:  zerolog.Nop(),
	}
}

// Dispatcher runs batches of tool calls against a Registry
type Dispatcher struct {
	registry *Registry
	opts     DispatcherOptions
	logger   zerolog.Logger
}

// NewDispatcher creates a Dispatcher
func NewDispatcher(registry *Registry, opts DispatcherOptions) *Dispatcher {
	observability.EnsureRegistered()
	if opts.UserKey == "" {
		opts.UserKey = DefaultUserKey
	}
	return &Dispatcher{
		registry: registry,
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "tool_dispatcher").Logger(),
	}
}

// Dispatch runs all calls concurrently and returns one result per call, in
// input order
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, calls []message.ToolCall) []message.ToolResult {
	outcomes := d.Execute(ctx, userID, calls)
	results := make([]message.ToolResult, len(calls))
	for i, call := range calls {
		results[i] = outcomes[i].Result(call)
	}
	return results
}

// Execute runs all calls concurrently and returns their typed outcomes, in
// input order
func (d *Dispatcher) Execute(ctx context.Context, userID string, calls []message.ToolCall) []Outcome {
	outcomes := make([]Outcome, len(calls))
	if len(calls) == 0 {
		return outcomes
	}

	p := pool.New()
	if d.opts.MaxConcurrency > 0 {
		p = p.WithMaxGoroutines(d.opts.MaxConcurrency)
	}
	for i, call := range calls {
		p.Go(func() {
			outcomes[i] = d.run(ctx, userID, call)
		})
	}
	p.Wait()

	return outcomes
}

func (d *Dispatcher) run(ctx context.Context, userID string, call message.ToolCall) Outcome {
	startTime := time.Now()
	output, err := d.execute(ctx, userID, call)
	duration := time.Since(startTime)

	if err != nil {
		execErr := &ToolExecutionError{Tool: call.Name, CallID: call.ID, Err: err}
		d.logger.Error().
			Err(err).
			Str("tool", call.Name).
			Str("call_id", call.ID).
			Str("user_id", userID).
			Dur("duration", duration).
			Msg("Tool execution failed")
		observability.RecordToolExecution(call.Name, duration, false)
		return Outcome{Err: execErr}
	}

	d.logger.Debug().
		Str("tool", call.Name).
		Str("call_id", call.ID).
		Dur("duration", duration).
		Msg("Tool execution completed")
	observability.RecordToolExecution(call.Name, duration, true)
	return Outcome{Output: output}
}

func (d *Dispatcher) execute(ctx context.Context, userID string, call message.ToolCall) (string, error) {
	tool, schema := d.registry.lookup(call.Name)
	if tool == nil {
		return "", fmt.Errorf("tool not found: %s", call.Name)
	}

	args, err := d.arguments(schema, userID, call)
	if err != nil {
		return "", err
	}

	execCtx := ctx
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	type handlerResult struct {
		output string
		err    error
	}
	resultChan := make(chan handlerResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr := fmt.Errorf("tool panicked: %v", r)
				errtrack.CaptureError(panicErr, map[string]string{"tool": call.Name})
				resultChan <- handlerResult{err: panicErr}
			}
		}()
		output, err := tool.Handler(execCtx, args)
		resultChan <- handlerResult{output: output, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.output, res.err
	case <-execCtx.Done():
		if d.opts.Timeout > 0 && execCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("tool execution timeout after %v", d.opts.Timeout)
		}
		return "", fmt.Errorf("tool execution cancelled: %w", execCtx.Err())
	}
}

// arguments builds the handler input for call
func (d *Dispatcher) arguments(schema *gojsonschema.Schema, userID string, call message.ToolCall) (map[string]interface{}, error) {
	if call.Kind == message.ToolKindCustom {
		return map[string]interface{}{customInputKey: call.Input}, nil
	}

	args := map[string]interface{}{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return nil, fmt.Errorf("failed to decode arguments: %w", err)
		}
		if args == nil {
			args = map[string]interface{}{}
		}
	}

	if err := validateArguments(schema, args); err != nil {
		return nil, fmt.Errorf("parameter validation failed: %w", err)
	}

	args[d.opts.UserKey] = userID
	return args, nil
}

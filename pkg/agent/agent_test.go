package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oslianyabel/basic-wa-bot/pkg/completion"
	"github.com/oslianyabel/basic-wa-bot/pkg/completion/completiontest"
	"github.com/oslianyabel/basic-wa-bot/pkg/conversation"
	"github.com/oslianyabel/basic-wa-bot/pkg/message"
	"github.com/oslianyabel/basic-wa-bot/pkg/toolexecutor"
)

const testPrompt = "test prompt"

func setupTestAgent(t *testing.T, client completion.Client, maxRounds int) (*Agent, *conversation.Store) {
	t.Helper()

	reg := toolexecutor.NewRegistry()
	require.NoError(t, reg.Register(toolexecutor.Tool{
		Name:        "fast_user_check",
		Description: "Comprueba si un usuario existe",
		Parameters:  map[string]interface{}{},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return "registered:" + args["phone"].(string), nil
		},
	}))
	require.NoError(t, reg.Register(toolexecutor.Tool{
		Name:        "notes",
		Description: "free text",
		Custom:      true,
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return "noted", nil
		},
	}))

	store := conversation.NewStore(testPrompt)
	a, err := New(Config{
		Store:      store,
		Client:     client,
		Registry:   reg,
		Dispatcher: toolexecutor.NewDispatcher(reg, toolexecutor.DefaultDispatcherOptions()),
		Model:      "gpt-5",
		MaxRounds:  maxRounds,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	return a, store
}

func TestNew(t *testing.T) {
	store := conversation.NewStore(testPrompt)
	client := completiontest.New()

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing store", cfg: Config{Client: client, Model: "m"}},
		{name: "missing client", cfg: Config{Store: store, Model: "m"}},
		{name: "missing model", cfg: Config{Store: store, Client: client}},
		{name: "negative rounds", cfg: Config{Store: store, Client: client, Model: "m", MaxRounds: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestAgentRun_NoToolCalls(t *testing.T) {
	client := completiontest.New(completiontest.Text("  Hola, ¿en qué puedo ayudarte?  "))
	a, store := setupTestAgent(t, client, DefaultMaxRounds)

	var states []State
	reply, err := a.Run(context.Background(), "u1", "hola", RunOptions{
		OnState: func(s State) { states = append(states, s) },
	})
	require.NoError(t, err)

	assert.Equal(t, "  Hola, ¿en qué puedo ayudarte?  ", reply)
	assert.Equal(t, []State{StateAwaitingCompletion, StateFinished}, states)
	assert.Equal(t, 1, client.Calls())

	history := store.Get("u1", true)
	require.Len(t, history, 3)
	assert.Equal(t, message.RoleUser, history[1].Role)
	assert.Equal(t, message.RoleAssistant, history[2].Role)
	assert.Equal(t, reply, history[2].Content)
	assert.Zero(t, store.BufferLen("u1"))
}

func TestAgentRun_Request(t *testing.T) {
	client := completiontest.New(completiontest.Text("ok"))
	a, _ := setupTestAgent(t, client, DefaultMaxRounds)

	_, err := a.Run(context.Background(), "u1", "hola", RunOptions{})
	require.NoError(t, err)

	req := client.Requests()[0]
	assert.Equal(t, "gpt-5", req.Model)
	assert.Equal(t, completion.VerbosityLow, req.Verbosity)
	assert.Equal(t, completion.EffortLow, req.ReasoningEffort)
	require.Len(t, req.Input, 2)
	assert.Equal(t, testPrompt, req.Input[0].Content)
	assert.Len(t, req.Tools, 2)
}

func TestAgentRun_NoToolsOffered(t *testing.T) {
	client := completiontest.New(completiontest.Text("ok"))
	a, _ := setupTestAgent(t, client, DefaultMaxRounds)

	_, err := a.Run(context.Background(), "u1", "hola", RunOptions{Tools: []completion.ToolSchema{}})
	require.NoError(t, err)
	assert.Nil(t, client.Requests()[0].Tools)
}

func TestAgentRun_ToolRound(t *testing.T) {
	client := completiontest.New(
		completiontest.Items(
			message.ReasoningTrace{ID: "rs_1", Summary: []string{"checking the user"}},
			message.FunctionCallRequest{ID: "fc_1", CallID: "call_1", Name: "fast_user_check", Arguments: "{}"},
			message.CustomToolCallRequest{ID: "ct_1", CallID: "call_2", Name: "notes", Input: "x"},
		),
		completiontest.Text("Ya estás registrado"),
	)
	a, store := setupTestAgent(t, client, DefaultMaxRounds)

	var summaries []string
	reply, err := a.Run(context.Background(), "5350000001", "hola", RunOptions{
		OnReasoning: func(s []string) { summaries = append(summaries, s...) },
	})
	require.NoError(t, err)
	assert.Equal(t, "Ya estás registrado", reply)
	assert.Equal(t, []string{"checking the user"}, summaries)

	requests := client.Requests()
	require.Len(t, requests, 2)

	second := requests[1].Input
	require.Len(t, second, 7)
	assert.Equal(t, message.ToolResult{CallID: "call_1", Output: "registered:5350000001"},
		message.ToolResult{CallID: second[5].CallID, Output: second[5].Content, Custom: second[5].Custom})
	assert.Equal(t, "call_2", second[6].CallID)
	assert.True(t, second[6].Custom)

	history := store.Get("5350000001", true)
	require.Len(t, history, 3, "tool exchange is purged after the run")
	assert.Equal(t, reply, history[2].Content)
}

func TestAgentRun_FallbackAnswer(t *testing.T) {
	client := completiontest.New(completiontest.Items(message.ReasoningTrace{ID: "rs_1"}))
	a, _ := setupTestAgent(t, client, DefaultMaxRounds)

	reply, err := a.Run(context.Background(), "u1", "hola", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, reply)
}

func TestAgentRun_MaxRounds(t *testing.T) {
	client := completiontest.New(completiontest.Items(
		message.FunctionCallRequest{ID: "fc", CallID: "call", Name: "fast_user_check", Arguments: "{}"},
	))
	client.Repeat = true
	a, _ := setupTestAgent(t, client, 3)

	_, err := a.Run(context.Background(), "u1", "hola", RunOptions{})
	assert.True(t, errors.Is(err, ErrMaxRoundsExceeded))
	assert.Equal(t, 3, client.Calls())
}

func TestAgentRun_CompletionFailure(t *testing.T) {
	client := completiontest.New(completiontest.Fail(errors.New("connection reset")))
	a, _ := setupTestAgent(t, client, DefaultMaxRounds)

	var states []State
	_, err := a.Run(context.Background(), "u1", "hola", RunOptions{
		OnState: func(s State) { states = append(states, s) },
	})

	var transportErr *completion.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, StateFailed, states[len(states)-1])
}

func TestAgentRun_CompletionTimeout(t *testing.T) {
	client := completiontest.New(completiontest.Step{Block: make(chan struct{})})
	a, _ := setupTestAgent(t, client, DefaultMaxRounds)
	a.completionTimeout = 20 * time.Millisecond

	_, err := a.Run(context.Background(), "u1", "hola", RunOptions{})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestAgentRunAsync(t *testing.T) {
	client := completiontest.New(completiontest.Text("async"))
	a, _ := setupTestAgent(t, client, DefaultMaxRounds)

	outcome := <-a.RunAsync(context.Background(), "u1", "hola", RunOptions{})
	require.NoError(t, outcome.Err)
	assert.Equal(t, "async", outcome.Reply)
}

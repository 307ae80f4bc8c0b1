package daemon

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/oslianyabel/basic-wa-bot/internal/config"
	"github.com/oslianyabel/basic-wa-bot/pkg/agent"
	"github.com/oslianyabel/basic-wa-bot/pkg/completion"
	"github.com/oslianyabel/basic-wa-bot/pkg/conversation"
	"github.com/oslianyabel/basic-wa-bot/pkg/toolexecutor"
	"github.com/oslianyabel/basic-wa-bot/pkg/users"
)

// newCompletionClient is replaced in tests
var newCompletionClient = func(cfg config.OpenAIConfig, log zerolog.Logger) completion.Client {
	return completion.NewOpenAIClient(completion.OpenAIOptions{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Logger:  log,
	})
}

// Core is the transport-independent part of the bridge: conversations,
// tools and the agent loop. Both the webhook daemon and the console chat
// run on it.
type Core struct {
	Store      *conversation.Store
	Registry   *toolexecutor.Registry
	Dispatcher *toolexecutor.Dispatcher
	Agent      *agent.Agent
	Users      *users.Store
}

// NewCore builds the core modules from cfg
func NewCore(cfg *config.Config, log zerolog.Logger) (*Core, error) {
	userStore, err := users.Open(cfg.Users.File, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open user registry: %w", err)
	}

	registry := toolexecutor.NewRegistry()
	registry.SetLogger(log)
	if err := users.RegisterTools(registry, userStore); err != nil {
		return nil, fmt.Errorf("failed to register user tools: %w", err)
	}

	dispatcher := toolexecutor.NewDispatcher(registry, toolexecutor.DispatcherOptions{
		Timeout:        cfg.Agent.ToolTimeout,
		UserKey:        toolexecutor.DefaultUserKey,
		MaxConcurrency: cfg.Agent.MaxToolConcurrency,
		Logger:         log.With().Str("component", "tools").Logger(),
	})

	store := conversation.NewStore(agent.SystemPrompt)

	a, err := agent.New(agent.Config{
		Store:             store,
		Client:            newCompletionClient(cfg.OpenAI, log.With().Str("component", "completion").Logger()),
		Dispatcher:        dispatcher,
		Registry:          registry,
		Model:             cfg.OpenAI.Model,
		MaxRounds:         cfg.Agent.MaxRounds,
		CompletionTimeout: cfg.Agent.CompletionTimeout,
		Logger:            log.With().Str("component", "agent").Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	log.Info().
		Str("model", cfg.OpenAI.Model).
		Strs("tools", registry.Names()).
		Int("users", len(userStore.Users())).
		Msg("Core modules initialized")

	return &Core{
		Store:      store,
		Registry:   registry,
		Dispatcher: dispatcher,
		Agent:      a,
		Users:      userStore,
	}, nil
}

// Close releases the user registry watcher
func (c *Core) Close() error {
	return c.Users.Close()
}

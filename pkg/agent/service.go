package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/oslianyabel/basic-wa-bot/internal/errtrack"
	"github.com/oslianyabel/basic-wa-bot/internal/observability"
	"github.com/oslianyabel/basic-wa-bot/internal/tracing"
	"github.com/oslianyabel/basic-wa-bot/pkg/conversation"
	"github.com/oslianyabel/basic-wa-bot/pkg/guard"
)

// DefaultSlowRunThreshold is the run duration above which a warning is logged
const DefaultSlowRunThreshold = 25 * time.Second

// Notifier delivers out-of-band text to a user
type Notifier interface {
	Notify(ctx context.Context, userID, text string) error
}

// ActivityRecorder records that a user interacted with the bot
type ActivityRecorder interface {
	Touch(userID string)
}

// ServiceConfig holds service configuration
type ServiceConfig struct {
	Agent    *Agent
	Guard    *guard.Guard
	Notifier Notifier
	// Activity is optional
	Activity         ActivityRecorder
	SlowRunThreshold time.Duration
	Logger           zerolog.Logger
}

// Service is the per-user process boundary. It serializes runs per user and
// recovers from failed runs by resetting the conversation.
type Service struct {
	agent            *Agent
	store            *conversation.Store
	guard            *guard.Guard
	notifier         Notifier
	activity         ActivityRecorder
	slowRunThreshold time.Duration
	logger           zerolog.Logger
}

// NewService creates a new Service
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Agent == nil {
		return nil, fmt.Errorf("agent is required")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}

	g := cfg.Guard
	if g == nil {
		g = guard.New(nil)
	}
	threshold := cfg.SlowRunThreshold
	if threshold <= 0 {
		threshold = DefaultSlowRunThreshold
	}

	return &Service{
		agent:            cfg.Agent,
		store:            cfg.Agent.Store(),
		guard:            g,
		notifier:         cfg.Notifier,
		activity:         cfg.Activity,
		slowRunThreshold: threshold,
		logger:           cfg.Logger,
	}, nil
}

// Guard returns the busy guard used by the service
func (s *Service) Guard() *guard.Guard {
	return s.guard
}

// Process answers text from userID. A busy user gets the next wait notice
// without a new run. ok is false when the run failed; the conversation has
// then been deleted and the apology sent through the notifier.
func (s *Service) Process(ctx context.Context, userID, text string) (string, bool) {
	reply := s.process(ctx, userID, text)
	return reply.Text, reply.OK
}

// ProcessAsync runs Process on its own goroutine. The channel receives
// exactly one Reply and is then closed.
func (s *Service) ProcessAsync(ctx context.Context, userID, text string) <-chan Reply {
	out := make(chan Reply, 1)
	go func() {
		defer close(out)
		out <- s.process(ctx, userID, text)
	}()
	return out
}

func (s *Service) process(ctx context.Context, userID, text string) Reply {
	ctx = tracing.NewRunContext(ctx, userID)
	logger := tracing.LoggerFromContext(ctx, s.logger)

	release, ok := s.guard.TryAcquire(userID)
	if !ok {
		observability.RecordBusyHit()
		logger.Info().Msg("User busy, sending wait notice")
		return Reply{Text: s.guard.WaitNotice(userID), OK: true, Busy: true}
	}
	s.touch(userID)
	defer func() {
		s.touch(userID)
		release()
	}()

	startTime := time.Now()
	reply, err := s.agent.Run(ctx, userID, text, RunOptions{})
	elapsed := time.Since(startTime)

	if elapsed > s.slowRunThreshold {
		logger.Warn().Dur("elapsed", elapsed).Msg("Slow agent run")
	} else {
		logger.Debug().Dur("elapsed", elapsed).Msg("Agent run completed")
	}

	if err != nil {
		s.store.Delete(userID)
		errtrack.CaptureError(err, map[string]string{"user_id": userID})
		logger.Error().Err(err).Msg("Conversation reset after failed run")

		if notifyErr := s.notifier.Notify(ctx, userID, ApologyMessage); notifyErr != nil {
			logger.Error().Err(notifyErr).Msg("Failed to send apology")
		}
		return Reply{}
	}

	return Reply{Text: reply, OK: true}
}

// touch records activity. Callers hold the user's guard.
func (s *Service) touch(userID string) {
	if s.activity != nil {
		s.activity.Touch(userID)
	}
}

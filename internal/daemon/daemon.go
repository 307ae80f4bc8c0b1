package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/oslianyabel/basic-wa-bot/internal/config"
	"github.com/oslianyabel/basic-wa-bot/internal/errtrack"
	"github.com/oslianyabel/basic-wa-bot/internal/observability"
	"github.com/oslianyabel/basic-wa-bot/internal/tracing"
	"github.com/oslianyabel/basic-wa-bot/pkg/agent"
	"github.com/oslianyabel/basic-wa-bot/pkg/guard"
	"github.com/oslianyabel/basic-wa-bot/pkg/session"
	"github.com/oslianyabel/basic-wa-bot/pkg/webhook"
	"github.com/oslianyabel/basic-wa-bot/pkg/whatsapp"
)

// Daemon runs the WhatsApp webhook bridge
type Daemon struct {
	config *config.Config
	logger zerolog.Logger

	core     *Core
	guard    *guard.Guard
	service  *agent.Service
	whatsapp *whatsapp.Client
	sweeper  *session.Sweeper
	server   *webhook.Server

	serveErr chan error
	wg       sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// Status describes a running daemon
type Status struct {
	Running       bool
	StartTime     time.Time
	Uptime        time.Duration
	Conversations int
	TrackedUsers  int
}

// New creates a daemon and initializes every module in dependency order
func New(cfg *config.Config, log zerolog.Logger) (*Daemon, error) {
	observability.EnsureRegistered()

	core, err := NewCore(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	d := &Daemon{
		config:   cfg,
		logger:   log,
		core:     core,
		serveErr: make(chan error, 1),
	}

	if err := d.initializeServices(); err != nil {
		_ = core.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return d, nil
}

func (d *Daemon) initializeServices() error {
	cfg := d.config

	wa, err := whatsapp.New(whatsapp.Config{
		AccessToken:   cfg.WhatsApp.AccessToken,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		BaseURL:       cfg.WhatsApp.BaseURL,
		APIVersion:    cfg.WhatsApp.APIVersion,
		Timeout:       cfg.WhatsApp.Timeout,
		MaxRetries:    uint64(cfg.WhatsApp.MaxRetries),
		WordsLimit:    cfg.WhatsApp.WordsLimit,
		Logger:        d.logger.With().Str("component", "whatsapp").Logger(),
	})
	if err != nil {
		return fmt.Errorf("failed to create whatsapp client: %w", err)
	}
	d.whatsapp = wa

	d.guard = guard.New(nil)
	d.sweeper = session.NewSweeper(d.core.Store, d.guard, session.Options{
		TTL:      cfg.Session.TTL,
		Interval: cfg.Session.SweepInterval,
	})

	d.service, err = agent.NewService(agent.ServiceConfig{
		Agent:            d.core.Agent,
		Guard:            d.guard,
		Notifier:         wa,
		Activity:         d.sweeper,
		SlowRunThreshold: cfg.Agent.SlowRunThreshold,
		Logger:           d.logger.With().Str("component", "service").Logger(),
	})
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	d.server, err = webhook.NewServer(webhook.ServerOptions{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		VerifyToken:        cfg.WhatsApp.VerifyToken,
		RateLimitPerSecond: cfg.Server.RateLimitPerSecond,
		RateLimitBurst:     cfg.Server.RateLimitBurst,
		ShutdownTimeout:    cfg.Server.ShutdownTimeout,
		Logger:             d.logger,
	}, d.service, wa)
	if err != nil {
		return fmt.Errorf("failed to create webhook server: %w", err)
	}

	return nil
}

// Start starts the sweeper, the registry watcher and the webhook listener
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	logger := d.logger.With().Str("request_id", tracing.NewRequestID()).Logger()
	logger.Info().Str("env", d.config.EnvState).Msg("Starting WhatsApp bridge")

	if err := d.sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start session sweeper: %w", err)
	}
	logger.Info().
		Dur("ttl", d.config.Session.TTL).
		Dur("interval", d.config.Session.SweepInterval).
		Msg("Session sweeper started")

	if d.config.Users.Watch {
		if err := d.core.Users.Watch(); err != nil {
			logger.Warn().Err(err).Msg("Failed to watch user registry")
		} else {
			logger.Info().Str("file", d.core.Users.Path()).Msg("User registry watcher started")
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.server.Start(); err != nil {
			d.serveErr <- err
		}
	}()

	logger.Info().Str("addr", d.server.Addr()).Msg("Daemon started successfully")
	return nil
}

// Stop drains the webhook server and stops every module
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	logger := d.logger.With().Str("request_id", tracing.NewRequestID()).Logger()
	logger.Info().Msg("Stopping WhatsApp bridge")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.server.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop webhook server")
	}

	if d.sweeper.IsRunning() {
		if err := d.sweeper.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop session sweeper")
		}
	}

	if err := d.core.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close user registry")
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("Timeout waiting for listener to stop")
	}

	errtrack.Flush(2 * time.Second)

	logger.Info().Msg("Daemon stopped successfully")
	return nil
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:       d.running,
		Conversations: d.core.Store.Len(),
		TrackedUsers:  d.sweeper.Tracked(),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Wait blocks until a termination signal or a listener failure, then stops
func (d *Daemon) Wait() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var serveErr error
	select {
	case sig := <-sigChan:
		d.logger.Info().Str("signal", sig.String()).Msg("Received signal")
	case serveErr = <-d.serveErr:
		d.logger.Error().Err(serveErr).Msg("Webhook listener failed")
	}

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
	return serveErr
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetCore returns the core modules
func (d *Daemon) GetCore() *Core {
	return d.core
}

// GetService returns the per-user process boundary
func (d *Daemon) GetService() *agent.Service {
	return d.service
}

// GetWebhookServer returns the webhook server
func (d *Daemon) GetWebhookServer() *webhook.Server {
	return d.server
}

// GetSweeper returns the inactivity sweeper
func (d *Daemon) GetSweeper() *session.Sweeper {
	return d.sweeper
}

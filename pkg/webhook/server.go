package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/oslianyabel/basic-wa-bot/internal/errtrack"
	"github.com/oslianyabel/basic-wa-bot/internal/observability"
	"github.com/oslianyabel/basic-wa-bot/pkg/agent"
)

// Processor answers an inbound message
type Processor interface {
	ProcessAsync(ctx context.Context, userID, text string) <-chan agent.Reply
}

// Messenger delivers replies and read receipts
type Messenger interface {
	MarkAsRead(ctx context.Context, messageID string) error
	Notify(ctx context.Context, userID, text string) error
}

// ServerOptions configures the webhook server
type ServerOptions struct {
	Host        string
	Port        int
	VerifyToken string
	// RateLimitPerSecond and RateLimitBurst bound requests per client IP
	RateLimitPerSecond float64
	RateLimitBurst     int
	// ShutdownTimeout bounds how long Stop waits for background runs
	ShutdownTimeout time.Duration
	Logger          zerolog.Logger
}

// Server is the WhatsApp webhook HTTP server
type Server struct {
	options   ServerOptions
	engine    *gin.Engine
	server    *http.Server
	processor Processor
	messenger Messenger
	limiter   *RateLimiter
	logger    zerolog.Logger

	shutdownMu     sync.RWMutex
	isShuttingDown bool
	inFlight       sync.WaitGroup
}

// NewServer creates a new webhook server
func NewServer(options ServerOptions, processor Processor, messenger Messenger) (*Server, error) {
	if options.Port == 0 {
		options.Port = 8000
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.ShutdownTimeout == 0 {
		options.ShutdownTimeout = 30 * time.Second
	}

	if processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	if messenger == nil {
		return nil, fmt.Errorf("messenger is required")
	}
	if options.VerifyToken == "" {
		return nil, fmt.Errorf("verify token is required")
	}

	observability.EnsureRegistered()

	s := &Server{
		options:   options,
		processor: processor,
		messenger: messenger,
		limiter:   NewRateLimiter(options.RateLimitPerSecond, options.RateLimitBurst),
		logger:    options.Logger.With().Str("component", "webhook").Logger(),
	}
	s.engine = s.buildRouter()

	return s, nil
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(errtrack.GinMiddleware())
	router.Use(s.loggerMiddleware())

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))

	whatsapp := router.Group("/whatsapp", s.rateLimitMiddleware())
	whatsapp.GET("", s.handleVerify)
	whatsapp.POST("", s.handleMessage)

	return router
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.options.Host, s.options.Port)
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting webhook server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start webhook server: %w", err)
	}

	return nil
}

// Stop rejects new work, waits for background runs and shuts the listener down
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down webhook server")

	var shutdownErr error
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Listener shutdown did not complete")
			shutdownErr = fmt.Errorf("failed to shutdown webhook server: %w", err)
		}
	}

	if !s.Wait(s.options.ShutdownTimeout) {
		s.logger.Warn().Msg("Shutdown timeout reached with runs still in flight")
	}

	s.limiter.Stop()

	s.logger.Info().Msg("Webhook server stopped")
	return shutdownErr
}

// Wait blocks until background work finishes or timeout elapses. It reports
// whether everything finished.
func (s *Server) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// goTracked runs fn in the background unless the server is shutting down
func (s *Server) goTracked(fn func()) bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	if s.isShuttingDown {
		return false
	}

	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic in background task: %v", r)
				errtrack.CaptureError(err, nil)
				s.logger.Error().Interface("panic", r).Msg("Panic in background task")
			}
		}()
		fn()
	}()
	return true
}

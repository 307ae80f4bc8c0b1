// Package errtrack reports failures to Sentry. Every call is a no-op until
// Init succeeds with a DSN.
package errtrack

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Options configures the Sentry client
type Options struct {
	DSN              string
	Environment      string
	Release          string
	TracesSampleRate float64
	Debug            bool
}

var enabled atomic.Bool

// Init configures the Sentry client. An empty DSN leaves tracking disabled.
func Init(opts Options) error {
	if opts.DSN == "" {
		log.Debug().Msg("Sentry DSN not set, error tracking disabled")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		EnableTracing:    opts.TracesSampleRate > 0,
		TracesSampleRate: opts.TracesSampleRate,
		Debug:            opts.Debug,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}

	enabled.Store(true)
	log.Info().Str("environment", opts.Environment).Msg("Sentry error tracking enabled")
	return nil
}

// Enabled reports whether Init configured a client
func Enabled() bool {
	return enabled.Load()
}

// CaptureError reports err with the given tags
func CaptureError(err error, tags map[string]string) {
	if err == nil || !Enabled() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}

// Flush waits for buffered events to be sent
func Flush(timeout time.Duration) {
	if !Enabled() {
		return
	}
	if !sentry.Flush(timeout) {
		log.Warn().Dur("timeout", timeout).Msg("Sentry flush timed out")
	}
}

// GinMiddleware returns the Sentry gin middleware, or a pass-through handler
// when tracking is disabled
func GinMiddleware() gin.HandlerFunc {
	if !Enabled() {
		return func(c *gin.Context) { c.Next() }
	}
	return sentrygin.New(sentrygin.Options{Repanic: true})
}

package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/oslianyabel/basic-wa-bot/internal/observability"
)

const (
	DefaultTTL           = 24 * time.Hour
	DefaultSweepInterval = time.Hour
)

// ConversationStore is the part of the conversation store the sweeper needs
type ConversationStore interface {
	Delete(userID string)
}

// Guard is the part of the busy guard the sweeper needs
type Guard interface {
	TryAcquire(userID string) (release func(), ok bool)
	Forget(userID string) bool
}

// Options configures a Sweeper
type Options struct {
	TTL      time.Duration
	Interval time.Duration
	// Now overrides the clock
	Now func() time.Time
}

// Sweeper deletes conversations of users idle for longer than the TTL
type Sweeper struct {
	store    ConversationStore
	guard    Guard
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	activity map[string]time.Time

	runMu   sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewSweeper creates a new Sweeper
func NewSweeper(store ConversationStore, guard Guard, opts Options) *Sweeper {
	observability.EnsureRegistered()

	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Sweeper{
		store:    store,
		guard:    guard,
		ttl:      opts.TTL,
		interval: opts.Interval,
		now:      opts.Now,
		activity: make(map[string]time.Time),
	}
}

// Touch records activity for userID
func (s *Sweeper) Touch(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity[userID] = s.now()
}

// LastActivity returns the last recorded activity of userID
func (s *Sweeper) LastActivity(userID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.activity[userID]
	return ts, ok
}

// Tracked returns the number of users with recorded activity
func (s *Sweeper) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activity)
}

// Start schedules the sweep every interval
func (s *Sweeper) Start() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper is already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() { s.SweepNow() }); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	c.Start()

	s.cron = c
	s.running = true

	log.Info().
		Dur("ttl", s.ttl).
		Dur("interval", s.interval).
		Msg("Inactivity sweeper started")

	return nil
}

// Stop stops the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if !s.running {
		return fmt.Errorf("sweeper is not running")
	}

	<-s.cron.Stop().Done()
	s.cron = nil
	s.running = false

	log.Info().Msg("Inactivity sweeper stopped")

	return nil
}

// IsRunning returns whether the schedule is active
func (s *Sweeper) IsRunning() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running
}

// SweepNow deletes every idle user that has no run in flight and returns how
// many were removed
func (s *Sweeper) SweepNow() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	var idle []string
	for userID, ts := range s.activity {
		if ts.Before(cutoff) {
			idle = append(idle, userID)
		}
	}
	s.mu.Unlock()

	removed := 0
	for _, userID := range idle {
		if s.sweepUser(userID, cutoff) {
			removed++
		}
	}

	if removed > 0 {
		observability.RecordSweep(removed)
		log.Info().Int("removed", removed).Msg("Swept idle conversations")
	}

	return removed
}

func (s *Sweeper) sweepUser(userID string, cutoff time.Time) bool {
	release, ok := s.guard.TryAcquire(userID)
	if !ok {
		log.Debug().Str("user_id", userID).Msg("Skipping busy user")
		return false
	}

	s.mu.Lock()
	ts, tracked := s.activity[userID]
	if !tracked || !ts.Before(cutoff) {
		s.mu.Unlock()
		release()
		return false
	}
	delete(s.activity, userID)
	s.mu.Unlock()

	s.store.Delete(userID)
	release()
	s.guard.Forget(userID)
	log.Debug().Str("user_id", userID).Time("last_activity", ts).Msg("Conversation expired")
	return true
}

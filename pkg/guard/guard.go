// Package guard keeps at most one agent run in flight per user and rotates
// the wait notices sent while a run is busy.
package guard

import (
	"sync"
)

// DefaultWaitNotices are sent, in turn, to users who write while a run is in
// flight
var DefaultWaitNotices = []string{
	"Porfa dame un segundo para terminar de elaborar la respuesta 🕒",
	"Un momento, estoy procesando tu pedido — te respondo enseguida ⏳",
	"Disculpa la demora, estoy trabajando para darte la mejor respuesta 🤏",
	"Estoy revisando la información; te escribo en breve 📡",
	"Gracias por la paciencia — preparando tu respuesta ahora mismo 🔄",
}

type userState struct {
	mu        sync.Mutex
	busy      bool
	noticeIdx int
}

// Guard tracks per-user busy flags and wait notice rotation
type Guard struct {
	notices []string
	users   sync.Map // user ID -> *userState
}

// New creates a Guard. An empty notices slice falls back to
// DefaultWaitNotices.
func New(notices []string) *Guard {
	if len(notices) == 0 {
		notices = DefaultWaitNotices
	}
	copied := make([]string, len(notices))
	copy(copied, notices)
	return &Guard{notices: copied}
}

func (g *Guard) state(userID string) *userState {
	if s, ok := g.users.Load(userID); ok {
		return s.(*userState)
	}
	s, _ := g.users.LoadOrStore(userID, &userState{})
	return s.(*userState)
}

// lock returns the current state of userID with its mutex held. A state
// dropped by Forget between lookup and lock is discarded and looked up again.
func (g *Guard) lock(userID string) *userState {
	for {
		s := g.state(userID)
		s.mu.Lock()
		if current, ok := g.users.Load(userID); ok && current == s {
			return s
		}
		s.mu.Unlock()
	}
}

// TryAcquire marks userID busy. ok is false when a run is already in flight;
// otherwise release must be called exactly once when the run ends. Extra calls
// to release are ignored.
func (g *Guard) TryAcquire(userID string) (release func(), ok bool) {
	s := g.lock(userID)
	defer s.mu.Unlock()

	if s.busy {
		return nil, false
	}
	s.busy = true

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.busy = false
			s.mu.Unlock()
		})
	}, true
}

// IsBusy reports whether userID has a run in flight
func (g *Guard) IsBusy(userID string) bool {
	s, ok := g.users.Load(userID)
	if !ok {
		return false
	}
	st := s.(*userState)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.busy
}

// WaitNotice returns the next wait notice for userID and advances its index,
// wrapping after the last template
func (g *Guard) WaitNotice(userID string) string {
	s := g.lock(userID)
	defer s.mu.Unlock()

	notice := g.notices[s.noticeIdx%len(g.notices)]
	s.noticeIdx = (s.noticeIdx + 1) % len(g.notices)
	return notice
}

// Notices returns the configured templates
func (g *Guard) Notices() []string {
	out := make([]string, len(g.notices))
	copy(out, g.notices)
	return out
}

// Forget drops the state of userID unless a run is in flight. It reports
// whether the state was dropped.
func (g *Guard) Forget(userID string) bool {
	s, ok := g.users.Load(userID)
	if !ok {
		return true
	}
	st := s.(*userState)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.busy {
		return false
	}
	g.users.Delete(userID)
	return true
}

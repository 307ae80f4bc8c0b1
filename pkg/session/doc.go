// Package session expires idle conversations.
//
// Invariants:
// - A user with a run in flight is never swept.
// - Sweeping removes the conversation and the activity record together.
//
// Usage:
//
//	sweeper := session.NewSweeper(store, busyGuard, session.Options{})
//	_ = sweeper.Start()
//	defer sweeper.Stop()
//	sweeper.Touch("5350000001")
package session

// Package agent runs the tool-calling completion loop for a user and exposes
// the per-user process boundary used by the webhook and the console.
//
// Invariants:
//   - Rounds of a run are strictly sequential; the tool calls of one round run
//     concurrently.
//   - A user has at most one run in flight; extra messages get a wait notice.
//   - The tool exchange of a run is purged from history once it finishes.
//   - A failed run deletes the user's conversation and sends an apology.
//
// Usage:
//
//	a, _ := agent.New(agent.Config{Store: store, Client: client, Dispatcher: dispatcher, Registry: registry, Model: "gpt-5"})
//	svc, _ := agent.NewService(agent.ServiceConfig{Agent: a, Store: store, Guard: guard.New(nil), Notifier: wa})
//	reply, ok := svc.Process(ctx, "5350000001", "hola")
package agent

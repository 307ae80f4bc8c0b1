// Package conversation keeps the per-user message history used by the agent.
//
// Every conversation starts with exactly one developer message holding the
// system prompt. Output items of a completion and the tool outputs that answer
// them are tracked in an ephemeral buffer by message ID so the whole tool
// exchange can be dropped once the run has produced its answer.
package conversation

import (
	"fmt"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/oslianyabel/basic-wa-bot/internal/observability"
	"github.com/oslianyabel/basic-wa-bot/pkg/completion"
	"github.com/oslianyabel/basic-wa-bot/pkg/message"
)

// InvalidRoleError is returned when a message carries a role outside the
// known set. Index is the offending position, or -1 for a single append.
type InvalidRoleError struct {
	Role  message.Role
	Index int
}

func (e *InvalidRoleError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid role %q", e.Role)
	}
	return fmt.Sprintf("invalid role %q at index %d", e.Role, e.Index)
}

type entry struct {
	mu         sync.Mutex
	messages   []message.Message
	lastResult *completion.Result
	buffer     map[string]struct{}
}

// Store holds conversations keyed by user ID
type Store struct {
	systemPrompt string

	mu      sync.RWMutex
	entries map[string]*entry
}

// NewStore creates a store whose conversations start with systemPrompt
func NewStore(systemPrompt string) *Store {
	observability.EnsureRegistered()
	return &Store{
		systemPrompt: systemPrompt,
		entries:      make(map[string]*entry),
	}
}

func newID() string {
	return gonanoid.Must()
}

func (s *Store) systemMessage() message.Message {
	return message.Message{ID: newID(), Role: message.RoleDeveloper, Content: s.systemPrompt}
}

// entry returns the state of userID, creating it when absent
func (s *Store) entry(userID string) *entry {
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[userID]; ok {
		return e
	}
	e = &entry{
		messages: []message.Message{s.systemMessage()},
		buffer:   make(map[string]struct{}),
	}
	s.entries[userID] = e
	observability.SetActiveConversations(len(s.entries))
	return e
}

// Get returns a copy of the history of userID. The system prompt is left out
// unless includeSystemPrompt is set.
func (s *Store) Get(userID string, includeSystemPrompt bool) []message.Message {
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	start := 0
	if !includeSystemPrompt && len(e.messages) > 0 && e.messages[0].Role == message.RoleDeveloper {
		start = 1
	}
	out := make([]message.Message, len(e.messages)-start)
	copy(out, e.messages[start:])
	return out
}

// Replace swaps the whole history of userID. Nothing is written when any
// message has an invalid role.
func (s *Store) Replace(userID string, messages []message.Message) error {
	for i, msg := range messages {
		if !msg.Role.Valid() {
			return &InvalidRoleError{Role: msg.Role, Index: i}
		}
	}

	history := make([]message.Message, len(messages))
	copy(history, messages)
	for i := range history {
		if history[i].ID == "" {
			history[i].ID = newID()
		}
	}

	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = history
	e.buffer = make(map[string]struct{})
	return nil
}

// Append adds a text turn to the history of userID
func (s *Store) Append(userID, content string, role message.Role) error {
	if !role.Valid() {
		return &InvalidRoleError{Role: role, Index: -1}
	}

	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, message.Message{ID: newID(), Role: role, Content: content})
	return nil
}

// RecordCompletion stores result as the last completion of userID and appends
// its output items to the history. The appended messages are buffered.
func (s *Store) RecordCompletion(userID string, result *completion.Result) {
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastResult = result
	if result == nil {
		return
	}
	for _, item := range result.Items {
		msg := message.Message{ID: newID(), Role: message.RoleAssistant, Item: item}
		e.messages = append(e.messages, msg)
		e.buffer[msg.ID] = struct{}{}
	}
}

// AppendToolOutput appends the output of a tool call. The message is buffered.
func (s *Store) AppendToolOutput(userID string, result message.ToolResult) {
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	msg := message.Message{
		ID:      newID(),
		Role:    message.RoleToolOutput,
		Content: result.Output,
		CallID:  result.CallID,
		Custom:  result.Custom,
	}
	e.messages = append(e.messages, msg)
	e.buffer[msg.ID] = struct{}{}
}

// PurgeToolBuffer removes every buffered message from the history of userID
// and empties the buffer
func (s *Store) PurgeToolBuffer(userID string) {
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.buffer) == 0 {
		return
	}
	kept := e.messages[:0]
	for _, msg := range e.messages {
		if _, buffered := e.buffer[msg.ID]; buffered {
			continue
		}
		kept = append(kept, msg)
	}
	e.messages = kept
	e.buffer = make(map[string]struct{})
}

// BufferLen returns the number of buffered messages of userID
func (s *Store) BufferLen(userID string) int {
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buffer)
}

// LastResult returns the last completion recorded for userID
func (s *Store) LastResult(userID string) *completion.Result {
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastResult
}

// Delete drops all state of userID
func (s *Store) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
	observability.SetActiveConversations(len(s.entries))
}

// Has reports whether userID has state
func (s *Store) Has(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[userID]
	return ok
}

// Len returns the number of live conversations
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

package confirm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// User-visible replies owned by the registry
const (
	MsgNothingPending = "It seems that you don't have anything waiting for your approval."
	MsgDenied         = "Alright, I won't do that."
)

const shardCount = 32

// ErrNoPendingConfirmation is returned when a user has nothing awaiting approval
var ErrNoPendingConfirmation = errors.New("no pending confirmation")

// TaskError wraps a failure returned by a confirmed task
type TaskError struct {
	UserID      string
	Description string
	Err         error
}

func (e *TaskError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("confirmed task %q for user %s failed: %v", e.Description, e.UserID, e.Err)
	}
	return fmt.Sprintf("confirmed task for user %s failed: %v", e.UserID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Outcome describes how a confirm or deny call was resolved
type Outcome int

const (
	OutcomeNothingPending Outcome = iota
	OutcomeExecuted
	OutcomeDenied
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExecuted:
		return "executed"
	case OutcomeDenied:
		return "denied"
	default:
		return "nothing_pending"
	}
}

// Entry describes a pending confirmation
type Entry struct {
	ID          string
	UserID      string
	ChannelID   string
	Description string
	CreatedAt   time.Time
}

// Option customizes a registration
type Option func(*Entry)

// WithChannel records the channel the request was made in
func WithChannel(channelID string) Option {
	return func(e *Entry) {
		e.ChannelID = channelID
	}
}

// WithDescription attaches a short human-readable summary of the task
func WithDescription(description string) Option {
	return func(e *Entry) {
		e.Description = description
	}
}

type pending struct {
	entry Entry
	task  Task
}

type shard struct {
	mu      sync.Mutex
	pending map[string]*pending
}

// Registry holds at most one pending task per user
type Registry struct {
	shards [shardCount]*shard
	now    func() time.Time
}

// NewRegistry creates an empty confirmation registry
func NewRegistry() *Registry {
	r := &Registry{now: time.Now}
	for i := range r.shards {
		r.shards[i] = &shard{pending: make(map[string]*pending)}
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	return r.shards[xxhash.Sum64String(userID)%shardCount]
}

// Register stores task as the pending action for userID.
// Any task already pending for the user is discarded without running.
func (r *Registry) Register(userID string, task Task, opts ...Option) (replaced bool) {
	p := &pending{
		entry: Entry{
			ID:        uuid.NewString(),
			UserID:    userID,
			CreatedAt: r.now(),
		},
		task: task,
	}
	for _, opt := range opts {
		opt(&p.entry)
	}

	s := r.shardFor(userID)
	s.mu.Lock()
	_, replaced = s.pending[userID]
	s.pending[userID] = p
	s.mu.Unlock()

	slog.Debug("Registered confirmation", "user", userID, "id", p.entry.ID, "description", p.entry.Description, "replaced", replaced)
	return replaced
}

// Take atomically removes and returns the pending task for userID
func (r *Registry) Take(userID string) (Entry, Task, error) {
	s := r.shardFor(userID)
	s.mu.Lock()
	p, ok := s.pending[userID]
	if ok {
		delete(s.pending, userID)
	}
	s.mu.Unlock()

	if !ok {
		return Entry{}, nil, ErrNoPendingConfirmation
	}
	return p.entry, p.task, nil
}

// Confirm removes and executes the pending task for the invoking user.
// The shard lock is released before the task runs.
func (r *Registry) Confirm(ctx context.Context, inv Invocation) (Outcome, error) {
	entry, task, err := r.Take(inv.UserID)
	if errors.Is(err, ErrNoPendingConfirmation) {
		return OutcomeNothingPending, inv.Reply(ctx, MsgNothingPending)
	}

	slog.Info("Executing confirmed task", "user", inv.UserID, "id", entry.ID, "description", entry.Description)
	if err := task.Execute(ctx, inv); err != nil {
		return OutcomeExecuted, &TaskError{UserID: inv.UserID, Description: entry.Description, Err: err}
	}
	return OutcomeExecuted, nil
}

// Deny removes the pending task for the invoking user without running it
func (r *Registry) Deny(ctx context.Context, inv Invocation) (Outcome, error) {
	entry, _, err := r.Take(inv.UserID)
	if errors.Is(err, ErrNoPendingConfirmation) {
		return OutcomeNothingPending, inv.Reply(ctx, MsgNothingPending)
	}

	slog.Info("Denied task", "user", inv.UserID, "id", entry.ID, "description", entry.Description)
	return OutcomeDenied, inv.Reply(ctx, MsgDenied)
}

// Expire removes the pending task for userID only if it is still the
// entry identified by entryID. It reports whether anything was removed.
func (r *Registry) Expire(userID, entryID string) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[userID]
	if !ok || p.entry.ID != entryID {
		return false
	}
	delete(s.pending, userID)
	return true
}

// Has reports whether userID has a pending task
func (r *Registry) Has(userID string) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[userID]
	return ok
}

// Len returns the number of pending tasks
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.Lock()
		n += len(s.pending)
		s.mu.Unlock()
	}
	return n
}

// Pending returns a snapshot of all pending entries, oldest first
func (r *Registry) Pending() []Entry {
	var entries []Entry
	for _, s := range r.shards {
		s.mu.Lock()
		for _, p := range s.pending {
			entries = append(entries, p.entry)
		}
		s.mu.Unlock()
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries
}

package confirm

import "context"

// Replier sends a message back to the user who invoked a command
type Replier interface {
	Reply(ctx context.Context, content string) error
}

// Invocation identifies who answered a confirmation prompt and where
type Invocation struct {
	UserID    string
	GuildID   string
	ChannelID string
	Replier   Replier
}

// Reply sends content through the invocation's replier
func (inv Invocation) Reply(ctx context.Context, content string) error {
	if inv.Replier == nil {
		return nil
	}
	return inv.Replier.Reply(ctx, content)
}

// Task is an action deferred until the requesting user confirms it.
// A task is executed at most once and never after it was denied,
// expired or replaced by a newer request.
type Task interface {
	// Execute performs the action. The task owns all replies on success;
	// a returned error is reported to the user by the command layer.
	Execute(ctx context.Context, inv Invocation) error
}

// TaskFunc adapts a plain function to the Task interface
type TaskFunc func(ctx context.Context, inv Invocation) error

// Execute calls f(ctx, inv)
func (f TaskFunc) Execute(ctx context.Context, inv Invocation) error {
	return f(ctx, inv)
}

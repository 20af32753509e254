package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/squire-bot/squire/internal/confirm"
)

// MsgExpired is sent when a pending confirmation times out
const MsgExpired = "You waited too long to confirm. If you still want to do that, run the command again and then confirm."

// Notifier tells a user that their pending confirmation expired
type Notifier interface {
	NotifyExpired(ctx context.Context, entry confirm.Entry) error
}

// Sweeper periodically expires pending confirmations older than a TTL
type Sweeper struct {
	registry *confirm.Registry
	notifier Notifier
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Sweeper. notifier may be nil.
func New(registry *confirm.Registry, notifier Notifier, ttl, interval time.Duration) *Sweeper {
	return &Sweeper{
		registry: registry,
		notifier: notifier,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start launches the sweep loop in the background. The loop runs until
// ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	slog.Info("Starting confirmation sweeper", "ttl", s.ttl, "interval", s.interval)

	s.wg.Add(1)
	go s.run(ctx)
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sweeper stopped (context cancelled)")
			return
		case <-s.stopChan:
			slog.Info("Sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Stop signals the sweeper to stop and waits for it
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

// Sweep expires every entry older than the TTL and returns how many it removed
func (s *Sweeper) Sweep(ctx context.Context) int {
	cutoff := s.now().Add(-s.ttl)
	expired := 0

	for _, entry := range s.registry.Pending() {
		if entry.CreatedAt.After(cutoff) {
			// Pending is ordered oldest first.
			break
		}
		if !s.registry.Expire(entry.UserID, entry.ID) {
			continue
		}
		expired++
		slog.Info("Expired confirmation", "user", entry.UserID, "id", entry.ID, "description", entry.Description)

		if s.notifier == nil {
			continue
		}
		if err := s.notifier.NotifyExpired(ctx, entry); err != nil {
			slog.Error("Failed to notify expired confirmation", "user", entry.UserID, "error", err)
		}
	}

	return expired
}

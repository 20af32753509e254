package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/squire-bot/squire/internal/confirm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingNotifier struct {
	mu      sync.Mutex
	entries []confirm.Entry
	err     error
}

func (n *recordingNotifier) NotifyExpired(_ context.Context, entry confirm.Entry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries, entry)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.entries)
}

func noop() confirm.Task {
	return confirm.TaskFunc(func(context.Context, confirm.Invocation) error { return nil })
}

func TestSweepExpiresOldEntries(t *testing.T) {
	registry := confirm.NewRegistry()
	registry.Register("alice", noop(), confirm.WithChannel("c1"))
	registry.Register("bob", noop(), confirm.WithChannel("c2"))

	notifier := &recordingNotifier{}
	s := New(registry, notifier, 30*time.Second, time.Second)

	assert.Equal(t, 0, s.Sweep(context.Background()))
	assert.Equal(t, 2, registry.Len())

	s.now = func() time.Time { return time.Now().Add(time.Minute) }
	assert.Equal(t, 2, s.Sweep(context.Background()))
	assert.Equal(t, 0, registry.Len())

	require.Equal(t, 2, notifier.count())
	channels := []string{notifier.entries[0].ChannelID, notifier.entries[1].ChannelID}
	assert.ElementsMatch(t, []string{"c1", "c2"}, channels)
}

func TestSweepKeepsFreshEntries(t *testing.T) {
	registry := confirm.NewRegistry()
	registry.Register("a", noop())
	registry.Register("b", noop())

	s := New(registry, nil, 30*time.Second, time.Second)
	s.now = func() time.Time { return time.Now().Add(29 * time.Second) }
	assert.Equal(t, 0, s.Sweep(context.Background()))
	assert.Equal(t, 2, registry.Len())

	s.now = func() time.Time { return time.Now().Add(31 * time.Second) }
	assert.Equal(t, 2, s.Sweep(context.Background()))

	registry.Register("fresh", noop())
	s.now = time.Now
	assert.Equal(t, 0, s.Sweep(context.Background()))
	assert.True(t, registry.Has("fresh"))
}

func TestSweepNotifierErrorDoesNotStopSweep(t *testing.T) {
	registry := confirm.NewRegistry()
	registry.Register("a", noop())
	registry.Register("b", noop())

	notifier := &recordingNotifier{err: errors.New("send failed")}
	s := New(registry, notifier, 0, time.Second)
	s.now = func() time.Time { return time.Now().Add(time.Second) }

	assert.Equal(t, 2, s.Sweep(context.Background()))
	assert.Equal(t, 2, notifier.count())
}

func TestStartAndStop(t *testing.T) {
	registry := confirm.NewRegistry()
	registry.Register("alice", noop())

	notifier := &recordingNotifier{}
	s := New(registry, notifier, 0, 10*time.Millisecond)

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return notifier.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, registry.Has("alice"))

	s.Stop()
	s.Stop()
}

func TestStartStopsOnContextCancel(t *testing.T) {
	s := New(confirm.NewRegistry(), nil, time.Minute, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestStopRightAfterStartWaitsForLoop(t *testing.T) {
	for i := 0; i < 20; i++ {
		s := New(confirm.NewRegistry(), nil, time.Minute, time.Hour)
		s.Start(context.Background())
		// goleak in TestMain fails the package if the loop outlives Stop.
		s.Stop()
	}
}

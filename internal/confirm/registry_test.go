package confirm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingReplier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (r *recordingReplier) Reply(_ context.Context, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, content)
	return r.err
}

func (r *recordingReplier) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func countingTask(counter *int32, reply string) Task {
	return TaskFunc(func(ctx context.Context, inv Invocation) error {
		atomic.AddInt32(counter, 1)
		return inv.Reply(ctx, reply)
	})
}

func invocation(userID string, replier Replier) Invocation {
	return Invocation{UserID: userID, GuildID: "g1", ChannelID: "c1", Replier: replier}
}

func TestRegisterKeepsOneTaskPerUser(t *testing.T) {
	r := NewRegistry()
	var first, second int32

	assert.False(t, r.Register("alice", countingTask(&first, "first")))
	assert.True(t, r.Has("alice"))
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Register("alice", countingTask(&second, "second")))
	assert.Equal(t, 1, r.Len())

	replier := &recordingReplier{}
	outcome, err := r.Confirm(context.Background(), invocation("alice", replier))
	require.NoError(t, err)
	assert.Equal(t, OutcomeExecuted, outcome)
	assert.Equal(t, int32(0), atomic.LoadInt32(&first), "replaced task must never run")
	assert.Equal(t, int32(1), atomic.LoadInt32(&second))
	assert.Equal(t, []string{"second"}, replier.all())
	assert.False(t, r.Has("alice"))
}

func TestConfirmWithNothingPending(t *testing.T) {
	r := NewRegistry()
	replier := &recordingReplier{}

	for i := 0; i < 2; i++ {
		outcome, err := r.Confirm(context.Background(), invocation("bob", replier))
		require.NoError(t, err)
		assert.Equal(t, OutcomeNothingPending, outcome)
	}
	assert.Equal(t, []string{MsgNothingPending, MsgNothingPending}, replier.all())
}

func TestConfirmIsIdempotentAfterResolution(t *testing.T) {
	r := NewRegistry()
	var runs int32
	r.Register("bob", countingTask(&runs, "done"))

	replier := &recordingReplier{}
	outcome, err := r.Confirm(context.Background(), invocation("bob", replier))
	require.NoError(t, err)
	assert.Equal(t, OutcomeExecuted, outcome)

	outcome, err = r.Confirm(context.Background(), invocation("bob", replier))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNothingPending, outcome)

	outcome, err = r.Deny(context.Background(), invocation("bob", replier))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNothingPending, outcome)

	assert.Equal(t, int32(1), runs)
	assert.Equal(t, []string{"done", MsgNothingPending, MsgNothingPending}, replier.all())
}

func TestDenyThenConfirmScenario(t *testing.T) {
	r := NewRegistry()
	var runs int32
	r.Register("alice", countingTask(&runs, "dropped"), WithDescription("drop player"))
	require.Equal(t, 1, r.Len())

	replier := &recordingReplier{}
	outcome, err := r.Deny(context.Background(), invocation("alice", replier))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDenied, outcome)
	assert.Equal(t, 0, r.Len())

	outcome, err = r.Confirm(context.Background(), invocation("alice", replier))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNothingPending, outcome)

	assert.Equal(t, int32(0), runs)
	assert.Equal(t, []string{MsgDenied, MsgNothingPending}, replier.all())
}

func TestConcurrentConfirmExecutesOnce(t *testing.T) {
	r := NewRegistry()
	var runs int32
	r.Register("carol", countingTask(&runs, "ok"))

	const workers = 64
	var (
		wg       sync.WaitGroup
		executed int32
		start    = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			outcome, err := r.Confirm(context.Background(), invocation("carol", nil))
			assert.NoError(t, err)
			if outcome == OutcomeExecuted {
				atomic.AddInt32(&executed, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), runs)
	assert.Equal(t, int32(1), executed)
	assert.Equal(t, 0, r.Len())
}

func TestConcurrentConfirmAndDeny(t *testing.T) {
	r := NewRegistry()
	var runs int32
	r.Register("dave", countingTask(&runs, "ok"))

	var (
		wg       sync.WaitGroup
		outcomes = make(chan Outcome, 2)
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		o, _ := r.Confirm(context.Background(), invocation("dave", nil))
		outcomes <- o
	}()
	go func() {
		defer wg.Done()
		o, _ := r.Deny(context.Background(), invocation("dave", nil))
		outcomes <- o
	}()
	wg.Wait()
	close(outcomes)

	resolved := 0
	for o := range outcomes {
		if o != OutcomeNothingPending {
			resolved++
		}
	}
	assert.Equal(t, 1, resolved)
	assert.LessOrEqual(t, runs, int32(1))
}

func TestTaskFailureIsTyped(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("channel missing")
	r.Register("erin", TaskFunc(func(context.Context, Invocation) error {
		return boom
	}), WithDescription("setup"))

	outcome, err := r.Confirm(context.Background(), invocation("erin", nil))
	assert.Equal(t, OutcomeExecuted, outcome)
	require.Error(t, err)

	var taskErr *TaskError
	require.True(t, errors.As(err, &taskErr))
	assert.Equal(t, "erin", taskErr.UserID)
	assert.Equal(t, "setup", taskErr.Description)
	assert.ErrorIs(t, err, boom)
	assert.False(t, r.Has("erin"))
}

func TestExecuteRunsWithoutRegistryLock(t *testing.T) {
	r := NewRegistry()
	var nested int32
	r.Register("frank", TaskFunc(func(ctx context.Context, inv Invocation) error {
		// Registering for the same user lands on the same shard.
		r.Register(inv.UserID, countingTask(&nested, "nested"))
		return nil
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := r.Confirm(context.Background(), invocation("frank", nil))
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("confirm deadlocked while task registered a follow-up")
	}
	assert.True(t, r.Has("frank"))
}

func TestReplyFailurePropagates(t *testing.T) {
	r := NewRegistry()
	sendErr := errors.New("discord unavailable")
	replier := &recordingReplier{err: sendErr}

	_, err := r.Deny(context.Background(), invocation("gina", replier))
	assert.ErrorIs(t, err, sendErr)

	r.Register("gina", countingTask(new(int32), "x"))
	outcome, err := r.Deny(context.Background(), invocation("gina", replier))
	assert.Equal(t, OutcomeDenied, outcome)
	assert.ErrorIs(t, err, sendErr)
}

func TestExpireOnlyRemovesMatchingEntry(t *testing.T) {
	r := NewRegistry()
	r.Register("hank", countingTask(new(int32), "old"))
	old := r.Pending()[0]

	r.Register("hank", countingTask(new(int32), "new"))
	assert.False(t, r.Expire("hank", old.ID))
	assert.True(t, r.Has("hank"))

	current := r.Pending()[0]
	assert.True(t, r.Expire("hank", current.ID))
	assert.False(t, r.Has("hank"))
	assert.False(t, r.Expire("hank", current.ID))
}

func TestPendingIsOrderedByCreation(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	r.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	r.Register("u3", countingTask(new(int32), ""), WithChannel("c3"))
	r.Register("u1", countingTask(new(int32), ""), WithChannel("c1"))
	r.Register("u2", countingTask(new(int32), ""), WithChannel("c2"))

	entries := r.Pending()
	require.Len(t, entries, 3)
	assert.Equal(t, "u3", entries[0].UserID)
	assert.Equal(t, "c3", entries[0].ChannelID)
	assert.Equal(t, "u1", entries[1].UserID)
	assert.Equal(t, "u2", entries[2].UserID)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
}

func TestTakeReportsSentinel(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.Take("nobody")
	assert.ErrorIs(t, err, ErrNoPendingConfirmation)
}

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbus/persistence"
	"github.com/BaSui01/agentbus/types"
)

func recvSnapshot(t *testing.T, sub *Subscription) *types.StateRecord {
	t.Helper()
	select {
	case rec, ok := <-sub.Snapshots():
		require.True(t, ok, "subscription closed early")
		return rec
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a snapshot")
		return nil
	}
}

func requireClosed(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case rec, ok := <-sub.Snapshots():
		require.False(t, ok, "expected a closed channel, got snapshot at %v", rec)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the channel to close")
	}
}

func TestBus_SubscribeReplayThenLive(t *testing.T) {
	b, _, _ := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)
	_, err = b.Emit(ctx, "inc-1", "triage", types.StepRetrievingContext, nil)
	require.NoError(t, err)
	_, err = b.Emit(ctx, "inc-1", "triage", types.StepContextRetrieved, nil)
	require.NoError(t, err)

	sub, err := b.Subscribe(ctx, "inc-1", "triage")
	require.NoError(t, err)
	defer sub.Close()

	// the current snapshot arrives first, never the two older ones
	first := recvSnapshot(t, sub)
	assert.Equal(t, types.StepContextRetrieved, first.Step)

	_, err = b.Emit(ctx, "inc-1", "triage", types.StepCallingLLM, nil)
	require.NoError(t, err)
	live := recvSnapshot(t, sub)
	assert.Equal(t, types.StepCallingLLM, live.Step)
}

func TestBus_SubscribeSeesPauseAndResume(t *testing.T) {
	b, _, _ := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)

	sub, err := b.Subscribe(ctx, "inc-1", "triage")
	require.NoError(t, err)
	defer sub.Close()
	recvSnapshot(t, sub) // initial

	_, err = b.PauseForAction(ctx, "inc-1", "triage", "approve_policy",
		types.Payload{"proposal": types.String("close")}, time.Minute)
	require.NoError(t, err)
	paused := recvSnapshot(t, sub)
	assert.Equal(t, types.StepPausedForReview, paused.Step)
	require.NotNil(t, paused.PendingAction)
	assert.Equal(t, "approve_policy", paused.PendingAction.ActionName)

	_, err = b.ResumeFromAction(ctx, "inc-1", "triage",
		types.ActionResponse{ActionName: "approve_policy", Approved: true})
	require.NoError(t, err)
	resumed := recvSnapshot(t, sub)
	assert.Equal(t, types.StepResumedFromReview, resumed.Step)
	assert.Nil(t, resumed.PendingAction)
}

func TestBus_SubscribeDropOldest(t *testing.T) {
	store := persistence.NewMemoryStateStore()
	t.Cleanup(func() { _ = store.Close() })
	b := New(store, Config{ExpiryInterval: time.Hour, SubscriberBuffer: 2}, zap.NewNop())
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Stop() })
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)

	sub, err := b.Subscribe(ctx, "inc-1", "triage")
	require.NoError(t, err)
	defer sub.Close()

	// four more snapshots against a buffer of two: the oldest fall out
	for _, step := range []types.Step{
		types.StepRetrievingContext,
		types.StepContextRetrieved,
		types.StepCallingLLM,
		types.StepLLMCompleted,
	} {
		_, err = b.Emit(ctx, "inc-1", "triage", step, nil)
		require.NoError(t, err)
	}

	assert.Equal(t, types.StepCallingLLM, recvSnapshot(t, sub).Step)
	assert.Equal(t, types.StepLLMCompleted, recvSnapshot(t, sub).Step)

	// the subscription is still live after dropping
	_, err = b.Emit(ctx, "inc-1", "triage", types.StepValidating, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StepValidating, recvSnapshot(t, sub).Step)
}

func TestBus_TerminalPublishClosesSubscription(t *testing.T) {
	b, _, _ := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)

	sub, err := b.Subscribe(ctx, "inc-1", "triage")
	require.NoError(t, err)
	recvSnapshot(t, sub)

	_, err = b.Emit(ctx, "inc-1", "triage", types.StepCompleted, nil)
	require.NoError(t, err)

	final := recvSnapshot(t, sub)
	assert.Equal(t, types.StepCompleted, final.Step)
	requireClosed(t, sub)
}

func TestBus_SubscribeToTerminalRecord(t *testing.T) {
	b, _, _ := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)
	_, err = b.Emit(ctx, "inc-1", "triage", types.StepError, nil)
	require.NoError(t, err)

	// terminal entry still registered in memory
	sub, err := b.Subscribe(ctx, "inc-1", "triage")
	require.NoError(t, err)
	assert.Equal(t, types.StepError, recvSnapshot(t, sub).Step)
	requireClosed(t, sub)

	// terminal record only reachable through the store after a restart
	require.NoError(t, b.Stop())
	require.NoError(t, b.Start(ctx))
	sub, err = b.Subscribe(ctx, "inc-1", "triage")
	require.NoError(t, err)
	assert.Equal(t, types.StepError, recvSnapshot(t, sub).Step)
	requireClosed(t, sub)
}

func TestBus_SubscribeUnknownKey(t *testing.T) {
	b, _, _ := newTestBus(t)

	_, err := b.Subscribe(context.Background(), "ghost", "triage")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestBus_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b, _, _ := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)

	slow, err := b.Subscribe(ctx, "inc-1", "triage")
	require.NoError(t, err)
	defer slow.Close()
	fast, err := b.Subscribe(ctx, "inc-1", "triage")
	require.NoError(t, err)
	defer fast.Close()

	recvSnapshot(t, fast)

	// far more snapshots than the slow subscriber's buffer holds; emits
	// must finish regardless because fan-out never blocks
	steps := []types.Step{
		types.StepRetrievingContext,
		types.StepContextRetrieved,
		types.StepCallingLLM,
		types.StepLLMCompleted,
		types.StepValidating,
		types.StepValidationComplete,
		types.StepPolicyEvaluating,
		types.StepPolicyEvaluated,
		types.StepStoring,
	}
	for _, step := range steps {
		_, err = b.Emit(ctx, "inc-1", "triage", step, nil)
		require.NoError(t, err)
		got := recvSnapshot(t, fast)
		assert.Equal(t, step, got.Step)
	}
}

func TestBus_SubscriptionClose(t *testing.T) {
	b, _, _ := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)

	sub, err := b.Subscribe(ctx, "inc-1", "triage")
	require.NoError(t, err)
	sub.Close()
	sub.Close() // safe to repeat

	// buffered snapshot still drains, then the channel reports closed
	assert.Equal(t, types.StepInitialized, recvSnapshot(t, sub).Step)
	requireClosed(t, sub)

	// later mutations no longer reach the closed subscription
	_, err = b.Emit(ctx, "inc-1", "triage", types.StepStoring, nil)
	require.NoError(t, err)
}

func TestBus_StopClosesSubscriptions(t *testing.T) {
	store := persistence.NewMemoryStateStore()
	t.Cleanup(func() { _ = store.Close() })
	b := New(store, DefaultConfig(), zap.NewNop())
	require.NoError(t, b.Start(context.Background()))
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)
	sub, err := b.Subscribe(ctx, "inc-1", "triage")
	require.NoError(t, err)

	require.NoError(t, b.Stop())

	assert.Equal(t, types.StepInitialized, recvSnapshot(t, sub).Step)
	requireClosed(t, sub)
}

func TestBus_SnapshotOrderingPerKey(t *testing.T) {
	store := persistence.NewMemoryStateStore()
	t.Cleanup(func() { _ = store.Close() })
	b := New(store, Config{ExpiryInterval: time.Hour, SubscriberBuffer: 64}, zap.NewNop())
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Stop() })
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)
	sub, err := b.Subscribe(ctx, "inc-1", "triage")
	require.NoError(t, err)
	defer sub.Close()

	steps := []types.Step{
		types.StepRetrievingContext,
		types.StepContextRetrieved,
		types.StepCallingLLM,
		types.StepLLMCompleted,
		types.StepValidating,
		types.StepValidationComplete,
		types.StepPolicyEvaluating,
		types.StepPolicyEvaluated,
		types.StepStoring,
		types.StepCompleted,
	}
	for _, step := range steps {
		_, err = b.Emit(ctx, "inc-1", "triage", step, nil)
		require.NoError(t, err)
	}

	// with a buffer larger than the walk, the subscriber observes every
	// successful mutation in lock order with no gaps
	assert.Equal(t, types.StepInitialized, recvSnapshot(t, sub).Step)
	for _, step := range steps {
		assert.Equal(t, step, recvSnapshot(t, sub).Step)
	}
	requireClosed(t, sub)
}

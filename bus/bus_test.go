package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbus/persistence"
	"github.com/BaSui01/agentbus/types"
)

// fakeClock is a hand-advanced time source shared between a test and its
// bus.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// flakyStore wraps a real store and fails saves on demand.
type flakyStore struct {
	persistence.StateStore
	mu        sync.Mutex
	failSaves bool
}

func (s *flakyStore) setFailSaves(fail bool) {
	s.mu.Lock()
	s.failSaves = fail
	s.mu.Unlock()
}

func (s *flakyStore) Save(ctx context.Context, record *types.StateRecord) error {
	s.mu.Lock()
	fail := s.failSaves
	s.mu.Unlock()
	if fail {
		return errors.New("backend unavailable")
	}
	return s.StateStore.Save(ctx, record)
}

// newTestBus starts a bus over a fresh in-memory store with a long expiry
// interval; expiry tests drive the scan by hand for determinism.
func newTestBus(t *testing.T, opts ...Option) (*Bus, *persistence.MemoryStateStore, *fakeClock) {
	t.Helper()
	store := persistence.NewMemoryStateStore()
	clk := newFakeClock()
	opts = append([]Option{WithNowFunc(clk.Now)}, opts...)
	b := New(store, Config{ExpiryInterval: time.Hour, SubscriberBuffer: 4}, zap.NewNop(), opts...)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() {
		_ = b.Stop()
		_ = store.Close()
	})
	return b, store, clk
}

func TestBus_EmitRegistersWorkflow(t *testing.T) {
	b, _, clk := newTestBus(t)
	ctx := context.Background()

	rec, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, types.Payload{"severity": types.String("high")})
	require.NoError(t, err)
	assert.Equal(t, types.StepInitialized, rec.Step)
	assert.Equal(t, "inc-1", rec.WorkflowID)
	assert.Equal(t, "triage", rec.WorkflowType)
	assert.Equal(t, clk.Now(), rec.UpdatedAt)
	require.Len(t, rec.Log, 1)
	assert.Equal(t, types.EventTransition, rec.Log[0].Event)

	got, err := b.GetState(ctx, "inc-1", "triage")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestBus_EmitUnknownKeyNonInitial(t *testing.T) {
	b, _, _ := newTestBus(t)

	_, err := b.Emit(context.Background(), "ghost", "triage", types.StepValidating, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestBus_EmitAdvancesAndSkips(t *testing.T) {
	b, _, _ := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)

	rec, err := b.Emit(ctx, "inc-1", "triage", types.StepPolicyEvaluated, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StepPolicyEvaluated, rec.Step)
	assert.Len(t, rec.Log, 2)

	_, err = b.Emit(ctx, "inc-1", "triage", types.StepCallingLLM, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidTransition, types.GetErrorCode(err))

	_, err = b.Emit(ctx, "inc-1", "triage", types.StepPolicyEvaluated, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidTransition, types.GetErrorCode(err))
}

func TestBus_EmitRejectionLeavesStoreUntouched(t *testing.T) {
	b, store, _ := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)
	before, err := store.Load(ctx, "inc-1", "triage")
	require.NoError(t, err)

	_, err = b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.Error(t, err)

	after, err := store.Load(ctx, "inc-1", "triage")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestBus_EmitPayloadReplacement(t *testing.T) {
	b, _, _ := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, types.Payload{"severity": types.String("low")})
	require.NoError(t, err)

	// nil payload keeps the previous one
	rec, err := b.Emit(ctx, "inc-1", "triage", types.StepRetrievingContext, nil)
	require.NoError(t, err)
	sev, ok := rec.Payload["severity"].AsString()
	require.True(t, ok)
	assert.Equal(t, "low", sev)

	// a non-nil payload replaces it wholesale
	rec, err = b.Emit(ctx, "inc-1", "triage", types.StepContextRetrieved, types.Payload{"confidence": types.Float(0.9)})
	require.NoError(t, err)
	_, hasSeverity := rec.Payload["severity"]
	assert.False(t, hasSeverity)
	conf, ok := rec.Payload["confidence"].AsFloat()
	require.True(t, ok)
	assert.Equal(t, 0.9, conf)
}

func TestBus_EmitReservedSteps(t *testing.T) {
	b, _, _ := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)

	for _, step := range []types.Step{types.StepPausedForReview, types.StepResumedFromReview} {
		_, err = b.Emit(ctx, "inc-1", "triage", step, nil)
		require.Error(t, err)
		assert.Equal(t, types.ErrInvalidTransition, types.GetErrorCode(err))
	}
}

func TestBus_EmitOnTerminalRecord(t *testing.T) {
	b, _, _ := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)
	_, err = b.Emit(ctx, "inc-1", "triage", types.StepCompleted, nil)
	require.NoError(t, err)

	_, err = b.Emit(ctx, "inc-1", "triage", types.StepError, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidTransition, types.GetErrorCode(err))
}

func TestBus_SeparateTypesAreSeparateWorkflows(t *testing.T) {
	b, _, _ := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)
	_, err = b.Emit(ctx, "inc-1", "resolution", types.StepInitialized, nil)
	require.NoError(t, err)

	_, err = b.Emit(ctx, "inc-1", "triage", types.StepStoring, nil)
	require.NoError(t, err)

	rec, err := b.GetState(ctx, "inc-1", "resolution")
	require.NoError(t, err)
	assert.Equal(t, types.StepInitialized, rec.Step)
}

func TestBus_PauseForAction(t *testing.T) {
	b, _, clk := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)
	_, err = b.Emit(ctx, "inc-1", "triage", types.StepPolicyEvaluated, nil)
	require.NoError(t, err)

	rec, err := b.PauseForAction(ctx, "inc-1", "triage", "approve_policy",
		types.Payload{"proposal": types.String("close as duplicate")}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, types.StepPausedForReview, rec.Step)
	require.NotNil(t, rec.PendingAction)
	assert.Equal(t, "approve_policy", rec.PendingAction.ActionName)
	assert.False(t, rec.PendingAction.Consumed)
	assert.Equal(t, clk.Now(), rec.PendingAction.CreatedAt)
	require.NotNil(t, rec.PendingAction.ExpiresAt)
	assert.Equal(t, clk.Now().Add(time.Minute), *rec.PendingAction.ExpiresAt)

	// at most one live action per key
	_, err = b.PauseForAction(ctx, "inc-1", "triage", "another", nil, 0)
	require.Error(t, err)
	assert.Equal(t, types.ErrAlreadyPaused, types.GetErrorCode(err))

	// emits are rejected while paused
	_, err = b.Emit(ctx, "inc-1", "triage", types.StepStoring, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrAlreadyPaused, types.GetErrorCode(err))
}

func TestBus_PauseWithoutTTLNeverExpires(t *testing.T) {
	b, _, clk := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-2", "resolution", types.StepInitialized, nil)
	require.NoError(t, err)
	rec, err := b.PauseForAction(ctx, "inc-2", "resolution", "review_resolution", nil, 0)
	require.NoError(t, err)
	assert.Nil(t, rec.PendingAction.ExpiresAt)

	clk.Advance(1000 * time.Hour)
	b.expireDueActions(ctx)

	got, err := b.GetState(ctx, "inc-2", "resolution")
	require.NoError(t, err)
	assert.Equal(t, types.StepPausedForReview, got.Step)
	require.NotNil(t, got.PendingAction)

	resumed, err := b.ResumeFromAction(ctx, "inc-2", "resolution", types.ActionResponse{
		ActionName: "review_resolution",
		Approved:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, types.StepResumedFromReview, resumed.Step)
}

func TestBus_PauseUnknownKey(t *testing.T) {
	b, _, _ := newTestBus(t)

	_, err := b.PauseForAction(context.Background(), "ghost", "triage", "approve", nil, 0)
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestBus_ResumeFromAction(t *testing.T) {
	b, _, _ := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)
	_, err = b.PauseForAction(ctx, "inc-1", "triage", "approve_policy",
		types.Payload{"proposal": types.String("escalate")}, 0)
	require.NoError(t, err)

	rec, err := b.ResumeFromAction(ctx, "inc-1", "triage", types.ActionResponse{
		ActionName:    "approve_policy",
		Approved:      true,
		EditedPayload: types.Payload{"proposal": types.String("escalate to l2")},
		Notes:         "looks right",
	})
	require.NoError(t, err)
	assert.Equal(t, types.StepResumedFromReview, rec.Step)
	assert.Nil(t, rec.PendingAction)
	proposal, ok := rec.Payload["proposal"].AsString()
	require.True(t, ok)
	assert.Equal(t, "escalate to l2", proposal)

	// the workflow continues past the review
	rec, err = b.Emit(ctx, "inc-1", "triage", types.StepStoring, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StepStoring, rec.Step)
}

func TestBus_ResumeWrongActionName(t *testing.T) {
	b, _, _ := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)
	_, err = b.PauseForAction(ctx, "inc-1", "triage", "approve_policy", nil, 0)
	require.NoError(t, err)

	_, err = b.ResumeFromAction(ctx, "inc-1", "triage", types.ActionResponse{ActionName: "approve_other"})
	require.Error(t, err)
	assert.Equal(t, types.ErrActionNotFound, types.GetErrorCode(err))

	// the live action is untouched
	rec, err := b.GetState(ctx, "inc-1", "triage")
	require.NoError(t, err)
	require.NotNil(t, rec.PendingAction)
	assert.False(t, rec.PendingAction.Consumed)
}

func TestBus_ResumeTwice(t *testing.T) {
	b, _, _ := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)
	_, err = b.PauseForAction(ctx, "inc-1", "triage", "approve_policy", nil, 0)
	require.NoError(t, err)

	resp := types.ActionResponse{ActionName: "approve_policy", Approved: true}
	_, err = b.ResumeFromAction(ctx, "inc-1", "triage", resp)
	require.NoError(t, err)

	_, err = b.ResumeFromAction(ctx, "inc-1", "triage", resp)
	require.Error(t, err)
	assert.Equal(t, types.ErrActionAlreadyResolved, types.GetErrorCode(err))
}

func TestBus_ResumeUnknownKey(t *testing.T) {
	b, _, _ := newTestBus(t)

	_, err := b.ResumeFromAction(context.Background(), "ghost", "triage",
		types.ActionResponse{ActionName: "approve"})
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestBus_ConcurrentResumesResolveOnce(t *testing.T) {
	b, _, _ := newTestBus(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		id := "inc-" + string(rune('a'+i))
		_, err := b.Emit(ctx, id, "triage", types.StepInitialized, nil)
		require.NoError(t, err)
		_, err = b.PauseForAction(ctx, id, "triage", "approve_policy", nil, 0)
		require.NoError(t, err)

		resp := types.ActionResponse{ActionName: "approve_policy", Approved: true}
		errs := make([]error, 2)
		var wg sync.WaitGroup
		wg.Add(2)
		for j := 0; j < 2; j++ {
			go func(j int) {
				defer wg.Done()
				_, errs[j] = b.ResumeFromAction(ctx, id, "triage", resp)
			}(j)
		}
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
			} else {
				assert.Equal(t, types.ErrActionAlreadyResolved, types.GetErrorCode(err))
			}
		}
		assert.Equal(t, 1, winners)
	}
}

func TestBus_ErrorEmitWhilePausedVoidsAction(t *testing.T) {
	b, _, _ := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)
	_, err = b.PauseForAction(ctx, "inc-1", "triage", "approve_policy", nil, 0)
	require.NoError(t, err)

	rec, err := b.Emit(ctx, "inc-1", "triage", types.StepError, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StepError, rec.Step)
	assert.Nil(t, rec.PendingAction)

	// the action was voided, not resolved
	_, err = b.ResumeFromAction(ctx, "inc-1", "triage",
		types.ActionResponse{ActionName: "approve_policy"})
	require.Error(t, err)
	assert.Equal(t, types.ErrActionNotFound, types.GetErrorCode(err))
}

func TestBus_StoreFailureRollsBack(t *testing.T) {
	store := &flakyStore{StateStore: persistence.NewMemoryStateStore()}
	clk := newFakeClock()
	b := New(store, Config{ExpiryInterval: time.Hour}, zap.NewNop(), WithNowFunc(clk.Now))
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Stop() })
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)

	store.setFailSaves(true)
	_, err = b.Emit(ctx, "inc-1", "triage", types.StepValidating, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrStoreFailure, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))

	// memory rolled back together with the store
	rec, err := b.GetState(ctx, "inc-1", "triage")
	require.NoError(t, err)
	assert.Equal(t, types.StepInitialized, rec.Step)
	assert.Len(t, rec.Log, 1)

	store.setFailSaves(false)
	rec, err = b.Emit(ctx, "inc-1", "triage", types.StepValidating, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StepValidating, rec.Step)
}

func TestBus_FailedRegistrationLeavesNoGhost(t *testing.T) {
	store := &flakyStore{StateStore: persistence.NewMemoryStateStore()}
	b := New(store, Config{ExpiryInterval: time.Hour}, zap.NewNop())
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Stop() })
	ctx := context.Background()

	store.setFailSaves(true)
	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrStoreFailure, types.GetErrorCode(err))

	_, err = b.GetState(ctx, "inc-1", "triage")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))

	store.setFailSaves(false)
	rec, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StepInitialized, rec.Step)
}

func TestBus_GetStateReturnsCopies(t *testing.T) {
	b, _, _ := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized,
		types.Payload{"severity": types.String("low")})
	require.NoError(t, err)

	rec, err := b.GetState(ctx, "inc-1", "triage")
	require.NoError(t, err)
	rec.Step = types.StepError
	rec.Payload["severity"] = types.String("tampered")
	rec.Log = append(rec.Log, types.LogEntry{ID: "fake"})

	fresh, err := b.GetState(ctx, "inc-1", "triage")
	require.NoError(t, err)
	assert.Equal(t, types.StepInitialized, fresh.Step)
	sev, _ := fresh.Payload["severity"].AsString()
	assert.Equal(t, "low", sev)
	assert.Len(t, fresh.Log, 1)
}

func TestBus_GetStateUnknownKey(t *testing.T) {
	b, _, _ := newTestBus(t)

	_, err := b.GetState(context.Background(), "ghost", "triage")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestBus_ListPending(t *testing.T) {
	b, _, clk := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)
	_, err = b.PauseForAction(ctx, "inc-1", "triage", "approve_1", nil, 0)
	require.NoError(t, err)

	clk.Advance(time.Second)
	_, err = b.Emit(ctx, "inc-2", "triage", types.StepInitialized, nil)
	require.NoError(t, err)
	_, err = b.PauseForAction(ctx, "inc-2", "triage", "approve_2", nil, 0)
	require.NoError(t, err)

	_, err = b.Emit(ctx, "inc-3", "resolution", types.StepInitialized, nil)
	require.NoError(t, err)
	_, err = b.PauseForAction(ctx, "inc-3", "resolution", "review_3", nil, 0)
	require.NoError(t, err)

	// a running workflow with no pending action is not listed
	_, err = b.Emit(ctx, "inc-4", "triage", types.StepInitialized, nil)
	require.NoError(t, err)

	all, err := b.ListPending("")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "inc-1", all[0].WorkflowID)

	triage, err := b.ListPending("triage")
	require.NoError(t, err)
	require.Len(t, triage, 2)
	assert.Equal(t, "approve_1", triage[0].PendingAction.ActionName)
	assert.Equal(t, "approve_2", triage[1].PendingAction.ActionName)

	// resolution drops the workflow from the listing
	_, err = b.ResumeFromAction(ctx, "inc-1", "triage",
		types.ActionResponse{ActionName: "approve_1", Approved: true})
	require.NoError(t, err)
	triage, err = b.ListPending("triage")
	require.NoError(t, err)
	require.Len(t, triage, 1)
	assert.Equal(t, "inc-2", triage[0].WorkflowID)
}

func TestBus_LifecycleGuards(t *testing.T) {
	store := persistence.NewMemoryStateStore()
	t.Cleanup(func() { _ = store.Close() })
	b := New(store, DefaultConfig(), zap.NewNop())
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrBusNotStarted, types.GetErrorCode(err))
	_, err = b.GetState(ctx, "inc-1", "triage")
	assert.Equal(t, types.ErrBusNotStarted, types.GetErrorCode(err))
	_, err = b.ListPending("")
	assert.Equal(t, types.ErrBusNotStarted, types.GetErrorCode(err))

	require.NoError(t, b.Start(ctx))
	require.NoError(t, b.Start(ctx)) // idempotent

	_, err = b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)

	require.NoError(t, b.Stop())
	require.NoError(t, b.Stop()) // idempotent

	_, err = b.Emit(ctx, "inc-1", "triage", types.StepValidating, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrBusNotStarted, types.GetErrorCode(err))
}

func TestBus_RecoveryRoundTrip(t *testing.T) {
	store := persistence.NewMemoryStateStore()
	t.Cleanup(func() { _ = store.Close() })
	clk := newFakeClock()
	ctx := context.Background()

	b1 := New(store, Config{ExpiryInterval: time.Hour}, zap.NewNop(), WithNowFunc(clk.Now))
	require.NoError(t, b1.Start(ctx))

	// running
	_, err := b1.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)
	_, err = b1.Emit(ctx, "inc-1", "triage", types.StepCallingLLM, nil)
	require.NoError(t, err)

	// paused
	_, err = b1.Emit(ctx, "inc-2", "triage", types.StepInitialized, nil)
	require.NoError(t, err)
	_, err = b1.PauseForAction(ctx, "inc-2", "triage", "approve_policy", nil, time.Hour)
	require.NoError(t, err)

	// terminal
	_, err = b1.Emit(ctx, "inc-3", "resolution", types.StepInitialized, nil)
	require.NoError(t, err)
	_, err = b1.Emit(ctx, "inc-3", "resolution", types.StepCompleted, nil)
	require.NoError(t, err)

	before1, err := b1.GetState(ctx, "inc-1", "triage")
	require.NoError(t, err)
	before2, err := b1.GetState(ctx, "inc-2", "triage")
	require.NoError(t, err)
	require.NoError(t, b1.Stop())

	b2 := New(store, Config{ExpiryInterval: time.Hour}, zap.NewNop(), WithNowFunc(clk.Now))
	require.NoError(t, b2.Start(ctx))
	t.Cleanup(func() { _ = b2.Stop() })

	// non-terminal records are back in memory with identical state
	after1, err := b2.GetState(ctx, "inc-1", "triage")
	require.NoError(t, err)
	assert.Equal(t, before1, after1)
	after2, err := b2.GetState(ctx, "inc-2", "triage")
	require.NoError(t, err)
	assert.Equal(t, before2, after2)

	b2.mu.RLock()
	_, inMemory := b2.entries[types.Key{WorkflowID: "inc-3", WorkflowType: "resolution"}]
	b2.mu.RUnlock()
	assert.False(t, inMemory, "terminal records should not be recovered into memory")

	// but terminal records remain readable through the store
	rec3, err := b2.GetState(ctx, "inc-3", "resolution")
	require.NoError(t, err)
	assert.Equal(t, types.StepCompleted, rec3.Step)

	// the recovered pending action still accepts its resume
	resumed, err := b2.ResumeFromAction(ctx, "inc-2", "triage",
		types.ActionResponse{ActionName: "approve_policy", Approved: true})
	require.NoError(t, err)
	assert.Equal(t, types.StepResumedFromReview, resumed.Step)

	pending, err := b2.ListPending("")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestBus_RegisterAfterTerminalRejected(t *testing.T) {
	b, _, _ := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.NoError(t, err)
	_, err = b.Emit(ctx, "inc-1", "triage", types.StepCompleted, nil)
	require.NoError(t, err)

	// restart so the terminal record only lives in the store
	require.NoError(t, b.Stop())
	require.NoError(t, b.Start(ctx))

	_, err = b.Emit(ctx, "inc-1", "triage", types.StepInitialized, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidTransition, types.GetErrorCode(err))
}

func TestBus_ConcurrentWorkflowsProgressIndependently(t *testing.T) {
	b, _, _ := newTestBus(t)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			id := "inc-" + string(rune('a'+i))
			steps := []types.Step{
				types.StepInitialized,
				types.StepRetrievingContext,
				types.StepCallingLLM,
				types.StepValidating,
				types.StepPolicyEvaluated,
				types.StepStoring,
				types.StepCompleted,
			}
			for _, s := range steps {
				if _, err := b.Emit(ctx, id, "triage", s, nil); err != nil {
					errs[i] = err
					return
				}
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		rec, err := b.GetState(ctx, "inc-"+string(rune('a'+i)), "triage")
		require.NoError(t, err)
		assert.Equal(t, types.StepCompleted, rec.Step)
		assert.Len(t, rec.Log, 7)
	}
}

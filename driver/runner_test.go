package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbus/bus"
	"github.com/BaSui01/agentbus/persistence"
	"github.com/BaSui01/agentbus/types"
)

func newTestRunner(t *testing.T) (*Runner, *bus.Bus) {
	t.Helper()
	store := persistence.NewMemoryStateStore()
	t.Cleanup(func() { _ = store.Close() })
	b := bus.New(store, bus.Config{ExpiryInterval: time.Hour, SubscriberBuffer: 4}, zap.NewNop())
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Stop() })
	return NewRunner(b, Config{MaxRetries: 3, RetryDelay: time.Millisecond}, zap.NewNop()), b
}

func setField(key, value string) StepFunc {
	return func(ctx context.Context, payload types.Payload) (types.Payload, error) {
		out := payload.Clone()
		if out == nil {
			out = types.Payload{}
		}
		out[key] = types.String(value)
		return out, nil
	}
}

func TestRunner_WalksToCompletion(t *testing.T) {
	r, b := newTestRunner(t)
	ctx := context.Background()

	plan := Plan{
		WorkflowID:   "inc-1",
		WorkflowType: "triage",
		Checkpoints: []Checkpoint{
			{Step: types.StepRetrievingContext},
			{Step: types.StepContextRetrieved, Run: setField("context", "3 similar incidents")},
			{Step: types.StepCallingLLM},
			{Step: types.StepLLMCompleted, Run: setField("proposal", "restart api pods")},
			{Step: types.StepStoring},
			{Step: types.StepCompleted},
		},
	}

	rec, err := r.Run(ctx, plan, types.Payload{"incident": types.String("INC-420")})
	require.NoError(t, err)
	assert.Equal(t, types.StepCompleted, rec.Step)

	incident, ok := rec.Payload["incident"].AsString()
	require.True(t, ok)
	assert.Equal(t, "INC-420", incident)
	proposal, ok := rec.Payload["proposal"].AsString()
	require.True(t, ok)
	assert.Equal(t, "restart api pods", proposal)

	// register plus six emits
	assert.Len(t, rec.Log, 7)

	stored, err := b.GetState(ctx, "inc-1", "triage")
	require.NoError(t, err)
	assert.Equal(t, types.StepCompleted, stored.Step)
}

func TestRunner_PausesAtGate(t *testing.T) {
	r, b := newTestRunner(t)
	ctx := context.Background()

	var ranAfterGate bool
	plan := Plan{
		WorkflowID:   "inc-1",
		WorkflowType: "triage",
		Checkpoints: []Checkpoint{
			{Step: types.StepRetrievingContext},
			{Step: types.StepPolicyEvaluated, Pause: &PausePoint{
				ActionName: "approve_policy",
				TTL:        time.Minute,
				Prompt:     types.Payload{"proposal": types.String("restart api pods")},
			}},
			{Step: types.StepStoring, Run: func(ctx context.Context, p types.Payload) (types.Payload, error) {
				ranAfterGate = true
				return nil, nil
			}},
		},
	}

	rec, err := r.Run(ctx, plan, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StepPausedForReview, rec.Step)
	require.NotNil(t, rec.PendingAction)
	assert.Equal(t, "approve_policy", rec.PendingAction.ActionName)
	proposal, ok := rec.PendingAction.PromptPayload["proposal"].AsString()
	require.True(t, ok)
	assert.Equal(t, "restart api pods", proposal)
	assert.False(t, ranAfterGate, "checkpoints past the gate must not run")

	// the reviewer responds and the caller finishes the walk by hand
	resumed, err := b.ResumeFromAction(ctx, "inc-1", "triage",
		types.ActionResponse{ActionName: "approve_policy", Approved: true})
	require.NoError(t, err)
	assert.Equal(t, types.StepResumedFromReview, resumed.Step)

	_, err = b.Emit(ctx, "inc-1", "triage", types.StepStoring, nil)
	require.NoError(t, err)
	final, err := b.Emit(ctx, "inc-1", "triage", types.StepCompleted, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StepCompleted, final.Step)
}

func TestRunner_PromptDefaultsToPayload(t *testing.T) {
	r, _ := newTestRunner(t)
	ctx := context.Background()

	plan := Plan{
		WorkflowID:   "inc-1",
		WorkflowType: "triage",
		Checkpoints: []Checkpoint{
			{Step: types.StepLLMCompleted, Run: setField("proposal", "scale up"),
				Pause: &PausePoint{ActionName: "approve_policy", TTL: time.Minute}},
		},
	}

	rec, err := r.Run(ctx, plan, nil)
	require.NoError(t, err)
	require.NotNil(t, rec.PendingAction)
	proposal, ok := rec.PendingAction.PromptPayload["proposal"].AsString()
	require.True(t, ok)
	assert.Equal(t, "scale up", proposal)
}

func TestRunner_RetriesUntilSuccess(t *testing.T) {
	r, _ := newTestRunner(t)
	ctx := context.Background()

	attempts := 0
	plan := Plan{
		WorkflowID:   "inc-1",
		WorkflowType: "triage",
		Checkpoints: []Checkpoint{
			{Step: types.StepContextRetrieved, Run: func(ctx context.Context, p types.Payload) (types.Payload, error) {
				attempts++
				if attempts < 3 {
					return nil, errors.New("transient failure")
				}
				return nil, nil
			}},
			{Step: types.StepCompleted},
		},
	}

	rec, err := r.Run(ctx, plan, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StepCompleted, rec.Step)
	assert.Equal(t, 3, attempts)
}

func TestRunner_ExhaustedRetriesMarksError(t *testing.T) {
	r, b := newTestRunner(t)
	ctx := context.Background()

	stepErr := errors.New("llm unavailable")
	attempts := 0
	plan := Plan{
		WorkflowID:   "inc-1",
		WorkflowType: "triage",
		Checkpoints: []Checkpoint{
			{Step: types.StepCallingLLM, Run: func(ctx context.Context, p types.Payload) (types.Payload, error) {
				attempts++
				return nil, stepErr
			}},
		},
	}

	_, err := r.Run(ctx, plan, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, stepErr)
	assert.Equal(t, 4, attempts) // first try plus three retries

	rec, err := b.GetState(ctx, "inc-1", "triage")
	require.NoError(t, err)
	assert.Equal(t, types.StepError, rec.Step)
}

func TestRunner_NilRunEmitsUnchanged(t *testing.T) {
	r, _ := newTestRunner(t)
	ctx := context.Background()

	plan := Plan{
		WorkflowID:   "inc-1",
		WorkflowType: "triage",
		Checkpoints:  []Checkpoint{{Step: types.StepRetrievingContext}},
	}

	rec, err := r.Run(ctx, plan, types.Payload{"incident": types.String("INC-1")})
	require.NoError(t, err)
	assert.Equal(t, types.StepRetrievingContext, rec.Step)
	incident, ok := rec.Payload["incident"].AsString()
	require.True(t, ok)
	assert.Equal(t, "INC-1", incident)
}

func TestRunner_ContextCancelled(t *testing.T) {
	r, b := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := Plan{
		WorkflowID:   "inc-1",
		WorkflowType: "triage",
		Checkpoints:  []Checkpoint{{Step: types.StepRetrievingContext}},
	}

	_, err := r.Run(ctx, plan, nil)
	require.ErrorIs(t, err, context.Canceled)

	rec, err := b.GetState(context.Background(), "inc-1", "triage")
	require.NoError(t, err)
	assert.Equal(t, types.StepError, rec.Step)
}

func TestRunner_RerunOfFinishedWorkflowRejected(t *testing.T) {
	r, _ := newTestRunner(t)
	ctx := context.Background()

	plan := Plan{
		WorkflowID:   "inc-1",
		WorkflowType: "triage",
		Checkpoints:  []Checkpoint{{Step: types.StepCompleted}},
	}

	_, err := r.Run(ctx, plan, nil)
	require.NoError(t, err)

	_, err = r.Run(ctx, plan, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidTransition, types.GetErrorCode(err))
}

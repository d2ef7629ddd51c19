package bus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/agentbus/persistence"
	"github.com/BaSui01/agentbus/types"
)

// TestProperty_BusRandomWalk drives one workflow through a random mix of
// emits, pauses, resumes and expiry sweeps and checks the structural
// invariants after every operation.
func TestProperty_BusRandomWalk(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		store := persistence.NewMemoryStateStore()
		defer func() { _ = store.Close() }()
		clk := newFakeClock()
		b := New(store, Config{ExpiryInterval: time.Hour, SubscriberBuffer: 4},
			zap.NewNop(), WithNowFunc(clk.Now))
		require.NoError(t, b.Start(context.Background()))
		defer func() { _ = b.Stop() }()
		ctx := context.Background()

		_, err := b.Emit(ctx, "walk", "triage", types.StepInitialized, nil)
		require.NoError(t, err)

		lastLogLen := 0
		sawTerminal := false
		actionSeq := 0

		numOps := rapid.IntRange(1, 40).Draw(rt, "numOps")
		for i := 0; i < numOps; i++ {
			switch rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("op_%d", i)) {
			case 0:
				idx := rapid.IntRange(0, len(types.StepOrder)-1).Draw(rt, fmt.Sprintf("step_%d", i))
				_, _ = b.Emit(ctx, "walk", "triage", types.StepOrder[idx], nil)
			case 1:
				actionSeq++
				ttl := time.Duration(rapid.IntRange(0, 5).Draw(rt, fmt.Sprintf("ttl_%d", i))) * time.Second
				_, _ = b.PauseForAction(ctx, "walk", "triage",
					fmt.Sprintf("action_%d", actionSeq), nil, ttl)
			case 2:
				n := rapid.IntRange(0, actionSeq+1).Draw(rt, fmt.Sprintf("resume_%d", i))
				approved := rapid.IntRange(0, 1).Draw(rt, fmt.Sprintf("approved_%d", i)) == 1
				_, _ = b.ResumeFromAction(ctx, "walk", "triage", types.ActionResponse{
					ActionName: fmt.Sprintf("action_%d", n),
					Approved:   approved,
				})
			case 3:
				secs := rapid.IntRange(0, 6).Draw(rt, fmt.Sprintf("advance_%d", i))
				clk.Advance(time.Duration(secs) * time.Second)
				b.expireDueActions(ctx)
			}

			rec, err := b.GetState(ctx, "walk", "triage")
			require.NoError(t, err)

			// a pending action exists exactly while the workflow is paused
			if rec.Step == types.StepPausedForReview {
				require.NotNil(t, rec.PendingAction)
			} else {
				require.Nil(t, rec.PendingAction)
			}

			// the log only ever grows
			require.GreaterOrEqual(t, len(rec.Log), lastLogLen)
			lastLogLen = len(rec.Log)

			// once terminal, always terminal
			if sawTerminal {
				require.True(t, rec.Step.IsTerminal())
			}
			sawTerminal = sawTerminal || rec.Step.IsTerminal()

			// the store carries exactly what the bus serves
			stored, err := store.Load(ctx, "walk", "triage")
			require.NoError(t, err)
			assert.Equal(t, rec.Step, stored.Step)
			assert.Equal(t, len(rec.Log), len(stored.Log))
			assert.Equal(t, rec.PendingAction == nil, stored.PendingAction == nil)
		}
	})
}

// TestProperty_RecoveryPreservesState runs a random walk, restarts the bus
// against the same store and checks nothing about the record changed.
func TestProperty_RecoveryPreservesState(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		store := persistence.NewMemoryStateStore()
		defer func() { _ = store.Close() }()
		clk := newFakeClock()
		cfg := Config{ExpiryInterval: time.Hour, SubscriberBuffer: 4}
		ctx := context.Background()

		b1 := New(store, cfg, zap.NewNop(), WithNowFunc(clk.Now))
		require.NoError(t, b1.Start(ctx))

		_, err := b1.Emit(ctx, "walk", "triage", types.StepInitialized, nil)
		require.NoError(t, err)

		actionSeq := 0
		numOps := rapid.IntRange(1, 15).Draw(rt, "numOps")
		for i := 0; i < numOps; i++ {
			if rapid.IntRange(0, 2).Draw(rt, fmt.Sprintf("op_%d", i)) == 0 {
				actionSeq++
				_, _ = b1.PauseForAction(ctx, "walk", "triage",
					fmt.Sprintf("action_%d", actionSeq), nil, time.Hour)
			} else {
				idx := rapid.IntRange(0, len(types.StepOrder)-1).Draw(rt, fmt.Sprintf("step_%d", i))
				_, _ = b1.Emit(ctx, "walk", "triage", types.StepOrder[idx], nil)
			}
		}

		before, err := b1.GetState(ctx, "walk", "triage")
		require.NoError(t, err)
		require.NoError(t, b1.Stop())

		b2 := New(store, cfg, zap.NewNop(), WithNowFunc(clk.Now))
		require.NoError(t, b2.Start(ctx))
		defer func() { _ = b2.Stop() }()

		after, err := b2.GetState(ctx, "walk", "triage")
		require.NoError(t, err)
		assert.Equal(t, before.Step, after.Step)
		assert.Equal(t, len(before.Log), len(after.Log))
		require.Equal(t, before.PendingAction == nil, after.PendingAction == nil)

		// a pause that survived the restart is still resumable
		if after.Step == types.StepPausedForReview {
			resumed, err := b2.ResumeFromAction(ctx, "walk", "triage", types.ActionResponse{
				ActionName: after.PendingAction.ActionName,
				Approved:   true,
			})
			require.NoError(t, err)
			assert.Equal(t, types.StepResumedFromReview, resumed.Step)
		}
	})
}

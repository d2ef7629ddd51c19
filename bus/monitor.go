package bus

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentbus/types"
)

// runExpiryMonitor ticks at the configured interval and escalates every
// pending action whose deadline has passed. Runs until ctx is canceled.
func (b *Bus) runExpiryMonitor(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.ExpiryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.expireDueActions(ctx)
		}
	}
}

// expireDueActions runs one scan over a snapshot of the registry. Each
// escalation takes the same per-key lock as resume, so a racing human
// decision and a deadline can never both win.
func (b *Bus) expireDueActions(ctx context.Context) {
	b.mu.RLock()
	entries := make([]*entry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e)
	}
	b.mu.RUnlock()

	for _, e := range entries {
		select {
		case <-ctx.Done():
			return
		default:
		}
		b.expireEntry(ctx, e)
	}
}

// expireEntry escalates the entry's pending action when its deadline has
// passed: the action is cleared, the record moves to ERROR, and the final
// snapshot is published. A failed persist leaves the action pending for
// the next tick to retry.
func (b *Bus) expireEntry(ctx context.Context, e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec := e.record
	if rec == nil || rec.IsTerminal() {
		return
	}
	live := rec.LivePendingAction()
	now := b.now()
	if live == nil || !live.Expired(now) {
		return
	}

	clone := rec.Clone()
	from := clone.Step
	clone.PendingAction = nil
	clone.Step = types.StepError
	clone.UpdatedAt = now
	appendLog(clone, now, types.StepError, types.EventExpire, live.ActionName+" expired")

	if err := b.applyLocked(ctx, e, clone); err != nil {
		b.logger.Error("escalating expired action failed",
			zap.String("workflow_id", rec.WorkflowID),
			zap.String("workflow_type", rec.WorkflowType),
			zap.String("action", live.ActionName),
			zap.Error(err))
		return
	}

	if b.metrics != nil {
		b.metrics.RecordExpiration(clone.WorkflowType)
		b.metrics.RecordStepTransition(clone.WorkflowType, string(from), string(types.StepError))
		b.metrics.RecordWorkflowClosed(clone.WorkflowType)
	}
	b.logger.Warn("pending action expired",
		zap.String("workflow_id", clone.WorkflowID),
		zap.String("workflow_type", clone.WorkflowType),
		zap.String("action", live.ActionName),
		zap.Time("deadline", *live.ExpiresAt))
}

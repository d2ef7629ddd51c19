// Package bus implements the agent state bus: a registry of durable
// per-workflow state machines with human checkpoints, crash recovery,
// deadline escalation, and non-blocking snapshot fan-out to observers.
//
// Many workflow keys mutate fully concurrently. Within one key every
// mutation runs under a single per-key lock in the order
// validate, mutate a copy, persist, swap, publish. A failed persist swaps
// nothing, so memory never runs ahead of the store.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentbus/internal/channel"
	"github.com/BaSui01/agentbus/internal/clock"
	"github.com/BaSui01/agentbus/internal/metrics"
	"github.com/BaSui01/agentbus/persistence"
	"github.com/BaSui01/agentbus/types"
)

// Config tunes bus behavior. The zero value is usable; unset fields take
// the defaults from DefaultConfig.
type Config struct {
	// ExpiryInterval is the tick period of the pending action deadline scan.
	ExpiryInterval time.Duration `json:"expiry_interval" yaml:"expiry_interval"`

	// SubscriberBuffer is the per-subscriber snapshot channel capacity.
	// A subscriber that falls behind by more than this loses its oldest
	// buffered snapshots, never the newest.
	SubscriberBuffer int `json:"subscriber_buffer" yaml:"subscriber_buffer"`
}

// DefaultConfig returns the default bus configuration.
func DefaultConfig() Config {
	return Config{
		ExpiryInterval:   2 * time.Second,
		SubscriberBuffer: 16,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ExpiryInterval <= 0 {
		c.ExpiryInterval = def.ExpiryInterval
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = def.SubscriberBuffer
	}
	return c
}

// Option customizes a Bus beyond its Config.
type Option func(*Bus)

// WithMetrics attaches a metrics collector. Without it the bus records
// nothing.
func WithMetrics(collector *metrics.Collector) Option {
	return func(b *Bus) { b.metrics = collector }
}

// WithNowFunc overrides the bus time source. Tests use this to drive
// deadlines deterministically.
func WithNowFunc(now func() time.Time) Option {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

// entry is the in-memory registration of one workflow key: the current
// snapshot, its subscribers, and the per-key lock that serializes every
// mutation for the key.
type entry struct {
	mu sync.Mutex

	// record is nil only while the registering call persists the very
	// first snapshot; it holds mu for that whole window.
	record *types.StateRecord

	// removed marks an entry that a failed registration took back out of
	// the map. Holders of a stale pointer retry their lookup.
	removed bool

	subs map[uint64]*Subscription
}

// Bus is the state bus. Construct with New, call Start before use, Stop to
// shut down. All methods are safe for concurrent use.
type Bus struct {
	store   persistence.StateStore
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time

	mu      sync.RWMutex
	entries map[types.Key]*entry
	started bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	subSeq atomic.Uint64
}

// New creates a bus over the given store. The store stays open across
// Stop; closing it belongs to whoever opened it.
func New(store persistence.StateStore, cfg Config, logger *zap.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		store:   store,
		cfg:     cfg.withDefaults(),
		logger:  logger.With(zap.String("component", "bus")),
		now:     clock.Now,
		entries: make(map[types.Key]*entry),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start reloads every non-terminal record from the store and launches the
// expiry monitor. Recovery completes before Start returns, so a resume
// arriving right after a restart finds its pending action instead of
// NOT_FOUND. Calling Start on a started bus is a no-op.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}

	records, err := b.listNonTerminal(ctx)
	if err != nil {
		return err
	}

	b.entries = make(map[types.Key]*entry, len(records))
	for _, rec := range records {
		b.entries[rec.Key()] = &entry{
			record: rec.Clone(),
			subs:   make(map[uint64]*Subscription),
		}
		if b.metrics != nil {
			b.metrics.RecordRecoveredWorkflow(rec.WorkflowType)
			b.metrics.RecordWorkflowOpened(rec.WorkflowType)
		}
	}

	monCtx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(monCtx)
	group.Go(func() error { return b.runExpiryMonitor(gctx) })
	b.cancel = cancel
	b.group = group
	b.started = true

	b.logger.Info("state bus started",
		zap.Int("recovered", len(records)),
		zap.Duration("expiry_interval", b.cfg.ExpiryInterval))
	return nil
}

// Stop cancels the expiry monitor, waits for it to drain, and closes every
// open subscription. In-flight per-key operations finish naturally.
// Calling Stop on a stopped bus is a no-op.
func (b *Bus) Stop() error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = false
	cancel, group := b.cancel, b.group
	b.cancel, b.group = nil, nil
	entries := make([]*entry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e)
	}
	b.mu.Unlock()

	cancel()
	err := group.Wait()

	for _, e := range entries {
		e.mu.Lock()
		if b.metrics != nil && e.record != nil && !e.record.IsTerminal() {
			b.metrics.RecordWorkflowClosed(e.record.WorkflowType)
		}
		for id, sub := range e.subs {
			delete(e.subs, id)
			sub.closeLocked()
			if b.metrics != nil {
				b.metrics.RecordSubscriberClosed(sub.key.WorkflowType)
			}
		}
		e.mu.Unlock()
	}

	b.logger.Info("state bus stopped")
	return err
}

// Emit advances a workflow to the given step and publishes the new
// snapshot. Emitting INITIALIZED for an unknown key registers the
// workflow; any other step on an unknown key fails with NOT_FOUND. A nil
// payload keeps the record's payload; a non-nil payload replaces it
// verbatim.
func (b *Bus) Emit(ctx context.Context, workflowID, workflowType string, step types.Step, payload types.Payload) (*types.StateRecord, error) {
	key := types.Key{WorkflowID: workflowID, WorkflowType: workflowType}
	for {
		e, err := b.lockEntry(key)
		if err != nil {
			return nil, err
		}
		if e == nil {
			rec, retry, rerr := b.register(ctx, key, step, payload)
			if retry {
				continue
			}
			return rec, rerr
		}
		rec, err := b.emitLocked(ctx, e, step, payload)
		e.mu.Unlock()
		return rec, err
	}
}

// PauseForAction suspends a workflow at a human checkpoint: the step moves
// to PAUSED_FOR_REVIEW and a fresh pending action is installed. A ttl of
// zero or less means the action never expires. The returned snapshot
// embeds the pending action for the caller to hand to a reviewer.
func (b *Bus) PauseForAction(ctx context.Context, workflowID, workflowType, actionName string, promptPayload types.Payload, ttl time.Duration) (*types.StateRecord, error) {
	key := types.Key{WorkflowID: workflowID, WorkflowType: workflowType}
	for {
		e, err := b.lockEntry(key)
		if err != nil {
			return nil, err
		}
		if e == nil {
			stored, err := b.adoptOrStored(ctx, key)
			if err != nil {
				return nil, err
			}
			if stored != nil {
				return nil, b.reject(workflowType, types.NewError(types.ErrInvalidTransition,
					fmt.Sprintf("record is terminal at %s", stored.Step)))
			}
			continue
		}
		rec, err := b.pauseLocked(ctx, e, actionName, promptPayload, ttl)
		e.mu.Unlock()
		return rec, err
	}
}

// ResumeFromAction applies a human decision to the workflow's current
// pending action. Exactly one of a racing resume and deadline expiry wins;
// the loser sees ACTION_ALREADY_RESOLVED. A response naming anything other
// than the live action fails with ACTION_NOT_FOUND.
func (b *Bus) ResumeFromAction(ctx context.Context, workflowID, workflowType string, response types.ActionResponse) (*types.StateRecord, error) {
	key := types.Key{WorkflowID: workflowID, WorkflowType: workflowType}
	for {
		e, err := b.lockEntry(key)
		if err != nil {
			return nil, err
		}
		if e == nil {
			stored, err := b.adoptOrStored(ctx, key)
			if err != nil {
				return nil, err
			}
			if stored != nil {
				// Terminal records answer duplicate resumes truthfully
				// even after the key left memory.
				return nil, b.resolveFailure(stored, response.ActionName)
			}
			continue
		}
		rec, err := b.resumeLocked(ctx, e, response)
		e.mu.Unlock()
		return rec, err
	}
}

// GetState returns a deep copy of the workflow's current snapshot. Keys
// recovery left out of memory fall through to the store, so terminal
// records stay readable.
func (b *Bus) GetState(ctx context.Context, workflowID, workflowType string) (*types.StateRecord, error) {
	key := types.Key{WorkflowID: workflowID, WorkflowType: workflowType}
	e, err := b.lockEntry(key)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return b.loadRecord(ctx, workflowID, workflowType)
	}
	rec := e.record.Clone()
	e.mu.Unlock()
	return rec, nil
}

// ListPending returns a snapshot of every workflow currently awaiting a
// human decision, oldest checkpoint first. An empty workflowType matches
// all types.
func (b *Bus) ListPending(workflowType string) ([]*types.StateRecord, error) {
	b.mu.RLock()
	if !b.started {
		b.mu.RUnlock()
		return nil, errNotStarted()
	}
	entries := make([]*entry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e)
	}
	b.mu.RUnlock()

	var out []*types.StateRecord
	for _, e := range entries {
		e.mu.Lock()
		rec := e.record
		if rec != nil && rec.LivePendingAction() != nil &&
			(workflowType == "" || rec.WorkflowType == workflowType) {
			out = append(out, rec.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PendingAction.CreatedAt.Before(out[j].PendingAction.CreatedAt)
	})
	return out, nil
}

// Subscribe attaches an observer to a workflow key. The current snapshot
// is buffered before Subscribe returns, so the observer always sees the
// state it subscribed at, then every later mutation in order. Subscribing
// to a record that is already terminal yields that final snapshot on an
// already-closed channel.
func (b *Bus) Subscribe(ctx context.Context, workflowID, workflowType string) (*Subscription, error) {
	key := types.Key{WorkflowID: workflowID, WorkflowType: workflowType}
	for {
		e, err := b.lockEntry(key)
		if err != nil {
			return nil, err
		}
		if e == nil {
			stored, err := b.adoptOrStored(ctx, key)
			if err != nil {
				return nil, err
			}
			if stored != nil {
				sub := b.newSubscription(key)
				sub.deliver(stored.Clone())
				sub.closeLocked()
				return sub, nil
			}
			continue
		}
		sub := b.attachLocked(e, key)
		e.mu.Unlock()
		return sub, nil
	}
}

// lockEntry returns the entry for key with its lock held, or nil when the
// key is not registered in memory. Entries that a failed registration
// removed mid-lookup are retried.
func (b *Bus) lockEntry(key types.Key) (*entry, error) {
	for {
		b.mu.RLock()
		if !b.started {
			b.mu.RUnlock()
			return nil, errNotStarted()
		}
		e := b.entries[key]
		b.mu.RUnlock()
		if e == nil {
			return nil, nil
		}
		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}
		return e, nil
	}
}

// register creates and persists a fresh record at INITIALIZED for a key
// absent from memory. retry is true when the key turned out to exist after
// all; the caller loops and mutates it under its lock instead.
func (b *Bus) register(ctx context.Context, key types.Key, step types.Step, payload types.Payload) (rec *types.StateRecord, retry bool, err error) {
	stored, err := b.loadRecord(ctx, key.WorkflowID, key.WorkflowType)
	if err == nil {
		if stored.IsTerminal() {
			return nil, false, b.reject(key.WorkflowType, types.NewError(types.ErrInvalidTransition,
				fmt.Sprintf("record is terminal at %s", stored.Step)))
		}
		// Non-terminal but missing from memory: written after recovery.
		// Take it back in and retry under its lock.
		b.adopt(key, stored)
		return nil, true, nil
	}
	if !types.IsCode(err, types.ErrNotFound) {
		return nil, false, err
	}
	if step != types.StepInitialized {
		return nil, false, b.reject(key.WorkflowType, types.NewError(types.ErrNotFound,
			fmt.Sprintf("workflow %s not found", key)))
	}

	now := b.now()
	fresh := types.NewStateRecord(key.WorkflowID, key.WorkflowType)
	fresh.UpdatedAt = now
	if payload != nil {
		fresh.Payload = payload.Clone()
	}
	appendLog(fresh, now, types.StepInitialized, types.EventTransition, "workflow registered")

	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil, false, errNotStarted()
	}
	if _, ok := b.entries[key]; ok {
		b.mu.Unlock()
		return nil, true, nil
	}
	e := &entry{subs: make(map[uint64]*Subscription)}
	e.mu.Lock()
	b.entries[key] = e
	b.mu.Unlock()

	if err := b.saveRecord(ctx, fresh); err != nil {
		e.removed = true
		e.mu.Unlock()
		b.mu.Lock()
		if b.entries[key] == e {
			delete(b.entries, key)
		}
		b.mu.Unlock()
		return nil, false, err
	}
	e.record = fresh
	e.mu.Unlock()

	if b.metrics != nil {
		b.metrics.RecordWorkflowOpened(key.WorkflowType)
	}
	b.logger.Info("workflow registered",
		zap.String("workflow_id", key.WorkflowID),
		zap.String("workflow_type", key.WorkflowType))
	return fresh.Clone(), false, nil
}

// adoptOrStored resolves a key absent from memory. Non-terminal store
// records are adopted back into the registry (the caller retries its
// lookup); terminal ones are returned as-is.
func (b *Bus) adoptOrStored(ctx context.Context, key types.Key) (*types.StateRecord, error) {
	stored, err := b.loadRecord(ctx, key.WorkflowID, key.WorkflowType)
	if err != nil {
		return nil, err
	}
	if stored.IsTerminal() {
		return stored, nil
	}
	b.adopt(key, stored)
	return nil, nil
}

func (b *Bus) adopt(key types.Key, rec *types.StateRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[key]; ok {
		return
	}
	b.entries[key] = &entry{
		record: rec.Clone(),
		subs:   make(map[uint64]*Subscription),
	}
	if b.metrics != nil {
		b.metrics.RecordWorkflowOpened(key.WorkflowType)
	}
}

func (b *Bus) emitLocked(ctx context.Context, e *entry, step types.Step, payload types.Payload) (*types.StateRecord, error) {
	rec := e.record
	if verr := validateEmitTarget(rec.Step, step); verr != nil {
		return nil, b.reject(rec.WorkflowType, verr)
	}

	now := b.now()
	clone := rec.Clone()
	from := clone.Step
	clone.Step = step
	if payload != nil {
		clone.Payload = payload.Clone()
	}
	detail := ""
	if step == types.StepError && clone.PendingAction != nil {
		// An error raised while paused voids the outstanding action.
		detail = "errored while awaiting " + clone.PendingAction.ActionName
		clone.PendingAction = nil
	}
	clone.UpdatedAt = now
	appendLog(clone, now, step, types.EventTransition, detail)

	if err := b.applyLocked(ctx, e, clone); err != nil {
		return nil, err
	}

	if b.metrics != nil {
		b.metrics.RecordStepTransition(clone.WorkflowType, string(from), string(step))
		if step.IsTerminal() {
			b.metrics.RecordWorkflowClosed(clone.WorkflowType)
		}
	}
	b.logger.Info("step transition",
		zap.String("workflow_id", clone.WorkflowID),
		zap.String("workflow_type", clone.WorkflowType),
		zap.String("from", string(from)),
		zap.String("to", string(step)))
	return clone.Clone(), nil
}

func (b *Bus) pauseLocked(ctx context.Context, e *entry, actionName string, promptPayload types.Payload, ttl time.Duration) (*types.StateRecord, error) {
	rec := e.record
	if rec.IsTerminal() {
		return nil, b.reject(rec.WorkflowType, types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("record is terminal at %s", rec.Step)))
	}
	if live := rec.LivePendingAction(); live != nil {
		return nil, b.reject(rec.WorkflowType, types.NewError(types.ErrAlreadyPaused,
			fmt.Sprintf("action %q is already awaiting a decision", live.ActionName)))
	}

	now := b.now()
	action := &types.PendingAction{
		ActionName:    actionName,
		PromptPayload: promptPayload.Clone(),
		CreatedAt:     now,
	}
	if ttl > 0 {
		deadline := now.Add(ttl)
		action.ExpiresAt = &deadline
	}

	clone := rec.Clone()
	from := clone.Step
	clone.Step = types.StepPausedForReview
	clone.PendingAction = action
	clone.UpdatedAt = now
	appendLog(clone, now, types.StepPausedForReview, types.EventPause, actionName)

	if err := b.applyLocked(ctx, e, clone); err != nil {
		return nil, err
	}

	if b.metrics != nil {
		b.metrics.RecordPause(clone.WorkflowType)
		b.metrics.RecordStepTransition(clone.WorkflowType, string(from), string(types.StepPausedForReview))
	}
	b.logger.Info("workflow paused",
		zap.String("workflow_id", clone.WorkflowID),
		zap.String("workflow_type", clone.WorkflowType),
		zap.String("action", actionName),
		zap.Duration("ttl", ttl))
	return clone.Clone(), nil
}

func (b *Bus) resumeLocked(ctx context.Context, e *entry, response types.ActionResponse) (*types.StateRecord, error) {
	rec := e.record
	live := rec.LivePendingAction()
	if live == nil || live.ActionName != response.ActionName {
		return nil, b.resolveFailure(rec, response.ActionName)
	}

	now := b.now()
	decision := "approved"
	if !response.Approved {
		decision = "rejected"
	}
	detail := response.ActionName + " " + decision
	if response.Notes != "" {
		detail += ": " + response.Notes
	}

	clone := rec.Clone()
	from := clone.Step
	clone.PendingAction = nil
	clone.Step = types.StepResumedFromReview
	if response.EditedPayload != nil {
		clone.Payload = response.EditedPayload.Clone()
	}
	clone.UpdatedAt = now
	appendLog(clone, now, types.StepResumedFromReview, types.EventResume, detail)

	if err := b.applyLocked(ctx, e, clone); err != nil {
		return nil, err
	}

	if b.metrics != nil {
		b.metrics.RecordResume(clone.WorkflowType, decision)
		b.metrics.RecordStepTransition(clone.WorkflowType, string(from), string(types.StepResumedFromReview))
	}
	b.logger.Info("workflow resumed",
		zap.String("workflow_id", clone.WorkflowID),
		zap.String("workflow_type", clone.WorkflowType),
		zap.String("action", response.ActionName),
		zap.String("decision", decision))
	return clone.Clone(), nil
}

// resolveFailure picks the error for a resume that found no live matching
// action: ACTION_ALREADY_RESOLVED when the log shows the action was
// resolved before, ACTION_NOT_FOUND otherwise.
func (b *Bus) resolveFailure(rec *types.StateRecord, actionName string) error {
	if actionResolved(rec, actionName) {
		return b.reject(rec.WorkflowType, types.NewError(types.ErrActionAlreadyResolved,
			fmt.Sprintf("action %q was already resolved", actionName)))
	}
	return b.reject(rec.WorkflowType, types.NewError(types.ErrActionNotFound,
		fmt.Sprintf("no pending action %q", actionName)))
}

// applyLocked persists the mutated clone, swaps it in as the current
// snapshot, and publishes it. A failed persist swaps nothing, which rolls
// the mutation back. Caller holds e.mu.
func (b *Bus) applyLocked(ctx context.Context, e *entry, clone *types.StateRecord) error {
	if err := b.saveRecord(ctx, clone); err != nil {
		return err
	}
	e.record = clone
	b.publishLocked(e, clone)
	return nil
}

// publishLocked fans the snapshot out to every subscriber and, on a
// terminal step, closes them after that final delivery. Caller holds e.mu.
func (b *Bus) publishLocked(e *entry, rec *types.StateRecord) {
	terminal := rec.IsTerminal()
	for id, sub := range e.subs {
		delivered, dropped := sub.deliver(rec.Clone())
		if b.metrics != nil {
			if delivered {
				b.metrics.RecordSnapshotPublished(rec.WorkflowType)
			}
			if dropped {
				b.metrics.RecordSnapshotDropped(rec.WorkflowType)
			}
		}
		if terminal {
			delete(e.subs, id)
			sub.closeLocked()
			if b.metrics != nil {
				b.metrics.RecordSubscriberClosed(rec.WorkflowType)
			}
		}
	}
}

func (b *Bus) attachLocked(e *entry, key types.Key) *Subscription {
	sub := b.newSubscription(key)
	sub.deliver(e.record.Clone())
	if e.record.IsTerminal() {
		sub.closeLocked()
		return sub
	}
	e.subs[sub.id] = sub
	if b.metrics != nil {
		b.metrics.RecordSubscriberOpened(key.WorkflowType)
	}
	return sub
}

func (b *Bus) newSubscription(key types.Key) *Subscription {
	return &Subscription{
		id:  b.subSeq.Add(1),
		key: key,
		bus: b,
		ch:  channel.NewBounded[*types.StateRecord](b.cfg.SubscriberBuffer),
	}
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.RLock()
	e := b.entries[s.key]
	b.mu.RUnlock()
	if e == nil {
		return
	}
	e.mu.Lock()
	if !s.closed {
		delete(e.subs, s.id)
		s.closeLocked()
		if b.metrics != nil {
			b.metrics.RecordSubscriberClosed(s.key.WorkflowType)
		}
	}
	e.mu.Unlock()
}

func (b *Bus) saveRecord(ctx context.Context, rec *types.StateRecord) error {
	start := time.Now()
	err := b.store.Save(ctx, rec)
	if b.metrics != nil {
		b.metrics.RecordStoreOperation("save", time.Since(start), err)
	}
	if err != nil {
		return types.NewError(types.ErrStoreFailure, "saving state record failed").
			WithCause(err).
			WithRetryable(true)
	}
	return nil
}

func (b *Bus) loadRecord(ctx context.Context, workflowID, workflowType string) (*types.StateRecord, error) {
	start := time.Now()
	rec, err := b.store.Load(ctx, workflowID, workflowType)
	if b.metrics != nil {
		opErr := err
		if errors.Is(err, persistence.ErrNotFound) {
			opErr = nil
		}
		b.metrics.RecordStoreOperation("load", time.Since(start), opErr)
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, types.NewError(types.ErrNotFound,
			fmt.Sprintf("workflow %s/%s not found", workflowType, workflowID))
	}
	if err != nil {
		return nil, types.NewError(types.ErrStoreFailure, "loading state record failed").
			WithCause(err).
			WithRetryable(true)
	}
	return rec, nil
}

func (b *Bus) listNonTerminal(ctx context.Context) ([]*types.StateRecord, error) {
	start := time.Now()
	records, err := b.store.ListNonTerminal(ctx)
	if b.metrics != nil {
		b.metrics.RecordStoreOperation("list", time.Since(start), err)
	}
	if err != nil {
		return nil, types.NewError(types.ErrStoreFailure, "listing non-terminal records failed").
			WithCause(err).
			WithRetryable(true)
	}
	return records, nil
}

func (b *Bus) reject(workflowType string, err *types.Error) error {
	if b.metrics != nil {
		b.metrics.RecordRejectedMutation(workflowType, string(err.Code))
	}
	return err
}

func errNotStarted() error {
	return types.NewError(types.ErrBusNotStarted, "state bus is not started")
}

func appendLog(rec *types.StateRecord, at time.Time, step types.Step, event types.EventKind, detail string) {
	rec.Log = append(rec.Log, types.LogEntry{
		ID:     uuid.New().String(),
		At:     at,
		Step:   step,
		Event:  event,
		Detail: detail,
	})
}

// actionResolved reports whether the record's log already shows actionName
// resolved by a resume or an expiry. Resolution entries carry the action
// name as the leading token of their detail, so the answer survives
// restarts together with the log.
func actionResolved(rec *types.StateRecord, actionName string) bool {
	for i := len(rec.Log) - 1; i >= 0; i-- {
		le := rec.Log[i]
		if le.Event != types.EventResume && le.Event != types.EventExpire {
			continue
		}
		if le.Detail == actionName || strings.HasPrefix(le.Detail, actionName+" ") {
			return true
		}
	}
	return false
}

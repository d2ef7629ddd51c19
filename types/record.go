package types

import "time"

// Key identifies one independently tracked workflow instance. A given
// workflow_id may carry at most one active record per workflow type.
type Key struct {
	WorkflowID   string
	WorkflowType string
}

func (k Key) String() string {
	return k.WorkflowType + "/" + k.WorkflowID
}

// EventKind labels a log entry.
type EventKind string

const (
	EventTransition EventKind = "transition"
	EventPause      EventKind = "pause"
	EventResume     EventKind = "resume"
	EventExpire     EventKind = "expire"
)

// LogEntry is one timestamped entry in a record's append-only timeline.
type LogEntry struct {
	ID     string    `json:"id"`
	At     time.Time `json:"at"`
	Step   Step      `json:"step"`
	Event  EventKind `json:"event"`
	Detail string    `json:"detail,omitempty"`
}

// PendingAction describes one checkpoint awaiting a human decision. The
// action name is the idempotency key for resume: it is unique within the
// owning record's lifetime.
type PendingAction struct {
	ActionName    string     `json:"action_name"`
	PromptPayload Payload    `json:"prompt_payload,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Consumed      bool       `json:"consumed"`
}

// Expired reports whether the action's deadline has passed. Actions without
// a deadline never expire.
func (a *PendingAction) Expired(now time.Time) bool {
	if a == nil || a.ExpiresAt == nil {
		return false
	}
	return !now.Before(*a.ExpiresAt)
}

// Clone returns a deep copy of the action.
func (a *PendingAction) Clone() *PendingAction {
	if a == nil {
		return nil
	}
	cp := *a
	cp.PromptPayload = a.PromptPayload.Clone()
	if a.ExpiresAt != nil {
		t := *a.ExpiresAt
		cp.ExpiresAt = &t
	}
	return &cp
}

// ActionResponse is the human decision submitted to resolve a pending
// action. ActionName must match the record's current pending action.
type ActionResponse struct {
	ActionName    string  `json:"action_name"`
	Approved      bool    `json:"approved"`
	EditedPayload Payload `json:"edited_payload,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

// StateRecord is one workflow instance's state snapshot. Mutation goes
// through the bus exclusively; everyone else sees deep copies.
//
// Invariant: PendingAction != nil exactly when Step == PAUSED_FOR_REVIEW.
type StateRecord struct {
	WorkflowID    string         `json:"workflow_id"`
	WorkflowType  string         `json:"workflow_type"`
	Step          Step           `json:"step"`
	Payload       Payload        `json:"payload,omitempty"`
	PendingAction *PendingAction `json:"pending_action,omitempty"`
	Log           []LogEntry     `json:"log,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewStateRecord creates a fresh record at INITIALIZED. The bus stamps
// UpdatedAt and the first log entry when it registers the record.
func NewStateRecord(workflowID, workflowType string) *StateRecord {
	return &StateRecord{
		WorkflowID:   workflowID,
		WorkflowType: workflowType,
		Step:         StepInitialized,
	}
}

// Key returns the record's workflow key.
func (r *StateRecord) Key() Key {
	return Key{WorkflowID: r.WorkflowID, WorkflowType: r.WorkflowType}
}

// IsTerminal reports whether the record has reached COMPLETED or ERROR.
func (r *StateRecord) IsTerminal() bool {
	return r.Step.IsTerminal()
}

// LivePendingAction returns the record's pending action if it exists and has
// not been consumed.
func (r *StateRecord) LivePendingAction() *PendingAction {
	if r.PendingAction == nil || r.PendingAction.Consumed {
		return nil
	}
	return r.PendingAction
}

// Clone returns a deep copy of the record.
func (r *StateRecord) Clone() *StateRecord {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Payload = r.Payload.Clone()
	cp.PendingAction = r.PendingAction.Clone()
	if r.Log != nil {
		cp.Log = make([]LogEntry, len(r.Log))
		copy(cp.Log, r.Log)
	}
	return &cp
}

// LogTail returns up to n of the most recent log entries, newest last.
func (r *StateRecord) LogTail(n int) []LogEntry {
	if n <= 0 || len(r.Log) == 0 {
		return nil
	}
	if len(r.Log) <= n {
		tail := make([]LogEntry, len(r.Log))
		copy(tail, r.Log)
		return tail
	}
	tail := make([]LogEntry, n)
	copy(tail, r.Log[len(r.Log)-n:])
	return tail
}

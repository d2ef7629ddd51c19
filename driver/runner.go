// Package driver walks workflow plans against the state bus.
//
// A Plan is an ordered list of checkpoints. The runner executes each
// checkpoint's step function, emits the checkpoint's step with the payload
// the function produced, and stops early when a checkpoint gates on a human
// action. Resuming after the reviewer responds is the caller's affair; the
// bus holds the paused record until then.
package driver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentbus/bus"
	"github.com/BaSui01/agentbus/types"
)

// StepFunc performs one unit of workflow work. It receives the payload the
// previous checkpoint produced and returns the payload to carry forward.
// Returning nil keeps the previous payload.
type StepFunc func(ctx context.Context, payload types.Payload) (types.Payload, error)

// PausePoint gates a checkpoint on a human action.
type PausePoint struct {
	// ActionName identifies the action a reviewer must respond to.
	ActionName string

	// TTL bounds how long the bus waits for the response. Zero or negative
	// waits forever.
	TTL time.Duration

	// Prompt is presented to the reviewer. Nil sends the current payload.
	Prompt types.Payload
}

// Checkpoint is one stop on a plan's walk.
type Checkpoint struct {
	// Step is emitted after Run succeeds.
	Step types.Step

	// Run performs the checkpoint's work. Nil emits Step with the payload
	// unchanged.
	Run StepFunc

	// Pause, when non-nil, pauses the workflow for a human action after
	// the emit and ends the walk.
	Pause *PausePoint
}

// Plan describes a workflow as an ordered checkpoint walk.
type Plan struct {
	WorkflowID   string
	WorkflowType string
	Checkpoints  []Checkpoint
}

// Config tunes the runner's retry behavior.
type Config struct {
	// MaxRetries is how many times a failing step function is retried
	// before the workflow is marked failed.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RetryDelay is the base delay between attempts; attempt n waits n
	// times this long.
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// Runner executes plans against a state bus.
type Runner struct {
	bus    *bus.Bus
	config Config
	logger *zap.Logger
}

// NewRunner creates a runner bound to the given bus.
func NewRunner(b *bus.Bus, config Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		bus:    b,
		config: config,
		logger: logger.With(zap.String("component", "driver")),
	}
}

// Run registers the plan's workflow and walks its checkpoints in order. The
// walk ends at the first pause point, returning the paused snapshot, or
// after the last checkpoint, returning the final one. A step function that
// keeps failing past the retry budget moves the workflow to ERROR and
// returns the step's error.
func (r *Runner) Run(ctx context.Context, plan Plan, initial types.Payload) (*types.StateRecord, error) {
	rec, err := r.bus.Emit(ctx, plan.WorkflowID, plan.WorkflowType, types.StepInitialized, initial)
	if err != nil {
		return nil, err
	}
	payload := rec.Payload

	r.logger.Info("plan started",
		zap.String("workflow_id", plan.WorkflowID),
		zap.String("workflow_type", plan.WorkflowType),
		zap.Int("checkpoints", len(plan.Checkpoints)))

	for _, cp := range plan.Checkpoints {
		if err := ctx.Err(); err != nil {
			r.fail(plan, payload)
			return nil, err
		}

		if cp.Run != nil {
			out, err := r.runStep(ctx, plan, cp, payload)
			if err != nil {
				r.fail(plan, payload)
				return nil, err
			}
			if out != nil {
				payload = out
			}
		}

		rec, err = r.bus.Emit(ctx, plan.WorkflowID, plan.WorkflowType, cp.Step, payload)
		if err != nil {
			return nil, err
		}

		if cp.Pause != nil {
			prompt := cp.Pause.Prompt
			if prompt == nil {
				prompt = payload
			}
			paused, err := r.bus.PauseForAction(ctx, plan.WorkflowID, plan.WorkflowType,
				cp.Pause.ActionName, prompt, cp.Pause.TTL)
			if err != nil {
				return nil, err
			}
			r.logger.Info("plan paused for review",
				zap.String("workflow_id", plan.WorkflowID),
				zap.String("action", cp.Pause.ActionName))
			return paused, nil
		}
	}

	return rec, nil
}

func (r *Runner) runStep(ctx context.Context, plan Plan, cp Checkpoint, payload types.Payload) (types.Payload, error) {
	var out types.Payload
	var err error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		out, err = cp.Run(ctx, payload)
		if err == nil {
			return out, nil
		}
		if attempt == r.config.MaxRetries {
			break
		}
		r.logger.Warn("step failed, retrying",
			zap.String("workflow_id", plan.WorkflowID),
			zap.String("step", string(cp.Step)),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * r.config.RetryDelay):
		}
	}
	r.logger.Error("step exhausted retries",
		zap.String("workflow_id", plan.WorkflowID),
		zap.String("step", string(cp.Step)),
		zap.Error(err))
	return nil, fmt.Errorf("step %s: %w", cp.Step, err)
}

// fail makes a best effort at recording the failure on the bus. The walk's
// own error is what the caller sees; a failed emit here only logs. A fresh
// context is used so the record still lands when the walk was cancelled.
func (r *Runner) fail(plan Plan, payload types.Payload) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := r.bus.Emit(ctx, plan.WorkflowID, plan.WorkflowType, types.StepError, payload); err != nil {
		r.logger.Error("failed to record workflow error",
			zap.String("workflow_id", plan.WorkflowID),
			zap.Error(err))
	}
}

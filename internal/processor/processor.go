// ============================================================================
// Action Execution Engine - Job Processor
// ============================================================================
//
// Package: internal/processor
// File: processor.go
// Purpose: Drives a single job from its current state through as many
// state-machine transitions as fit in a time budget, resolving the action
// and its variables along the way and dispatching to the executor queue.
//
// This is the busiest package in the system (spec.md budgets it at ~25% of
// the core): loading the trigger, resolving/freezing properties, starting
// a run, detecting RUNNING timeouts, and reacting to executor results all
// live here, one method per spec.md §4.5 operation.
//
// ============================================================================

package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ChuLiYu/action-engine/internal/statemachine"
	"github.com/ChuLiYu/action-engine/internal/store"
	"github.com/ChuLiYu/action-engine/pkg/actions"
)

var log = slog.Default()

// RunningTimeout is how long a job may sit in RUNNING before the
// Processor treats it as timed out (spec.md §4.5/§6).
const RunningTimeout = 30 * time.Second

// EntityStore resolves symbolic paths against the external content-store.
// Implemented by internal/entitystore.Client; declared here so this
// package has no import on it (accept interfaces, return structs).
type EntityStore interface {
	// Fetch returns the contents at path, or (nil, nil) if not found.
	Fetch(ctx context.Context, path string) ([]byte, error)
	// Readlink resolves path one hop. Implementations that don't support
	// symbolic indirection return path unchanged.
	Readlink(ctx context.Context, path string) (string, error)
}

// Dispatcher publishes a resolved action to its executor queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, jid actions.JobID, kind string, resolved map[string]interface{}) error
}

// ActionResolver fetches an Action referenced by path from the action
// trigger endpoint's symbolic namespace (distinct from property PATHs,
// which go through EntityStore directly).
type ActionResolver interface {
	ResolveAction(ctx context.Context, path string) (*actions.Action, error)
}

// Processor drives one job. It holds no goroutine-safety of its own — the
// owning Session guarantees only one Processor is ever live for a jid at
// a time, via the store lock.
type Processor struct {
	jid      actions.JobID
	record   *store.Record
	state    actions.Status
	entities EntityStore
	actionrs ActionResolver
	dispatch Dispatcher
}

// New builds a Processor for jid, seeded with the state already loaded
// into record (typically by the owning Session).
func New(jid actions.JobID, record *store.Record, initial actions.Status, entities EntityStore, actionrs ActionResolver, dispatch Dispatcher) *Processor {
	return &Processor{
		jid:      jid,
		record:   record,
		state:    initial,
		entities: entities,
		actionrs: actionrs,
		dispatch: dispatch,
	}
}

// State returns the Processor's current in-memory state; the Session
// writes this back to the record on close.
func (p *Processor) State() actions.Status { return p.state }

func (p *Processor) fire(ctx context.Context, trig statemachine.Trigger) (bool, error) {
	dest, changed, err := statemachine.Fire(ctx, p.state, trig, p)
	p.state = dest
	return changed, err
}

// LoadData is the "before" hook for PENDING -> VARIABLES_LOADED. It loads
// the trigger, resolves the Action (inline or by path), freezes the
// property list, and stages both on the record.
func (p *Processor) LoadData(ctx context.Context) error {
	trigger, err := p.record.GetTrigger(ctx)
	if err != nil {
		return err
	}
	if trigger == nil {
		return store.ErrTriggerDataMissing
	}

	action, err := p.resolveAction(ctx, trigger)
	if err != nil {
		return err
	}
	for _, prop := range action.Properties {
		if prop.Name == "" {
			log.Error("property with empty name in action", "jid", p.jid, "kind", action.Kind)
		}
	}
	if err := p.record.SetAction(action); err != nil {
		return err
	}

	frozen, err := freezeAll(ctx, p.entities, action.Properties, trigger.Meta)
	if err != nil {
		return err
	}
	return p.record.SetVariables(frozen)
}

func (p *Processor) resolveAction(ctx context.Context, trigger *actions.ActionTrigger) (*actions.Action, error) {
	switch trigger.ActionSource {
	case actions.ActionSourcePath:
		if trigger.ActionPath == nil {
			return nil, fmt.Errorf("processor: trigger %s has PATH action_source with no action_path", p.jid)
		}
		return p.actionrs.ResolveAction(ctx, *trigger.ActionPath)
	default:
		if trigger.Action == nil {
			return nil, fmt.Errorf("processor: trigger %s has LITERAL action_source with no inline action", p.jid)
		}
		return trigger.Action, nil
	}
}

// StartRun is the "after" hook for {VARIABLES_LOADED, RETRY} -> RUNNING.
// It re-resolves every frozen property's current value, dispatches to the
// executor, and records the dispatch timestamp.
func (p *Processor) StartRun(ctx context.Context) error {
	action, err := p.record.GetAction(ctx)
	if err != nil {
		return err
	}
	if action == nil {
		return store.ErrTriggerDataMissing
	}
	frozen, err := p.record.GetVariables(ctx)
	if err != nil {
		return err
	}

	resolved := make(map[string]interface{}, len(frozen))
	for _, fp := range frozen {
		v, err := resolveFrozen(ctx, p.entities, fp)
		if err != nil {
			return err
		}
		resolved[fp.Name] = v
	}

	if err := p.dispatch.Dispatch(ctx, p.jid, action.Kind, resolved); err != nil {
		return err
	}
	now := time.Now()
	p.record.SetTimestamp(now)
	return nil
}

// ProceedMany fires "proceed" until RUNNING is reached, the trigger stops
// applying, or timeRemaining runs out. It returns false only in the last
// case.
func (p *Processor) ProceedMany(ctx context.Context, timeRemaining func() bool) (bool, error) {
	for timeRemaining() {
		if p.state == actions.StatusRunning {
			return true, nil
		}
		changed, err := p.fire(ctx, statemachine.TriggerProceed)
		if err != nil {
			return false, err
		}
		if !changed {
			return true, nil
		}
	}
	return false, nil
}

// HasTimedOut reports whether now is more than RunningTimeout past the
// job's last RUNNING-entry timestamp. A missing timestamp is treated as
// "just started": it is lazily set to now and false is returned.
func (p *Processor) HasTimedOut(ctx context.Context, now time.Time) (bool, error) {
	ts, err := p.record.GetTimestamp(ctx)
	if err != nil {
		return false, err
	}
	if ts == nil {
		p.record.SetTimestamp(now)
		return false, nil
	}
	return now.Unix()-*ts > int64(RunningTimeout.Seconds()), nil
}

// Process runs ProceedMany, then reacts to wherever the walk stopped:
// DataMissing revokes the job; a timed-out RUNNING fires "error"; a
// RETRY fires "expired" (spec.md §4.5 step 3 — there is no automatic
// retry budget despite the state's name).
func (p *Processor) Process(ctx context.Context, timeRemaining func() bool) error {
	// The original bails out here with "if not proceed_many: return"
	// (jobs.py) when the walk is cut short by the deadline; we instead
	// fall through and still react to the state ProceedMany stopped in,
	// so a caller-supplied already-exhausted deadline can still drive a
	// RETRY job to "expired" in one call.
	_, err := p.ProceedMany(ctx, timeRemaining)
	if err != nil {
		if errors.Is(err, store.ErrTriggerDataMissing) || errors.Is(err, store.ErrVariablesDataMissing) {
			log.Error("data missing, revoking job", "jid", p.jid, "error", err)
			_, revokeErr := p.fire(ctx, statemachine.TriggerRevoke)
			return revokeErr
		}
		return err
	}

	switch p.state {
	case actions.StatusRunning:
		timedOut, err := p.HasTimedOut(ctx, time.Now())
		if err != nil {
			return err
		}
		if timedOut {
			_, err := p.fire(ctx, statemachine.TriggerError)
			return err
		}
	case actions.StatusRetry:
		_, err := p.fire(ctx, statemachine.TriggerExpired)
		return err
	}
	return nil
}

// Resume dispatches an executor result onto the machine. data carries the
// executor's payload for "suspend"/"error" results; no transition in the
// table currently attaches a hook to those triggers, so data is accepted
// for interface parity but not otherwise consumed.
func (p *Processor) Resume(ctx context.Context, timeRemaining func() bool, result string, data []byte) (bool, error) {
	if !timeRemaining() {
		return false, nil
	}
	switch result {
	case "suspend":
		return p.fire(ctx, statemachine.TriggerSuspend)
	case "success":
		return p.fire(ctx, statemachine.TriggerSucceeded)
	case "error":
		return p.fire(ctx, statemachine.TriggerError)
	default:
		log.Warn("unrecognised executor result", "jid", p.jid, "result", result)
		return true, nil
	}
}

// ResumeAndProcess resumes, then immediately runs Process if the resume
// actually transitioned the job.
func (p *Processor) ResumeAndProcess(ctx context.Context, timeRemaining func() bool, result string, data []byte) (bool, error) {
	ok, err := p.Resume(ctx, timeRemaining, result, data)
	if err != nil || !ok {
		return false, err
	}
	return true, p.Process(ctx, timeRemaining)
}

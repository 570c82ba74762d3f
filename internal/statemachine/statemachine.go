// ============================================================================
// Action Execution Engine - Job State Machine
// ============================================================================
//
// Package: internal/statemachine
// File: statemachine.go
// Purpose: Declarative transition table over the job Status enum (spec.md
// §4.4), fired by the Processor. Triggers are idempotent: an invalid
// trigger for the current state is silently ignored rather than erroring.
//
// Represented as a flat table keyed by (trigger, source state) instead of
// a generated/dynamic machine, per spec.md §9 ("the machine driver is
// ~30 lines"): no code generation, no reflection, just a slice scanned in
// order.
//
// ============================================================================

package statemachine

import (
	"context"

	"github.com/ChuLiYu/action-engine/pkg/actions"
)

// Trigger names one of the six events the machine accepts.
type Trigger string

const (
	TriggerProceed   Trigger = "proceed"
	TriggerSuspend   Trigger = "suspend"
	TriggerSucceeded Trigger = "succeeded"
	TriggerError     Trigger = "error"
	TriggerExpired   Trigger = "expired"
	TriggerRevoke    Trigger = "revoke"
)

// HookSet is implemented by the Processor. LoadData runs as a "before"
// hook (a failure aborts the transition, state unchanged); StartRun runs
// as an "after" hook (a failure leaves the state at the destination, per
// spec.md §4.4).
type HookSet interface {
	LoadData(ctx context.Context) error
	StartRun(ctx context.Context) error
}

type transition struct {
	trigger Trigger
	sources []actions.Status
	dest    actions.Status
	before  bool // calls HookSet.LoadData
	after   bool // calls HookSet.StartRun
}

// table is spec.md §4.4's transition table, verbatim.
var table = []transition{
	{
		trigger: TriggerProceed,
		sources: []actions.Status{actions.StatusPending},
		dest:    actions.StatusVariablesLoaded,
		before:  true,
	},
	{
		trigger: TriggerProceed,
		sources: []actions.Status{actions.StatusVariablesLoaded, actions.StatusRetry},
		dest:    actions.StatusRunning,
		after:   true,
	},
	{
		trigger: TriggerSuspend,
		sources: []actions.Status{actions.StatusRunning},
		dest:    actions.StatusSuspended,
	},
	{
		trigger: TriggerSucceeded,
		sources: []actions.Status{actions.StatusRunning},
		dest:    actions.StatusSuccess,
	},
	{
		trigger: TriggerError,
		sources: []actions.Status{actions.StatusRunning},
		dest:    actions.StatusRetry,
	},
	// RETRY has no actual retry budget: expired sends it straight to
	// FAILURE. This is the behavior documented upstream, preserved
	// verbatim rather than "fixed".
	{
		trigger: TriggerExpired,
		sources: []actions.Status{actions.StatusPending, actions.StatusRetry},
		dest:    actions.StatusFailure,
	},
	{
		trigger: TriggerRevoke,
		sources: []actions.Status{
			actions.StatusPending,
			actions.StatusVariablesLoaded,
			actions.StatusRunning,
			actions.StatusRetry,
		},
		dest: actions.StatusRevoked,
	},
}

func sourcesContain(sources []actions.Status, s actions.Status) bool {
	for _, src := range sources {
		if src == s {
			return true
		}
	}
	return false
}

// Fire looks up the first table entry matching (trigger, current) and
// applies it. It returns the resulting state and whether a transition
// actually happened; an unmatched (trigger, current) pair returns
// (current, false, nil) — the idempotent no-op spec.md requires.
//
// A failing "before" hook aborts the transition: the returned state is
// still current, and the hook's error is returned. A failing "after" hook
// leaves the returned state at dest (the transition already happened)
// while still returning the error, per spec.md §4.4/§7.
func Fire(ctx context.Context, current actions.Status, trig Trigger, hooks HookSet) (actions.Status, bool, error) {
	for _, t := range table {
		if t.trigger != trig || !sourcesContain(t.sources, current) {
			continue
		}
		if t.before {
			if err := hooks.LoadData(ctx); err != nil {
				return current, false, err
			}
		}
		dest := t.dest
		if t.after {
			if err := hooks.StartRun(ctx); err != nil {
				return dest, true, err
			}
		}
		return dest, true, nil
	}
	return current, false, nil
}

// ============================================================================
// Action Execution Engine - Job Record
// ============================================================================
//
// Package: internal/store
// File: record.go
// Purpose: Thin typed facade over one job's fields, scoped to a single
// Session. Buffers mutations in memory and commits them with one Set call
// on Flush.
//
// ============================================================================

package store

import (
	"context"
	"strconv"
	"time"

	"github.com/ChuLiYu/action-engine/pkg/actions"
)

// Record is the in-memory view of one job's fields during a single
// Session. It is not safe for concurrent use; a Session owns exactly one
// Record and accesses it from a single goroutine.
type Record struct {
	adapter  *Adapter
	jid      actions.JobID
	cached   map[string]string
	absent   map[string]struct{}
	dirty    map[string]struct{}
	srcState *actions.Status
	flushing bool
}

// NewRecord returns an empty Record scoped to jid. srcStateHint, when
// non-nil, seeds src_state without a read (used by the sweeper, which
// already knows which state-set it sampled jid from).
func NewRecord(adapter *Adapter, jid actions.JobID, srcStateHint *actions.Status) *Record {
	return &Record{
		adapter:  adapter,
		jid:      jid,
		cached:   make(map[string]string),
		absent:   make(map[string]struct{}),
		dirty:    make(map[string]struct{}),
		srcState: srcStateHint,
	}
}

// Get returns a field's raw value, reading through to the store on first
// access and caching the result for the rest of the Session. The first
// read of "state" also captures src_state for index maintenance, unless a
// hint was already supplied.
func (r *Record) Get(ctx context.Context, field string) ([]byte, error) {
	if v, ok := r.cached[field]; ok {
		return []byte(v), nil
	}
	if _, ok := r.absent[field]; ok {
		return nil, nil
	}
	v, err := r.adapter.Get(ctx, r.jid, field)
	if err != nil {
		return nil, err
	}
	if field == "state" && r.srcState == nil && v != nil {
		s := actions.Status(v)
		r.srcState = &s
	}
	if v == nil {
		r.absent[field] = struct{}{}
		return nil, nil
	}
	r.cached[field] = string(v)
	return v, nil
}

// Set stages a field mutation; it is not written to the store until Flush.
func (r *Record) Set(field string, value []byte) {
	r.cached[field] = string(value)
	delete(r.absent, field)
	r.dirty[field] = struct{}{}
}

// Flush writes every dirty field with a single Adapter.Set call and clears
// the dirty set. Calling Flush while a flush is already in progress is a
// programming error (the Record is never shared across goroutines) and
// returns ErrFlushWhileFlushing.
func (r *Record) Flush(ctx context.Context) error {
	if r.flushing {
		return ErrFlushWhileFlushing
	}
	if len(r.dirty) == 0 {
		return nil
	}
	r.flushing = true
	defer func() { r.flushing = false }()

	fields := make(map[string]string, len(r.dirty))
	for field := range r.dirty {
		fields[field] = r.cached[field]
	}
	if err := r.adapter.Set(ctx, r.jid, fields, r.srcState); err != nil {
		return err
	}
	r.dirty = make(map[string]struct{})
	return nil
}

// --- Typed helpers, spec.md §4.2 ---

// GetTrigger decodes the "trigger" field. A missing field or decode
// failure both return (nil, nil); the Processor treats either as "trigger
// missing" and revokes the job.
func (r *Record) GetTrigger(ctx context.Context) (*actions.ActionTrigger, error) {
	raw, err := r.Get(ctx, "trigger")
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var t actions.ActionTrigger
	if err := actions.Decode(raw, &t); err != nil {
		log.Error("trigger was invalid JSON", "jid", r.jid, "error", err)
		return nil, nil
	}
	return &t, nil
}

// SetTrigger stages the trigger field.
func (r *Record) SetTrigger(t *actions.ActionTrigger) error {
	raw, err := actions.Encode(t)
	if err != nil {
		return err
	}
	r.Set("trigger", raw)
	return nil
}

// GetAction decodes the "action" field.
func (r *Record) GetAction(ctx context.Context) (*actions.Action, error) {
	raw, err := r.Get(ctx, "action")
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var a actions.Action
	if err := actions.Decode(raw, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SetAction stages the action field.
func (r *Record) SetAction(a *actions.Action) error {
	raw, err := actions.Encode(a)
	if err != nil {
		return err
	}
	r.Set("action", raw)
	return nil
}

// GetVariables decodes the "variables" field (the frozen property list). A
// decode failure is ErrVariablesDataMissing, matching the original's
// treatment of a corrupt variables blob as data-missing rather than a hard
// error.
func (r *Record) GetVariables(ctx context.Context) ([]actions.FrozenProperty, error) {
	raw, err := r.Get(ctx, "variables")
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrVariablesDataMissing
	}
	var vs []actions.FrozenProperty
	if err := actions.Decode(raw, &vs); err != nil {
		return nil, ErrVariablesDataMissing
	}
	return vs, nil
}

// SetVariables stages the frozen property list.
func (r *Record) SetVariables(vs []actions.FrozenProperty) error {
	raw, err := actions.Encode(vs)
	if err != nil {
		return err
	}
	r.Set("variables", raw)
	return nil
}

// GetTimestamp decodes the "timestamp" field (Unix seconds).
func (r *Record) GetTimestamp(ctx context.Context) (*int64, error) {
	raw, err := r.Get(ctx, "timestamp")
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	ts, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return nil, nil
	}
	return &ts, nil
}

// SetTimestamp stages the timestamp field as seconds-since-epoch.
func (r *Record) SetTimestamp(t time.Time) {
	r.Set("timestamp", []byte(strconv.FormatInt(t.Unix(), 10)))
}

// GetState decodes the "state" field.
func (r *Record) GetState(ctx context.Context) (actions.Status, error) {
	raw, err := r.Get(ctx, "state")
	if err != nil {
		return "", err
	}
	if raw == nil {
		return actions.StatusPending, nil
	}
	return actions.Status(raw), nil
}

// SetState stages the state field.
func (r *Record) SetState(s actions.Status) {
	r.Set("state", []byte(s))
}

// SrcState returns the state captured at first read (or supplied as a
// hint), for callers that need to log or reason about the transition.
func (r *Record) SrcState() *actions.Status {
	return r.srcState
}

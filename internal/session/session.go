// ============================================================================
// Action Execution Engine - Session
// ============================================================================
//
// Package: internal/session
// File: session.go
// Purpose: Scopes a single job's lock, record and Processor to one
// operation. Close performs both the flush and the lock release on every
// path through it, the same way the teacher scopes a WAL append to a
// controller operation with a cleanup step. A panic between Open and Close
// skips Close unless the caller defers it; the lock is then held until its
// LockLeaseTimeout lease runs out.
//
// ============================================================================

package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ChuLiYu/action-engine/internal/processor"
	"github.com/ChuLiYu/action-engine/internal/store"
	"github.com/ChuLiYu/action-engine/pkg/actions"
)

var log = slog.Default()

// Session owns the lock and Record for one jid for the duration of a
// single Manager operation (Register/Resume/Process). It is not safe for
// concurrent use; callers open exactly one Session per operation and close
// it before returning.
type Session struct {
	jid    actions.JobID
	lock   *store.Lock
	record *store.Record
	proc   *processor.Processor
}

// Open acquires jid's lock and loads its record. blocking controls how the
// lock acquire behaves on contention: the sweeper opens non-blocking (so a
// job another worker already holds is simply skipped this sweep);
// synchronous callers (Register, executor-result webhooks) open blocking.
//
// srcStateHint, when non-nil, seeds the Record's src_state so Flush can
// maintain the index sets without an extra read; the sweeper already knows
// this from the state-set it sampled jid out of.
func Open(ctx context.Context, adapter *store.Adapter, jid actions.JobID, blocking bool, srcStateHint *actions.Status, entities processor.EntityStore, actionrs processor.ActionResolver, dispatch processor.Dispatcher) (*Session, error) {
	lock := adapter.Lock(jid)
	ok, err := lock.Acquire(ctx, blocking)
	if err != nil {
		return nil, fmt.Errorf("session: acquire lock for %s: %w", jid, err)
	}
	if !ok {
		return nil, store.ErrUnableToAcquireLock
	}

	record := store.NewRecord(adapter, jid, srcStateHint)
	state, err := record.GetState(ctx)
	if err != nil {
		_ = lock.Release(ctx)
		return nil, fmt.Errorf("session: load state for %s: %w", jid, err)
	}

	return &Session{
		jid:    jid,
		lock:   lock,
		record: record,
		proc:   processor.New(jid, record, state, entities, actionrs, dispatch),
	}, nil
}

// Processor returns the Session's Processor, bound to its Record.
func (s *Session) Processor() *processor.Processor { return s.proc }

// Record exposes the underlying Record for callers that need to stage a
// field directly (Register writes the inbound trigger before running the
// machine at all).
func (s *Session) Record() *store.Record { return s.record }

// Close writes back the Processor's final state, flushes every dirty
// field, and releases the lock, in that order, regardless of whether
// opErr is non-nil. It always attempts both the flush and the release: a
// failed flush must not leave the lock held forever, and a failed release
// is logged rather than masking opErr.
//
// The Manager calls Close explicitly after the operation returns, not under
// defer, so a panic inside the operation leaves the lock to expire by its
// lease and drops the staged writes.
func (s *Session) Close(ctx context.Context, opErr error) error {
	s.record.SetState(s.proc.State())

	flushErr := s.record.Flush(ctx)
	if flushErr != nil {
		log.Error("session flush failed", "jid", s.jid, "error", flushErr)
	}

	if releaseErr := s.lock.Release(ctx); releaseErr != nil {
		log.Error("session lock release failed", "jid", s.jid, "error", releaseErr)
	}

	if opErr != nil {
		return opErr
	}
	return flushErr
}

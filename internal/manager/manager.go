// ============================================================================
// Action Execution Engine - Manager
// ============================================================================
//
// Package: internal/manager
// File: manager.go
// Purpose: The system's three entry points (Register, Resume, Process) plus
// the periodic sweeper that re-drives jobs nothing ever calls back into.
//
// The sweeper's ticker+stopCh+WaitGroup shutdown shape is adapted from the
// teacher's controller loops (dispatchLoop/resultLoop/timeoutLoop), reduced
// to a single loop since a sweep here is one self-contained unit of work
// rather than four cooperating ones.
//
// ============================================================================

package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ChuLiYu/action-engine/internal/processor"
	"github.com/ChuLiYu/action-engine/internal/session"
	"github.com/ChuLiYu/action-engine/internal/store"
	"github.com/ChuLiYu/action-engine/pkg/actions"
	"github.com/google/uuid"
)

var log = slog.Default()

// DefaultSyncTimeout bounds how long Register/Resume/Process will keep
// firing "proceed" synchronously before returning control to the caller.
// Left distinct from store.LockLeaseTimeout per spec.md's unresolved
// "should these budgets unify" question -- the lock lease protects the
// store; this protects the caller's own latency.
const DefaultSyncTimeout = 3 * time.Second

// DefaultSweepInterval is how often the sweeper samples each watched state
// set when none is supplied to Setup.
const DefaultSweepInterval = 5 * time.Second

// Metrics receives counters from Manager operations. Declared locally so
// this package has no import on internal/metrics; any type satisfying it
// (including a no-op) works.
type Metrics interface {
	RecordRegister()
	RecordTransition(from, to actions.Status)
	RecordSweepFound(state actions.Status, n int)
	SetStateGauge(state actions.Status, n float64)
	ObserveTransitionDuration(seconds float64)
}

type noopMetrics struct{}

func (noopMetrics) RecordRegister()                               {}
func (noopMetrics) RecordTransition(from, to actions.Status)      {}
func (noopMetrics) RecordSweepFound(state actions.Status, n int)  {}
func (noopMetrics) SetStateGauge(state actions.Status, n float64) {}
func (noopMetrics) ObserveTransitionDuration(seconds float64)     {}

// sweptStates is the set of state-index sets the sweeper samples each
// tick: PENDING and RETRY jobs need another "proceed" push, and RUNNING
// jobs need their timeout checked.
var sweptStates = []actions.Status{
	actions.StatusPending,
	actions.StatusRetry,
	actions.StatusRunning,
}

// gaugedStates is every status the jobs_by_state gauge reports, a
// superset of sweptStates since terminal states are worth observing even
// though the sweeper never re-drives them.
var gaugedStates = []actions.Status{
	actions.StatusPending,
	actions.StatusVariablesLoaded,
	actions.StatusRunning,
	actions.StatusSuspended,
	actions.StatusRetry,
	actions.StatusSuccess,
	actions.StatusFailure,
	actions.StatusRevoked,
}

// Manager is the job lifecycle's single entry point. One Manager is
// shared by every inbound bus handler and the sweeper goroutine; all of
// its state lives in the external store, so the struct itself holds only
// collaborators.
type Manager struct {
	adapter  *store.Adapter
	entities processor.EntityStore
	actionrs processor.ActionResolver
	dispatch processor.Dispatcher
	metrics  Metrics

	sweepInterval time.Duration
	sampleSize    int
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// New builds a Manager. metrics may be nil, in which case calls are
// no-ops.
func New(adapter *store.Adapter, entities processor.EntityStore, actionrs processor.ActionResolver, dispatch processor.Dispatcher, metrics Metrics) *Manager {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Manager{
		adapter:       adapter,
		entities:      entities,
		actionrs:      actionrs,
		dispatch:      dispatch,
		metrics:       metrics,
		sweepInterval: DefaultSweepInterval,
		sampleSize:    store.DefaultSampleSize,
	}
}

func deadlineFunc(deadline time.Time) func() bool {
	return func() bool { return time.Now().Before(deadline) }
}

// Register creates a new job from trigger (assigning a jid if it carries
// none) and drives it forward synchronously within DefaultSyncTimeout.
func (m *Manager) Register(ctx context.Context, trigger *actions.ActionTrigger) (actions.JobID, error) {
	jid := trigger.JID
	if jid == "" {
		jid = actions.JobID(uuid.NewString())
		trigger.JID = jid
	}

	start := time.Now()
	sess, err := session.Open(ctx, m.adapter, jid, true, nil, m.entities, m.actionrs, m.dispatch)
	if err != nil {
		return jid, fmt.Errorf("manager: register %s: %w", jid, err)
	}
	before := sess.Processor().State()

	if err := sess.Record().SetTrigger(trigger); err != nil {
		_ = sess.Close(ctx, err)
		return jid, fmt.Errorf("manager: register %s: stage trigger: %w", jid, err)
	}

	opErr := sess.Processor().Process(ctx, deadlineFunc(time.Now().Add(DefaultSyncTimeout)))
	after := sess.Processor().State()
	closeErr := sess.Close(ctx, opErr)

	m.metrics.RecordRegister()
	m.metrics.ObserveTransitionDuration(time.Since(start).Seconds())
	if before != after {
		m.metrics.RecordTransition(before, after)
	}
	if closeErr != nil {
		return jid, fmt.Errorf("manager: register %s: %w", jid, closeErr)
	}
	log.Info("job registered", "jid", jid, "state", after)
	return jid, nil
}

// Resume applies an executor's result to jid and, if that actually moved
// the state machine, continues processing synchronously.
func (m *Manager) Resume(ctx context.Context, jid actions.JobID, result string, data []byte) error {
	start := time.Now()
	sess, err := session.Open(ctx, m.adapter, jid, true, nil, m.entities, m.actionrs, m.dispatch)
	if err != nil {
		return fmt.Errorf("manager: resume %s: %w", jid, err)
	}
	before := sess.Processor().State()

	_, opErr := sess.Processor().ResumeAndProcess(ctx, deadlineFunc(time.Now().Add(DefaultSyncTimeout)), result, data)
	after := sess.Processor().State()
	closeErr := sess.Close(ctx, opErr)
	m.metrics.ObserveTransitionDuration(time.Since(start).Seconds())

	if before != after {
		m.metrics.RecordTransition(before, after)
	}
	if closeErr != nil {
		return fmt.Errorf("manager: resume %s: %w", jid, closeErr)
	}
	return nil
}

// Process re-drives jid without an accompanying executor result: used by
// the sweeper, and callable directly for an explicit re-drive.
// blocking controls the lock acquire strategy (see session.Open).
func (m *Manager) Process(ctx context.Context, jid actions.JobID, blocking bool, srcStateHint *actions.Status) error {
	start := time.Now()
	sess, err := session.Open(ctx, m.adapter, jid, blocking, srcStateHint, m.entities, m.actionrs, m.dispatch)
	if err != nil {
		return err
	}
	before := sess.Processor().State()

	opErr := sess.Processor().Process(ctx, deadlineFunc(time.Now().Add(DefaultSyncTimeout)))
	after := sess.Processor().State()
	closeErr := sess.Close(ctx, opErr)
	m.metrics.ObserveTransitionDuration(time.Since(start).Seconds())

	if before != after {
		m.metrics.RecordTransition(before, after)
	}
	if closeErr != nil {
		return fmt.Errorf("manager: process %s: %w", jid, closeErr)
	}
	return nil
}

// SetSampleSize overrides how many jids the sweeper draws from each
// watched state set per tick. n<=0 is ignored.
func (m *Manager) SetSampleSize(n int) {
	if n > 0 {
		m.sampleSize = n
	}
}

// Setup starts the background sweeper, ticking every interval (or
// DefaultSweepInterval if interval is zero). It returns immediately; call
// Stop to shut it down.
func (m *Manager) Setup(ctx context.Context, interval time.Duration) {
	if interval > 0 {
		m.sweepInterval = interval
	}
	m.stopCh = make(chan struct{})
	m.wg.Add(1)
	go m.sweepLoop(ctx)
}

// Stop signals the sweeper to exit and waits for its current sweep, if
// any, to finish.
func (m *Manager) Stop() {
	if m.stopCh == nil {
		return
	}
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Manager) sweepLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// sweep samples each watched state set and attempts to advance every job
// found, using a non-blocking lock acquire: a job another caller already
// holds is simply left for the next tick (spec.md §4.6).
func (m *Manager) sweep(ctx context.Context) {
	for _, state := range sweptStates {
		jids, err := m.adapter.RandomSample(ctx, state, m.sampleSize)
		if err != nil {
			log.Error("sweep sample failed", "state", state, "error", err)
			continue
		}
		m.metrics.RecordSweepFound(state, len(jids))
		for _, jid := range jids {
			src := state
			if err := m.Process(ctx, jid, false, &src); err != nil {
				if errors.Is(err, store.ErrUnableToAcquireLock) {
					continue
				}
				log.Error("sweep process failed", "jid", jid, "state", state, "error", err)
			}
		}
	}
	m.refreshGauges(ctx)
}

// refreshGauges re-reads every state's set size so jobs_by_state reflects
// terminal states too, not just the ones the sweeper actively drives.
func (m *Manager) refreshGauges(ctx context.Context) {
	for _, state := range gaugedStates {
		n, err := m.adapter.StateCount(ctx, state)
		if err != nil {
			log.Error("state count failed", "state", state, "error", err)
			continue
		}
		m.metrics.SetStateGauge(state, float64(n))
	}
}

// ============================================================================
// Action Execution Engine - Key-Value Store Adapter
// ============================================================================
//
// Package: internal/store
// File: adapter.go
// Purpose: Wraps the shared Redis-compatible store: per-job hash fields,
// per-state index sets, a distributed advisory lock per job, and TTL.
//
// This is the only package that knows the store's key naming scheme
// (job-{jid}, job-state-{STATE}, job-lock-{jid}) and the only package that
// imports github.com/redis/go-redis/v9. Everything above it (Record,
// Session, Processor) talks in terms of jids and field names.
//
// Index consistency (spec.md §9 open question): the original sequentially
// issues SREM then SADD, which can duplicate a jid across sets if a
// sweeper observes the job mid-update. Here the remove/add pair, plus the
// HSET + EXPIRE, run inside a single Lua script so Redis applies them
// atomically.
//
// ============================================================================

package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ChuLiYu/action-engine/pkg/actions"
)

const (
	// LockLeaseTimeout is the advisory lock's lease duration (spec.md §3).
	LockLeaseTimeout = 5 * time.Second

	// RecordTTL is how long a job-{jid} hash survives after its last write
	// (spec.md §3); terminal jobs are garbage-collected by this TTL.
	RecordTTL = 6 * time.Hour

	// DefaultSampleSize is random_sample's default n (spec.md §4.1).
	DefaultSampleSize = 15
)

var log = slog.Default()

// setIndexScript atomically writes the hash fields, refreshes the TTL, and
// maintains state-index set membership. ARGV layout:
//
//	ARGV[1] = new state-set key ("" if fields has no "state")
//	ARGV[2] = old state-set key ("" if no src_state hint)
//	ARGV[3] = jid
//	ARGV[4] = ttl seconds
//	ARGV[5..] = field, value, field, value, ...
var setIndexScript = redis.NewScript(`
local newSetKey = ARGV[1]
local oldSetKey = ARGV[2]
local jid = ARGV[3]
local ttl = tonumber(ARGV[4])

for i = 5, #ARGV, 2 do
	redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
end
redis.call('EXPIRE', KEYS[1], ttl)

if newSetKey ~= '' then
	if oldSetKey ~= '' then
		if oldSetKey ~= newSetKey then
			redis.call('SREM', oldSetKey, jid)
			redis.call('SADD', newSetKey, jid)
		end
	else
		redis.call('SADD', newSetKey, jid)
	end
end
return 1
`)

// releaseLockScript deletes a lock key only if it still holds our token,
// so a lease that already expired and was reacquired elsewhere is left
// alone.
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Adapter wraps a redis.Cmdable with the job store's key scheme.
type Adapter struct {
	rdb redis.Cmdable
}

// NewAdapter builds an Adapter over an existing Redis client. Accepting the
// redis.Cmdable interface (rather than *redis.Client) lets tests pass a
// *redis.Client pointed at miniredis, or a *redis.ClusterClient in
// production, without changing this package.
func NewAdapter(rdb redis.Cmdable) *Adapter {
	return &Adapter{rdb: rdb}
}

func jobKey(jid actions.JobID) string     { return fmt.Sprintf("job-%s", jid) }
func stateSetKey(s actions.Status) string { return fmt.Sprintf("job-state-%s", s) }
func lockKey(jid actions.JobID) string    { return fmt.Sprintf("job-lock-%s", jid) }

// Set writes fields onto job-{jid}, refreshes its TTL, and updates the
// state index sets when fields contains "state". srcState, when non-nil,
// is the state the caller observed when it first read this job in the
// current session; it is used only to pick the set to remove the jid
// from, never re-read from the store.
func (a *Adapter) Set(ctx context.Context, jid actions.JobID, fields map[string]string, srcState *actions.Status) error {
	newState, changingState := fields["state"]

	argv := make([]interface{}, 0, 4+2*len(fields))
	if changingState {
		argv = append(argv, stateSetKey(actions.Status(newState)))
	} else {
		argv = append(argv, "")
	}
	if srcState != nil {
		argv = append(argv, stateSetKey(*srcState))
	} else {
		argv = append(argv, "")
	}
	argv = append(argv, string(jid), int64(RecordTTL.Seconds()))
	for k, v := range fields {
		argv = append(argv, k, v)
	}

	if err := setIndexScript.Run(ctx, a.rdb, []string{jobKey(jid)}, argv...).Err(); err != nil {
		return fmt.Errorf("store: set %s: %w", jid, err)
	}

	if changingState {
		if srcState != nil && string(*srcState) != newState {
			log.Info("job state changed", "jid", jid, "from", *srcState, "to", newState)
		} else if srcState == nil {
			log.Info("job state set", "jid", jid, "to", newState)
		}
	}
	return nil
}

// Get reads a single hash field. A missing field or missing job both
// return (nil, nil); callers distinguish "absent" from "decode failure".
func (a *Adapter) Get(ctx context.Context, jid actions.JobID, field string) ([]byte, error) {
	v, err := a.rdb.HGet(ctx, jobKey(jid), field).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s/%s: %w", jid, field, err)
	}
	return v, nil
}

// RandomSample returns up to n jids currently in job-state-{state}. n<=0
// defaults to DefaultSampleSize.
func (a *Adapter) RandomSample(ctx context.Context, state actions.Status, n int) ([]actions.JobID, error) {
	if n <= 0 {
		n = DefaultSampleSize
	}
	members, err := a.rdb.SRandMemberN(ctx, stateSetKey(state), int64(n)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: random_sample %s: %w", state, err)
	}
	out := make([]actions.JobID, len(members))
	for i, m := range members {
		out[i] = actions.JobID(m)
	}
	return out, nil
}

// StateCount reports the current size of job-state-{state}, used by the
// metrics gauges and the `status` CLI command.
func (a *Adapter) StateCount(ctx context.Context, state actions.Status) (int64, error) {
	n, err := a.rdb.SCard(ctx, stateSetKey(state)).Result()
	if err != nil {
		return 0, fmt.Errorf("store: state_count %s: %w", state, err)
	}
	return n, nil
}

// Lock returns a handle to jid's advisory lock. Acquiring does not talk to
// the store until Acquire is called.
func (a *Adapter) Lock(jid actions.JobID) *Lock {
	return &Lock{rdb: a.rdb, key: lockKey(jid)}
}

// Lock is a distributed advisory lock with a fixed lease. It is not
// reentrant and not safe for concurrent use by multiple goroutines.
type Lock struct {
	rdb   redis.Cmdable
	key   string
	token string
}

// Acquire attempts to take the lock. When blocking is false it returns
// immediately with (false, nil) on contention; when true it polls until
// it acquires the lock or the context is cancelled. The poll itself has
// no lease-bounded deadline; LockLeaseTimeout only bounds how long the
// lock is held once acquired, not how long Acquire may wait for it.
func (l *Lock) Acquire(ctx context.Context, blocking bool) (bool, error) {
	l.token = uuid.NewString()
	for {
		ok, err := l.rdb.SetNX(ctx, l.key, l.token, LockLeaseTimeout).Result()
		if err != nil {
			return false, fmt.Errorf("store: acquire lock %s: %w", l.key, err)
		}
		if ok {
			return true, nil
		}
		if !blocking {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Release drops the lock if, and only if, it is still held by this
// handle's token. A lease that already expired and was picked up by
// another session is left untouched.
func (l *Lock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	if err := releaseLockScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("store: release lock %s: %w", l.key, err)
	}
	return nil
}

// ============================================================================
// Action Execution Engine - Bus Adapter
// ============================================================================
//
// Package: internal/bus
// File: adapter.go
// Purpose: Subscribes the three inbound topics spec.md §6 names and routes
// each to a Manager method, through the dispatch pool so a slow handler
// never stalls the NATS callback goroutine.
//
// Subject parsing: onResponse takes everything after the final '.' in
// the subject to recover the jid. The original implementation instead used
// a fixed string-length offset sized for the wildcard character, which
// breaks the moment a jid's length differs from the wildcard's -- not
// reproduced here.
//
// ============================================================================

package bus

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ChuLiYu/action-engine/pkg/actions"
)

const (
	// TopicTriggerAsync is the inbound async-register topic.
	TopicTriggerAsync = "conthesis.action.TriggerAsyncAction"
	// TopicTriggerSync is the inbound synchronous-compute topic.
	TopicTriggerSync = "conthesis.action.TriggerAction"
	// TopicResponses is the inbound executor-response wildcard subscription.
	TopicResponses = "conthesis.actions.responses.*"
	// responseBudget bounds how long a response-triggered resume runs
	// synchronously (spec.md §4.6).
	responseBudget = 3 * time.Second
)

// DispatchTopic returns the outbound per-kind executor queue subject.
func DispatchTopic(kind string) string { return "conthesis.action." + kind }

// ReplyTopic returns the reply subject a dispatched job expects its
// result on.
func ReplyTopic(jid actions.JobID) string { return "conthesis.actions.responses." + string(jid) }

var log = slog.Default()

// Handler is the subset of Manager the Bus Adapter drives. Declared
// locally so this package doesn't import internal/manager.
type Handler interface {
	Register(ctx context.Context, trigger *actions.ActionTrigger) (actions.JobID, error)
	Resume(ctx context.Context, jid actions.JobID, result string, data []byte) error
}

// SyncCompute serves the out-of-scope synchronous compute path
// (conthesis.action.TriggerAction); spec.md §1 treats it as a thin
// external collaborator, so an Adapter with a nil SyncCompute simply
// replies with an error body rather than refusing to subscribe.
type SyncCompute interface {
	Compute(ctx context.Context, trigger *actions.ActionTrigger) ([]byte, error)
}

// Adapter owns the three bus subscriptions and their concurrent dispatch.
type Adapter struct {
	client      Client
	handler     Handler
	compute     SyncCompute
	pool        *pool
	workerCount int
	subs        []Subscription
}

// NewAdapter builds an Adapter. workerCount bounds in-flight handler
// concurrency; bufferSize bounds how many inbound messages may queue
// before Submit blocks the NATS callback goroutine.
func NewAdapter(client Client, handler Handler, compute SyncCompute, workerCount, bufferSize int) *Adapter {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Adapter{
		client:      client,
		handler:     handler,
		compute:     compute,
		pool:        newPool(bufferSize),
		workerCount: workerCount,
	}
}

// Start starts the dispatch pool and subscribes all three topics.
func (a *Adapter) Start(ctx context.Context) error {
	a.pool.start(ctx, a.workerCount)

	subs := make([]Subscription, 0, 3)

	sub, err := a.client.Subscribe(TopicTriggerAsync, a.onTriggerAsync)
	if err != nil {
		return err
	}
	subs = append(subs, sub)

	sub, err = a.client.Subscribe(TopicResponses, a.onResponse)
	if err != nil {
		a.unsubscribeAll(subs)
		return err
	}
	subs = append(subs, sub)

	sub, err = a.client.Subscribe(TopicTriggerSync, a.onTriggerSync)
	if err != nil {
		a.unsubscribeAll(subs)
		return err
	}
	subs = append(subs, sub)

	a.subs = subs
	return nil
}

// Stop unsubscribes every topic and drains the dispatch pool.
func (a *Adapter) Stop() {
	a.unsubscribeAll(a.subs)
	a.subs = nil
	a.pool.stop()
}

func (a *Adapter) unsubscribeAll(subs []Subscription) {
	for _, s := range subs {
		if err := s.Unsubscribe(); err != nil {
			log.Error("bus unsubscribe failed", "error", err)
		}
	}
}

func (a *Adapter) onTriggerAsync(msg *Message) {
	_ = a.pool.submit(func(ctx context.Context) {
		var trigger actions.ActionTrigger
		if err := actions.Decode(msg.Data, &trigger); err != nil {
			log.Error("bad trigger payload", "error", err)
			a.replyError(msg)
			return
		}
		if _, err := a.handler.Register(ctx, &trigger); err != nil {
			log.Error("register failed", "jid", trigger.JID, "error", err)
			a.replyError(msg)
			return
		}
		if msg.Reply != "" {
			_ = a.client.Publish(msg.Reply, []byte("{}"))
		}
	})
}

func (a *Adapter) onResponse(msg *Message) {
	_ = a.pool.submit(func(ctx context.Context) {
		jid := actions.JobID(subjectSuffix(msg.Subject))
		if jid == "" {
			log.Error("response on subject with no jid suffix", "subject", msg.Subject)
			return
		}
		ctx, cancel := context.WithTimeout(ctx, responseBudget)
		defer cancel()
		if err := a.handler.Resume(ctx, jid, "success", msg.Data); err != nil {
			log.Error("resume failed", "jid", jid, "error", err)
		}
	})
}

func (a *Adapter) onTriggerSync(msg *Message) {
	_ = a.pool.submit(func(ctx context.Context) {
		if msg.Reply == "" {
			return
		}
		var trigger actions.ActionTrigger
		if err := actions.Decode(msg.Data, &trigger); err != nil {
			a.replyError(msg)
			return
		}
		if a.compute == nil {
			a.replyError(msg)
			return
		}
		result, err := a.compute.Compute(ctx, &trigger)
		if err != nil {
			a.replyError(msg)
			return
		}
		if result == nil {
			_ = a.client.Publish(msg.Reply, []byte("null"))
			return
		}
		_ = a.client.Publish(msg.Reply, result)
	})
}

func (a *Adapter) replyError(msg *Message) {
	if msg.Reply == "" {
		return
	}
	_ = a.client.Publish(msg.Reply, []byte(`{"error":true}`))
}

// subjectSuffix returns everything after the final '.' in subject.
func subjectSuffix(subject string) string {
	idx := strings.LastIndex(subject, ".")
	if idx < 0 || idx == len(subject)-1 {
		return ""
	}
	return subject[idx+1:]
}

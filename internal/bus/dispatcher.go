// ============================================================================
// Action Execution Engine - Dispatcher
// ============================================================================
//
// Package: internal/bus
// File: dispatcher.go
// Purpose: Implements processor.Dispatcher by publishing a resolved action
// onto its executor queue with a reply subject attached -- fire-and-forget
// from this process's point of view; the actual result arrives later on
// conthesis.actions.responses.{jid}, handled by Adapter.onResponse.
//
// ============================================================================

package bus

import (
	"context"
	"fmt"

	"github.com/ChuLiYu/action-engine/pkg/actions"
)

// Dispatcher publishes resolved action payloads to their executor queue.
// It satisfies processor.Dispatcher structurally, with no import of
// internal/processor.
type Dispatcher struct {
	client Client
}

// NewDispatcher wraps client for use as a processor.Dispatcher.
func NewDispatcher(client Client) *Dispatcher {
	return &Dispatcher{client: client}
}

// Dispatch publishes resolved onto conthesis.action.{kind}, with reply
// subject conthesis.actions.responses.{jid} (spec.md §4.5/§6).
func (d *Dispatcher) Dispatch(ctx context.Context, jid actions.JobID, kind string, resolved map[string]interface{}) error {
	body, err := actions.Encode(resolved)
	if err != nil {
		return fmt.Errorf("bus: dispatch %s encode: %w", jid, err)
	}
	if err := d.client.PublishRequest(DispatchTopic(kind), ReplyTopic(jid), body); err != nil {
		return fmt.Errorf("bus: dispatch %s: %w", jid, err)
	}
	return nil
}

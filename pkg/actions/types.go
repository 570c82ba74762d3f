// ============================================================================
// Action Execution Engine - Core Domain Models
// ============================================================================
//
// Package: pkg/actions
// File: types.go
// Purpose: Domain models shared by the store, state machine, processor and
// bus layers: triggers, actions, properties and job status.
//
// Design Principles:
//   1. Domain-Driven Design - business concepts as types
//   2. Type Safety - custom types prevent primitive obsession
//   3. JSON Serialization - full round-trip support (Encode/Decode)
//
// ============================================================================

package actions

import (
	"encoding/json"
	"fmt"
)

// JobID uniquely identifies a job across the system.
type JobID string

// Status represents the job's position in the lifecycle state machine.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusVariablesLoaded   Status = "VARIABLES_LOADED"
	StatusRunning           Status = "RUNNING"
	StatusSuspended         Status = "SUSPENDED"
	StatusRetry             Status = "RETRY"
	StatusSuccess           Status = "SUCCESS"
	StatusFailure           Status = "FAILURE"
	StatusRevoked           Status = "REVOKED"
)

// IsTerminal reports whether this status is terminal, i.e. a job in it never
// transitions out of it (spec invariant: SUCCESS, FAILURE and REVOKED are
// terminal).
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusRevoked:
		return true
	default:
		return false
	}
}

// ActionSource tells the trigger where to find the Action: inline in the
// trigger itself, or fetched from the entity store by symbolic path.
type ActionSource string

const (
	ActionSourceLiteral ActionSource = "LITERAL"
	ActionSourcePath    ActionSource = "PATH"
)

// PropertyKind tags how an ActionProperty's value should be interpreted.
type PropertyKind string

const (
	PropertyKindLiteral    PropertyKind = "LITERAL"
	PropertyKindPath       PropertyKind = "PATH"
	PropertyKindMetaField  PropertyKind = "META_FIELD"
	PropertyKindMetaEntity PropertyKind = "META_ENTITY"
)

// DataFormat tells the freezer/resolver whether a fetched value should be
// JSON-decoded or kept as raw bytes.
type DataFormat string

const (
	DataFormatJSON  DataFormat = "JSON"
	DataFormatBytes DataFormat = "BYTES"
)

// ActionTrigger is the inbound event that creates or re-identifies a job.
type ActionTrigger struct {
	JID          JobID             `json:"jid"`
	Meta         map[string]string `json:"meta"`
	ActionSource ActionSource      `json:"action_source"`
	// Action is set when ActionSource is LITERAL.
	Action *Action `json:"action,omitempty"`
	// ActionPath is set when ActionSource is PATH; resolved via the entity store.
	ActionPath *string `json:"action_path,omitempty"`
}

// Action names the executor queue (Kind) and its input properties.
type Action struct {
	Kind       string           `json:"kind"`
	Properties []ActionProperty `json:"properties"`
}

// ActionProperty is one typed input to an Action.
type ActionProperty struct {
	Name       string          `json:"name"`
	Kind       PropertyKind    `json:"kind"`
	DataFormat DataFormat      `json:"data_format,omitempty"`
	Value      json.RawMessage `json:"value"`
}

// effectiveDataFormat returns DataFormatJSON when DataFormat is unset, per
// spec.md's documented default.
func (p ActionProperty) effectiveDataFormat() DataFormat {
	if p.DataFormat == "" {
		return DataFormatJSON
	}
	return p.DataFormat
}

// Simplify collapses META_FIELD and META_ENTITY properties to LITERAL or
// PATH using the trigger's meta map. A referenced key missing from meta
// resolves to a null value (spec.md §8 boundary behavior), not an error.
func (p ActionProperty) Simplify(meta map[string]string) ActionProperty {
	switch p.Kind {
	case PropertyKindMetaField:
		v, ok := meta[p.rawStringValue()]
		if !ok {
			return p.CopyWith(kindPtr(PropertyKindLiteral), rawPtr(json.RawMessage("null")))
		}
		encoded, _ := json.Marshal(v)
		return p.CopyWith(kindPtr(PropertyKindLiteral), rawPtr(encoded))
	case PropertyKindMetaEntity:
		v, ok := meta[p.rawStringValue()]
		if !ok {
			return p.CopyWith(kindPtr(PropertyKindPath), rawPtr(json.RawMessage("null")))
		}
		encoded, _ := json.Marshal(v)
		return p.CopyWith(kindPtr(PropertyKindPath), rawPtr(encoded))
	default:
		return p
	}
}

// rawStringValue treats Value as a JSON-encoded string and returns its
// decoded contents; used where Kind implies Value is a path or a meta key.
func (p ActionProperty) rawStringValue() string {
	var s string
	if err := json.Unmarshal(p.Value, &s); err == nil {
		return s
	}
	// Value may already be a bare (unquoted) string for META_FIELD/PATH keys
	// produced outside strict JSON round-trips; fall back to the raw bytes.
	return string(p.Value)
}

// CopyWith returns a shallow copy of p with kind and/or value overridden.
func (p ActionProperty) CopyWith(kind *PropertyKind, value *json.RawMessage) ActionProperty {
	out := p
	if kind != nil {
		out.Kind = *kind
	}
	if value != nil {
		out.Value = *value
	}
	return out
}

func kindPtr(k PropertyKind) *PropertyKind { return &k }
func rawPtr(v json.RawMessage) *json.RawMessage { return &v }

// FrozenKind tags a FrozenProperty as having been pinned to a literal value
// or left as a late-bound path (spec.md §9, "frozen variables as sum type").
type FrozenKind string

const (
	FrozenKindLiteral FrozenKind = "LITERAL"
	FrozenKindPath    FrozenKind = "PATH"
)

// FrozenProperty is the result of freezing an ActionProperty at
// VARIABLES_LOADED time: either a materialised literal, or a path pinned to
// whatever readlink resolved it to.
type FrozenProperty struct {
	Name       string          `json:"name"`
	Kind       FrozenKind      `json:"kind"`
	DataFormat DataFormat      `json:"data_format,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
	Path       string          `json:"path,omitempty"`
}

// Encode serialises v as JSON. All wire bodies in this system (triggers,
// actions, properties, executor results) are JSON, per spec.md §6.
func Encode(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return b, nil
}

// Decode deserialises JSON into v.
func Decode(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// ============================================================================
// Action Execution Engine - Property Freezing
// ============================================================================
//
// Package: internal/processor
// File: freeze.go
// Purpose: Resolves an Action's property list into FrozenProperty values at
// VARIABLES_LOADED time (freezeAll/freezeOne), and re-resolves a frozen list
// back into plain values at dispatch time (resolveFrozen).
//
// Freezing fans out across the property list with a plain sync.WaitGroup,
// matching the teacher's worker-pool style rather than reaching for
// golang.org/x/sync/errgroup: the property count per action is small and
// bounded, so a fixed-size goroutine-per-property fan-out is simplest.
//
// ============================================================================

package processor

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ChuLiYu/action-engine/pkg/actions"
)

// freezeAll resolves every property in props against meta and the entity
// store, in parallel, preserving input order in the result.
func freezeAll(ctx context.Context, entities EntityStore, props []actions.ActionProperty, meta map[string]string) ([]actions.FrozenProperty, error) {
	out := make([]actions.FrozenProperty, len(props))
	errs := make([]error, len(props))

	var wg sync.WaitGroup
	for i, prop := range props {
		wg.Add(1)
		go func(i int, prop actions.ActionProperty) {
			defer wg.Done()
			fp, err := freezeOne(ctx, entities, prop, meta)
			out[i] = fp
			errs[i] = err
		}(i, prop)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// freezeOne simplifies a single property then pins it: LITERAL values are
// copied as-is; PATH values are read-linked once, and either kept as a
// late-bound path (if readlink resolved somewhere new) or fetched and
// materialised immediately (if it didn't move).
func freezeOne(ctx context.Context, entities EntityStore, prop actions.ActionProperty, meta map[string]string) (actions.FrozenProperty, error) {
	simplified := prop.Simplify(meta)
	format := simplified.DataFormat
	if format == "" {
		format = actions.DataFormatJSON
	}

	switch simplified.Kind {
	case actions.PropertyKindPath:
		var path string
		if err := json.Unmarshal(simplified.Value, &path); err != nil {
			path = string(simplified.Value)
		}
		resolved, err := entities.Readlink(ctx, path)
		if err != nil {
			return actions.FrozenProperty{}, err
		}
		if resolved != path {
			return actions.FrozenProperty{
				Name:       simplified.Name,
				Kind:       actions.FrozenKindPath,
				DataFormat: format,
				Path:       resolved,
			}, nil
		}
		data, err := entities.Fetch(ctx, path)
		if err != nil {
			return actions.FrozenProperty{}, err
		}
		value, err := encodeFetched(data, format)
		if err != nil {
			return actions.FrozenProperty{}, err
		}
		return actions.FrozenProperty{
			Name:       simplified.Name,
			Kind:       actions.FrozenKindLiteral,
			DataFormat: format,
			Value:      value,
		}, nil

	default: // LITERAL (META_FIELD/META_ENTITY already simplified away)
		return actions.FrozenProperty{
			Name:       simplified.Name,
			Kind:       actions.FrozenKindLiteral,
			DataFormat: format,
			Value:      simplified.Value,
		}, nil
	}
}

// resolveFrozen re-resolves a FrozenProperty's current value at dispatch
// time: literals decode straight from their stored Value; paths are
// fetched fresh from the entity store, so a late-bound path can pick up a
// change between freezing and dispatch.
func resolveFrozen(ctx context.Context, entities EntityStore, fp actions.FrozenProperty) (interface{}, error) {
	switch fp.Kind {
	case actions.FrozenKindPath:
		data, err := entities.Fetch(ctx, fp.Path)
		if err != nil {
			return nil, err
		}
		value, err := encodeFetched(data, fp.DataFormat)
		if err != nil {
			return nil, err
		}
		return decodeValue(value), nil
	default:
		return decodeValue(fp.Value), nil
	}
}

// encodeFetched turns raw bytes fetched from the entity store into a
// json.RawMessage suitable for storing on a FrozenProperty: JSON content is
// kept as-is (falling back to a quoted string if it isn't valid JSON, so a
// malformed upstream blob never breaks the frozen record), BYTES content is
// base64-encoded via the standard []byte JSON encoding.
func encodeFetched(data []byte, format actions.DataFormat) (json.RawMessage, error) {
	if data == nil {
		return json.RawMessage("null"), nil
	}
	if format == actions.DataFormatBytes {
		return json.Marshal(data)
	}
	if json.Valid(data) {
		return json.RawMessage(data), nil
	}
	return json.Marshal(string(data))
}

// decodeValue turns a json.RawMessage back into a plain Go value for the
// Dispatcher's payload map.
func decodeValue(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

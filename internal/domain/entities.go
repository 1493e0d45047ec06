// Package domain defines core entities, ports, and domain-specific errors.
package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

// Op enumerates the operations a transaction may contain.
type Op string

// Transaction operations.
const (
	// OpRead reads the current list for a key.
	OpRead Op = "r"
	// OpAppend appends one element to the list for a key.
	OpAppend Op = "append"
)

// Query is a single operation of a transaction. On the wire it is the
// positional triple [op, key, value].
//
// For OpRead the value is the observed list, or null when the key is absent.
// For OpAppend the value is the element to push.
type Query struct {
	// Op is the operation kind.
	Op Op
	// Key is the logical key the operation targets.
	Key uint64
	// Val is the operation operand; which field is meaningful depends on Op.
	Val QueryValue
}

// QueryValue is the third element of a query triple.
type QueryValue struct {
	// List carries an OpRead result. nil means the key was absent; a non-nil
	// pointer to an empty slice means the key exists and is empty.
	List *[]uint64
	// Elem carries the OpAppend operand.
	Elem uint64
}

// ReadValue builds the value of a satisfied read query.
func ReadValue(list []uint64) QueryValue {
	return QueryValue{List: &list}
}

// AppendValue builds the value of an append query.
func AppendValue(elem uint64) QueryValue {
	return QueryValue{Elem: elem}
}

// MarshalJSON serializes the query as [op, key, value].
func (q Query) MarshalJSON() ([]byte, error) {
	var val any
	switch q.Op {
	case OpRead:
		if q.Val.List != nil {
			val = *q.Val.List
		}
	case OpAppend:
		val = q.Val.Elem
	default:
		return nil, fmt.Errorf("op=query.marshal: %w: operation %q", ErrMalformed, q.Op)
	}
	return json.Marshal([3]any{q.Op, q.Key, val})
}

// UnmarshalJSON parses the positional triple. Keys and elements decode
// directly into uint64 so full 64-bit precision survives the trip.
func (q *Query) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("op=query.unmarshal: %w: %v", ErrMalformed, err)
	}
	if len(raw) != 3 {
		return fmt.Errorf("op=query.unmarshal: %w: triple has %d elements", ErrMalformed, len(raw))
	}
	var op Op
	if err := json.Unmarshal(raw[0], &op); err != nil {
		return fmt.Errorf("op=query.unmarshal: %w: %v", ErrMalformed, err)
	}
	var key uint64
	if err := json.Unmarshal(raw[1], &key); err != nil {
		return fmt.Errorf("op=query.unmarshal: %w: key: %v", ErrMalformed, err)
	}
	q.Op, q.Key, q.Val = op, key, QueryValue{}
	switch op {
	case OpRead:
		if string(raw[2]) == "null" {
			return nil
		}
		var list []uint64
		if err := json.Unmarshal(raw[2], &list); err != nil {
			return fmt.Errorf("op=query.unmarshal: %w: read value: %v", ErrMalformed, err)
		}
		if list == nil {
			list = []uint64{}
		}
		q.Val.List = &list
	case OpAppend:
		if string(raw[2]) == "null" {
			return fmt.Errorf("op=query.unmarshal: %w: append value is null", ErrMalformed)
		}
		if err := json.Unmarshal(raw[2], &q.Val.Elem); err != nil {
			return fmt.Errorf("op=query.unmarshal: %w: append value: %v", ErrMalformed, err)
		}
	default:
		return fmt.Errorf("op=query.unmarshal: %w: operation %q", ErrMalformed, op)
	}
	return nil
}

// KV (port)

// KV is the port onto the linearizable key-value service the transactor
// persists through. Implementations surface service errors as *RPCError so
// callers can branch with errors.Is on the sentinels below.
type KV interface {
	// ReadInto reads key and decodes its value into out.
	ReadInto(ctx Context, key string, out any) error
	// Write stores value under key.
	Write(ctx Context, key string, value any) error
	// CAS atomically replaces from with to under key.
	CAS(ctx Context, key string, from, to any, createIfNotExists bool) error
}

// Context is a type alias to stdlib context.Context for convenience across layers.
type Context = context.Context

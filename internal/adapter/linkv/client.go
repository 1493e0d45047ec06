// Package linkv adapts the synchronous RPC facility into the KV port the
// transactor persists through.
package linkv

import (
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/maelstrom-txn/internal/domain"
	"github.com/fairyhunter13/maelstrom-txn/internal/protocol"
)

// Caller issues one request and blocks for its reply.
type Caller interface {
	SyncRPC(ctx domain.Context, dest string, req protocol.Payload) (protocol.Payload, error)
}

// Client speaks the read/write/cas protocol of the linearizable KV service.
type Client struct {
	rpc Caller
	svc string
}

// New builds a Client addressing the given service id (normally "lin-kv").
func New(rpc Caller, svc string) *Client {
	return &Client{rpc: rpc, svc: svc}
}

// ReadInto reads key and decodes its value into out. An absent key surfaces
// as an error matching domain.ErrKeyNotFound; the caller decides whether
// that means "empty" in its context.
func (c *Client) ReadInto(ctx domain.Context, key string, out any) error {
	tracer := otel.Tracer("linkv")
	ctx, span := tracer.Start(ctx, "linkv.Read")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key))

	reply, err := c.rpc.SyncRPC(ctx, c.svc, &protocol.Read{Key: mustJSON(key)})
	if err != nil {
		return fmt.Errorf("op=linkv.ReadInto key=%s: %w", key, err)
	}
	switch p := reply.(type) {
	case *protocol.ReadOK:
		if err := json.Unmarshal(p.Value, out); err != nil {
			return fmt.Errorf("op=linkv.ReadInto key=%s: %w: undecodable value: %v", key, domain.ErrProtocol, err)
		}
		return nil
	case *protocol.Error:
		return fmt.Errorf("op=linkv.ReadInto key=%s: %w", key, &domain.RPCError{Code: p.Code, Text: p.Text})
	default:
		return fmt.Errorf("op=linkv.ReadInto key=%s: %w: unexpected reply %s", key, domain.ErrProtocol, reply.Kind())
	}
}

// Write stores value under key. Keys other than the root are written once
// and never touched again, so a write error has no benign reading.
func (c *Client) Write(ctx domain.Context, key string, value any) error {
	tracer := otel.Tracer("linkv")
	ctx, span := tracer.Start(ctx, "linkv.Write")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key))

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("op=linkv.Write key=%s: %w", key, err)
	}
	reply, err := c.rpc.SyncRPC(ctx, c.svc, &protocol.Write{Key: mustJSON(key), Value: raw})
	if err != nil {
		return fmt.Errorf("op=linkv.Write key=%s: %w", key, err)
	}
	switch p := reply.(type) {
	case *protocol.WriteOK:
		return nil
	case *protocol.Error:
		return fmt.Errorf("op=linkv.Write key=%s: %w", key, &domain.RPCError{Code: p.Code, Text: p.Text})
	default:
		return fmt.Errorf("op=linkv.Write key=%s: %w: unexpected reply %s", key, domain.ErrProtocol, reply.Kind())
	}
}

// CAS atomically replaces from with to under key. A precondition failure
// surfaces as an error matching domain.ErrPreconditionFailed.
func (c *Client) CAS(ctx domain.Context, key string, from, to any, createIfNotExists bool) error {
	tracer := otel.Tracer("linkv")
	ctx, span := tracer.Start(ctx, "linkv.CAS")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key))

	rawFrom, err := json.Marshal(from)
	if err != nil {
		return fmt.Errorf("op=linkv.CAS key=%s: %w", key, err)
	}
	rawTo, err := json.Marshal(to)
	if err != nil {
		return fmt.Errorf("op=linkv.CAS key=%s: %w", key, err)
	}
	reply, err := c.rpc.SyncRPC(ctx, c.svc, &protocol.CAS{
		Key:               mustJSON(key),
		From:              rawFrom,
		To:                rawTo,
		CreateIfNotExists: createIfNotExists,
	})
	if err != nil {
		return fmt.Errorf("op=linkv.CAS key=%s: %w", key, err)
	}
	switch p := reply.(type) {
	case *protocol.CASOK:
		return nil
	case *protocol.Error:
		return fmt.Errorf("op=linkv.CAS key=%s: %w", key, &domain.RPCError{Code: p.Code, Text: p.Text})
	default:
		return fmt.Errorf("op=linkv.CAS key=%s: %w: unexpected reply %s", key, domain.ErrProtocol, reply.Kind())
	}
}

// mustJSON marshals a plain string key; string marshaling cannot fail.
func mustJSON(key string) json.RawMessage {
	raw, _ := json.Marshal(key)
	return raw
}

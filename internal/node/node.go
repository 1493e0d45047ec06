// Package node implements the protocol loop: node state, dispatching, and
// the reentrant synchronous RPC facility.
package node

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/fairyhunter13/maelstrom-txn/internal/domain"
	"github.com/fairyhunter13/maelstrom-txn/internal/observability"
	"github.com/fairyhunter13/maelstrom-txn/internal/protocol"
)

// Transport is the framing layer the node reads and writes through.
type Transport interface {
	// Recv blocks for the next well-formed message; io.EOF ends the loop.
	Recv() (protocol.Message, error)
	// Send emits one message.
	Send(msg protocol.Message) error
}

// Transactor executes one client transaction against the shared store.
type Transactor interface {
	// Transact runs ops atomically and returns them with reads populated.
	Transact(ctx domain.Context, ops []domain.Query) ([]domain.Query, error)
}

// pendingSlot receives the reply payload of an outstanding synchronous RPC.
type pendingSlot struct {
	payload protocol.Payload
	filled  bool
}

// Node holds the identity, peer list, msg_id counter, and the correlation
// table for in-flight RPCs. The whole structure is confined to the single
// protocol goroutine, so no locking is needed.
type Node struct {
	log       *slog.Logger
	tr        Transport
	transact  Transactor
	id        string
	peers     []string
	nextMsgID uint64
	pending   map[uint64]*pendingSlot
	topology  map[string][]string
	seen      map[uint64]struct{}
	seenOrder []uint64
}

// New builds a Node over the given transport.
func New(tr Transport, log *slog.Logger) *Node {
	return &Node{
		log:     log,
		tr:      tr,
		pending: map[uint64]*pendingSlot{},
		seen:    map[uint64]struct{}{},
	}
}

// SetTransactor wires the transaction executor. It is injected after
// construction because the transactor itself needs the node for RPCs.
func (n *Node) SetTransactor(t Transactor) { n.transact = t }

// ID returns the node id assigned by init, or "" before the handshake.
func (n *Node) ID() string { return n.id }

// Run reads and dispatches frames until EOF. It returns nil on clean EOF
// and an error only for fatal protocol violations or I/O failures.
func (n *Node) Run(ctx domain.Context) error {
	for {
		msg, err := n.tr.Recv()
		if err != nil {
			if err == io.EOF {
				n.log.Info("input closed, shutting down")
				return nil
			}
			return fmt.Errorf("op=node.Run: %w", err)
		}
		if err := n.route(ctx, msg); err != nil {
			return err
		}
	}
}

// SyncRPC sends req to dest with a fresh msg_id and blocks until the
// matching reply arrives, dispatching every unrelated frame that shows up in
// the meantime. Nested calls complete in LIFO order because each level
// reenters this same loop. There is no timeout: a service that never replies
// stalls the node, which the workload accepts.
func (n *Node) SyncRPC(ctx domain.Context, dest string, req protocol.Payload) (protocol.Payload, error) {
	id := n.allocMsgID()
	slot := &pendingSlot{}
	n.pending[id] = slot
	observability.RPCsTotal.WithLabelValues(req.Kind()).Inc()
	msg := protocol.Message{
		Src:  n.id,
		Dest: dest,
		Body: protocol.Body{MsgID: &id, Payload: req},
	}
	if err := n.tr.Send(msg); err != nil {
		delete(n.pending, id)
		return nil, fmt.Errorf("op=node.SyncRPC: %w", err)
	}
	for {
		if slot.filled {
			delete(n.pending, id)
			return slot.payload, nil
		}
		in, err := n.tr.Recv()
		if err != nil {
			delete(n.pending, id)
			return nil, fmt.Errorf("op=node.SyncRPC: %w: input ended with RPC outstanding", domain.ErrProtocol)
		}
		if err := n.route(ctx, in); err != nil {
			delete(n.pending, id)
			return nil, err
		}
	}
}

// route correlates replies with pending RPCs and dispatches everything else.
func (n *Node) route(ctx domain.Context, msg protocol.Message) error {
	if r := msg.Body.InReplyTo; r != nil {
		if slot, ok := n.pending[*r]; ok {
			slot.payload = msg.Body.Payload
			slot.filled = true
			return nil
		}
		n.log.Debug("dropping uncorrelated reply",
			slog.String("type", msg.Body.Payload.Kind()),
			slog.Uint64("in_reply_to", *r))
		return nil
	}
	return n.dispatch(ctx, msg)
}

// allocMsgID returns the next outbound msg_id. Strictly increasing for the
// process lifetime.
func (n *Node) allocMsgID() uint64 {
	n.nextMsgID++
	return n.nextMsgID
}

// reply answers req with payload, swapping src/dest and assigning a fresh
// msg_id. Requests that carried no msg_id expect no reply and get none.
func (n *Node) reply(req protocol.Message, payload protocol.Payload) error {
	if req.Body.MsgID == nil {
		return nil
	}
	return n.tr.Send(protocol.Reply(req, n.allocMsgID(), payload))
}

// send emits a fire-and-forget message to a peer. No msg_id is assigned, so
// the peer will not reply.
func (n *Node) send(dest string, payload protocol.Payload) error {
	return n.tr.Send(protocol.Message{
		Src:  n.id,
		Dest: dest,
		Body: protocol.Body{Payload: payload},
	})
}

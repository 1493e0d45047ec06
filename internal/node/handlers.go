package node

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fairyhunter13/maelstrom-txn/internal/domain"
	"github.com/fairyhunter13/maelstrom-txn/internal/protocol"
)

// dispatch routes one request frame to its handler and emits the reply, if
// any. The switch is exhaustive over the payload union: reply variants are
// only ever consumed by route, so landing here means nothing awaits them.
func (n *Node) dispatch(ctx domain.Context, msg protocol.Message) error {
	var reply protocol.Payload
	switch p := msg.Body.Payload.(type) {
	case *protocol.Init:
		reply = n.handleInit(p)
	case *protocol.Echo:
		reply = &protocol.EchoOK{Echo: p.Echo}
	case *protocol.Generate:
		reply = &protocol.GenerateOK{ID: uuid.NewString()}
	case *protocol.Topology:
		n.topology = p.Topology
		reply = &protocol.TopologyOK{}
	case *protocol.Broadcast:
		var err error
		if reply, err = n.handleBroadcast(p); err != nil {
			return err
		}
	case *protocol.Read:
		reply = n.handleRead(msg, p)
	case *protocol.Txn:
		var err error
		if reply, err = n.handleTxn(ctx, p); err != nil {
			return err
		}
	case *protocol.Write, *protocol.CAS:
		n.log.Warn("kv request addressed to node, dropping",
			slog.String("type", msg.Body.Payload.Kind()),
			slog.String("src", msg.Src))
	case *protocol.InitOK, *protocol.EchoOK, *protocol.GenerateOK, *protocol.TopologyOK,
		*protocol.BroadcastOK, *protocol.ReadOK, *protocol.WriteOK, *protocol.CASOK,
		*protocol.TxnOK, *protocol.Error:
		n.log.Debug("dropping reply with no correlation",
			slog.String("type", msg.Body.Payload.Kind()),
			slog.String("src", msg.Src))
	}
	if reply == nil {
		return nil
	}
	return n.reply(msg, reply)
}

// handleInit records the identity Maelstrom assigned to this process.
func (n *Node) handleInit(p *protocol.Init) protocol.Payload {
	n.id = p.NodeID
	n.peers = p.NodeIDs
	n.log.Info("node initialized",
		slog.String("node_id", p.NodeID),
		slog.Int("cluster_size", len(p.NodeIDs)))
	return &protocol.InitOK{}
}

// handleBroadcast records a gossip value and forwards first sightings to the
// topology neighbors. Forwards carry no msg_id: there is no retry loop, so
// no reply is expected and the single-writer discipline on stdout holds.
func (n *Node) handleBroadcast(p *protocol.Broadcast) (protocol.Payload, error) {
	if _, ok := n.seen[p.Message]; !ok {
		n.seen[p.Message] = struct{}{}
		n.seenOrder = append(n.seenOrder, p.Message)
		for _, neighbor := range n.topology[n.id] {
			if err := n.send(neighbor, p); err != nil {
				return nil, err
			}
		}
	}
	return &protocol.BroadcastOK{}, nil
}

// handleRead serves the broadcast-workload read. A read carrying a key is a
// KV-service request that has no business arriving here.
func (n *Node) handleRead(msg protocol.Message, p *protocol.Read) protocol.Payload {
	if len(p.Key) > 0 {
		n.log.Warn("keyed read addressed to node, dropping", slog.String("src", msg.Src))
		return nil
	}
	messages := make([]uint64, len(n.seenOrder))
	copy(messages, n.seenOrder)
	return &protocol.ReadOK{Messages: &messages}
}

// handleTxn runs the transaction. A lost CAS race comes back as *RPCError
// and is relayed to the client verbatim; any other failure is a protocol
// violation and stops the node.
func (n *Node) handleTxn(ctx domain.Context, p *protocol.Txn) (protocol.Payload, error) {
	if n.transact == nil {
		return nil, fmt.Errorf("op=node.handleTxn: %w: no transactor wired", domain.ErrProtocol)
	}
	result, err := n.transact.Transact(ctx, p.Txn)
	if err != nil {
		var rpcErr *domain.RPCError
		if errors.As(err, &rpcErr) {
			n.log.Info("transaction aborted",
				slog.Int("code", rpcErr.Code),
				slog.String("text", rpcErr.Text))
			return &protocol.Error{Code: rpcErr.Code, Text: rpcErr.Text}, nil
		}
		return nil, fmt.Errorf("op=node.handleTxn: %w", err)
	}
	return &protocol.TxnOK{Txn: result}, nil
}

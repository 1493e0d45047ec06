package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/fairyhunter13/maelstrom-txn/internal/domain"
)

// Payload is one variant of the body union. Kind returns the wire tag.
type Payload interface {
	Kind() string
}

// Wire tags of the payload union.
const (
	KindInit        = "init"
	KindInitOK      = "init_ok"
	KindEcho        = "echo"
	KindEchoOK      = "echo_ok"
	KindGenerate    = "generate"
	KindGenerateOK  = "generate_ok"
	KindTopology    = "topology"
	KindTopologyOK  = "topology_ok"
	KindBroadcast   = "broadcast"
	KindBroadcastOK = "broadcast_ok"
	KindRead        = "read"
	KindReadOK      = "read_ok"
	KindWrite       = "write"
	KindWriteOK     = "write_ok"
	KindCAS         = "cas"
	KindCASOK       = "cas_ok"
	KindTxn         = "txn"
	KindTxnOK       = "txn_ok"
	KindError       = "error"
)

// Init sets the node identity at startup.
type Init struct {
	NodeID  string   `json:"node_id"`
	NodeIDs []string `json:"node_ids"`
}

// InitOK acknowledges an Init.
type InitOK struct{}

// Echo asks the node to echo back an arbitrary value.
type Echo struct {
	Echo json.RawMessage `json:"echo"`
}

// EchoOK answers an Echo.
type EchoOK struct {
	Echo json.RawMessage `json:"echo"`
}

// Generate asks the node for a globally unique id.
type Generate struct{}

// GenerateOK answers a Generate.
type GenerateOK struct {
	ID string `json:"id"`
}

// Topology delivers the neighbor map for the broadcast workload.
type Topology struct {
	Topology map[string][]string `json:"topology"`
}

// TopologyOK acknowledges a Topology.
type TopologyOK struct{}

// Broadcast delivers one gossip value.
type Broadcast struct {
	Message uint64 `json:"message"`
}

// BroadcastOK acknowledges a Broadcast.
type BroadcastOK struct{}

// Read doubles as the broadcast-workload read (no key) and the KV service
// read (key present). The node only ever receives the former and sends the
// latter.
type Read struct {
	Key json.RawMessage `json:"key,omitempty"`
}

// ReadOK answers a Read: Value from the KV service, Messages for the
// broadcast workload.
type ReadOK struct {
	Value    json.RawMessage `json:"value,omitempty"`
	Messages *[]uint64       `json:"messages,omitempty"`
}

// Write stores a value in the KV service.
type Write struct {
	Key   json.RawMessage `json:"key"`
	Value json.RawMessage `json:"value"`
}

// WriteOK acknowledges a Write.
type WriteOK struct{}

// CAS atomically swaps From for To in the KV service.
type CAS struct {
	Key               json.RawMessage `json:"key"`
	From              json.RawMessage `json:"from"`
	To                json.RawMessage `json:"to"`
	CreateIfNotExists bool            `json:"create_if_not_exists"`
}

// CASOK acknowledges a successful CAS.
type CASOK struct{}

// Txn carries a client transaction into the node.
type Txn struct {
	Txn []domain.Query `json:"txn"`
}

// TxnOK answers a committed Txn with reads populated.
type TxnOK struct {
	Txn []domain.Query `json:"txn"`
}

// Error is the generic failure reply.
type Error struct {
	Code int    `json:"code"`
	Text string `json:"text"`
}

// Kind implementations.

func (*Init) Kind() string        { return KindInit }
func (*InitOK) Kind() string      { return KindInitOK }
func (*Echo) Kind() string        { return KindEcho }
func (*EchoOK) Kind() string      { return KindEchoOK }
func (*Generate) Kind() string    { return KindGenerate }
func (*GenerateOK) Kind() string  { return KindGenerateOK }
func (*Topology) Kind() string    { return KindTopology }
func (*TopologyOK) Kind() string  { return KindTopologyOK }
func (*Broadcast) Kind() string   { return KindBroadcast }
func (*BroadcastOK) Kind() string { return KindBroadcastOK }
func (*Read) Kind() string        { return KindRead }
func (*ReadOK) Kind() string      { return KindReadOK }
func (*Write) Kind() string       { return KindWrite }
func (*WriteOK) Kind() string     { return KindWriteOK }
func (*CAS) Kind() string         { return KindCAS }
func (*CASOK) Kind() string       { return KindCASOK }
func (*Txn) Kind() string         { return KindTxn }
func (*TxnOK) Kind() string       { return KindTxnOK }
func (*Error) Kind() string       { return KindError }

// newPayload maps a wire tag to a zero value of its variant. The switch is
// the closed set of the union; extending the protocol means extending it
// here and in the node dispatcher.
func newPayload(kind string) (Payload, error) {
	switch kind {
	case KindInit:
		return &Init{}, nil
	case KindInitOK:
		return &InitOK{}, nil
	case KindEcho:
		return &Echo{}, nil
	case KindEchoOK:
		return &EchoOK{}, nil
	case KindGenerate:
		return &Generate{}, nil
	case KindGenerateOK:
		return &GenerateOK{}, nil
	case KindTopology:
		return &Topology{}, nil
	case KindTopologyOK:
		return &TopologyOK{}, nil
	case KindBroadcast:
		return &Broadcast{}, nil
	case KindBroadcastOK:
		return &BroadcastOK{}, nil
	case KindRead:
		return &Read{}, nil
	case KindReadOK:
		return &ReadOK{}, nil
	case KindWrite:
		return &Write{}, nil
	case KindWriteOK:
		return &WriteOK{}, nil
	case KindCAS:
		return &CAS{}, nil
	case KindCASOK:
		return &CASOK{}, nil
	case KindTxn:
		return &Txn{}, nil
	case KindTxnOK:
		return &TxnOK{}, nil
	case KindError:
		return &Error{}, nil
	default:
		return nil, fmt.Errorf("op=payload.new: %w: unknown type %q", domain.ErrMalformed, kind)
	}
}

// Package protocol implements the Maelstrom message envelope and its tagged
// payload union.
//
// One message is one JSON object per line: {"src","dest","body"}. The body
// carries optional msg_id / in_reply_to correlation fields plus a payload
// discriminated by the "type" tag, flattened into the same object.
// Protocol reference: https://github.com/jepsen-io/maelstrom/blob/main/doc/protocol.md
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/fairyhunter13/maelstrom-txn/internal/domain"
)

// Message is the envelope exchanged between nodes, clients, and services.
type Message struct {
	// Src is the sender id.
	Src string `json:"src"`
	// Dest is the receiver id.
	Dest string `json:"dest"`
	// Body is the correlation header plus the typed payload.
	Body Body `json:"body"`
}

// Body is the message body. MsgID is set when the sender expects a reply;
// InReplyTo is set on replies. Both are omitted from the wire when absent.
type Body struct {
	// MsgID is the sender-unique id of this message.
	MsgID *uint64
	// InReplyTo is the msg_id this message answers.
	InReplyTo *uint64
	// Payload is the tagged variant flattened into the body object.
	Payload Payload
}

// MarshalJSON flattens the payload fields next to type/msg_id/in_reply_to.
func (b Body) MarshalJSON() ([]byte, error) {
	if b.Payload == nil {
		return nil, fmt.Errorf("op=body.marshal: %w: nil payload", domain.ErrMalformed)
	}
	raw, err := json.Marshal(b.Payload)
	if err != nil {
		return nil, fmt.Errorf("op=body.marshal: %w", err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("op=body.marshal: %w", err)
	}
	fields["type"], _ = json.Marshal(b.Payload.Kind())
	if b.MsgID != nil {
		fields["msg_id"], _ = json.Marshal(*b.MsgID)
	}
	if b.InReplyTo != nil {
		fields["in_reply_to"], _ = json.Marshal(*b.InReplyTo)
	}
	return json.Marshal(fields)
}

// UnmarshalJSON reads the type tag and decodes the matching variant. An
// unknown tag is a malformed frame, not a fatal condition.
func (b *Body) UnmarshalJSON(data []byte) error {
	var head struct {
		Type      string  `json:"type"`
		MsgID     *uint64 `json:"msg_id"`
		InReplyTo *uint64 `json:"in_reply_to"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("op=body.unmarshal: %w: %v", domain.ErrMalformed, err)
	}
	if head.Type == "" {
		return fmt.Errorf("op=body.unmarshal: %w: missing type tag", domain.ErrMalformed)
	}
	payload, err := newPayload(head.Type)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return fmt.Errorf("op=body.unmarshal: %w: %s payload: %v", domain.ErrMalformed, head.Type, err)
	}
	b.MsgID = head.MsgID
	b.InReplyTo = head.InReplyTo
	b.Payload = payload
	return nil
}

// Reply assembles the envelope answering req with the given payload and
// fresh msg_id, swapping src and dest.
func Reply(req Message, msgID uint64, payload Payload) Message {
	return Message{
		Src:  req.Dest,
		Dest: req.Src,
		Body: Body{MsgID: &msgID, InReplyTo: req.Body.MsgID, Payload: payload},
	}
}

// Package stdio frames newline-delimited JSON messages over a reader and a
// writer, normally the process's stdin and stdout.
package stdio

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/fairyhunter13/maelstrom-txn/internal/observability"
	"github.com/fairyhunter13/maelstrom-txn/internal/protocol"
)

// Transport reads and writes one envelope per line. Reads block; writes are
// flushed per line. Diagnostics go to the logger, never to the writer.
type Transport struct {
	r   *bufio.Reader
	w   io.Writer
	log *slog.Logger
}

// New builds a Transport over the given reader and writer.
func New(r io.Reader, w io.Writer, log *slog.Logger) *Transport {
	return &Transport{r: bufio.NewReader(r), w: w, log: log}
}

// Recv returns the next decodable message. Empty lines are ignored and
// undecodable lines are logged and skipped, so the only errors are io.EOF
// and genuine read failures.
func (t *Transport) Recv() (protocol.Message, error) {
	for {
		line, err := t.r.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			if err == io.EOF {
				return protocol.Message{}, io.EOF
			}
			return protocol.Message{}, fmt.Errorf("op=stdio.Recv: %w", err)
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err == io.EOF {
				return protocol.Message{}, io.EOF
			}
			continue
		}
		var msg protocol.Message
		uerr := json.Unmarshal(line, &msg)
		if uerr == nil && msg.Body.Payload == nil {
			uerr = fmt.Errorf("op=stdio.Recv: missing body")
		}
		if uerr != nil {
			t.log.Warn("skipping malformed frame",
				slog.String("line", string(line)),
				slog.Any("error", uerr))
			observability.MalformedFramesTotal.Inc()
			if err == io.EOF {
				return protocol.Message{}, io.EOF
			}
			continue
		}
		observability.MessagesReceivedTotal.WithLabelValues(msg.Body.Payload.Kind()).Inc()
		return msg, nil
	}
}

// Send emits one message as a single line write.
func (t *Transport) Send(msg protocol.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("op=stdio.Send: %w", err)
	}
	raw = append(raw, '\n')
	if _, err := t.w.Write(raw); err != nil {
		return fmt.Errorf("op=stdio.Send: %w", err)
	}
	observability.MessagesSentTotal.WithLabelValues(msg.Body.Payload.Kind()).Inc()
	return nil
}

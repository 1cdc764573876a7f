package gateway

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/oopzlab/oopzbot/pkg/events"
)

// The platform speaks a framed JSON envelope. Each frame carries an opcode,
// a frame id, and an op-specific payload. The payload schema is versioned by
// the platform; unknown fields are ignored.
const (
	opHello   = "hello"
	opAuth    = "auth"
	opAuthOK  = "auth_ok"
	opAuthErr = "auth_err"
	opEvent   = "event"
	opPing    = "ping"
	opPong    = "pong"
	opAction  = "action"
	opAck     = "ack"
)

type frame struct {
	Op   string          `json:"op"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type helloData struct {
	Nonce string `json:"nonce"`
}

type authData struct {
	Person    string `json:"person"`
	DeviceID  string `json:"deviceId"`
	Token     string `json:"token"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature,omitempty"`
}

type authErrData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type eventData struct {
	Kind     string            `json:"kind"`
	Channel  string            `json:"channel"`
	Author   string            `json:"author"`
	Content  string            `json:"content,omitempty"`
	SentAt   int64             `json:"sentAt"` // milliseconds
	Metadata map[string]string `json:"metadata,omitempty"`
}

type actionData struct {
	Type      string `json:"type"`
	Channel   string `json:"channel"`
	Target    string `json:"target,omitempty"`
	Content   string `json:"content,omitempty"`
	Seconds   int64  `json:"seconds,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

var errMissingEventID = errors.New("event frame without id")

// decodeEvent converts an event frame into an InboundEvent. Decode is atomic:
// either the whole frame parses or the event is rejected.
func decodeEvent(f frame) (events.InboundEvent, error) {
	if f.ID == "" {
		return events.InboundEvent{}, errMissingEventID
	}
	var d eventData
	if err := json.Unmarshal(f.Data, &d); err != nil {
		return events.InboundEvent{}, err
	}
	kind := events.Kind(d.Kind)
	switch kind {
	case events.KindChatMessage, events.KindPresence, events.KindSystem, events.KindAck:
	default:
		kind = events.KindSystem
	}
	return events.InboundEvent{
		ID:        f.ID,
		Kind:      kind,
		ChannelID: d.Channel,
		AuthorID:  d.Author,
		Content:   d.Content,
		SentAt:    time.UnixMilli(d.SentAt),
		Metadata:  d.Metadata,
	}, nil
}

// Package jupyter implements component 4.E: the Jupyter v5.3 wire codec.
// It encodes/decodes messages, generates msg_ids, and correlates replies to
// their originating request via parent_header.
package jupyter

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const protocolVersion = "5.3"

// Header is the per-message Jupyter header.
type Header struct {
	MsgID    string `json:"msg_id"`
	MsgType  string `json:"msg_type"`
	Session  string `json:"session"`
	Username string `json:"username"`
	Date     string `json:"date"`
	Version  string `json:"version"`
}

// Message is one Jupyter v5.3 wire message.
type Message struct {
	Header       Header         `json:"header"`
	ParentHeader map[string]any `json:"parent_header"`
	Metadata     map[string]any `json:"metadata"`
	Content      map[string]any `json:"content"`
	Buffers      []any          `json:"buffers"`
	Channel      string         `json:"channel,omitempty"`
}

// ParentMsgID returns the msg_id this message is a reply to, or "" if this
// message has no parent (e.g. a freshly constructed request).
func (m Message) ParentMsgID() string {
	if m.ParentHeader == nil {
		return ""
	}
	id, _ := m.ParentHeader["msg_id"].(string)
	return id
}

func newHeader(session, msgType string) Header {
	return Header{
		MsgID:    uuid.NewString(),
		MsgType:  msgType,
		Session:  session,
		Username: "colab-cli",
		Date:     time.Now().UTC().Format(time.RFC3339Nano),
		Version:  protocolVersion,
	}
}

// NewExecuteRequest builds an execute_request message with a fresh msg_id.
func NewExecuteRequest(session, code string, silent bool) Message {
	return Message{
		Header:       newHeader(session, "execute_request"),
		ParentHeader: map[string]any{},
		Metadata:     map[string]any{},
		Content: map[string]any{
			"code":             code,
			"silent":           silent,
			"store_history":    !silent,
			"user_expressions": map[string]any{},
			"allow_stdin":      false,
			"stop_on_error":    true,
		},
		Buffers: []any{},
		Channel: "shell",
	}
}

// NewInterruptRequest builds an interrupt_request message.
func NewInterruptRequest(session string) Message {
	return Message{
		Header:       newHeader(session, "interrupt_request"),
		ParentHeader: map[string]any{},
		Metadata:     map[string]any{},
		Content:      map[string]any{},
		Buffers:      []any{},
		Channel:      "control",
	}
}

// Encode serializes msg as wire JSON.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode parses wire JSON into a Message.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

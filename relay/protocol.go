package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	MessageRegister   MessageType = "REGISTER"
	MessageDeliver    MessageType = "DELIVER"
	MessageError      MessageType = "ERROR"
	MessageUnregister MessageType = "UNREGISTER"
)

func (t MessageType) valid() bool {
	switch t {
	case MessageRegister, MessageDeliver, MessageError, MessageUnregister:
		return true
	}
	return false
}

// Message is one wire record. Optional fields are omitted when absent;
// an empty string is the wire representation of "not present".
type Message struct {
	Type  MessageType    `json:"type"`
	State string         `json:"state,omitempty"`
	Code  string         `json:"code,omitempty"`
	Raw   map[string]any `json:"raw,omitempty"`
	Error string         `json:"error,omitempty"`
}

// EncodeMessage serializes a message as one newline-terminated JSON
// record.
func EncodeMessage(msg Message) ([]byte, error) {
	if !msg.Type.valid() {
		return nil, protocolError(nil, fmt.Sprintf("relay: unknown message type %q", string(msg.Type)))
	}
	encoded, err := json.Marshal(msg)
	if err != nil {
		return nil, protocolError(err, "relay: message encoding failed")
	}
	return append(encoded, '\n'), nil
}

// DecodeMessage parses one wire record. Unknown type tags, unknown
// fields, and unparsable bodies all fail with a protocol error.
func DecodeMessage(line []byte) (Message, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return Message{}, protocolError(nil, "relay: empty message")
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.DisallowUnknownFields()
	var msg Message
	if err := decoder.Decode(&msg); err != nil {
		return Message{}, protocolError(err, "relay: message decoding failed")
	}
	if !msg.Type.valid() {
		return Message{}, protocolError(nil, fmt.Sprintf("relay: unknown message type %q", string(msg.Type)))
	}
	return msg, nil
}

// Result is what a waiter receives: an extracted code on success, or
// the full callback payload when extraction failed.
type Result struct {
	Code string
	Raw  map[string]any
}

func (r Result) Success() bool {
	return r.Code != ""
}

package protocol

// JSON envelope codec.
//
// Outbound: {"root": {"__class": <name>, ...fields}} serialized compactly.
// Inbound: the console sends either the same root envelope or a bare object
// carrying "__class"; both are accepted.

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const classKey = "__class"

// Version is the protocol generation negotiated through the websocket
// subprotocol. It is fixed for the lifetime of a session.
type Version int

const (
	V1 Version = 1 // legacy carousel navigation
	V2 Version = 2 // direct input codes
)

var wsSubprotocols = map[Version]string{
	V1: "v1.phonescoring.jd.ubisoft.com",
	V2: "v2.phonescoring.jd.ubisoft.com",
}

func (v Version) Subprotocol() string { return wsSubprotocols[v] }

func (v Version) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	}
	return fmt.Sprintf("Version(%d)", int(v))
}

// Payload holds the fields of an outbound message besides its class.
type Payload map[string]any

// Encode wraps class and payload in the root envelope.
func Encode(class string, payload Payload) ([]byte, error) {
	if class == "" {
		return nil, errors.New("protocol: empty message class")
	}
	root := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		root[k] = v
	}
	root[classKey] = class

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]any{"root": root}); err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", class, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Message is one decoded inbound frame.
type Message struct {
	Class string
	// Body is the object holding __class and the message fields.
	Body json.RawMessage
}

// Decode parses an inbound frame.
func Decode(frame []byte) (Message, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(frame, &top); err != nil {
		return Message{}, fmt.Errorf("protocol: decode frame: %w", err)
	}
	body := json.RawMessage(frame)
	if root, ok := top["root"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(root, &inner); err != nil {
			return Message{}, fmt.Errorf("protocol: decode root: %w", err)
		}
		top, body = inner, root
	}
	var class string
	if raw, ok := top[classKey]; ok {
		if err := json.Unmarshal(raw, &class); err != nil {
			return Message{}, fmt.Errorf("protocol: decode %s: %w", classKey, err)
		}
	}
	if class == "" {
		return Message{}, errors.New("protocol: frame has no message class")
	}
	return Message{Class: class, Body: body}, nil
}

// Into unmarshals the message body into v.
func (m Message) Into(v any) error {
	if err := json.Unmarshal(m.Body, v); err != nil {
		return fmt.Errorf("protocol: decode %s: %w", m.Class, err)
	}
	return nil
}

// Flag is an integer-ish toggle the console sends as 0/1 or, on some
// screens, as a JSON boolean.
type Flag int

func (f *Flag) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "true":
		*f = 1
		return nil
	case "false", "null":
		*f = 0
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = Flag(n)
	return nil
}

// present reports whether a raw JSON value would count as set: not missing,
// null, false, zero, or an empty string/array/object.
func present(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	switch string(v) {
	case "", "null", "false", "0", `""`, "[]", "{}":
		return false
	}
	if v[0] == '{' || v[0] == '[' {
		var x any
		if err := json.Unmarshal(v, &x); err != nil {
			return false
		}
		switch t := x.(type) {
		case map[string]any:
			return len(t) > 0
		case []any:
			return len(t) > 0
		}
	}
	return true
}

// Package envelope implements the wire-level wrapper for client-originated
// messages. An envelope is the application payload with two routing keys
// merged alongside: "type" distinguishes a directed send from a broadcast,
// and "topic" names the routing destination for a send.
//
// The canonical protocol uses the verb pair {"send", "broadcast"}, and
// "topic" is null exactly when "type" is "broadcast".
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope type verbs.
const (
	TypeSend      = "send"
	TypeBroadcast = "broadcast"
)

const (
	typeKey  = "type"
	topicKey = "topic"
)

var (
	// ErrDeserialization is returned when a broker payload is not valid JSON.
	ErrDeserialization = errors.New("envelope payload is not valid JSON")
	// ErrProtocol is returned when an envelope is missing a required
	// routing key or carries an unknown type verb.
	ErrProtocol = errors.New("malformed envelope")
)

// TagClientMessage wraps a client payload with routing metadata and returns
// the result as a new map; the caller's payload is never mutated. An empty
// topic tags the payload as a broadcast with a null topic, anything else as
// a directed send.
func TagClientMessage(payload map[string]any, topic string) map[string]any {
	tagged := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		tagged[k] = v
	}
	if topic == "" {
		tagged[typeKey] = TypeBroadcast
		tagged[topicKey] = nil
		return tagged
	}
	tagged[typeKey] = TypeSend
	tagged[topicKey] = topic
	return tagged
}

// UntagBrokerMessage parses a raw broker payload and strips the routing
// metadata, returning the type verb, the topic (empty for broadcasts) and
// the remaining application fields. A JSON parse failure wraps
// ErrDeserialization; a missing routing key or unknown verb wraps
// ErrProtocol.
func UntagBrokerMessage(raw []byte) (string, string, map[string]any, error) {
	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", "", nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	return UntagMessage(msg)
}

// UntagMessage strips the routing metadata from an already-decoded envelope.
// The two routing keys are removed from msg in place; the returned map is
// msg itself.
func UntagMessage(msg map[string]any) (string, string, map[string]any, error) {
	rawType, ok := msg[typeKey]
	if !ok {
		return "", "", nil, fmt.Errorf("%w: missing %q key", ErrProtocol, typeKey)
	}
	rawTopic, ok := msg[topicKey]
	if !ok {
		return "", "", nil, fmt.Errorf("%w: missing %q key", ErrProtocol, topicKey)
	}

	typ, ok := rawType.(string)
	if !ok || (typ != TypeSend && typ != TypeBroadcast) {
		return "", "", nil, fmt.Errorf("%w: unknown type %v", ErrProtocol, rawType)
	}

	var topic string
	switch v := rawTopic.(type) {
	case nil:
		topic = ""
	case string:
		topic = v
	default:
		return "", "", nil, fmt.Errorf("%w: topic must be a string or null, got %T", ErrProtocol, rawTopic)
	}

	delete(msg, typeKey)
	delete(msg, topicKey)
	return typ, topic, msg, nil
}

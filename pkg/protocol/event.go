// Package protocol defines the wire events exchanged with the chat relay.
//
// Every frame is a JSON envelope sent as a websocket text message. Fixed
// event names cover the join handshake, message sending and the generic
// delivery event; messages pushed for a specific conversation arrive under
// the pair's derived channel name (see pkg/channel) instead of a fixed one.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Fixed event names. Pair-channel events are named by the channel digest
// and therefore have no constant here.
const (
	// EventJoin announces the (self, peer) pair to the relay. The relay
	// acknowledges with an EventAck frame carrying the same ack id.
	EventJoin = "join"

	// EventSend carries an outbound message to the relay.
	EventSend = "sendMessage"

	// EventAck acknowledges a frame that requested one.
	EventAck = "ack"

	// EventMessage is the generic delivery event, addressed to the
	// receiving user rather than a conversation.
	EventMessage = "message"
)

// Frame is the envelope for every event on the wire.
type Frame struct {
	Event string          `json:"event"`
	Ack   uint64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Join is the payload of an EventJoin frame.
type Join struct {
	Username string `json:"username"`
	Target   string `json:"target"`
}

// Outgoing is the payload of an EventSend frame.
type Outgoing struct {
	Target  string `json:"target"`
	User    string `json:"user"`
	Message string `json:"message"`
}

// Incoming is the payload of a delivery frame, whether it arrives on the
// pair channel or on EventMessage.
type Incoming struct {
	User    string `json:"user"`
	Message string `json:"message"`
}

// Encode encodes the frame into bytes for a single websocket text message.
func (f *Frame) Encode() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

// Decode decodes a single websocket text message into the frame.
func (f *Frame) Decode(data []byte) error {
	if err := json.Unmarshal(data, f); err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	if f.Event == "" {
		return fmt.Errorf("failed to decode frame: missing event name")
	}
	return nil
}

// JoinPayload decodes the frame's data as a Join payload.
func (f *Frame) JoinPayload() (Join, error) {
	var p Join
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return Join{}, fmt.Errorf("failed to decode join payload: %w", err)
	}
	return p, nil
}

// OutgoingPayload decodes the frame's data as an Outgoing payload.
func (f *Frame) OutgoingPayload() (Outgoing, error) {
	var p Outgoing
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return Outgoing{}, fmt.Errorf("failed to decode send payload: %w", err)
	}
	return p, nil
}

// IncomingPayload decodes the frame's data as an Incoming payload.
func (f *Frame) IncomingPayload() (Incoming, error) {
	var p Incoming
	if err := json.Unmarshal(f.Data, &p); err != nil {
		return Incoming{}, fmt.Errorf("failed to decode delivery payload: %w", err)
	}
	return p, nil
}

// NewJoin builds an EventJoin frame requesting acknowledgment under ack.
func NewJoin(username, target string, ack uint64) (*Frame, error) {
	return withPayload(EventJoin, ack, Join{Username: username, Target: target})
}

// NewSend builds an EventSend frame.
func NewSend(target, user, message string) (*Frame, error) {
	return withPayload(EventSend, 0, Outgoing{Target: target, User: user, Message: message})
}

// NewAck builds the acknowledgment for a frame that carried ack.
func NewAck(ack uint64) *Frame {
	return &Frame{Event: EventAck, Ack: ack}
}

// NewDelivery builds a delivery frame under the given event name, either a
// pair-channel digest or EventMessage.
func NewDelivery(event, user, message string) (*Frame, error) {
	return withPayload(event, 0, Incoming{User: user, Message: message})
}

func withPayload(event string, ack uint64, payload any) (*Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	return &Frame{Event: event, Ack: ack, Data: data}, nil
}

// Package configprotocol implements the remote mirror RPC (C10): a
// bidirectional frame protocol carrying component-path-addressed
// request/reply commands plus server-to-client event and packet
// notifications, a fiber + gofiber/websocket transport, and a client that
// delivers notifications on channels for a caller-built mirror, grounded on
// original_source/shared/libraries/config_protocol (config_server_component.h,
// test_config_protocol_access_control.cpp) and the teacher's
// fiber-based Pipe transport (whitaker-io-machine/pipe.go).
package configprotocol

import (
	"encoding/json"

	"github.com/daqkit/daqrun/internal/daqerr"
)

// FrameType is one of the ten message kinds the wire protocol carries
// (§6.2).
type FrameType string

const (
	FrameHello        FrameType = "Hello"
	FrameHelloAck     FrameType = "HelloAck"
	FrameReject       FrameType = "Reject"
	FrameRequest      FrameType = "Request"
	FrameReply        FrameType = "Reply"
	FrameNotifyEvent  FrameType = "Notify-Event"
	FrameNotifyPacket FrameType = "Notify-Packet"
	FrameSubscribe    FrameType = "Subscribe"
	FrameUnsubscribe  FrameType = "Unsubscribe"
	FrameClose        FrameType = "Close"
)

// ConnectionType gates write access at the access-control boundary (§4.10
// "refused ... in a view-only connection class"), grounded on the original's
// ClientType::Control/ViewOnly.
type ConnectionType string

const (
	ConnectionControl  ConnectionType = "Control"
	ConnectionViewOnly ConnectionType = "ViewOnly"
)

// ProtocolVersion is the highest version this build speaks. No optional
// field is gated on it yet: EndUpdate takes no props list at any version.
const ProtocolVersion uint16 = 1

// Frame is the outer envelope every message travels in: a tag plus a
// type-specific JSON payload. Framing itself (length-prefixing) is the
// transport's job (websocket already frames messages; server.go writes one
// Frame per websocket message).
type Frame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewFrame marshals payload into a Frame of the given type.
func NewFrame(t FrameType, payload interface{}) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, daqerr.Wrap(daqerr.ParseFailed, err, "encoding frame payload")
	}
	return Frame{Type: t, Payload: raw}, nil
}

// Decode unmarshals f's payload into out.
func (f Frame) Decode(out interface{}) error {
	if err := json.Unmarshal(f.Payload, out); err != nil {
		return daqerr.Wrap(daqerr.ParseFailed, err, "decoding "+string(f.Type)+" payload")
	}
	return nil
}

// HelloPayload is the client's connection-setup handshake (§4.10 "client
// sends hello with supported versions").
type HelloPayload struct {
	SupportedVersions  []uint16               `json:"supportedVersions"`
	Username           string                 `json:"username,omitempty"`
	Password           string                 `json:"password,omitempty"`
	Anonymous          bool                   `json:"anonymous,omitempty"`
	ConnectionType     ConnectionType         `json:"connectionType"`
	ClientCapabilities map[string]interface{} `json:"clientCapabilities,omitempty"`
}

// HelloAckPayload accepts the connection, selecting a protocol version and
// handing the client a full serialisation of the exposed root (§4.10 "client
// pulls a full serialisation of the device tree").
type HelloAckPayload struct {
	ProtocolVersion uint16                 `json:"protocolVersion"`
	Root            map[string]interface{} `json:"root"`
}

// RejectPayload carries a human-readable reason the client's connect fails
// with (§4.10).
type RejectPayload struct {
	Reason string `json:"reason"`
}

// RequestPayload addresses a command at a component path (§6.2).
type RequestPayload struct {
	Seq           int64                  `json:"seq"`
	ComponentPath string                 `json:"componentPath"`
	Command       string                 `json:"command"`
	Params        map[string]interface{} `json:"params,omitempty"`
}

// ReplyPayload carries exactly one of Result or Error for the Seq it answers.
type ReplyPayload struct {
	Seq    int64       `json:"seq"`
	Result interface{} `json:"result,omitempty"`
	Error  *WireError  `json:"error,omitempty"`
}

// WireError is a typed error rendered for transport; Code is a daqerr.Kind
// string so the client can recover it with daqerr.New(daqerr.Kind(code), msg).
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorFrom(err error) *WireError {
	if err == nil {
		return nil
	}
	return &WireError{Code: string(daqerr.KindOf(err)), Message: err.Error()}
}

// NotifyEventPayload mirrors a coreevent.Event across the wire (§4.10
// "every event ... is serialised to the client").
type NotifyEventPayload struct {
	ComponentID string                 `json:"componentId"`
	EventID     int                    `json:"eventId"`
	Name        string                 `json:"name"`
	Params      map[string]interface{} `json:"params,omitempty"`
}

// NotifyPacketPayload carries one packet for a signal the client has
// subscribed to (§4.10 "Packets produced by signals the client has
// subscribed to").
type NotifyPacketPayload struct {
	SignalID string                 `json:"signalId"`
	Packet   map[string]interface{} `json:"packet"`
}

// SubscribePayload/UnsubscribePayload name the signal a client wants
// streamed (or stop streaming) notifications for.
type SubscribePayload struct {
	SignalID string `json:"signalId"`
}

type UnsubscribePayload = SubscribePayload

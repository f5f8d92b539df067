// Package wire defines the bridge protocol packet model shared by the server
// and by host integrations that push packets to connected performers.
package wire

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion is the protocol version implemented by this server.
const ProtocolVersion = "1.0"

// VersionPrefix is the major-version literal a client's handshake version
// must start with to be accepted.
const VersionPrefix = "1."

// Op identifies a packet's semantic type and routing target.
type Op string

// The closed set of operation codes. The router dispatches on these
// exhaustively; anything else is ignored as unknown.
const (
	OpHandshake    Op = "handshake"
	OpHandshakeAck Op = "handshake.ack"
	OpPing         Op = "ping"
	OpPong         Op = "pong"

	OpInputMessage  Op = "input.message"
	OpInputTouch    Op = "input.touch"
	OpInputShortcut Op = "input.shortcut"

	OpResourcePrepare  Op = "resource.prepare"
	OpResourceCommit   Op = "resource.commit"
	OpResourceGet      Op = "resource.get"
	OpResourceRelease  Op = "resource.release"
	OpResourceProgress Op = "resource.progress"

	OpStateReady   Op = "state.ready"
	OpStatePlaying Op = "state.playing"
	OpStateConfig  Op = "state.config"

	OpPerformShow      Op = "perform.show"
	OpPerformInterrupt Op = "perform.interrupt"

	OpError Op = "error"
)

// ErrorCode classifies protocol-level failures carried in error packets.
type ErrorCode string

const (
	CodeVersionMismatch  ErrorCode = "VERSION_MISMATCH"
	CodeAuthFailed       ErrorCode = "AUTH_FAILED"
	CodeUnsupportedType  ErrorCode = "UNSUPPORTED_TYPE"
	CodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"
)

// Packet is one discrete protocol message exchanged over the control channel.
//
// A response packet answering a request carries the request's ID; packets the
// server initiates on its own carry a freshly generated ID. Packets are
// immutable once constructed.
type Packet struct {
	// Op is the operation code.
	Op Op `json:"op"`
	// ID is the correlation identifier.
	ID string `json:"id"`
	// TS is the construction time in milliseconds since epoch.
	TS int64 `json:"ts"`
	// Payload is the operation-specific body. Inbound packets decode it as an
	// open map; use DecodePayload to project it onto a typed struct.
	Payload any `json:"payload"`
}

// New constructs a server-initiated packet with a fresh correlation id.
func New(op Op, payload any) Packet {
	return Packet{
		Op:      op,
		ID:      uuid.NewString(),
		TS:      time.Now().UnixMilli(),
		Payload: payload,
	}
}

// Respond constructs a response packet carrying the originating request id.
func Respond(requestID string, op Op, payload any) Packet {
	return Packet{
		Op:      op,
		ID:      requestID,
		TS:      time.Now().UnixMilli(),
		Payload: payload,
	}
}

// NewError constructs an error packet for the given request.
func NewError(code ErrorCode, message, requestID string) Packet {
	return Respond(requestID, OpError, ErrorPayload{
		Code:      code,
		Message:   message,
		RequestID: requestID,
	})
}

// ErrorPayload is the body of an error packet.
type ErrorPayload struct {
	// Code is the protocol error classification.
	Code ErrorCode `json:"code"`
	// Message is a human-readable description.
	Message string `json:"message"`
	// RequestID echoes the id of the packet that failed.
	RequestID string `json:"request_id"`
}

// DecodePayload projects a packet payload onto a typed struct by marshalling
// it through JSON. It accepts whatever shape the transport decoded (typically
// map[string]any).
func DecodePayload(payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

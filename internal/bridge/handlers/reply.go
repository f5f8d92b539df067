package handlers

import "github.com/stagelink/server/pkg/wire"

// respond builds a reply packet carrying the request id. The injected clock,
// when present, pins the timestamp so tests can assert on it.
func (d Deps) respond(requestID string, op wire.Op, payload any) *wire.Packet {
	p := wire.Respond(requestID, op, payload)
	if d.now != nil {
		p.TS = d.now().UnixMilli()
	}
	return &p
}

// fail builds an error packet echoing the request id.
func (d Deps) fail(code wire.ErrorCode, message, requestID string) *wire.Packet {
	p := wire.NewError(code, message, requestID)
	if d.now != nil {
		p.TS = d.now().UnixMilli()
	}
	return &p
}

// push builds a server-initiated packet with a fresh correlation id, taken
// from the injected id source when present.
func (d Deps) push(op wire.Op, payload any) *wire.Packet {
	p := wire.New(op, payload)
	if d.newID != nil {
		p.ID = d.newID()
	}
	if d.now != nil {
		p.TS = d.now().UnixMilli()
	}
	return &p
}

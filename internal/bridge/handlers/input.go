package handlers

import (
	"context"
	"strings"

	"github.com/stagelink/server/pkg/wire"
)

// Input packets are fire-and-forget: they are handed to the host callback
// when one is registered, and the host answers out-of-band with perform
// pushes. Without a callback the server replies by itself with canned
// demonstration content so a bare server stays interactive. Callback failures
// are logged and never terminate the connection.

// InputMessage handles a typed viewer message.
func InputMessage(ctx context.Context, deps Deps, sess *Session, pkt wire.Packet) (*wire.Packet, error) {
	if deps.forwardInput(ctx, sess, pkt) {
		return nil, nil
	}
	var req wire.MessagePayload
	if err := wire.DecodePayload(pkt.Payload, &req); err != nil || strings.TrimSpace(req.Text) == "" {
		return nil, nil
	}
	text := truncateRunes(req.Text, deps.MaxMessageLength())
	return deps.push(wire.OpPerformShow, wire.ShowPayload{
		Elements: []any{wire.TextElement(text, 0)},
		Mode:     wire.ShowModeReplace,
	}), nil
}

// InputTouch handles a model touch event.
func InputTouch(ctx context.Context, deps Deps, sess *Session, pkt wire.Packet) (*wire.Packet, error) {
	if deps.forwardInput(ctx, sess, pkt) {
		return nil, nil
	}
	var req wire.TouchPayload
	if err := wire.DecodePayload(pkt.Payload, &req); err != nil {
		return nil, nil
	}
	group := "tap"
	if req.Area != "" {
		group = "tap_" + req.Area
	}
	return deps.push(wire.OpPerformShow, wire.ShowPayload{
		Elements: []any{wire.MotionElement(group, 0, 2)},
		Mode:     wire.ShowModeAppend,
	}), nil
}

// InputShortcut handles a client-side shortcut trigger.
func InputShortcut(ctx context.Context, deps Deps, sess *Session, pkt wire.Packet) (*wire.Packet, error) {
	if deps.forwardInput(ctx, sess, pkt) {
		return nil, nil
	}
	var req wire.ShortcutPayload
	if err := wire.DecodePayload(pkt.Payload, &req); err != nil || req.Name == "" {
		return nil, nil
	}
	return deps.push(wire.OpPerformShow, wire.ShowPayload{
		Elements: []any{wire.ExpressionElement(req.Name, 0)},
		Mode:     wire.ShowModeAppend,
	}), nil
}

// forwardInput hands the packet to the host callback when one is registered
// and reports whether it did.
func (d Deps) forwardInput(ctx context.Context, sess *Session, pkt wire.Packet) bool {
	if d.onMessage == nil {
		return false
	}
	if err := d.onMessage(ctx, sess.ConnID, pkt); err != nil {
		d.log.Warn().
			Err(err).
			Str("op", string(pkt.Op)).
			Str("conn_id", sess.ConnID).
			Msg("input callback failed")
	}
	return true
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

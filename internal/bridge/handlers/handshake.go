package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/stagelink/server/pkg/wire"
)

// Handshake validates the client's protocol version and token, marks the
// session authenticated and answers with the server's capability set. The
// version gate runs before the token gate, so an incompatible client learns
// about the mismatch even when its token is wrong. A repeated handshake on an
// established session acks again with the same identifiers.
func Handshake(ctx context.Context, deps Deps, sess *Session, pkt wire.Packet) (*wire.Packet, error) {
	var req wire.HandshakeRequest
	if err := wire.DecodePayload(pkt.Payload, &req); err != nil {
		return deps.fail(wire.CodeVersionMismatch, "malformed handshake payload", pkt.ID), nil
	}

	if !strings.HasPrefix(req.Version, wire.VersionPrefix) {
		return deps.fail(wire.CodeVersionMismatch,
			fmt.Sprintf("unsupported protocol version %q, server speaks %s", req.Version, wire.ProtocolVersion),
			pkt.ID), nil
	}
	if deps.Token() != "" && req.Token != deps.Token() {
		return deps.fail(wire.CodeAuthFailed, "invalid auth token", pkt.ID), nil
	}

	sess.SessionID = sessionIDPrefix + sess.ConnID
	sess.UserID = userIDPrefix + sess.ConnID
	sess.Authenticated = true

	log := deps.Log()
	log.Info().
		Str("conn_id", sess.ConnID).
		Str("session_id", sess.SessionID).
		Interface("client", req.Client).
		Msg("handshake accepted")

	return deps.respond(pkt.ID, wire.OpHandshakeAck, wire.HandshakeAckPayload{
		SessionID: sess.SessionID,
		UserID:    sess.UserID,
		Config:    deps.capabilities(),
	}), nil
}

// capabilities assembles the limits advertised in the handshake ack. Resource
// related limits are zero-valued when no broker is configured.
func (d Deps) capabilities() wire.CapabilityConfig {
	cfg := wire.CapabilityConfig{
		MaxMessageLength:      d.maxMessageLength,
		SupportedImageFormats: wire.SupportedImageFormats,
		SupportedAudioFormats: wire.SupportedAudioFormats,
	}
	if d.broker != nil {
		cfg.MaxInlineBytes = d.broker.MaxInlineBytes()
		cfg.ResourceBaseURL = d.broker.ResourceBase()
	}
	return cfg
}

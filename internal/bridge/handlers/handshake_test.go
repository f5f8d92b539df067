package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stagelink/server/pkg/wire"
)

func TestHandshake_VersionMismatch(t *testing.T) {
	deps := testDeps(nil, "secret", nil)
	sess := NewSession("c1")

	reply, err := Handshake(context.Background(), deps, sess, wire.Packet{
		Op: wire.OpHandshake, ID: "req1",
		Payload: map[string]any{"version": "2.0", "token": "secret"},
	})
	require.NoError(t, err)
	require.NotNil(t, reply)
	require.Equal(t, wire.OpError, reply.Op)
	require.Equal(t, "req1", reply.ID)

	ep, ok := reply.Payload.(wire.ErrorPayload)
	require.True(t, ok)
	require.Equal(t, wire.CodeVersionMismatch, ep.Code)
	require.Equal(t, "req1", ep.RequestID)
	require.False(t, sess.Authenticated)
}

func TestHandshake_VersionGateRunsBeforeTokenGate(t *testing.T) {
	deps := testDeps(nil, "secret", nil)
	sess := NewSession("c1")

	reply, err := Handshake(context.Background(), deps, sess, wire.Packet{
		Op: wire.OpHandshake, ID: "req1",
		Payload: map[string]any{"version": "0.9", "token": "wrong"},
	})
	require.NoError(t, err)

	ep := reply.Payload.(wire.ErrorPayload)
	require.Equal(t, wire.CodeVersionMismatch, ep.Code)
}

func TestHandshake_BadToken(t *testing.T) {
	deps := testDeps(nil, "secret", nil)
	sess := NewSession("c1")

	reply, err := Handshake(context.Background(), deps, sess, wire.Packet{
		Op: wire.OpHandshake, ID: "req1",
		Payload: map[string]any{"version": "1.0", "token": "wrong"},
	})
	require.NoError(t, err)
	require.Equal(t, wire.OpError, reply.Op)

	ep := reply.Payload.(wire.ErrorPayload)
	require.Equal(t, wire.CodeAuthFailed, ep.Code)
	require.False(t, sess.Authenticated)
}

func TestHandshake_Success(t *testing.T) {
	broker := fakeBroker{maxInline: 1024, base: "http://127.0.0.1:9091/resources"}
	deps := testDeps(broker, "secret", nil)
	sess := NewSession("c1")

	reply, err := Handshake(context.Background(), deps, sess, wire.Packet{
		Op: wire.OpHandshake, ID: "req1",
		Payload: map[string]any{"version": "1.0", "token": "secret", "client": map[string]any{"name": "web"}},
	})
	require.NoError(t, err)
	require.Equal(t, wire.OpHandshakeAck, reply.Op)
	require.Equal(t, "req1", reply.ID)
	require.Equal(t, int64(1700000000000), reply.TS)

	ack, ok := reply.Payload.(wire.HandshakeAckPayload)
	require.True(t, ok)
	require.Equal(t, "stage_session_c1", ack.SessionID)
	require.Equal(t, "stage_user_c1", ack.UserID)
	require.Equal(t, 5000, ack.Config.MaxMessageLength)
	require.Equal(t, int64(1024), ack.Config.MaxInlineBytes)
	require.Equal(t, "http://127.0.0.1:9091/resources", ack.Config.ResourceBaseURL)
	require.Equal(t, wire.SupportedImageFormats, ack.Config.SupportedImageFormats)
	require.Equal(t, wire.SupportedAudioFormats, ack.Config.SupportedAudioFormats)

	require.True(t, sess.Authenticated)
	require.Equal(t, "stage_session_c1", sess.SessionID)
	require.Equal(t, "stage_user_c1", sess.UserID)
}

func TestHandshake_RepeatKeepsIdentifiers(t *testing.T) {
	deps := testDeps(nil, "", nil)
	sess := NewSession("c1")
	pkt := wire.Packet{Op: wire.OpHandshake, ID: "req1", Payload: map[string]any{"version": "1.0"}}

	first, err := Handshake(context.Background(), deps, sess, pkt)
	require.NoError(t, err)
	second, err := Handshake(context.Background(), deps, sess, pkt)
	require.NoError(t, err)

	a := first.Payload.(wire.HandshakeAckPayload)
	b := second.Payload.(wire.HandshakeAckPayload)
	require.Equal(t, a.SessionID, b.SessionID)
	require.Equal(t, a.UserID, b.UserID)
}

func TestHandshake_NoTokenConfiguredAcceptsAny(t *testing.T) {
	deps := testDeps(nil, "", nil)
	sess := NewSession("c1")

	reply, err := Handshake(context.Background(), deps, sess, wire.Packet{
		Op: wire.OpHandshake, ID: "req1",
		Payload: map[string]any{"version": "1.2", "token": "whatever"},
	})
	require.NoError(t, err)
	require.Equal(t, wire.OpHandshakeAck, reply.Op)
	require.True(t, sess.Authenticated)
}

package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketWireShape(t *testing.T) {
	pkt := Respond("req-1", OpPong, nil)

	raw, err := json.Marshal(pkt)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))

	require.Equal(t, "pong", m["op"])
	require.Equal(t, "req-1", m["id"])
	require.Contains(t, m, "ts")
	require.Contains(t, m, "payload")
}

func TestNewGeneratesDistinctIDs(t *testing.T) {
	a := New(OpPerformShow, nil)
	b := New(OpPerformShow, nil)

	require.NotEmpty(t, a.ID)
	require.NotEqual(t, a.ID, b.ID)
	require.NotZero(t, a.TS)
}

func TestNewErrorEchoesRequestID(t *testing.T) {
	pkt := NewError(CodeResourceNotFound, "no such resource", "req-42")

	require.Equal(t, OpError, pkt.Op)
	require.Equal(t, "req-42", pkt.ID)

	raw, err := json.Marshal(pkt.Payload)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	require.Equal(t, "RESOURCE_NOT_FOUND", m["code"])
	require.Equal(t, "no such resource", m["message"])
	require.Equal(t, "req-42", m["request_id"])
}

func TestDecodePayload(t *testing.T) {
	payload := map[string]any{
		"version": "1.0",
		"token":   "secret",
		"client":  map[string]any{"name": "desktop"},
	}

	var req HandshakeRequest
	require.NoError(t, DecodePayload(payload, &req))
	require.Equal(t, "1.0", req.Version)
	require.Equal(t, "secret", req.Token)
	require.Equal(t, "desktop", req.Client["name"])
}

func TestElementConstructors(t *testing.T) {
	tests := []struct {
		name string
		el   map[string]any
		want map[string]any
	}{
		{
			name: "text without duration",
			el:   TextElement("hello", 0),
			want: map[string]any{"type": "text", "text": "hello"},
		},
		{
			name: "text with duration",
			el:   TextElement("hello", 1500),
			want: map[string]any{"type": "text", "text": "hello", "duration_ms": int64(1500)},
		},
		{
			name: "expression",
			el:   ExpressionElement("smile", 0),
			want: map[string]any{"type": "expression", "name": "smile"},
		},
		{
			name: "motion",
			el:   MotionElement("idle", 2, 1),
			want: map[string]any{"type": "motion", "group": "idle", "index": 2, "priority": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.el)
		})
	}
}

func TestNewShowWrapsElements(t *testing.T) {
	pkt := NewShow(ShowModeReplace, TextElement("hi", 0))

	require.Equal(t, OpPerformShow, pkt.Op)
	payload, ok := pkt.Payload.(ShowPayload)
	require.True(t, ok)
	require.Equal(t, ShowModeReplace, payload.Mode)
	require.Len(t, payload.Elements, 1)
}

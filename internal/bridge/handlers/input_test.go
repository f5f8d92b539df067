package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stagelink/server/pkg/wire"
)

func TestInputMessage_ForwardsToCallback(t *testing.T) {
	var gotConn string
	var gotPkt wire.Packet
	cb := func(ctx context.Context, connID string, pkt wire.Packet) error {
		gotConn = connID
		gotPkt = pkt
		return nil
	}
	deps := testDeps(nil, "", cb)
	sess := NewSession("c1")
	pkt := wire.Packet{Op: wire.OpInputMessage, ID: "req1", Payload: map[string]any{"text": "hi"}}

	reply, err := InputMessage(context.Background(), deps, sess, pkt)
	require.NoError(t, err)
	require.Nil(t, reply)
	require.Equal(t, "c1", gotConn)
	require.Equal(t, pkt, gotPkt)
}

func TestInputMessage_CallbackFailureIsNotFatal(t *testing.T) {
	cb := func(ctx context.Context, connID string, pkt wire.Packet) error {
		return errors.New("host down")
	}
	deps := testDeps(nil, "", cb)
	sess := NewSession("c1")

	reply, err := InputMessage(context.Background(), deps, sess, wire.Packet{
		Op: wire.OpInputMessage, ID: "req1", Payload: map[string]any{"text": "hi"},
	})
	require.NoError(t, err)
	require.Nil(t, reply)
}

func TestInputMessage_FallbackEchoes(t *testing.T) {
	deps := testDeps(nil, "", nil)
	sess := NewSession("c1")

	reply, err := InputMessage(context.Background(), deps, sess, wire.Packet{
		Op: wire.OpInputMessage, ID: "req1", Payload: map[string]any{"text": "hello there"},
	})
	require.NoError(t, err)
	require.NotNil(t, reply)
	require.Equal(t, wire.OpPerformShow, reply.Op)
	require.Equal(t, "pkt1", reply.ID)

	show, ok := reply.Payload.(wire.ShowPayload)
	require.True(t, ok)
	require.Equal(t, wire.ShowModeReplace, show.Mode)
	require.Len(t, show.Elements, 1)

	el := show.Elements[0].(map[string]any)
	require.Equal(t, "text", el["type"])
	require.Equal(t, "hello there", el["text"])
}

func TestInputMessage_FallbackTruncatesLongText(t *testing.T) {
	deps := NewDeps(nil, "", 5, nil, nil, nil, zerolog.Nop())
	sess := NewSession("c1")

	reply, err := InputMessage(context.Background(), deps, sess, wire.Packet{
		Op: wire.OpInputMessage, ID: "req1", Payload: map[string]any{"text": "0123456789"},
	})
	require.NoError(t, err)
	require.NotNil(t, reply)

	el := reply.Payload.(wire.ShowPayload).Elements[0].(map[string]any)
	require.Equal(t, "01234", el["text"])
}

func TestInputMessage_BlankTextIgnored(t *testing.T) {
	deps := testDeps(nil, "", nil)
	sess := NewSession("c1")

	reply, err := InputMessage(context.Background(), deps, sess, wire.Packet{
		Op: wire.OpInputMessage, ID: "req1", Payload: map[string]any{"text": "   "},
	})
	require.NoError(t, err)
	require.Nil(t, reply)
}

func TestInputTouch_FallbackPlaysAreaMotion(t *testing.T) {
	deps := testDeps(nil, "", nil)
	sess := NewSession("c1")

	reply, err := InputTouch(context.Background(), deps, sess, wire.Packet{
		Op: wire.OpInputTouch, ID: "req1", Payload: map[string]any{"area": "head", "x": 0.4, "y": 0.1},
	})
	require.NoError(t, err)
	require.NotNil(t, reply)
	require.Equal(t, wire.OpPerformShow, reply.Op)

	show := reply.Payload.(wire.ShowPayload)
	require.Equal(t, wire.ShowModeAppend, show.Mode)

	el := show.Elements[0].(map[string]any)
	require.Equal(t, "motion", el["type"])
	require.Equal(t, "tap_head", el["group"])
}

func TestInputTouch_FallbackDefaultsGroupWithoutArea(t *testing.T) {
	deps := testDeps(nil, "", nil)
	sess := NewSession("c1")

	reply, err := InputTouch(context.Background(), deps, sess, wire.Packet{
		Op: wire.OpInputTouch, ID: "req1", Payload: map[string]any{"x": 0.5, "y": 0.5},
	})
	require.NoError(t, err)
	require.NotNil(t, reply)

	el := reply.Payload.(wire.ShowPayload).Elements[0].(map[string]any)
	require.Equal(t, "tap", el["group"])
}

func TestInputShortcut_FallbackShowsExpression(t *testing.T) {
	deps := testDeps(nil, "", nil)
	sess := NewSession("c1")

	reply, err := InputShortcut(context.Background(), deps, sess, wire.Packet{
		Op: wire.OpInputShortcut, ID: "req1", Payload: map[string]any{"name": "wink"},
	})
	require.NoError(t, err)
	require.NotNil(t, reply)

	el := reply.Payload.(wire.ShowPayload).Elements[0].(map[string]any)
	require.Equal(t, "expression", el["type"])
	require.Equal(t, "wink", el["name"])
}

func TestInputShortcut_MissingNameIgnored(t *testing.T) {
	deps := testDeps(nil, "", nil)
	sess := NewSession("c1")

	reply, err := InputShortcut(context.Background(), deps, sess, wire.Packet{
		Op: wire.OpInputShortcut, ID: "req1", Payload: map[string]any{},
	})
	require.NoError(t, err)
	require.Nil(t, reply)
}

func TestInputTouch_ForwardedWhenCallbackSet(t *testing.T) {
	calls := 0
	cb := func(ctx context.Context, connID string, pkt wire.Packet) error {
		calls++
		return nil
	}
	deps := testDeps(nil, "", cb)
	sess := NewSession("c1")

	reply, err := InputTouch(context.Background(), deps, sess, wire.Packet{
		Op: wire.OpInputTouch, ID: "req1", Payload: map[string]any{"area": "head"},
	})
	require.NoError(t, err)
	require.Nil(t, reply)
	require.Equal(t, 1, calls)
}

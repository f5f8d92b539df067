package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stagelink/server/pkg/wire"
)

func TestStateReady_MergesKeys(t *testing.T) {
	deps := testDeps(nil, "", nil)
	sess := NewSession("c1")

	reply, err := StateReady(context.Background(), deps, sess, wire.Packet{
		Op: wire.OpStateReady, ID: "r1", Payload: map[string]any{"model": "haru"},
	})
	require.NoError(t, err)
	require.Nil(t, reply)

	_, err = StateReady(context.Background(), deps, sess, wire.Packet{
		Op: wire.OpStateReady, ID: "r2", Payload: map[string]any{"version": float64(2)},
	})
	require.NoError(t, err)

	require.Equal(t, "haru", sess.Ready["model"])
	require.Equal(t, float64(2), sess.Ready["version"])
}

func TestStatePlaying_LastWriteWinsPerKey(t *testing.T) {
	deps := testDeps(nil, "", nil)
	sess := NewSession("c1")

	_, err := StatePlaying(context.Background(), deps, sess, wire.Packet{
		Op: wire.OpStatePlaying, Payload: map[string]any{"track": "a", "paused": false},
	})
	require.NoError(t, err)
	_, err = StatePlaying(context.Background(), deps, sess, wire.Packet{
		Op: wire.OpStatePlaying, Payload: map[string]any{"track": "b"},
	})
	require.NoError(t, err)

	require.Equal(t, "b", sess.Playing["track"])
	require.Equal(t, false, sess.Playing["paused"])
}

func TestStateConfig_IgnoresNonObjectPayload(t *testing.T) {
	deps := testDeps(nil, "", nil)
	sess := NewSession("c1")

	reply, err := StateConfig(context.Background(), deps, sess, wire.Packet{
		Op: wire.OpStateConfig, Payload: "not an object",
	})
	require.NoError(t, err)
	require.Nil(t, reply)
	require.Nil(t, sess.Config)
}

func TestSessionClone_DetachesStateMaps(t *testing.T) {
	sess := NewSession("c1")
	sess.Ready = map[string]any{"model": "haru"}

	clone := sess.Clone()
	clone.Ready["model"] = "mutated"

	require.Equal(t, "haru", sess.Ready["model"])
}

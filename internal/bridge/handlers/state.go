package handlers

import (
	"context"
	"maps"

	"github.com/stagelink/server/pkg/wire"
)

// State sync packets carry client-reported snapshots: model readiness,
// playback status and renderer configuration. Each op shallow-merges its
// payload into the session record under the matching key. Fire-and-forget,
// no replies.

// StateReady merges a model-ready report.
func StateReady(ctx context.Context, deps Deps, sess *Session, pkt wire.Packet) (*wire.Packet, error) {
	sess.Ready = mergeState(sess.Ready, pkt.Payload)
	return nil, nil
}

// StatePlaying merges a playback-status report.
func StatePlaying(ctx context.Context, deps Deps, sess *Session, pkt wire.Packet) (*wire.Packet, error) {
	sess.Playing = mergeState(sess.Playing, pkt.Payload)
	return nil, nil
}

// StateConfig merges a renderer-configuration report.
func StateConfig(ctx context.Context, deps Deps, sess *Session, pkt wire.Packet) (*wire.Packet, error) {
	sess.Config = mergeState(sess.Config, pkt.Payload)
	return nil, nil
}

// mergeState overlays the payload's keys onto the current map. Payloads that
// are not JSON objects are ignored.
func mergeState(cur map[string]any, payload any) map[string]any {
	patch, ok := payload.(map[string]any)
	if !ok {
		var m map[string]any
		if err := wire.DecodePayload(payload, &m); err != nil || m == nil {
			return cur
		}
		patch = m
	}
	if cur == nil {
		cur = make(map[string]any, len(patch))
	}
	maps.Copy(cur, patch)
	return cur
}

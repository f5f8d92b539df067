package handlers

import (
	"context"

	"github.com/stagelink/server/pkg/wire"
)

// Ping answers with a pong carrying the request id, giving clients an
// application-level liveness check independent of transport keepalives.
func Ping(ctx context.Context, deps Deps, sess *Session, pkt wire.Packet) (*wire.Packet, error) {
	return deps.respond(pkt.ID, wire.OpPong, map[string]any{}), nil
}

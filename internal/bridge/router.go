// Package bridge hosts the websocket control channel: the packet router, the
// per-connection session table and the transport feeding them.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stagelink/server/internal/bridge/handlers"
	"github.com/stagelink/server/internal/store"
	"github.com/stagelink/server/pkg/wire"
)

// handlerFunc is the uniform shape of per-operation packet handlers.
type handlerFunc func(context.Context, handlers.Deps, *handlers.Session, wire.Packet) (*wire.Packet, error)

// Router owns the connection-identity → session table and dispatches inbound
// packets to their handlers. A connection's packets arrive sequentially from
// its transport task; the table itself is safe for concurrent use across
// connections.
type Router struct {
	deps handlers.Deps
	log  zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*handlers.Session
}

// NewRouter creates a router with an empty session table.
func NewRouter(deps handlers.Deps, log zerolog.Logger) *Router {
	return &Router{
		deps:     deps,
		log:      log,
		sessions: make(map[string]*handlers.Session),
	}
}

// Connect registers a fresh session record for a connection identity.
func (r *Router) Connect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[connID] = handlers.NewSession(connID)
}

// Disconnect drops the session record.
func (r *Router) Disconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, connID)
}

// Session returns a copy of the session record for a connection.
func (r *Router) Session(connID string) (handlers.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	if !ok {
		return handlers.Session{}, false
	}
	return s.Clone(), true
}

// SessionCount reports the number of tracked sessions.
func (r *Router) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Dispatch routes one inbound packet and returns the synchronous reply, if
// any. A handler failure never terminates the caller: it is logged and, for
// request/response operations, converted to an error packet.
func (r *Router) Dispatch(ctx context.Context, connID string, pkt wire.Packet) (reply *wire.Packet) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().
				Interface("panic", rec).
				Str("op", string(pkt.Op)).
				Str("conn_id", connID).
				Msg("handler panicked")
			reply = r.convert(pkt, fmt.Errorf("handler panic: %v", rec))
		}
	}()

	switch pkt.Op {
	case wire.OpHandshake:
		return r.mutate(ctx, connID, pkt, handlers.Handshake)
	case wire.OpStateReady:
		return r.mutate(ctx, connID, pkt, handlers.StateReady)
	case wire.OpStatePlaying:
		return r.mutate(ctx, connID, pkt, handlers.StatePlaying)
	case wire.OpStateConfig:
		return r.mutate(ctx, connID, pkt, handlers.StateConfig)

	case wire.OpPing:
		return r.inspect(ctx, connID, pkt, handlers.Ping)
	case wire.OpInputMessage:
		return r.inspect(ctx, connID, pkt, handlers.InputMessage)
	case wire.OpInputTouch:
		return r.inspect(ctx, connID, pkt, handlers.InputTouch)
	case wire.OpInputShortcut:
		return r.inspect(ctx, connID, pkt, handlers.InputShortcut)
	case wire.OpResourcePrepare:
		return r.inspect(ctx, connID, pkt, handlers.ResourcePrepare)
	case wire.OpResourceCommit:
		return r.inspect(ctx, connID, pkt, handlers.ResourceCommit)
	case wire.OpResourceGet:
		return r.inspect(ctx, connID, pkt, handlers.ResourceGet)
	case wire.OpResourceRelease:
		return r.inspect(ctx, connID, pkt, handlers.ResourceRelease)
	case wire.OpResourceProgress:
		return r.inspect(ctx, connID, pkt, handlers.ResourceProgress)

	case wire.OpHandshakeAck, wire.OpPong, wire.OpPerformShow, wire.OpPerformInterrupt, wire.OpError:
		r.log.Warn().
			Str("op", string(pkt.Op)).
			Str("conn_id", connID).
			Msg("server-to-client op received from client, ignored")
		return nil

	default:
		r.log.Warn().
			Str("op", string(pkt.Op)).
			Str("conn_id", connID).
			Msg("unknown op ignored")
		return nil
	}
}

// mutate runs a handler that writes to the session record, holding the write
// lock for the duration. Mutating handlers do no I/O, so the critical section
// stays short.
func (r *Router) mutate(ctx context.Context, connID string, pkt wire.Packet, fn handlerFunc) *wire.Packet {
	reply, err := func() (*wire.Packet, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		sess, ok := r.sessions[connID]
		if !ok {
			sess = handlers.NewSession(connID)
			r.sessions[connID] = sess
		}
		return fn(ctx, r.deps, sess, pkt)
	}()
	if err != nil {
		return r.convert(pkt, err)
	}
	return reply
}

// inspect runs a non-mutating handler against a session snapshot, so broker
// and filesystem work never happens under the table lock.
func (r *Router) inspect(ctx context.Context, connID string, pkt wire.Packet, fn handlerFunc) *wire.Packet {
	snap := func() handlers.Session {
		r.mu.RLock()
		defer r.mu.RUnlock()
		if sess, ok := r.sessions[connID]; ok {
			return sess.Clone()
		}
		return handlers.Session{ConnID: connID}
	}()

	reply, err := fn(ctx, r.deps, &snap, pkt)
	if err != nil {
		return r.convert(pkt, err)
	}
	return reply
}

// convert maps a handler failure onto the wire: fire-and-forget operations
// get a log line only, request/response operations get an error packet.
func (r *Router) convert(pkt wire.Packet, err error) *wire.Packet {
	r.log.Error().
		Err(err).
		Str("op", string(pkt.Op)).
		Str("packet_id", pkt.ID).
		Msg("handler failed")

	if !expectsReply(pkt.Op) {
		return nil
	}
	msg := fmt.Sprintf("cannot serve %s", pkt.Op)
	if errors.Is(err, store.ErrCapacity) {
		msg = "storage capacity exhausted"
	}
	p := wire.NewError(wire.CodeUnsupportedType, msg, pkt.ID)
	return &p
}

// expectsReply reports whether an operation is request/response rather than
// fire-and-forget.
func expectsReply(op wire.Op) bool {
	switch op {
	case wire.OpHandshake, wire.OpPing,
		wire.OpResourcePrepare, wire.OpResourceCommit,
		wire.OpResourceGet, wire.OpResourceRelease:
		return true
	}
	return false
}

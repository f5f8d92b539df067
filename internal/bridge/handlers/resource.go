package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/stagelink/server/pkg/wire"
)

// ResourcePrepare reserves storage for an upcoming upload and answers with
// the allocated rid plus the upload target. Storage failures (capacity,
// filesystem) surface as errors for the router to convert.
func ResourcePrepare(ctx context.Context, deps Deps, sess *Session, pkt wire.Packet) (*wire.Packet, error) {
	br := deps.Broker()
	if br == nil {
		return deps.unsupported(pkt), nil
	}
	var req wire.PrepareRequest
	if err := wire.DecodePayload(pkt.Payload, &req); err != nil {
		return deps.fail(wire.CodeUnsupportedType, "malformed resource.prepare payload", pkt.ID), nil
	}

	e, err := br.Prepare(req.Kind, req.Mime, req.Size, req.SHA256)
	if err != nil {
		return nil, err
	}

	desc, _ := br.Payload(e.RID)
	return deps.respond(pkt.ID, wire.OpResourcePrepare, wire.PrepareAck{
		RID: e.RID,
		Upload: wire.UploadDescriptor{
			Method:  http.MethodPut,
			URL:     br.UploadURL(e.RID),
			Headers: br.UploadHeaders(),
		},
		Resource: desc,
	}), nil
}

// ResourceCommit marks a prepared resource ready and answers with its
// fetchable descriptor.
func ResourceCommit(ctx context.Context, deps Deps, sess *Session, pkt wire.Packet) (*wire.Packet, error) {
	br := deps.Broker()
	if br == nil {
		return deps.unsupported(pkt), nil
	}
	var req wire.CommitRequest
	if err := wire.DecodePayload(pkt.Payload, &req); err != nil || req.RID == "" {
		return deps.fail(wire.CodeResourceNotFound, "commit without rid", pkt.ID), nil
	}

	if _, ok := br.Commit(req.RID, req.Size); !ok {
		return deps.fail(wire.CodeResourceNotFound, fmt.Sprintf("unknown resource %q", req.RID), pkt.ID), nil
	}

	desc, _ := br.Payload(req.RID)
	return deps.respond(pkt.ID, wire.OpResourceCommit, wire.ResourceAck{Resource: desc}), nil
}

// ResourceGet answers with the descriptor for a rid.
func ResourceGet(ctx context.Context, deps Deps, sess *Session, pkt wire.Packet) (*wire.Packet, error) {
	br := deps.Broker()
	if br == nil {
		return deps.unsupported(pkt), nil
	}
	var req wire.ResourceRequest
	if err := wire.DecodePayload(pkt.Payload, &req); err != nil || req.RID == "" {
		return deps.fail(wire.CodeResourceNotFound, "get without rid", pkt.ID), nil
	}

	desc, ok := br.Payload(req.RID)
	if !ok {
		return deps.fail(wire.CodeResourceNotFound, fmt.Sprintf("unknown resource %q", req.RID), pkt.ID), nil
	}
	return deps.respond(pkt.ID, wire.OpResourceGet, wire.ResourceAck{Resource: desc}), nil
}

// ResourceRelease deletes a resource. The reply reports the outcome instead
// of erroring, so releasing an already-gone rid is a no-op for the client.
func ResourceRelease(ctx context.Context, deps Deps, sess *Session, pkt wire.Packet) (*wire.Packet, error) {
	br := deps.Broker()
	if br == nil {
		return deps.unsupported(pkt), nil
	}
	var req wire.ResourceRequest
	_ = wire.DecodePayload(pkt.Payload, &req)

	released := br.Release(req.RID)
	log := deps.Log()
	log.Info().
		Str("rid", req.RID).
		Bool("released", released).
		Msg("resource release")
	return deps.respond(pkt.ID, wire.OpResourceRelease, wire.ReleaseAck{RID: req.RID, Released: released}), nil
}

// ResourceProgress records an advisory transfer-progress report. Never
// replied to, broker or not.
func ResourceProgress(ctx context.Context, deps Deps, sess *Session, pkt wire.Packet) (*wire.Packet, error) {
	var req wire.ProgressPayload
	_ = wire.DecodePayload(pkt.Payload, &req)

	log := deps.Log()
	log.Debug().
		Str("rid", req.RID).
		Int64("loaded", req.Loaded).
		Int64("total", req.Total).
		Msg("transfer progress")
	return nil, nil
}

// unsupported answers a resource operation attempted against a server with
// no broker configured.
func (d Deps) unsupported(pkt wire.Packet) *wire.Packet {
	return d.fail(wire.CodeUnsupportedType,
		fmt.Sprintf("resource operations unavailable, cannot serve %s", pkt.Op), pkt.ID)
}

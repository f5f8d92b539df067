// Package handlers implements the per-operation packet handlers invoked by
// the bridge router. Handlers are pure functions over an explicit dependency
// bundle so they can be exercised without a transport.
package handlers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/stagelink/server/internal/store"
	"github.com/stagelink/server/pkg/wire"
)

// ResourceBroker is the subset of broker operations used by packet handlers.
type ResourceBroker interface {
	Prepare(kind, mimeType string, sizeHint int64, sha256Hint string) (store.Entry, error)
	Commit(rid string, size *int64) (store.Entry, bool)
	Payload(rid string) (*wire.ResourceDescriptor, bool)
	Release(rid string) bool
	UploadURL(rid string) string
	UploadHeaders() map[string]string
	MaxInlineBytes() int64
	ResourceBase() string
}

// MessageCallback receives input-class packets verbatim for the host
// integration. Any eventual response is sent back out-of-band by the host.
type MessageCallback func(ctx context.Context, connID string, pkt wire.Packet) error

// Deps holds the narrow dependencies required by packet handlers.
type Deps struct {
	broker           ResourceBroker
	token            string
	maxMessageLength int
	onMessage        MessageCallback
	now              func() time.Time
	newID            func() string
	log              zerolog.Logger
}

// NewDeps builds a dependency bundle for handler calls. A nil broker means
// resource operations are unsupported; a nil onMessage enables the built-in
// fallback replies for input packets.
func NewDeps(
	broker ResourceBroker,
	token string,
	maxMessageLength int,
	onMessage MessageCallback,
	now func() time.Time,
	newID func() string,
	log zerolog.Logger,
) Deps {
	return Deps{
		broker:           broker,
		token:            token,
		maxMessageLength: maxMessageLength,
		onMessage:        onMessage,
		now:              now,
		newID:            newID,
		log:              log,
	}
}

func (d Deps) Broker() ResourceBroker     { return d.broker }
func (d Deps) Token() string              { return d.token }
func (d Deps) MaxMessageLength() int      { return d.maxMessageLength }
func (d Deps) OnMessage() MessageCallback { return d.onMessage }
func (d Deps) Log() zerolog.Logger        { return d.log }

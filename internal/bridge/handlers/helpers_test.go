package handlers

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/stagelink/server/internal/store"
	"github.com/stagelink/server/pkg/wire"
)

type fakeBroker struct {
	prepare       func(kind, mimeType string, sizeHint int64, sha256Hint string) (store.Entry, error)
	commit        func(rid string, size *int64) (store.Entry, bool)
	payload       func(rid string) (*wire.ResourceDescriptor, bool)
	release       func(rid string) bool
	uploadURL     func(rid string) string
	uploadHeaders func() map[string]string
	maxInline     int64
	base          string
}

func (f fakeBroker) Prepare(kind, mimeType string, sizeHint int64, sha256Hint string) (store.Entry, error) {
	return f.prepare(kind, mimeType, sizeHint, sha256Hint)
}

func (f fakeBroker) Commit(rid string, size *int64) (store.Entry, bool) {
	return f.commit(rid, size)
}

func (f fakeBroker) Payload(rid string) (*wire.ResourceDescriptor, bool) {
	return f.payload(rid)
}

func (f fakeBroker) Release(rid string) bool {
	return f.release(rid)
}

func (f fakeBroker) UploadURL(rid string) string {
	if f.uploadURL == nil {
		return "http://127.0.0.1:9091/resources/" + rid
	}
	return f.uploadURL(rid)
}

func (f fakeBroker) UploadHeaders() map[string]string {
	if f.uploadHeaders == nil {
		return nil
	}
	return f.uploadHeaders()
}

func (f fakeBroker) MaxInlineBytes() int64 { return f.maxInline }

func (f fakeBroker) ResourceBase() string { return f.base }

// testDeps pins the clock and id source so replies are deterministic.
func testDeps(broker ResourceBroker, token string, cb MessageCallback) Deps {
	return NewDeps(broker, token, 5000, cb,
		func() time.Time { return time.UnixMilli(1700000000000) },
		func() string { return "pkt1" },
		zerolog.Nop())
}

// Package broker owns the resource identifier space and the resource
// lifecycle: prepare → upload → commit → serve → release. It decides whether
// media rides inline inside packets or is persisted and served by URL.
package broker

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	stdmime "mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stagelink/server/internal/store"
	"github.com/stagelink/server/pkg/wire"
)

// Config configures the inline threshold and reference URL building.
type Config struct {
	// MaxInlineBytes is the size at or below which media is embedded inline.
	MaxInlineBytes int64
	// BaseURL is the externally visible resource endpoint base
	// (scheme://host:port, no trailing slash).
	BaseURL string
	// ResourcePath is the URL path prefix resources are served under.
	ResourcePath string
	// Token gates the resource endpoint. Appended as a query parameter to
	// reference URLs for clients that cannot send an Authorization header.
	Token string
}

// Broker is the only component that allocates resource identifiers and
// mutates store entries outside the direct file writes performed by the
// access endpoint.
type Broker struct {
	store *store.Store
	cfg   Config
	log   zerolog.Logger

	// nowFn and newIDFn are swappable in tests.
	nowFn   func() time.Time
	newIDFn func() string
}

// New creates a broker on top of the store.
func New(st *store.Store, cfg Config, log zerolog.Logger) *Broker {
	return &Broker{
		store: st,
		cfg:   cfg,
		log:   log,
	}
}

func (b *Broker) now() time.Time {
	if b.nowFn != nil {
		return b.nowFn()
	}
	return time.Now()
}

func (b *Broker) newID() string {
	if b.newIDFn != nil {
		return b.newIDFn()
	}
	return uuid.NewString()
}

// MaxInlineBytes returns the inline threshold, advertised at handshake.
func (b *Broker) MaxInlineBytes() int64 {
	return b.cfg.MaxInlineBytes
}

// Prepare reserves storage for an upcoming upload: evicts to make room for
// the size hint, allocates a fresh rid and its storage filename, and records
// a pending entry. No bytes are written yet.
//
// The client's digest hint is advisory only. The entry's digest is recorded
// when this server hashes the uploaded bytes itself.
func (b *Broker) Prepare(kind, mimeType string, sizeHint int64, sha256Hint string) (store.Entry, error) {
	kind, mimeType = normalizeKindMime(kind, mimeType)
	if sizeHint < 0 {
		sizeHint = 0
	}

	if _, err := b.store.Evict(sizeHint, 1); err != nil {
		return store.Entry{}, fmt.Errorf("prepare %s (%d bytes): %w", kind, sizeHint, err)
	}

	rid := b.newID()
	e := store.Entry{
		RID:       rid,
		Kind:      kind,
		Mime:      mimeType,
		Size:      sizeHint,
		Path:      b.store.BlobPath(rid + extensionFor(mimeType)),
		Status:    store.StatusPending,
		CreatedAt: b.now().UnixMilli(),
	}
	b.store.Insert(e)

	if sha256Hint != "" {
		b.log.Debug().Str("rid", rid).Str("sha256Hint", sha256Hint).Msg("prepare carried a digest hint")
	}
	return e, nil
}

// Commit marks a pending entry ready, optionally overwriting its recorded
// size with the byte count observed at upload time. Returns false when rid
// is unknown.
func (b *Broker) Commit(rid string, size *int64) (store.Entry, bool) {
	return b.store.MarkReady(rid, size, "")
}

// RegisterBytes turns raw media into a reference. At or below the inline
// threshold the bytes are embedded as a data URL and nothing is persisted;
// above it they are written to the store and referenced by URL.
func (b *Broker) RegisterBytes(data []byte, kind, mimeType string) (wire.Reference, error) {
	kind, mimeType = normalizeKindMime(kind, mimeType)
	size := int64(len(data))

	if size <= b.cfg.MaxInlineBytes {
		sum := sha256.Sum256(data)
		return wire.Reference{
			Inline: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
			Mime:   mimeType,
			Size:   size,
			SHA256: hex.EncodeToString(sum[:]),
		}, nil
	}

	if _, err := b.store.Evict(size, 1); err != nil {
		return wire.Reference{}, fmt.Errorf("register %d bytes: %w", size, err)
	}

	rid := b.newID()
	path := b.store.BlobPath(rid + extensionFor(mimeType))
	written, digest, err := b.store.WriteBlob(path, bytes.NewReader(data))
	if err != nil {
		return wire.Reference{}, fmt.Errorf("register %d bytes: %w", size, err)
	}

	b.store.Insert(store.Entry{
		RID:       rid,
		Kind:      kind,
		Mime:      mimeType,
		Size:      written,
		SHA256:    digest,
		Path:      path,
		Status:    store.StatusReady,
		CreatedAt: b.now().UnixMilli(),
	})

	return wire.Reference{
		RID:    rid,
		URL:    b.ResourceURL(rid),
		Mime:   mimeType,
		Size:   written,
		SHA256: digest,
	}, nil
}

// RegisterPath registers a file already on disk. Small files are read whole
// and inlined; larger ones are streamed into the store in fixed-size chunks
// while the digest is computed incrementally, so the file is never held in
// memory.
func (b *Broker) RegisterPath(path, kind, mimeType string) (wire.Reference, error) {
	if mimeType == "" {
		mimeType = stdmime.TypeByExtension(filepath.Ext(path))
	}
	kind, mimeType = normalizeKindMime(kind, mimeType)

	info, err := os.Stat(path)
	if err != nil {
		return wire.Reference{}, fmt.Errorf("register %s: %w", path, err)
	}

	if info.Size() <= b.cfg.MaxInlineBytes {
		data, err := os.ReadFile(path)
		if err != nil {
			return wire.Reference{}, fmt.Errorf("register %s: %w", path, err)
		}
		return b.RegisterBytes(data, kind, mimeType)
	}

	if _, err := b.store.Evict(info.Size(), 1); err != nil {
		return wire.Reference{}, fmt.Errorf("register %s: %w", path, err)
	}

	src, err := os.Open(path)
	if err != nil {
		return wire.Reference{}, fmt.Errorf("register %s: %w", path, err)
	}
	defer src.Close()

	rid := b.newID()
	dst := b.store.BlobPath(rid + extensionFor(mimeType))
	written, digest, err := b.store.WriteBlob(dst, src)
	if err != nil {
		return wire.Reference{}, fmt.Errorf("register %s: %w", path, err)
	}

	b.store.Insert(store.Entry{
		RID:       rid,
		Kind:      kind,
		Mime:      mimeType,
		Size:      written,
		SHA256:    digest,
		Path:      dst,
		Status:    store.StatusReady,
		CreatedAt: b.now().UnixMilli(),
	})

	return wire.Reference{
		RID:    rid,
		URL:    b.ResourceURL(rid),
		Mime:   mimeType,
		Size:   written,
		SHA256: digest,
	}, nil
}

// Payload describes a resource for the wire. The URL appears only once the
// resource is ready; a pending entry has nothing to fetch yet.
func (b *Broker) Payload(rid string) (*wire.ResourceDescriptor, bool) {
	e, ok := b.store.Entry(rid)
	if !ok {
		return nil, false
	}
	d := &wire.ResourceDescriptor{
		RID:    e.RID,
		Kind:   e.Kind,
		Mime:   e.Mime,
		Size:   e.Size,
		SHA256: e.SHA256,
	}
	if e.Status == store.StatusReady {
		d.URL = b.ResourceURL(rid)
	}
	return d, true
}

// Release deletes the backing file and removes the entry. False when rid is
// unknown or the file cannot be deleted (the entry stays in that case).
func (b *Broker) Release(rid string) bool {
	return b.store.Release(rid)
}

// Entry exposes the raw store entry for rid.
func (b *Broker) Entry(rid string) (store.Entry, bool) {
	return b.store.Entry(rid)
}

// MarkUploaded records the outcome of a direct file write performed by the
// access endpoint: observed size, freshly computed digest, status ready.
func (b *Broker) MarkUploaded(rid string, size int64, sha256Hex string) (store.Entry, bool) {
	return b.store.MarkReady(rid, &size, sha256Hex)
}

// WriteBlob streams content into a blob location on behalf of the access
// endpoint, returning the observed size and digest.
func (b *Broker) WriteBlob(path string, r io.Reader) (int64, string, error) {
	return b.store.WriteBlob(path, r)
}

// ResourceBase returns the URL prefix resources are served under, advertised
// to clients at handshake.
func (b *Broker) ResourceBase() string {
	return strings.TrimRight(b.cfg.BaseURL, "/") + b.cfg.ResourcePath
}

// ResourceURL builds the fetch/upload URL for a rid, with the token appended
// as a query parameter when one is configured (URL-based auth fallback for
// clients that cannot set headers).
func (b *Broker) ResourceURL(rid string) string {
	u := b.ResourceBase() + "/" + rid
	if b.cfg.Token != "" {
		u += "?" + url.Values{"token": {b.cfg.Token}}.Encode()
	}
	return u
}

// UploadURL is where the bytes for a prepared resource must be PUT.
func (b *Broker) UploadURL(rid string) string {
	return b.ResourceURL(rid)
}

// UploadHeaders returns the headers a client must send when uploading.
func (b *Broker) UploadHeaders() map[string]string {
	if b.cfg.Token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + b.cfg.Token}
}

func normalizeKindMime(kind, mimeType string) (string, string) {
	if kind == "" {
		kind = wire.KindFile
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return kind, mimeType
}

// preferredExt pins extensions for the formats the performer client
// advertises support for, so storage filenames stay stable across platforms.
var preferredExt = map[string]string{
	"image/png":                ".png",
	"image/jpeg":               ".jpg",
	"image/gif":                ".gif",
	"image/webp":               ".webp",
	"audio/mpeg":               ".mp3",
	"audio/wav":                ".wav",
	"audio/x-wav":              ".wav",
	"audio/ogg":                ".ogg",
	"application/octet-stream": ".bin",
}

func extensionFor(mimeType string) string {
	if ext, ok := preferredExt[mimeType]; ok {
		return ext
	}
	if exts, err := stdmime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

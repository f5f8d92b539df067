package broker

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stagelink/server/internal/store"
	"github.com/stagelink/server/pkg/wire"
)

func newTestBroker(t *testing.T, maxInline int64, limits store.Limits) (*Broker, *store.Store) {
	t.Helper()
	st, err := store.New(store.Config{
		Dir:    t.TempDir(),
		Limits: limits,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	b := New(st, Config{
		MaxInlineBytes: maxInline,
		BaseURL:        "http://127.0.0.1:9091",
		ResourcePath:   "/resources",
		Token:          "tok",
	}, zerolog.Nop())
	return b, st
}

func digestOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestRegisterBytesInlineBoundary(t *testing.T) {
	b, st := newTestBroker(t, 100, store.Limits{})

	// Exactly at the threshold: inline, nothing persisted.
	atLimit := bytes.Repeat([]byte("a"), 100)
	ref, err := b.RegisterBytes(atLimit, wire.KindImage, "image/png")
	require.NoError(t, err)
	require.True(t, ref.IsInline())
	require.Empty(t, ref.RID)
	require.Equal(t, int64(100), ref.Size)
	require.Equal(t, digestOf(atLimit), ref.SHA256)
	require.True(t, strings.HasPrefix(ref.Inline, "data:image/png;base64,"))

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ref.Inline, "data:image/png;base64,"))
	require.NoError(t, err)
	require.Equal(t, atLimit, decoded)
	require.Equal(t, 0, st.Len(), "inline registration must not touch the store")

	// One byte over: stored and referenced by URL.
	overLimit := bytes.Repeat([]byte("a"), 101)
	ref, err = b.RegisterBytes(overLimit, wire.KindImage, "image/png")
	require.NoError(t, err)
	require.False(t, ref.IsInline())
	require.NotEmpty(t, ref.RID)
	require.Contains(t, ref.URL, ref.RID)
	require.Equal(t, digestOf(overLimit), ref.SHA256)

	e, ok := st.Entry(ref.RID)
	require.True(t, ok)
	require.Equal(t, store.StatusReady, e.Status)
	require.Equal(t, int64(101), e.Size)
	require.FileExists(t, e.Path)
}

func TestRegisterBytesDoesNotDeduplicate(t *testing.T) {
	b, st := newTestBroker(t, 10, store.Limits{})
	content := bytes.Repeat([]byte("z"), 50)

	first, err := b.RegisterBytes(content, wire.KindFile, "application/octet-stream")
	require.NoError(t, err)
	second, err := b.RegisterBytes(content, wire.KindFile, "application/octet-stream")
	require.NoError(t, err)

	require.Equal(t, first.SHA256, second.SHA256, "identical bytes hash identically")
	require.NotEqual(t, first.RID, second.RID, "every registration allocates a fresh identifier")
	require.Equal(t, 2, st.Len())
}

func TestPrepareRecordsPendingEntry(t *testing.T) {
	b, st := newTestBroker(t, 100, store.Limits{})

	e, err := b.Prepare(wire.KindImage, "image/png", 500, "client-claimed-digest")
	require.NoError(t, err)
	require.NotEmpty(t, e.RID)
	require.Equal(t, store.StatusPending, e.Status)
	require.Equal(t, int64(500), e.Size)
	require.Equal(t, st.BlobPath(e.RID+".png"), e.Path)
	require.Empty(t, e.SHA256, "a digest this server has not computed is never recorded")
	require.NoFileExists(t, e.Path, "prepare is a reservation, not a write")

	size := int64(742)
	committed, ok := b.Commit(e.RID, &size)
	require.True(t, ok)
	require.Equal(t, store.StatusReady, committed.Status)
	require.Equal(t, int64(742), committed.Size)

	_, ok = b.Commit("unknown-rid", nil)
	require.False(t, ok)
}

func TestPrepareEvictsForHeadroom(t *testing.T) {
	b, st := newTestBroker(t, 100, store.Limits{MaxTotalBytes: 1000000})

	// One old ready blob occupies most of the cap.
	path := st.BlobPath("old.bin")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), 700000), 0o644))
	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, stale, stale))
	st.Insert(store.Entry{
		RID: "old", Kind: wire.KindFile, Mime: "application/octet-stream",
		Size: 700000, Path: path, Status: store.StatusReady,
	})

	_, err := b.Prepare(wire.KindImage, "image/png", 500000, "")
	require.NoError(t, err)

	_, ok := st.Entry("old")
	require.False(t, ok, "the old blob must be evicted to make headroom")

	_, totalBytes, err := st.Usage()
	require.NoError(t, err)
	require.LessOrEqual(t, totalBytes, int64(500000))
}

func TestPrepareFailsWhenReservationCannotFit(t *testing.T) {
	b, _ := newTestBroker(t, 100, store.Limits{MaxTotalBytes: 1000})

	_, err := b.Prepare(wire.KindFile, "application/octet-stream", 2000, "")
	require.ErrorIs(t, err, store.ErrCapacity)
}

func TestPayloadLifecycle(t *testing.T) {
	b, st := newTestBroker(t, 100, store.Limits{})

	e, err := b.Prepare(wire.KindAudio, "audio/mpeg", 0, "")
	require.NoError(t, err)

	d, ok := b.Payload(e.RID)
	require.True(t, ok)
	require.Empty(t, d.URL, "pending entries expose no URL")
	require.Equal(t, wire.KindAudio, d.Kind)

	_, _, err = st.WriteBlob(e.Path, bytes.NewReader([]byte("mp3 bytes")))
	require.NoError(t, err)
	_, ok = b.Commit(e.RID, nil)
	require.True(t, ok)

	d, ok = b.Payload(e.RID)
	require.True(t, ok)
	require.Contains(t, d.URL, e.RID)

	_, ok = b.Payload("unknown")
	require.False(t, ok)
}

func TestReleaseLifecycle(t *testing.T) {
	b, _ := newTestBroker(t, 10, store.Limits{})

	ref, err := b.RegisterBytes(bytes.Repeat([]byte("r"), 50), wire.KindFile, "application/octet-stream")
	require.NoError(t, err)

	require.True(t, b.Release(ref.RID))
	_, ok := b.Payload(ref.RID)
	require.False(t, ok)
	require.False(t, b.Release(ref.RID), "second release reports false")
}

func TestRegisterPath(t *testing.T) {
	b, st := newTestBroker(t, 100, store.Limits{})
	srcDir := t.TempDir()

	small := filepath.Join(srcDir, "small.png")
	require.NoError(t, os.WriteFile(small, []byte("tiny image"), 0o644))

	ref, err := b.RegisterPath(small, wire.KindImage, "")
	require.NoError(t, err)
	require.True(t, ref.IsInline())
	require.Equal(t, "image/png", ref.Mime, "mime is guessed from the extension")

	content := bytes.Repeat([]byte("b"), 500)
	large := filepath.Join(srcDir, "large.png")
	require.NoError(t, os.WriteFile(large, content, 0o644))

	ref, err = b.RegisterPath(large, wire.KindImage, "")
	require.NoError(t, err)
	require.False(t, ref.IsInline())
	require.Equal(t, digestOf(content), ref.SHA256)

	e, ok := st.Entry(ref.RID)
	require.True(t, ok)
	require.Equal(t, store.StatusReady, e.Status)
	copied, err := os.ReadFile(e.Path)
	require.NoError(t, err)
	require.Equal(t, content, copied)

	// The source file stays where it was.
	require.FileExists(t, large)

	_, err = b.RegisterPath(filepath.Join(srcDir, "missing.png"), wire.KindImage, "")
	require.Error(t, err)
}

func TestResourceURL(t *testing.T) {
	b, _ := newTestBroker(t, 100, store.Limits{})
	b.cfg.Token = "s3cret/+="

	raw := b.ResourceURL("rid-1")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "/resources/rid-1", parsed.Path)
	require.Equal(t, "s3cret/+=", parsed.Query().Get("token"))

	b.cfg.Token = ""
	require.Equal(t, "http://127.0.0.1:9091/resources/rid-2", b.ResourceURL("rid-2"))
	require.Equal(t, "http://127.0.0.1:9091/resources", b.ResourceBase())
}

func TestUploadDescriptorParts(t *testing.T) {
	b, _ := newTestBroker(t, 100, store.Limits{})

	require.Equal(t, b.ResourceURL("r"), b.UploadURL("r"))
	require.Equal(t, map[string]string{"Authorization": "Bearer tok"}, b.UploadHeaders())

	b.cfg.Token = ""
	require.Nil(t, b.UploadHeaders())
}

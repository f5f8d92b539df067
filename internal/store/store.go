// Package store implements bounded on-disk blob storage for performer
// resources: an entry registry, an eviction engine enforcing TTL and quota
// limits, and an optional sqlite index that lets entries survive restarts.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrCapacity is returned when a reservation alone exceeds a configured cap,
// so no amount of eviction could make room for it.
var ErrCapacity = errors.New("reservation exceeds storage capacity")

// Status is the lifecycle state of an entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
)

// Entry describes one stored or pending blob.
type Entry struct {
	// RID is the globally unique resource identifier.
	RID string
	// Kind is the semantic category (image/audio/file).
	Kind string
	// Mime is the content type.
	Mime string
	// Size is the byte count, authoritative only once Status is ready.
	Size int64
	// SHA256 is the content digest. Only ever set from bytes this server
	// hashed itself; empty until then.
	SHA256 string
	// Path is the owned on-disk location, empty until allocated.
	Path string
	// Status is pending until the bytes are committed.
	Status Status
	// CreatedAt is the allocation time in milliseconds since epoch.
	CreatedAt int64
}

// Limits bounds the store. Zero values disable the corresponding bound.
type Limits struct {
	// TTL evicts files older than this (by filesystem mtime).
	TTL time.Duration
	// MaxTotalBytes caps the sum of stored file sizes.
	MaxTotalBytes int64
	// MaxTotalFiles caps the stored file count.
	MaxTotalFiles int
}

// Config configures a Store.
type Config struct {
	// Dir is the blob directory. Created if absent.
	Dir string
	// Limits bounds the store.
	Limits Limits
	// Index optionally persists the entry registry. May be nil.
	Index *Index
	// Logger receives eviction and index diagnostics.
	Logger zerolog.Logger
}

// EvictStats reports what an eviction pass removed.
type EvictStats struct {
	// Removed is the number of files deleted.
	Removed int
	// RemovedBytes is the total size of the deleted files.
	RemovedBytes int64
}

// Store is the bounded blob directory plus its entry registry. All registry
// mutations run under one mutex; blob writes happen outside it (fresh rids
// make filename collisions impossible).
type Store struct {
	dir    string
	limits Limits
	index  *Index
	log    zerolog.Logger

	mu      sync.Mutex
	entries map[string]Entry

	// removeFile is swappable so deletion failures are testable.
	removeFile func(string) error
}

// New opens the blob directory and, when an index is configured, reloads the
// entry registry persisted by a previous run. Entries whose files are gone
// are reconciled by the orphan sweep on the next eviction pass.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("store: dir must not be empty")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}

	s := &Store{
		dir:        cfg.Dir,
		limits:     cfg.Limits,
		index:      cfg.Index,
		log:        cfg.Logger,
		entries:    make(map[string]Entry),
		removeFile: os.Remove,
	}

	if s.index != nil {
		entries, err := s.index.Load()
		if err != nil {
			return nil, fmt.Errorf("store: load index: %w", err)
		}
		for _, e := range entries {
			s.entries[e.RID] = e
		}
	}

	return s, nil
}

// Dir returns the blob directory.
func (s *Store) Dir() string {
	return s.dir
}

// BlobPath returns the on-disk location for a blob filename.
func (s *Store) BlobPath(name string) string {
	return filepath.Join(s.dir, name)
}

// Insert records an entry in the registry.
func (s *Store) Insert(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.RID] = e
	s.indexUpsert(e)
}

// Entry returns a copy of the entry for rid.
func (s *Store) Entry(rid string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[rid]
	return e, ok
}

// Len returns the number of registered entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// MarkReady flips an entry to ready, optionally overriding the recorded size
// with the byte count observed at upload time and recording a freshly
// computed digest. Returns false if rid is unknown.
func (s *Store) MarkReady(rid string, size *int64, sha256Hex string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[rid]
	if !ok {
		return Entry{}, false
	}
	if size != nil {
		e.Size = *size
	}
	if sha256Hex != "" {
		e.SHA256 = sha256Hex
	}
	e.Status = StatusReady
	s.entries[rid] = e
	s.indexUpsert(e)
	return e, true
}

// Release deletes the backing file and removes the entry. It returns false
// when rid is unknown, and also when the file cannot be deleted; in that case
// the entry is left intact so the failure is visible and the next sweep can
// retry.
func (s *Store) Release(rid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[rid]
	if !ok {
		return false
	}
	if e.Path != "" {
		if err := s.removeFile(e.Path); err != nil && !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("rid", rid).Msg("release: could not delete blob")
			return false
		}
	}
	delete(s.entries, rid)
	s.indexDelete(rid)
	return true
}

// Usage reports the current blob count and total bytes from filesystem stat.
func (s *Store) Usage() (files int, bytes int64, err error) {
	blobs, err := s.listBlobs()
	if err != nil {
		return 0, 0, err
	}
	for _, b := range blobs {
		bytes += b.size
	}
	return len(blobs), bytes, nil
}

// Evict makes room for an incoming item of reserveBytes/reserveFiles while
// enforcing the configured TTL and quota limits. It must run before every
// write that adds a new blob. The pass order is: orphan sweep, TTL sweep,
// count-bound eviction, byte-bound eviction; the latter two delete the
// globally oldest file first (by mtime, so the policy survives restarts).
//
// If the reservation alone exceeds a cap, Evict fails with ErrCapacity
// before deleting anything. A file that cannot be deleted is skipped, keeps
// counting toward usage, and is retried on the next pass.
func (s *Store) Evict(reserveBytes int64, reserveFiles int) (EvictStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats EvictStats
	if s.limits.MaxTotalBytes > 0 && reserveBytes > s.limits.MaxTotalBytes {
		return stats, fmt.Errorf("reserve %d bytes with cap %d: %w",
			reserveBytes, s.limits.MaxTotalBytes, ErrCapacity)
	}
	if s.limits.MaxTotalFiles > 0 && reserveFiles > s.limits.MaxTotalFiles {
		return stats, fmt.Errorf("reserve %d files with cap %d: %w",
			reserveFiles, s.limits.MaxTotalFiles, ErrCapacity)
	}

	s.sweepOrphans()

	blobs, err := s.listBlobs()
	if err != nil {
		return stats, fmt.Errorf("list blobs: %w", err)
	}
	sort.Slice(blobs, func(i, j int) bool {
		return blobs[i].mtime.Before(blobs[j].mtime)
	})

	blobs = s.sweepExpired(blobs, &stats)

	if s.limits.MaxTotalFiles > 0 {
		allowed := s.limits.MaxTotalFiles - reserveFiles
		blobs = s.deleteOldest(blobs, func(count int, _ int64) bool {
			return count <= allowed
		}, &stats)
	}
	if s.limits.MaxTotalBytes > 0 {
		allowed := s.limits.MaxTotalBytes - reserveBytes
		s.deleteOldest(blobs, func(_ int, bytes int64) bool {
			return bytes <= allowed
		}, &stats)
	}

	return stats, nil
}

// WriteBlob streams r into path, computing the content digest on the way.
// The bytes land in a temp file renamed into place, so a concurrent reader
// never observes a partially written blob. Runs without the registry lock.
func (s *Store) WriteBlob(path string, r io.Reader) (int64, string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*"+tmpSuffix)
	if err != nil {
		return 0, "", fmt.Errorf("create blob: %w", err)
	}
	tmp := f.Name()

	h := sha256.New()
	n, err := io.CopyBuffer(io.MultiWriter(f, h), r, make([]byte, copyChunkSize))
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, "", fmt.Errorf("write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return 0, "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, "", fmt.Errorf("publish blob: %w", err)
	}

	return n, hex.EncodeToString(h.Sum(nil)), nil
}

const (
	copyChunkSize = 1 << 20
	tmpSuffix     = ".tmp"
)

type blobFile struct {
	name  string
	path  string
	size  int64
	mtime time.Time
}

// listBlobs stats the blob directory. In-flight temp files are not blobs and
// are excluded from both eviction and usage accounting.
func (s *Store) listBlobs() ([]blobFile, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	blobs := make([]blobFile, 0, len(dirents))
	for _, d := range dirents {
		if d.IsDir() || strings.HasSuffix(d.Name(), tmpSuffix) {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		blobs = append(blobs, blobFile{
			name:  d.Name(),
			path:  filepath.Join(s.dir, d.Name()),
			size:  info.Size(),
			mtime: info.ModTime(),
		})
	}
	return blobs, nil
}

// sweepOrphans drops ready entries whose backing file no longer exists.
func (s *Store) sweepOrphans() {
	for rid, e := range s.entries {
		if e.Status != StatusReady || e.Path == "" {
			continue
		}
		if _, err := os.Stat(e.Path); err != nil && os.IsNotExist(err) {
			s.log.Debug().Str("rid", rid).Msg("evict: dropping orphaned entry")
			delete(s.entries, rid)
			s.indexDelete(rid)
		}
	}
}

// sweepExpired deletes files older than the TTL, pruning their entries.
func (s *Store) sweepExpired(blobs []blobFile, stats *EvictStats) []blobFile {
	if s.limits.TTL <= 0 {
		return blobs
	}
	cutoff := time.Now().Add(-s.limits.TTL)
	kept := blobs[:0:0]
	for _, b := range blobs {
		if !b.mtime.Before(cutoff) {
			kept = append(kept, b)
			continue
		}
		if err := s.removeFile(b.path); err != nil {
			s.log.Warn().Err(err).Str("file", b.name).Msg("evict: ttl delete failed")
			kept = append(kept, b)
			continue
		}
		stats.Removed++
		stats.RemovedBytes += b.size
		s.dropEntryForBlob(b.name)
	}
	return kept
}

// deleteOldest removes files oldest-first until satisfied reports the bound
// is met. Failed deletions are retained and keep counting toward the bound.
func (s *Store) deleteOldest(blobs []blobFile, satisfied func(count int, bytes int64) bool, stats *EvictStats) []blobFile {
	count := len(blobs)
	var bytes int64
	for _, b := range blobs {
		bytes += b.size
	}

	kept := blobs[:0:0]
	for _, b := range blobs {
		if satisfied(count, bytes) {
			kept = append(kept, b)
			continue
		}
		if err := s.removeFile(b.path); err != nil {
			s.log.Warn().Err(err).Str("file", b.name).Msg("evict: delete failed")
			kept = append(kept, b)
			continue
		}
		count--
		bytes -= b.size
		stats.Removed++
		stats.RemovedBytes += b.size
		s.dropEntryForBlob(b.name)
	}
	return kept
}

// dropEntryForBlob prunes the entry owning a deleted blob. Blob filenames are
// the rid plus a mime-derived extension.
func (s *Store) dropEntryForBlob(name string) {
	rid := strings.TrimSuffix(name, filepath.Ext(name))
	if _, ok := s.entries[rid]; !ok {
		return
	}
	delete(s.entries, rid)
	s.indexDelete(rid)
}

func (s *Store) indexUpsert(e Entry) {
	if s.index == nil {
		return
	}
	if err := s.index.Upsert(e); err != nil {
		s.log.Warn().Err(err).Str("rid", e.RID).Msg("index upsert failed")
	}
}

func (s *Store) indexDelete(rid string) {
	if s.index == nil {
		return
	}
	if err := s.index.Delete(rid); err != nil {
		s.log.Warn().Err(err).Str("rid", rid).Msg("index delete failed")
	}
}

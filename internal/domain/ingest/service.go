package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"mediastore/internal/domain/ledger"
	"mediastore/internal/domain/registry"
)

// sniffLen is how many leading bytes the MIME detector gets to look at.
const sniffLen = 3072

// spoolDir holds in-flight ingest spools under the media root. Files land
// here first and are renamed into the sharded store once hashed.
const spoolDir = "tmp"

// DefaultAllowedMimeTypes defines which content-sniffed types are accepted.
// This is a security control: the client-declared type is never trusted.
var DefaultAllowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"video/mp4":       true,
	"video/webm":      true,
	"application/pdf": true,
}

// Service is the sole path that ever creates files in the permanent store.
// It streams input through sha256, dedups against the hash registry and
// binds an ownership record for the caller.
type Service struct {
	registry  registry.Repository
	ledger    ledger.Repository
	mediaRoot string
	maxSize   int64
	allowed   map[string]bool
}

func NewService(reg registry.Repository, led ledger.Repository, mediaRoot string, maxSize int64, allowed map[string]bool) *Service {
	if allowed == nil {
		allowed = DefaultAllowedMimeTypes
	}
	return &Service{
		registry:  reg,
		ledger:    led,
		mediaRoot: mediaRoot,
		maxSize:   maxSize,
		allowed:   allowed,
	}
}

// AbsolutePath resolves a registry-relative storage path under the media root.
func (s *Service) AbsolutePath(rel string) string {
	return filepath.Join(s.mediaRoot, rel)
}

// Ingest reads the full stream, content-sniffs it against the allow-list,
// enforces the size ceiling and stores it content-addressed. Identical
// content is never written twice: a second upload of the same bytes only
// bumps the registry refcount, under any user.
func (s *Service) Ingest(ctx context.Context, userID int64, filename string, declaredMime string, r io.Reader) (*ledger.OwnershipRecord, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		// Nothing readable means nothing sniffable. Fail closed.
		return nil, ErrUnsupportedMediaType
	}
	if n == 0 {
		return nil, ErrEmptyFile
	}

	mtype := mimetype.Detect(head[:n])
	mime := strings.TrimSpace(strings.Split(mtype.String(), ";")[0]) // strip charset params
	if !s.allowed[mime] {
		return nil, ErrUnsupportedMediaType
	}
	if declaredMime != "" && declaredMime != mime {
		log.Printf("ingest: declared mime %q disagrees with sniffed %q for %q", declaredMime, mime, filename)
	}

	hash, size, spool, err := s.spool(head[:n], r)
	if err != nil {
		return nil, err
	}

	rec, fresh, err := s.store(ctx, hash, filename, size, mime, spool)
	if err != nil {
		_ = os.Remove(spool)
		return nil, err
	}

	own := &ledger.OwnershipRecord{
		UserID:               userID,
		Hash:                 rec.Hash,
		OriginalUserFilename: filename,
	}
	if err := s.ledger.Create(ctx, own); err != nil {
		s.rollback(ctx, rec, fresh)
		return nil, ErrStorageUnavailable
	}

	return own, nil
}

// spool streams head+rest into a temp file while hashing, enforcing the
// size ceiling without buffering the payload in memory.
func (s *Service) spool(head []byte, rest io.Reader) (hash string, size int64, path string, err error) {
	dir := filepath.Join(s.mediaRoot, spoolDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, "", ErrStorageUnavailable
	}

	path = filepath.Join(dir, uuid.New().String())
	dst, err := os.Create(path)
	if err != nil {
		return "", 0, "", ErrStorageUnavailable
	}

	hasher := sha256.New()
	limited := io.LimitReader(io.MultiReader(bytes.NewReader(head), rest), s.maxSize+1)
	size, err = io.Copy(io.MultiWriter(dst, hasher), limited)
	if cerr := dst.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, "", ErrStorageUnavailable
	}
	if size > s.maxSize {
		_ = os.Remove(path)
		return "", 0, "", ErrPayloadTooLarge
	}

	return hex.EncodeToString(hasher.Sum(nil)), size, path, nil
}

// store moves the spooled bytes into the content store, or discards them
// when the hash is already registered. fresh reports whether this call
// created the HashRecord.
func (s *Service) store(ctx context.Context, hash, filename string, size int64, mime, spool string) (*registry.HashRecord, bool, error) {
	if rec, err := s.registry.Lookup(ctx, hash); err == nil {
		if err := s.registry.IncrementRef(ctx, hash); err == nil {
			_ = os.Remove(spool)
			return rec, false, nil
		}
		// The row vanished between lookup and increment (GC won a race);
		// fall through and register the content as novel.
	} else if err != registry.ErrHashNotFound {
		return nil, false, ErrStorageUnavailable
	}

	rel := registry.StoragePath(hash)
	abs := filepath.Join(s.mediaRoot, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return nil, false, ErrStorageUnavailable
	}
	// Rename is atomic within the media root; a racing ingester of the same
	// content lands byte-identical data on the same path.
	if err := os.Rename(spool, abs); err != nil {
		return nil, false, ErrStorageUnavailable
	}

	rec := &registry.HashRecord{
		Hash:             hash,
		OriginalFilename: filename,
		SizeBytes:        size,
		MimeType:         mime,
		StoragePath:      rel,
		ReferenceCount:   1,
	}
	inserted, err := s.registry.Insert(ctx, rec)
	if err != nil {
		_ = os.Remove(abs)
		return nil, false, ErrStorageUnavailable
	}
	if !inserted {
		// Lost the insert race: another ingester owns the row. Our rename
		// already placed identical bytes, so only the refcount moves.
		if err := s.registry.IncrementRef(ctx, hash); err != nil {
			return nil, false, ErrStorageUnavailable
		}
		existing, err := s.registry.Lookup(ctx, hash)
		if err != nil {
			return nil, false, ErrStorageUnavailable
		}
		return existing, false, nil
	}

	return rec, true, nil
}

// rollback undoes the registry side effects of a failed ownership binding.
func (s *Service) rollback(ctx context.Context, rec *registry.HashRecord, fresh bool) {
	if _, err := s.registry.DecrementRef(ctx, rec.Hash); err != nil {
		log.Printf("ingest: rollback decrement for %s failed: %v", rec.Hash, err)
		return
	}
	if !fresh {
		return
	}
	// We created the row; reclaim it and the file unless another ingester
	// re-referenced the content in the meantime.
	deleted, err := s.registry.DeleteIfUnreferenced(ctx, rec.Hash)
	if err != nil || !deleted {
		return
	}
	if err := os.Remove(filepath.Join(s.mediaRoot, rec.StoragePath)); err != nil && !os.IsNotExist(err) {
		log.Printf("ingest: rollback file removal for %s failed: %v", rec.Hash, err)
	}
}

// Verify checks the store invariant for a hash: while referenced, the file
// must exist with the recorded size. Mismatches are integrity faults to be
// reported, never silently repaired.
func (s *Service) Verify(ctx context.Context, hash string) error {
	rec, err := s.registry.Lookup(ctx, hash)
	if err != nil {
		return err
	}
	if rec.ReferenceCount == 0 {
		return nil
	}
	info, err := os.Stat(filepath.Join(s.mediaRoot, rec.StoragePath))
	if err != nil {
		return fmt.Errorf("integrity: %s referenced but missing on disk: %w", hash, err)
	}
	if info.Size() != rec.SizeBytes {
		return fmt.Errorf("integrity: %s size %d on disk, %d in registry", hash, info.Size(), rec.SizeBytes)
	}
	return nil
}

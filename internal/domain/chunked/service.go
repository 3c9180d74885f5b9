package chunked

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"mediastore/internal/domain/ingest"
	"mediastore/internal/domain/registry"
)

// StagingDir holds in-progress chunk files under the media root,
// namespaced by session id.
const StagingDir = "staging"

// Service is the resumable-upload state machine. Completed sessions funnel
// their assembled bytes through the ingest pipeline, so a chunked upload
// ends up indistinguishable from a direct one.
type Service struct {
	repo      Repository
	ingest    *ingest.Service
	registry  registry.Repository
	mediaRoot string
	maxSize   int64
}

func NewService(repo Repository, ing *ingest.Service, reg registry.Repository, mediaRoot string, maxSize int64) *Service {
	return &Service{
		repo:      repo,
		ingest:    ing,
		registry:  reg,
		mediaRoot: mediaRoot,
		maxSize:   maxSize,
	}
}

// Init creates a session in the initialized state and returns its id.
func (s *Service) Init(ctx context.Context, userID int64, filename string, totalSize int64, totalChunks int) (string, error) {
	if filename == "" || totalChunks <= 0 || totalSize <= 0 {
		return "", ErrInvalidRequest
	}
	if totalSize > s.maxSize {
		return "", ingest.ErrPayloadTooLarge
	}

	session := &UploadSession{
		ID:             uuid.New().String(),
		UserID:         userID,
		Filename:       filename,
		TotalSizeBytes: totalSize,
		TotalChunks:    totalChunks,
		Status:         StatusInitialized,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return "", err
	}
	return session.ID, nil
}

// PutChunk persists one numbered chunk. Retransmitting an index with the
// same size overwrites idempotently and does not advance uploadedChunks;
// a different size for a taken index is rejected, not silently accepted.
func (s *Service) PutChunk(ctx context.Context, sessionID string, userID int64, index int, r io.Reader) error {
	session, err := s.authorized(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if session.Status != StatusInitialized && session.Status != StatusUploading {
		return ErrSessionClosed
	}
	if index < 0 || index >= session.TotalChunks {
		return ErrChunkOutOfRange
	}

	dir := filepath.Join(s.mediaRoot, StagingDir, sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ingest.ErrStorageUnavailable
	}

	tmp := filepath.Join(dir, fmt.Sprintf("%d.tmp.%s", index, uuid.New().String()))
	dst, err := os.Create(tmp)
	if err != nil {
		return ingest.ErrStorageUnavailable
	}
	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(dst, hasher), io.LimitReader(r, s.maxSize+1))
	if cerr := dst.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return ingest.ErrStorageUnavailable
	}
	if size > s.maxSize {
		_ = os.Remove(tmp)
		return ingest.ErrPayloadTooLarge
	}

	if existing, err := s.repo.GetChunk(ctx, sessionID, index); err == nil {
		if existing.ChunkSizeBytes != size {
			_ = os.Remove(tmp)
			return ErrChunkConflict
		}
	}

	final := filepath.Join(dir, strconv.Itoa(index))
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return ingest.ErrStorageUnavailable
	}

	rec := &ChunkRecord{
		UploadID:       sessionID,
		ChunkIndex:     index,
		ChunkHash:      hex.EncodeToString(hasher.Sum(nil)),
		ChunkSizeBytes: size,
		ChunkPath:      final,
	}
	inserted, err := s.repo.RecordChunk(ctx, rec)
	if err != nil {
		return ingest.ErrStorageUnavailable
	}
	if !inserted {
		// A concurrent retransmission took the slot between our existence
		// check and the insert. Same-size retries stay idempotent.
		existing, err := s.repo.GetChunk(ctx, sessionID, index)
		if err != nil {
			return ingest.ErrStorageUnavailable
		}
		if existing.ChunkSizeBytes != size {
			return ErrChunkConflict
		}
		return s.repo.TouchSession(ctx, sessionID)
	}

	return s.repo.BumpUploaded(ctx, sessionID)
}

// Progress reports how far a session has come, so resumable clients know
// which indices to skip.
func (s *Service) Progress(ctx context.Context, sessionID string, userID int64) (*UploadSession, error) {
	return s.authorized(ctx, sessionID, userID)
}

// Complete assembles all chunks in index order, runs the result through
// the ingest pipeline and tears down the staging area. Repeating Complete
// on a completed session returns the already-recorded result.
func (s *Service) Complete(ctx context.Context, sessionID string, userID int64) (*registry.HashRecord, error) {
	session, err := s.authorized(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.Status == StatusCompleted {
		if session.ResultingHash != nil {
			return s.registry.Lookup(ctx, *session.ResultingHash)
		}
		return nil, ErrSessionClosed
	}
	if session.Status == StatusCancelled {
		return nil, ErrSessionClosed
	}
	if session.UploadedChunks != session.TotalChunks {
		return nil, ErrIncompleteUpload
	}

	chunks, err := s.repo.ListChunks(ctx, sessionID)
	if err != nil {
		return nil, ingest.ErrStorageUnavailable
	}
	if len(chunks) != session.TotalChunks {
		return nil, ErrIncompleteUpload
	}

	files := make([]*os.File, 0, len(chunks))
	readers := make([]io.Reader, 0, len(chunks))
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	for _, chunk := range chunks {
		f, err := os.Open(chunk.ChunkPath)
		if err != nil {
			return nil, ErrIncompleteUpload
		}
		files = append(files, f)
		readers = append(readers, f)
	}

	own, err := s.ingest.Ingest(ctx, userID, session.Filename, "", io.MultiReader(readers...))
	if err != nil {
		return nil, err
	}

	if err := s.repo.MarkCompleted(ctx, sessionID, own.Hash); err != nil {
		return nil, err
	}
	if err := s.repo.DeleteChunks(ctx, sessionID); err != nil {
		log.Printf("chunked: failed to delete chunk rows for %s: %v", sessionID, err)
	}
	s.purgeStaging(sessionID)

	return s.registry.Lookup(ctx, own.Hash)
}

// Cancel tears down a session in any state except completed.
func (s *Service) Cancel(ctx context.Context, sessionID string, userID int64) error {
	session, err := s.authorized(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	return s.cancel(ctx, session)
}

func (s *Service) cancel(ctx context.Context, session *UploadSession) error {
	if session.Status == StatusCompleted {
		return ErrSessionClosed
	}
	s.purgeStaging(session.ID)
	if err := s.repo.DeleteChunks(ctx, session.ID); err != nil {
		return err
	}
	return s.repo.DeleteSession(ctx, session.ID)
}

// CancelIdle reclaims sessions untouched past the TTL. No user action is
// needed to get the staging space back.
func (s *Service) CancelIdle(ctx context.Context, ttl time.Duration) {
	sessions, err := s.repo.ListIdleBefore(ctx, time.Now().UTC().Add(-ttl))
	if err != nil {
		log.Printf("chunked reaper: listing idle sessions failed: %v", err)
		return
	}
	for _, session := range sessions {
		if err := s.cancel(ctx, &session); err != nil {
			log.Printf("chunked reaper: cancelling %s failed: %v", session.ID, err)
			continue
		}
		log.Printf("chunked reaper: cancelled idle session %s (user %d)", session.ID, session.UserID)
	}
}

// StartReaper runs CancelIdle on a ticker until the context ends.
func (s *Service) StartReaper(ctx context.Context, interval, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.CancelIdle(ctx, ttl)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Service) purgeStaging(sessionID string) {
	dir := filepath.Join(s.mediaRoot, StagingDir, sessionID)
	if err := os.RemoveAll(dir); err != nil {
		log.Printf("chunked: failed to purge staging dir %s: %v", dir, err)
	}
}

// authorized loads a session and hides other users' sessions behind
// not-found, never revealing their existence.
func (s *Service) authorized(ctx context.Context, sessionID string, userID int64) (*UploadSession, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

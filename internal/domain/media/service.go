package media

import (
	"context"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"mediastore/internal/domain/gc"
	"mediastore/internal/domain/ingest"
	"mediastore/internal/domain/ledger"
	"mediastore/internal/domain/registry"
)

// Codec produces thumbnails for stored media. The actual image/video
// codecs live outside this service; only the cache-miss invocation
// contract is ours.
type Codec interface {
	Thumbnail(ctx context.Context, src, dst, kind string) error
}

// Service fronts the ingest pipeline and ledger for the JSON API and the
// public retrieval endpoints. All file reads go through the registry;
// nothing here ever writes into the permanent store.
type Service struct {
	ingest    *ingest.Service
	ledger    ledger.Repository
	registry  registry.Repository
	gc        *gc.Worker
	mediaRoot string
	thumbDir  string
	codec     Codec
}

func NewService(ing *ingest.Service, led ledger.Repository, reg registry.Repository, worker *gc.Worker, mediaRoot, thumbDir string, codec Codec) *Service {
	return &Service{
		ingest:    ing,
		ledger:    led,
		registry:  reg,
		gc:        worker,
		mediaRoot: mediaRoot,
		thumbDir:  thumbDir,
		codec:     codec,
	}
}

// Upload ingests one multipart file for the caller.
func (s *Service) Upload(ctx context.Context, userID int64, fileHeader *multipart.FileHeader) (*ledger.OwnershipRecord, error) {
	if fileHeader.Size == 0 {
		return nil, ingest.ErrEmptyFile
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	declared := strings.Split(fileHeader.Header.Get("Content-Type"), ";")[0]
	return s.ingest.Ingest(ctx, userID, filepath.Base(fileHeader.Filename), declared, file)
}

func (s *Service) Get(ctx context.Context, id int64) (*ledger.OwnershipRecord, error) {
	return s.ledger.GetByID(ctx, id)
}

func (s *Service) ListByUser(ctx context.Context, userID int64) ([]ledger.OwnershipRecord, error) {
	return s.ledger.ListByUser(ctx, userID)
}

// Delete unbinds one ownership record. When the refcount hits zero the
// physical cleanup is queued to the GC worker, never done inline: an
// in-flight reader may still be streaming the file.
func (s *Service) Delete(ctx context.Context, id int64, userID int64) error {
	hash, newCount, err := s.ledger.Unbind(ctx, id, userID)
	if err != nil {
		return err
	}
	if newCount == 0 {
		s.gc.Enqueue(gc.Task{Hash: hash, StoragePath: registry.StoragePath(hash)})
	}
	return nil
}

// Shared resolves a content hash to its record and on-disk location.
func (s *Service) Shared(ctx context.Context, hash string) (*registry.HashRecord, string, error) {
	if !registry.ValidHash(hash) {
		return nil, "", registry.ErrInvalidHash
	}
	rec, err := s.registry.Lookup(ctx, hash)
	if err != nil {
		return nil, "", err
	}
	return rec, filepath.Join(s.mediaRoot, rec.StoragePath), nil
}

// Thumbnail serves from the hash-keyed cache, invoking the codec
// collaborator synchronously on a miss.
func (s *Service) Thumbnail(ctx context.Context, hash, kind string) (string, error) {
	if kind != "image" && kind != "video" {
		return "", ErrBadThumbnailType
	}
	rec, src, err := s.Shared(ctx, hash)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(s.thumbDir, rec.Hash+".jpg")
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}

	if err := os.MkdirAll(s.thumbDir, 0755); err != nil {
		return "", ingest.ErrStorageUnavailable
	}
	if err := s.codec.Thumbnail(ctx, src, dst, kind); err != nil {
		return "", fmt.Errorf("thumbnail generation failed: %w", err)
	}
	return dst, nil
}

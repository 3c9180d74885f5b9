package chunked

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	CreateSession(ctx context.Context, s *UploadSession) error
	GetSession(ctx context.Context, id string) (*UploadSession, error)
	// RecordChunk inserts a chunk row if the (uploadID, index) slot is free,
	// relying on the composite unique index to close the retransmission
	// race. false means the slot was already taken.
	RecordChunk(ctx context.Context, c *ChunkRecord) (bool, error)
	GetChunk(ctx context.Context, uploadID string, index int) (*ChunkRecord, error)
	ListChunks(ctx context.Context, uploadID string) ([]ChunkRecord, error)
	// BumpUploaded atomically advances uploaded_chunks and promotes the
	// session into uploading. Called only for a first-time chunk index.
	BumpUploaded(ctx context.Context, uploadID string) error
	TouchSession(ctx context.Context, uploadID string) error
	MarkCompleted(ctx context.Context, uploadID string, hash string) error
	DeleteChunks(ctx context.Context, uploadID string) error
	DeleteSession(ctx context.Context, uploadID string) error
	ListIdleBefore(ctx context.Context, cutoff time.Time) ([]UploadSession, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateSession(ctx context.Context, s *UploadSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *repository) GetSession(ctx context.Context, id string) (*UploadSession, error) {
	var s UploadSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrSessionNotFound
	}
	return &s, err
}

func (r *repository) RecordChunk(ctx context.Context, c *ChunkRecord) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "upload_id"}, {Name: "chunk_index"}},
			DoNothing: true,
		}).
		Create(c)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) GetChunk(ctx context.Context, uploadID string, index int) (*ChunkRecord, error) {
	var c ChunkRecord
	err := r.db.WithContext(ctx).
		Where("upload_id = ? AND chunk_index = ?", uploadID, index).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) ListChunks(ctx context.Context, uploadID string) ([]ChunkRecord, error) {
	var chunks []ChunkRecord
	err := r.db.WithContext(ctx).
		Where("upload_id = ?", uploadID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	return chunks, err
}

func (r *repository) BumpUploaded(ctx context.Context, uploadID string) error {
	return r.db.WithContext(ctx).Model(&UploadSession{}).
		Where("id = ? AND status IN ?", uploadID, []string{StatusInitialized, StatusUploading}).
		UpdateColumns(map[string]interface{}{
			"uploaded_chunks": gorm.Expr("uploaded_chunks + 1"),
			"status":          StatusUploading,
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (r *repository) TouchSession(ctx context.Context, uploadID string) error {
	return r.db.WithContext(ctx).Model(&UploadSession{}).
		Where("id = ?", uploadID).
		UpdateColumn("updated_at", time.Now().UTC()).Error
}

func (r *repository) MarkCompleted(ctx context.Context, uploadID string, hash string) error {
	res := r.db.WithContext(ctx).Model(&UploadSession{}).
		Where("id = ? AND status IN ?", uploadID, []string{StatusInitialized, StatusUploading}).
		UpdateColumns(map[string]interface{}{
			"status":         StatusCompleted,
			"resulting_hash": hash,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionClosed
	}
	return nil
}

func (r *repository) DeleteChunks(ctx context.Context, uploadID string) error {
	return r.db.WithContext(ctx).Where("upload_id = ?", uploadID).Delete(&ChunkRecord{}).Error
}

func (r *repository) DeleteSession(ctx context.Context, uploadID string) error {
	return r.db.WithContext(ctx).Where("id = ?", uploadID).Delete(&UploadSession{}).Error
}

func (r *repository) ListIdleBefore(ctx context.Context, cutoff time.Time) ([]UploadSession, error) {
	var sessions []UploadSession
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []string{StatusInitialized, StatusUploading}, cutoff).
		Find(&sessions).Error
	return sessions, err
}

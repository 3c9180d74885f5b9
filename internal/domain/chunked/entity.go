package chunked

import "time"

// Session status values. Status only moves forward: no transition leaves
// completed or cancelled.
const (
	StatusInitialized = "initialized"
	StatusUploading   = "uploading"
	StatusCompleted   = "completed"
	StatusCancelled   = "cancelled"
)

// UploadSession is a resumable multi-chunk upload in progress.
type UploadSession struct {
	ID             string    `gorm:"column:id;primaryKey;size:36" json:"upload_id"`
	UserID         int64     `gorm:"column:user_id;not null;index" json:"user_id"`
	Filename       string    `gorm:"column:filename;size:255;not null" json:"filename"`
	TotalSizeBytes int64     `gorm:"column:total_size_bytes;not null" json:"total_size_bytes"`
	TotalChunks    int       `gorm:"column:total_chunks;not null" json:"total_chunks"`
	UploadedChunks int       `gorm:"column:uploaded_chunks;not null;default:0" json:"uploaded_chunks"`
	ResultingHash  *string   `gorm:"column:resulting_hash;size:64" json:"resulting_hash,omitempty"`
	Status         string    `gorm:"column:status;size:16;not null;index" json:"status"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (UploadSession) TableName() string { return "upload_sessions" }

// ChunkRecord is one persisted chunk of an UploadSession. The composite
// unique index makes retransmission of an index idempotent.
type ChunkRecord struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UploadID       string    `gorm:"column:upload_id;size:36;not null;uniqueIndex:idx_upload_chunk" json:"upload_id"`
	ChunkIndex     int       `gorm:"column:chunk_index;not null;uniqueIndex:idx_upload_chunk" json:"chunk_index"`
	ChunkHash      string    `gorm:"column:chunk_hash;size:64;not null" json:"chunk_hash"`
	ChunkSizeBytes int64     `gorm:"column:chunk_size_bytes;not null" json:"chunk_size_bytes"`
	ChunkPath      string    `gorm:"column:chunk_path;size:512;not null" json:"-"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
}

func (ChunkRecord) TableName() string { return "chunk_records" }

package registry

import "time"

// HashRecord is one unique piece of content in the store. Every user-visible
// file is a reference to exactly one of these; identical uploads collapse
// onto the same row no matter who uploaded them.
type HashRecord struct {
	Hash             string    `gorm:"column:hash;primaryKey;size:64" json:"hash"`
	OriginalFilename string    `gorm:"column:original_filename;size:255" json:"original_filename"`
	SizeBytes        int64     `gorm:"column:size_bytes;not null" json:"size_bytes"`
	MimeType         string    `gorm:"column:mime_type;size:128" json:"mime_type"`
	StoragePath      string    `gorm:"column:storage_path;size:512;not null" json:"-"`
	ReferenceCount   int64     `gorm:"column:reference_count;not null;default:1" json:"reference_count"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"created_at"`
}

func (HashRecord) TableName() string { return "hash_records" }

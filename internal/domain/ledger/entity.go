package ledger

import "time"

// OwnershipRecord is one user's visible copy of a file. Many records may
// point at the same HashRecord; the registry refcount tracks how many.
type OwnershipRecord struct {
	ID                   int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID               int64     `gorm:"column:user_id;not null;index" json:"user_id"`
	Hash                 string    `gorm:"column:hash;size:64;not null;index" json:"hash"`
	OriginalUserFilename string    `gorm:"column:original_user_filename;size:255;not null" json:"filename"`
	CreatedAt            time.Time `gorm:"column:created_at" json:"created_at"`
}

func (OwnershipRecord) TableName() string { return "ownership_records" }

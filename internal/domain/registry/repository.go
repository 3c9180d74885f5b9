package registry

import (
	"context"
	"path/filepath"
	"regexp"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HashedFilesDir is the root of the permanent content store, relative
// to the configured media root.
const HashedFilesDir = "hashed_files"

var hashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ValidHash reports whether s is a well-formed lowercase sha256 hex digest.
func ValidHash(s string) bool {
	return hashPattern.MatchString(s)
}

// StoragePath derives the sharded relative path for a hash:
// hashed_files/<first two hex chars>/<full hash>. The prefix directory
// bounds per-directory fan-out.
func StoragePath(hash string) string {
	return filepath.Join(HashedFilesDir, hash[:2], hash)
}

type Repository interface {
	Lookup(ctx context.Context, hash string) (*HashRecord, error)
	// Insert attempts to register novel content. It is a conditional write
	// against the hash primary key: false means a concurrent ingester won
	// the race and the caller must fall back to IncrementRef.
	Insert(ctx context.Context, rec *HashRecord) (bool, error)
	IncrementRef(ctx context.Context, hash string) error
	DecrementRef(ctx context.Context, hash string) (int64, error)
	// DeleteIfUnreferenced removes the row only while its refcount is still
	// zero. It is the GC worker's re-check before touching the filesystem.
	DeleteIfUnreferenced(ctx context.Context, hash string) (bool, error)
	ListUnreferenced(ctx context.Context) ([]HashRecord, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Lookup(ctx context.Context, hash string) (*HashRecord, error) {
	var rec HashRecord
	err := r.db.WithContext(ctx).Where("hash = ?", hash).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrHashNotFound
	}
	return &rec, err
}

func (r *repository) Insert(ctx context.Context, rec *HashRecord) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "hash"}},
			DoNothing: true,
		}).
		Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) IncrementRef(ctx context.Context, hash string) error {
	res := r.db.WithContext(ctx).Model(&HashRecord{}).
		Where("hash = ?", hash).
		UpdateColumn("reference_count", gorm.Expr("reference_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrHashNotFound
	}
	return nil
}

func (r *repository) DecrementRef(ctx context.Context, hash string) (int64, error) {
	// The refcount guard keeps the counter non-negative even under
	// concurrent unbinds of the same hash.
	res := r.db.WithContext(ctx).Model(&HashRecord{}).
		Where("hash = ? AND reference_count > 0", hash).
		UpdateColumn("reference_count", gorm.Expr("reference_count - 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		var rec HashRecord
		if err := r.db.WithContext(ctx).Where("hash = ?", hash).First(&rec).Error; err == gorm.ErrRecordNotFound {
			return 0, ErrHashNotFound
		}
		return 0, ErrRefUnderflow
	}

	var count int64
	err := r.db.WithContext(ctx).Model(&HashRecord{}).
		Where("hash = ?", hash).
		Select("reference_count").
		Scan(&count).Error
	return count, err
}

func (r *repository) DeleteIfUnreferenced(ctx context.Context, hash string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("hash = ? AND reference_count = 0", hash).
		Delete(&HashRecord{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListUnreferenced(ctx context.Context) ([]HashRecord, error) {
	var recs []HashRecord
	err := r.db.WithContext(ctx).Where("reference_count = 0").Find(&recs).Error
	return recs, err
}

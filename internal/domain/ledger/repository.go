package ledger

import (
	"context"

	"gorm.io/gorm"

	"mediastore/internal/domain/registry"
)

type Repository interface {
	Create(ctx context.Context, rec *OwnershipRecord) error
	GetByID(ctx context.Context, id int64) (*OwnershipRecord, error)
	FindByUserAndName(ctx context.Context, userID int64, filename string) (*OwnershipRecord, error)
	ListByUser(ctx context.Context, userID int64) ([]OwnershipRecord, error)
	// Unbind deletes the record and decrements the registry refcount in one
	// transaction, returning the hash and its new count. A zero count makes
	// the content eligible for asynchronous garbage collection; deletion of
	// the physical file never happens here.
	Unbind(ctx context.Context, id int64, userID int64) (hash string, newCount int64, err error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, rec *OwnershipRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *repository) GetByID(ctx context.Context, id int64) (*OwnershipRecord, error) {
	var rec OwnershipRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrOwnershipNotFound
	}
	return &rec, err
}

func (r *repository) FindByUserAndName(ctx context.Context, userID int64, filename string) (*OwnershipRecord, error) {
	var rec OwnershipRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND original_user_filename = ?", userID, filename).
		Order("created_at DESC").
		First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrOwnershipNotFound
	}
	return &rec, err
}

func (r *repository) ListByUser(ctx context.Context, userID int64) ([]OwnershipRecord, error) {
	var recs []OwnershipRecord
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&recs).Error
	return recs, err
}

func (r *repository) Unbind(ctx context.Context, id int64, userID int64) (string, int64, error) {
	var hash string
	var newCount int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec OwnershipRecord
		if err := tx.Where("id = ?", id).First(&rec).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrOwnershipNotFound
			}
			return err
		}
		if rec.UserID != userID {
			return ErrNotOwner
		}
		hash = rec.Hash

		if err := tx.Where("id = ?", id).Delete(&OwnershipRecord{}).Error; err != nil {
			return err
		}

		res := tx.Model(&registry.HashRecord{}).
			Where("hash = ? AND reference_count > 0", hash).
			UpdateColumn("reference_count", gorm.Expr("reference_count - 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return registry.ErrRefUnderflow
		}

		return tx.Model(&registry.HashRecord{}).
			Where("hash = ?", hash).
			Select("reference_count").
			Scan(&newCount).Error
	})
	if err != nil {
		return "", 0, err
	}
	return hash, newCount, nil
}

package account

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// Account is the minimal identity row the WebDAV adapter needs to map a
// Basic credential and a /dav/<username> path segment onto a user id.
// Registration and token issuance live in an external service.
type Account struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"column:username;size:64;uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"column:password_hash;size:128;not null" json:"-"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Account) TableName() string { return "accounts" }

type Resolver interface {
	// Resolve checks a Basic credential and returns the account's user id.
	Resolve(ctx context.Context, username, password string) (int64, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
}

type resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) Resolver {
	return &resolver{db: db}
}

func (r *resolver) GetByUsername(ctx context.Context, username string) (*Account, error) {
	var acc Account
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&acc).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrInvalidCredentials
	}
	return &acc, err
}

func (r *resolver) Resolve(ctx context.Context, username, password string) (int64, error) {
	acc, err := r.GetByUsername(ctx, username)
	if err != nil {
		return 0, err
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		return 0, ErrInvalidCredentials
	}
	return acc.ID, nil
}

// HashPassword is used by seed tooling and tests to mint credentials.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

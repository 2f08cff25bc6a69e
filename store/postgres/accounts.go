// Package postgres stores accounts in PostgreSQL through gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/accessgate"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const uniqueViolation = "23505"

type accountModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Username     string    `gorm:"column:username"`
	Email        string    `gorm:"column:email"`
	PasswordHash string    `gorm:"column:password_hash"`
	Status       string    `gorm:"column:status"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (accountModel) TableName() string { return "accounts" }

func toModel(a accessgate.Account) accountModel {
	return accountModel{
		ID:           a.ID,
		Username:     a.Username,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Status:       string(a.Status),
		CreatedAt:    a.CreatedAt.UTC(),
		UpdatedAt:    a.UpdatedAt.UTC(),
	}
}

func (m accountModel) account() accessgate.Account {
	return accessgate.Account{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Status:       accessgate.Status(m.Status),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// Store is an accessgate.AccountStore over the accounts table.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) FindByEmail(ctx context.Context, email string) (accessgate.Account, bool, error) {
	return s.take(ctx, "email = ?", email)
}

func (s *Store) FindByID(ctx context.Context, id string) (accessgate.Account, bool, error) {
	return s.take(ctx, "id = ?", id)
}

func (s *Store) take(ctx context.Context, where string, arg string) (accessgate.Account, bool, error) {
	var rec accountModel
	err := s.db.WithContext(ctx).Where(where, arg).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return accessgate.Account{}, false, nil
	}
	if err != nil {
		return accessgate.Account{}, false, err
	}
	return rec.account(), true, nil
}

// Save upserts on id. A clash on email or username with another row maps to
// accessgate.ErrAccountExists.
func (s *Store) Save(ctx context.Context, a accessgate.Account) error {
	rec := toModel(a)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "email", "password_hash", "status", "updated_at",
		}),
	}).Create(&rec).Error
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", accessgate.ErrAccountExists, err)
	}
	return err
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&accountModel{}).Count(&n).Error
	return n, err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

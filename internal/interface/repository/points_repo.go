package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sustainflow-service/internal/domain/entity"
	"sustainflow-service/internal/domain/repository"

	"gorm.io/gorm"
)

// GormPointsRepository implements the PointsRepository interface
type GormPointsRepository struct {
	db *gorm.DB
}

// NewGormPointsRepository creates a new GORM points repository
func NewGormPointsRepository(db *gorm.DB) repository.PointsRepository {
	return &GormPointsRepository{
		db: db,
	}
}

// PointBalances GORM model for database mapping
type PointBalances struct {
	UserID    string `gorm:"column:user_id;primaryKey"`
	Balance   int    `gorm:"column:balance;not null;default:0"`
	UpdatedAt time.Time
}

// TableName overrides the default table name
func (PointBalances) TableName() string {
	return "point_balances"
}

// PointLedgerEntries GORM model for database mapping
type PointLedgerEntries struct {
	ID          uint      `gorm:"primaryKey"`
	UserID      string    `gorm:"column:user_id;index"`
	Delta       int       `gorm:"column:delta"`
	Reason      string    `gorm:"column:reason"`
	ReferenceID string    `gorm:"column:reference_id"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name
func (PointLedgerEntries) TableName() string {
	return "point_ledger_entries"
}

// Migrate creates the ledger tables
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&PointBalances{}, &PointLedgerEntries{})
}

// Credit adds points to a user's balance and records a ledger entry
func (r *GormPointsRepository) Credit(ctx context.Context, userID string, points int, reason, referenceID string) error {
	if points <= 0 {
		return nil
	}

	now := time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(
			`INSERT INTO point_balances (user_id, balance, updated_at) VALUES (?, ?, ?) `+
				`ON CONFLICT (user_id) DO UPDATE SET balance = point_balances.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at`,
			userID, points, now,
		)
		if result.Error != nil {
			return fmt.Errorf("failed to credit points: %w", result.Error)
		}

		return r.appendEntry(tx, userID, points, reason, referenceID, now)
	})
}

// Redeem subtracts points if the balance covers them and returns the new balance
func (r *GormPointsRepository) Redeem(ctx context.Context, userID string, points int, referenceID string) (int, error) {
	if points <= 0 {
		return 0, fmt.Errorf("points must be positive: %w", entity.ErrValidation)
	}

	now := time.Now().UTC()
	var balance int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(
			`UPDATE point_balances SET balance = balance - ?, updated_at = ? WHERE user_id = ? AND balance >= ?`,
			points, now, userID, points,
		)
		if result.Error != nil {
			return fmt.Errorf("failed to redeem points: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return entity.ErrInsufficientPoints
		}

		if err := r.appendEntry(tx, userID, -points, entity.PointsReasonRedeem, referenceID, now); err != nil {
			return err
		}

		return tx.Raw(`SELECT balance FROM point_balances WHERE user_id = ?`, userID).Scan(&balance).Error
	})
	if err != nil {
		return 0, err
	}

	return balance, nil
}

// Balance returns a user's current balance, zero if they never earned points
func (r *GormPointsRepository) Balance(ctx context.Context, userID string) (int, error) {
	var row PointBalances
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, result.Error
	}
	return row.Balance, nil
}

// History returns the latest ledger entries of a user
func (r *GormPointsRepository) History(ctx context.Context, userID string, limit int) ([]*entity.PointLedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []PointLedgerEntries
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	// Convert to domain entities
	entries := make([]*entity.PointLedgerEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, &entity.PointLedgerEntry{
			ID:          row.ID,
			UserID:      row.UserID,
			Delta:       row.Delta,
			Reason:      row.Reason,
			ReferenceID: row.ReferenceID,
			CreatedAt:   row.CreatedAt,
		})
	}

	return entries, nil
}

func (r *GormPointsRepository) appendEntry(tx *gorm.DB, userID string, delta int, reason, referenceID string, at time.Time) error {
	entry := PointLedgerEntries{
		UserID:      userID,
		Delta:       delta,
		Reason:      reason,
		ReferenceID: referenceID,
		CreatedAt:   at,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

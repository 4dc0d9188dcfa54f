package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/govdir/govdir/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// dbTime normalizes timestamps before they are written or compared so that every stored
// value has the same zone and precision on both sqlite and postgres.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ensureQuota creates the user's quota row if it is missing and applies a reset if a
// boundary has passed since the last one. Must be called inside a transaction.
func ensureQuota(tx *gorm.DB, policy shared.QuotaPolicy, userID string, now time.Time) (*shared.UserQuota, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}
	now = dbTime(now)

	r := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&shared.UserQuota{UserId: userID, Remaining: policy.DailyLimit, LastResetAt: now})
	if r.Error != nil {
		return nil, fmt.Errorf("create quota: tx.Error: %w", r.Error)
	}

	boundary := dbTime(policy.Boundary.MostRecent(now))
	r = tx.Model(&shared.UserQuota{}).
		Where("user_id = ? AND last_reset_at < ?", userID, boundary).
		Updates(map[string]any{
			"remaining":     policy.DailyLimit,
			"last_reset_at": now,
			"version":       gorm.Expr("version + 1"),
		})
	if r.Error != nil {
		return nil, fmt.Errorf("lazy reset: tx.Error: %w", r.Error)
	}

	// The limit may have been lowered since the row was last reset.
	r = tx.Model(&shared.UserQuota{}).
		Where("user_id = ? AND remaining > ?", userID, policy.DailyLimit).
		Updates(map[string]any{
			"remaining": policy.DailyLimit,
			"version":   gorm.Expr("version + 1"),
		})
	if r.Error != nil {
		return nil, fmt.Errorf("clamp: tx.Error: %w", r.Error)
	}

	var quota shared.UserQuota
	if err := tx.Where("user_id = ?", userID).First(&quota).Error; err != nil {
		return nil, fmt.Errorf("load quota: %w", err)
	}
	return &quota, nil
}

// consumeCredit takes one credit with a single conditional update, so concurrent callers
// can never drive the counter below zero. Must be called inside a transaction.
func consumeCredit(tx *gorm.DB, userID string) (int, error) {
	r := tx.Model(&shared.UserQuota{}).
		Where("user_id = ? AND remaining > 0", userID).
		Updates(map[string]any{
			"remaining": gorm.Expr("remaining - 1"),
			"version":   gorm.Expr("version + 1"),
		})
	if r.Error != nil {
		return 0, fmt.Errorf("consume: tx.Error: %w", r.Error)
	}
	if r.RowsAffected == 0 {
		return 0, shared.ErrQuotaExceeded
	}

	var quota shared.UserQuota
	if err := tx.Select("remaining").Where("user_id = ?", userID).First(&quota).Error; err != nil {
		return 0, fmt.Errorf("load quota: %w", err)
	}
	return quota.Remaining, nil
}

// QuotaRemaining returns the user's quota after applying any due reset, creating it with
// a full allowance on first access.
func (db *DB) QuotaRemaining(ctx context.Context, policy shared.QuotaPolicy, userID string, now time.Time) (*shared.UserQuota, error) {
	var quota *shared.UserQuota
	err := db.transaction(ctx, func(tx *gorm.DB) error {
		q, err := ensureQuota(tx, policy, userID, now)
		quota = q
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("db.QuotaRemaining: %w", err)
	}
	return quota, nil
}

// QuotaConsume takes one credit from the user. It returns shared.ErrQuotaExceeded, with
// zero remaining, when there is nothing left to take.
func (db *DB) QuotaConsume(ctx context.Context, policy shared.QuotaPolicy, userID string, now time.Time) (int, error) {
	var remaining int
	err := db.transaction(ctx, func(tx *gorm.DB) error {
		if _, err := ensureQuota(tx, policy, userID, now); err != nil {
			return err
		}
		r, err := consumeCredit(tx, userID)
		remaining = r
		return err
	})
	if errors.Is(err, shared.ErrQuotaExceeded) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("db.QuotaConsume: %w", err)
	}
	return remaining, nil
}

// ResetDueQuotas restores the allowance of every user whose last reset predates the most
// recent boundary. Running it again before the next boundary is a no-op.
func (db *DB) ResetDueQuotas(ctx context.Context, policy shared.QuotaPolicy, now time.Time) (int64, error) {
	now = dbTime(now)
	boundary := dbTime(policy.Boundary.MostRecent(now))
	r := db.WithContext(ctx).Model(&shared.UserQuota{}).
		Where("last_reset_at < ?", boundary).
		Updates(map[string]any{
			"remaining":     policy.DailyLimit,
			"last_reset_at": now,
			"version":       gorm.Expr("version + 1"),
		})
	if r.Error != nil {
		return 0, fmt.Errorf("tx.Error: %w", r.Error)
	}
	return r.RowsAffected, nil
}

func (db *DB) AllQuotas(ctx context.Context) ([]*shared.UserQuota, error) {
	var quotas []*shared.UserQuota
	tx := db.WithContext(ctx).Order("user_id").Find(&quotas)
	if tx.Error != nil {
		return nil, fmt.Errorf("tx.Error: %w", tx.Error)
	}
	return quotas, nil
}

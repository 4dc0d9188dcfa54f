package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/govdir/govdir/shared"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// errLostUnlockRace rolls back a transaction whose unlock record was written first by a
// concurrent request for the same user and contact.
var errLostUnlockRace = errors.New("unlock recorded concurrently")

func findUnlock(tx *gorm.DB, userID, contactID string) (*shared.UnlockRecord, error) {
	var records []*shared.UnlockRecord
	r := tx.Where("user_id = ? AND contact_id = ?", userID, contactID).Limit(1).Find(&records)
	if r.Error != nil {
		return nil, fmt.Errorf("tx.Error: %w", r.Error)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// UnlockContact grants userID permanent visibility of contactID in exchange for one
// credit. Unlocking an already unlocked contact succeeds without charging. The credit and
// the unlock record are written in the same transaction, so either both land or neither.
func (db *DB) UnlockContact(ctx context.Context, policy shared.QuotaPolicy, userID, contactID string, now time.Time) (shared.UnlockResult, error) {
	now = dbTime(now)
	var result shared.UnlockResult
	err := db.transaction(ctx, func(tx *gorm.DB) error {
		result = shared.UnlockResult{}

		var numContacts int64
		if err := tx.Model(&shared.Contact{}).Where("id = ?", contactID).Count(&numContacts).Error; err != nil {
			return fmt.Errorf("count contacts: %w", err)
		}
		if numContacts == 0 {
			return shared.ErrContactNotFound
		}

		quota, err := ensureQuota(tx, policy, userID, now)
		if err != nil {
			return err
		}

		existing, err := findUnlock(tx, userID, contactID)
		if err != nil {
			return err
		}
		if existing != nil {
			result = shared.UnlockResult{Remaining: quota.Remaining, AlreadyUnlocked: true, UnlockedAt: existing.UnlockedAt}
			return nil
		}

		remaining, err := consumeCredit(tx, userID)
		if errors.Is(err, shared.ErrQuotaExceeded) {
			// On postgres the decrement blocks on a concurrent unlock of the same contact and
			// then sees its committed state. That request already paid for this contact.
			existing, findErr := findUnlock(tx, userID, contactID)
			if findErr != nil {
				return findErr
			}
			if existing != nil {
				result = shared.UnlockResult{Remaining: 0, AlreadyUnlocked: true, UnlockedAt: existing.UnlockedAt}
				return nil
			}
			return err
		}
		if err != nil {
			return err
		}

		r := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "contact_id"}},
			DoNothing: true,
		}).Create(&shared.UnlockRecord{UserId: userID, ContactId: contactID, UnlockedAt: now})
		if r.Error != nil {
			return fmt.Errorf("%w: user_id=%s contact_id=%s: %v", shared.ErrQuotaUnlockInconsistency, userID, contactID, r.Error)
		}
		if r.RowsAffected == 0 {
			return errLostUnlockRace
		}

		result = shared.UnlockResult{Remaining: remaining, UnlockedAt: now}
		return nil
	})

	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, errLostUnlockRace):
		// Our credit was rolled back along with the transaction, so report the state the
		// winning request left behind.
		return db.alreadyUnlockedResult(ctx, policy, userID, contactID, now)
	case errors.Is(err, shared.ErrQuotaExceeded), errors.Is(err, shared.ErrContactNotFound):
		return shared.UnlockResult{}, err
	default:
		return shared.UnlockResult{}, fmt.Errorf("db.UnlockContact: %w", err)
	}
}

func (db *DB) alreadyUnlockedResult(ctx context.Context, policy shared.QuotaPolicy, userID, contactID string, now time.Time) (shared.UnlockResult, error) {
	quota, err := db.QuotaRemaining(ctx, policy, userID, now)
	if err != nil {
		return shared.UnlockResult{}, err
	}
	existing, err := findUnlock(db.WithContext(ctx), userID, contactID)
	if err != nil {
		return shared.UnlockResult{}, fmt.Errorf("db.alreadyUnlockedResult: %w", err)
	}
	if existing == nil {
		return shared.UnlockResult{}, fmt.Errorf("%w: lost unlock race for user_id=%s contact_id=%s but no record exists", shared.ErrQuotaUnlockInconsistency, userID, contactID)
	}
	return shared.UnlockResult{Remaining: quota.Remaining, AlreadyUnlocked: true, UnlockedAt: existing.UnlockedAt}, nil
}

// UnlocksForContacts returns when userID unlocked each of the given contacts, keyed by
// contact ID. Contacts that are still locked are absent from the map.
func (db *DB) UnlocksForContacts(ctx context.Context, userID string, contactIDs []string) (map[string]time.Time, error) {
	if len(contactIDs) == 0 {
		return map[string]time.Time{}, nil
	}
	var records []*shared.UnlockRecord
	tx := db.WithContext(ctx).Where("user_id = ? AND contact_id IN ?", userID, contactIDs).Find(&records)
	if tx.Error != nil {
		return nil, fmt.Errorf("tx.Error: %w", tx.Error)
	}
	return lo.SliceToMap(records, func(r *shared.UnlockRecord) (string, time.Time) {
		return r.ContactId, r.UnlockedAt
	}), nil
}

func (db *DB) CountUnlocksSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var n int64
	tx := db.WithContext(ctx).Model(&shared.UnlockRecord{}).
		Where("user_id = ? AND unlocked_at >= ?", userID, dbTime(since)).
		Count(&n)
	if tx.Error != nil {
		return 0, fmt.Errorf("tx.Error: %w", tx.Error)
	}
	return n, nil
}

func (db *DB) CountUnlocksForUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	tx := db.WithContext(ctx).Model(&shared.UnlockRecord{}).Where("user_id = ?", userID).Count(&n)
	if tx.Error != nil {
		return 0, fmt.Errorf("tx.Error: %w", tx.Error)
	}
	return n, nil
}

type unlockCount struct {
	UserId string
	Total  int64
}

// UsageReport summarizes credit usage for every user that has a quota.
func (db *DB) UsageReport(ctx context.Context) ([]shared.UserUsage, error) {
	quotas, err := db.AllQuotas(ctx)
	if err != nil {
		return nil, fmt.Errorf("db.AllQuotas: %w", err)
	}

	var counts []unlockCount
	tx := db.WithContext(ctx).Model(&shared.UnlockRecord{}).
		Select("user_id, COUNT(*) AS total").
		Group("user_id").
		Scan(&counts)
	if tx.Error != nil {
		return nil, fmt.Errorf("tx.Error: %w", tx.Error)
	}
	totals := lo.SliceToMap(counts, func(c unlockCount) (string, int64) {
		return c.UserId, c.Total
	})

	return lo.Map(quotas, func(q *shared.UserQuota, _ int) shared.UserUsage {
		return shared.UserUsage{
			UserId:       q.UserId,
			Remaining:    q.Remaining,
			LastResetAt:  q.LastResetAt,
			TotalUnlocks: totals[q.UserId],
		}
	}), nil
}

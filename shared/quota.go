package shared

import (
	"errors"
	"fmt"
	"time"
)

const DefaultDailyLimit = 50

var (
	// ErrQuotaExceeded is returned when a credit is requested from a user that has none left.
	ErrQuotaExceeded = errors.New("daily unlock limit reached")
	// ErrContactNotFound is returned when unlocking a contact id that does not exist.
	ErrContactNotFound = errors.New("contact not found")
	// ErrQuotaUnlockInconsistency means a credit was taken but the unlock could not be recorded.
	// The surrounding transaction is rolled back, but this should never happen and must be
	// reported loudly.
	ErrQuotaUnlockInconsistency = errors.New("credit consumed without recording the unlock")
)

// UserQuota is the per-user credit counter. Version is bumped on every mutation so that
// writers can detect concurrent updates.
type UserQuota struct {
	UserId      string    `json:"user_id" gorm:"primaryKey"`
	Remaining   int       `json:"remaining" gorm:"not null"`
	LastResetAt time.Time `json:"last_reset_at" gorm:"not null; index"`
	Version     int64     `json:"-" gorm:"not null; default:0"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UnlockRecord is the permanent grant of one contact's details to one user.
type UnlockRecord struct {
	UserId     string    `json:"user_id" gorm:"not null; uniqueIndex:unlock_user_contact_idx"`
	ContactId  string    `json:"contact_id" gorm:"not null; uniqueIndex:unlock_user_contact_idx"`
	UnlockedAt time.Time `json:"unlocked_at" gorm:"not null; index"`
}

// QuotaPolicy is the daily allowance together with the instant it gets restored.
type QuotaPolicy struct {
	DailyLimit int
	Boundary   ResetBoundary
}

func DefaultQuotaPolicy() QuotaPolicy {
	return QuotaPolicy{DailyLimit: DefaultDailyLimit, Boundary: MidnightUTC()}
}

// ResetBoundary is a time of day, in a fixed location, at which credits are restored.
type ResetBoundary struct {
	Hour     int
	Minute   int
	Location *time.Location
}

func MidnightUTC() ResetBoundary {
	return ResetBoundary{Location: time.UTC}
}

// ParseResetBoundary parses a "HH:MM" time of day in the named IANA timezone.
func ParseResetBoundary(clock, timezone string) (ResetBoundary, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return ResetBoundary{}, fmt.Errorf("invalid reset time %#v, expected HH:MM: %w", clock, err)
	}
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return ResetBoundary{}, fmt.Errorf("invalid reset timezone %#v: %w", timezone, err)
	}
	return ResetBoundary{Hour: t.Hour(), Minute: t.Minute(), Location: loc}, nil
}

func (b ResetBoundary) location() *time.Location {
	if b.Location == nil {
		return time.UTC
	}
	return b.Location
}

func (b ResetBoundary) onDay(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, b.Hour, b.Minute, 0, 0, b.location())
}

// MostRecent returns the latest boundary instant that is not after now.
func (b ResetBoundary) MostRecent(now time.Time) time.Time {
	local := now.In(b.location())
	y, m, d := local.Date()
	boundary := b.onDay(y, m, d)
	if boundary.After(now) {
		boundary = b.onDay(y, m, d-1)
	}
	return boundary
}

// NextAfter returns the first boundary instant strictly after t.
func (b ResetBoundary) NextAfter(t time.Time) time.Time {
	local := t.In(b.location())
	y, m, d := local.Date()
	boundary := b.onDay(y, m, d)
	if !boundary.After(t) {
		boundary = b.onDay(y, m, d+1)
	}
	return boundary
}

// IsDue reports whether a boundary has passed since lastResetAt.
func (b ResetBoundary) IsDue(lastResetAt, now time.Time) bool {
	return lastResetAt.Before(b.MostRecent(now))
}

func (b ResetBoundary) String() string {
	return fmt.Sprintf("%02d:%02d %s", b.Hour, b.Minute, b.location())
}

type UnlockResult struct {
	Remaining       int       `json:"remaining"`
	AlreadyUnlocked bool      `json:"already_unlocked"`
	UnlockedAt      time.Time `json:"unlocked_at"`
}

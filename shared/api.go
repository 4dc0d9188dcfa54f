package shared

import "time"

type CreditsResponse struct {
	Remaining   int       `json:"remaining"`
	DailyLimit  int       `json:"daily_limit"`
	NextResetAt time.Time `json:"next_reset_at"`
}

type UnlockResponse struct {
	Success         bool       `json:"success"`
	Remaining       int        `json:"remaining"`
	AlreadyUnlocked bool       `json:"already_unlocked,omitempty"`
	UnlockedAt      *time.Time `json:"unlocked_at,omitempty"`
	Error           string     `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type AgenciesResponse struct {
	Agencies   []*Agency  `json:"agencies"`
	Pagination Pagination `json:"pagination"`
}

type ContactsResponse struct {
	Contacts   []ContactView `json:"contacts"`
	Pagination Pagination    `json:"pagination"`
}

type UsageStats struct {
	Count     int64 `json:"count"`
	Total     int   `json:"total"`
	Remaining int   `json:"remaining"`
}

type DashboardStats struct {
	Contacts int64      `json:"contacts"`
	Agencies int64      `json:"agencies"`
	Usage    UsageStats `json:"usage"`
}

type DailyResetResponse struct {
	UsersReset int64     `json:"users_reset"`
	ResetDate  time.Time `json:"reset_date"`
}

type ProfileUpdate struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	ImageUrl  string `json:"image_url"`
	Bio       string `json:"bio"`
	Phone     string `json:"phone"`
}

// UserUsage is one row of the internal usage report.
type UserUsage struct {
	UserId       string
	Remaining    int
	LastResetAt  time.Time
	TotalUnlocks int64
}

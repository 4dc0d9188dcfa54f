package shared

import "time"

type AgencyType string

const (
	AgencyTypeCity   AgencyType = "City"
	AgencyTypeCounty AgencyType = "County"
)

type Agency struct {
	Id         string     `json:"id" yaml:"id" gorm:"primaryKey"`
	Name       string     `json:"name" yaml:"name" gorm:"not null; index"`
	State      string     `json:"state" yaml:"state" gorm:"index"`
	StateCode  string     `json:"state_code" yaml:"state_code"`
	Type       AgencyType `json:"type" yaml:"type" gorm:"index"`
	Population int        `json:"population" yaml:"population"`
	Website    string     `json:"website" yaml:"website"`
	County     string     `json:"county" yaml:"county"`
	CreatedAt  time.Time  `json:"created_at" yaml:"-"`
}

type Contact struct {
	Id         string    `json:"id" gorm:"primaryKey"`
	AgencyId   string    `json:"agency_id" gorm:"not null; index"`
	Name       string    `json:"name" gorm:"not null"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Role       string    `json:"role"`
	Department string    `json:"department"`
	CreatedAt  time.Time `json:"created_at"`
}

// ContactView is a contact as seen by one user. Email and Phone are blank until that
// user has unlocked the contact.
type ContactView struct {
	Contact
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

func NewContactView(c Contact, unlockedAt *time.Time) ContactView {
	v := ContactView{Contact: c, UnlockedAt: unlockedAt}
	if unlockedAt == nil {
		v.Email = ""
		v.Phone = ""
	} else {
		v.Unlocked = true
	}
	return v
}

type UserProfile struct {
	UserId    string    `json:"user_id" gorm:"primaryKey"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	ImageUrl  string    `json:"image_url"`
	Bio       string    `json:"bio"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AgencyFilter struct {
	Search string
	State  string
	Type   AgencyType
	Page   Page
}

type ContactFilter struct {
	AgencyId string
	Search   string
	Page     Page
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Page is a 1-indexed page request.
type Page struct {
	Number int
	Limit  int
}

func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Number - 1) * p.Limit
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

func NewPagination(p Page, total int64) Pagination {
	p = p.Normalize()
	pages := total / int64(p.Limit)
	if total%int64(p.Limit) != 0 {
		pages++
	}
	return Pagination{Page: p.Number, Limit: p.Limit, Total: total, Pages: pages}
}

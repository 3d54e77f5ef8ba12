package models

import (
	"time"
)

// Role is the back-office role carried in the caller's token and stored on the account.
type Role string

const (
	RoleUser      Role = "user"
	RoleManager   Role = "manager"
	RoleCEO       Role = "ceo"
	RoleDeveloper Role = "developer"
)

var roleRank = map[Role]int{
	RoleUser:      0,
	RoleManager:   1,
	RoleCEO:       2,
	RoleDeveloper: 3,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r ranks at or above min. Unknown roles rank below everything.
func (r Role) AtLeast(min Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	return rank >= roleRank[min]
}

// UserType determines fare-discount eligibility and therefore whether ID review applies.
type UserType string

const (
	UserTypeRegular UserType = "regular"
	UserTypeStudent UserType = "student"
	UserTypeSenior  UserType = "senior"
	UserTypePWD     UserType = "pwd"
)

func (t UserType) Valid() bool {
	switch t {
	case UserTypeRegular, UserTypeStudent, UserTypeSenior, UserTypePWD:
		return true
	}
	return false
}

// UserAccount is a commuter account keyed by the identity provider's uid.
type UserAccount struct {
	UID              string     `gorm:"primaryKey;size:255" json:"uid"`
	Email            string     `gorm:"size:255" json:"email"`
	DisplayName      string     `gorm:"size:255" json:"display_name"`
	PhotoURL         string     `json:"photo_url"`
	Role             Role       `gorm:"size:50;not null;default:user" json:"role"`
	Birthday         *time.Time `gorm:"type:date" json:"birthday"`
	UserType         UserType   `gorm:"size:20;not null;default:regular;index" json:"user_type"`
	IDVerified       bool       `gorm:"not null;default:false" json:"id_verified"`
	IDDocumentURL    *string    `json:"id_document_url"`
	VerificationNote string     `json:"verification_note"`
	Points           int        `gorm:"not null;default:0" json:"points"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (UserAccount) TableName() string {
	return "users"
}

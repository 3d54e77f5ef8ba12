package models

import "time"

// VerificationAction is an ID review decision.
type VerificationAction string

const (
	ActionApprove   VerificationAction = "approve"
	ActionReject    VerificationAction = "reject"
	ActionReapprove VerificationAction = "re-approve"
)

func (a VerificationAction) Valid() bool {
	switch a {
	case ActionApprove, ActionReject, ActionReapprove:
		return true
	}
	return false
}

// VerificationRecord is an append-only ledger row describing one review decision.
// The account columns are a snapshot taken before the decision was applied.
type VerificationRecord struct {
	ID            uint               `gorm:"primaryKey;autoIncrement" json:"id"`
	UID           string             `gorm:"size:255;not null;index" json:"uid"`
	User          *UserAccount       `gorm:"foreignKey:UID;references:UID;constraint:OnDelete:CASCADE" json:"-"`
	Email         string             `gorm:"size:255" json:"email"`
	DisplayName   string             `gorm:"size:255" json:"display_name"`
	UserType      UserType           `gorm:"size:20" json:"user_type"`
	IDDocumentURL *string            `json:"id_document_url"`
	Action        VerificationAction `gorm:"size:20;not null;index" json:"action"`
	Verified      bool               `gorm:"not null" json:"verified"`
	Note          string             `gorm:"type:text" json:"note"`
	VerifiedAt    time.Time          `gorm:"not null;index" json:"verified_at"`
}

func (VerificationRecord) TableName() string {
	return "verification_history"
}

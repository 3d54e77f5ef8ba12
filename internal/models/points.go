package models

import (
	"time"

	"github.com/google/uuid"
)

const PointsTypeTripReward = "trip_reward"

// PointsTransaction records one credit to an account's points balance.
type PointsTransaction struct {
	BaseModel
	UserUID      string     `gorm:"size:255;not null;index" json:"user_uid"`
	TripID       *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"trip_id"`
	Type         string     `gorm:"size:32;not null" json:"type"`
	Amount       int        `gorm:"not null" json:"amount"`
	BalanceAfter int        `gorm:"not null" json:"balance_after"`
	OccurredAt   time.Time  `gorm:"not null;index" json:"occurred_at"`
}

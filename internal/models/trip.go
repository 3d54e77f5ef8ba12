package models

import (
	"time"
)

type TripStatus string

const (
	TripStatusActive    TripStatus = "active"
	TripStatusCompleted TripStatus = "completed"
)

// Trip is a single commuter journey. It starts active and is completed at most once.
type Trip struct {
	BaseModel
	UserUID      string       `gorm:"size:255;not null;index" json:"user_uid"`
	User         *UserAccount `gorm:"foreignKey:UserUID;references:UID;constraint:OnDelete:CASCADE" json:"-"`
	FromLocation string       `gorm:"not null" json:"from_location"`
	ToLocation   string       `gorm:"not null" json:"to_location"`
	RouteName    string       `json:"route_name"`
	TransitType  string       `gorm:"size:50" json:"transit_type"`
	DistanceKm   float64      `json:"distance_km"`
	FarePaid     float64      `json:"fare_paid"`
	Status       TripStatus   `gorm:"size:20;not null;index" json:"status"`
	StartedAt    time.Time    `gorm:"not null" json:"started_at"`
	CompletedAt  *time.Time   `json:"completed_at"`
}

func (Trip) TableName() string {
	return "user_trips"
}

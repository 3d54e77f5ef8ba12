package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/kommyut/internal/apperr"
	"github.com/example/kommyut/internal/models"
)

// CreateTrip inserts a new trip. The owning account must exist.
func (s *Store) CreateTrip(ctx context.Context, trip *models.Trip) error {
	var count int64
	if err := s.conn(ctx).Model(&models.UserAccount{}).Where("uid = ?", trip.UserUID).Count(&count).Error; err != nil {
		return apperr.FromStorage("check trip owner", err)
	}
	if count == 0 {
		return apperr.NotFound("user %s not found", trip.UserUID)
	}
	if err := s.conn(ctx).Create(trip).Error; err != nil {
		return apperr.FromStorage("create trip", err)
	}
	return nil
}

// GetTrip loads a trip in any state.
func (s *Store) GetTrip(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	var trip models.Trip
	if err := s.conn(ctx).First(&trip, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("trip %s not found", id)
		}
		return nil, apperr.FromStorage("get trip", err)
	}
	return &trip, nil
}

// GetActiveTrip loads a trip only while it is still active.
func (s *Store) GetActiveTrip(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	var trip models.Trip
	err := s.conn(ctx).First(&trip, "id = ? AND status = ?", id, models.TripStatusActive).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("no active trip %s", id)
		}
		return nil, apperr.FromStorage("get active trip", err)
	}
	return &trip, nil
}

// SetTripCompletedIfActive is a compare-and-set on status: it completes the trip only
// if it is still active at write time. Losers of a race get a Conflict.
func (s *Store) SetTripCompletedIfActive(ctx context.Context, id uuid.UUID, completedAt time.Time) (*models.Trip, error) {
	res := s.conn(ctx).Model(&models.Trip{}).
		Where("id = ? AND status = ?", id, models.TripStatusActive).
		Updates(map[string]any{
			"status":       models.TripStatusCompleted,
			"completed_at": completedAt,
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return nil, apperr.FromStorage("complete trip", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.Conflict("trip not found or already completed")
	}

	var trip models.Trip
	if err := s.conn(ctx).First(&trip, "id = ?", id).Error; err != nil {
		return nil, apperr.FromStorage("reload trip", err)
	}
	return &trip, nil
}

// ListTrips returns a user's trips in one status, newest first.
func (s *Store) ListTrips(ctx context.Context, uid string, status models.TripStatus, limit int) ([]models.Trip, error) {
	order := "started_at desc"
	if status == models.TripStatusCompleted {
		order = "completed_at desc"
	}

	var trips []models.Trip
	err := s.conn(ctx).
		Where("user_uid = ? AND status = ?", uid, status).
		Order(order).
		Limit(limit).
		Find(&trips).Error
	if err != nil {
		return nil, apperr.FromStorage("list trips", err)
	}
	return trips, nil
}

package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/kommyut/internal/apperr"
	"github.com/example/kommyut/internal/events"
	"github.com/example/kommyut/internal/metrics"
	"github.com/example/kommyut/internal/models"
)

// RewardPoints is credited to the rider for every completed trip.
const RewardPoints = 10

// TripStore is the storage the trip lifecycle needs.
type TripStore interface {
	CreateTrip(ctx context.Context, trip *models.Trip) error
	GetActiveTrip(ctx context.Context, id uuid.UUID) (*models.Trip, error)
	SetTripCompletedIfActive(ctx context.Context, id uuid.UUID, completedAt time.Time) (*models.Trip, error)
	IncrementPoints(ctx context.Context, uid string, delta int, tripID *uuid.UUID) (int, error)
}

// TripService starts trips and completes them, crediting points on completion.
type TripService struct {
	store     TripStore
	publisher events.Publisher
	log       *zap.SugaredLogger
	now       func() time.Time
}

// NewTripService creates a new TripService.
func NewTripService(store TripStore, publisher events.Publisher, log *zap.SugaredLogger) *TripService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &TripService{
		store:     store,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// StartTripInput carries the fields of a new trip.
type StartTripInput struct {
	UserUID      string
	FromLocation string
	ToLocation   string
	RouteName    string
	TransitType  string
	DistanceKm   float64
	FarePaid     float64
}

// StartTrip opens a new active trip for an existing rider.
func (s *TripService) StartTrip(ctx context.Context, in StartTripInput) (*models.Trip, error) {
	if strings.TrimSpace(in.UserUID) == "" || strings.TrimSpace(in.FromLocation) == "" || strings.TrimSpace(in.ToLocation) == "" {
		return nil, apperr.InvalidArgument("user_uid, from_location and to_location are required")
	}
	if in.DistanceKm < 0 || in.FarePaid < 0 {
		return nil, apperr.InvalidArgument("distance_km and fare_paid must not be negative")
	}

	trip := &models.Trip{
		UserUID:      in.UserUID,
		FromLocation: strings.TrimSpace(in.FromLocation),
		ToLocation:   strings.TrimSpace(in.ToLocation),
		RouteName:    in.RouteName,
		TransitType:  in.TransitType,
		DistanceKm:   in.DistanceKm,
		FarePaid:     in.FarePaid,
		Status:       models.TripStatusActive,
		StartedAt:    s.now(),
	}
	if err := s.store.CreateTrip(ctx, trip); err != nil {
		return nil, err
	}

	s.log.Infow("trip started", "trip_id", trip.ID, "uid", trip.UserUID)
	return trip, nil
}

// CompleteTrip closes an active trip exactly once and then credits the reward.
// The reward and the event are best-effort: the returned trip reflects the
// committed completion even when they fail.
func (s *TripService) CompleteTrip(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	trip, err := Commit(ctx, s.log,
		func(ctx context.Context) (*models.Trip, error) {
			active, err := s.store.GetActiveTrip(ctx, id)
			if err != nil {
				if errors.Is(err, apperr.ErrNotFound) {
					return nil, apperr.Conflict("trip not found or already completed")
				}
				return nil, err
			}

			completedAt := s.now()
			if completedAt.Before(active.StartedAt) {
				completedAt = active.StartedAt
			}
			return s.store.SetTripCompletedIfActive(ctx, id, completedAt)
		},
		Auxiliary[*models.Trip]{
			Name: "trip_reward_points",
			Run: func(ctx context.Context, trip *models.Trip) error {
				balance, err := s.store.IncrementPoints(ctx, trip.UserUID, RewardPoints, &trip.ID)
				if err != nil {
					return err
				}
				s.log.Infow("trip reward credited", "trip_id", trip.ID, "uid", trip.UserUID, "points", RewardPoints, "balance", balance)
				return nil
			},
			Tolerate: func(err error) bool {
				return errors.Is(err, apperr.ErrNotFound)
			},
		},
		Auxiliary[*models.Trip]{
			Name: "trip_completed_event",
			Run: func(ctx context.Context, trip *models.Trip) error {
				return s.publisher.Publish(ctx, events.New(events.TypeTripCompleted, trip.ID.String(), trip))
			},
		},
	)
	if err != nil {
		result := "error"
		if errors.Is(err, apperr.ErrConflict) {
			result = "conflict"
		}
		metrics.TripCompletions.WithLabelValues(result).Inc()
		return nil, err
	}

	metrics.TripCompletions.WithLabelValues("completed").Inc()
	s.log.Infow("trip completed", "trip_id", trip.ID, "uid", trip.UserUID)
	return trip, nil
}

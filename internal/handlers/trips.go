package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/kommyut/internal/apperr"
	"github.com/example/kommyut/internal/middleware"
	"github.com/example/kommyut/internal/models"
	"github.com/example/kommyut/internal/services"
	"github.com/example/kommyut/internal/utils"
)

const completedTripsLimit = 50

// TripReader is what the trip endpoints read directly.
type TripReader interface {
	GetTrip(ctx context.Context, id uuid.UUID) (*models.Trip, error)
	ListTrips(ctx context.Context, uid string, status models.TripStatus, limit int) ([]models.Trip, error)
}

// TripHandler manages the trip lifecycle endpoints.
type TripHandler struct {
	trips   TripReader
	service *services.TripService
	timeout time.Duration
}

// NewTripHandler constructs TripHandler.
func NewTripHandler(trips TripReader, service *services.TripService, timeout time.Duration) *TripHandler {
	return &TripHandler{trips: trips, service: service, timeout: timeout}
}

type startTripRequest struct {
	UserUID      string  `json:"user_uid" validate:"required,max=255"`
	FromLocation string  `json:"from_location" validate:"required"`
	ToLocation   string  `json:"to_location" validate:"required"`
	RouteName    string  `json:"route_name" validate:"max=255"`
	TransitType  string  `json:"transit_type" validate:"max=50"`
	DistanceKm   float64 `json:"distance_km" validate:"gte=0"`
	FarePaid     float64 `json:"fare_paid" validate:"gte=0"`
}

// StartTrip opens an active trip for the caller.
func (h *TripHandler) StartTrip(c *fiber.Ctx) error {
	var req startTripRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}
	if err := authorizeSubject(c, req.UserUID); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	trip, err := h.service.StartTrip(ctx, services.StartTripInput{
		UserUID:      req.UserUID,
		FromLocation: req.FromLocation,
		ToLocation:   req.ToLocation,
		RouteName:    req.RouteName,
		TransitType:  req.TransitType,
		DistanceKm:   req.DistanceKm,
		FarePaid:     req.FarePaid,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": trip})
}

// ListActiveTrips returns the user's trips still in progress.
func (h *TripHandler) ListActiveTrips(c *fiber.Ctx) error {
	return h.listTrips(c, models.TripStatusActive, -1)
}

// ListCompletedTrips returns the user's most recent completed trips.
func (h *TripHandler) ListCompletedTrips(c *fiber.Ctx) error {
	return h.listTrips(c, models.TripStatusCompleted, completedTripsLimit)
}

// listTrips serves one status for the uid path param. A negative limit means no limit.
func (h *TripHandler) listTrips(c *fiber.Ctx, status models.TripStatus, limit int) error {
	uid := c.Params("uid")
	if err := authorizeSubject(c, uid); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	trips, err := h.trips.ListTrips(ctx, uid, status, limit)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": trips})
}

// CompleteTrip closes an active trip and credits the rider.
func (h *TripHandler) CompleteTrip(c *fiber.Ctx) error {
	caller, ok := middleware.GetCurrentCaller(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperr.InvalidArgument("invalid trip id")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	trip, err := h.trips.GetTrip(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Conflict("trip not found or already completed")
		}
		return err
	}
	if !caller.CanAccess(trip.UserUID) {
		return apperr.Forbidden("cannot complete another user's trip")
	}

	completed, err := h.service.CompleteTrip(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "trip completed", "data": completed})
}

package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/kommyut/internal/apperr"
	"github.com/example/kommyut/internal/middleware"
	"github.com/example/kommyut/internal/models"
	"github.com/example/kommyut/internal/services"
	"github.com/example/kommyut/internal/store"
	"github.com/example/kommyut/internal/utils"
)

// UserStore is what the user endpoints read and write directly.
type UserStore interface {
	GetUserAccount(ctx context.Context, uid string) (*models.UserAccount, error)
	UpsertUserAccount(ctx context.Context, in store.UserUpsert) (*models.UserAccount, error)
	ListPendingVerification(ctx context.Context) ([]models.UserAccount, error)
	ListVerificationRecords(ctx context.Context, filter store.LedgerFilter, page store.Page) ([]models.VerificationRecord, int64, error)
	ListPointsTransactions(ctx context.Context, uid string, page store.Page) ([]models.PointsTransaction, int64, error)
}

// UserHandler manages account and ID verification endpoints.
type UserHandler struct {
	store        UserStore
	verification *services.VerificationService
	timeout      time.Duration
	log          *zap.SugaredLogger
}

// NewUserHandler constructs UserHandler.
func NewUserHandler(store UserStore, verification *services.VerificationService, timeout time.Duration, log *zap.SugaredLogger) *UserHandler {
	return &UserHandler{store: store, verification: verification, timeout: timeout, log: log}
}

type upsertUserRequest struct {
	UID           string  `json:"uid" validate:"required,max=255"`
	Email         string  `json:"email" validate:"omitempty,email,max=255"`
	DisplayName   string  `json:"display_name" validate:"max=255"`
	PhotoURL      string  `json:"photo_url" validate:"omitempty,url"`
	Role          *string `json:"role" validate:"omitempty,oneof=user manager ceo developer"`
	Birthday      *string `json:"birthday" validate:"omitempty,datetime=2006-01-02"`
	UserType      *string `json:"user_type" validate:"omitempty,oneof=regular student senior pwd"`
	IDVerified    *bool   `json:"id_verified"`
	IDDocumentURL *string `json:"id_document_url" validate:"omitempty,url"`
}

// UpsertUser creates the caller's account on first sign-in or refreshes it.
func (h *UserHandler) UpsertUser(c *fiber.Ctx) error {
	caller, ok := middleware.GetCurrentCaller(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req upsertUserRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}

	if req.UID != caller.UID && !caller.Role.AtLeast(models.RoleDeveloper) {
		return apperr.Forbidden("cannot modify another user's account")
	}
	if req.Role != nil && !caller.Role.AtLeast(models.RoleDeveloper) {
		return apperr.Forbidden("only developers can assign roles")
	}
	if req.IDVerified != nil && !caller.Role.AtLeast(models.RoleManager) {
		return apperr.Forbidden("verification status is set through the review workflow")
	}

	in := store.UserUpsert{
		UID:           req.UID,
		Email:         req.Email,
		DisplayName:   req.DisplayName,
		PhotoURL:      req.PhotoURL,
		IDVerified:    req.IDVerified,
		IDDocumentURL: req.IDDocumentURL,
		RequireReview: !caller.Role.AtLeast(models.RoleManager),
	}
	if req.Role != nil {
		role := models.Role(*req.Role)
		in.Role = &role
	}
	if req.UserType != nil {
		userType := models.UserType(*req.UserType)
		in.UserType = &userType
	}
	if req.Birthday != nil {
		birthday, err := time.Parse("2006-01-02", *req.Birthday)
		if err != nil {
			return apperr.InvalidArgument("birthday must be YYYY-MM-DD")
		}
		in.Birthday = &birthday
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	user, err := h.store.UpsertUserAccount(ctx, in)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": user})
}

// GetUser returns one account to its owner or to staff.
func (h *UserHandler) GetUser(c *fiber.Ctx) error {
	uid := c.Params("uid")
	if err := authorizeSubject(c, uid); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	user, err := h.store.GetUserAccount(ctx, uid)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": user})
}

// ListPendingVerification returns accounts waiting for ID review.
func (h *UserHandler) ListPendingVerification(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	users, err := h.store.ListPendingVerification(ctx)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": users})
}

// ListVerificationHistory returns ledger rows, newest first.
func (h *UserHandler) ListVerificationHistory(c *fiber.Ctx) error {
	filter := store.LedgerFilter{
		UID:    c.Query("uid"),
		Action: models.VerificationAction(c.Query("action")),
	}
	if filter.Action != "" && !filter.Action.Valid() {
		return apperr.InvalidArgument("unknown action filter %q", filter.Action)
	}
	p := utils.ParsePagination(c)

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	records, total, err := h.store.ListVerificationRecords(ctx, filter, store.Page{Limit: p.Limit, Offset: p.Offset})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": records, "pagination": p.Meta(total)})
}

// ListPoints returns the account's points balance and credit history.
func (h *UserHandler) ListPoints(c *fiber.Ctx) error {
	uid := c.Params("uid")
	if err := authorizeSubject(c, uid); err != nil {
		return err
	}
	p := utils.ParsePagination(c)

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	user, err := h.store.GetUserAccount(ctx, uid)
	if err != nil {
		return err
	}
	items, total, err := h.store.ListPointsTransactions(ctx, uid, store.Page{Limit: p.Limit, Offset: p.Offset})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"points":       user.Points,
			"transactions": items,
		},
		"pagination": p.Meta(total),
	})
}

type verifyRequest struct {
	Action string  `json:"action" validate:"required,oneof=approve reject re-approve"`
	Note   *string `json:"note" validate:"omitempty,max=2000"`
}

var verifyMessages = map[models.VerificationAction]string{
	models.ActionApprove:   "ID verified successfully",
	models.ActionReapprove: "ID re-approved successfully",
	models.ActionReject:    "ID rejected, user reset to regular",
}

// VerifyUser applies an ID review decision.
func (h *UserHandler) VerifyUser(c *fiber.Ctx) error {
	var req verifyRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	action := models.VerificationAction(req.Action)
	user, err := h.verification.Decide(ctx, services.DecideInput{
		UID:    c.Params("uid"),
		Action: action,
		Note:   req.Note,
	})
	if err != nil {
		return err
	}

	if caller, ok := middleware.GetCurrentCaller(c); ok {
		h.log.Infow("verification reviewed", "reviewer", caller.UID, "uid", user.UID, "action", action)
	}

	return c.JSON(fiber.Map{"success": true, "message": verifyMessages[action], "data": user})
}

func authorizeSubject(c *fiber.Ctx, uid string) error {
	caller, ok := middleware.GetCurrentCaller(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	if !caller.CanAccess(uid) {
		return apperr.Forbidden("cannot access another user's data")
	}
	return nil
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/kommyut/internal/apperr"
	"github.com/example/kommyut/internal/models"
)

// GetUserAccount loads an account. Inside a transaction the row is locked for update.
func (s *Store) GetUserAccount(ctx context.Context, uid string) (*models.UserAccount, error) {
	var user models.UserAccount
	if err := s.lockingConn(ctx).First(&user, "uid = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user %s not found", uid)
		}
		return nil, apperr.FromStorage("get user", err)
	}
	return &user, nil
}

// UpdateUserAccount applies column updates to one account and returns the updated row.
func (s *Store) UpdateUserAccount(ctx context.Context, uid string, fields map[string]any) (*models.UserAccount, error) {
	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["updated_at"] = time.Now()

	res := s.conn(ctx).Model(&models.UserAccount{}).Where("uid = ?", uid).Updates(updates)
	if res.Error != nil {
		return nil, apperr.FromStorage("update user", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("user %s not found", uid)
	}

	var user models.UserAccount
	if err := s.conn(ctx).First(&user, "uid = ?", uid).Error; err != nil {
		return nil, apperr.FromStorage("reload user", err)
	}
	return &user, nil
}

// UserUpsert carries sign-in profile data. Nil pointers leave stored values untouched.
type UserUpsert struct {
	UID           string
	Email         string
	DisplayName   string
	PhotoURL      string
	Role          *models.Role
	Birthday      *time.Time
	UserType      *models.UserType
	IDVerified    *bool
	IDDocumentURL *string
	// RequireReview clears id_verified when the update changes user_type or
	// id_document_url, sending the account back to pending verification.
	RequireReview bool
}

// UpsertUserAccount creates the account on first sign-in or refreshes its profile fields.
func (s *Store) UpsertUserAccount(ctx context.Context, in UserUpsert) (*models.UserAccount, error) {
	var out *models.UserAccount
	err := s.InTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.GetUserAccount(ctx, in.UID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}

		if existing == nil {
			user := newUserAccount(in)
			created, err := s.insertUserIfAbsent(ctx, &user)
			if err != nil {
				return err
			}
			if created {
				out = &user
				return nil
			}
			// a concurrent sign-in inserted the row first
			if existing, err = s.GetUserAccount(ctx, in.UID); err != nil {
				return err
			}
		}

		out, err = s.UpdateUserAccount(ctx, in.UID, upsertFields(existing, in))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func newUserAccount(in UserUpsert) models.UserAccount {
	user := models.UserAccount{
		UID:           in.UID,
		Email:         in.Email,
		DisplayName:   in.DisplayName,
		PhotoURL:      in.PhotoURL,
		Role:          models.RoleUser,
		Birthday:      in.Birthday,
		UserType:      models.UserTypeRegular,
		IDDocumentURL: in.IDDocumentURL,
	}
	if in.Role != nil {
		user.Role = *in.Role
	}
	if in.UserType != nil {
		user.UserType = *in.UserType
	}
	if in.IDVerified != nil {
		user.IDVerified = *in.IDVerified
	}
	return user
}

// insertUserIfAbsent reports false without error when the uid already exists.
func (s *Store) insertUserIfAbsent(ctx context.Context, user *models.UserAccount) (bool, error) {
	res := s.conn(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "uid"}}, DoNothing: true}).
		Create(user)
	if res.Error != nil {
		return false, apperr.FromStorage("create user", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func upsertFields(existing *models.UserAccount, in UserUpsert) map[string]any {
	fields := map[string]any{
		"email":        in.Email,
		"display_name": in.DisplayName,
		"photo_url":    in.PhotoURL,
	}
	if in.Role != nil {
		fields["role"] = *in.Role
	}
	if in.Birthday != nil {
		fields["birthday"] = *in.Birthday
	}
	if in.UserType != nil {
		fields["user_type"] = *in.UserType
	}
	if in.IDVerified != nil {
		fields["id_verified"] = *in.IDVerified
	}
	if in.IDDocumentURL != nil {
		fields["id_document_url"] = *in.IDDocumentURL
	}

	if in.RequireReview && existing.IDVerified {
		typeChanged := in.UserType != nil && *in.UserType != existing.UserType
		docChanged := in.IDDocumentURL != nil && (existing.IDDocumentURL == nil || *in.IDDocumentURL != *existing.IDDocumentURL)
		if typeChanged || docChanged {
			fields["id_verified"] = false
		}
	}
	return fields
}

// ListPendingVerification returns discount-category accounts with an unreviewed document.
func (s *Store) ListPendingVerification(ctx context.Context) ([]models.UserAccount, error) {
	var users []models.UserAccount
	err := s.conn(ctx).
		Where("id_document_url IS NOT NULL AND id_verified = ? AND user_type <> ?", false, models.UserTypeRegular).
		Order("updated_at desc").
		Find(&users).Error
	if err != nil {
		return nil, apperr.FromStorage("list pending verification", err)
	}
	return users, nil
}

// IncrementPoints credits delta points to uid and records the credit. A trip can be
// credited at most once.
func (s *Store) IncrementPoints(ctx context.Context, uid string, delta int, tripID *uuid.UUID) (int, error) {
	var balance int
	err := s.InTransaction(ctx, func(ctx context.Context) error {
		res := s.conn(ctx).Model(&models.UserAccount{}).
			Where("uid = ?", uid).
			Updates(map[string]any{
				"points":     gorm.Expr("COALESCE(points, 0) + ?", delta),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return apperr.FromStorage("increment points", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("user %s not found", uid)
		}

		if err := s.conn(ctx).Model(&models.UserAccount{}).
			Where("uid = ?", uid).
			Pluck("points", &balance).Error; err != nil {
			return apperr.FromStorage("read points", err)
		}

		entry := models.PointsTransaction{
			UserUID:      uid,
			TripID:       tripID,
			Type:         models.PointsTypeTripReward,
			Amount:       delta,
			BalanceAfter: balance,
			OccurredAt:   time.Now(),
		}
		if err := s.conn(ctx).Create(&entry).Error; err != nil {
			return apperr.FromStorage("record points transaction", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// ListPointsTransactions returns the newest credits first with the total count.
func (s *Store) ListPointsTransactions(ctx context.Context, uid string, page Page) ([]models.PointsTransaction, int64, error) {
	query := s.conn(ctx).Model(&models.PointsTransaction{}).Where("user_uid = ?", uid).Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperr.FromStorage("count points transactions", err)
	}

	var items []models.PointsTransaction
	if err := query.Order("occurred_at desc").
		Limit(page.Limit).Offset(page.Offset).
		Find(&items).Error; err != nil {
		return nil, 0, apperr.FromStorage("list points transactions", err)
	}
	return items, total, nil
}

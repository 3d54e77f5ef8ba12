package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/example/kommyut/internal/apperr"
	"github.com/example/kommyut/internal/models"
)

// AppendVerificationRecord inserts a ledger row. There is no update or delete counterpart.
func (s *Store) AppendVerificationRecord(ctx context.Context, rec *models.VerificationRecord) (*models.VerificationRecord, error) {
	if err := s.conn(ctx).Create(rec).Error; err != nil {
		return nil, apperr.FromStorage("append verification record", err)
	}
	return rec, nil
}

// LatestVerificationRecord returns the most recent decision for uid.
func (s *Store) LatestVerificationRecord(ctx context.Context, uid string) (*models.VerificationRecord, error) {
	var rec models.VerificationRecord
	err := s.conn(ctx).Where("uid = ?", uid).Order("id desc").First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("no verification history for user %s", uid)
		}
		return nil, apperr.FromStorage("latest verification record", err)
	}
	return &rec, nil
}

// LedgerFilter narrows ListVerificationRecords. Empty fields match everything.
type LedgerFilter struct {
	UID    string
	Action models.VerificationAction
}

// ListVerificationRecords returns the newest decisions first with the total count.
func (s *Store) ListVerificationRecords(ctx context.Context, filter LedgerFilter, page Page) ([]models.VerificationRecord, int64, error) {
	query := s.conn(ctx).Model(&models.VerificationRecord{})
	if filter.UID != "" {
		query = query.Where("uid = ?", filter.UID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperr.FromStorage("count verification records", err)
	}

	var records []models.VerificationRecord
	if err := query.Order("verified_at desc, id desc").
		Limit(page.Limit).Offset(page.Offset).
		Find(&records).Error; err != nil {
		return nil, 0, apperr.FromStorage("list verification records", err)
	}
	return records, total, nil
}

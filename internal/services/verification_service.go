package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/kommyut/internal/apperr"
	"github.com/example/kommyut/internal/events"
	"github.com/example/kommyut/internal/metrics"
	"github.com/example/kommyut/internal/models"
)

// DefaultApproveNote is stored when an approval carries no note.
const DefaultApproveNote = "ID verified"

// VerificationStore is the storage the verification workflow needs.
type VerificationStore interface {
	GetUserAccount(ctx context.Context, uid string) (*models.UserAccount, error)
	UpdateUserAccount(ctx context.Context, uid string, fields map[string]any) (*models.UserAccount, error)
	AppendVerificationRecord(ctx context.Context, rec *models.VerificationRecord) (*models.VerificationRecord, error)
	LatestVerificationRecord(ctx context.Context, uid string) (*models.VerificationRecord, error)
}

// Transactor is implemented by stores that can run a function atomically.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Alerter notifies operators about states that need manual repair.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// VerificationOptions tunes the workflow.
type VerificationOptions struct {
	// Atomic wraps the account update and ledger append in one transaction
	// when the store supports it.
	Atomic bool
	// StrictReapprove only allows re-approve after a reject.
	StrictReapprove bool
}

// VerificationService applies ID review decisions to accounts and the ledger.
type VerificationService struct {
	store     VerificationStore
	publisher events.Publisher
	alerter   Alerter
	log       *zap.SugaredLogger
	opts      VerificationOptions
	now       func() time.Time
}

// NewVerificationService creates a new VerificationService. A nil alerter disables staff alerts.
func NewVerificationService(store VerificationStore, publisher events.Publisher, alerter Alerter, log *zap.SugaredLogger, opts VerificationOptions) *VerificationService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &VerificationService{
		store:     store,
		publisher: publisher,
		alerter:   alerter,
		log:       log,
		opts:      opts,
		now:       time.Now,
	}
}

// DecideInput is one review decision.
type DecideInput struct {
	UID    string
	Action models.VerificationAction
	// Note is optional for approve and required for reject and re-approve.
	Note *string
}

type decision struct {
	action   models.VerificationAction
	verified bool
	note     string
	fields   map[string]any
}

// Decision is the committed outcome of Decide.
type Decision struct {
	User   *models.UserAccount
	Record *models.VerificationRecord
}

func resolveDecision(in DecideInput) (decision, error) {
	if strings.TrimSpace(in.UID) == "" {
		return decision{}, apperr.InvalidArgument("uid is required")
	}
	if !in.Action.Valid() {
		return decision{}, apperr.InvalidArgument(`invalid action %q: must be "approve", "reject", or "re-approve"`, in.Action)
	}

	note := ""
	if in.Note != nil {
		note = strings.TrimSpace(*in.Note)
	}

	d := decision{action: in.Action, note: note}
	switch in.Action {
	case models.ActionApprove:
		if d.note == "" {
			d.note = DefaultApproveNote
		}
		d.verified = true
		d.fields = map[string]any{"id_verified": true, "verification_note": d.note}
	case models.ActionReapprove:
		if d.note == "" {
			return decision{}, apperr.InvalidArgument("a note is required to re-approve")
		}
		d.verified = true
		d.fields = map[string]any{"id_verified": true, "verification_note": d.note}
	case models.ActionReject:
		if d.note == "" {
			return decision{}, apperr.InvalidArgument("a note is required to reject")
		}
		d.fields = map[string]any{
			"id_verified":       false,
			"user_type":         models.UserTypeRegular,
			"verification_note": d.note,
		}
	}
	return d, nil
}

// Decide applies one decision: exactly one account update and one ledger append.
// The ledger row snapshots the account as it was before the update.
func (s *VerificationService) Decide(ctx context.Context, in DecideInput) (*models.UserAccount, error) {
	d, err := resolveDecision(in)
	if err != nil {
		return nil, err
	}

	out, err := Commit(ctx, s.log,
		func(ctx context.Context) (Decision, error) {
			if tx, ok := s.store.(Transactor); ok && s.opts.Atomic {
				var out Decision
				err := tx.InTransaction(ctx, func(ctx context.Context) error {
					var err error
					out, err = s.apply(ctx, in.UID, d, false)
					return err
				})
				return out, err
			}
			return s.apply(ctx, in.UID, d, true)
		},
		Auxiliary[Decision]{
			Name: "verification_decided_event",
			Run: func(ctx context.Context, out Decision) error {
				return s.publisher.Publish(ctx, events.New(events.TypeVerificationDecided, out.Record.UID, out.Record))
			},
		},
	)
	if err != nil {
		return nil, err
	}

	metrics.VerificationDecisions.WithLabelValues(string(d.action)).Inc()
	s.log.Infow("verification decided", "uid", in.UID, "action", d.action, "verified", d.verified, "record_id", out.Record.ID)
	return out.User, nil
}

func (s *VerificationService) apply(ctx context.Context, uid string, d decision, sequential bool) (Decision, error) {
	user, err := s.store.GetUserAccount(ctx, uid)
	if err != nil {
		return Decision{}, err
	}

	if d.action == models.ActionReapprove && s.opts.StrictReapprove {
		if err := s.checkPreviouslyRejected(ctx, uid); err != nil {
			return Decision{}, err
		}
	}

	rec := &models.VerificationRecord{
		UID:           user.UID,
		Email:         user.Email,
		DisplayName:   user.DisplayName,
		UserType:      user.UserType,
		IDDocumentURL: user.IDDocumentURL,
		Action:        d.action,
		Verified:      d.verified,
		Note:          d.note,
		VerifiedAt:    s.now(),
	}

	updated, err := s.store.UpdateUserAccount(ctx, uid, d.fields)
	if err != nil {
		return Decision{}, err
	}

	saved, err := s.store.AppendVerificationRecord(ctx, rec)
	if err != nil {
		if !sequential {
			return Decision{}, err
		}
		return Decision{}, s.ledgerGap(ctx, rec, err)
	}

	return Decision{User: updated, Record: saved}, nil
}

func (s *VerificationService) checkPreviouslyRejected(ctx context.Context, uid string) error {
	last, err := s.store.LatestVerificationRecord(ctx, uid)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Conflict("user %s has no prior rejection to re-approve", uid)
		}
		return err
	}
	if last.Action != models.ActionReject {
		return apperr.Conflict("user %s was last %s, only rejected IDs can be re-approved", uid, pastTense(last.Action))
	}
	return nil
}

// ledgerGap reports an account update that committed without its ledger row.
func (s *VerificationService) ledgerGap(ctx context.Context, rec *models.VerificationRecord, cause error) error {
	s.log.Errorw("verification ledger append failed after account update",
		"uid", rec.UID, "action", rec.Action, "verified", rec.Verified, "note", rec.Note, "error", cause)

	if s.alerter != nil {
		alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auxiliaryTimeout)
		defer cancel()
		text := FormatLedgerGapAlert(LedgerGapAlert{
			UID:      rec.UID,
			Action:   string(rec.Action),
			Verified: rec.Verified,
			Note:     rec.Note,
			Cause:    cause.Error(),
			At:       rec.VerifiedAt,
		})
		if err := s.alerter.Alert(alertCtx, text); err != nil {
			s.log.Errorw("ledger gap alert failed", "uid", rec.UID, "error", err)
		}
	}

	return apperr.Internal("account %s updated for %s but the verification history entry was not recorded; manual reconciliation required", rec.UID, rec.Action).WithCause(cause)
}

func pastTense(a models.VerificationAction) string {
	switch a {
	case models.ActionApprove:
		return "approved"
	case models.ActionReapprove:
		return "re-approved"
	default:
		return "rejected"
	}
}

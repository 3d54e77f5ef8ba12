package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/kommyut/internal/apperr"
	"github.com/example/kommyut/internal/events"
	"github.com/example/kommyut/internal/models"
)

func strPtr(s string) *string { return &s }

func newStudent(uid string) models.UserAccount {
	return models.UserAccount{
		UID:           uid,
		Email:         uid + "@example.com",
		DisplayName:   "Rider " + uid,
		Role:          models.RoleUser,
		UserType:      models.UserTypeStudent,
		IDDocumentURL: strPtr("https://files.example.com/" + uid + ".jpg"),
	}
}

func newVerificationService(store VerificationStore, opts VerificationOptions) (*VerificationService, *recordingPublisher, *recordingAlerter) {
	pub := &recordingPublisher{}
	alerts := &recordingAlerter{}
	return NewVerificationService(store, pub, alerts, zap.NewNop().Sugar(), opts), pub, alerts
}

func TestDecideApproveDefaultsNote(t *testing.T) {
	store := newFakeStore()
	store.addUser(newStudent("u1"))
	svc, pub, _ := newVerificationService(store, VerificationOptions{})

	user, err := svc.Decide(context.Background(), DecideInput{UID: "u1", Action: models.ActionApprove})
	require.NoError(t, err)
	require.True(t, user.IDVerified)
	require.Equal(t, DefaultApproveNote, user.VerificationNote)
	require.Equal(t, models.UserTypeStudent, user.UserType)

	records := store.records()
	require.Len(t, records, 1)
	require.Equal(t, models.ActionApprove, records[0].Action)
	require.True(t, records[0].Verified)
	require.Equal(t, DefaultApproveNote, records[0].Note)
	require.Equal(t, []string{events.TypeVerificationDecided}, pub.types())
}

func TestDecideRejectRequiresNote(t *testing.T) {
	store := newFakeStore()
	store.addUser(newStudent("u1"))
	svc, _, _ := newVerificationService(store, VerificationOptions{})

	for _, note := range []*string{nil, strPtr(""), strPtr("   ")} {
		_, err := svc.Decide(context.Background(), DecideInput{UID: "u1", Action: models.ActionReject, Note: note})
		require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	}

	_, err := svc.Decide(context.Background(), DecideInput{UID: "u1", Action: models.ActionReapprove, Note: strPtr(" ")})
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	require.Zero(t, store.accountUpdates)
	require.Empty(t, store.records())
}

func TestDecideRejectDowngradesToRegular(t *testing.T) {
	store := newFakeStore()
	store.addUser(newStudent("u1"))
	svc, _, _ := newVerificationService(store, VerificationOptions{})

	user, err := svc.Decide(context.Background(), DecideInput{UID: "u1", Action: models.ActionReject, Note: strPtr("bad photo")})
	require.NoError(t, err)
	require.False(t, user.IDVerified)
	require.Equal(t, models.UserTypeRegular, user.UserType)
	require.Equal(t, "bad photo", user.VerificationNote)

	records := store.records()
	require.Len(t, records, 1)
	require.False(t, records[0].Verified)
	// the snapshot is taken before the downgrade
	require.Equal(t, models.UserTypeStudent, records[0].UserType)
	require.Equal(t, "u1@example.com", records[0].Email)
	require.Equal(t, "https://files.example.com/u1.jpg", *records[0].IDDocumentURL)
}

func TestDecideRejectsUnknownActionAndUser(t *testing.T) {
	store := newFakeStore()
	store.addUser(newStudent("u1"))
	svc, _, _ := newVerificationService(store, VerificationOptions{})

	_, err := svc.Decide(context.Background(), DecideInput{UID: "u1", Action: "promote"})
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = svc.Decide(context.Background(), DecideInput{UID: "ghost", Action: models.ActionApprove})
	require.ErrorIs(t, err, apperr.ErrNotFound)

	require.Zero(t, store.accountUpdates)
	require.Empty(t, store.records())
}

func TestDecideTwiceAppendsTwice(t *testing.T) {
	store := newFakeStore()
	store.addUser(newStudent("u1"))
	svc, _, _ := newVerificationService(store, VerificationOptions{})

	for i := 0; i < 2; i++ {
		user, err := svc.Decide(context.Background(), DecideInput{UID: "u1", Action: models.ActionApprove, Note: strPtr("ok")})
		require.NoError(t, err)
		require.True(t, user.IDVerified)
	}

	require.Equal(t, 2, store.accountUpdates)
	records := store.records()
	require.Len(t, records, 2)
	require.Less(t, records[0].ID, records[1].ID)
	require.True(t, store.user("u1").IDVerified)
}

func TestDecideEndToEndScenario(t *testing.T) {
	for _, atomic := range []bool{true, false} {
		store := newFakeStore()
		store.addUser(newStudent("u1"))
		var vs VerificationStore = store
		if atomic {
			vs = txFakeStore{store}
		}
		svc, _, _ := newVerificationService(vs, VerificationOptions{Atomic: atomic})
		ctx := context.Background()

		user, err := svc.Decide(ctx, DecideInput{UID: "u1", Action: models.ActionApprove, Note: strPtr("doc ok")})
		require.NoError(t, err)
		require.True(t, user.IDVerified)
		records := store.records()
		require.Len(t, records, 1)
		require.Equal(t, models.ActionApprove, records[0].Action)
		require.True(t, records[0].Verified)
		require.Equal(t, "doc ok", records[0].Note)

		user, err = svc.Decide(ctx, DecideInput{UID: "u1", Action: models.ActionReject, Note: strPtr("expired ID")})
		require.NoError(t, err)
		require.False(t, user.IDVerified)
		require.Equal(t, models.UserTypeRegular, user.UserType)
		require.Len(t, store.records(), 2)

		user, err = svc.Decide(ctx, DecideInput{UID: "u1", Action: models.ActionReapprove, Note: strPtr("resubmitted, verified manually")})
		require.NoError(t, err)
		require.True(t, user.IDVerified)
		require.Equal(t, models.UserTypeRegular, user.UserType)
		require.Len(t, store.records(), 3)
	}
}

func TestDecideSequentialLedgerFailureIsInternal(t *testing.T) {
	store := newFakeStore()
	store.addUser(newStudent("u1"))
	store.appendErr = errors.New("connection reset")
	svc, pub, alerts := newVerificationService(store, VerificationOptions{Atomic: false})

	_, err := svc.Decide(context.Background(), DecideInput{UID: "u1", Action: models.ActionReject, Note: strPtr("blurry")})
	require.ErrorIs(t, err, apperr.ErrInternal)
	require.Contains(t, err.Error(), "u1")
	require.Contains(t, err.Error(), "reject")

	// the account update committed without its history entry
	require.Equal(t, models.UserTypeRegular, store.user("u1").UserType)
	require.Empty(t, store.records())
	require.Len(t, alerts.texts, 1)
	require.Contains(t, alerts.texts[0], "u1")
	require.Empty(t, pub.types())
}

func TestDecideAtomicLedgerFailureRollsBack(t *testing.T) {
	store := newFakeStore()
	store.addUser(newStudent("u1"))
	store.appendErr = apperr.Unavailable("storage busy, retry")
	svc, pub, alerts := newVerificationService(txFakeStore{store}, VerificationOptions{Atomic: true})

	_, err := svc.Decide(context.Background(), DecideInput{UID: "u1", Action: models.ActionReject, Note: strPtr("blurry")})
	require.ErrorIs(t, err, apperr.ErrUnavailable)
	require.True(t, apperr.KindOf(err).Retryable())

	user := store.user("u1")
	require.Equal(t, models.UserTypeStudent, user.UserType)
	require.Empty(t, user.VerificationNote)
	require.Zero(t, store.accountUpdates)
	require.Empty(t, store.records())
	require.Empty(t, alerts.texts)
	require.Empty(t, pub.types())
}

func TestDecideStrictReapprove(t *testing.T) {
	store := newFakeStore()
	store.addUser(newStudent("u1"))
	svc, _, _ := newVerificationService(store, VerificationOptions{StrictReapprove: true})
	ctx := context.Background()

	_, err := svc.Decide(ctx, DecideInput{UID: "u1", Action: models.ActionReapprove, Note: strPtr("looks fine")})
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = svc.Decide(ctx, DecideInput{UID: "u1", Action: models.ActionApprove})
	require.NoError(t, err)
	_, err = svc.Decide(ctx, DecideInput{UID: "u1", Action: models.ActionReapprove, Note: strPtr("looks fine")})
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = svc.Decide(ctx, DecideInput{UID: "u1", Action: models.ActionReject, Note: strPtr("expired")})
	require.NoError(t, err)
	user, err := svc.Decide(ctx, DecideInput{UID: "u1", Action: models.ActionReapprove, Note: strPtr("renewed")})
	require.NoError(t, err)
	require.True(t, user.IDVerified)
	require.Len(t, store.records(), 3)
}

func TestDecideLenientReapproveWithoutHistory(t *testing.T) {
	store := newFakeStore()
	store.addUser(newStudent("u1"))
	svc, _, _ := newVerificationService(store, VerificationOptions{})

	user, err := svc.Decide(context.Background(), DecideInput{UID: "u1", Action: models.ActionReapprove, Note: strPtr("manual check")})
	require.NoError(t, err)
	require.True(t, user.IDVerified)
	require.Equal(t, models.ActionReapprove, store.records()[0].Action)
}

func TestDecideEventFailureDoesNotFail(t *testing.T) {
	store := newFakeStore()
	store.addUser(newStudent("u1"))
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewVerificationService(store, pub, nil, zap.NewNop().Sugar(), VerificationOptions{})

	user, err := svc.Decide(context.Background(), DecideInput{UID: "u1", Action: models.ActionApprove})
	require.NoError(t, err)
	require.True(t, user.IDVerified)
	require.Len(t, store.records(), 1)
}

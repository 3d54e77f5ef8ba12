package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/kommyut/internal/apperr"
	"github.com/example/kommyut/internal/events"
	"github.com/example/kommyut/internal/models"
)

// fakeStore is an in-memory store with failure injection. All methods are safe
// for concurrent use and the trip completion is a real compare-and-set.
type fakeStore struct {
	mu     sync.Mutex
	users  map[string]models.UserAccount
	ledger []models.VerificationRecord
	trips  map[uuid.UUID]models.Trip

	accountUpdates int
	tripWrites     int
	increments     int

	appendErr    error
	incrementErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: map[string]models.UserAccount{},
		trips: map[uuid.UUID]models.Trip{},
	}
}

func (f *fakeStore) addUser(u models.UserAccount) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.UID] = u
}

func (f *fakeStore) addTrip(t models.Trip) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trips[t.ID] = t
}

func (f *fakeStore) user(uid string) models.UserAccount {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[uid]
}

func (f *fakeStore) trip(id uuid.UUID) models.Trip {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trips[id]
}

func (f *fakeStore) records() []models.VerificationRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.VerificationRecord(nil), f.ledger...)
}

func (f *fakeStore) GetUserAccount(_ context.Context, uid string) (*models.UserAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[uid]
	if !ok {
		return nil, apperr.NotFound("user %s not found", uid)
	}
	return &u, nil
}

func (f *fakeStore) UpdateUserAccount(_ context.Context, uid string, fields map[string]any) (*models.UserAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[uid]
	if !ok {
		return nil, apperr.NotFound("user %s not found", uid)
	}
	for k, v := range fields {
		switch k {
		case "id_verified":
			u.IDVerified = v.(bool)
		case "user_type":
			u.UserType = v.(models.UserType)
		case "verification_note":
			u.VerificationNote = v.(string)
		}
	}
	u.UpdatedAt = time.Now()
	f.users[uid] = u
	f.accountUpdates++
	return &u, nil
}

func (f *fakeStore) AppendVerificationRecord(_ context.Context, rec *models.VerificationRecord) (*models.VerificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	saved := *rec
	saved.ID = uint(len(f.ledger) + 1)
	f.ledger = append(f.ledger, saved)
	return &saved, nil
}

func (f *fakeStore) LatestVerificationRecord(_ context.Context, uid string) (*models.VerificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.ledger) - 1; i >= 0; i-- {
		if f.ledger[i].UID == uid {
			rec := f.ledger[i]
			return &rec, nil
		}
	}
	return nil, apperr.NotFound("no verification history for %s", uid)
}

func (f *fakeStore) CreateTrip(_ context.Context, trip *models.Trip) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[trip.UserUID]; !ok {
		return apperr.NotFound("user %s not found", trip.UserUID)
	}
	if trip.ID == uuid.Nil {
		trip.ID = uuid.New()
	}
	f.trips[trip.ID] = *trip
	f.tripWrites++
	return nil
}

func (f *fakeStore) GetActiveTrip(_ context.Context, id uuid.UUID) (*models.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.trips[id]
	if !ok || t.Status != models.TripStatusActive {
		return nil, apperr.NotFound("no active trip %s", id)
	}
	return &t, nil
}

func (f *fakeStore) SetTripCompletedIfActive(_ context.Context, id uuid.UUID, completedAt time.Time) (*models.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.trips[id]
	if !ok || t.Status != models.TripStatusActive {
		return nil, apperr.Conflict("trip not found or already completed")
	}
	t.Status = models.TripStatusCompleted
	t.CompletedAt = &completedAt
	f.trips[id] = t
	f.tripWrites++
	return &t, nil
}

func (f *fakeStore) IncrementPoints(_ context.Context, uid string, delta int, _ *uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incrementErr != nil {
		return 0, f.incrementErr
	}
	u, ok := f.users[uid]
	if !ok {
		return 0, apperr.NotFound("user %s not found", uid)
	}
	u.Points += delta
	f.users[uid] = u
	f.increments++
	return u.Points, nil
}

// txFakeStore adds all-or-nothing transactions by restoring a snapshot on error.
type txFakeStore struct {
	*fakeStore
}

func (f txFakeStore) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	users := make(map[string]models.UserAccount, len(f.users))
	for k, v := range f.users {
		users[k] = v
	}
	ledger := append([]models.VerificationRecord(nil), f.ledger...)
	updates := f.accountUpdates
	f.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.mu.Lock()
		f.users = users
		f.ledger = ledger
		f.accountUpdates = updates
		f.mu.Unlock()
		return err
	}
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type recordingAlerter struct {
	mu    sync.Mutex
	texts []string
}

func (a *recordingAlerter) Alert(_ context.Context, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)
	return nil
}

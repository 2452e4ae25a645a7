package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/community-hub/event-ledger/internal/capacity"
	"github.com/community-hub/event-ledger/internal/identity"
	"github.com/community-hub/event-ledger/internal/logger"
	"github.com/community-hub/event-ledger/internal/model"
	"github.com/community-hub/event-ledger/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── Fakes ────────────────────────────────────────────────────────────────────

type fakeStore struct {
	events map[string]*model.Event
	regs   map[string]model.Registration
	seq    int
	nextID int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events: map[string]*model.Event{},
		regs:   map[string]model.Registration{},
	}
}

// addEvent seeds an event with the given stored capacity.
func (f *fakeStore) addEvent(id string, storedCapacity, manualCount int) {
	f.events[id] = &model.Event{
		ID:           id,
		Title:        "event " + id,
		StartsAt:     time.Now().Add(24 * time.Hour),
		MaxAttendees: storedCapacity,
		ManualCount:  manualCount,
		CreatedAt:    time.Now(),
	}
}

// tick hands out strictly increasing timestamps so ordering is stable.
func (f *fakeStore) tick() time.Time {
	f.seq++
	return time.Unix(1_700_000_000, 0).Add(time.Duration(f.seq) * time.Second)
}

func (f *fakeStore) Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	f.nextID++
	e := &model.Event{
		ID:           fmt.Sprintf("ev-%d", f.nextID),
		Title:        req.Title,
		Audience:     req.Audience,
		Description:  req.Description,
		Location:     req.Location,
		ImageURL:     req.ImageURL,
		StartsAt:     req.StartsAt,
		MaxAttendees: req.MaxAttendees,
		CreatedAt:    f.tick(),
	}
	f.events[e.ID] = e
	return e, nil
}

func (f *fakeStore) List(ctx context.Context) ([]model.Event, error) {
	var out []model.Event
	for _, e := range f.events {
		out = append(out, *e)
	}
	return out, nil
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*model.Event, error) {
	e, ok := f.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *e
	return &copied, nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	if _, ok := f.events[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.events, id)
	return nil
}

func (f *fakeStore) SetManualCount(ctx context.Context, eventID string, draft int) (int, error) {
	e, ok := f.events[eventID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	real, _ := f.CountForEvent(ctx, eventID)
	clamped := capacity.ClampManualAdjustment(e.Capacity(), real, draft)
	e.ManualCount = clamped
	return clamped, nil
}

func (f *fakeStore) IsRegistered(ctx context.Context, eventID, userID string) (bool, error) {
	_, ok := f.regs[model.RegistrationKey(eventID, userID)]
	return ok, nil
}

func (f *fakeStore) CountForEvent(ctx context.Context, eventID string) (int, error) {
	count := 0
	for _, reg := range f.regs {
		if reg.EventID == eventID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) Register(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	if userID == "" {
		return nil, repository.ErrNotAuthenticated
	}
	e, ok := f.events[eventID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	key := model.RegistrationKey(eventID, userID)
	if _, exists := f.regs[key]; !exists {
		real, _ := f.CountForEvent(ctx, eventID)
		if capacity.IsFull(e.Capacity(), e.ManualCount, real) {
			return nil, repository.ErrEventFull
		}
	}
	reg := model.Registration{ID: key, EventID: eventID, UserID: userID, CreatedAt: f.tick()}
	f.regs[key] = reg
	return &reg, nil
}

func (f *fakeStore) Unregister(ctx context.Context, eventID, userID string) error {
	if userID == "" {
		return repository.ErrNotAuthenticated
	}
	delete(f.regs, model.RegistrationKey(eventID, userID))
	return nil
}

func (f *fakeStore) ListForEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	var out []model.Registration
	for _, reg := range f.regs {
		if reg.EventID == eventID {
			out = append(out, reg)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.Before(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ListEventIDsForUser(ctx context.Context, userID string) ([]string, error) {
	var regs []model.Registration
	for _, reg := range f.regs {
		if reg.UserID == userID {
			regs = append(regs, reg)
		}
	}
	for i := 0; i < len(regs); i++ {
		for j := i + 1; j < len(regs); j++ {
			if regs[j].CreatedAt.After(regs[i].CreatedAt) {
				regs[i], regs[j] = regs[j], regs[i]
			}
		}
	}
	ids := make([]string, 0, len(regs))
	for _, reg := range regs {
		ids = append(ids, reg.EventID)
	}
	return ids, nil
}

type fakeProfiles struct {
	profiles map[string]model.UserProfile
}

func (f *fakeProfiles) GetByID(ctx context.Context, userID string) (*model.UserProfile, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

type recordingPublisher struct {
	subjects []string
	err      error
}

func (p *recordingPublisher) Publish(subject string, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	return nil
}

func newService(store *fakeStore, profiles map[string]model.UserProfile, pub *recordingPublisher) *EventService {
	log := logger.New()
	resolver := identity.NewResolver(&fakeProfiles{profiles: profiles}, time.Minute, log)
	if pub == nil {
		return NewEventService(store, store, resolver, nil, log)
	}
	return NewEventService(store, store, resolver, pub, log)
}

var (
	admin = Caller{UserID: "admin-1", IsAdmin: true}
	anon  = Caller{}
)

func user(id string) Caller { return Caller{UserID: id} }

// ─── Toggle registration ──────────────────────────────────────────────────────

func TestToggleRoundTrip(t *testing.T) {
	store := newFakeStore()
	store.addEvent("E1", 10, 0)
	svc := newService(store, nil, nil)
	ctx := context.Background()

	result, err := svc.ToggleRegistration(ctx, "E1", user("U1"))
	require.NoError(t, err)
	assert.True(t, result.Registered)

	registered, err := svc.IsRegistered(ctx, "E1", user("U1"))
	require.NoError(t, err)
	assert.True(t, registered)

	result, err = svc.ToggleRegistration(ctx, "E1", user("U1"))
	require.NoError(t, err)
	assert.False(t, result.Registered)

	registered, err = svc.IsRegistered(ctx, "E1", user("U1"))
	require.NoError(t, err)
	assert.False(t, registered)
}

func TestToggleRequiresAuthentication(t *testing.T) {
	store := newFakeStore()
	store.addEvent("E1", 10, 0)
	svc := newService(store, nil, nil)

	_, err := svc.ToggleRegistration(context.Background(), "E1", anon)
	assert.ErrorIs(t, err, repository.ErrNotAuthenticated)
}

func TestToggleUnknownEvent(t *testing.T) {
	svc := newService(newFakeStore(), nil, nil)

	_, err := svc.ToggleRegistration(context.Background(), "missing", user("U1"))
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCapacityScenario(t *testing.T) {
	store := newFakeStore()
	store.addEvent("E1", 2, 0)
	svc := newService(store, nil, nil)
	ctx := context.Background()

	// U1 and U2 take the two seats.
	for _, u := range []string{"U1", "U2"} {
		result, err := svc.ToggleRegistration(ctx, "E1", user(u))
		require.NoError(t, err)
		assert.True(t, result.Registered)
	}
	count, _ := store.CountForEvent(ctx, "E1")
	assert.Equal(t, 2, count)

	// U3 is refused; the ledger is untouched.
	_, err := svc.ToggleRegistration(ctx, "E1", user("U3"))
	assert.ErrorIs(t, err, repository.ErrEventFull)
	count, _ = store.CountForEvent(ctx, "E1")
	assert.Equal(t, 2, count)

	// U1 frees a seat; U3 now gets in.
	result, err := svc.ToggleRegistration(ctx, "E1", user("U1"))
	require.NoError(t, err)
	assert.False(t, result.Registered)

	result, err = svc.ToggleRegistration(ctx, "E1", user("U3"))
	require.NoError(t, err)
	assert.True(t, result.Registered)
}

func TestManualCountTakesSeats(t *testing.T) {
	store := newFakeStore()
	store.addEvent("E1", 5, 1)
	svc := newService(store, nil, nil)
	ctx := context.Background()

	// 4 real + 1 manual = 5 of 5: full for a newcomer.
	for _, u := range []string{"U1", "U2", "U3", "U4"} {
		_, err := svc.ToggleRegistration(ctx, "E1", user(u))
		require.NoError(t, err)
	}
	_, err := svc.ToggleRegistration(ctx, "E1", user("U5"))
	assert.ErrorIs(t, err, repository.ErrEventFull)
}

func TestUnlimitedEventNeverFull(t *testing.T) {
	store := newFakeStore()
	store.addEvent("E1", capacity.UnlimitedSentinel, 250)
	svc := newService(store, nil, nil)
	ctx := context.Background()

	for i := 0; i < 600; i++ {
		result, err := svc.ToggleRegistration(ctx, "E1", user(fmt.Sprintf("U%d", i)))
		require.NoError(t, err)
		assert.True(t, result.Registered)
	}
}

func TestDuplicateRegisterCountsOnce(t *testing.T) {
	store := newFakeStore()
	store.addEvent("E1", 1, 0)
	ctx := context.Background()

	_, err := store.Register(ctx, "E1", "U1")
	require.NoError(t, err)

	// The event is now full, but re-registering the same pair takes no
	// new seat: it collapses onto the composite key.
	reg, err := store.Register(ctx, "E1", "U1")
	require.NoError(t, err)
	assert.Equal(t, model.RegistrationKey("E1", "U1"), reg.ID)

	count, err := store.CountForEvent(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	registered, err := store.IsRegistered(ctx, "E1", "U1")
	require.NoError(t, err)
	assert.True(t, registered)
}

func TestUnregisterAlwaysPermittedWhenFull(t *testing.T) {
	store := newFakeStore()
	store.addEvent("E1", 1, 0)
	svc := newService(store, nil, nil)
	ctx := context.Background()

	_, err := svc.ToggleRegistration(ctx, "E1", user("U1"))
	require.NoError(t, err)

	result, err := svc.ToggleRegistration(ctx, "E1", user("U1"))
	require.NoError(t, err)
	assert.False(t, result.Registered)
}

func TestTogglePublishesLifecycle(t *testing.T) {
	store := newFakeStore()
	store.addEvent("E1", 5, 0)
	pub := &recordingPublisher{}
	svc := newService(store, nil, pub)
	ctx := context.Background()

	_, err := svc.ToggleRegistration(ctx, "E1", user("U1"))
	require.NoError(t, err)
	_, err = svc.ToggleRegistration(ctx, "E1", user("U1"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"ledger.registration.registered",
		"ledger.registration.unregistered",
	}, pub.subjects)
}

func TestPublishFailureDoesNotFailToggle(t *testing.T) {
	store := newFakeStore()
	store.addEvent("E1", 5, 0)
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newService(store, nil, pub)

	result, err := svc.ToggleRegistration(context.Background(), "E1", user("U1"))
	require.NoError(t, err)
	assert.True(t, result.Registered)
}

// ─── Manual count ─────────────────────────────────────────────────────────────

func TestSetManualCountClamps(t *testing.T) {
	store := newFakeStore()
	store.addEvent("E1", 10, 0)
	svc := newService(store, nil, nil)
	ctx := context.Background()

	for _, u := range []string{"U1", "U2", "U3", "U4", "U5", "U6", "U7"} {
		_, err := svc.ToggleRegistration(ctx, "E1", user(u))
		require.NoError(t, err)
	}

	// capacity 10, 7 registered: a draft of 5 is persisted as 3.
	stored, err := svc.SetManualCount(ctx, "E1", admin, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, stored)
	assert.Equal(t, 3, store.events["E1"].ManualCount)
}

func TestSetManualCountNegativeClampsToZero(t *testing.T) {
	store := newFakeStore()
	store.addEvent("E1", 10, 4)
	svc := newService(store, nil, nil)

	stored, err := svc.SetManualCount(context.Background(), "E1", admin, -2)
	require.NoError(t, err)
	assert.Equal(t, 0, stored)
}

func TestSetManualCountUnlimitedUnbounded(t *testing.T) {
	store := newFakeStore()
	store.addEvent("E1", capacity.UnlimitedSentinel, 0)
	svc := newService(store, nil, nil)

	stored, err := svc.SetManualCount(context.Background(), "E1", admin, 9000)
	require.NoError(t, err)
	assert.Equal(t, 9000, stored)
}

func TestSetManualCountRequiresAdmin(t *testing.T) {
	store := newFakeStore()
	store.addEvent("E1", 10, 0)
	svc := newService(store, nil, nil)

	_, err := svc.SetManualCount(context.Background(), "E1", user("U1"), 2)
	assert.ErrorIs(t, err, repository.ErrPermissionDenied)
}

func TestSetManualCountUnknownEvent(t *testing.T) {
	svc := newService(newFakeStore(), nil, nil)

	_, err := svc.SetManualCount(context.Background(), "missing", admin, 2)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

// ─── Listings ─────────────────────────────────────────────────────────────────

func TestListRegistrationsEnriched(t *testing.T) {
	store := newFakeStore()
	store.addEvent("E1", 10, 0)
	profiles := map[string]model.UserProfile{
		"U1": {ID: "U1", FirstName: "Ana", LastName: "Horvat", Email: "ana@example.com"},
	}
	svc := newService(store, profiles, nil)
	ctx := context.Background()

	_, err := svc.ToggleRegistration(ctx, "E1", user("U1"))
	require.NoError(t, err)
	_, err = svc.ToggleRegistration(ctx, "E1", user("U2"))
	require.NoError(t, err)

	rows, err := svc.ListRegistrations(ctx, "E1", admin)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Oldest registration first.
	assert.Equal(t, "U1", rows[0].UserID)
	assert.Equal(t, "Ana Horvat", rows[0].FullName)
	require.NotNil(t, rows[0].Email)
	assert.Equal(t, "ana@example.com", *rows[0].Email)

	// U2 has no profile: placeholder, nil email, listing intact.
	assert.Equal(t, "U2", rows[1].UserID)
	assert.Equal(t, identity.PlaceholderName, rows[1].FullName)
	assert.Nil(t, rows[1].Email)
}

func TestListRegistrationsRequiresAdmin(t *testing.T) {
	store := newFakeStore()
	store.addEvent("E1", 10, 0)
	svc := newService(store, nil, nil)

	_, err := svc.ListRegistrations(context.Background(), "E1", user("U1"))
	assert.ErrorIs(t, err, repository.ErrPermissionDenied)
}

func TestListRegistrationsToleratesOrphanedEvent(t *testing.T) {
	store := newFakeStore()
	store.addEvent("E1", 10, 0)
	svc := newService(store, nil, nil)
	ctx := context.Background()

	_, err := svc.ToggleRegistration(ctx, "E1", user("U1"))
	require.NoError(t, err)

	// The event record goes away; its ledger rows remain readable.
	delete(store.events, "E1")

	rows, err := svc.ListRegistrations(ctx, "E1", admin)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, identity.PlaceholderName, rows[0].FullName)
}

func TestListMyEventsMostRecentFirst(t *testing.T) {
	store := newFakeStore()
	store.addEvent("E1", 10, 0)
	store.addEvent("E2", 10, 0)
	svc := newService(store, nil, nil)
	ctx := context.Background()

	_, err := svc.ToggleRegistration(ctx, "E1", user("U1"))
	require.NoError(t, err)
	_, err = svc.ToggleRegistration(ctx, "E2", user("U1"))
	require.NoError(t, err)

	ids, err := svc.ListMyEvents(ctx, user("U1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"E2", "E1"}, ids)
}

func TestListMyEventsRequiresAuthentication(t *testing.T) {
	svc := newService(newFakeStore(), nil, nil)

	_, err := svc.ListMyEvents(context.Background(), anon)
	assert.ErrorIs(t, err, repository.ErrNotAuthenticated)
}

// ─── Event management ─────────────────────────────────────────────────────────

func TestCreateEventValidation(t *testing.T) {
	svc := newService(newFakeStore(), nil, nil)
	ctx := context.Background()

	_, err := svc.CreateEvent(ctx, admin, model.CreateEventRequest{Title: "  "})
	assert.Error(t, err)

	_, err = svc.CreateEvent(ctx, user("U1"), model.CreateEventRequest{Title: "x"})
	assert.ErrorIs(t, err, repository.ErrPermissionDenied)

	event, err := svc.CreateEvent(ctx, admin, model.CreateEventRequest{
		Title:        "Workshop",
		StartsAt:     time.Now().Add(time.Hour),
		MaxAttendees: 20,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
}

func TestDeleteEventPublishesCleanup(t *testing.T) {
	store := newFakeStore()
	store.addEvent("E1", 10, 0)
	pub := &recordingPublisher{}
	svc := newService(store, nil, pub)

	err := svc.DeleteEvent(context.Background(), admin, "E1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ledger.event.deleted"}, pub.subjects)
}

func TestDeleteEventRequiresAdmin(t *testing.T) {
	store := newFakeStore()
	store.addEvent("E1", 10, 0)
	svc := newService(store, nil, nil)

	err := svc.DeleteEvent(context.Background(), user("U1"), "E1")
	assert.ErrorIs(t, err, repository.ErrPermissionDenied)
}

func TestGetEventSummary(t *testing.T) {
	store := newFakeStore()
	store.addEvent("E1", 2, 1)
	svc := newService(store, nil, nil)
	ctx := context.Background()

	_, err := svc.ToggleRegistration(ctx, "E1", user("U1"))
	require.NoError(t, err)

	summary, err := svc.GetEvent(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RegisteredCount)
	assert.True(t, summary.Full) // 1 real + 1 manual >= 2
}

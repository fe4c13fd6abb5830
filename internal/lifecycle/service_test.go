package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/alumnet-backend/internal/counters"
	"github.com/angelmondragon/alumnet-backend/pkg/db"
	"github.com/angelmondragon/alumnet-backend/pkg/db/dbtest"
	"github.com/angelmondragon/alumnet-backend/pkg/db/models"
	"github.com/angelmondragon/alumnet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/alumnet-backend/pkg/errors"
	"github.com/angelmondragon/alumnet-backend/pkg/logger"
)

var fixedNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type countingInvalidator struct {
	calls atomic.Int32
}

func (c *countingInvalidator) Invalidate(context.Context) {
	c.calls.Add(1)
}

type harness struct {
	conn        *gorm.DB
	svc         Service
	counters    counters.Repository
	invalidator *countingInvalidator
}

func newHarness(t *testing.T, def Definition) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	counterRepo := counters.NewRepository(conn)
	inv := &countingInvalidator{}
	svc, err := NewService(ServiceParams{
		Definition:  def,
		DB:          db.Wrap(conn),
		Ledgers:     NewRepository(conn),
		Counters:    counterRepo,
		Logger:      logger.Nop(),
		Invalidator: inv,
		Timeout:     5 * time.Second,
		Now:         func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return &harness{conn: conn, svc: svc, counters: counterRepo, invalidator: inv}
}

func (h *harness) provision(t *testing.T, ceiling *int64) uuid.UUID {
	t.Helper()
	resourceID := uuid.New()
	_, err := h.svc.Provision(context.Background(), h.conn, resourceID, ceiling)
	require.NoError(t, err)
	return resourceID
}

func (h *harness) current(t *testing.T, resourceID uuid.UUID) int64 {
	t.Helper()
	counter, err := h.svc.Counter(context.Background(), resourceID)
	require.NoError(t, err)
	return counter.Current
}

func ceilingPtr(v int64) *int64 { return &v }

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)

	conn := dbtest.Open(t)
	_, err = NewService(ServiceParams{
		Definition: EventRegistration,
		DB:         db.Wrap(conn),
		Ledgers:    NewRepository(conn),
		Counters:   counters.NewRepository(conn),
	})
	require.EqualError(t, err, "logger required")
}

// Every (state, action) pair of every table either applies its rule with the
// declared counter effect or is rejected without touching storage.
func TestTransitionTablesAreExhaustive(t *testing.T) {
	for _, def := range Definitions() {
		def := def
		weight := int64(1)
		var ceiling *int64 = ceilingPtr(10)
		if def.CounterKind() == enums.CounterKindCampaign {
			weight = 2500
			ceiling = nil
		}
		for _, from := range def.States() {
			for _, action := range def.Actions() {
				from, action := from, action
				t.Run(fmt.Sprintf("%s/%s/%s", def.Kind(), from, action), func(t *testing.T) {
					h := newHarness(t, def)
					ctx := context.Background()
					resourceID := h.provision(t, ceiling)

					input := TransitionInput{Action: action, Weight: weight}
					var before int64
					if from == enums.LedgerStatusNone {
						input.ResourceID = resourceID
						input.SubjectID = "subject-1"
					} else {
						ledger := models.Ledger{
							Kind:       def.Kind(),
							ResourceID: resourceID,
							SubjectID:  "subject-1",
							Status:     from,
							Weight:     weight,
							CreatedAt:  fixedNow,
							UpdatedAt:  fixedNow,
						}
						require.NoError(t, h.conn.Create(&ledger).Error)
						if def.Counted(from) {
							key := counters.Key{Kind: def.CounterKind(), ResourceID: resourceID}
							ok, err := h.counters.Overwrite(ctx, key, 0, weight)
							require.NoError(t, err)
							require.True(t, ok)
							before = weight
						}
						input.LedgerID = ledger.ID
					}

					result, err := h.svc.Transition(ctx, input)
					rule, allowed := def.Lookup(from, action)
					if !allowed {
						require.Error(t, err)
						assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), "got %v", err)
						assert.Equal(t, before, h.current(t, resourceID))
						assert.Equal(t, int32(0), h.invalidator.calls.Load())
						return
					}

					require.NoError(t, err)
					assert.Equal(t, rule.To, result.Ledger.Status)
					assert.Equal(t, from, result.Previous)
					assert.Equal(t, from == enums.LedgerStatusNone, result.Created)

					want := before
					switch rule.Effect {
					case EffectReserve, EffectAccumulate:
						want += weight
					case EffectRelease, EffectDeduct:
						want -= weight
					}
					assert.Equal(t, want, h.current(t, resourceID))
					assert.Equal(t, int32(1), h.invalidator.calls.Load())

					stored, err := h.svc.Ledger(ctx, result.Ledger.ID)
					require.NoError(t, err)
					assert.Equal(t, rule.To, stored.Status)
				})
			}
		}
	}
}

func TestEventCapacityScenario(t *testing.T) {
	h := newHarness(t, EventRegistration)
	ctx := context.Background()
	eventID := h.provision(t, ceilingPtr(2))

	register := func(subject string) (*TransitionResult, error) {
		return h.svc.Transition(ctx, TransitionInput{ResourceID: eventID, SubjectID: subject, Action: ActionRegister})
	}

	a, err := register("alice")
	require.NoError(t, err)
	_, err = register("bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), h.current(t, eventID))

	_, err = register("carol")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCapacityExceeded))
	_, err = h.svc.FindBySubject(ctx, eventID, "carol")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "rejected registration must not leave a ledger")

	_, err = h.svc.Transition(ctx, TransitionInput{LedgerID: a.Ledger.ID, Action: ActionCancel})
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.current(t, eventID))

	_, err = register("carol")
	require.NoError(t, err)
	assert.Equal(t, int64(2), h.current(t, eventID))

	_, err = register("alice")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCapacityExceeded))
	stored, err := h.svc.Ledger(ctx, a.Ledger.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LedgerStatusCancelled, stored.Status)

	active, err := h.svc.List(ctx, eventID, EventRegistration.CountedStatuses()...)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestReactivationReusesLedger(t *testing.T) {
	h := newHarness(t, EventRegistration)
	ctx := context.Background()
	eventID := h.provision(t, ceilingPtr(5))

	first, err := h.svc.Transition(ctx, TransitionInput{ResourceID: eventID, SubjectID: "dana", Action: ActionRegister})
	require.NoError(t, err)
	_, err = h.svc.Transition(ctx, TransitionInput{LedgerID: first.Ledger.ID, Action: ActionCancel})
	require.NoError(t, err)

	again, err := h.svc.Transition(ctx, TransitionInput{LedgerID: first.Ledger.ID, Action: ActionRegister})
	require.NoError(t, err)
	assert.True(t, again.Reactivated)
	assert.Equal(t, first.Ledger.ID, again.Ledger.ID)
	assert.Equal(t, int64(1), h.current(t, eventID))

	_, err = h.svc.Transition(ctx, TransitionInput{LedgerID: first.Ledger.ID, Action: ActionRegister})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
	assert.Equal(t, int64(1), h.current(t, eventID))

	_, err = h.svc.Transition(ctx, TransitionInput{ResourceID: eventID, SubjectID: "dana", Action: ActionRegister})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyExists))

	all, err := h.svc.List(ctx, eventID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestConcurrentRegistrationsHaveExactlyCapacityWinners(t *testing.T) {
	h := newHarness(t, EventRegistration)
	ctx := context.Background()
	const capacity = 4
	eventID := h.provision(t, ceilingPtr(capacity))

	var (
		wg       sync.WaitGroup
		wins     atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < capacity+1; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.svc.Transition(ctx, TransitionInput{
				ResourceID: eventID,
				SubjectID:  fmt.Sprintf("alumnus-%d", i),
				Action:     ActionRegister,
			})
			switch {
			case err == nil:
				wins.Add(1)
			case pkgerrors.IsCode(err, pkgerrors.CodeCapacityExceeded):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(capacity), wins.Load())
	assert.Equal(t, int32(1), rejected.Load())
	assert.Equal(t, int64(capacity), h.current(t, eventID))
}

func TestConcurrentCancelReleasesOnce(t *testing.T) {
	h := newHarness(t, MentorshipConnection)
	ctx := context.Background()
	mentorID := h.provision(t, ceilingPtr(3))

	requested, err := h.svc.Transition(ctx, TransitionInput{ResourceID: mentorID, SubjectID: "mentee", Action: ActionRequest})
	require.NoError(t, err)
	_, err = h.svc.Transition(ctx, TransitionInput{LedgerID: requested.Ledger.ID, Action: ActionAccept})
	require.NoError(t, err)
	_, err = h.svc.Transition(ctx, TransitionInput{ResourceID: mentorID, SubjectID: "other", Action: ActionRequest})
	require.NoError(t, err)
	other, err := h.svc.FindBySubject(ctx, mentorID, "other")
	require.NoError(t, err)
	_, err = h.svc.Transition(ctx, TransitionInput{LedgerID: other.ID, Action: ActionAccept})
	require.NoError(t, err)
	require.Equal(t, int64(2), h.current(t, mentorID))

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Transition(ctx, TransitionInput{LedgerID: requested.Ledger.ID, Action: ActionCancel})
			if err == nil {
				successes.Add(1)
				return
			}
			if !pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int64(1), h.current(t, mentorID))
}

func TestDonationCompletionCountsOnce(t *testing.T) {
	h := newHarness(t, Donation)
	ctx := context.Background()
	campaignID := h.provision(t, nil)

	pledged, err := h.svc.Transition(ctx, TransitionInput{ResourceID: campaignID, SubjectID: "don-1", Action: ActionPledge, Weight: 5000})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), pledged.Ledger.Weight)
	assert.Equal(t, int64(0), h.current(t, campaignID))

	_, err = h.svc.Transition(ctx, TransitionInput{ResourceID: campaignID, SubjectID: "don-1", Action: ActionPledge, Weight: 5000})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyExists))

	_, err = h.svc.Transition(ctx, TransitionInput{LedgerID: pledged.Ledger.ID, Action: ActionComplete})
	require.NoError(t, err)
	_, err = h.svc.Transition(ctx, TransitionInput{LedgerID: pledged.Ledger.ID, Action: ActionComplete})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
	assert.Equal(t, int64(5000), h.current(t, campaignID))

	refunded, err := h.svc.Transition(ctx, TransitionInput{LedgerID: pledged.Ledger.ID, Action: ActionRefund})
	require.NoError(t, err)
	assert.Equal(t, int64(0), refunded.Counter.Current)
}

func TestTransitionValidation(t *testing.T) {
	h := newHarness(t, EventRegistration)
	ctx := context.Background()

	_, err := h.svc.Transition(ctx, TransitionInput{ResourceID: uuid.New(), SubjectID: "x"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.Transition(ctx, TransitionInput{SubjectID: "x", Action: ActionRegister})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.Transition(ctx, TransitionInput{ResourceID: uuid.New(), SubjectID: "  ", Action: ActionRegister})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.Transition(ctx, TransitionInput{LedgerID: uuid.New(), Action: ActionCancel})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = h.svc.Transition(ctx, TransitionInput{ResourceID: uuid.New(), SubjectID: "x", Action: ActionRegister})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "registering against an unprovisioned event fails")

	for _, action := range []Action{ActionCancel, ActionMarkAttended, Action("archive")} {
		_, err = h.svc.Transition(ctx, TransitionInput{ResourceID: uuid.New(), SubjectID: "x", Action: action})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), "%s from none: got %v", action, err)
	}
}

func TestLedgerOfOtherKindIsNotVisible(t *testing.T) {
	h := newHarness(t, EventRegistration)
	ctx := context.Background()
	foreign := models.Ledger{
		Kind:       enums.LedgerKindDonation,
		ResourceID: uuid.New(),
		SubjectID:  "don-9",
		Status:     enums.LedgerStatusPending,
		Weight:     100,
		CreatedAt:  fixedNow,
		UpdatedAt:  fixedNow,
	}
	require.NoError(t, h.conn.Create(&foreign).Error)

	_, err := h.svc.Ledger(ctx, foreign.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = h.svc.Transition(ctx, TransitionInput{LedgerID: foreign.ID, Action: ActionCancel})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestResizeRunsSyncInSameTransaction(t *testing.T) {
	h := newHarness(t, EventRegistration)
	ctx := context.Background()
	eventID := h.provision(t, ceilingPtr(3))
	for _, subject := range []string{"a", "b"} {
		_, err := h.svc.Transition(ctx, TransitionInput{ResourceID: eventID, SubjectID: subject, Action: ActionRegister})
		require.NoError(t, err)
	}

	_, err := h.svc.Resize(ctx, eventID, ceilingPtr(1), func(*gorm.DB) error {
		t.Fatal("sync must not run when the resize is rejected")
		return nil
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCapacityExceeded))

	synced := false
	counter, err := h.svc.Resize(ctx, eventID, ceilingPtr(6), func(*gorm.DB) error {
		synced = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, synced)
	assert.Equal(t, int64(6), *counter.Ceiling)

	_, err = h.svc.Resize(ctx, eventID, ceilingPtr(8), func(*gorm.DB) error {
		return pkgerrors.New(pkgerrors.CodeValidation, "owner rejected")
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	counter, err = h.svc.Counter(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), *counter.Ceiling, "failed sync rolls the resize back")
}

package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/alumnet-backend/internal/counters"
	"github.com/angelmondragon/alumnet-backend/internal/lifecycle"
	"github.com/angelmondragon/alumnet-backend/pkg/db"
	"github.com/angelmondragon/alumnet-backend/pkg/db/dbtest"
	"github.com/angelmondragon/alumnet-backend/pkg/db/models"
	"github.com/angelmondragon/alumnet-backend/pkg/enums"
	"github.com/angelmondragon/alumnet-backend/pkg/logger"
	"github.com/angelmondragon/alumnet-backend/pkg/metrics"
)

type reconcileFixture struct {
	conn     *gorm.DB
	counters counters.Repository
	metrics  *metrics.LifecycleMetrics
	registry *prometheus.Registry
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	conn := dbtest.Open(t)
	return &reconcileFixture{
		conn:     conn,
		counters: counters.NewRepository(conn),
		metrics:  metrics.NewLifecycleMetrics(reg),
		registry: reg,
	}
}

func (f *reconcileFixture) job(t *testing.T, dryRun bool) *CounterReconcileJob {
	t.Helper()
	job, err := NewCounterReconcileJob(CounterReconcileJobParams{
		Logger:   logger.Nop(),
		DB:       db.Wrap(f.conn),
		Ledgers:  lifecycle.NewRepository(f.conn),
		Counters: f.counters,
		Metrics:  f.metrics,
		DryRun:   dryRun,
	})
	require.NoError(t, err)
	return job
}

func (f *reconcileFixture) seedLedger(t *testing.T, kind enums.LedgerKind, resourceID uuid.UUID, status enums.LedgerStatus, weight int64) {
	t.Helper()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, f.conn.Create(&models.Ledger{
		Kind:       kind,
		ResourceID: resourceID,
		SubjectID:  uuid.NewString(),
		Status:     status,
		Weight:     weight,
		CreatedAt:  now,
		UpdatedAt:  now,
	}).Error)
}

func (f *reconcileFixture) setCurrent(t *testing.T, key counters.Key, value int64) {
	t.Helper()
	require.NoError(t, f.conn.Model(&models.CapacityCounter{}).
		Where("kind = ? AND resource_id = ?", key.Kind, key.ResourceID).
		Update("current_value", value).Error)
}

func (f *reconcileFixture) current(t *testing.T, key counters.Key) int64 {
	t.Helper()
	row, err := f.counters.Get(context.Background(), key)
	require.NoError(t, err)
	return row.Current
}

func (f *reconcileFixture) driftTotal(t *testing.T, kind enums.LedgerKind) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "alumnet_counter_drift_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "kind" && label.GetValue() == string(kind) {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestCounterReconcileRepairsDrift(t *testing.T) {
	ctx := context.Background()
	f := newReconcileFixture(t)

	eventID := uuid.New()
	eventKey := counters.Key{Kind: enums.CounterKindEvent, ResourceID: eventID}
	capacity := int64(10)
	_, err := f.counters.Ensure(ctx, eventKey, &capacity)
	require.NoError(t, err)
	f.seedLedger(t, enums.LedgerKindEventRegistration, eventID, enums.LedgerStatusRegistered, 1)
	f.seedLedger(t, enums.LedgerKindEventRegistration, eventID, enums.LedgerStatusAttended, 1)
	f.seedLedger(t, enums.LedgerKindEventRegistration, eventID, enums.LedgerStatusCancelled, 1)
	f.setCurrent(t, eventKey, 5)

	campaignID := uuid.New()
	campaignKey := counters.Key{Kind: enums.CounterKindCampaign, ResourceID: campaignID}
	_, err = f.counters.Ensure(ctx, campaignKey, nil)
	require.NoError(t, err)
	f.seedLedger(t, enums.LedgerKindDonation, campaignID, enums.LedgerStatusCompleted, 2500)
	f.seedLedger(t, enums.LedgerKindDonation, campaignID, enums.LedgerStatusRefunded, 1000)
	f.seedLedger(t, enums.LedgerKindDonation, campaignID, enums.LedgerStatusPending, 700)
	f.setCurrent(t, campaignKey, 3500)

	mentorID := uuid.New()
	mentorKey := counters.Key{Kind: enums.CounterKindMentor, ResourceID: mentorID}
	limit := int64(3)
	_, err = f.counters.Ensure(ctx, mentorKey, &limit)
	require.NoError(t, err)
	f.seedLedger(t, enums.LedgerKindMentorshipConnection, mentorID, enums.LedgerStatusActive, 1)

	report, err := f.job(t, false).Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Checked: 3, Drifted: 3, Repaired: 3}, report)
	assert.Equal(t, int64(2), f.current(t, eventKey))
	assert.Equal(t, int64(2500), f.current(t, campaignKey))
	assert.Equal(t, int64(1), f.current(t, mentorKey))

	assert.Equal(t, float64(1), f.driftTotal(t, enums.LedgerKindEventRegistration))
	assert.Equal(t, float64(1), f.driftTotal(t, enums.LedgerKindDonation))

	report, err = f.job(t, false).Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Checked: 3}, report)
}

func TestCounterReconcileDryRunLeavesCounters(t *testing.T) {
	ctx := context.Background()
	f := newReconcileFixture(t)

	eventID := uuid.New()
	key := counters.Key{Kind: enums.CounterKindEvent, ResourceID: eventID}
	_, err := f.counters.Ensure(ctx, key, nil)
	require.NoError(t, err)
	f.seedLedger(t, enums.LedgerKindEventRegistration, eventID, enums.LedgerStatusRegistered, 1)

	report, err := f.job(t, true).Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Drifted)
	assert.Equal(t, 0, report.Repaired)
	assert.Equal(t, int64(0), f.current(t, key))
}

func TestCounterReconcileRunsUnderService(t *testing.T) {
	f := newReconcileFixture(t)
	eventID := uuid.New()
	key := counters.Key{Kind: enums.CounterKindEvent, ResourceID: eventID}
	_, err := f.counters.Ensure(context.Background(), key, nil)
	require.NoError(t, err)
	f.seedLedger(t, enums.LedgerKindEventRegistration, eventID, enums.LedgerStatusRegistered, 1)

	registry := NewRegistry()
	require.NoError(t, registry.Register(f.job(t, false)))
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: registry, Lock: NewLocalLock()})
	require.NoError(t, err)
	require.NoError(t, service.RunOnce(context.Background()))
	assert.Equal(t, int64(1), f.current(t, key))
}

func TestNewCounterReconcileJobValidates(t *testing.T) {
	_, err := NewCounterReconcileJob(CounterReconcileJobParams{})
	require.Error(t, err)
	_, err = NewCounterReconcileJob(CounterReconcileJobParams{Logger: logger.Nop()})
	require.Error(t, err)
}

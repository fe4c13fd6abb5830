package dashboard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/alumnet-backend/internal/cache"
	"github.com/angelmondragon/alumnet-backend/pkg/db/dbtest"
	"github.com/angelmondragon/alumnet-backend/pkg/db/models"
	"github.com/angelmondragon/alumnet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/alumnet-backend/pkg/errors"
	"github.com/angelmondragon/alumnet-backend/pkg/logger"
)

var now = time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)

func TestGrowth(t *testing.T) {
	cases := []struct {
		current, previous, want float64
	}{
		{50, 0, 0},
		{150, 100, 50},
		{80, 100, -20},
		{1, 3, -66.67},
		{0, 0, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Growth(tc.current, tc.previous), "growth(%v, %v)", tc.current, tc.previous)
	}
}

type fixture struct {
	conn  *gorm.DB
	cache *cache.TTLCache
	agg   *Aggregator
}

func newFixture(t *testing.T, repo func(*gorm.DB) Repository) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	c := cache.New(cache.Options{Now: func() time.Time { return now }})
	if repo == nil {
		repo = NewRepository
	}
	agg, err := NewAggregator(repo(conn), c, logger.Nop(), Options{
		QueryTimeout:    5 * time.Second,
		BreakdownMonths: 3,
		Now:             func() time.Time { return now },
	})
	require.NoError(t, err)
	return &fixture{conn: conn, cache: c, agg: agg}
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	thisMonth := time.Date(2026, 9, 3, 10, 0, 0, 0, time.UTC)
	lastMonth := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	older := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, created := range []time.Time{thisMonth, thisMonth, thisMonth, lastMonth, lastMonth, older} {
		require.NoError(t, f.conn.Create(&models.AlumniProfile{FullName: "Alum", GraduationYear: 2000 + i, CreatedAt: created}).Error)
	}
	events := []models.Event{
		{Title: "Upcoming", Status: enums.EventStatusPublished, Capacity: 10, StartsAt: now.Add(48 * time.Hour), CreatedAt: thisMonth, UpdatedAt: thisMonth},
		{Title: "Past", Status: enums.EventStatusPublished, Capacity: 10, StartsAt: now.Add(-48 * time.Hour), CreatedAt: lastMonth, UpdatedAt: lastMonth},
		{Title: "Draft", Status: enums.EventStatusDraft, Capacity: 10, StartsAt: now.Add(96 * time.Hour), CreatedAt: lastMonth, UpdatedAt: lastMonth},
	}
	for i := range events {
		require.NoError(t, f.conn.Create(&events[i]).Error)
	}

	campaign := models.Campaign{Title: "Scholarships", CreatedAt: older, UpdatedAt: older}
	require.NoError(t, f.conn.Create(&campaign).Error)
	ledgers := []models.Ledger{
		{Kind: enums.LedgerKindDonation, ResourceID: campaign.ID, SubjectID: "pay_1", Status: enums.LedgerStatusCompleted, Weight: 15000, CreatedAt: thisMonth, UpdatedAt: thisMonth},
		{Kind: enums.LedgerKindDonation, ResourceID: campaign.ID, SubjectID: "pay_2", Status: enums.LedgerStatusCompleted, Weight: 10000, CreatedAt: lastMonth, UpdatedAt: lastMonth},
		{Kind: enums.LedgerKindDonation, ResourceID: campaign.ID, SubjectID: "pay_3", Status: enums.LedgerStatusPending, Weight: 99900, CreatedAt: thisMonth, UpdatedAt: thisMonth},
		{Kind: enums.LedgerKindDonation, ResourceID: campaign.ID, SubjectID: "pay_4", Status: enums.LedgerStatusCompleted, Weight: 500, CreatedAt: older, UpdatedAt: older},
		{Kind: enums.LedgerKindMentorshipConnection, ResourceID: uuid.New(), SubjectID: "m1", Status: enums.LedgerStatusActive, Weight: 1, CreatedAt: thisMonth, UpdatedAt: thisMonth},
		{Kind: enums.LedgerKindMentorshipConnection, ResourceID: uuid.New(), SubjectID: "m2", Status: enums.LedgerStatusPending, Weight: 1, CreatedAt: lastMonth, UpdatedAt: lastMonth},
	}
	for i := range ledgers {
		require.NoError(t, f.conn.Create(&ledgers[i]).Error)
	}
}

func TestGetDashboardMetrics(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)

	m, err := f.agg.GetDashboardMetrics(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Total: 6, ThisMonth: 3, LastMonth: 2, Growth: 50}, m.Alumni)
	assert.Equal(t, Summary{Total: 3, ThisMonth: 1, LastMonth: 2, Growth: -50}, m.Events)
	assert.Equal(t, int64(1), m.UpcomingEvents)

	assert.Equal(t, "255.00", m.Donations.Total.StringFixed(2))
	assert.Equal(t, "150.00", m.Donations.ThisMonth.StringFixed(2))
	assert.Equal(t, "100.00", m.Donations.LastMonth.StringFixed(2))
	assert.Equal(t, 50.0, m.Donations.Growth)

	assert.Equal(t, Summary{Total: 1, ThisMonth: 1, LastMonth: 1, Growth: 0}, m.Mentorships)

	require.Len(t, m.MonthlyDonations, 3)
	assert.Equal(t, "2026-07", m.MonthlyDonations[0].Month)
	assert.Equal(t, "2026-09", m.MonthlyDonations[2].Month)
	assert.Equal(t, "100.00", m.MonthlyDonations[1].Amount.StringFixed(2))
}

func TestDashboardMetricsAreCachedUntilInvalidated(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	ctx := context.Background()

	first, err := f.agg.GetDashboardMetrics(ctx)
	require.NoError(t, err)
	require.NoError(t, f.conn.Create(&models.AlumniProfile{FullName: "Late", CreatedAt: now}).Error)

	cached, err := f.agg.GetDashboardMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Alumni.Total, cached.Alumni.Total)

	f.agg.Invalidate(ctx)
	fresh, err := f.agg.GetDashboardMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Alumni.Total+1, fresh.Alumni.Total)
}

type failingRepo struct {
	Repository
	fail bool
}

func (r *failingRepo) CountMentorships(ctx context.Context, w Window) (int64, error) {
	if r.fail {
		return 0, errors.New("connection reset")
	}
	return r.Repository.CountMentorships(ctx, w)
}

// pausingRepo holds the first all-time alumni count after it has read the
// database, so a load can be caught between its queries and its cache write.
type pausingRepo struct {
	Repository
	paused  atomic.Bool
	reached chan struct{}
	resume  chan struct{}
}

func (r *pausingRepo) CountAlumni(ctx context.Context, w Window) (int64, error) {
	n, err := r.Repository.CountAlumni(ctx, w)
	if w == (Window{}) && r.paused.CompareAndSwap(false, true) {
		close(r.reached)
		<-r.resume
	}
	return n, err
}

func TestInvalidateDuringLoadServesFreshMetrics(t *testing.T) {
	repo := &pausingRepo{reached: make(chan struct{}), resume: make(chan struct{})}
	f := newFixture(t, func(conn *gorm.DB) Repository {
		repo.Repository = NewRepository(conn)
		return repo
	})
	f.seed(t)
	ctx := context.Background()

	type result struct {
		metrics *Metrics
		err     error
	}
	inFlight := make(chan result, 1)
	go func() {
		m, err := f.agg.GetDashboardMetrics(ctx)
		inFlight <- result{metrics: m, err: err}
	}()
	<-repo.reached

	require.NoError(t, f.conn.Create(&models.AlumniProfile{FullName: "Late", CreatedAt: now}).Error)
	f.agg.Invalidate(ctx)

	fresh, err := f.agg.GetDashboardMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), fresh.Alumni.Total)

	close(repo.resume)
	res := <-inFlight
	require.NoError(t, res.err)
	assert.Equal(t, int64(6), res.metrics.Alumni.Total)

	cached, err := f.agg.GetDashboardMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cached.Alumni.Total, "the earlier load must not overwrite the cache")
}

func TestAggregationFailureIsNotCached(t *testing.T) {
	repo := &failingRepo{fail: true}
	f := newFixture(t, func(conn *gorm.DB) Repository {
		repo.Repository = NewRepository(conn)
		return repo
	})
	ctx := context.Background()

	_, err := f.agg.GetDashboardMetrics(ctx)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAggregationFailed))
	assert.Equal(t, 0, f.cache.Len())

	repo.fail = false
	m, err := f.agg.GetDashboardMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.Alumni.Total)
	assert.Equal(t, 1, f.cache.Len())
}

func TestUnreadableCacheEntryIsRecomputed(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	f.cache.Set(MetricsKey, []byte("{not json"), time.Minute)

	m, err := f.agg.GetDashboardMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(6), m.Alumni.Total)

	_, err = f.agg.GetDashboardMetrics(context.Background())
	require.NoError(t, err)
}

func TestGetRecentActivities(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t)
	ctx := context.Background()

	feed, err := f.agg.GetRecentActivities(ctx, 4)
	require.NoError(t, err)
	require.Len(t, feed, 4)
	for i := 1; i < len(feed); i++ {
		assert.False(t, feed[i].Timestamp.After(feed[i-1].Timestamp), "feed must be newest first")
	}

	full, err := f.agg.GetRecentActivities(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, full, DefaultActivitiesLimit)

	types := map[enums.ActivityType]int{}
	all, err := f.agg.GetRecentActivities(ctx, 500)
	require.NoError(t, err)
	for _, a := range all {
		types[a.Type]++
		if a.Type == enums.ActivityTypeDonation {
			require.NotNil(t, a.Amount)
			assert.Equal(t, "Scholarships", a.Title)
		}
	}
	assert.Equal(t, 6, types[enums.ActivityTypeNewProfile])
	assert.Equal(t, 3, types[enums.ActivityTypeNewEvent])
	assert.Equal(t, 3, types[enums.ActivityTypeDonation], "only completed donations appear")
	assert.Equal(t, 2, types[enums.ActivityTypeNewMentorship])

	_, cached := f.cache.Get(ActivitiesKey(MaxActivitiesLimit))
	assert.True(t, cached, "oversized limits are clamped before keying")
}

// Package dashboard computes cross-collection dashboard aggregates and caches
// their serialized form.
package dashboard

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	pkgerrors "github.com/angelmondragon/alumnet-backend/pkg/errors"
	"github.com/angelmondragon/alumnet-backend/pkg/logger"
)

const (
	MetricsKey          = "dashboard:metrics"
	activitiesKeyPrefix = "dashboard:activities:"
	keyPrefix           = "dashboard:"

	DefaultMetricsTTL      = 300 * time.Second
	DefaultActivitiesTTL   = 120 * time.Second
	DefaultActivitiesLimit = 10
	MaxActivitiesLimit     = 50
	defaultBreakdownMonths = 6
)

// ActivitiesKey is the cache key for a feed of limit entries.
func ActivitiesKey(limit int) string {
	return fmt.Sprintf("%s%d", activitiesKeyPrefix, limit)
}

// Cache is the subset of the TTL cache the aggregator needs.
type Cache interface {
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
	DeletePrefix(prefix string) int
	GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(ctx context.Context) ([]byte, error)) ([]byte, error)
}

type Options struct {
	MetricsTTL      time.Duration
	ActivitiesTTL   time.Duration
	QueryTimeout    time.Duration
	BreakdownMonths int
	DefaultLimit    int
	Now             func() time.Time
}

// Aggregator serves dashboard metrics and the recent-activity feed.
type Aggregator struct {
	repo  Repository
	cache Cache
	logg  *logger.Logger

	metricsTTL    time.Duration
	activitiesTTL time.Duration
	queryTimeout  time.Duration
	months        int
	defaultLimit  int
	now           func() time.Time
}

func NewAggregator(repo Repository, cache Cache, logg *logger.Logger, opts Options) (*Aggregator, error) {
	if repo == nil {
		return nil, fmt.Errorf("dashboard repository required")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	a := &Aggregator{
		repo:          repo,
		cache:         cache,
		logg:          logg,
		metricsTTL:    opts.MetricsTTL,
		activitiesTTL: opts.ActivitiesTTL,
		queryTimeout:  opts.QueryTimeout,
		months:        opts.BreakdownMonths,
		defaultLimit:  opts.DefaultLimit,
		now:           opts.Now,
	}
	if a.metricsTTL <= 0 {
		a.metricsTTL = DefaultMetricsTTL
	}
	if a.activitiesTTL <= 0 {
		a.activitiesTTL = DefaultActivitiesTTL
	}
	if a.months <= 0 {
		a.months = defaultBreakdownMonths
	}
	if a.defaultLimit <= 0 || a.defaultLimit > MaxActivitiesLimit {
		a.defaultLimit = DefaultActivitiesLimit
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

// GetDashboardMetrics returns the cached aggregate, computing it on a miss.
func (a *Aggregator) GetDashboardMetrics(ctx context.Context) (*Metrics, error) {
	payload, err := a.cache.GetOrLoad(ctx, MetricsKey, a.metricsTTL, func(ctx context.Context) ([]byte, error) {
		metrics, err := a.computeMetrics(ctx)
		if err != nil {
			return nil, err
		}
		return encode(metrics)
	})
	if err != nil {
		return nil, err
	}

	var metrics Metrics
	if err := json.Unmarshal(payload, &metrics); err != nil {
		a.cacheUnavailable(ctx, MetricsKey, err)
		fresh, err := a.computeMetrics(ctx)
		if err != nil {
			return nil, err
		}
		if raw, err := encode(fresh); err == nil {
			a.cache.Set(MetricsKey, raw, a.metricsTTL)
		}
		return fresh, nil
	}
	return &metrics, nil
}

// GetRecentActivities returns up to limit entries, newest first. limit <= 0
// uses the default and values above MaxActivitiesLimit are clamped.
func (a *Aggregator) GetRecentActivities(ctx context.Context, limit int) ([]Activity, error) {
	limit = a.normalizeLimit(limit)
	key := ActivitiesKey(limit)
	payload, err := a.cache.GetOrLoad(ctx, key, a.activitiesTTL, func(ctx context.Context) ([]byte, error) {
		activities, err := a.computeActivities(ctx, limit)
		if err != nil {
			return nil, err
		}
		return encode(activities)
	})
	if err != nil {
		return nil, err
	}

	var activities []Activity
	if err := json.Unmarshal(payload, &activities); err != nil {
		a.cacheUnavailable(ctx, key, err)
		fresh, err := a.computeActivities(ctx, limit)
		if err != nil {
			return nil, err
		}
		if raw, err := encode(fresh); err == nil {
			a.cache.Set(key, raw, a.activitiesTTL)
		}
		return fresh, nil
	}
	return activities, nil
}

// Invalidate drops every cached dashboard payload and any load still running
// for one.
func (a *Aggregator) Invalidate(ctx context.Context) {
	if removed := a.cache.DeletePrefix(keyPrefix); removed > 0 {
		a.logg.Debug(a.logg.WithField(ctx, "evicted", removed), "dashboard cache invalidated")
	}
}

func (a *Aggregator) normalizeLimit(limit int) int {
	if limit <= 0 {
		return a.defaultLimit
	}
	if limit > MaxActivitiesLimit {
		return MaxActivitiesLimit
	}
	return limit
}

func (a *Aggregator) cacheUnavailable(ctx context.Context, key string, cause error) {
	err := pkgerrors.Wrap(pkgerrors.CodeCacheUnavailable, cause, "decode cached dashboard payload")
	ctx = a.logg.WithFields(ctx, map[string]any{"cache_key": key, "error": err.Error()})
	a.logg.Warn(ctx, "discarding unreadable cache entry")
	a.cache.Delete(key)
}

func (a *Aggregator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.queryTimeout)
}

func (a *Aggregator) computeMetrics(ctx context.Context) (*Metrics, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	now := a.now().UTC()
	thisMonth := startOfMonth(now)
	current := Window{From: thisMonth}
	previous := Window{From: thisMonth.AddDate(0, -1, 0), To: thisMonth}

	var (
		alumniTotal, alumniThis, alumniPrev int64
		eventsTotal, eventsThis, eventsPrev int64
		upcoming                            int64
		donationTotal, donationThis         int64
		donationPrev                        int64
		mentorActive, mentorThis            int64
		mentorPrev                          int64
		monthly                             = make([]int64, a.months)
	)

	g, gctx := errgroup.WithContext(ctx)
	count := func(dst *int64, fn func(context.Context) (int64, error)) {
		g.Go(func() error {
			v, err := fn(gctx)
			if err != nil {
				return err
			}
			*dst = v
			return nil
		})
	}
	windowed := func(fn func(context.Context, Window) (int64, error), w Window) func(context.Context) (int64, error) {
		return func(ctx context.Context) (int64, error) { return fn(ctx, w) }
	}

	count(&alumniTotal, windowed(a.repo.CountAlumni, Window{}))
	count(&alumniThis, windowed(a.repo.CountAlumni, current))
	count(&alumniPrev, windowed(a.repo.CountAlumni, previous))
	count(&eventsTotal, windowed(a.repo.CountEvents, Window{}))
	count(&eventsThis, windowed(a.repo.CountEvents, current))
	count(&eventsPrev, windowed(a.repo.CountEvents, previous))
	count(&upcoming, func(ctx context.Context) (int64, error) { return a.repo.CountUpcomingEvents(ctx, now) })
	count(&donationTotal, windowed(a.repo.SumCompletedDonations, Window{}))
	count(&donationThis, windowed(a.repo.SumCompletedDonations, current))
	count(&donationPrev, windowed(a.repo.SumCompletedDonations, previous))
	count(&mentorActive, a.repo.CountActiveMentorships)
	count(&mentorThis, windowed(a.repo.CountMentorships, current))
	count(&mentorPrev, windowed(a.repo.CountMentorships, previous))

	months := make([]time.Time, a.months)
	for i := range months {
		// oldest first
		start := thisMonth.AddDate(0, i-(a.months-1), 0)
		months[i] = start
		count(&monthly[i], windowed(a.repo.SumCompletedDonations, Window{From: start, To: start.AddDate(0, 1, 0)}))
	}

	if err := g.Wait(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAggregationFailed, err, "compute dashboard metrics")
	}

	breakdown := make([]MonthlyAmount, 0, len(months))
	for i, start := range months {
		breakdown = append(breakdown, MonthlyAmount{
			Month:  start.Format("2006-01"),
			Amount: centsToDecimal(monthly[i]),
		})
	}

	return &Metrics{
		Alumni: Summary{
			Total:     alumniTotal,
			ThisMonth: alumniThis,
			LastMonth: alumniPrev,
			Growth:    Growth(float64(alumniThis), float64(alumniPrev)),
		},
		Events: Summary{
			Total:     eventsTotal,
			ThisMonth: eventsThis,
			LastMonth: eventsPrev,
			Growth:    Growth(float64(eventsThis), float64(eventsPrev)),
		},
		UpcomingEvents: upcoming,
		Donations: MoneySummary{
			Total:     centsToDecimal(donationTotal),
			ThisMonth: centsToDecimal(donationThis),
			LastMonth: centsToDecimal(donationPrev),
			Growth:    Growth(float64(donationThis), float64(donationPrev)),
		},
		Mentorships: Summary{
			Total:     mentorActive,
			ThisMonth: mentorThis,
			LastMonth: mentorPrev,
			Growth:    Growth(float64(mentorThis), float64(mentorPrev)),
		},
		MonthlyDonations: breakdown,
		GeneratedAt:      now,
	}, nil
}

func (a *Aggregator) computeActivities(ctx context.Context, limit int) ([]Activity, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	sources := []func(context.Context, int) ([]Activity, error){
		a.repo.RecentProfiles,
		a.repo.RecentEvents,
		a.repo.RecentDonations,
		a.repo.RecentMentorships,
	}
	results := make([][]Activity, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, source := range sources {
		g.Go(func() error {
			rows, err := source(gctx, limit)
			if err != nil {
				return err
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeAggregationFailed, err, "compute recent activities")
	}

	merged := make([]Activity, 0, limit*len(sources))
	for _, rows := range results {
		merged = append(merged, rows...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].Timestamp.Equal(merged[j].Timestamp) {
			return merged[i].Timestamp.After(merged[j].Timestamp)
		}
		return merged[i].ID.String() < merged[j].ID.String()
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// Growth is the percentage change from previous to current rounded to two
// places, or 0 when there is no previous value to compare against.
func Growth(current, previous float64) float64 {
	if previous <= 0 {
		return 0
	}
	return math.Round((current-previous)/previous*100*100) / 100
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func centsToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode dashboard payload")
	}
	return raw, nil
}

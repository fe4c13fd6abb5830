package cron

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/alumnet-backend/internal/counters"
	"github.com/angelmondragon/alumnet-backend/internal/lifecycle"
	"github.com/angelmondragon/alumnet-backend/pkg/logger"
	"github.com/angelmondragon/alumnet-backend/pkg/metrics"
)

const (
	counterReconcileJobName = "counter-reconcile"
	defaultMaxRepairs       = 500
)

// CounterReconcileJobParams wires the counter reconciliation job.
type CounterReconcileJobParams struct {
	Logger      *logger.Logger
	Definitions []lifecycle.Definition
	DB          txRunner
	Ledgers     lifecycle.Repository
	Counters    counters.Repository
	Metrics     *metrics.LifecycleMetrics
	DryRun      bool
	MaxRepairs  int
}

// CounterReconcileJob recomputes every capacity counter from the ledger rows
// in its counted statuses and overwrites counters that drifted.
type CounterReconcileJob struct {
	logg        *logger.Logger
	definitions []lifecycle.Definition
	db          txRunner
	ledgers     lifecycle.Repository
	counters    counters.Repository
	metrics     *metrics.LifecycleMetrics
	dryRun      bool
	maxRepairs  int
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ReconcileReport summarizes one run.
type ReconcileReport struct {
	Checked  int
	Drifted  int
	Repaired int
}

// NewCounterReconcileJob builds the job.
func NewCounterReconcileJob(params CounterReconcileJobParams) (*CounterReconcileJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Ledgers == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Counters == nil {
		return nil, fmt.Errorf("counter repository required")
	}
	definitions := params.Definitions
	if len(definitions) == 0 {
		definitions = lifecycle.Definitions()
	}
	maxRepairs := params.MaxRepairs
	if maxRepairs <= 0 {
		maxRepairs = defaultMaxRepairs
	}
	return &CounterReconcileJob{
		logg:        params.Logger,
		definitions: definitions,
		db:          params.DB,
		ledgers:     params.Ledgers,
		counters:    params.Counters,
		metrics:     params.Metrics,
		dryRun:      params.DryRun,
		maxRepairs:  maxRepairs,
	}, nil
}

func (j *CounterReconcileJob) Name() string { return counterReconcileJobName }

func (j *CounterReconcileJob) Run(ctx context.Context) error {
	_, err := j.Reconcile(ctx)
	return err
}

// Reconcile walks every counter of every ledger kind. A failure on one counter
// is recorded and the walk continues; all failures are returned together.
func (j *CounterReconcileJob) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var (
		report ReconcileReport
		errs   error
	)
	for _, def := range j.definitions {
		rows, err := j.counters.List(ctx, def.CounterKind())
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("list %s counters: %w", def.CounterKind(), err))
			continue
		}
		for _, row := range rows {
			if ctx.Err() != nil {
				return report, multierr.Append(errs, ctx.Err())
			}
			if report.Repaired >= j.maxRepairs {
				j.logg.Warn(j.logg.WithField(ctx, "max_repairs", j.maxRepairs), "repair limit reached; remaining counters deferred to next run")
				return report, errs
			}
			key := counters.Key{Kind: def.CounterKind(), ResourceID: row.ResourceID}
			drifted, repaired, err := j.reconcileOne(ctx, def, key)
			report.Checked++
			if drifted {
				report.Drifted++
			}
			if repaired {
				report.Repaired++
			}
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("reconcile %s: %w", key, err))
			}
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"checked":  report.Checked,
		"drifted":  report.Drifted,
		"repaired": report.Repaired,
		"dry_run":  j.dryRun,
	}), "counter reconciliation finished")
	return report, errs
}

var errNoRepair = errors.New("dry run")

func (j *CounterReconcileJob) reconcileOne(ctx context.Context, def lifecycle.Definition, key counters.Key) (drifted, repaired bool, err error) {
	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		counterRepo := j.counters.WithTx(tx)
		// Hold the row so no transition moves it between the sum and the write.
		if err := counterRepo.Touch(ctx, key); err != nil {
			return err
		}
		stored, err := counterRepo.Get(ctx, key)
		if err != nil {
			return err
		}
		want, err := j.ledgers.WithTx(tx).SumWeights(ctx, def.Kind(), key.ResourceID, def.CountedStatuses())
		if err != nil {
			return err
		}
		if stored.Current == want {
			return nil
		}
		drifted = true
		j.metrics.IncDrift(string(def.Kind()))
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"counter":  key.String(),
			"stored":   stored.Current,
			"computed": want,
			"dry_run":  j.dryRun,
		})
		if stored.Ceiling != nil && want > *stored.Ceiling {
			logCtx = j.logg.WithField(logCtx, "ceiling", *stored.Ceiling)
		}
		j.logg.Warn(logCtx, "capacity counter drift detected")
		if j.dryRun {
			return errNoRepair
		}
		ok, err := counterRepo.Overwrite(ctx, key, stored.Current, want)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("counter changed during repair")
		}
		repaired = true
		return nil
	})
	if errors.Is(err, errNoRepair) {
		err = nil
	}
	return drifted, repaired, err
}

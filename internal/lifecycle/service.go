package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/alumnet-backend/internal/counters"
	"github.com/angelmondragon/alumnet-backend/pkg/db"
	"github.com/angelmondragon/alumnet-backend/pkg/db/models"
	"github.com/angelmondragon/alumnet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/alumnet-backend/pkg/errors"
	"github.com/angelmondragon/alumnet-backend/pkg/logger"
	"github.com/angelmondragon/alumnet-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Invalidator is notified after every committed transition so derived views
// (dashboard aggregates) can drop stale copies.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Service applies one Definition's transitions.
type Service interface {
	Definition() Definition
	Transition(ctx context.Context, input TransitionInput) (*TransitionResult, error)
	// Provision creates the resource's counter inside the caller's transaction.
	Provision(ctx context.Context, tx *gorm.DB, resourceID uuid.UUID, ceiling *int64) (*models.CapacityCounter, error)
	// Resize changes the ceiling under the resource lock; sync runs in the same
	// transaction so the owning row can be updated alongside.
	Resize(ctx context.Context, resourceID uuid.UUID, ceiling *int64, sync func(tx *gorm.DB) error) (*models.CapacityCounter, error)
	Counter(ctx context.Context, resourceID uuid.UUID) (*models.CapacityCounter, error)
	Ledger(ctx context.Context, id uuid.UUID) (*models.Ledger, error)
	FindBySubject(ctx context.Context, resourceID uuid.UUID, subjectID string) (*models.Ledger, error)
	List(ctx context.Context, resourceID uuid.UUID, statuses ...enums.LedgerStatus) ([]models.Ledger, error)
}

// TransitionInput addresses a ledger either by LedgerID or by
// (ResourceID, SubjectID). Only the latter can create a ledger.
type TransitionInput struct {
	LedgerID   uuid.UUID
	ResourceID uuid.UUID
	SubjectID  string
	Action     Action
	// Weight applies when the ledger is created; zero means 1.
	Weight  int64
	ActorID string
}

// TransitionResult describes a committed transition.
type TransitionResult struct {
	Ledger      models.Ledger
	Previous    enums.LedgerStatus
	Effect      Effect
	Counter     *models.CapacityCounter
	Created     bool
	Reactivated bool
}

// ServiceParams wires a Service.
type ServiceParams struct {
	Definition  Definition
	DB          txRunner
	Ledgers     Repository
	Counters    counters.Repository
	Locks       *KeyLock
	Logger      *logger.Logger
	Metrics     *metrics.LifecycleMetrics
	Invalidator Invalidator
	Timeout     time.Duration
	Now         func() time.Time
}

type service struct {
	def         Definition
	db          txRunner
	ledgers     Repository
	counters    counters.Repository
	locks       *KeyLock
	logg        *logger.Logger
	metrics     *metrics.LifecycleMetrics
	invalidator Invalidator
	timeout     time.Duration
	now         func() time.Time
}

// NewService validates the params and builds a Service.
func NewService(params ServiceParams) (Service, error) {
	if !params.Definition.Kind().IsValid() {
		return nil, fmt.Errorf("lifecycle definition required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledgers == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Counters == nil {
		return nil, fmt.Errorf("counter repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	locks := params.Locks
	if locks == nil {
		locks = NewKeyLock()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		def:         params.Definition,
		db:          params.DB,
		ledgers:     params.Ledgers,
		counters:    params.Counters,
		locks:       locks,
		logg:        params.Logger,
		metrics:     params.Metrics,
		invalidator: params.Invalidator,
		timeout:     params.Timeout,
		now:         now,
	}, nil
}

func (s *service) Definition() Definition {
	return s.def
}

func (s *service) counterKey(resourceID uuid.UUID) counters.Key {
	return counters.Key{Kind: s.def.CounterKind(), ResourceID: resourceID}
}

func (s *service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	started := time.Now()
	result, err := s.transition(ctx, input)
	s.metrics.ObserveTransition(s.def.Kind().String(), input.Action.String(), outcomeFor(err), time.Since(started))
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"ledger_kind": s.def.Kind().String(),
		"ledger_id":   result.Ledger.ID.String(),
		"resource_id": result.Ledger.ResourceID.String(),
		"action":      input.Action.String(),
		"from":        result.Previous.String(),
		"to":          result.Ledger.Status.String(),
		"effect":      result.Effect.String(),
	})
	if input.ActorID != "" {
		ctx = s.logg.WithActorID(ctx, input.ActorID)
	}
	s.logg.Info(ctx, "ledger transition applied")

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	return result, nil
}

func (s *service) transition(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	if input.Action == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "action required")
	}
	byID := input.LedgerID != uuid.Nil
	if !byID {
		if input.ResourceID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "resource id required")
		}
		if strings.TrimSpace(input.SubjectID) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "subject id required")
		}
	}
	if input.Weight < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "weight must be positive")
	}
	weight := input.Weight
	if weight == 0 {
		weight = 1
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resourceID := input.ResourceID
	if byID {
		// resource_id never changes, so it is safe to read before locking.
		ledger, err := s.Ledger(ctx, input.LedgerID)
		if err != nil {
			return nil, err
		}
		resourceID = ledger.ResourceID
	}

	key := s.counterKey(resourceID)
	release, err := s.locks.Acquire(ctx, key.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire resource lock")
	}
	defer release()

	var result *TransitionResult
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		ledgers := s.ledgers.WithTx(tx)
		counterRepo := s.counters.WithTx(tx)

		current, err := s.load(ctx, ledgers, input, resourceID)
		if err != nil {
			return err
		}

		from := enums.LedgerStatusNone
		if current != nil {
			from = current.Status
		}
		t, ok := s.def.Lookup(from, input.Action)
		if !ok {
			if current != nil && !byID && s.def.Creates(input.Action) {
				return pkgerrors.New(pkgerrors.CodeAlreadyExists, "ledger already exists").WithDetails(map[string]any{
					"ledger_id": current.ID.String(),
					"status":    current.Status.String(),
				})
			}
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "transition not allowed").WithDetails(map[string]any{
				"kind":   s.def.Kind().String(),
				"from":   from.String(),
				"action": input.Action.String(),
			})
		}

		effectWeight := weight
		if current != nil {
			effectWeight = current.Weight
		}
		counter, err := s.applyEffect(ctx, counterRepo, key, t.Effect, effectWeight)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if current == nil {
			created := &models.Ledger{
				Kind:       s.def.Kind(),
				ResourceID: resourceID,
				SubjectID:  input.SubjectID,
				Status:     t.To,
				Weight:     weight,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := ledgers.Create(ctx, created); err != nil {
				if db.IsUniqueViolation(err, "status_ledgers") {
					return pkgerrors.New(pkgerrors.CodeAlreadyExists, "ledger already exists")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create ledger")
			}
			result = &TransitionResult{Ledger: *created, Previous: from, Effect: t.Effect, Counter: counter, Created: true}
			return nil
		}

		changed, err := ledgers.CompareAndSetStatus(ctx, current.ID, from, t.To, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update ledger status")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeConflict, "ledger changed concurrently")
		}
		updated := *current
		updated.Status = t.To
		updated.UpdatedAt = now
		result = &TransitionResult{
			Ledger:      updated,
			Previous:    from,
			Effect:      t.Effect,
			Counter:     counter,
			Reactivated: from == enums.LedgerStatusCancelled,
		}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply transition")
	}
	return result, nil
}

func (s *service) load(ctx context.Context, ledgers Repository, input TransitionInput, resourceID uuid.UUID) (*models.Ledger, error) {
	var (
		ledger *models.Ledger
		err    error
	)
	if input.LedgerID != uuid.Nil {
		ledger, err = ledgers.FindByID(ctx, input.LedgerID)
	} else {
		ledger, err = ledgers.FindBySubject(ctx, s.def.Kind(), resourceID, input.SubjectID)
	}
	if err != nil {
		if isNotFound(err) {
			if input.LedgerID != uuid.Nil {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ledger not found")
			}
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger")
	}
	if ledger.Kind != s.def.Kind() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ledger not found")
	}
	return ledger, nil
}

func (s *service) applyEffect(ctx context.Context, repo counters.Repository, key counters.Key, effect Effect, weight int64) (*models.CapacityCounter, error) {
	switch effect {
	case EffectReserve:
		return repo.Reserve(ctx, key, weight)
	case EffectRelease:
		return repo.Release(ctx, key, weight)
	case EffectAccumulate:
		return repo.Accumulate(ctx, key, weight)
	case EffectDeduct:
		return repo.Accumulate(ctx, key, -weight)
	default:
		counter, err := repo.Get(ctx, key)
		if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
		return counter, nil
	}
}

func (s *service) Provision(ctx context.Context, tx *gorm.DB, resourceID uuid.UUID, ceiling *int64) (*models.CapacityCounter, error) {
	return s.counters.WithTx(tx).Ensure(ctx, s.counterKey(resourceID), ceiling)
}

func (s *service) Resize(ctx context.Context, resourceID uuid.UUID, ceiling *int64, sync func(tx *gorm.DB) error) (*models.CapacityCounter, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	key := s.counterKey(resourceID)
	release, err := s.locks.Acquire(ctx, key.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire resource lock")
	}
	defer release()

	var counter *models.CapacityCounter
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		counter, err = s.counters.WithTx(tx).Resize(ctx, key, ceiling)
		if err != nil {
			return err
		}
		if sync != nil {
			return sync(tx)
		}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resize counter")
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	return counter, nil
}

func (s *service) Counter(ctx context.Context, resourceID uuid.UUID) (*models.CapacityCounter, error) {
	return s.counters.Get(ctx, s.counterKey(resourceID))
}

func (s *service) Ledger(ctx context.Context, id uuid.UUID) (*models.Ledger, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger id required")
	}
	ledger, err := s.ledgers.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ledger not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger")
	}
	if ledger.Kind != s.def.Kind() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ledger not found")
	}
	return ledger, nil
}

func (s *service) FindBySubject(ctx context.Context, resourceID uuid.UUID, subjectID string) (*models.Ledger, error) {
	ledger, err := s.ledgers.FindBySubject(ctx, s.def.Kind(), resourceID, subjectID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ledger not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger")
	}
	return ledger, nil
}

func (s *service) List(ctx context.Context, resourceID uuid.UUID, statuses ...enums.LedgerStatus) ([]models.Ledger, error) {
	ledgers, err := s.ledgers.ListByResource(ctx, s.def.Kind(), resourceID, statuses)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledgers")
	}
	return ledgers, nil
}

func outcomeFor(err error) string {
	if err == nil {
		return metrics.OutcomeApplied
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return metrics.OutcomeFailed
	}
	switch typed.Code() {
	case pkgerrors.CodeDependency, pkgerrors.CodeInternal:
		return metrics.OutcomeFailed
	default:
		return metrics.OutcomeRejected
	}
}

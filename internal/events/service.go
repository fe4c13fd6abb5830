// Package events manages events and seat registrations on top of the
// lifecycle engine.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/alumnet-backend/internal/lifecycle"
	"github.com/angelmondragon/alumnet-backend/pkg/db/models"
	"github.com/angelmondragon/alumnet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/alumnet-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes event and registration operations.
type Service interface {
	CreateEvent(ctx context.Context, input CreateEventInput) (*EventDTO, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*EventDTO, error)
	UpdateCapacity(ctx context.Context, id uuid.UUID, capacity int64) (*EventDTO, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.EventStatus) (*EventDTO, error)
	Register(ctx context.Context, input RegisterInput) (*RegistrationDTO, error)
	MarkAttended(ctx context.Context, registrationID uuid.UUID, actorID string) (*RegistrationDTO, error)
	Cancel(ctx context.Context, registrationID uuid.UUID, actorID string) (*RegistrationDTO, error)
	Registration(ctx context.Context, registrationID uuid.UUID) (*RegistrationDTO, error)
	ListRegistrations(ctx context.Context, eventID uuid.UUID, statuses []enums.LedgerStatus) ([]RegistrationDTO, error)
}

// ServiceParams wires the events service.
type ServiceParams struct {
	Repo            Repository
	DB              txRunner
	Lifecycle       lifecycle.Service
	Invalidator     lifecycle.Invalidator
	DefaultCapacity int64
	Now             func() time.Time
}

type service struct {
	repo            Repository
	db              txRunner
	lifecycle       lifecycle.Service
	invalidator     lifecycle.Invalidator
	defaultCapacity int64
	now             func() time.Time
}

// NewService builds the events service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("events repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Lifecycle == nil {
		return nil, fmt.Errorf("lifecycle service required")
	}
	if params.Lifecycle.Definition().Kind() != enums.LedgerKindEventRegistration {
		return nil, fmt.Errorf("lifecycle service must govern event registrations")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:            params.Repo,
		db:              params.DB,
		lifecycle:       params.Lifecycle,
		invalidator:     params.Invalidator,
		defaultCapacity: params.DefaultCapacity,
		now:             now,
	}, nil
}

func (s *service) CreateEvent(ctx context.Context, input CreateEventInput) (*EventDTO, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}
	if input.StartsAt.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "starts_at required")
	}
	capacity := input.Capacity
	if capacity == 0 {
		capacity = s.defaultCapacity
	}
	if capacity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "capacity must be positive")
	}
	if input.RegistrationDeadline != nil && input.RegistrationDeadline.After(input.StartsAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "registration deadline must not be after the event starts")
	}
	status := input.Status
	if status == "" {
		status = enums.EventStatusPublished
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid event status")
	}

	now := s.now().UTC()
	event := &models.Event{
		Title:                title,
		Status:               status,
		Capacity:             capacity,
		StartsAt:             input.StartsAt.UTC(),
		RegistrationDeadline: utcPtr(input.RegistrationDeadline),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	var counter *models.CapacityCounter
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create event")
		}
		var err error
		counter, err = s.lifecycle.Provision(ctx, tx, event.ID, &capacity)
		return err
	})
	if err != nil {
		return nil, asTyped(err, "create event")
	}
	s.invalidate(ctx)

	dto := toEventDTO(*event, counter)
	return &dto, nil
}

func (s *service) GetEvent(ctx context.Context, id uuid.UUID) (*EventDTO, error) {
	event, err := s.loadEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	counter, err := s.lifecycle.Counter(ctx, id)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}
	dto := toEventDTO(*event, counter)
	return &dto, nil
}

func (s *service) UpdateCapacity(ctx context.Context, id uuid.UUID, capacity int64) (*EventDTO, error) {
	if capacity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "capacity must be positive")
	}
	event, err := s.loadEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	counter, err := s.lifecycle.Resize(ctx, id, &capacity, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateCapacity(ctx, id, capacity, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update event capacity")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	event.Capacity = capacity
	event.UpdatedAt = now
	dto := toEventDTO(*event, counter)
	return &dto, nil
}

func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.EventStatus) (*EventDTO, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid event status")
	}
	if _, err := s.loadEvent(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, status, s.now().UTC()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update event status")
	}
	s.invalidate(ctx)
	return s.GetEvent(ctx, id)
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*RegistrationDTO, error) {
	if input.EventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	if input.AlumniID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "alumni id required")
	}
	event, err := s.loadEvent(ctx, input.EventID)
	if err != nil {
		return nil, err
	}
	if err := s.checkOpen(event); err != nil {
		return nil, err
	}

	result, err := s.lifecycle.Transition(ctx, lifecycle.TransitionInput{
		ResourceID: input.EventID,
		SubjectID:  input.AlumniID.String(),
		Action:     lifecycle.ActionRegister,
		ActorID:    input.ActorID,
	})
	if err != nil {
		return nil, err
	}
	dto := toRegistrationDTO(result.Ledger, result.Counter)
	return &dto, nil
}

func (s *service) MarkAttended(ctx context.Context, registrationID uuid.UUID, actorID string) (*RegistrationDTO, error) {
	return s.apply(ctx, registrationID, lifecycle.ActionMarkAttended, actorID)
}

// Cancel gives the seat back. Reactivating a cancelled registration goes
// through Register, which re-checks the event preconditions.
func (s *service) Cancel(ctx context.Context, registrationID uuid.UUID, actorID string) (*RegistrationDTO, error) {
	return s.apply(ctx, registrationID, lifecycle.ActionCancel, actorID)
}

func (s *service) apply(ctx context.Context, registrationID uuid.UUID, action lifecycle.Action, actorID string) (*RegistrationDTO, error) {
	if registrationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "registration id required")
	}
	result, err := s.lifecycle.Transition(ctx, lifecycle.TransitionInput{
		LedgerID: registrationID,
		Action:   action,
		ActorID:  actorID,
	})
	if err != nil {
		return nil, err
	}
	dto := toRegistrationDTO(result.Ledger, result.Counter)
	return &dto, nil
}

func (s *service) Registration(ctx context.Context, registrationID uuid.UUID) (*RegistrationDTO, error) {
	ledger, err := s.lifecycle.Ledger(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	dto := toRegistrationDTO(*ledger, nil)
	return &dto, nil
}

func (s *service) ListRegistrations(ctx context.Context, eventID uuid.UUID, statuses []enums.LedgerStatus) ([]RegistrationDTO, error) {
	if _, err := s.loadEvent(ctx, eventID); err != nil {
		return nil, err
	}
	ledgers, err := s.lifecycle.List(ctx, eventID, statuses...)
	if err != nil {
		return nil, err
	}
	out := make([]RegistrationDTO, 0, len(ledgers))
	for _, ledger := range ledgers {
		out = append(out, toRegistrationDTO(ledger, nil))
	}
	return out, nil
}

func (s *service) checkOpen(event *models.Event) error {
	if !event.Status.OpenForRegistration() {
		return pkgerrors.New(pkgerrors.CodePrecondition, "event is not open for registration").WithDetails(map[string]any{
			"status": event.Status,
		})
	}
	if event.RegistrationDeadline != nil && !s.now().Before(*event.RegistrationDeadline) {
		return pkgerrors.New(pkgerrors.CodePrecondition, "registration deadline has passed").WithDetails(map[string]any{
			"deadline": event.RegistrationDeadline.UTC(),
		})
	}
	return nil
}

func (s *service) loadEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load event")
	}
	return event, nil
}

func (s *service) invalidate(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
}

func asTyped(err error, message string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

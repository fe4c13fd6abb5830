// Package mentorship manages mentor profiles and mentee connections. A
// mentor's active connections are bounded by MaxMentees.
package mentorship

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/alumnet-backend/internal/lifecycle"
	"github.com/angelmondragon/alumnet-backend/pkg/db"
	"github.com/angelmondragon/alumnet-backend/pkg/db/models"
	"github.com/angelmondragon/alumnet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/alumnet-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Service interface {
	CreateMentorProfile(ctx context.Context, input CreateMentorProfileInput) (*MentorDTO, error)
	GetMentor(ctx context.Context, mentorID uuid.UUID) (*MentorDTO, error)
	UpdateMaxMentees(ctx context.Context, mentorID uuid.UUID, maxMentees int64) (*MentorDTO, error)
	SetAccepting(ctx context.Context, mentorID uuid.UUID, accepting bool) (*MentorDTO, error)
	Request(ctx context.Context, input RequestInput) (*ConnectionDTO, error)
	Accept(ctx context.Context, connectionID uuid.UUID, actorID string) (*ConnectionDTO, error)
	Complete(ctx context.Context, connectionID uuid.UUID, actorID string) (*ConnectionDTO, error)
	Cancel(ctx context.Context, connectionID uuid.UUID, actorID string) (*ConnectionDTO, error)
	Connection(ctx context.Context, connectionID uuid.UUID) (*ConnectionDTO, error)
	ListConnections(ctx context.Context, mentorID uuid.UUID, statuses []enums.LedgerStatus) ([]ConnectionDTO, error)
}

type ServiceParams struct {
	Repo              Repository
	DB                txRunner
	Lifecycle         lifecycle.Service
	Invalidator       lifecycle.Invalidator
	DefaultMaxMentees int64
	Now               func() time.Time
}

type service struct {
	repo              Repository
	db                txRunner
	lifecycle         lifecycle.Service
	invalidator       lifecycle.Invalidator
	defaultMaxMentees int64
	now               func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("mentor repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Lifecycle == nil {
		return nil, fmt.Errorf("lifecycle service required")
	}
	if params.Lifecycle.Definition().Kind() != enums.LedgerKindMentorshipConnection {
		return nil, fmt.Errorf("lifecycle service must govern mentorship connections")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:              params.Repo,
		db:                params.DB,
		lifecycle:         params.Lifecycle,
		invalidator:       params.Invalidator,
		defaultMaxMentees: params.DefaultMaxMentees,
		now:               now,
	}, nil
}

func (s *service) CreateMentorProfile(ctx context.Context, input CreateMentorProfileInput) (*MentorDTO, error) {
	if input.AlumniID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "alumni id required")
	}
	maxMentees := input.MaxMentees
	if maxMentees == 0 {
		maxMentees = s.defaultMaxMentees
	}
	if maxMentees <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "max mentees must be positive")
	}

	now := s.now().UTC()
	profile := &models.MentorProfile{
		AlumniID:         input.AlumniID,
		Expertise:        input.Expertise,
		MaxMentees:       maxMentees,
		AcceptingMentees: true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	var counter *models.CapacityCounter
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, profile); err != nil {
			if db.IsUniqueViolation(err, "mentor_profiles") {
				return pkgerrors.New(pkgerrors.CodeAlreadyExists, "mentor profile already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create mentor profile")
		}
		var err error
		counter, err = s.lifecycle.Provision(ctx, tx, profile.ID, &maxMentees)
		return err
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create mentor profile")
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	dto := toMentorDTO(*profile, counter)
	return &dto, nil
}

func (s *service) GetMentor(ctx context.Context, mentorID uuid.UUID) (*MentorDTO, error) {
	profile, err := s.loadProfile(ctx, mentorID)
	if err != nil {
		return nil, err
	}
	counter, err := s.lifecycle.Counter(ctx, mentorID)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}
	dto := toMentorDTO(*profile, counter)
	return &dto, nil
}

func (s *service) UpdateMaxMentees(ctx context.Context, mentorID uuid.UUID, maxMentees int64) (*MentorDTO, error) {
	if maxMentees <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "max mentees must be positive")
	}
	profile, err := s.loadProfile(ctx, mentorID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	counter, err := s.lifecycle.Resize(ctx, mentorID, &maxMentees, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateMaxMentees(ctx, mentorID, maxMentees, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update max mentees")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	profile.MaxMentees = maxMentees
	dto := toMentorDTO(*profile, counter)
	return &dto, nil
}

func (s *service) SetAccepting(ctx context.Context, mentorID uuid.UUID, accepting bool) (*MentorDTO, error) {
	if _, err := s.loadProfile(ctx, mentorID); err != nil {
		return nil, err
	}
	if err := s.repo.SetAccepting(ctx, mentorID, accepting, s.now().UTC()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update mentor availability")
	}
	return s.GetMentor(ctx, mentorID)
}

func (s *service) Request(ctx context.Context, input RequestInput) (*ConnectionDTO, error) {
	if input.MenteeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mentee id required")
	}
	profile, err := s.loadProfile(ctx, input.MentorID)
	if err != nil {
		return nil, err
	}
	if profile.AlumniID == input.MenteeID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mentors cannot mentor themselves")
	}
	if !profile.AcceptingMentees {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "mentor is not accepting mentees")
	}
	result, err := s.lifecycle.Transition(ctx, lifecycle.TransitionInput{
		ResourceID: profile.ID,
		SubjectID:  input.MenteeID.String(),
		Action:     lifecycle.ActionRequest,
		ActorID:    input.ActorID,
	})
	if err != nil {
		return nil, err
	}
	dto := toConnectionDTO(result.Ledger, result.Counter)
	return &dto, nil
}

func (s *service) Accept(ctx context.Context, connectionID uuid.UUID, actorID string) (*ConnectionDTO, error) {
	return s.apply(ctx, connectionID, lifecycle.ActionAccept, actorID)
}

func (s *service) Complete(ctx context.Context, connectionID uuid.UUID, actorID string) (*ConnectionDTO, error) {
	return s.apply(ctx, connectionID, lifecycle.ActionComplete, actorID)
}

func (s *service) Cancel(ctx context.Context, connectionID uuid.UUID, actorID string) (*ConnectionDTO, error) {
	return s.apply(ctx, connectionID, lifecycle.ActionCancel, actorID)
}

func (s *service) apply(ctx context.Context, connectionID uuid.UUID, action lifecycle.Action, actorID string) (*ConnectionDTO, error) {
	if connectionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "connection id required")
	}
	result, err := s.lifecycle.Transition(ctx, lifecycle.TransitionInput{
		LedgerID: connectionID,
		Action:   action,
		ActorID:  actorID,
	})
	if err != nil {
		return nil, err
	}
	dto := toConnectionDTO(result.Ledger, result.Counter)
	return &dto, nil
}

func (s *service) Connection(ctx context.Context, connectionID uuid.UUID) (*ConnectionDTO, error) {
	ledger, err := s.lifecycle.Ledger(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	dto := toConnectionDTO(*ledger, nil)
	return &dto, nil
}

func (s *service) ListConnections(ctx context.Context, mentorID uuid.UUID, statuses []enums.LedgerStatus) ([]ConnectionDTO, error) {
	if _, err := s.loadProfile(ctx, mentorID); err != nil {
		return nil, err
	}
	ledgers, err := s.lifecycle.List(ctx, mentorID, statuses...)
	if err != nil {
		return nil, err
	}
	out := make([]ConnectionDTO, 0, len(ledgers))
	for _, ledger := range ledgers {
		out = append(out, toConnectionDTO(ledger, nil))
	}
	return out, nil
}

func (s *service) loadProfile(ctx context.Context, id uuid.UUID) (*models.MentorProfile, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mentor id required")
	}
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "mentor profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load mentor profile")
	}
	return profile, nil
}

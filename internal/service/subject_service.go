package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/acadex/examtrack-backend/internal/model"
	"github.com/acadex/examtrack-backend/internal/repository"
)

// ErrSubjectExists is returned when creating a subject whose name is taken.
var ErrSubjectExists = errors.New("subject already exists")

type SubjectService struct {
	subjectRepo *repository.SubjectRepository
	log         zerolog.Logger
}

func NewSubjectService(subjectRepo *repository.SubjectRepository, log zerolog.Logger) *SubjectService {
	return &SubjectService{
		subjectRepo: subjectRepo,
		log:         log.With().Str("component", "subject_service").Logger(),
	}
}

func (s *SubjectService) GetAll(ctx context.Context) ([]model.Subject, error) {
	return s.subjectRepo.GetAll(ctx)
}

func (s *SubjectService) Create(ctx context.Context, sub *model.Subject) error {
	err := s.subjectRepo.Create(ctx, sub)
	if errors.Is(err, repository.ErrDuplicate) {
		return ErrSubjectExists
	}
	return err
}

func (s *SubjectService) Update(ctx context.Context, sub *model.Subject) error {
	return s.subjectRepo.Update(ctx, sub)
}

func (s *SubjectService) Delete(ctx context.Context, id int) error {
	return s.subjectRepo.Delete(ctx, id)
}

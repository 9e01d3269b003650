package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/acadex/examtrack-backend/internal/config"
	"github.com/acadex/examtrack-backend/internal/model"
)

// Composer and workflow errors.
var (
	ErrNoQuestions      = errors.New("exam question list is empty")
	ErrExamNotDraft     = errors.New("exam status is not draft")
	ErrExamNotPublished = errors.New("exam status is not published")
)

// AvailabilityError reports which difficulty bucket cannot satisfy an
// auto-composition request. Nothing is written when it is returned.
type AvailabilityError struct {
	Difficulty model.Difficulty
	Requested  int
	Available  int
}

func (e *AvailabilityError) Error() string {
	return fmt.Sprintf("not enough %s questions (requested: %d, available: %d)",
		e.Difficulty, e.Requested, e.Available)
}

// ExamStore is the persistence contract of the exam composer.
type ExamStore interface {
	CreateWithQuestions(ctx context.Context, e *model.Exam, questionIDs []uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListQuestionIDs(ctx context.Context, examID uuid.UUID) ([]uuid.UUID, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus) error
	ListAll(ctx context.Context) ([]model.Exam, error)
}

// QuestionPoolReader is the question access the composer needs.
type QuestionPoolReader interface {
	ListRefsBySubject(ctx context.Context, subjectID int) ([]model.QuestionRef, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// ExamService builds exam definitions, manually or by stratified random
// sampling, and drives the draft/published/closed workflow.
type ExamService struct {
	exams     ExamStore
	questions QuestionPoolReader
	rdb       *redis.Client
	log       zerolog.Logger
	// shuffle permutes the sampling buckets. Swapped for a seeded
	// implementation in tests.
	shuffle func(n int, swap func(i, j int))
}

// NewExamService creates a new ExamService. rdb may be nil; the paper
// cache is then skipped and papers are served from PostgreSQL.
func NewExamService(exams ExamStore, questions QuestionPoolReader, rdb *redis.Client, log zerolog.Logger) *ExamService {
	return &ExamService{
		exams:     exams,
		questions: questions,
		rdb:       rdb,
		log:       log.With().Str("component", "exam_service").Logger(),
		shuffle:   rand.Shuffle,
	}
}

// CreateManual stores an exam with an explicit question list. The exam
// row and its ordered question references are one transaction.
func (s *ExamService) CreateManual(ctx context.Context, creatorID int, req model.CreateExamRequest) (*model.Exam, error) {
	if len(req.QuestionIDs) == 0 {
		return nil, ErrNoQuestions
	}

	exam := &model.Exam{
		SubjectID:       req.SubjectID,
		Name:            req.Name,
		DurationMinutes: req.DurationMinutes,
		CreatedBy:       creatorID,
		StartsAt:        req.StartsAt,
		EndsAt:          req.EndsAt,
		Status:          model.ExamStatusDraft,
	}
	if err := s.exams.CreateWithQuestions(ctx, exam, req.QuestionIDs); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(req.QuestionIDs)).
		Msg("Exam created")
	return exam, nil
}

// CreateAuto composes an exam by stratified sampling: the subject pool
// is partitioned into easy/medium/hard buckets (case-insensitive; any
// other tag is never selectable), every requested count is checked
// against its bucket before anything is written, and each bucket is
// sampled uniformly without replacement. The final list is easy, then
// medium, then hard.
func (s *ExamService) CreateAuto(ctx context.Context, creatorID int, req model.CreateAutoExamRequest) (*model.Exam, error) {
	if req.CountEasy+req.CountMedium+req.CountHard == 0 {
		return nil, ErrNoQuestions
	}

	refs, err := s.questions.ListRefsBySubject(ctx, req.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("list question pool: %w", err)
	}

	buckets := map[model.Difficulty][]uuid.UUID{}
	for _, ref := range refs {
		switch d := model.ParseDifficulty(string(ref.Difficulty)); d {
		case model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard:
			buckets[d] = append(buckets[d], ref.ID)
		}
	}

	wanted := []struct {
		difficulty model.Difficulty
		count      int
	}{
		{model.DifficultyEasy, req.CountEasy},
		{model.DifficultyMedium, req.CountMedium},
		{model.DifficultyHard, req.CountHard},
	}

	// All-or-nothing: every shortfall is detected before any mutation.
	for _, w := range wanted {
		if w.count > len(buckets[w.difficulty]) {
			return nil, &AvailabilityError{
				Difficulty: w.difficulty,
				Requested:  w.count,
				Available:  len(buckets[w.difficulty]),
			}
		}
	}

	var selected []uuid.UUID
	for _, w := range wanted {
		selected = append(selected, s.sample(buckets[w.difficulty], w.count)...)
	}

	exam := &model.Exam{
		SubjectID:       req.SubjectID,
		Name:            req.Name,
		DurationMinutes: req.DurationMinutes,
		CreatedBy:       creatorID,
		StartsAt:        req.StartsAt,
		EndsAt:          req.EndsAt,
		Status:          model.ExamStatusDraft,
	}
	if err := s.exams.CreateWithQuestions(ctx, exam, selected); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Int("easy", req.CountEasy).
		Int("medium", req.CountMedium).
		Int("hard", req.CountHard).
		Msg("Auto exam composed")
	return exam, nil
}

// sample draws count ids uniformly without replacement. A full shuffle
// of a copy keeps the draw unbiased by insertion order.
func (s *ExamService) sample(pool []uuid.UUID, count int) []uuid.UUID {
	picked := make([]uuid.UUID, len(pool))
	copy(picked, pool)
	s.shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	return picked[:count]
}

// GetByID retrieves an exam with its ordered question references.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}
	exam.QuestionIDs, err = s.exams.ListQuestionIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return exam, nil
}

// ListAll retrieves every exam for the admin listing.
func (s *ExamService) ListAll(ctx context.Context) ([]model.Exam, error) {
	return s.exams.ListAll(ctx)
}

// Publish moves a draft exam to published and warms the paper cache.
func (s *ExamService) Publish(ctx context.Context, examID uuid.UUID) error {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrExamNotFound
		}
		return fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}

	if _, err := s.warmPaperCache(ctx, exam); err != nil {
		return err
	}

	if err := s.exams.UpdateStatus(ctx, examID, model.ExamStatusPublished); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	s.log.Info().Str("exam_id", examID.String()).Msg("Exam published")
	return nil
}

// Close moves a published exam to closed. Existing attempts are
// untouched; students just cannot start new ones.
func (s *ExamService) Close(ctx context.Context, examID uuid.UUID) error {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrExamNotFound
		}
		return fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return ErrExamNotPublished
	}

	if err := s.exams.UpdateStatus(ctx, examID, model.ExamStatusClosed); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	if s.rdb != nil {
		_ = s.rdb.Del(ctx, config.CacheKey.ExamPaperKey(examID.String())).Err()
	}

	s.log.Info().Str("exam_id", examID.String()).Msg("Exam closed")
	return nil
}

// GetPaper returns the student-facing paper: questions without correct
// options. Served from Redis when warm, rebuilt from PostgreSQL on a
// cache miss (self-heal).
func (s *ExamService) GetPaper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	if s.rdb != nil {
		data, err := s.rdb.Get(ctx, config.CacheKey.ExamPaperKey(examID.String())).Bytes()
		if err == nil {
			var paper model.ExamPaper
			if err := json.Unmarshal(data, &paper); err == nil {
				return &paper, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("Paper cache read failed, falling back to database")
		}
	}

	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return s.warmPaperCache(ctx, exam)
}

// warmPaperCache builds the paper payload and stores it in Redis.
func (s *ExamService) warmPaperCache(ctx context.Context, exam *model.Exam) (*model.ExamPaper, error) {
	questions, err := s.questions.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	paper := &model.ExamPaper{
		ExamID:          exam.ID,
		Name:            exam.Name,
		DurationMinutes: exam.DurationMinutes,
		Questions:       make([]model.PaperQuestion, len(questions)),
	}
	for i, q := range questions {
		paper.Questions[i] = model.PaperQuestion{
			ID:       q.ID,
			Content:  q.Content,
			OptionA:  q.OptionA,
			OptionB:  q.OptionB,
			OptionC:  q.OptionC,
			OptionD:  q.OptionD,
			Position: i,
		}
	}

	if s.rdb != nil {
		raw, err := json.Marshal(paper)
		if err != nil {
			return nil, fmt.Errorf("marshal paper: %w", err)
		}
		if err := s.rdb.Set(ctx, config.CacheKey.ExamPaperKey(exam.ID.String()), raw, 0).Err(); err != nil {
			s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Paper cache write failed")
		}
	}
	return paper, nil
}

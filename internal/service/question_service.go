package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/acadex/examtrack-backend/internal/model"
)

// Import errors.
var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrEmptyImport      = errors.New("no valid questions found in file")
)

// QuestionStore is the persistence contract of the question service.
type QuestionStore interface {
	Create(ctx context.Context, q *model.Question) error
	Upsert(ctx context.Context, q *model.Question) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error)
	ListBySubject(ctx context.Context, subjectID int) ([]model.Question, error)
	Update(ctx context.Context, q *model.Question) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// SubjectResolver resolves subject names during CSV import.
type SubjectResolver interface {
	UpsertByName(ctx context.Context, name string) (int, error)
}

// QuestionService handles question administration and bulk import.
type QuestionService struct {
	questions QuestionStore
	subjects  SubjectResolver
	log       zerolog.Logger
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(questions QuestionStore, subjects SubjectResolver, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		questions: questions,
		subjects:  subjects,
		log:       log.With().Str("component", "question_service").Logger(),
	}
}

// Create inserts a new question.
func (s *QuestionService) Create(ctx context.Context, req model.QuestionRequest) (*model.Question, error) {
	q := questionFromRequest(req)
	if err := s.questions.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	return q, nil
}

// Update overwrites an existing question. Historical attempts keep the
// correctness they were graded with; nothing is rescored.
func (s *QuestionService) Update(ctx context.Context, id uuid.UUID, req model.QuestionRequest) (*model.Question, error) {
	existing, err := s.questions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}

	q := questionFromRequest(req)
	q.ID = existing.ID
	q.SubjectID = existing.SubjectID
	if err := s.questions.Update(ctx, q); err != nil {
		return nil, fmt.Errorf("update question: %w", err)
	}
	return q, nil
}

// Delete removes a question from the pool.
func (s *QuestionService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.questions.Delete(ctx, id)
}

// ListBySubject retrieves a subject's question pool.
func (s *QuestionService) ListBySubject(ctx context.Context, subjectID int) ([]model.Question, error) {
	return s.questions.ListBySubject(ctx, subjectID)
}

// ImportCSV bulk-loads questions from a CSV stream with columns:
// subject, content, option_a, option_b, option_c, option_d,
// correct_option, difficulty. The first row is treated as a header.
// Subjects are created by name as needed; a question matching an
// existing (subject, content) pair is overwritten.
func (s *QuestionService) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) > 0 {
		rows = rows[1:] // header
	}

	var valid [][]string
	for _, row := range rows {
		if len(row) < 8 {
			continue
		}
		valid = append(valid, row)
	}
	if len(valid) == 0 {
		return 0, ErrEmptyImport
	}

	imported := 0
	for _, row := range valid {
		subjectName := strings.TrimSpace(row[0])
		if subjectName == "" {
			continue
		}
		subjectID, err := s.subjects.UpsertByName(ctx, subjectName)
		if err != nil {
			return imported, fmt.Errorf("resolve subject %q: %w", subjectName, err)
		}

		q := &model.Question{
			SubjectID:     subjectID,
			Content:       strings.TrimSpace(row[1]),
			OptionA:       row[2],
			OptionB:       row[3],
			OptionC:       row[4],
			OptionD:       row[5],
			CorrectOption: strings.ToLower(strings.TrimSpace(row[6])),
			Difficulty:    model.ParseDifficulty(row[7]),
		}
		if err := s.questions.Upsert(ctx, q); err != nil {
			return imported, fmt.Errorf("upsert question %q: %w", q.Content, err)
		}
		imported++
	}

	s.log.Info().Int("imported", imported).Msg("CSV import finished")
	return imported, nil
}

func questionFromRequest(req model.QuestionRequest) *model.Question {
	return &model.Question{
		SubjectID:     req.SubjectID,
		Content:       req.Content,
		OptionA:       req.OptionA,
		OptionB:       req.OptionB,
		OptionC:       req.OptionC,
		OptionD:       req.OptionD,
		CorrectOption: strings.ToLower(req.CorrectOption),
		Difficulty:    model.ParseDifficulty(req.Difficulty),
	}
}

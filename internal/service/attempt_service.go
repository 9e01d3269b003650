package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/acadex/examtrack-backend/internal/config"
	"github.com/acadex/examtrack-backend/internal/model"
	"github.com/acadex/examtrack-backend/internal/scoring"
)

// Domain errors surfaced by the attempt tracker.
var (
	ErrExamNotFound     = errors.New("exam not found")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrAttemptCompleted = errors.New("attempt already completed")
	ErrExamNotAvailable = errors.New("exam is not available")
	ErrNotAttemptOwner  = errors.New("attempt belongs to another student")
)

// AttemptStore is the persistence contract of the attempt tracker.
// *repository.AttemptRepository satisfies it; tests use in-memory fakes.
type AttemptStore interface {
	GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	CreateWithSlots(ctx context.Context, a *model.Attempt, questionIDs []uuid.UUID) error
	ListSlots(ctx context.Context, attemptID uuid.UUID) ([]model.AnswerSlot, error)
	UpdateSlotAnswer(ctx context.Context, attemptID, questionID uuid.UUID, selected string) error
	Finalize(ctx context.Context, attemptID uuid.UUID, score float64, correctness map[uuid.UUID]bool, submittedAt time.Time) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	ListByStudent(ctx context.Context, studentID int) ([]model.Attempt, error)
	ListCompletedByStudent(ctx context.Context, studentID int) ([]model.AttemptSummary, error)
	GetReview(ctx context.Context, attemptID uuid.UUID) (*model.AttemptReview, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamResultRow, error)
}

// ExamReader is the slice of exam persistence the tracker needs.
type ExamReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListQuestionIDs(ctx context.Context, examID uuid.UUID) ([]uuid.UUID, error)
	ListPublished(ctx context.Context) ([]model.Exam, error)
}

// QuestionKeyReader loads an exam's questions including correct options.
type QuestionKeyReader interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// AttemptService is the state machine governing a student's attempt at
// an exam: creation, resumption, progress persistence and finalization.
// All state is durable; remaining time is always derived from the
// stored start timestamp, never from anything a client reports.
type AttemptService struct {
	attempts  AttemptStore
	exams     ExamReader
	questions QuestionKeyReader
	rdb       *redis.Client
	log       zerolog.Logger
	now       func() time.Time
}

// NewAttemptService creates a new AttemptService. rdb may be nil, in
// which case failed progress saves are dropped instead of queued.
func NewAttemptService(
	attempts AttemptStore,
	exams ExamReader,
	questions QuestionKeyReader,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		attempts:  attempts,
		exams:     exams,
		questions: questions,
		rdb:       rdb,
		log:       log.With().Str("component", "attempt_service").Logger(),
		now:       time.Now,
	}
}

// Begin looks up or creates the student's attempt for an exam.
//
// No attempt yet: the attempt and one empty slot per question are
// created in a single transaction and the full time budget is
// returned. An in-progress attempt resumes with the remaining budget
// recomputed from the immutable start time, clamped at zero, plus all
// saved answers. A completed attempt only ever returns its frozen
// score — one completed attempt per (student, exam), forever.
func (s *AttemptService) Begin(ctx context.Context, studentID int, examID uuid.UUID) (*model.AttemptState, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	attempt, err := s.attempts.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lookup attempt: %w", err)
	}
	if attempt != nil {
		return s.stateOf(ctx, exam, attempt)
	}

	// New attempt. Starting requires a published exam inside its window;
	// resuming deliberately does not, so a closing window never locks a
	// student out of an attempt they already hold.
	now := s.now()
	if exam.Status != model.ExamStatusPublished || !exam.AvailableAt(now) {
		return nil, ErrExamNotAvailable
	}

	questionIDs, err := s.exams.ListQuestionIDs(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list exam questions: %w", err)
	}

	attempt = &model.Attempt{ExamID: examID, StudentID: studentID}
	if err := s.attempts.CreateWithSlots(ctx, attempt, questionIDs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent begin: another session created the attempt
			// first. Fold into that row.
			existing, fetchErr := s.attempts.GetByExamAndStudent(ctx, examID, studentID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent begin, refetch failed: %w", fetchErr)
			}
			return s.stateOf(ctx, exam, existing)
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Msg("Attempt created")

	return &model.AttemptState{
		Status:           model.BeginStatusNew,
		AttemptID:        attempt.ID,
		RemainingSeconds: float64(exam.DurationMinutes * 60),
		SavedAnswers:     map[uuid.UUID]string{},
	}, nil
}

// stateOf builds the resume or completed snapshot for an existing attempt.
func (s *AttemptService) stateOf(ctx context.Context, exam *model.Exam, attempt *model.Attempt) (*model.AttemptState, error) {
	if attempt.Status == model.AttemptStatusCompleted {
		return &model.AttemptState{
			Status:       model.BeginStatusCompleted,
			AttemptID:    attempt.ID,
			SavedAnswers: map[uuid.UUID]string{},
			Score:        attempt.Score,
		}, nil
	}

	slots, err := s.attempts.ListSlots(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	saved := make(map[uuid.UUID]string, len(slots))
	for _, slot := range slots {
		if slot.SelectedOption != "" {
			saved[slot.QuestionID] = slot.SelectedOption
		}
	}

	return &model.AttemptState{
		Status:           model.BeginStatusInProgress,
		AttemptID:        attempt.ID,
		RemainingSeconds: remainingSeconds(exam.DurationMinutes, attempt.StartedAt, s.now()),
		SavedAnswers:     saved,
	}, nil
}

// remainingSeconds derives the time budget left at `now`, clamped at
// zero. Closing and reopening the exam view can never extend time.
func remainingSeconds(durationMinutes int, startedAt, now time.Time) float64 {
	remaining := float64(durationMinutes*60) - now.Sub(startedAt).Seconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// VerifyOwner checks that an attempt exists and belongs to the student.
// The save and finish endpoints gate on this before touching anything.
func (s *AttemptService) VerifyOwner(ctx context.Context, studentID int, attemptID uuid.UUID) error {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAttemptNotFound
		}
		return fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return ErrNotAttemptOwner
	}
	return nil
}

// HasAttempt reports whether the student holds an attempt for an exam.
func (s *AttemptService) HasAttempt(ctx context.Context, studentID int, examID uuid.UUID) (bool, error) {
	_, err := s.attempts.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// retryPayload is the queue entry for a progress save whose direct
// write failed. Field names match the worker's decoder.
type retryPayload struct {
	AttemptID      string `json:"attempt_id"`
	QuestionID     string `json:"question_id"`
	SelectedOption string `json:"selected_option"`
}

// SaveProgress records the student's current selection for one
// question. Best-effort and idempotent: the write is a last-write-wins
// overwrite, out-of-window saves are absorbed, and failures never reach
// the caller — a failed write is logged and pushed to the retry queue
// for the background worker.
func (s *AttemptService) SaveProgress(ctx context.Context, attemptID, questionID uuid.UUID, selected string) {
	err := s.attempts.UpdateSlotAnswer(ctx, attemptID, questionID, selected)
	if err == nil {
		return
	}

	s.log.Warn().Err(err).
		Str("attempt_id", attemptID.String()).
		Str("question_id", questionID.String()).
		Msg("Progress save failed, queueing for retry")

	if s.rdb == nil {
		return
	}
	raw, _ := json.Marshal(retryPayload{
		AttemptID:      attemptID.String(),
		QuestionID:     questionID.String(),
		SelectedOption: selected,
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.AnswerRetryQueue, raw).Err(); err != nil {
		s.log.Error().Err(err).Msg("Retry enqueue failed, save dropped")
	}
}

// Finish grades the attempt and freezes it. Explicit submission and
// timer expiry both land here and are treated identically. The status
// flip, score and per-slot correctness are committed in one
// transaction that succeeds at most once; a repeat call gets
// ErrAttemptCompleted and the stored score is never touched again.
func (s *AttemptService) Finish(ctx context.Context, attemptID uuid.UUID) (*model.ScoreResult, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.Status == model.AttemptStatusCompleted {
		return nil, ErrAttemptCompleted
	}

	questions, err := s.questions.ListByExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("load answer key: %w", err)
	}
	keys := make([]scoring.QuestionKey, len(questions))
	for i, q := range questions {
		keys[i] = scoring.QuestionKey{ID: q.ID, Correct: q.CorrectOption}
	}

	slots, err := s.attempts.ListSlots(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	answers := make(map[uuid.UUID]string, len(slots))
	for _, slot := range slots {
		answers[slot.QuestionID] = slot.SelectedOption
	}

	graded := scoring.Grade(keys, answers)
	submittedAt := s.now()

	ok, err := s.attempts.Finalize(ctx, attemptID, graded.Score, graded.Correctness, submittedAt)
	if err != nil {
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}
	if !ok {
		// Lost the race against another finish for the same attempt.
		return nil, ErrAttemptCompleted
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Float64("score", graded.Score).
		Int("correct", graded.CorrectCount).
		Int("total", graded.Total).
		Msg("Attempt completed")

	return &model.ScoreResult{
		AttemptID:    attemptID,
		ExamID:       attempt.ExamID,
		Score:        graded.Score,
		CorrectCount: graded.CorrectCount,
		Total:        graded.Total,
		SubmittedAt:  submittedAt,
	}, nil
}

// LobbyExam is a published exam overlaid with the student's own
// attempt status.
type LobbyExam struct {
	model.Exam
	AttemptStatus *model.AttemptStatus `json:"attempt_status,omitempty"`
	Score         *float64             `json:"score,omitempty"`
}

// Lobby lists the exams a student can currently see: published exams
// inside their window, plus any exam the student already has an
// attempt for.
func (s *AttemptService) Lobby(ctx context.Context, studentID int) ([]LobbyExam, error) {
	exams, err := s.exams.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published exams: %w", err)
	}

	attempts, err := s.attempts.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	attemptMap := make(map[uuid.UUID]*model.Attempt, len(attempts))
	for i := range attempts {
		attemptMap[attempts[i].ExamID] = &attempts[i]
	}

	now := s.now()
	lobby := make([]LobbyExam, 0, len(exams))
	for _, exam := range exams {
		entry := LobbyExam{Exam: exam}
		if a, ok := attemptMap[exam.ID]; ok {
			status := a.Status
			entry.AttemptStatus = &status
			entry.Score = a.Score
		} else if !exam.AvailableAt(now) {
			continue
		}
		lobby = append(lobby, entry)
	}
	return lobby, nil
}

// History lists a student's completed attempts, newest first.
func (s *AttemptService) History(ctx context.Context, studentID int) ([]model.AttemptSummary, error) {
	return s.attempts.ListCompletedByStudent(ctx, studentID)
}

// Review returns the per-question breakdown of one completed attempt.
// studentID 0 skips the ownership check (admin access).
func (s *AttemptService) Review(ctx context.Context, studentID int, attemptID uuid.UUID) (*model.AttemptReview, error) {
	review, err := s.attempts.GetReview(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get review: %w", err)
	}
	if studentID != 0 && review.Attempt.StudentID != studentID {
		return nil, ErrNotAttemptOwner
	}
	if review.Attempt.Status != model.AttemptStatusCompleted {
		return nil, ErrAttemptNotFound
	}
	return review, nil
}

// DeleteAttempt purges an attempt and its answers entirely. The
// (exam, student) key is freed, so the student may take the exam
// again from scratch.
func (s *AttemptService) DeleteAttempt(ctx context.Context, attemptID uuid.UUID) error {
	ok, err := s.attempts.Delete(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("delete attempt: %w", err)
	}
	if !ok {
		return ErrAttemptNotFound
	}

	s.log.Info().Str("attempt_id", attemptID.String()).Msg("Attempt deleted")
	return nil
}

// ResultsByExam lists every student's outcome for one exam.
func (s *AttemptService) ResultsByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamResultRow, error) {
	return s.attempts.ListByExam(ctx, examID)
}

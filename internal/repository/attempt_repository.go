package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acadex/examtrack-backend/internal/model"
)

// AttemptRepository handles attempt and answer-slot data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, exam_id, student_id, status, started_at, submitted_at, score`

func scanAttempt(row interface{ Scan(...any) error }, a *model.Attempt) error {
	return row.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.Status, &a.StartedAt, &a.SubmittedAt, &a.Score)
}

// GetByExamAndStudent retrieves the attempt for an (exam, student) pair.
func (r *AttemptRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	a := &model.Attempt{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE exam_id = $1 AND student_id = $2`,
		examID, studentID)
	if err := scanAttempt(row, a); err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID retrieves an attempt by id.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	row := r.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id)
	if err := scanAttempt(row, a); err != nil {
		return nil, err
	}
	return a, nil
}

// CreateWithSlots inserts the attempt row and one empty answer slot per
// question in a single transaction. The insert is idempotent on the
// (exam_id, student_id) unique key: a concurrent begin surfaces as
// pgx.ErrNoRows and the caller folds into the winner's row.
func (r *AttemptRepository) CreateWithSlots(ctx context.Context, a *model.Attempt, questionIDs []uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO attempts (exam_id, student_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING id, started_at`,
		a.ExamID, a.StudentID, model.AttemptStatusInProgress,
	).Scan(&a.ID, &a.StartedAt)
	if err != nil {
		return err
	}
	a.Status = model.AttemptStatusInProgress

	batch := &pgx.Batch{}
	for _, qid := range questionIDs {
		batch.Queue(
			`INSERT INTO answer_slots (attempt_id, question_id, selected_option)
			 VALUES ($1, $2, '')`,
			a.ID, qid)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListSlots retrieves all answer slots of an attempt.
func (r *AttemptRepository) ListSlots(ctx context.Context, attemptID uuid.UUID) ([]model.AnswerSlot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, question_id, selected_option, is_correct
		 FROM answer_slots WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []model.AnswerSlot
	for rows.Next() {
		var s model.AnswerSlot
		if err := rows.Scan(&s.AttemptID, &s.QuestionID, &s.SelectedOption, &s.IsCorrect); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// UpdateSlotAnswer overwrites the selected option of one slot. Last
// write wins; a slot that does not exist is a silent no-op, which is
// what the best-effort save path wants.
func (r *AttemptRepository) UpdateSlotAnswer(ctx context.Context, attemptID, questionID uuid.UUID, selected string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE answer_slots SET selected_option = $1, updated_at = NOW()
		 WHERE attempt_id = $2 AND question_id = $3`,
		selected, attemptID, questionID)
	return err
}

// Finalize marks the attempt completed and stamps per-slot correctness
// in one transaction, guarded by status so it can succeed at most once.
// Returns false (and rolls back) when the attempt was already completed.
func (r *AttemptRepository) Finalize(ctx context.Context, attemptID uuid.UUID, score float64, correctness map[uuid.UUID]bool, submittedAt time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, score = $2, submitted_at = $3
		 WHERE id = $4 AND status = $5`,
		model.AttemptStatusCompleted, score, submittedAt,
		attemptID, model.AttemptStatusInProgress)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	batch := &pgx.Batch{}
	for qid, correct := range correctness {
		batch.Queue(
			`UPDATE answer_slots SET is_correct = $1, updated_at = NOW()
			 WHERE attempt_id = $2 AND question_id = $3`,
			correct, attemptID, qid)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes an attempt; its answer slots go with it via cascade.
// Freeing the (exam_id, student_id) key lets the student start over.
// Returns false when no such attempt exists.
func (r *AttemptRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM attempts WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListByStudent retrieves all of a student's attempts, any status.
func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE student_id = $1 ORDER BY started_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := scanAttempt(rows, &a); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListCompletedByStudent returns a student's history of completed
// attempts, newest first. In-progress attempts are never listed here.
func (r *AttemptRepository) ListCompletedByStudent(ctx context.Context, studentID int) ([]model.AttemptSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.exam_id, e.name, s.name, a.score, a.submitted_at
		 FROM attempts a
		 JOIN exams e ON a.exam_id = e.id
		 JOIN subjects s ON e.subject_id = s.id
		 WHERE a.student_id = $1 AND a.status = $2
		 ORDER BY a.submitted_at DESC`,
		studentID, model.AttemptStatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []model.AttemptSummary
	for rows.Next() {
		var h model.AttemptSummary
		if err := rows.Scan(&h.AttemptID, &h.ExamID, &h.ExamName, &h.SubjectName, &h.Score, &h.SubmittedAt); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// GetReview returns the full per-question breakdown of one attempt.
func (r *AttemptRepository) GetReview(ctx context.Context, attemptID uuid.UUID) (*model.AttemptReview, error) {
	attempt, err := r.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.content, q.option_a, q.option_b, q.option_c, q.option_d,
		        q.correct_option, sl.selected_option, sl.is_correct
		 FROM answer_slots sl
		 JOIN questions q ON sl.question_id = q.id
		 JOIN exam_questions eq ON eq.exam_id = $2 AND eq.question_id = q.id
		 WHERE sl.attempt_id = $1
		 ORDER BY eq.position ASC`, attemptID, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	review := &model.AttemptReview{Attempt: *attempt}
	for rows.Next() {
		var item model.ReviewItem
		if err := rows.Scan(&item.QuestionID, &item.Content, &item.OptionA, &item.OptionB,
			&item.OptionC, &item.OptionD, &item.CorrectOption,
			&item.SelectedOption, &item.IsCorrect); err != nil {
			return nil, err
		}
		review.Items = append(review.Items, item)
	}
	return review, rows.Err()
}

// ListByExam returns every student's outcome for one exam, for the
// admin results screen.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamResultRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.student_id, u.full_name, a.status, a.score, a.started_at, a.submitted_at
		 FROM attempts a
		 JOIN users u ON a.student_id = u.id
		 WHERE a.exam_id = $1
		 ORDER BY u.full_name ASC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.ExamResultRow
	for rows.Next() {
		var row model.ExamResultRow
		if err := rows.Scan(&row.AttemptID, &row.StudentID, &row.StudentName,
			&row.Status, &row.Score, &row.StartedAt, &row.SubmittedAt); err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acadex/examtrack-backend/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

const questionColumns = `id, subject_id, content, option_a, option_b, option_c, option_d,
	correct_option, difficulty, created_at, updated_at`

func scanQuestion(row interface{ Scan(...any) error }, q *model.Question) error {
	return row.Scan(&q.ID, &q.SubjectID, &q.Content, &q.OptionA, &q.OptionB, &q.OptionC,
		&q.OptionD, &q.CorrectOption, &q.Difficulty, &q.CreatedAt, &q.UpdatedAt)
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (subject_id, content, option_a, option_b, option_c, option_d, correct_option, difficulty)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		q.SubjectID, q.Content, q.OptionA, q.OptionB, q.OptionC, q.OptionD,
		q.CorrectOption, q.Difficulty,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
}

// Upsert inserts the question or, if one with the same (subject, content)
// exists, overwrites its options, key and difficulty. Used by CSV import.
func (r *QuestionRepository) Upsert(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (subject_id, content, option_a, option_b, option_c, option_d, correct_option, difficulty)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (subject_id, content) DO UPDATE SET
		   option_a = EXCLUDED.option_a,
		   option_b = EXCLUDED.option_b,
		   option_c = EXCLUDED.option_c,
		   option_d = EXCLUDED.option_d,
		   correct_option = EXCLUDED.correct_option,
		   difficulty = EXCLUDED.difficulty,
		   updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		q.SubjectID, q.Content, q.OptionA, q.OptionB, q.OptionC, q.OptionD,
		q.CorrectOption, q.Difficulty,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
}

// GetByID retrieves a single question including its correct option.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	q := &model.Question{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	if err := scanQuestion(row, q); err != nil {
		return nil, err
	}
	return q, nil
}

// ListBySubject retrieves all questions of a subject.
func (r *QuestionRepository) ListBySubject(ctx context.Context, subjectID int) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions
		 WHERE subject_id = $1 ORDER BY created_at ASC`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := scanQuestion(rows, &q); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListRefsBySubject retrieves the (id, difficulty) projection the auto
// composer partitions into difficulty buckets.
func (r *QuestionRepository) ListRefsBySubject(ctx context.Context, subjectID int) ([]model.QuestionRef, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, difficulty FROM questions WHERE subject_id = $1`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []model.QuestionRef
	for rows.Next() {
		var ref model.QuestionRef
		if err := rows.Scan(&ref.ID, &ref.Difficulty); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// ListByExam retrieves an exam's questions in display order, including
// correct options. Only the scorer and admin projections may see these.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.subject_id, q.content, q.option_a, q.option_b, q.option_c, q.option_d,
		        q.correct_option, q.difficulty, q.created_at, q.updated_at
		 FROM questions q
		 JOIN exam_questions eq ON eq.question_id = q.id
		 WHERE eq.exam_id = $1
		 ORDER BY eq.position ASC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := scanQuestion(rows, &q); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Update overwrites a question's content, options, key and difficulty.
func (r *QuestionRepository) Update(ctx context.Context, q *model.Question) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE questions
		 SET content = $1, option_a = $2, option_b = $3, option_c = $4, option_d = $5,
		     correct_option = $6, difficulty = $7, updated_at = NOW()
		 WHERE id = $8`,
		q.Content, q.OptionA, q.OptionB, q.OptionC, q.OptionD,
		q.CorrectOption, q.Difficulty, q.ID)
	return err
}

// Delete removes a question. Fails on FK violation if any exam still
// references it.
func (r *QuestionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	return err
}

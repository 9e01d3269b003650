package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states. There is no
// transition out of completed.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusCompleted  AttemptStatus = "completed"
)

// Attempt is one student's single relationship to one exam. The
// (exam_id, student_id) pair is unique for all time.
type Attempt struct {
	ID          uuid.UUID     `json:"id"`
	ExamID      uuid.UUID     `json:"exam_id"`
	StudentID   int           `json:"student_id"`
	Status      AttemptStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	SubmittedAt *time.Time    `json:"submitted_at,omitempty"`
	Score       *float64      `json:"score,omitempty"`
}

// AnswerSlot is the per-question record within an attempt. IsCorrect
// is authoritative only once the attempt is completed.
type AnswerSlot struct {
	AttemptID      uuid.UUID `json:"attempt_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedOption string    `json:"selected_option"`
	IsCorrect      bool      `json:"is_correct"`
}

// BeginStatus describes what Begin found for the (student, exam) pair.
type BeginStatus string

const (
	BeginStatusNew        BeginStatus = "new"
	BeginStatusInProgress BeginStatus = "in_progress"
	BeginStatusCompleted  BeginStatus = "completed"
)

// AttemptState is the snapshot Begin returns to the client. The client
// seeds its local countdown from RemainingSeconds; the server is never
// polled for a tick.
type AttemptState struct {
	Status           BeginStatus          `json:"status"`
	AttemptID        uuid.UUID            `json:"attempt_id"`
	RemainingSeconds float64              `json:"remaining_seconds"`
	SavedAnswers     map[uuid.UUID]string `json:"saved_answers"`
	Score            *float64             `json:"score,omitempty"`
}

// SaveAnswerRequest is the payload for a progress save.
type SaveAnswerRequest struct {
	QuestionID     uuid.UUID `json:"question_id" binding:"required"`
	SelectedOption string    `json:"selected_option" binding:"omitempty,oneof=a b c d"`
}

// ScoreResult is what Finish returns for display.
type ScoreResult struct {
	AttemptID    uuid.UUID `json:"attempt_id"`
	ExamID       uuid.UUID `json:"exam_id"`
	Score        float64   `json:"score"`
	CorrectCount int       `json:"correct_count"`
	Total        int       `json:"total"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// AttemptSummary is a row in a student's completed-attempt history.
type AttemptSummary struct {
	AttemptID   uuid.UUID `json:"attempt_id"`
	ExamID      uuid.UUID `json:"exam_id"`
	ExamName    string    `json:"exam_name"`
	SubjectName string    `json:"subject_name"`
	Score       float64   `json:"score"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ReviewItem is one question of a completed attempt with the student's
// answer and the key, for the review screen.
type ReviewItem struct {
	QuestionID     uuid.UUID `json:"question_id"`
	Content        string    `json:"content"`
	OptionA        string    `json:"option_a"`
	OptionB        string    `json:"option_b"`
	OptionC        string    `json:"option_c"`
	OptionD        string    `json:"option_d"`
	CorrectOption  string    `json:"correct_option"`
	SelectedOption string    `json:"selected_option"`
	IsCorrect      bool      `json:"is_correct"`
}

// AttemptReview is the full per-question breakdown of one completed attempt.
type AttemptReview struct {
	Attempt Attempt      `json:"attempt"`
	Items   []ReviewItem `json:"items"`
}

// ExamResultRow is one student's outcome in an admin results listing.
type ExamResultRow struct {
	AttemptID   uuid.UUID     `json:"attempt_id"`
	StudentID   int           `json:"student_id"`
	StudentName string        `json:"student_name"`
	Status      AttemptStatus `json:"status"`
	Score       *float64      `json:"score,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	SubmittedAt *time.Time    `json:"submitted_at,omitempty"`
}

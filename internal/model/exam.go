package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the publication states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "draft"
	ExamStatusPublished ExamStatus = "published"
	ExamStatusClosed    ExamStatus = "closed"
)

// Exam represents an exam definition. QuestionIDs is display order
// only; scoring does not depend on it.
type Exam struct {
	ID              uuid.UUID   `json:"id"`
	SubjectID       int         `json:"subject_id"`
	Name            string      `json:"name"`
	DurationMinutes int         `json:"duration_minutes"`
	CreatedBy       int         `json:"created_by"`
	StartsAt        *time.Time  `json:"starts_at,omitempty"`
	EndsAt          *time.Time  `json:"ends_at,omitempty"`
	Status          ExamStatus  `json:"status"`
	QuestionIDs     []uuid.UUID `json:"question_ids,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// AvailableAt reports whether the exam's publication window contains t.
// A nil bound is open-ended.
func (e *Exam) AvailableAt(t time.Time) bool {
	if e.StartsAt != nil && t.Before(*e.StartsAt) {
		return false
	}
	if e.EndsAt != nil && t.After(*e.EndsAt) {
		return false
	}
	return true
}

// CreateExamRequest is the payload for manual exam creation.
type CreateExamRequest struct {
	SubjectID       int         `json:"subject_id" binding:"required,min=1"`
	Name            string      `json:"name" binding:"required,min=1,max=255"`
	DurationMinutes int         `json:"duration_minutes" binding:"required,min=1,max=480"`
	StartsAt        *time.Time  `json:"starts_at" binding:"omitempty"`
	EndsAt          *time.Time  `json:"ends_at" binding:"omitempty,gtfield=StartsAt"`
	QuestionIDs     []uuid.UUID `json:"question_ids" binding:"required,min=1"`
}

// CreateAutoExamRequest is the payload for stratified auto composition.
type CreateAutoExamRequest struct {
	SubjectID       int        `json:"subject_id" binding:"required,min=1"`
	Name            string     `json:"name" binding:"required,min=1,max=255"`
	DurationMinutes int        `json:"duration_minutes" binding:"required,min=1,max=480"`
	StartsAt        *time.Time `json:"starts_at" binding:"omitempty"`
	EndsAt          *time.Time `json:"ends_at" binding:"omitempty,gtfield=StartsAt"`
	CountEasy       int        `json:"count_easy" binding:"min=0"`
	CountMedium     int        `json:"count_medium" binding:"min=0"`
	CountHard       int        `json:"count_hard" binding:"min=0"`
}

// ExamPaper is the Redis-cached payload served to students. It never
// carries correct options.
type ExamPaper struct {
	ExamID          uuid.UUID       `json:"exam_id"`
	Name            string          `json:"name"`
	DurationMinutes int             `json:"duration_minutes"`
	Questions       []PaperQuestion `json:"questions"`
}

// PaperQuestion is a question as shown to a student taking the exam.
type PaperQuestion struct {
	ID       uuid.UUID `json:"id"`
	Content  string    `json:"content"`
	OptionA  string    `json:"option_a"`
	OptionB  string    `json:"option_b"`
	OptionC  string    `json:"option_c"`
	OptionD  string    `json:"option_d"`
	Position int       `json:"position"`
}

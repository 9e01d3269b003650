package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Difficulty enumerates question difficulty tags.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty normalizes a raw tag. Tags outside the known set are
// returned as-is (lowercased); the auto composer simply never selects
// them.
func ParseDifficulty(raw string) Difficulty {
	return Difficulty(strings.ToLower(strings.TrimSpace(raw)))
}

// Question represents a four-option multiple-choice question.
type Question struct {
	ID            uuid.UUID  `json:"id"`
	SubjectID     int        `json:"subject_id"`
	Content       string     `json:"content"`
	OptionA       string     `json:"option_a"`
	OptionB       string     `json:"option_b"`
	OptionC       string     `json:"option_c"`
	OptionD       string     `json:"option_d"`
	CorrectOption string     `json:"correct_option,omitempty"`
	Difficulty    Difficulty `json:"difficulty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// QuestionRef is the minimal projection the auto composer samples from.
type QuestionRef struct {
	ID         uuid.UUID
	Difficulty Difficulty
}

// QuestionRequest is the payload for creating or updating a question.
type QuestionRequest struct {
	SubjectID     int    `json:"subject_id" binding:"required,min=1"`
	Content       string `json:"content" binding:"required,min=1,max=2000"`
	OptionA       string `json:"option_a" binding:"required,max=1000"`
	OptionB       string `json:"option_b" binding:"required,max=1000"`
	OptionC       string `json:"option_c" binding:"required,max=1000"`
	OptionD       string `json:"option_d" binding:"required,max=1000"`
	CorrectOption string `json:"correct_option" binding:"required,oneof=a b c d"`
	Difficulty    string `json:"difficulty" binding:"required,oneof=easy medium hard"`
}

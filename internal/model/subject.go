package model

import "time"

// Subject groups questions and exams by topic.
type Subject struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubjectRequest is the payload for creating or renaming a subject.
type SubjectRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}

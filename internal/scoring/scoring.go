// Package scoring grades a final answer set against an exam's question
// list. It is pure: no storage, no clock, no error paths. An absent or
// empty answer is a valid, scoreable state that never matches any key.
package scoring

import "github.com/google/uuid"

// QuestionKey pairs a question with its correct option label.
type QuestionKey struct {
	ID      uuid.UUID
	Correct string
}

// Result is the outcome of grading one attempt.
type Result struct {
	// Score is on a 0–10 scale: correct/total*10, 0 for an empty exam.
	Score        float64
	CorrectCount int
	Total        int
	// Correctness maps every exam question to whether the submitted
	// answer matched, including unanswered ones (false).
	Correctness map[uuid.UUID]bool
}

// Grade compares each submitted answer to the question key by exact
// label match. Answers for questions outside the exam are ignored.
func Grade(questions []QuestionKey, answers map[uuid.UUID]string) Result {
	res := Result{
		Total:       len(questions),
		Correctness: make(map[uuid.UUID]bool, len(questions)),
	}

	for _, q := range questions {
		selected := answers[q.ID]
		correct := selected != "" && selected == q.Correct
		res.Correctness[q.ID] = correct
		if correct {
			res.CorrectCount++
		}
	}

	if res.Total > 0 {
		res.Score = float64(res.CorrectCount) / float64(res.Total) * 10.0
	}
	return res
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/acadex/examtrack-backend/internal/model"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type attemptKey struct {
	examID    uuid.UUID
	studentID int
}

// fakeAttemptStore mimics the repository's conflict semantics: creating
// an attempt for a taken (exam, student) key fails with pgx.ErrNoRows,
// and Finalize only succeeds while the attempt is in progress.
type fakeAttemptStore struct {
	attempts map[uuid.UUID]*model.Attempt
	byKey    map[attemptKey]uuid.UUID
	slots    map[uuid.UUID]map[uuid.UUID]*model.AnswerSlot
	now      func() time.Time
}

func newFakeAttemptStore(now func() time.Time) *fakeAttemptStore {
	return &fakeAttemptStore{
		attempts: map[uuid.UUID]*model.Attempt{},
		byKey:    map[attemptKey]uuid.UUID{},
		slots:    map[uuid.UUID]map[uuid.UUID]*model.AnswerSlot{},
		now:      now,
	}
}

func (f *fakeAttemptStore) GetByExamAndStudent(_ context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	id, ok := f.byKey[attemptKey{examID, studentID}]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *f.attempts[id]
	return &cp, nil
}

func (f *fakeAttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	a, ok := f.attempts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAttemptStore) CreateWithSlots(_ context.Context, a *model.Attempt, questionIDs []uuid.UUID) error {
	key := attemptKey{a.ExamID, a.StudentID}
	if _, taken := f.byKey[key]; taken {
		return pgx.ErrNoRows
	}
	a.ID = uuid.New()
	a.StartedAt = f.now()
	a.Status = model.AttemptStatusInProgress
	stored := *a
	f.attempts[a.ID] = &stored
	f.byKey[key] = a.ID
	f.slots[a.ID] = make(map[uuid.UUID]*model.AnswerSlot, len(questionIDs))
	for _, qid := range questionIDs {
		f.slots[a.ID][qid] = &model.AnswerSlot{AttemptID: a.ID, QuestionID: qid}
	}
	return nil
}

func (f *fakeAttemptStore) ListSlots(_ context.Context, attemptID uuid.UUID) ([]model.AnswerSlot, error) {
	var out []model.AnswerSlot
	for _, s := range f.slots[attemptID] {
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeAttemptStore) UpdateSlotAnswer(_ context.Context, attemptID, questionID uuid.UUID, selected string) error {
	if slot, ok := f.slots[attemptID][questionID]; ok {
		slot.SelectedOption = selected
	}
	return nil
}

func (f *fakeAttemptStore) Finalize(_ context.Context, attemptID uuid.UUID, score float64, correctness map[uuid.UUID]bool, submittedAt time.Time) (bool, error) {
	a, ok := f.attempts[attemptID]
	if !ok || a.Status != model.AttemptStatusInProgress {
		return false, nil
	}
	a.Status = model.AttemptStatusCompleted
	a.Score = &score
	a.SubmittedAt = &submittedAt
	for qid, correct := range correctness {
		if slot, ok := f.slots[attemptID][qid]; ok {
			slot.IsCorrect = correct
		}
	}
	return true, nil
}

func (f *fakeAttemptStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	a, ok := f.attempts[id]
	if !ok {
		return false, nil
	}
	delete(f.attempts, id)
	delete(f.byKey, attemptKey{a.ExamID, a.StudentID})
	delete(f.slots, id)
	return true, nil
}

func (f *fakeAttemptStore) ListByStudent(_ context.Context, studentID int) ([]model.Attempt, error) {
	var out []model.Attempt
	for _, a := range f.attempts {
		if a.StudentID == studentID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAttemptStore) ListCompletedByStudent(_ context.Context, studentID int) ([]model.AttemptSummary, error) {
	var out []model.AttemptSummary
	for _, a := range f.attempts {
		if a.StudentID == studentID && a.Status == model.AttemptStatusCompleted {
			out = append(out, model.AttemptSummary{
				AttemptID:   a.ID,
				ExamID:      a.ExamID,
				Score:       *a.Score,
				SubmittedAt: *a.SubmittedAt,
			})
		}
	}
	return out, nil
}

func (f *fakeAttemptStore) GetReview(_ context.Context, attemptID uuid.UUID) (*model.AttemptReview, error) {
	a, ok := f.attempts[attemptID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	review := &model.AttemptReview{Attempt: *a}
	for _, slot := range f.slots[attemptID] {
		review.Items = append(review.Items, model.ReviewItem{
			QuestionID:     slot.QuestionID,
			SelectedOption: slot.SelectedOption,
			IsCorrect:      slot.IsCorrect,
		})
	}
	return review, nil
}

func (f *fakeAttemptStore) ListByExam(_ context.Context, examID uuid.UUID) ([]model.ExamResultRow, error) {
	var out []model.ExamResultRow
	for _, a := range f.attempts {
		if a.ExamID == examID {
			out = append(out, model.ExamResultRow{
				AttemptID: a.ID,
				StudentID: a.StudentID,
				Status:    a.Status,
				Score:     a.Score,
				StartedAt: a.StartedAt,
			})
		}
	}
	return out, nil
}

type fakeExamReader struct {
	exams       map[uuid.UUID]*model.Exam
	questionIDs map[uuid.UUID][]uuid.UUID
}

func (f *fakeExamReader) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	e, ok := f.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (f *fakeExamReader) ListQuestionIDs(_ context.Context, examID uuid.UUID) ([]uuid.UUID, error) {
	return f.questionIDs[examID], nil
}

func (f *fakeExamReader) ListPublished(_ context.Context) ([]model.Exam, error) {
	var out []model.Exam
	for _, e := range f.exams {
		if e.Status == model.ExamStatusPublished {
			out = append(out, *e)
		}
	}
	return out, nil
}

type fakeQuestionKeyReader struct {
	byExam map[uuid.UUID][]model.Question
}

func (f *fakeQuestionKeyReader) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	return f.byExam[examID], nil
}

type attemptHarness struct {
	svc      *AttemptService
	attempts *fakeAttemptStore
	exams    *fakeExamReader
	clock    *fakeClock
	exam     *model.Exam
}

// fourQuestions builds a key of four questions with correct options a..d.
func fourQuestions() []model.Question {
	correct := []string{"a", "b", "c", "d"}
	qs := make([]model.Question, 4)
	for i := range qs {
		qs[i] = model.Question{ID: uuid.New(), CorrectOption: correct[i]}
	}
	return qs
}

func newAttemptHarness(questions []model.Question) *attemptHarness {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}

	exam := &model.Exam{
		ID:              uuid.New(),
		SubjectID:       1,
		Name:            "Algebra Midterm",
		DurationMinutes: 30,
		Status:          model.ExamStatusPublished,
	}

	ids := make([]uuid.UUID, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}

	attempts := newFakeAttemptStore(clock.Now)
	exams := &fakeExamReader{
		exams:       map[uuid.UUID]*model.Exam{exam.ID: exam},
		questionIDs: map[uuid.UUID][]uuid.UUID{exam.ID: ids},
	}
	keys := &fakeQuestionKeyReader{byExam: map[uuid.UUID][]model.Question{exam.ID: questions}}

	svc := NewAttemptService(attempts, exams, keys, nil, zerolog.Nop())
	svc.now = clock.Now

	return &attemptHarness{svc: svc, attempts: attempts, exams: exams, clock: clock, exam: exam}
}

func TestBeginReturnsSameAttempt(t *testing.T) {
	h := newAttemptHarness(fourQuestions())
	ctx := context.Background()

	first, err := h.svc.Begin(ctx, 7, h.exam.ID)
	if err != nil {
		t.Fatalf("first Begin: %v", err)
	}
	if first.Status != model.BeginStatusNew {
		t.Fatalf("first Begin status = %q, want %q", first.Status, model.BeginStatusNew)
	}
	if first.RemainingSeconds != 30*60 {
		t.Fatalf("fresh attempt remaining = %v, want %v", first.RemainingSeconds, 30*60)
	}

	h.clock.Advance(5 * time.Minute)

	second, err := h.svc.Begin(ctx, 7, h.exam.ID)
	if err != nil {
		t.Fatalf("second Begin: %v", err)
	}
	if second.Status != model.BeginStatusInProgress {
		t.Fatalf("second Begin status = %q, want %q", second.Status, model.BeginStatusInProgress)
	}
	if second.AttemptID != first.AttemptID {
		t.Fatalf("second Begin created a new attempt: %s != %s", second.AttemptID, first.AttemptID)
	}
	if want := float64(25 * 60); second.RemainingSeconds != want {
		t.Fatalf("remaining after 5m = %v, want %v", second.RemainingSeconds, want)
	}
	if second.RemainingSeconds >= first.RemainingSeconds {
		t.Fatalf("remaining time increased across resume: %v -> %v", first.RemainingSeconds, second.RemainingSeconds)
	}
}

func TestBeginFoldsConcurrentCreate(t *testing.T) {
	h := newAttemptHarness(fourQuestions())
	ctx := context.Background()

	// Another session wins the insert between our lookup and create.
	racer := &racingAttemptStore{fakeAttemptStore: h.attempts}
	h.svc.attempts = racer

	winner := &model.Attempt{ExamID: h.exam.ID, StudentID: 7}
	if err := h.attempts.CreateWithSlots(ctx, winner, h.exams.questionIDs[h.exam.ID]); err != nil {
		t.Fatalf("seed winner attempt: %v", err)
	}

	state, err := h.svc.Begin(ctx, 7, h.exam.ID)
	if err != nil {
		t.Fatalf("Begin after lost race: %v", err)
	}
	if state.AttemptID != winner.ID {
		t.Fatalf("Begin did not fold into winner's attempt: %s != %s", state.AttemptID, winner.ID)
	}
	if state.Status != model.BeginStatusInProgress {
		t.Fatalf("folded Begin status = %q, want %q", state.Status, model.BeginStatusInProgress)
	}
}

// racingAttemptStore reports no attempt on the first lookup so Begin
// walks into the unique-key conflict path.
type racingAttemptStore struct {
	*fakeAttemptStore
	missed bool
}

func (r *racingAttemptStore) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	if !r.missed {
		r.missed = true
		return nil, pgx.ErrNoRows
	}
	return r.fakeAttemptStore.GetByExamAndStudent(ctx, examID, studentID)
}

func TestBeginRejectsUnavailableExam(t *testing.T) {
	h := newAttemptHarness(fourQuestions())
	ctx := context.Background()

	h.exam.Status = model.ExamStatusDraft
	if _, err := h.svc.Begin(ctx, 7, h.exam.ID); err != ErrExamNotAvailable {
		t.Fatalf("Begin on draft exam: err = %v, want %v", err, ErrExamNotAvailable)
	}

	h.exam.Status = model.ExamStatusPublished
	future := h.clock.Now().Add(time.Hour)
	h.exam.StartsAt = &future
	if _, err := h.svc.Begin(ctx, 7, h.exam.ID); err != ErrExamNotAvailable {
		t.Fatalf("Begin before window: err = %v, want %v", err, ErrExamNotAvailable)
	}
}

func TestBeginUnknownExam(t *testing.T) {
	h := newAttemptHarness(fourQuestions())
	if _, err := h.svc.Begin(context.Background(), 7, uuid.New()); err != ErrExamNotFound {
		t.Fatalf("err = %v, want %v", err, ErrExamNotFound)
	}
}

func TestRemainingTimeClampsToZero(t *testing.T) {
	h := newAttemptHarness(fourQuestions())
	ctx := context.Background()

	first, err := h.svc.Begin(ctx, 7, h.exam.ID)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	h.clock.Advance(2 * time.Hour)

	resumed, err := h.svc.Begin(ctx, 7, h.exam.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.AttemptID != first.AttemptID {
		t.Fatalf("resume created a new attempt")
	}
	if resumed.RemainingSeconds != 0 {
		t.Fatalf("expired attempt remaining = %v, want exactly 0", resumed.RemainingSeconds)
	}
	if resumed.Status != model.BeginStatusInProgress {
		t.Fatalf("expired but unfinished attempt status = %q, want %q", resumed.Status, model.BeginStatusInProgress)
	}
}

func TestResumeAfterWindowCloses(t *testing.T) {
	h := newAttemptHarness(fourQuestions())
	ctx := context.Background()

	end := h.clock.Now().Add(10 * time.Minute)
	h.exam.EndsAt = &end

	first, err := h.svc.Begin(ctx, 7, h.exam.ID)
	if err != nil {
		t.Fatalf("Begin inside window: %v", err)
	}

	// Window closes; the held attempt must still resume.
	h.clock.Advance(15 * time.Minute)
	resumed, err := h.svc.Begin(ctx, 7, h.exam.ID)
	if err != nil {
		t.Fatalf("resume after window closed: %v", err)
	}
	if resumed.AttemptID != first.AttemptID {
		t.Fatalf("resume created a new attempt")
	}
}

func TestSaveProgressVisibleOnResume(t *testing.T) {
	questions := fourQuestions()
	h := newAttemptHarness(questions)
	ctx := context.Background()

	state, err := h.svc.Begin(ctx, 7, h.exam.ID)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	h.svc.SaveProgress(ctx, state.AttemptID, questions[0].ID, "b")
	h.svc.SaveProgress(ctx, state.AttemptID, questions[1].ID, "c")
	// Last write wins.
	h.svc.SaveProgress(ctx, state.AttemptID, questions[0].ID, "a")

	resumed, err := h.svc.Begin(ctx, 7, h.exam.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := resumed.SavedAnswers[questions[0].ID]; got != "a" {
		t.Errorf("saved answer q0 = %q, want %q", got, "a")
	}
	if got := resumed.SavedAnswers[questions[1].ID]; got != "c" {
		t.Errorf("saved answer q1 = %q, want %q", got, "c")
	}
	if _, present := resumed.SavedAnswers[questions[2].ID]; present {
		t.Errorf("unanswered question reported as saved")
	}
}

func TestFinishGradesAndFreezes(t *testing.T) {
	questions := fourQuestions()
	h := newAttemptHarness(questions)
	ctx := context.Background()

	state, err := h.svc.Begin(ctx, 7, h.exam.ID)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	// Three correct, one wrong.
	h.svc.SaveProgress(ctx, state.AttemptID, questions[0].ID, "a")
	h.svc.SaveProgress(ctx, state.AttemptID, questions[1].ID, "b")
	h.svc.SaveProgress(ctx, state.AttemptID, questions[2].ID, "c")
	h.svc.SaveProgress(ctx, state.AttemptID, questions[3].ID, "a")

	result, err := h.svc.Finish(ctx, state.AttemptID)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if result.Score != 7.5 {
		t.Fatalf("score = %v, want 7.5", result.Score)
	}
	if result.CorrectCount != 3 || result.Total != 4 {
		t.Fatalf("correct/total = %d/%d, want 3/4", result.CorrectCount, result.Total)
	}

	// Repeat submission must not regrade.
	if _, err := h.svc.Finish(ctx, state.AttemptID); err != ErrAttemptCompleted {
		t.Fatalf("second Finish err = %v, want %v", err, ErrAttemptCompleted)
	}

	// Late save after completion changes nothing visible.
	h.svc.SaveProgress(ctx, state.AttemptID, questions[3].ID, "d")

	final, err := h.svc.Begin(ctx, 7, h.exam.ID)
	if err != nil {
		t.Fatalf("Begin after completion: %v", err)
	}
	if final.Status != model.BeginStatusCompleted {
		t.Fatalf("status after completion = %q, want %q", final.Status, model.BeginStatusCompleted)
	}
	if final.Score == nil || *final.Score != 7.5 {
		t.Fatalf("frozen score = %v, want 7.5", final.Score)
	}
	if final.AttemptID != state.AttemptID {
		t.Fatalf("completed exam produced a new attempt")
	}
}

func TestFinishUnknownAttempt(t *testing.T) {
	h := newAttemptHarness(fourQuestions())
	if _, err := h.svc.Finish(context.Background(), uuid.New()); err != ErrAttemptNotFound {
		t.Fatalf("err = %v, want %v", err, ErrAttemptNotFound)
	}
}

func TestFullAttemptLifecycle(t *testing.T) {
	questions := fourQuestions()
	h := newAttemptHarness(questions)
	ctx := context.Background()

	state, err := h.svc.Begin(ctx, 42, h.exam.ID)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if state.Status != model.BeginStatusNew || state.RemainingSeconds != 1800 {
		t.Fatalf("fresh state = %+v", state)
	}

	for i, q := range questions {
		h.svc.SaveProgress(ctx, state.AttemptID, q.ID, []string{"a", "b", "c", "d"}[i])
		h.clock.Advance(time.Minute)
	}

	result, err := h.svc.Finish(ctx, state.AttemptID)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if result.Score != 10 {
		t.Fatalf("all-correct score = %v, want 10", result.Score)
	}

	again, err := h.svc.Begin(ctx, 42, h.exam.ID)
	if err != nil {
		t.Fatalf("Begin after finish: %v", err)
	}
	if again.Status != model.BeginStatusCompleted || again.Score == nil || *again.Score != 10 {
		t.Fatalf("post-completion state = %+v", again)
	}
}

func TestLobbyOverlaysAttempts(t *testing.T) {
	h := newAttemptHarness(fourQuestions())
	ctx := context.Background()

	// A second published exam whose window already closed, no attempt:
	// hidden. A third one with an attempt: still listed.
	past := h.clock.Now().Add(-time.Hour)
	closedNoAttempt := &model.Exam{ID: uuid.New(), Name: "Closed A", Status: model.ExamStatusPublished, EndsAt: &past, DurationMinutes: 20}
	closedWithAttempt := &model.Exam{ID: uuid.New(), Name: "Closed B", Status: model.ExamStatusPublished, EndsAt: &past, DurationMinutes: 20}
	h.exams.exams[closedNoAttempt.ID] = closedNoAttempt
	h.exams.exams[closedWithAttempt.ID] = closedWithAttempt

	held := &model.Attempt{ExamID: closedWithAttempt.ID, StudentID: 7}
	if err := h.attempts.CreateWithSlots(ctx, held, nil); err != nil {
		t.Fatalf("seed attempt: %v", err)
	}

	lobby, err := h.svc.Lobby(ctx, 7)
	if err != nil {
		t.Fatalf("Lobby: %v", err)
	}

	byID := map[uuid.UUID]LobbyExam{}
	for _, e := range lobby {
		byID[e.ID] = e
	}
	if _, ok := byID[h.exam.ID]; !ok {
		t.Errorf("open exam missing from lobby")
	}
	if _, ok := byID[closedNoAttempt.ID]; ok {
		t.Errorf("out-of-window exam without attempt listed in lobby")
	}
	entry, ok := byID[closedWithAttempt.ID]
	if !ok {
		t.Fatalf("exam with held attempt missing from lobby")
	}
	if entry.AttemptStatus == nil || *entry.AttemptStatus != model.AttemptStatusInProgress {
		t.Errorf("attempt overlay = %v, want in_progress", entry.AttemptStatus)
	}
}

func TestDeleteAttemptAllowsRetake(t *testing.T) {
	questions := fourQuestions()
	h := newAttemptHarness(questions)
	ctx := context.Background()

	state, err := h.svc.Begin(ctx, 7, h.exam.ID)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	h.svc.SaveProgress(ctx, state.AttemptID, questions[0].ID, "a")
	if _, err := h.svc.Finish(ctx, state.AttemptID); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if err := h.svc.DeleteAttempt(ctx, state.AttemptID); err != nil {
		t.Fatalf("DeleteAttempt: %v", err)
	}
	if err := h.svc.DeleteAttempt(ctx, state.AttemptID); err != ErrAttemptNotFound {
		t.Fatalf("second delete: err = %v, want %v", err, ErrAttemptNotFound)
	}

	// The key is freed: the student starts over with a fresh attempt.
	fresh, err := h.svc.Begin(ctx, 7, h.exam.ID)
	if err != nil {
		t.Fatalf("Begin after purge: %v", err)
	}
	if fresh.Status != model.BeginStatusNew {
		t.Fatalf("status after purge = %q, want %q", fresh.Status, model.BeginStatusNew)
	}
	if fresh.AttemptID == state.AttemptID {
		t.Fatalf("purged attempt id reused")
	}
	if len(fresh.SavedAnswers) != 0 {
		t.Fatalf("fresh attempt carries old answers: %v", fresh.SavedAnswers)
	}
}

func TestReviewAccessControl(t *testing.T) {
	questions := fourQuestions()
	h := newAttemptHarness(questions)
	ctx := context.Background()

	state, err := h.svc.Begin(ctx, 7, h.exam.ID)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	// In-progress attempts have no review.
	if _, err := h.svc.Review(ctx, 7, state.AttemptID); err != ErrAttemptNotFound {
		t.Fatalf("review of in-progress attempt: err = %v, want %v", err, ErrAttemptNotFound)
	}

	if _, err := h.svc.Finish(ctx, state.AttemptID); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if _, err := h.svc.Review(ctx, 7, state.AttemptID); err != nil {
		t.Errorf("owner review: %v", err)
	}
	if _, err := h.svc.Review(ctx, 8, state.AttemptID); err != ErrNotAttemptOwner {
		t.Errorf("foreign review: err = %v, want %v", err, ErrNotAttemptOwner)
	}
	if _, err := h.svc.Review(ctx, 0, state.AttemptID); err != nil {
		t.Errorf("admin review: %v", err)
	}
}

package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/acadex/examtrack-backend/internal/model"
)

type poolKey struct {
	subjectID int
	content   string
}

type fakeQuestionStore struct {
	byID  map[uuid.UUID]*model.Question
	byKey map[poolKey]uuid.UUID
}

func newFakeQuestionStore() *fakeQuestionStore {
	return &fakeQuestionStore{
		byID:  map[uuid.UUID]*model.Question{},
		byKey: map[poolKey]uuid.UUID{},
	}
}

func (f *fakeQuestionStore) Create(_ context.Context, q *model.Question) error {
	q.ID = uuid.New()
	stored := *q
	f.byID[q.ID] = &stored
	f.byKey[poolKey{q.SubjectID, q.Content}] = q.ID
	return nil
}

func (f *fakeQuestionStore) Upsert(ctx context.Context, q *model.Question) error {
	key := poolKey{q.SubjectID, q.Content}
	if id, ok := f.byKey[key]; ok {
		q.ID = id
		stored := *q
		f.byID[id] = &stored
		return nil
	}
	return f.Create(ctx, q)
}

func (f *fakeQuestionStore) GetByID(_ context.Context, id uuid.UUID) (*model.Question, error) {
	q, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *q
	return &cp, nil
}

func (f *fakeQuestionStore) ListBySubject(_ context.Context, subjectID int) ([]model.Question, error) {
	var out []model.Question
	for _, q := range f.byID {
		if q.SubjectID == subjectID {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (f *fakeQuestionStore) Update(_ context.Context, q *model.Question) error {
	stored := *q
	f.byID[q.ID] = &stored
	return nil
}

func (f *fakeQuestionStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.byID, id)
	return nil
}

type fakeSubjectResolver struct {
	ids  map[string]int
	next int
}

func (f *fakeSubjectResolver) UpsertByName(_ context.Context, name string) (int, error) {
	if f.ids == nil {
		f.ids = map[string]int{}
	}
	if id, ok := f.ids[name]; ok {
		return id, nil
	}
	f.next++
	f.ids[name] = f.next
	return f.next, nil
}

func newQuestionHarness() (*QuestionService, *fakeQuestionStore, *fakeSubjectResolver) {
	store := newFakeQuestionStore()
	subjects := &fakeSubjectResolver{}
	return NewQuestionService(store, subjects, zerolog.Nop()), store, subjects
}

const importHeader = "subject,content,option_a,option_b,option_c,option_d,correct_option,difficulty\n"

func TestImportCSV(t *testing.T) {
	svc, store, subjects := newQuestionHarness()

	csvData := importHeader +
		"Math,What is 2+2?,3,4,5,6,B,Easy\n" +
		"Math,What is 3*3?,6,9,12,3,b,medium\n" +
		"History,Who wrote the Iliad?,Homer,Plato,Ovid,Virgil,a,hard\n"

	imported, err := svc.ImportCSV(context.Background(), strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if imported != 3 {
		t.Fatalf("imported = %d, want 3", imported)
	}
	if len(subjects.ids) != 2 {
		t.Fatalf("created %d subjects, want 2", len(subjects.ids))
	}

	math, err := svc.ListBySubject(context.Background(), subjects.ids["Math"])
	if err != nil {
		t.Fatalf("ListBySubject: %v", err)
	}
	if len(math) != 2 {
		t.Fatalf("Math has %d questions, want 2", len(math))
	}
	for _, q := range math {
		if q.CorrectOption != "b" {
			t.Errorf("correct option %q not lowercased", q.CorrectOption)
		}
	}

	id := store.byKey[poolKey{subjects.ids["Math"], "What is 2+2?"}]
	if got := store.byID[id].Difficulty; got != model.DifficultyEasy {
		t.Errorf("difficulty = %q, want %q", got, model.DifficultyEasy)
	}
}

func TestImportCSVOverwritesDuplicateContent(t *testing.T) {
	svc, store, subjects := newQuestionHarness()

	first := importHeader + "Math,What is 2+2?,3,4,5,6,b,easy\n"
	if _, err := svc.ImportCSV(context.Background(), strings.NewReader(first)); err != nil {
		t.Fatalf("first import: %v", err)
	}

	// Same subject and content, different key: must overwrite in place.
	second := importHeader + "Math,What is 2+2?,3,4,5,6,c,hard\n"
	if _, err := svc.ImportCSV(context.Background(), strings.NewReader(second)); err != nil {
		t.Fatalf("second import: %v", err)
	}

	if len(store.byID) != 1 {
		t.Fatalf("pool has %d questions, want 1", len(store.byID))
	}
	id := store.byKey[poolKey{subjects.ids["Math"], "What is 2+2?"}]
	q := store.byID[id]
	if q.CorrectOption != "c" || q.Difficulty != model.DifficultyHard {
		t.Errorf("question not overwritten: %+v", q)
	}
}

func TestImportCSVEmpty(t *testing.T) {
	svc, _, _ := newQuestionHarness()

	for name, data := range map[string]string{
		"no rows":     "",
		"header only": importHeader,
		"short rows":  importHeader + "Math,incomplete\n",
	} {
		if _, err := svc.ImportCSV(context.Background(), strings.NewReader(data)); !errors.Is(err, ErrEmptyImport) {
			t.Errorf("%s: err = %v, want %v", name, err, ErrEmptyImport)
		}
	}
}

func TestUpdateQuestionKeepsSubject(t *testing.T) {
	svc, store, _ := newQuestionHarness()
	ctx := context.Background()

	created, err := svc.Create(ctx, model.QuestionRequest{
		SubjectID: 3, Content: "Original", OptionA: "1", OptionB: "2",
		OptionC: "3", OptionD: "4", CorrectOption: "A", Difficulty: "easy",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.CorrectOption != "a" {
		t.Errorf("correct option %q not lowercased", created.CorrectOption)
	}

	updated, err := svc.Update(ctx, created.ID, model.QuestionRequest{
		SubjectID: 99, Content: "Revised", OptionA: "1", OptionB: "2",
		OptionC: "3", OptionD: "4", CorrectOption: "b", Difficulty: "hard",
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.SubjectID != 3 {
		t.Errorf("update moved question to subject %d", updated.SubjectID)
	}
	if store.byID[created.ID].Content != "Revised" {
		t.Errorf("content not updated")
	}

	if _, err := svc.Update(ctx, uuid.New(), model.QuestionRequest{}); !errors.Is(err, ErrQuestionNotFound) {
		t.Errorf("unknown id: err = %v, want %v", err, ErrQuestionNotFound)
	}
}

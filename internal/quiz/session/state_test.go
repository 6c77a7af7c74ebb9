package session

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
	pkgerrors "github.com/yungbote/studyquiz-backend/internal/pkg/errors"
)

var t0 = time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC)

func questions(n int) []study.Question {
	out := make([]study.Question, n)
	for i := range out {
		out[i] = study.Question{
			ID:            uuid.NewString(),
			Text:          "q",
			Options:       []string{"a", "b", "c", "d"},
			CorrectAnswer: "a",
			Explanation:   "because a",
		}
	}
	return out
}

func generating() *study.QuizSession {
	return &study.QuizSession{
		ID:          uuid.New(),
		MaterialID:  uuid.New(),
		SessionType: study.QuizStandard,
		Status:      study.StatusGenerating,
		CreatedAt:   t0,
	}
}

func started(t *testing.T, n int) *study.QuizSession {
	t.Helper()
	s, err := Begin(generating(), questions(n))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return s
}

func TestBegin(t *testing.T) {
	g := generating()
	if err := Validate(g); err != nil {
		t.Fatalf("generating session invalid: %v", err)
	}
	s, err := Begin(g, questions(3))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if s.Status != study.StatusInProgress || len(s.Questions) != 3 {
		t.Fatalf("begin: got status=%s questions=%d", s.Status, len(s.Questions))
	}
	if g.Status != study.StatusGenerating || len(g.Questions) != 0 {
		t.Fatalf("Begin mutated its input")
	}
	if _, err := Begin(s, questions(3)); !errors.Is(err, pkgerrors.ErrInvalidTransition) {
		t.Fatalf("second Begin: want invalid transition got=%v", err)
	}
	if _, err := Begin(generating(), nil); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("Begin without questions: want invalid argument got=%v", err)
	}
}

func TestAnswerScoresAndCompletes(t *testing.T) {
	s := started(t, 3)
	qs := s.Questions

	s1, err := Answer(s, qs[0].ID, "a", t0)
	if err != nil {
		t.Fatalf("Answer 1: %v", err)
	}
	if s1.Score != (study.Score{Correct: 1, Total: 1}) || s1.Status != study.StatusInProgress {
		t.Fatalf("after 1: got score=%+v status=%s", s1.Score, s1.Status)
	}
	if len(s.AnswerMap()) != 0 {
		t.Fatalf("Answer mutated its input")
	}

	s2, err := Answer(s1, qs[1].ID, "b", t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("Answer 2: %v", err)
	}
	if s2.Score != (study.Score{Correct: 1, Total: 2}) || s2.AnswerMap()[qs[1].ID].IsCorrect {
		t.Fatalf("after 2: got score=%+v", s2.Score)
	}

	done := t0.Add(2 * time.Minute)
	s3, err := Answer(s2, qs[2].ID, "a", done)
	if err != nil {
		t.Fatalf("Answer 3: %v", err)
	}
	if s3.Status != study.StatusCompleted || s3.CompletedAt == nil || !s3.CompletedAt.Equal(done) {
		t.Fatalf("completion: got status=%s completedAt=%v", s3.Status, s3.CompletedAt)
	}
	if err := Validate(s3); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if _, err := Answer(s3, qs[0].ID, "a", done); !errors.Is(err, pkgerrors.ErrInvalidTransition) {
		t.Fatalf("answer after completion: want invalid transition got=%v", err)
	}
}

func TestAnswerRejections(t *testing.T) {
	s := started(t, 2)

	if _, err := Answer(generating(), "x", "a", t0); !errors.Is(err, pkgerrors.ErrInvalidTransition) {
		t.Fatalf("generating: want invalid transition got=%v", err)
	}
	if _, err := Answer(s, "nope", "a", t0); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("unknown question: want not found got=%v", err)
	}
	for _, opt := range []string{"e", "", "A"} {
		if _, err := Answer(s, s.Questions[0].ID, opt, t0); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
			t.Fatalf("option %q: want invalid argument got=%v", opt, err)
		}
	}
	if len(s.AnswerMap()) != 0 || s.Score.Total != 0 {
		t.Fatalf("rejected options must not be recorded: answers=%d total=%d", len(s.AnswerMap()), s.Score.Total)
	}
	s1, err := Answer(s, s.Questions[0].ID, "c", t0)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if _, err := Answer(s1, s.Questions[0].ID, "a", t0); !errors.Is(err, pkgerrors.ErrInvalidTransition) {
		t.Fatalf("re-answer: want invalid transition got=%v", err)
	}
}

func TestValidateCatchesBrokenScore(t *testing.T) {
	s := started(t, 2)
	s, _ = Answer(s, s.Questions[0].ID, "a", t0)
	s.Score.Correct = 0
	if err := Validate(s); err == nil {
		t.Fatalf("Validate: want error for wrong correct count")
	}

	s = started(t, 1)
	s.Status = study.StatusCompleted
	if err := Validate(s); err == nil {
		t.Fatalf("Validate: want error for completed without answers")
	}
}

func TestMistakes(t *testing.T) {
	s := started(t, 4)
	qs := s.Questions
	s, _ = Answer(s, qs[0].ID, "a", t0)
	s, _ = Answer(s, qs[1].ID, "b", t0)
	// stored sessions can carry an empty selection
	answers := s.AnswerMap()
	answers[qs[3].ID] = study.UserAnswer{QuestionID: qs[3].ID, Timestamp: t0}
	s.SetAnswers(answers)

	got := Mistakes(s)
	if len(got) != 2 {
		t.Fatalf("mistakes: want=2 got=%d", len(got))
	}
	if got[0].WrongAnswer != "b" || got[0].Explanation != "because a" {
		t.Fatalf("first mistake: got=%+v", got[0])
	}
	if got[1].WrongAnswer != NoAnswer {
		t.Fatalf("empty option: want=%q got=%q", NoAnswer, got[1].WrongAnswer)
	}

	perfect := started(t, 1)
	perfect, _ = Answer(perfect, perfect.Questions[0].ID, "a", t0)
	if m := Mistakes(perfect); len(m) != 0 {
		t.Fatalf("perfect session: want no mistakes got=%v", m)
	}
}

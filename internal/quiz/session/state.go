package session

import (
	"fmt"
	"time"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
	pkgerrors "github.com/yungbote/studyquiz-backend/internal/pkg/errors"
)

// NoAnswer stands in for an empty selected option when listing mistakes.
const NoAnswer = "No Answer"

// Begin moves a GENERATING session to IN_PROGRESS with the given questions.
func Begin(s *study.QuizSession, questions []study.Question) (*study.QuizSession, error) {
	if s == nil {
		return nil, fmt.Errorf("begin: %w", pkgerrors.ErrInvalidArgument)
	}
	if s.Status != study.StatusGenerating {
		return nil, fmt.Errorf("begin from %s: %w", s.Status, pkgerrors.ErrInvalidTransition)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("begin without questions: %w", pkgerrors.ErrInvalidArgument)
	}
	out := s.Clone()
	out.Questions = append(out.Questions[:0], questions...)
	out.SetAnswers(map[string]study.UserAnswer{})
	out.Score = study.Score{}
	out.Status = study.StatusInProgress
	out.CompletedAt = nil
	return out, nil
}

// Answer records option for questionID and returns the updated session. s is left untouched.
// option must be one of the question's choices. The session completes, with completedAt
// stamped, when the last question is answered.
func Answer(s *study.QuizSession, questionID, option string, now time.Time) (*study.QuizSession, error) {
	if s == nil {
		return nil, fmt.Errorf("answer: %w", pkgerrors.ErrInvalidArgument)
	}
	if s.Status != study.StatusInProgress {
		return nil, fmt.Errorf("answer in %s session: %w", s.Status, pkgerrors.ErrInvalidTransition)
	}
	q, ok := findQuestion(s, questionID)
	if !ok {
		return nil, fmt.Errorf("question %q: %w", questionID, pkgerrors.ErrNotFound)
	}
	if _, answered := s.AnswerMap()[questionID]; answered {
		return nil, fmt.Errorf("question %q already answered: %w", questionID, pkgerrors.ErrInvalidTransition)
	}
	if !q.HasOption(option) {
		return nil, fmt.Errorf("option %q not offered by question %q: %w", option, questionID, pkgerrors.ErrInvalidArgument)
	}

	out := s.Clone()
	answers := out.AnswerMap()
	correct := option == q.CorrectAnswer
	answers[questionID] = study.UserAnswer{
		QuestionID:     questionID,
		SelectedOption: option,
		IsCorrect:      correct,
		Timestamp:      now,
	}
	out.SetAnswers(answers)
	out.Score.Total++
	if correct {
		out.Score.Correct++
	}
	if len(answers) == len(out.Questions) {
		out.Status = study.StatusCompleted
		at := now
		out.CompletedAt = &at
	}
	return out, nil
}

// Validate checks the status and score invariants of s.
func Validate(s *study.QuizSession) error {
	if s == nil {
		return fmt.Errorf("validate: %w", pkgerrors.ErrInvalidArgument)
	}
	answers := s.AnswerMap()
	correct := 0
	for id, a := range answers {
		if _, ok := findQuestion(s, id); !ok {
			return fmt.Errorf("answer for unknown question %q", id)
		}
		if a.IsCorrect {
			correct++
		}
	}
	if s.Score.Total != len(answers) {
		return fmt.Errorf("score total %d != answers %d", s.Score.Total, len(answers))
	}
	if s.Score.Correct != correct {
		return fmt.Errorf("score correct %d != correct answers %d", s.Score.Correct, correct)
	}

	switch s.Status {
	case study.StatusGenerating:
		if len(s.Questions) != 0 || len(answers) != 0 {
			return fmt.Errorf("generating session holds questions or answers")
		}
	case study.StatusInProgress:
		if len(s.Questions) > 0 && len(answers) == len(s.Questions) {
			return fmt.Errorf("all questions answered but status is %s", s.Status)
		}
		if s.CompletedAt != nil {
			return fmt.Errorf("in-progress session has completedAt")
		}
	case study.StatusCompleted:
		if len(answers) != len(s.Questions) {
			return fmt.Errorf("completed with %d of %d answers", len(answers), len(s.Questions))
		}
		if s.CompletedAt == nil {
			return fmt.Errorf("completed session without completedAt")
		}
	default:
		return fmt.Errorf("unknown status %q", s.Status)
	}
	return nil
}

// Mistakes lists the incorrectly answered questions of s in question order.
func Mistakes(s *study.QuizSession) []study.Mistake {
	if s == nil {
		return nil
	}
	answers := s.AnswerMap()
	var out []study.Mistake
	for _, q := range s.Questions {
		a, ok := answers[q.ID]
		if !ok || a.IsCorrect {
			continue
		}
		wrong := a.SelectedOption
		if wrong == "" {
			wrong = NoAnswer
		}
		out = append(out, study.Mistake{Question: q.Text, WrongAnswer: wrong, Explanation: q.Explanation})
	}
	return out
}

func findQuestion(s *study.QuizSession, id string) (study.Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return study.Question{}, false
}

package study

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Type          string   `json:"type,omitempty"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}

// HasOption reports whether opt is one of the question's choices.
func (q Question) HasOption(opt string) bool {
	for _, o := range q.Options {
		if o == opt {
			return true
		}
	}
	return false
}

type UserAnswer struct {
	QuestionID     string    `json:"questionId"`
	SelectedOption string    `json:"selectedOption"`
	IsCorrect      bool      `json:"isCorrect"`
	Timestamp      time.Time `json:"timestamp"`
}

type Score struct {
	Correct int `gorm:"column:correct;not null;default:0" json:"correct"`
	Total   int `gorm:"column:total;not null;default:0" json:"total"`
}

type QuizSession struct {
	ID           uuid.UUID                                `gorm:"type:uuid;primaryKey" json:"id"`
	MaterialID   uuid.UUID                                `gorm:"type:uuid;not null;index" json:"materialId"`
	SessionType  QuizType                                 `gorm:"column:session_type;not null" json:"sessionType"`
	Status       QuizStatus                               `gorm:"column:status;not null;index" json:"status"`
	Questions    datatypes.JSONSlice[Question]            `gorm:"column:questions" json:"questions"`
	Answers      datatypes.JSONType[map[string]UserAnswer] `gorm:"column:answers" json:"answers"`
	Score        Score                                    `gorm:"embedded;embeddedPrefix:score_" json:"score"`
	CreatedAt    time.Time                                `gorm:"column:created_at;not null;index" json:"createdAt"`
	CompletedAt  *time.Time                               `gorm:"column:completed_at" json:"completedAt,omitempty"`
	LastViewedAt *time.Time                               `gorm:"column:last_viewed_at" json:"lastViewedAt,omitempty"`
}

func (QuizSession) TableName() string { return "quiz_session" }

// AnswerMap returns the session's answers, never nil.
func (s *QuizSession) AnswerMap() map[string]UserAnswer {
	m := s.Answers.Data()
	if m == nil {
		return map[string]UserAnswer{}
	}
	return m
}

// SetAnswers replaces the answer map.
func (s *QuizSession) SetAnswers(m map[string]UserAnswer) {
	s.Answers = datatypes.NewJSONType(m)
}

// Clone returns a deep copy of s.
func (s *QuizSession) Clone() *QuizSession {
	out := *s
	out.Questions = make(datatypes.JSONSlice[Question], len(s.Questions))
	for i, q := range s.Questions {
		q.Options = append([]string(nil), q.Options...)
		out.Questions[i] = q
	}
	answers := make(map[string]UserAnswer, len(s.AnswerMap()))
	for k, v := range s.AnswerMap() {
		answers[k] = v
	}
	out.SetAnswers(answers)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	if s.LastViewedAt != nil {
		t := *s.LastViewedAt
		out.LastViewedAt = &t
	}
	return &out
}

// Mistake is one incorrectly answered question, used to seed a mistakes-fix quiz.
type Mistake struct {
	Question    string `json:"question"`
	WrongAnswer string `json:"wrongAnswer"`
	Explanation string `json:"explanation"`
}

// QuestionRequest is the input of question generation.
type QuestionRequest struct {
	Image            []byte
	ExtractedText    string
	Mode             Mode
	QuizType         QuizType
	PreviousMistakes []Mistake
}

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
	"github.com/yungbote/studyquiz-backend/internal/observability"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
)

type Store interface {
	GetSession(ctx context.Context, id uuid.UUID) (*study.QuizSession, error)
	UpdateSession(ctx context.Context, s *study.QuizSession) error
	DeleteSession(ctx context.Context, id uuid.UUID) error
	TouchSessionViewed(ctx context.Context, id uuid.UUID, at time.Time) error
	TouchMaterialViewed(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Notifier receives session changes for the UI state stream.
type Notifier interface {
	SessionCreated(s *study.QuizSession)
	SessionUpdated(s *study.QuizSession)
	SessionRemoved(id uuid.UUID)
}

type Service struct {
	log      *logger.Logger
	store    Store
	notifier Notifier
	now      func() time.Time

	// answers to the same or different sessions are applied one at a time
	mu sync.Mutex
}

func NewService(log *logger.Logger, store Store, notifier Notifier) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		log:      log.With("service", "SessionService"),
		store:    store,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SubmitAnswer applies one answer and persists the result. Nothing is published when persisting fails.
func (s *Service) SubmitAnswer(ctx context.Context, sessionID uuid.UUID, questionID, option string) (*study.QuizSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	next, err := Answer(current, questionID, option, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateSession(ctx, next); err != nil {
		s.log.Warn("persist answer failed", "session_id", sessionID, "question_id", questionID, "error", err)
		return nil, fmt.Errorf("save session: %w", err)
	}

	a := next.AnswerMap()[questionID]
	if metrics := observability.Current(); metrics != nil {
		metrics.IncAnswer(a.IsCorrect)
	}
	if next.Status == study.StatusCompleted {
		s.log.Info("session completed",
			"session_id", sessionID,
			"correct", next.Score.Correct,
			"total", next.Score.Total,
		)
	}
	s.notifier.SessionUpdated(next)
	return next, nil
}

// MarkViewed stamps lastViewedAt on the session.
func (s *Service) MarkViewed(ctx context.Context, sessionID uuid.UUID) error {
	return s.store.TouchSessionViewed(ctx, sessionID, s.now())
}

func (s *Service) MarkMaterialViewed(ctx context.Context, materialID uuid.UUID) error {
	return s.store.TouchMaterialViewed(ctx, materialID, s.now())
}

func (s *Service) Delete(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	s.notifier.SessionRemoved(sessionID)
	return nil
}

type NopNotifier struct{}

func (NopNotifier) SessionCreated(*study.QuizSession) {}
func (NopNotifier) SessionUpdated(*study.QuizSession) {}
func (NopNotifier) SessionRemoved(uuid.UUID)          {}

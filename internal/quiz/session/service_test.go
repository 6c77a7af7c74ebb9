package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
	pkgerrors "github.com/yungbote/studyquiz-backend/internal/pkg/errors"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
)

type memStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*study.QuizSession
	viewed   map[uuid.UUID]time.Time
	saveErr  error
}

func newMemStore(items ...*study.QuizSession) *memStore {
	m := &memStore{sessions: map[uuid.UUID]*study.QuizSession{}, viewed: map[uuid.UUID]time.Time{}}
	for _, s := range items {
		m.sessions[s.ID] = s.Clone()
	}
	return m
}

func (m *memStore) GetSession(_ context.Context, id uuid.UUID) (*study.QuizSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *memStore) UpdateSession(_ context.Context, s *study.QuizSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if _, ok := m.sessions[s.ID]; !ok {
		return pkgerrors.ErrNotFound
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *memStore) DeleteSession(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memStore) TouchSessionViewed(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return pkgerrors.ErrNotFound
	}
	m.viewed[id] = at
	return nil
}

func (m *memStore) TouchMaterialViewed(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewed[id] = at
	return nil
}

type recorder struct {
	NopNotifier
	updated []*study.QuizSession
	removed []uuid.UUID
}

func (r *recorder) SessionUpdated(s *study.QuizSession) { r.updated = append(r.updated, s) }
func (r *recorder) SessionRemoved(id uuid.UUID)         { r.removed = append(r.removed, id) }

func TestSubmitAnswerPersistsAndPublishes(t *testing.T) {
	s := started(t, 2)
	store := newMemStore(s)
	rec := &recorder{}
	svc := NewService(logger.Nop(), store, rec)

	got, err := svc.SubmitAnswer(context.Background(), s.ID, s.Questions[0].ID, "a")
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if got.Score.Total != 1 || len(rec.updated) != 1 {
		t.Fatalf("submit: got score=%+v published=%d", got.Score, len(rec.updated))
	}
	stored, _ := store.GetSession(context.Background(), s.ID)
	if stored.Score.Correct != 1 {
		t.Fatalf("stored score: got=%+v", stored.Score)
	}

	got, err = svc.SubmitAnswer(context.Background(), s.ID, s.Questions[1].ID, "d")
	if err != nil {
		t.Fatalf("SubmitAnswer 2: %v", err)
	}
	if got.Status != study.StatusCompleted {
		t.Fatalf("status: want=%s got=%s", study.StatusCompleted, got.Status)
	}
}

func TestSubmitAnswerStorageFailurePublishesNothing(t *testing.T) {
	s := started(t, 2)
	store := newMemStore(s)
	store.saveErr = pkgerrors.ErrStorageUnavailable
	rec := &recorder{}
	svc := NewService(logger.Nop(), store, rec)

	if _, err := svc.SubmitAnswer(context.Background(), s.ID, s.Questions[0].ID, "a"); !errors.Is(err, pkgerrors.ErrStorageUnavailable) {
		t.Fatalf("SubmitAnswer: want storage unavailable got=%v", err)
	}
	if len(rec.updated) != 0 {
		t.Fatalf("published on failure: %d", len(rec.updated))
	}
	stored, _ := store.GetSession(context.Background(), s.ID)
	if len(stored.AnswerMap()) != 0 {
		t.Fatalf("stored session changed on failure")
	}
}

func TestMarkViewedAndDelete(t *testing.T) {
	s := started(t, 1)
	store := newMemStore(s)
	rec := &recorder{}
	svc := NewService(logger.Nop(), store, rec)

	if err := svc.MarkViewed(context.Background(), s.ID); err != nil {
		t.Fatalf("MarkViewed: %v", err)
	}
	if _, ok := store.viewed[s.ID]; !ok {
		t.Fatalf("viewed timestamp not recorded")
	}
	if err := svc.MarkViewed(context.Background(), uuid.New()); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("MarkViewed unknown: want not found got=%v", err)
	}
	if err := svc.Delete(context.Background(), s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(rec.removed) != 1 || rec.removed[0] != s.ID {
		t.Fatalf("removed: got=%v", rec.removed)
	}
}

package library

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
)

type Store interface {
	GetAllMaterials(ctx context.Context) ([]*study.StudyMaterial, error)
	GetMaterial(ctx context.Context, id uuid.UUID) (*study.StudyMaterial, error)
	GetMaterialPreview(ctx context.Context, id uuid.UUID) (*study.MaterialPreview, error)
	DeleteMaterial(ctx context.Context, id uuid.UUID) error
	GetAllSessions(ctx context.Context) ([]*study.QuizSession, error)
	GetSession(ctx context.Context, id uuid.UUID) (*study.QuizSession, error)
	GetSessionsByMaterial(ctx context.Context, materialID uuid.UUID) ([]*study.QuizSession, error)
}

type Notifier interface {
	MaterialDeleted(id uuid.UUID)
}

// Service is the read side of the study library plus material deletion.
type Service struct {
	log      *logger.Logger
	store    Store
	previews *PreviewCache
	notifier Notifier
}

func NewService(log *logger.Logger, store Store, previews *PreviewCache, notifier Notifier) *Service {
	if previews == nil {
		previews = NewPreviewCache(0, 0)
	}
	return &Service{
		log:      log.With("service", "LibraryService"),
		store:    store,
		previews: previews,
		notifier: notifier,
	}
}

// Materials lists materials newest first.
func (s *Service) Materials(ctx context.Context) ([]*study.StudyMaterial, error) {
	return s.store.GetAllMaterials(ctx)
}

func (s *Service) Material(ctx context.Context, id uuid.UUID) (*study.StudyMaterial, error) {
	return s.store.GetMaterial(ctx, id)
}

func (s *Service) Preview(ctx context.Context, id uuid.UUID) (*study.MaterialPreview, error) {
	if p, ok := s.previews.Get(id); ok {
		return p, nil
	}
	p, err := s.store.GetMaterialPreview(ctx, id)
	if err != nil {
		return nil, err
	}
	s.previews.Set(p)
	return p, nil
}

// Sessions lists sessions newest first, optionally restricted to one material.
func (s *Service) Sessions(ctx context.Context, materialID *uuid.UUID) ([]*study.QuizSession, error) {
	if materialID != nil {
		return s.store.GetSessionsByMaterial(ctx, *materialID)
	}
	return s.store.GetAllSessions(ctx)
}

func (s *Service) Session(ctx context.Context, id uuid.UUID) (*study.QuizSession, error) {
	return s.store.GetSession(ctx, id)
}

// DeleteMaterial removes the material together with its preview and every session of it.
func (s *Service) DeleteMaterial(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteMaterial(ctx, id); err != nil {
		return fmt.Errorf("delete material: %w", err)
	}
	s.previews.Delete(id)
	if s.notifier != nil {
		s.notifier.MaterialDeleted(id)
	}
	s.log.Info("material deleted", "material_id", id)
	return nil
}

package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/studyquiz-backend/internal/data/repos/library"
	"github.com/yungbote/studyquiz-backend/internal/domain/study"
	"github.com/yungbote/studyquiz-backend/internal/platform/dbctx"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
)

type MaterialRepo = library.MaterialRepo
type SessionRepo = library.SessionRepo

// Gateway is the keyed persistence surface for materials and sessions.
type Gateway struct {
	Materials MaterialRepo
	Sessions  SessionRepo
}

func NewGateway(db *gorm.DB, log *logger.Logger) *Gateway {
	return &Gateway{
		Materials: library.NewMaterialRepo(db, log),
		Sessions:  library.NewSessionRepo(db, log),
	}
}

func (g *Gateway) GetAllMaterials(ctx context.Context) ([]*study.StudyMaterial, error) {
	return g.Materials.GetAll(dbctx.New(ctx))
}

func (g *Gateway) GetMaterial(ctx context.Context, id uuid.UUID) (*study.StudyMaterial, error) {
	return g.Materials.GetByID(dbctx.New(ctx), id, true)
}

func (g *Gateway) SaveMaterial(ctx context.Context, m *study.StudyMaterial) error {
	return g.Materials.Save(dbctx.New(ctx), m)
}

func (g *Gateway) DeleteMaterial(ctx context.Context, id uuid.UUID) error {
	return g.Materials.Delete(dbctx.New(ctx), id)
}

func (g *Gateway) TouchMaterialViewed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return g.Materials.TouchViewed(dbctx.New(ctx), id, at)
}

func (g *Gateway) GetAllSessions(ctx context.Context) ([]*study.QuizSession, error) {
	return g.Sessions.GetAll(dbctx.New(ctx))
}

func (g *Gateway) GetSession(ctx context.Context, id uuid.UUID) (*study.QuizSession, error) {
	return g.Sessions.GetByID(dbctx.New(ctx), id)
}

func (g *Gateway) SaveSession(ctx context.Context, s *study.QuizSession) error {
	return g.Sessions.Save(dbctx.New(ctx), s)
}

func (g *Gateway) UpdateSession(ctx context.Context, s *study.QuizSession) error {
	return g.Sessions.Update(dbctx.New(ctx), s)
}

func (g *Gateway) DeleteSession(ctx context.Context, id uuid.UUID) error {
	return g.Sessions.Delete(dbctx.New(ctx), id)
}

func (g *Gateway) DeleteSessionsByMaterial(ctx context.Context, materialID uuid.UUID) error {
	_, err := g.Sessions.DeleteByMaterialID(dbctx.New(ctx), materialID)
	return err
}

func (g *Gateway) TouchSessionViewed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return g.Sessions.TouchViewed(dbctx.New(ctx), id, at)
}

func (g *Gateway) GetSessionsByMaterial(ctx context.Context, materialID uuid.UUID) ([]*study.QuizSession, error) {
	return g.Sessions.GetByMaterialID(dbctx.New(ctx), materialID)
}

func (g *Gateway) GetMaterialPreview(ctx context.Context, id uuid.UUID) (*study.MaterialPreview, error) {
	return g.Materials.GetPreview(dbctx.New(ctx), id)
}

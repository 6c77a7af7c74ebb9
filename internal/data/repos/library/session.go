package library

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
	pkgerrors "github.com/yungbote/studyquiz-backend/internal/pkg/errors"
	"github.com/yungbote/studyquiz-backend/internal/platform/dbctx"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
)

type SessionRepo interface {
	Save(dbc dbctx.Context, s *study.QuizSession) error
	Update(dbc dbctx.Context, s *study.QuizSession) error
	GetAll(dbc dbctx.Context) ([]*study.QuizSession, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*study.QuizSession, error)
	GetByMaterialID(dbc dbctx.Context, materialID uuid.UUID) ([]*study.QuizSession, error)
	TouchViewed(dbc dbctx.Context, id uuid.UUID, at time.Time) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
	DeleteByMaterialID(dbc dbctx.Context, materialID uuid.UUID) (int64, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	repoLog := baseLog.With("repo", "SessionRepo")
	return &sessionRepo{db: db, log: repoLog}
}

func (r *sessionRepo) Save(dbc dbctx.Context, s *study.QuizSession) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if s == nil || s.ID == uuid.Nil || s.MaterialID == uuid.Nil {
		return fmt.Errorf("save session: %w", pkgerrors.ErrInvalidArgument)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.Questions == nil {
		s.Questions = []study.Question{}
	}
	if s.Answers.Data() == nil {
		s.SetAnswers(map[string]study.UserAnswer{})
	}

	err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(s).Error
	return storageErr("save session", err)
}

// Update overwrites an existing session row. It never inserts: a session deleted in the
// meantime, directly or with its material, yields ErrNotFound.
func (r *sessionRepo) Update(dbc dbctx.Context, s *study.QuizSession) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if s == nil || s.ID == uuid.Nil || s.MaterialID == uuid.Nil {
		return fmt.Errorf("update session: %w", pkgerrors.ErrInvalidArgument)
	}
	if s.Questions == nil {
		s.Questions = []study.Question{}
	}
	if s.Answers.Data() == nil {
		s.SetAnswers(map[string]study.UserAnswer{})
	}

	res := transaction.WithContext(dbc.Ctx).
		Model(&study.QuizSession{}).
		Where("id = ? AND material_id = ?", s.ID, s.MaterialID).
		Select("*").
		Omit("id", "material_id", "created_at").
		Updates(s)
	if res.Error != nil {
		return storageErr("update session", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update session %s: %w", s.ID, pkgerrors.ErrNotFound)
	}
	return nil
}

func (r *sessionRepo) GetAll(dbc dbctx.Context) ([]*study.QuizSession, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*study.QuizSession
	if err := transaction.WithContext(dbc.Ctx).
		Order("created_at DESC").
		Order("id DESC").
		Find(&results).Error; err != nil {
		return nil, storageErr("list sessions", err)
	}
	return results, nil
}

func (r *sessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*study.QuizSession, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var s study.QuizSession
	if err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, storageErr("get session", err)
	}
	return &s, nil
}

func (r *sessionRepo) GetByMaterialID(dbc dbctx.Context, materialID uuid.UUID) ([]*study.QuizSession, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*study.QuizSession
	if err := transaction.WithContext(dbc.Ctx).
		Where("material_id = ?", materialID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, storageErr("list sessions by material", err)
	}
	return results, nil
}

func (r *sessionRepo) TouchViewed(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(dbc.Ctx).
		Model(&study.QuizSession{}).
		Where("id = ?", id).
		Update("last_viewed_at", at)
	if res.Error != nil {
		return storageErr("touch session", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("touch session: %w", pkgerrors.ErrNotFound)
	}
	return nil
}

func (r *sessionRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&study.QuizSession{}).Error; err != nil {
		return storageErr("delete session", err)
	}
	return nil
}

func (r *sessionRepo) DeleteByMaterialID(dbc dbctx.Context, materialID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(dbc.Ctx).
		Where("material_id = ?", materialID).
		Delete(&study.QuizSession{})
	if res.Error != nil {
		return 0, storageErr("delete sessions by material", res.Error)
	}
	return res.RowsAffected, nil
}

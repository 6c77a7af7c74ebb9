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

type MaterialRepo interface {
	Save(dbc dbctx.Context, m *study.StudyMaterial) error
	GetAll(dbc dbctx.Context) ([]*study.StudyMaterial, error)
	GetByID(dbc dbctx.Context, id uuid.UUID, withPreview bool) (*study.StudyMaterial, error)
	GetPreview(dbc dbctx.Context, id uuid.UUID) (*study.MaterialPreview, error)
	TouchViewed(dbc dbctx.Context, id uuid.UUID, at time.Time) error
	// Delete removes the material, its preview and every session that references it.
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type materialRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMaterialRepo(db *gorm.DB, baseLog *logger.Logger) MaterialRepo {
	repoLog := baseLog.With("repo", "MaterialRepo")
	return &materialRepo{db: db, log: repoLog}
}

func (r *materialRepo) Save(dbc dbctx.Context, m *study.StudyMaterial) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if m == nil || m.ID == uuid.Nil {
		return fmt.Errorf("save material: %w", pkgerrors.ErrInvalidArgument)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	err := transaction.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{UpdateAll: true}).
			Create(m).Error; err != nil {
			return err
		}
		if m.Preview == nil {
			return nil
		}
		m.Preview.MaterialID = m.ID
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(m.Preview).Error
	})
	return storageErr("save material", err)
}

func (r *materialRepo) GetAll(dbc dbctx.Context) ([]*study.StudyMaterial, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*study.StudyMaterial
	if err := transaction.WithContext(dbc.Ctx).
		Order("created_at DESC").
		Order("id DESC").
		Find(&results).Error; err != nil {
		return nil, storageErr("list materials", err)
	}
	return results, nil
}

func (r *materialRepo) GetByID(dbc dbctx.Context, id uuid.UUID, withPreview bool) (*study.StudyMaterial, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	q := transaction.WithContext(dbc.Ctx)
	if withPreview {
		q = q.Preload("Preview")
	}
	var m study.StudyMaterial
	if err := q.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, storageErr("get material", err)
	}
	return &m, nil
}

func (r *materialRepo) GetPreview(dbc dbctx.Context, id uuid.UUID) (*study.MaterialPreview, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var p study.MaterialPreview
	if err := transaction.WithContext(dbc.Ctx).
		Where("material_id = ?", id).
		First(&p).Error; err != nil {
		return nil, storageErr("get preview", err)
	}
	return &p, nil
}

func (r *materialRepo) TouchViewed(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(dbc.Ctx).
		Model(&study.StudyMaterial{}).
		Where("id = ?", id).
		Update("last_viewed_at", at)
	if res.Error != nil {
		return storageErr("touch material", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("touch material: %w", pkgerrors.ErrNotFound)
	}
	return nil
}

func (r *materialRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var removedSessions int64
	err := transaction.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("material_id = ?", id).Delete(&study.QuizSession{})
		if res.Error != nil {
			return res.Error
		}
		removedSessions = res.RowsAffected
		if err := tx.Where("material_id = ?", id).Delete(&study.MaterialPreview{}).Error; err != nil {
			return err
		}
		res = tx.Where("id = ?", id).Delete(&study.StudyMaterial{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return storageErr("delete material", err)
	}
	r.log.Debug("material deleted", "material_id", id, "sessions_removed", removedSessions)
	return nil
}

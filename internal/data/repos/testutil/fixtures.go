package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
)

func SeedMaterial(tb testing.TB, ctx context.Context, tx *gorm.DB, title string, createdAt time.Time) *study.StudyMaterial {
	tb.Helper()
	m := &study.StudyMaterial{
		ID:            study.NewMaterialID(),
		Title:         title,
		Summary:       "summary of " + title,
		Mode:          study.ModeTheory,
		ExtractedText: "text of " + title,
		CreatedAt:     createdAt,
		Preview:       &study.MaterialPreview{MimeType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}},
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed material: %v", err)
	}
	return m
}

func SeedSession(tb testing.TB, ctx context.Context, tx *gorm.DB, materialID uuid.UUID, status study.QuizStatus) *study.QuizSession {
	tb.Helper()
	s := &study.QuizSession{
		ID:          uuid.New(),
		MaterialID:  materialID,
		SessionType: study.QuizStandard,
		Status:      status,
		Questions:   []study.Question{},
		CreatedAt:   time.Now().UTC(),
	}
	s.SetAnswers(map[string]study.UserAnswer{})
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed session: %v", err)
	}
	return s
}

package library

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
	pkgerrors "github.com/yungbote/studyquiz-backend/internal/pkg/errors"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
)

type fakeStore struct {
	previews     map[uuid.UUID]*study.MaterialPreview
	previewLoads int
	deleted      []uuid.UUID
	deleteErr    error
	byMaterial   []uuid.UUID
}

func (f *fakeStore) GetAllMaterials(context.Context) ([]*study.StudyMaterial, error) { return nil, nil }
func (f *fakeStore) GetMaterial(context.Context, uuid.UUID) (*study.StudyMaterial, error) {
	return nil, pkgerrors.ErrNotFound
}
func (f *fakeStore) GetAllSessions(context.Context) ([]*study.QuizSession, error) { return nil, nil }
func (f *fakeStore) GetSession(context.Context, uuid.UUID) (*study.QuizSession, error) {
	return nil, pkgerrors.ErrNotFound
}

func (f *fakeStore) GetSessionsByMaterial(_ context.Context, id uuid.UUID) ([]*study.QuizSession, error) {
	f.byMaterial = append(f.byMaterial, id)
	return nil, nil
}

func (f *fakeStore) GetMaterialPreview(_ context.Context, id uuid.UUID) (*study.MaterialPreview, error) {
	f.previewLoads++
	p, ok := f.previews[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) DeleteMaterial(_ context.Context, id uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type deletions []uuid.UUID

func (d *deletions) MaterialDeleted(id uuid.UUID) { *d = append(*d, id) }

func TestPreviewIsCached(t *testing.T) {
	id := uuid.New()
	store := &fakeStore{previews: map[uuid.UUID]*study.MaterialPreview{
		id: {MaterialID: id, MimeType: "image/jpeg", Data: []byte("jpeg")},
	}}
	svc := NewService(logger.Nop(), store, NewPreviewCache(4, 0), nil)

	for i := 0; i < 3; i++ {
		p, err := svc.Preview(context.Background(), id)
		if err != nil || string(p.Data) != "jpeg" {
			t.Fatalf("Preview %d: got=%v err=%v", i, p, err)
		}
	}
	if store.previewLoads != 1 {
		t.Fatalf("store loads: want=1 got=%d", store.previewLoads)
	}
	if _, err := svc.Preview(context.Background(), uuid.New()); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("missing preview: want not found got=%v", err)
	}
}

func TestDeleteMaterialInvalidatesAndNotifies(t *testing.T) {
	id := uuid.New()
	store := &fakeStore{previews: map[uuid.UUID]*study.MaterialPreview{id: {MaterialID: id}}}
	cache := NewPreviewCache(4, 0)
	var events deletions
	svc := NewService(logger.Nop(), store, cache, &events)

	if _, err := svc.Preview(context.Background(), id); err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if err := svc.DeleteMaterial(context.Background(), id); err != nil {
		t.Fatalf("DeleteMaterial: %v", err)
	}
	if cache.Len() != 0 || len(events) != 1 || events[0] != id {
		t.Fatalf("after delete: cache=%d events=%v", cache.Len(), events)
	}

	store.deleteErr = pkgerrors.ErrStorageUnavailable
	if err := svc.DeleteMaterial(context.Background(), id); !errors.Is(err, pkgerrors.ErrStorageUnavailable) {
		t.Fatalf("delete failure: got=%v", err)
	}
	if len(events) != 1 {
		t.Fatalf("failed delete must not notify")
	}
}

func TestSessionsFilter(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(logger.Nop(), store, nil, nil)
	id := uuid.New()
	if _, err := svc.Sessions(context.Background(), &id); err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(store.byMaterial) != 1 || store.byMaterial[0] != id {
		t.Fatalf("filter by material not applied")
	}
}

package realtime

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
)

// LibraryChannel carries every UI-state change of the study library.
const LibraryChannel = "library"

const (
	EventUploadUpdated   Event = "UploadUpdated"
	EventUploadRemoved   Event = "UploadRemoved"
	EventPipelineBlocked Event = "PipelineBlocked"
	EventMaterialSaved   Event = "MaterialSaved"
	EventMaterialDeleted Event = "MaterialDeleted"
	EventSessionCreated  Event = "SessionCreated"
	EventSessionUpdated  Event = "SessionUpdated"
	EventSessionRemoved  Event = "SessionRemoved"
)

// Publisher fans a message out to other instances. The message comes back through the
// forwarder, so a published message is not broadcast locally.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Library turns pipeline and session changes into messages on LibraryChannel.
type Library struct {
	log *logger.Logger
	hub *Hub
	pub Publisher
}

func NewLibrary(log *logger.Logger, hub *Hub, pub Publisher) *Library {
	return &Library{log: log.With("component", "LibraryNotifier"), hub: hub, pub: pub}
}

func (l *Library) emit(event Event, data any) {
	msg := Message{Channel: LibraryChannel, Event: event, Data: data}
	if l.pub != nil {
		err := l.pub.Publish(context.Background(), msg)
		if err == nil {
			return
		}
		l.log.Warn("bus publish failed; broadcasting locally", "event", event, "error", err)
	}
	l.hub.Broadcast(msg)
}

func (l *Library) UploadUpdated(p study.PendingUpload) { l.emit(EventUploadUpdated, p) }

func (l *Library) UploadRemoved(id string) {
	l.emit(EventUploadRemoved, map[string]string{"id": id})
}

func (l *Library) PipelineBlocked(reason string) {
	l.emit(EventPipelineBlocked, map[string]string{"reason": reason})
}

func (l *Library) MaterialSaved(m *study.StudyMaterial) { l.emit(EventMaterialSaved, m) }

func (l *Library) MaterialDeleted(id uuid.UUID) {
	l.emit(EventMaterialDeleted, map[string]uuid.UUID{"id": id})
}

func (l *Library) SessionCreated(s *study.QuizSession) { l.emit(EventSessionCreated, s) }
func (l *Library) SessionUpdated(s *study.QuizSession) { l.emit(EventSessionUpdated, s) }

func (l *Library) SessionRemoved(id uuid.UUID) {
	l.emit(EventSessionRemoved, map[string]uuid.UUID{"id": id})
}

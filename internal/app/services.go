package app

import (
	"context"
	"fmt"

	"github.com/yungbote/studyquiz-backend/internal/data/db"
	"github.com/yungbote/studyquiz-backend/internal/data/repos"
	"github.com/yungbote/studyquiz-backend/internal/ingestion/normalize"
	"github.com/yungbote/studyquiz-backend/internal/ingestion/queue"
	"github.com/yungbote/studyquiz-backend/internal/library"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
	"github.com/yungbote/studyquiz-backend/internal/quiz/generator"
	"github.com/yungbote/studyquiz-backend/internal/quiz/session"
	"github.com/yungbote/studyquiz-backend/internal/realtime"
)

type Services struct {
	Gateway    *repos.Gateway
	Sources    normalize.SourceStore
	Normalizer normalize.Normalizer

	Hub     *realtime.Hub
	Library *realtime.Library

	Uploads *queue.Dispatcher
	Direct  *queue.Dispatcher
	Group   *queue.GroupAnalyzer

	Materials *library.Service
	Sessions  *session.Service
	Generator *generator.Generator
}

func wireServices(ctx context.Context, log *logger.Logger, cfg Config, dbService *db.Service, clients Clients) (Services, error) {
	log.Info("Wiring services...")
	var s Services

	s.Gateway = repos.NewGateway(dbService.DB(), log)
	s.Sources = normalize.NewMemoryStore()
	s.Normalizer = normalize.New(log, clients.Media, s.Sources)

	s.Hub = realtime.NewHub(log)
	var pub realtime.Publisher
	if clients.Bus != nil {
		if err := clients.Bus.StartForwarder(ctx, s.Hub.Broadcast); err != nil {
			return Services{}, fmt.Errorf("start realtime forwarder: %w", err)
		}
		pub = clients.Bus
	}
	s.Library = realtime.NewLibrary(log, s.Hub, pub)

	s.Uploads = queue.NewDispatcher(log, queue.Config{
		Name:        "uploads",
		Concurrency: queue.UploadConcurrency,
	}, s.Normalizer, clients.Gemini, s.Gateway, s.Library, s.Sources)
	s.Direct = queue.NewDispatcher(log, queue.Config{
		Name:        "direct",
		Concurrency: queue.DirectConcurrency,
	}, s.Normalizer, clients.Gemini, s.Gateway, s.Library, s.Sources)
	s.Group = queue.NewGroupAnalyzer(log, queue.Config{
		Name:        "group",
		Concurrency: queue.DirectConcurrency,
	}, s.Normalizer, clients.Gemini, s.Gateway, s.Library)

	s.Materials = library.NewService(log, s.Gateway, library.NewPreviewCache(cfg.PreviewCacheSize, cfg.PreviewCacheTTL), s.Library)
	s.Sessions = session.NewService(log, s.Gateway, s.Library)
	s.Generator = generator.New(log, clients.Gemini, s.Gateway, s.Library)
	return s, nil
}

// Close stops the queues and waits for in-flight quiz generation.
func (s Services) Close() {
	if s.Uploads != nil {
		s.Uploads.Close()
	}
	if s.Direct != nil {
		s.Direct.Close()
	}
	if s.Generator != nil {
		s.Generator.Wait()
	}
}

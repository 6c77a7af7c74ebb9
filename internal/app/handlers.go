package app

import (
	"context"

	"github.com/yungbote/studyquiz-backend/internal/data/db"
	httpH "github.com/yungbote/studyquiz-backend/internal/http/handlers"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Realtime *httpH.RealtimeHandler
	Upload   *httpH.UploadHandler
	Material *httpH.MaterialHandler
	Session  *httpH.SessionHandler
}

func wireHandlers(log *logger.Logger, cfg Config, dbService *db.Service, clients Clients, s Services) Handlers {
	checks := map[string]httpH.Pinger{
		"database": func(ctx context.Context) error {
			sqlDB, err := dbService.DB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if rc := clients.redisClient(); rc != nil {
		checks["redis"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
	}

	return Handlers{
		Health:   httpH.NewHealthHandler(checks),
		Realtime: httpH.NewRealtimeHandler(log, s.Hub),
		Upload:   httpH.NewUploadHandler(log, s.Uploads, s.Direct, s.Group, s.Normalizer, s.Sources, cfg.MaxUploadBytes),
		Material: httpH.NewMaterialHandler(log, s.Materials, s.Sessions),
		Session:  httpH.NewSessionHandler(log, s.Materials, s.Sessions, s.Generator),
	}
}

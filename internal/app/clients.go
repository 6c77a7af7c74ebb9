package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/studyquiz-backend/internal/platform/gemini"
	"github.com/yungbote/studyquiz-backend/internal/platform/localmedia"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
	"github.com/yungbote/studyquiz-backend/internal/realtime/bus"
)

type Clients struct {
	Gemini gemini.Client
	Media  localmedia.Tools
	// Bus is nil when REDIS_ADDR is unset; events then stay on this process.
	Bus bus.Bus
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	out.Media = localmedia.New(log, localmedia.Config{
		WorkRoot:     cfg.MediaWorkRoot,
		PdftoppmPath: cfg.PdftoppmPath,
		HeifConvert:  cfg.HeifConvert,
	})
	if err := out.Media.AssertReady(ctx); err != nil {
		log.Warn("media tools not ready; PDF pages will fail to normalize", "error", err)
	}

	gc, err := gemini.New(ctx, gemini.Config{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel}, log)
	if err != nil {
		return Clients{}, fmt.Errorf("init gemini client: %w", err)
	}
	out.Gemini = gc

	if cfg.RedisAddr != "" {
		b, err := bus.NewRedisBus(ctx, log, bus.Config{Addr: cfg.RedisAddr, Channel: cfg.RedisChannel})
		if err != nil {
			_ = gc.Close()
			return Clients{}, fmt.Errorf("init redis bus: %w", err)
		}
		out.Bus = b
	}
	return out, nil
}

func (c Clients) redisClient() goredis.UniversalClient {
	if rc, ok := c.Bus.(interface{ Client() goredis.UniversalClient }); ok {
		return rc.Client()
	}
	return nil
}

func (c Clients) Close() {
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Gemini != nil {
		_ = c.Gemini.Close()
	}
}

package library

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
	"github.com/yungbote/studyquiz-backend/internal/observability"
)

const (
	DefaultPreviewCacheSize = 256
	DefaultPreviewCacheTTL  = 10 * time.Minute
)

// PreviewCache keeps recently served material previews in memory.
type PreviewCache struct {
	lru *expirable.LRU[uuid.UUID, *study.MaterialPreview]
}

func NewPreviewCache(size int, ttl time.Duration) *PreviewCache {
	if size <= 0 {
		size = DefaultPreviewCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultPreviewCacheTTL
	}
	return &PreviewCache{lru: expirable.NewLRU[uuid.UUID, *study.MaterialPreview](size, nil, ttl)}
}

func (c *PreviewCache) Get(id uuid.UUID) (*study.MaterialPreview, bool) {
	p, ok := c.lru.Get(id)
	if metrics := observability.Current(); metrics != nil {
		metrics.ObservePreviewCache(ok)
	}
	return p, ok
}

func (c *PreviewCache) Set(p *study.MaterialPreview) {
	if p == nil {
		return
	}
	c.lru.Add(p.MaterialID, p)
}

func (c *PreviewCache) Delete(id uuid.UUID) {
	c.lru.Remove(id)
}

func (c *PreviewCache) Len() int { return c.lru.Len() }

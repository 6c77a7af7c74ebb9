package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
	"github.com/yungbote/studyquiz-backend/internal/ingestion/normalize"
	pkgerrors "github.com/yungbote/studyquiz-backend/internal/pkg/errors"
	"github.com/yungbote/studyquiz-backend/internal/pkg/httpx"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
)

type GroupResult struct {
	Item     study.QueuedItem     `json:"item"`
	Material *study.StudyMaterial `json:"material,omitempty"`
	Err      error                `json:"-"`
}

// GroupAnalyzer analyzes a set of items together and persists them once the whole group settled.
type GroupAnalyzer struct {
	log        *logger.Logger
	cfg        Config
	normalizer normalize.Normalizer
	analyzer   Analyzer
	store      MaterialStore
	notifier   Notifier
}

func NewGroupAnalyzer(log *logger.Logger, cfg Config, normalizer normalize.Normalizer, analyzer Analyzer, store MaterialStore, notifier Notifier) *GroupAnalyzer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DirectConcurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = MaxAttempts
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = BaseRetryDelay
	}
	if cfg.Sleep == nil {
		cfg.Sleep = httpx.Sleep
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &GroupAnalyzer{
		log:        log.With("component", "GroupAnalyzer"),
		cfg:        cfg,
		normalizer: normalizer,
		analyzer:   analyzer,
		store:      store,
		notifier:   notifier,
	}
}

type analyzed struct {
	result     *study.AnalysisResult
	normalized *normalize.Normalized
}

// Analyze returns one result per item in input order. Successful items are persisted in reverse
// input order with increasing timestamps so a newest-first listing shows them in input order.
// The returned error joins the per-item failures.
func (g *GroupAnalyzer) Analyze(ctx context.Context, items []study.QueuedItem) ([]GroupResult, error) {
	results := make([]GroupResult, len(items))
	done := make([]analyzed, len(items))

	var eg errgroup.Group
	eg.SetLimit(g.cfg.Concurrency)
	for i, it := range items {
		results[i].Item = it
		eg.Go(func() error {
			n, err := g.normalizer.Normalize(ctx, it)
			if err != nil {
				results[i].Err = err
				return nil
			}
			res, err := g.analyzeWithRetry(ctx, it, n)
			if err != nil {
				results[i].Err = err
				return nil
			}
			done[i] = analyzed{result: res, normalized: n}
			return nil
		})
	}
	_ = eg.Wait()

	base := g.cfg.Now()
	step := 0
	for i := len(items) - 1; i >= 0; i-- {
		if results[i].Err != nil {
			continue
		}
		res, n := done[i].result, done[i].normalized
		m := &study.StudyMaterial{
			ID:             study.NewMaterialID(),
			Title:          res.Title,
			Summary:        res.Summary,
			Mode:           res.Mode,
			ExtractedText:  res.ExtractedText,
			SourceName:     items[i].DisplayName,
			WasParaphrased: res.WasParaphrased,
			CreatedAt:      base.Add(time.Duration(step) * time.Millisecond),
		}
		step++
		if len(n.Preview) > 0 {
			m.Preview = &study.MaterialPreview{MaterialID: m.ID, MimeType: "image/jpeg", Data: n.Preview}
		}
		if err := g.store.SaveMaterial(ctx, m); err != nil {
			results[i].Err = fmt.Errorf("persist material: %w", err)
			continue
		}
		results[i].Material = m
		g.notifier.MaterialSaved(m)
	}

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Item.ID, r.Err))
		}
	}
	if len(errs) > 0 {
		g.log.Warn("group analysis finished with failures", "items", len(items), "failed", len(errs))
	}
	return results, errors.Join(errs...)
}

func (g *GroupAnalyzer) analyzeWithRetry(ctx context.Context, it study.QueuedItem, n *normalize.Normalized) (*study.AnalysisResult, error) {
	for attempt := 1; ; attempt++ {
		var (
			res *study.AnalysisResult
			err error
		)
		if n.Kind == study.KindText {
			res, err = g.analyzer.AnalyzeText(ctx, n.Text)
		} else {
			res, err = g.analyzer.AnalyzeImage(ctx, n.Image)
		}
		if err == nil {
			return res, nil
		}
		if pkgerrors.NoRetry(err) || attempt >= g.cfg.MaxAttempts {
			return nil, err
		}
		delay := g.cfg.BaseRetryDelay * time.Duration(attempt)
		g.log.Warn("group item retrying", "item_id", it.ID, "attempt", attempt, "error", err.Error())
		if err := g.cfg.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
	"github.com/yungbote/studyquiz-backend/internal/ingestion/normalize"
	"github.com/yungbote/studyquiz-backend/internal/observability"
	pkgerrors "github.com/yungbote/studyquiz-backend/internal/pkg/errors"
	"github.com/yungbote/studyquiz-backend/internal/pkg/httpx"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
)

const (
	UploadConcurrency = 5
	DirectConcurrency = 3
	MaxAttempts       = 3
	BaseRetryDelay    = 2000 * time.Millisecond
)

type Analyzer interface {
	AnalyzeImage(ctx context.Context, image []byte) (*study.AnalysisResult, error)
	AnalyzeText(ctx context.Context, rawText string) (*study.AnalysisResult, error)
}

type MaterialStore interface {
	SaveMaterial(ctx context.Context, m *study.StudyMaterial) error
}

// Notifier receives every observable change of the queue.
type Notifier interface {
	UploadUpdated(p study.PendingUpload)
	UploadRemoved(id string)
	PipelineBlocked(reason string)
	MaterialSaved(m *study.StudyMaterial)
}

// Sources is the part of the source store the dispatcher manages lifetimes on.
type Sources interface {
	Retain(ref string)
	Release(ref string)
}

type Sleeper func(ctx context.Context, d time.Duration) error

type Config struct {
	Name           string
	Concurrency    int
	MaxAttempts    int
	BaseRetryDelay time.Duration
	Sleep          Sleeper
	Now            func() time.Time
}

type entry struct {
	upload study.PendingUpload
	item   study.QueuedItem
	// committing is set once a result passed the existence check and is being persisted.
	committing bool
}

type Dispatcher struct {
	log        *logger.Logger
	cfg        Config
	normalizer normalize.Normalizer
	analyzer   Analyzer
	store      MaterialStore
	notifier   Notifier
	sources    Sources

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	queue    []study.QueuedItem
	pending  map[string]*entry
	order    []string
	seen     map[string]struct{}
	running  bool
	blocked  bool
	inflight int
}

func NewDispatcher(
	log *logger.Logger,
	cfg Config,
	normalizer normalize.Normalizer,
	analyzer Analyzer,
	store MaterialStore,
	notifier Notifier,
	sources Sources,
) *Dispatcher {
	if cfg.Name == "" {
		cfg.Name = "uploads"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = UploadConcurrency
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
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		log:        log.With("component", "UploadDispatcher", "queue", cfg.Name),
		cfg:        cfg,
		normalizer: normalizer,
		analyzer:   analyzer,
		store:      store,
		notifier:   notifier,
		sources:    sources,
		ctx:        ctx,
		cancel:     cancel,
		pending:    map[string]*entry{},
		seen:       map[string]struct{}{},
	}
}

// Enqueue appends items in order. Ids must be non-empty and never used before; the whole call is
// rejected otherwise.
func (d *Dispatcher) Enqueue(items ...study.QueuedItem) error {
	if len(items) == 0 {
		return nil
	}
	d.mu.Lock()
	batch := map[string]struct{}{}
	for _, it := range items {
		id := strings.TrimSpace(it.ID)
		if id == "" {
			d.mu.Unlock()
			return fmt.Errorf("queued item id required: %w", pkgerrors.ErrInvalidArgument)
		}
		if _, dup := d.seen[id]; dup {
			d.mu.Unlock()
			return fmt.Errorf("queued item id %q already used: %w", id, pkgerrors.ErrInvalidArgument)
		}
		if _, dup := batch[id]; dup {
			d.mu.Unlock()
			return fmt.Errorf("queued item id %q repeated: %w", id, pkgerrors.ErrInvalidArgument)
		}
		switch it.Kind {
		case study.KindPDFPage:
			if it.PageNumber < 1 {
				d.mu.Unlock()
				return fmt.Errorf("queued pdf page %q needs a page number: %w", id, pkgerrors.ErrInvalidArgument)
			}
		case study.KindImage, study.KindText:
			if it.PageNumber != 0 {
				d.mu.Unlock()
				return fmt.Errorf("queued %s item %q cannot carry a page number: %w", it.Kind, id, pkgerrors.ErrInvalidArgument)
			}
		default:
			d.mu.Unlock()
			return fmt.Errorf("queued item kind %q: %w", it.Kind, pkgerrors.ErrInvalidArgument)
		}
		batch[id] = struct{}{}
	}

	updates := make([]study.PendingUpload, 0, len(items))
	for _, it := range items {
		d.seen[it.ID] = struct{}{}
		e := &entry{
			item: it,
			upload: study.PendingUpload{
				ID:          it.ID,
				DisplayName: it.DisplayName,
				Status:      study.UploadQueued,
				MaxAttempts: d.cfg.MaxAttempts,
			},
		}
		d.pending[it.ID] = e
		d.order = append(d.order, it.ID)
		d.queue = append(d.queue, it)
		if d.sources != nil {
			d.sources.Retain(it.SourceRef)
		}
		updates = append(updates, e.upload.Clone())
	}
	d.blocked = false
	d.kickLocked()
	d.mu.Unlock()

	for _, u := range updates {
		d.notifier.UploadUpdated(u)
	}
	return nil
}

// Cancel removes the PendingUpload. A queued item is dropped from the queue; an in-flight item keeps
// running but its result is discarded. Cancel reports false when id is unknown or its result is
// already being persisted.
func (d *Dispatcher) Cancel(id string) bool {
	d.mu.Lock()
	e, ok := d.pending[id]
	if !ok || e.committing {
		d.mu.Unlock()
		return false
	}
	d.removeLocked(id)
	for i, it := range d.queue {
		if it.ID == id {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			break
		}
	}
	d.reportDepthLocked()
	d.mu.Unlock()

	d.log.Debug("upload cancelled", "item_id", id)
	d.notifier.UploadRemoved(id)
	return true
}

// Retry re-enqueues a failed item from its retained source. It is a no-op for any other status.
func (d *Dispatcher) Retry(id string) bool {
	d.mu.Lock()
	e, ok := d.pending[id]
	if !ok || e.upload.Status != study.UploadFailed || e.upload.RetainedSource == nil {
		d.mu.Unlock()
		return false
	}
	src := *e.upload.RetainedSource
	e.upload.Status = study.UploadQueued
	e.upload.AttemptCount = 0
	e.upload.LastError = ""
	e.upload.ErrorClass = study.ErrorClassNone
	e.upload.CitationURLs = nil
	e.upload.RetainedSource = nil
	e.item = src
	d.queue = append(d.queue, src)
	update := e.upload.Clone()
	d.blocked = false
	d.kickLocked()
	d.mu.Unlock()

	d.log.Debug("upload retry requested", "item_id", id)
	d.notifier.UploadUpdated(update)
	return true
}

// Resume restarts draining after the dispatcher stopped on missing credentials.
func (d *Dispatcher) Resume() {
	d.mu.Lock()
	d.blocked = false
	d.kickLocked()
	d.mu.Unlock()
}

// Snapshot returns all PendingUploads in enqueue order.
func (d *Dispatcher) Snapshot() []study.PendingUpload {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]study.PendingUpload, 0, len(d.order))
	for _, id := range d.order {
		if e, ok := d.pending[id]; ok {
			out = append(out, e.upload.Clone())
		}
	}
	return out
}

func (d *Dispatcher) Get(id string) (study.PendingUpload, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.pending[id]
	if !ok {
		return study.PendingUpload{}, false
	}
	return e.upload.Clone(), true
}

// Blocked reports whether dispatch stopped on missing credentials.
func (d *Dispatcher) Blocked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blocked
}

// Wait blocks until the dispatcher loop has drained or stopped.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops in-flight backoff sleeps and waits for the loop to exit.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) kickLocked() {
	if d.running || d.blocked || len(d.queue) == 0 || d.ctx.Err() != nil {
		return
	}
	d.running = true
	d.wg.Add(1)
	go d.loop()
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for {
		batch := d.nextBatch()
		if len(batch) == 0 {
			return
		}
		var g errgroup.Group
		for _, it := range batch {
			g.Go(func() error {
				d.process(it)
				return nil
			})
		}
		_ = g.Wait()
	}
}

// nextBatch pops up to Concurrency live items, or clears the running flag when there is nothing to do.
func (d *Dispatcher) nextBatch() []study.QueuedItem {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inflight = 0
	if d.blocked || d.ctx.Err() != nil {
		d.running = false
		d.reportDepthLocked()
		return nil
	}
	batch := make([]study.QueuedItem, 0, d.cfg.Concurrency)
	for len(d.queue) > 0 && len(batch) < d.cfg.Concurrency {
		it := d.queue[0]
		d.queue = d.queue[1:]
		if _, ok := d.pending[it.ID]; !ok {
			continue
		}
		batch = append(batch, it)
	}
	if len(batch) == 0 {
		d.running = false
	}
	d.inflight = len(batch)
	d.reportDepthLocked()
	return batch
}

func (d *Dispatcher) process(item study.QueuedItem) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("upload worker panic", "item_id", item.ID, "panic", r, "stack", string(debug.Stack()))
			d.fail(item, fmt.Errorf("worker panic: %v", r), study.ErrorClassUnknown)
		}
	}()
	ctx := d.ctx

	if !d.update(item.ID, func(p *study.PendingUpload) { p.Status = study.UploadProcessing }) {
		return
	}
	normalized, err := d.normalizer.Normalize(ctx, item)
	if err != nil {
		d.fail(item, err, study.ErrorClassUnknown)
		return
	}
	if !d.update(item.ID, func(p *study.PendingUpload) { p.PreviewImage = normalized.Preview }) {
		return
	}

	for attempt := 1; ; attempt++ {
		alive := d.update(item.ID, func(p *study.PendingUpload) {
			p.AttemptCount = attempt
			if attempt > 1 {
				p.Status = study.UploadRetrying
			} else {
				p.Status = study.UploadProcessing
			}
		})
		if !alive {
			return
		}
		if metrics := observability.Current(); metrics != nil {
			metrics.IncUploadAttempt()
		}

		err := d.attempt(ctx, item, normalized)
		if err == nil {
			return
		}
		if errors.Is(err, errDropped) {
			return
		}

		switch pkgerrors.KindOf(err) {
		case pkgerrors.KindMissingCredentials:
			d.fail(item, err, study.ErrorClassUnknown)
			d.block(err)
			return
		case pkgerrors.KindRecitation:
			d.fail(item, err, study.ErrorClassRecitation)
			return
		}
		if pkgerrors.NoRetry(err) || attempt >= d.cfg.MaxAttempts {
			d.fail(item, err, study.ErrorClassUnknown)
			return
		}

		delay := d.cfg.BaseRetryDelay * time.Duration(attempt)
		d.log.Warn("upload analysis retrying", "item_id", item.ID, "attempt", attempt, "delay", delay.String(), "error", err.Error())
		if err := d.cfg.Sleep(ctx, delay); err != nil {
			d.fail(item, fmt.Errorf("retry interrupted: %w", err), study.ErrorClassUnknown)
			return
		}
	}
}

var errDropped = errors.New("result dropped")

// attempt runs one analysis and, on success, persists the material and removes the PendingUpload.
func (d *Dispatcher) attempt(ctx context.Context, item study.QueuedItem, n *normalize.Normalized) error {
	var (
		result *study.AnalysisResult
		err    error
	)
	if n.Kind == study.KindText {
		result, err = d.analyzer.AnalyzeText(ctx, n.Text)
	} else {
		result, err = d.analyzer.AnalyzeImage(ctx, n.Image)
	}
	if err != nil {
		return err
	}

	d.mu.Lock()
	e, ok := d.pending[item.ID]
	if !ok {
		d.mu.Unlock()
		d.log.Debug("discarding result of cancelled upload", "item_id", item.ID)
		return errDropped
	}
	e.committing = true
	d.mu.Unlock()

	m := &study.StudyMaterial{
		ID:             study.NewMaterialID(),
		Title:          result.Title,
		Summary:        result.Summary,
		Mode:           result.Mode,
		ExtractedText:  result.ExtractedText,
		SourceName:     item.DisplayName,
		WasParaphrased: result.WasParaphrased,
		CreatedAt:      d.cfg.Now(),
	}
	if len(n.Preview) > 0 {
		m.Preview = &study.MaterialPreview{MaterialID: m.ID, MimeType: "image/jpeg", Data: n.Preview}
	}
	if err := d.store.SaveMaterial(ctx, m); err != nil {
		d.mu.Lock()
		if e, ok := d.pending[item.ID]; ok {
			e.committing = false
		}
		d.mu.Unlock()
		return fmt.Errorf("persist material: %w", err)
	}

	d.mu.Lock()
	d.removeLocked(item.ID)
	d.mu.Unlock()

	d.log.Info("upload persisted", "item_id", item.ID, "material_id", m.ID.String(), "was_paraphrased", m.WasParaphrased)
	if metrics := observability.Current(); metrics != nil {
		metrics.ObserveUploadOutcome("persisted", "")
	}
	d.notifier.MaterialSaved(m)
	d.notifier.UploadRemoved(item.ID)
	return nil
}

// update applies fn to the live PendingUpload and publishes it. It reports false when the upload was
// cancelled.
func (d *Dispatcher) update(id string, fn func(p *study.PendingUpload)) bool {
	d.mu.Lock()
	e, ok := d.pending[id]
	if !ok {
		d.mu.Unlock()
		return false
	}
	fn(&e.upload)
	snap := e.upload.Clone()
	d.mu.Unlock()

	d.log.Debug("upload state", "item_id", id, "status", snap.Status, "attempt", snap.AttemptCount)
	d.notifier.UploadUpdated(snap)
	return true
}

func (d *Dispatcher) fail(item study.QueuedItem, err error, class study.ErrorClass) {
	retained := item
	ok := d.update(item.ID, func(p *study.PendingUpload) {
		p.Status = study.UploadFailed
		p.LastError = err.Error()
		p.ErrorClass = class
		p.CitationURLs = pkgerrors.CitationURLs(err)
		p.RetainedSource = &retained
	})
	if !ok {
		return
	}
	d.mu.Lock()
	if e, ok := d.pending[item.ID]; ok {
		e.committing = false
	}
	d.mu.Unlock()

	d.log.Warn("upload failed", "item_id", item.ID, "kind", pkgerrors.KindOf(err).String(), "error_class", string(class), "error", err.Error())
	if metrics := observability.Current(); metrics != nil {
		metrics.ObserveUploadOutcome("failed", string(class))
	}
}

func (d *Dispatcher) block(err error) {
	d.mu.Lock()
	already := d.blocked
	d.blocked = true
	d.mu.Unlock()
	if already {
		return
	}
	reason := "API_KEY_MISSING"
	var pe *pkgerrors.PipelineError
	if errors.As(err, &pe) && pe.Code != "" {
		reason = pe.Code
	}
	d.log.Error("upload dispatch blocked", "reason", reason)
	d.notifier.PipelineBlocked(reason)
}

func (d *Dispatcher) removeLocked(id string) {
	e, ok := d.pending[id]
	if !ok {
		return
	}
	delete(d.pending, id)
	for i, oid := range d.order {
		if oid == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	if d.sources != nil {
		d.sources.Release(e.item.SourceRef)
	}
}

func (d *Dispatcher) reportDepthLocked() {
	if metrics := observability.Current(); metrics != nil {
		metrics.SetQueueDepth(d.cfg.Name, len(d.queue), d.inflight)
	}
}

type nopNotifier struct{}

func (nopNotifier) UploadUpdated(study.PendingUpload) {}
func (nopNotifier) UploadRemoved(string) {}
func (nopNotifier) PipelineBlocked(string) {}
func (nopNotifier) MaterialSaved(*study.StudyMaterial) {}

package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
	"github.com/yungbote/studyquiz-backend/internal/ingestion/normalize"
	pkgerrors "github.com/yungbote/studyquiz-backend/internal/pkg/errors"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
)

type fakeNormalizer struct {
	fail    map[string]bool
	entered chan string
	release chan struct{}
}

func (f *fakeNormalizer) Normalize(_ context.Context, item study.QueuedItem) (*normalize.Normalized, error) {
	if f.entered != nil {
		f.entered <- item.ID
	}
	if f.release != nil {
		<-f.release
	}
	if f.fail[item.ID] {
		return nil, pkgerrors.NormalizationFailed(errors.New("unreadable"))
	}
	if item.Kind == study.KindText {
		return &normalize.Normalized{Kind: study.KindText, Text: item.ID, Preview: []byte("p")}, nil
	}
	return &normalize.Normalized{Kind: item.Kind, Image: []byte(item.ID), Preview: []byte("p")}, nil
}

func (f *fakeNormalizer) Inspect(context.Context, []byte, []int) (*normalize.PDFInspection, error) {
	return nil, errors.New("not used")
}

// fakeAnalyzer answers with behavior(id, call); a nil release channel means no blocking.
type fakeAnalyzer struct {
	mu          sync.Mutex
	calls       map[string]int
	inflight    int
	maxInflight int
	started     chan string
	release     chan struct{}
	behavior    func(id string, call int) error
}

func newFakeAnalyzer(behavior func(id string, call int) error) *fakeAnalyzer {
	return &fakeAnalyzer{calls: map[string]int{}, behavior: behavior}
}

func (f *fakeAnalyzer) run(id string) (*study.AnalysisResult, error) {
	f.mu.Lock()
	f.calls[id]++
	call := f.calls[id]
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- id
	}
	if release != nil {
		<-release
	}

	f.mu.Lock()
	f.inflight--
	behavior := f.behavior
	f.mu.Unlock()

	if behavior != nil {
		if err := behavior(id, call); err != nil {
			return nil, err
		}
	}
	return &study.AnalysisResult{Title: "title " + id, Summary: "s", Mode: study.ModeTheory, ExtractedText: id}, nil
}

func (f *fakeAnalyzer) AnalyzeImage(_ context.Context, image []byte) (*study.AnalysisResult, error) {
	return f.run(string(image))
}

func (f *fakeAnalyzer) AnalyzeText(_ context.Context, text string) (*study.AnalysisResult, error) {
	return f.run(text)
}

func (f *fakeAnalyzer) callsFor(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type fakeStore struct {
	mu    sync.Mutex
	saved []*study.StudyMaterial
	fail  func(m *study.StudyMaterial) error
}

func (s *fakeStore) SaveMaterial(_ context.Context, m *study.StudyMaterial) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		if err := s.fail(m); err != nil {
			return err
		}
	}
	s.saved = append(s.saved, m)
	return nil
}

func (s *fakeStore) sources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.saved))
	for _, m := range s.saved {
		out = append(out, m.SourceName)
	}
	return out
}

type recordingNotifier struct {
	mu      sync.Mutex
	updates []study.PendingUpload
	removed []string
	blocked []string
}

func (n *recordingNotifier) UploadUpdated(p study.PendingUpload) {
	n.mu.Lock()
	n.updates = append(n.updates, p)
	n.mu.Unlock()
}

func (n *recordingNotifier) UploadRemoved(id string) {
	n.mu.Lock()
	n.removed = append(n.removed, id)
	n.mu.Unlock()
}

func (n *recordingNotifier) PipelineBlocked(reason string) {
	n.mu.Lock()
	n.blocked = append(n.blocked, reason)
	n.mu.Unlock()
}

func (n *recordingNotifier) MaterialSaved(*study.StudyMaterial) {}

func (n *recordingNotifier) last(id string) (study.PendingUpload, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.updates) - 1; i >= 0; i-- {
		if n.updates[i].ID == id {
			return n.updates[i], true
		}
	}
	return study.PendingUpload{}, false
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return nil
}

type harness struct {
	d        *Dispatcher
	analyzer *fakeAnalyzer
	norm     *fakeNormalizer
	store    *fakeStore
	notifier *recordingNotifier
	sleeps   *sleepRecorder
}

func newHarness(t *testing.T, concurrency int, analyzer *fakeAnalyzer) *harness {
	t.Helper()
	h := &harness{
		analyzer: analyzer,
		norm:     &fakeNormalizer{fail: map[string]bool{}},
		store:    &fakeStore{},
		notifier: &recordingNotifier{},
		sleeps:   &sleepRecorder{},
	}
	h.d = NewDispatcher(logger.Nop(), Config{
		Name:        "test",
		Concurrency: concurrency,
		Sleep:       h.sleeps.sleep,
	}, h.norm, analyzer, h.store, h.notifier, nil)
	t.Cleanup(h.d.Close)
	return h
}

func images(ids ...string) []study.QueuedItem {
	out := make([]study.QueuedItem, len(ids))
	for i, id := range ids {
		out[i] = study.QueuedItem{ID: id, Kind: study.KindImage, SourceRef: "ref-" + id, DisplayName: id}
	}
	return out
}

func waitStarted(t *testing.T, ch chan string, n int) []string {
	t.Helper()
	got := []string{}
	deadline := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case id := <-ch:
			got = append(got, id)
		case <-deadline:
			t.Fatalf("timed out waiting for %d analyses, started=%v", n, got)
		}
	}
	return got
}

func TestDispatcherBatchesUpToCeiling(t *testing.T) {
	a := newFakeAnalyzer(nil)
	a.started = make(chan string, 16)
	a.release = make(chan struct{})
	h := newHarness(t, UploadConcurrency, a)

	if err := h.d.Enqueue(images("1", "2", "3", "4", "5", "6")...); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	first := waitStarted(t, a.started, UploadConcurrency)
	sort.Strings(first)
	if fmt.Sprint(first) != "[1 2 3 4 5]" {
		t.Fatalf("first batch: got=%v", first)
	}
	select {
	case id := <-a.started:
		t.Fatalf("item %s started before the batch settled", id)
	case <-time.After(50 * time.Millisecond):
	}
	if p, _ := h.d.Get("6"); p.Status != study.UploadQueued {
		t.Fatalf("6th item: want=queued got=%s", p.Status)
	}

	close(a.release)
	h.d.Wait()

	if a.maxInflight != UploadConcurrency {
		t.Fatalf("max in flight: want=%d got=%d", UploadConcurrency, a.maxInflight)
	}
	if got := len(h.store.sources()); got != 6 {
		t.Fatalf("materials: want=6 got=%d", got)
	}
	if got := len(h.d.Snapshot()); got != 0 {
		t.Fatalf("pending after drain: want=0 got=%d", got)
	}
}

func TestDispatcherRetriesTransientFailures(t *testing.T) {
	a := newFakeAnalyzer(func(id string, call int) error {
		if call <= 2 {
			return pkgerrors.Transient(errors.New("503"))
		}
		return nil
	})
	h := newHarness(t, UploadConcurrency, a)

	_ = h.d.Enqueue(images("x")...)
	h.d.Wait()

	if got := a.callsFor("x"); got != 3 {
		t.Fatalf("calls: want=3 got=%d", got)
	}
	if fmt.Sprint(h.sleeps.delays) != "[2s 4s]" {
		t.Fatalf("backoff: want=[2s 4s] got=%v", h.sleeps.delays)
	}
	last, _ := h.notifier.last("x")
	if last.AttemptCount != 3 || last.Status != study.UploadRetrying {
		t.Fatalf("last update: got attempt=%d status=%s", last.AttemptCount, last.Status)
	}
	if len(h.store.sources()) != 1 {
		t.Fatalf("material not persisted")
	}
	if _, ok := h.d.Get("x"); ok {
		t.Fatalf("pending upload must be removed after persisting")
	}
}

func TestDispatcherExhaustsAttempts(t *testing.T) {
	a := newFakeAnalyzer(func(string, int) error { return pkgerrors.Transient(errors.New("timeout")) })
	h := newHarness(t, UploadConcurrency, a)

	_ = h.d.Enqueue(images("x")...)
	h.d.Wait()

	p, ok := h.d.Get("x")
	if !ok || p.Status != study.UploadFailed || p.ErrorClass != study.ErrorClassUnknown {
		t.Fatalf("pending: got=%+v", p)
	}
	if p.AttemptCount != MaxAttempts || p.RetainedSource == nil || p.RetainedSource.ID != "x" {
		t.Fatalf("attempts/retained: got=%+v", p)
	}
	if len(h.sleeps.delays) != MaxAttempts-1 {
		t.Fatalf("sleeps: want=%d got=%v", MaxAttempts-1, h.sleeps.delays)
	}
}

func TestDispatcherRecitationIsNotRetried(t *testing.T) {
	a := newFakeAnalyzer(func(string, int) error {
		return pkgerrors.Recitation([]string{"https://a.example"})
	})
	h := newHarness(t, UploadConcurrency, a)

	_ = h.d.Enqueue(images("r")...)
	h.d.Wait()

	p, _ := h.d.Get("r")
	if p.Status != study.UploadFailed || p.ErrorClass != study.ErrorClassRecitation {
		t.Fatalf("pending: got=%+v", p)
	}
	if len(p.CitationURLs) != 1 || p.CitationURLs[0] != "https://a.example" {
		t.Fatalf("citations: got=%v", p.CitationURLs)
	}
	if a.callsFor("r") != 1 || len(h.sleeps.delays) != 0 {
		t.Fatalf("recitation retried: calls=%d sleeps=%v", a.callsFor("r"), h.sleeps.delays)
	}
}

func TestDispatcherNormalizationFailure(t *testing.T) {
	a := newFakeAnalyzer(nil)
	h := newHarness(t, UploadConcurrency, a)
	h.norm.fail["bad"] = true

	_ = h.d.Enqueue(images("bad", "good")...)
	h.d.Wait()

	p, _ := h.d.Get("bad")
	if p.Status != study.UploadFailed || p.AttemptCount != 0 {
		t.Fatalf("pending: got=%+v", p)
	}
	if a.callsFor("bad") != 0 {
		t.Fatalf("analyzer must not run for unreadable input")
	}
	if fmt.Sprint(h.store.sources()) != "[good]" {
		t.Fatalf("materials: got=%v", h.store.sources())
	}
}

func TestDispatcherMarksClaimedItemProcessing(t *testing.T) {
	a := newFakeAnalyzer(nil)
	h := newHarness(t, UploadConcurrency, a)
	h.norm.entered = make(chan string, 1)
	h.norm.release = make(chan struct{})

	_ = h.d.Enqueue(images("slow")...)
	waitStarted(t, h.norm.entered, 1)

	p, ok := h.d.Get("slow")
	if !ok || p.Status != study.UploadProcessing || p.AttemptCount != 0 {
		t.Fatalf("claimed item during normalization: got=%+v ok=%v", p, ok)
	}
	close(h.norm.release)
	h.d.Wait()

	if p, _ := h.notifier.last("slow"); p.AttemptCount != 1 {
		t.Fatalf("attempts after analysis: want=1 got=%d", p.AttemptCount)
	}
}

func TestDispatcherCancelBeforeClaim(t *testing.T) {
	a := newFakeAnalyzer(nil)
	a.started = make(chan string, 16)
	a.release = make(chan struct{})
	h := newHarness(t, 1, a)

	_ = h.d.Enqueue(images("1", "2")...)
	waitStarted(t, a.started, 1)
	if !h.d.Cancel("2") {
		t.Fatalf("Cancel queued item: want=true")
	}
	close(a.release)
	h.d.Wait()

	if a.callsFor("2") != 0 {
		t.Fatalf("cancelled item was analyzed")
	}
	if fmt.Sprint(h.store.sources()) != "[1]" {
		t.Fatalf("materials: got=%v", h.store.sources())
	}
	if h.d.Cancel("2") {
		t.Fatalf("second Cancel must report false")
	}
}

func TestDispatcherCancelAfterClaimDiscardsResult(t *testing.T) {
	a := newFakeAnalyzer(nil)
	a.started = make(chan string, 16)
	a.release = make(chan struct{})
	h := newHarness(t, UploadConcurrency, a)

	_ = h.d.Enqueue(images("1")...)
	waitStarted(t, a.started, 1)
	if !h.d.Cancel("1") {
		t.Fatalf("Cancel in-flight item: want=true")
	}
	close(a.release)
	h.d.Wait()

	if len(h.store.sources()) != 0 {
		t.Fatalf("result of cancelled item was persisted")
	}
	if len(h.d.Snapshot()) != 0 {
		t.Fatalf("cancelled item reappeared")
	}
}

func TestDispatcherRetry(t *testing.T) {
	var mu sync.Mutex
	broken := true
	a := newFakeAnalyzer(func(string, int) error {
		mu.Lock()
		defer mu.Unlock()
		if broken {
			return pkgerrors.Unknown("ANALYSIS_FAILED", errors.New("bad payload"), true)
		}
		return nil
	})
	h := newHarness(t, UploadConcurrency, a)

	if h.d.Retry("missing") {
		t.Fatalf("Retry unknown id: want=false")
	}
	_ = h.d.Enqueue(images("x")...)
	h.d.Wait()

	p, _ := h.d.Get("x")
	if p.Status != study.UploadFailed || p.AttemptCount != 1 {
		t.Fatalf("no-retry failure: got=%+v", p)
	}

	mu.Lock()
	broken = false
	mu.Unlock()
	if !h.d.Retry("x") {
		t.Fatalf("Retry failed item: want=true")
	}
	if h.d.Retry("x") {
		t.Fatalf("Retry of a non-failed item must be a no-op")
	}
	h.d.Wait()

	if len(h.store.sources()) != 1 {
		t.Fatalf("retried item not persisted")
	}
	if _, ok := h.d.Get("x"); ok {
		t.Fatalf("retried item must be removed")
	}
}

func TestDispatcherMissingCredentialsBlocks(t *testing.T) {
	var mu sync.Mutex
	keyMissing := true
	a := newFakeAnalyzer(func(string, int) error {
		mu.Lock()
		defer mu.Unlock()
		if keyMissing {
			return pkgerrors.MissingCredentials()
		}
		return nil
	})
	h := newHarness(t, 1, a)

	_ = h.d.Enqueue(images("1", "2", "3")...)
	h.d.Wait()

	if !h.d.Blocked() {
		t.Fatalf("dispatcher must be blocked")
	}
	if p, _ := h.d.Get("1"); p.Status != study.UploadFailed {
		t.Fatalf("first item: want=failed got=%s", p.Status)
	}
	for _, id := range []string{"2", "3"} {
		if p, _ := h.d.Get(id); p.Status != study.UploadQueued {
			t.Fatalf("item %s: want=queued got=%s", id, p.Status)
		}
	}
	if len(h.notifier.blocked) != 1 || h.notifier.blocked[0] != "API_KEY_MISSING" {
		t.Fatalf("blocked events: got=%v", h.notifier.blocked)
	}
	if a.callsFor("1") != 1 {
		t.Fatalf("missing credentials must not be retried")
	}

	mu.Lock()
	keyMissing = false
	mu.Unlock()
	h.d.Resume()
	h.d.Wait()

	if fmt.Sprint(h.store.sources()) != "[2 3]" {
		t.Fatalf("materials after resume: got=%v", h.store.sources())
	}
}

func TestDispatcherPersistFailureIsRetried(t *testing.T) {
	a := newFakeAnalyzer(nil)
	h := newHarness(t, UploadConcurrency, a)
	failures := 1
	h.store.fail = func(*study.StudyMaterial) error {
		if failures > 0 {
			failures--
			return pkgerrors.ErrStorageUnavailable
		}
		return nil
	}

	_ = h.d.Enqueue(images("x")...)
	h.d.Wait()

	if a.callsFor("x") != 2 || len(h.store.sources()) != 1 {
		t.Fatalf("calls=%d saved=%d", a.callsFor("x"), len(h.store.sources()))
	}
}

func TestDispatcherRejectsReusedIDs(t *testing.T) {
	h := newHarness(t, UploadConcurrency, newFakeAnalyzer(nil))

	if err := h.d.Enqueue(images("a", "a")...); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("duplicate in call: want invalid argument got=%v", err)
	}
	if err := h.d.Enqueue(images("a")...); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	h.d.Wait()
	if err := h.d.Enqueue(images("a")...); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("reused id: want invalid argument got=%v", err)
	}
	if err := h.d.Enqueue(study.QueuedItem{ID: "v", Kind: "video"}); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("bad kind: want invalid argument got=%v", err)
	}
}

func TestDispatcherValidatesPageNumbers(t *testing.T) {
	h := newHarness(t, UploadConcurrency, newFakeAnalyzer(nil))

	cases := []struct {
		item study.QueuedItem
		ok   bool
	}{
		{item: study.QueuedItem{ID: "p0", Kind: study.KindPDFPage, SourceRef: "r"}},
		{item: study.QueuedItem{ID: "p-1", Kind: study.KindPDFPage, SourceRef: "r", PageNumber: -1}},
		{item: study.QueuedItem{ID: "img2", Kind: study.KindImage, SourceRef: "r", PageNumber: 2}},
		{item: study.QueuedItem{ID: "txt1", Kind: study.KindText, SourceRef: "r", PageNumber: 1}},
		{item: study.QueuedItem{ID: "p3", Kind: study.KindPDFPage, SourceRef: "r", PageNumber: 3}, ok: true},
		{item: study.QueuedItem{ID: "img", Kind: study.KindImage, SourceRef: "r"}, ok: true},
	}
	for _, tc := range cases {
		err := h.d.Enqueue(tc.item)
		if tc.ok && err != nil {
			t.Fatalf("Enqueue %s: %v", tc.item.ID, err)
		}
		if !tc.ok && !errors.Is(err, pkgerrors.ErrInvalidArgument) {
			t.Fatalf("Enqueue %s: want invalid argument got=%v", tc.item.ID, err)
		}
	}
	h.d.Wait()
	if _, ok := h.d.Get("p0"); ok {
		t.Fatalf("rejected item must not be tracked")
	}
}

func TestDispatcherSnapshotOrder(t *testing.T) {
	a := newFakeAnalyzer(nil)
	a.started = make(chan string, 16)
	a.release = make(chan struct{})
	h := newHarness(t, 1, a)

	_ = h.d.Enqueue(images("c", "a", "b")...)
	waitStarted(t, a.started, 1)

	snap := h.d.Snapshot()
	if len(snap) != 3 || snap[0].ID != "c" || snap[1].ID != "a" || snap[2].ID != "b" {
		t.Fatalf("snapshot order: got=%v", snap)
	}
	if snap[0].Status != study.UploadProcessing || snap[0].AttemptCount != 1 {
		t.Fatalf("claimed item: got=%+v", snap[0])
	}
	close(a.release)
	h.d.Wait()
}

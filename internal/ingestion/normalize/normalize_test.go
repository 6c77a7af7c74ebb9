package normalize

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
	pkgerrors "github.com/yungbote/studyquiz-backend/internal/pkg/errors"
	"github.com/yungbote/studyquiz-backend/internal/platform/localmedia"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
)

// fakeTools renders every PDF page as a flat PNG of renderWidth x renderWidth*1.4.
type fakeTools struct {
	localmedia.Tools
	mu          sync.Mutex
	renderCalls []int
	renderWidth int
	dir         string
}

func (f *fakeTools) RenderPDFPage(_ context.Context, _ string, outDir string, page int, opts localmedia.PDFRenderOptions) (string, error) {
	f.mu.Lock()
	f.renderCalls = append(f.renderCalls, page)
	f.mu.Unlock()
	w := f.renderWidth
	if opts.ScaleToWidth > 0 && opts.ScaleToWidth < w {
		w = opts.ScaleToWidth
	}
	path := filepath.Join(outDir, fmt.Sprintf("page_%04d-1.png", page))
	if err := os.WriteFile(path, pngBytes(w, w*14/10), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fakeTools) WriteTempFile(_ context.Context, data []byte, suffix string) (string, func(), error) {
	file, err := os.CreateTemp(f.dir, "src-*"+suffix)
	if err != nil {
		return "", func() {}, err
	}
	_, _ = file.Write(data)
	_ = file.Close()
	return file.Name(), func() { _ = os.Remove(file.Name()) }, nil
}

func (f *fakeTools) TempDir(_ context.Context, prefix string) (string, func(), error) {
	dir, err := os.MkdirTemp(f.dir, prefix+"-*")
	return dir, func() { _ = os.RemoveAll(dir) }, err
}

func pngBytes(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y += 7 {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// minimalPDF builds a valid PDF with n empty pages and a correct xref table.
func minimalPDF(n int) []byte {
	var buf bytes.Buffer
	offsets := []int{}
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}
	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, n)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for i := 0; i < n; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func newTestNormalizer(t *testing.T) (*normalizer, SourceStore, *fakeTools) {
	t.Helper()
	tools := &fakeTools{renderWidth: 2400, dir: t.TempDir()}
	store := NewMemoryStore()
	n := New(logger.Nop(), tools, store).(*normalizer)
	return n, store, tools
}

func jpegSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("payload is not a jpeg: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestNormalizeImageBoundsDerivatives(t *testing.T) {
	n, store, _ := newTestNormalizer(t)
	ref := store.Put(pngBytes(5000, 1000))

	out, err := n.Normalize(context.Background(), study.QueuedItem{ID: "a", Kind: study.KindImage, SourceRef: ref})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if w, h := jpegSize(t, out.Image); w != MaxAnalysisDimension || h != 819 {
		t.Fatalf("analysis size: want=4096x819 got=%dx%d", w, h)
	}
	if w, _ := jpegSize(t, out.Preview); w != MaxPreviewDimension {
		t.Fatalf("preview width: want=%d got=%d", MaxPreviewDimension, w)
	}
}

func TestNormalizeSmallImageIsNotUpscaled(t *testing.T) {
	n, store, _ := newTestNormalizer(t)
	ref := store.Put(pngBytes(120, 80))

	out, err := n.Normalize(context.Background(), study.QueuedItem{ID: "a", Kind: study.KindImage, SourceRef: ref})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if w, h := jpegSize(t, out.Image); w != 120 || h != 80 {
		t.Fatalf("analysis size: want=120x80 got=%dx%d", w, h)
	}
}

func TestNormalizeText(t *testing.T) {
	n, store, _ := newTestNormalizer(t)
	ref := store.Put([]byte("Photosynthesis converts light energy into chemical energy."))

	out, err := n.Normalize(context.Background(), study.QueuedItem{ID: "t", Kind: study.KindText, SourceRef: ref, DisplayName: "Biology notes"})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !strings.HasPrefix(out.Text, "Photosynthesis") || out.Image != nil {
		t.Fatalf("text payload: got=%+v", out)
	}
	if w, h := jpegSize(t, out.Preview); w != placeholderSize || h != placeholderSize {
		t.Fatalf("placeholder: want=500x500 got=%dx%d", w, h)
	}
}

func TestNormalizeFailuresAreClassified(t *testing.T) {
	n, store, _ := newTestNormalizer(t)
	ctx := context.Background()

	cases := []study.QueuedItem{
		{ID: "missing", Kind: study.KindImage, SourceRef: "nope"},
		{ID: "empty-text", Kind: study.KindText, SourceRef: store.Put([]byte("   "))},
		{ID: "not-image", Kind: study.KindImage, SourceRef: store.Put([]byte("just some text"))},
		{ID: "bad-pdf", Kind: study.KindPDFPage, SourceRef: store.Put([]byte("%PDF-garbage")), PageNumber: 1},
		{ID: "page-range", Kind: study.KindPDFPage, SourceRef: store.Put(minimalPDF(2)), PageNumber: 3},
		{ID: "kind", Kind: "video", SourceRef: store.Put([]byte("x"))},
	}
	for _, item := range cases {
		_, err := n.Normalize(ctx, item)
		if pkgerrors.KindOf(err) != pkgerrors.KindNormalizationFailed {
			t.Fatalf("%s: want normalization_failed got=%v", item.ID, err)
		}
	}
}

func TestNormalizePDFPage(t *testing.T) {
	n, store, tools := newTestNormalizer(t)
	ref := store.Put(minimalPDF(3))

	out, err := n.Normalize(context.Background(), study.QueuedItem{ID: "p2", Kind: study.KindPDFPage, SourceRef: ref, PageNumber: 2})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if w, _ := jpegSize(t, out.Image); w != pdfAnalysisWidth {
		t.Fatalf("page width: want=%d got=%d", pdfAnalysisWidth, w)
	}
	if len(tools.renderCalls) != 1 || tools.renderCalls[0] != 2 {
		t.Fatalf("render calls: got=%v", tools.renderCalls)
	}
}

func TestInspect(t *testing.T) {
	n, _, tools := newTestNormalizer(t)

	insp, err := n.Inspect(context.Background(), minimalPDF(25), nil)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if insp.TotalPages != 25 || !insp.NeedsSelection {
		t.Fatalf("inspection: got total=%d needsSelection=%v", insp.TotalPages, insp.NeedsSelection)
	}
	if len(insp.Pages) != MaxAutoPDFPages || insp.Pages[0].PageNumber != 1 || insp.Pages[19].PageNumber != 20 {
		t.Fatalf("pages: got=%d", len(insp.Pages))
	}
	if w, _ := jpegSize(t, insp.Pages[0].Thumbnail); w != pdfThumbnailWidth {
		t.Fatalf("thumbnail width: want=%d got=%d", pdfThumbnailWidth, w)
	}

	tools.renderCalls = nil
	insp, err = n.Inspect(context.Background(), minimalPDF(25), []int{24, 22, 99})
	if err != nil {
		t.Fatalf("Inspect range: %v", err)
	}
	if len(insp.Pages) != 2 || insp.Pages[0].PageNumber != 22 || insp.Pages[1].PageNumber != 24 {
		t.Fatalf("ranged pages: got=%+v", insp.Pages)
	}
}

func TestExpandPDF(t *testing.T) {
	items := ExpandPDF("chem.pdf", "ref-1", []int{3, 1, 3, 0})
	if len(items) != 2 {
		t.Fatalf("items: want=2 got=%d", len(items))
	}
	if items[0].PageNumber != 1 || items[0].DisplayName != "chem.pdf - Page 1" || items[0].SourceRef != "ref-1" {
		t.Fatalf("first item: got=%+v", items[0])
	}
	if items[0].ID == items[1].ID {
		t.Fatalf("ids must be unique")
	}
}

func TestMemoryStoreRefcount(t *testing.T) {
	s := NewMemoryStore()
	ref := s.Put([]byte("x"))
	s.Retain(ref)
	s.Retain(ref)

	s.Release(ref)
	if _, err := s.Get(ref); err != nil {
		t.Fatalf("source released too early: %v", err)
	}
	s.Release(ref)
	if _, err := s.Get(ref); err == nil {
		t.Fatalf("source should be freed after the last release")
	}
}

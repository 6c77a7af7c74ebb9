package normalize

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
	"github.com/yungbote/studyquiz-backend/internal/platform/localmedia"
)

const (
	MaxAutoPDFPages = 20

	pdfAnalysisWidth  = 2000
	pdfThumbnailWidth = 150
	pdfJPEGQuality    = 80

	inspectConcurrency = 4
)

type PagePreview struct {
	PageNumber int    `json:"pageNumber"`
	Thumbnail  []byte `json:"thumbnail"`
}

// PDFInspection backs the page-range selector.
type PDFInspection struct {
	TotalPages     int           `json:"totalPages"`
	Pages          []PagePreview `json:"pages"`
	NeedsSelection bool          `json:"needsSelection"`
}

// CountPages validates data as a PDF and returns its page count.
func CountPages(data []byte) (n int, err error) {
	defer func() {
		// ledongthuc/pdf panics on some malformed xref tables.
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	n = r.NumPage()
	if n <= 0 {
		return 0, fmt.Errorf("pdf has no pages")
	}
	return n, nil
}

// ExpandPDF builds one pdf_page item per selected page, all sharing ref.
func ExpandPDF(displayName, ref string, pages []int) []study.QueuedItem {
	sorted := append([]int(nil), pages...)
	sort.Ints(sorted)
	out := make([]study.QueuedItem, 0, len(sorted))
	seen := map[int]bool{}
	for _, p := range sorted {
		if p <= 0 || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, study.QueuedItem{
			ID:          uuid.NewString(),
			Kind:        study.KindPDFPage,
			SourceRef:   ref,
			PageNumber:  p,
			DisplayName: fmt.Sprintf("%s - Page %d", displayName, p),
		})
	}
	return out
}

// AllPages returns 1..n.
func AllPages(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func (n *normalizer) renderPage(ctx context.Context, pdfPath string, page, width int) ([]byte, error) {
	dir, cleanup, err := n.tools.TempDir(ctx, "render")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	out, err := n.tools.RenderPDFPage(ctx, pdfPath, dir, page, localmedia.PDFRenderOptions{
		Format:       "jpeg",
		ScaleToWidth: width,
	})
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read rendered page: %w", err)
	}
	img, err := decodeImage(raw)
	if err != nil {
		return nil, err
	}
	return encodeJPEG(fitWidth(img, width), pdfJPEGQuality)
}

func (n *normalizer) normalizePDFPage(ctx context.Context, item study.QueuedItem, data []byte) (*Normalized, error) {
	total, err := CountPages(data)
	if err != nil {
		return nil, err
	}
	if item.PageNumber < 1 || item.PageNumber > total {
		return nil, fmt.Errorf("page %d out of range 1..%d", item.PageNumber, total)
	}
	path, cleanup, err := n.tools.WriteTempFile(ctx, data, ".pdf")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	analysis, err := n.renderPage(ctx, path, item.PageNumber, pdfAnalysisWidth)
	if err != nil {
		return nil, err
	}
	img, err := decodeImage(analysis)
	if err != nil {
		return nil, err
	}
	preview, err := encodeJPEG(fitWithin(img, MaxPreviewDimension), previewJPEGQuality)
	if err != nil {
		return nil, err
	}
	return &Normalized{Kind: study.KindPDFPage, Image: analysis, Preview: preview}, nil
}

func (n *normalizer) Inspect(ctx context.Context, data []byte, pages []int) (*PDFInspection, error) {
	total, err := CountPages(data)
	if err != nil {
		return nil, wrapFailure(err)
	}
	if len(pages) == 0 {
		pages = AllPages(min(total, MaxAutoPDFPages))
	}
	selected := make([]int, 0, len(pages))
	for _, p := range pages {
		if p >= 1 && p <= total {
			selected = append(selected, p)
		}
	}
	sort.Ints(selected)

	path, cleanup, err := n.tools.WriteTempFile(ctx, data, ".pdf")
	if err != nil {
		return nil, wrapFailure(err)
	}
	defer cleanup()

	previews := make([]PagePreview, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(inspectConcurrency)
	for i, p := range selected {
		g.Go(func() error {
			thumb, err := n.renderPage(gctx, path, p, pdfThumbnailWidth)
			if err != nil {
				return fmt.Errorf("page %d: %w", p, err)
			}
			previews[i] = PagePreview{PageNumber: p, Thumbnail: thumb}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, wrapFailure(err)
	}
	return &PDFInspection{
		TotalPages:     total,
		Pages:          previews,
		NeedsSelection: total > MaxAutoPDFPages,
	}, nil
}

package normalize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
	pkgerrors "github.com/yungbote/studyquiz-backend/internal/pkg/errors"
	"github.com/yungbote/studyquiz-backend/internal/platform/localmedia"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
)

// Normalized is an analysis-ready payload plus its preview.
type Normalized struct {
	Kind    study.ItemKind
	Image   []byte // JPEG, for image and pdf_page items
	Text    string // for text items
	Preview []byte // JPEG
}

type Normalizer interface {
	Normalize(ctx context.Context, item study.QueuedItem) (*Normalized, error)
	Inspect(ctx context.Context, pdfData []byte, pages []int) (*PDFInspection, error)
}

type normalizer struct {
	log     *logger.Logger
	tools   localmedia.Tools
	sources SourceStore
}

func New(log *logger.Logger, tools localmedia.Tools, sources SourceStore) Normalizer {
	return &normalizer{
		log:     log.With("service", "ContentNormalizer"),
		tools:   tools,
		sources: sources,
	}
}

// Normalize resolves the item's source and converts it. Every failure is a NormalizationFailed error.
func (n *normalizer) Normalize(ctx context.Context, item study.QueuedItem) (*Normalized, error) {
	data, err := n.sources.Get(item.SourceRef)
	if err != nil {
		return nil, wrapFailure(err)
	}

	var out *Normalized
	switch item.Kind {
	case study.KindImage:
		out, err = n.normalizeImage(ctx, data)
	case study.KindPDFPage:
		out, err = n.normalizePDFPage(ctx, item, data)
	case study.KindText:
		out, err = n.normalizeText(item, data)
	default:
		err = fmt.Errorf("unsupported item kind %q", item.Kind)
	}
	if err != nil {
		n.log.Warn("normalization failed", "item_id", item.ID, "kind", item.Kind, "error", err)
		return nil, wrapFailure(err)
	}
	return out, nil
}

func (n *normalizer) normalizeImage(ctx context.Context, data []byte) (*Normalized, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	mt := mimetype.Detect(data)
	if mt.Is("image/heic") || mt.Is("image/heif") || mt.Is("image/heic-sequence") || mt.Is("image/heif-sequence") {
		converted, err := n.transcodeHEIC(ctx, data)
		if err != nil {
			return nil, err
		}
		data = converted
		mt = mimetype.Detect(data)
	}
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("not an image: %s", mt.String())
	}
	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	analysis, preview, err := derivatives(img)
	if err != nil {
		return nil, err
	}
	return &Normalized{Kind: study.KindImage, Image: analysis, Preview: preview}, nil
}

func (n *normalizer) transcodeHEIC(ctx context.Context, data []byte) ([]byte, error) {
	in, cleanup, err := n.tools.WriteTempFile(ctx, data, ".heic")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	outPath, err := n.tools.ConvertHEICToJPEG(ctx, in, strings.TrimSuffix(in, ".heic")+".jpg")
	if err != nil {
		return nil, err
	}
	defer os.Remove(outPath)
	return os.ReadFile(outPath)
}

func (n *normalizer) normalizeText(item study.QueuedItem, data []byte) (*Normalized, error) {
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty text")
	}
	preview, err := textPlaceholder(item.DisplayName, text)
	if err != nil {
		return nil, err
	}
	return &Normalized{Kind: study.KindText, Text: text, Preview: preview}, nil
}

func wrapFailure(err error) error {
	if pkgerrors.KindOf(err) == pkgerrors.KindNormalizationFailed {
		return err
	}
	return pkgerrors.NormalizationFailed(err)
}

package localmedia

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/studyquiz-backend/internal/platform/ctxutil"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
)

// Tools is the glue around system binaries used by the normalizer.
//
// REQUIRED BINARIES:
// - pdftoppm (poppler-utils) for PDF page -> image
//
// OPTIONAL BINARIES:
// - heif-convert (libheif-examples) for HEIC/HEIF -> JPEG
type Tools interface {
	AssertReady(ctx context.Context) error

	RenderPDFPage(ctx context.Context, pdfPath string, outDir string, page int, opts PDFRenderOptions) (string, error)
	ConvertHEICToJPEG(ctx context.Context, inputPath string, outPath string) (string, error)

	// Helpers for callers who only have bytes:
	WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error)
	TempDir(ctx context.Context, prefix string) (string, func(), error)
}

type PDFRenderOptions struct {
	DPI          int
	Format       string // "png" or "jpeg"
	ScaleToWidth int    // pixels, keeps aspect ratio; 0 renders at DPI
}

type Config struct {
	WorkRoot       string
	PdftoppmPath   string
	HeifConvert    string
	DefaultTimeout time.Duration
}

type tools struct {
	log *logger.Logger

	pdftoppmPath    string
	heifConvertPath string

	workRoot string

	defaultTimeout time.Duration
}

func New(log *logger.Logger, cfg Config) Tools {
	t := &tools{
		log:             log.With("service", "MediaTools"),
		pdftoppmPath:    "pdftoppm",
		heifConvertPath: "heif-convert",
		workRoot:        filepath.Join(os.TempDir(), "studyquiz-media"),
		defaultTimeout:  2 * time.Minute,
	}
	if cfg.WorkRoot != "" {
		t.workRoot = cfg.WorkRoot
	}
	if cfg.PdftoppmPath != "" {
		t.pdftoppmPath = cfg.PdftoppmPath
	}
	if cfg.HeifConvert != "" {
		t.heifConvertPath = cfg.HeifConvert
	}
	if cfg.DefaultTimeout > 0 {
		t.defaultTimeout = cfg.DefaultTimeout
	}
	return t
}

func (m *tools) AssertReady(ctx context.Context) error {
	if err := m.assertBinary(m.pdftoppmPath); err != nil {
		return err
	}
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	if err := m.assertBinary(m.heifConvertPath); err != nil {
		m.log.Warn("HEIC transcoding unavailable", "binary", m.heifConvertPath)
	}
	return nil
}

func (m *tools) assertBinary(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("missing required binary %q in PATH: %w", name, err)
	}
	return nil
}

func (m *tools) WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error) {
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("mkdir workRoot: %w", err)
	}
	h := sha256.Sum256(data)
	base := hex.EncodeToString(h[:])[:16]
	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	f, err := os.CreateTemp(m.workRoot, base+"-*"+suffix)
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("close temp file: %w", err)
	}
	return path, cleanup, nil
}

func (m *tools) TempDir(ctx context.Context, prefix string) (string, func(), error) {
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("mkdir workRoot: %w", err)
	}
	dir, err := os.MkdirTemp(m.workRoot, prefix+"-*")
	if err != nil {
		return "", func() {}, fmt.Errorf("mkdir temp: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

func (m *tools) RenderPDFPage(ctx context.Context, pdfPath string, outDir string, page int, opts PDFRenderOptions) (string, error) {
	ctx = ctxutil.Default(ctx)
	if pdfPath == "" {
		return "", fmt.Errorf("pdfPath required")
	}
	if outDir == "" {
		return "", fmt.Errorf("outDir required")
	}
	if page <= 0 {
		return "", fmt.Errorf("page must be >= 1")
	}
	if err := m.assertBinary(m.pdftoppmPath); err != nil {
		return "", err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir outDir: %w", err)
	}

	args, err := pdftoppmArgs(pdfPath, outDir, page, opts)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.pdftoppmPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("pdftoppm failed: %w; out=%s", err, string(out))
	}

	pattern := fmt.Sprintf("^page_%04d(-\\d+)?\\.(png|jpe?g)$", page)
	paths, err := globSorted(outDir, pattern)
	if err != nil || len(paths) == 0 {
		return "", fmt.Errorf("no image produced by pdftoppm for page %d; out=%s", page, string(out))
	}
	return paths[0], nil
}

func pdftoppmArgs(pdfPath, outDir string, page int, opts PDFRenderOptions) ([]string, error) {
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "png"
	}
	if format != "png" && format != "jpeg" && format != "jpg" {
		return nil, fmt.Errorf("unsupported render format: %s", format)
	}

	args := []string{}
	if opts.ScaleToWidth > 0 {
		args = append(args, "-scale-to-x", strconv.Itoa(opts.ScaleToWidth), "-scale-to-y", "-1")
	} else {
		dpi := opts.DPI
		if dpi <= 0 {
			dpi = 150
		}
		args = append(args, "-r", strconv.Itoa(dpi))
	}
	if format == "png" {
		args = append(args, "-png")
	} else {
		args = append(args, "-jpeg")
	}
	prefix := filepath.Join(outDir, fmt.Sprintf("page_%04d", page))
	args = append(args, "-f", strconv.Itoa(page), "-l", strconv.Itoa(page), pdfPath, prefix)
	return args, nil
}

func (m *tools) ConvertHEICToJPEG(ctx context.Context, inputPath string, outPath string) (string, error) {
	ctx = ctxutil.Default(ctx)
	if inputPath == "" {
		return "", fmt.Errorf("inputPath required")
	}
	if outPath == "" {
		outPath = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".jpg"
	}
	if err := m.assertBinary(m.heifConvertPath); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.heifConvertPath, "-q", "92", inputPath, outPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("heif-convert failed: %w; out=%s", err, string(out))
	}
	if _, err := os.Stat(outPath); err != nil {
		// heif-convert writes "<name>-1.jpg" for multi-image containers.
		dir := filepath.Dir(outPath)
		base := strings.TrimSuffix(filepath.Base(outPath), filepath.Ext(outPath))
		paths, _ := globSorted(dir, "^"+regexp.QuoteMeta(strings.ToLower(base))+"-\\d+\\.jpe?g$")
		if len(paths) == 0 {
			return "", fmt.Errorf("heif-convert produced no output; out=%s", string(out))
		}
		return paths[0], nil
	}
	return outPath, nil
}

func globSorted(dir string, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if re.MatchString(strings.ToLower(e.Name())) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

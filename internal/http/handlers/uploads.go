package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
	"github.com/yungbote/studyquiz-backend/internal/http/response"
	"github.com/yungbote/studyquiz-backend/internal/ingestion/normalize"
	"github.com/yungbote/studyquiz-backend/internal/ingestion/queue"
	pkgerrors "github.com/yungbote/studyquiz-backend/internal/pkg/errors"
	"github.com/yungbote/studyquiz-backend/internal/platform/apierr"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
)

const (
	DefaultMaxUploadBytes = 50 << 20
	multipartMemory       = 32 << 20
	maxSelectablePage     = 10000
)

type UploadQueue interface {
	Enqueue(items ...study.QueuedItem) error
	Cancel(id string) bool
	Retry(id string) bool
	Resume()
	Snapshot() []study.PendingUpload
	Blocked() bool
}

type GroupAnalyzer interface {
	Analyze(ctx context.Context, items []study.QueuedItem) ([]queue.GroupResult, error)
}

type PDFInspector interface {
	Inspect(ctx context.Context, data []byte, pages []int) (*normalize.PDFInspection, error)
}

type UploadHandler struct {
	log       *logger.Logger
	uploads   UploadQueue
	direct    UploadQueue
	group     GroupAnalyzer
	inspector PDFInspector
	sources   normalize.SourceStore
	maxBytes  int64
}

func NewUploadHandler(log *logger.Logger, uploads, direct UploadQueue, group GroupAnalyzer, inspector PDFInspector, sources normalize.SourceStore, maxBytes int64) *UploadHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &UploadHandler{
		log:       log.With("handler", "UploadHandler"),
		uploads:   uploads,
		direct:    direct,
		group:     group,
		inspector: inspector,
		sources:   sources,
		maxBytes:  maxBytes,
	}
}

// needsSelection is returned when a PDF exceeds the automatic page limit and no pages were chosen.
type needsSelection struct {
	File       string                  `json:"file"`
	Inspection *normalize.PDFInspection `json:"inspection"`
}

type uploadFile struct {
	name string
	data []byte
	mime *mimetype.MIME
}

// POST /api/uploads
func (h *UploadHandler) Upload(c *gin.Context) {
	files, ok := h.readFiles(c, "files")
	if !ok {
		return
	}
	items, refs, ok := h.itemsFor(c, files)
	if !ok {
		return
	}
	if err := h.uploads.Enqueue(items...); err != nil {
		h.release(refs)
		response.RespondAPIError(c, err)
		return
	}
	h.log.Info("uploads enqueued", "files", len(files), "items", len(items))
	response.RespondAccepted(c, gin.H{"items": items})
}

type textUploadRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// POST /api/uploads/text
func (h *UploadHandler) UploadText(c *gin.Context) {
	var req textUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("text is required"))
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Pasted text"
	}
	ref := h.sources.Put([]byte(req.Text))
	item := study.QueuedItem{ID: uuid.NewString(), Kind: study.KindText, SourceRef: ref, DisplayName: title}
	if err := h.uploads.Enqueue(item); err != nil {
		h.sources.Release(ref)
		response.RespondAPIError(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"items": []study.QueuedItem{item}})
}

// GET /api/uploads
func (h *UploadHandler) List(c *gin.Context) {
	pending := append(h.uploads.Snapshot(), h.direct.Snapshot()...)
	response.RespondOK(c, gin.H{
		"uploads": pending,
		"blocked": h.uploads.Blocked() || h.direct.Blocked(),
	})
}

// POST /api/uploads/:id/retry
func (h *UploadHandler) Retry(c *gin.Context) {
	id := c.Param("id")
	retried := h.uploads.Retry(id) || h.direct.Retry(id)
	response.RespondOK(c, gin.H{"id": id, "retried": retried})
}

// DELETE /api/uploads/:id
func (h *UploadHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	cancelled := h.uploads.Cancel(id) || h.direct.Cancel(id)
	response.RespondOK(c, gin.H{"id": id, "cancelled": cancelled})
}

// POST /api/uploads/resume
func (h *UploadHandler) Resume(c *gin.Context) {
	h.uploads.Resume()
	h.direct.Resume()
	c.Status(http.StatusNoContent)
}

// POST /api/pdf/inspect
func (h *UploadHandler) InspectPDF(c *gin.Context) {
	files, ok := h.readFiles(c, "file")
	if !ok {
		return
	}
	f := files[0]
	if !f.mime.Is("application/pdf") {
		response.RespondError(c, http.StatusUnsupportedMediaType, "unsupported_media_type", fmt.Errorf("%s is %s, want a pdf", f.name, f.mime.String()))
		return
	}
	pages, err := parsePages(c.PostForm("pages"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	insp, err := h.inspector.Inspect(c.Request.Context(), f.data, pages)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, insp)
}

// POST /api/analyze
func (h *UploadHandler) Analyze(c *gin.Context) {
	files, ok := h.readFiles(c, "file")
	if !ok {
		return
	}
	f := files[0]
	if !strings.HasPrefix(f.mime.String(), "image/") {
		response.RespondError(c, http.StatusUnsupportedMediaType, "unsupported_media_type", fmt.Errorf("%s is not an image", f.name))
		return
	}
	ref := h.sources.Put(f.data)
	item := study.QueuedItem{ID: uuid.NewString(), Kind: study.KindImage, SourceRef: ref, DisplayName: f.name}
	if err := h.direct.Enqueue(item); err != nil {
		h.sources.Release(ref)
		response.RespondAPIError(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"item": item})
}

type groupResult struct {
	ItemID      string               `json:"itemId"`
	DisplayName string               `json:"displayName"`
	Material    *study.StudyMaterial `json:"material,omitempty"`
	Error       *response.APIError   `json:"error,omitempty"`
}

// POST /api/analyze/group analyzes the files together and waits for all of them.
func (h *UploadHandler) AnalyzeGroup(c *gin.Context) {
	files, ok := h.readFiles(c, "files")
	if !ok {
		return
	}
	items, refs, ok := h.itemsFor(c, files)
	if !ok {
		return
	}
	defer h.release(refs)

	results, err := h.group.Analyze(c.Request.Context(), items)
	out := make([]groupResult, len(results))
	for i, r := range results {
		out[i] = groupResult{ItemID: r.Item.ID, DisplayName: r.Item.DisplayName, Material: r.Material}
		if r.Err != nil {
			ae := apierr.FromError(r.Err)
			out[i].Error = &response.APIError{Message: r.Err.Error(), Code: ae.Code}
		}
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusMultiStatus
	}
	c.JSON(status, gin.H{"results": out})
}

func (h *UploadHandler) readFiles(c *gin.Context, field string) ([]uploadFile, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondError(c, http.StatusRequestEntityTooLarge, "too_large", err)
			return nil, false
		}
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return nil, false
	}
	headers := c.Request.MultipartForm.File[field]
	if len(headers) == 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("multipart field %q is required", field))
		return nil, false
	}
	out := make([]uploadFile, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("read %s: %w", fh.Filename, err))
			return nil, false
		}
		out = append(out, uploadFile{name: fh.Filename, data: data, mime: mimetype.Detect(data)})
	}
	return out, true
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// itemsFor stores every file and expands PDFs into pages. On failure it has already responded.
func (h *UploadHandler) itemsFor(c *gin.Context, files []uploadFile) ([]study.QueuedItem, []string, bool) {
	var (
		items []study.QueuedItem
		refs  []string
	)
	fail := func() ([]study.QueuedItem, []string, bool) {
		h.release(refs)
		return nil, nil, false
	}
	for _, f := range files {
		switch {
		case f.mime.Is("application/pdf"):
			total, err := normalize.CountPages(f.data)
			if err != nil {
				response.RespondAPIError(c, pkgerrors.NormalizationFailed(fmt.Errorf("%s: %w", f.name, err)))
				return fail()
			}
			pages, err := parsePages(pagesField(c, f.name))
			if err != nil {
				response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
				return fail()
			}
			if len(pages) == 0 {
				if total > normalize.MaxAutoPDFPages {
					insp, err := h.inspector.Inspect(c.Request.Context(), f.data, nil)
					if err != nil {
						response.RespondAPIError(c, err)
						return fail()
					}
					response.RespondErrorDetails(c, http.StatusConflict, "pdf_needs_selection",
						fmt.Errorf("%s has %d pages; choose at most %d", f.name, total, normalize.MaxAutoPDFPages),
						needsSelection{File: f.name, Inspection: insp})
					return fail()
				}
				pages = normalize.AllPages(total)
			}
			for _, p := range pages {
				if p > total {
					response.RespondError(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("%s has no page %d", f.name, p))
					return fail()
				}
			}
			ref := h.sources.Put(f.data)
			refs = append(refs, ref)
			items = append(items, normalize.ExpandPDF(f.name, ref, pages)...)
		case strings.HasPrefix(f.mime.String(), "image/"):
			ref := h.sources.Put(f.data)
			refs = append(refs, ref)
			items = append(items, study.QueuedItem{ID: uuid.NewString(), Kind: study.KindImage, SourceRef: ref, DisplayName: f.name})
		case f.mime.Is("text/plain"):
			ref := h.sources.Put(f.data)
			refs = append(refs, ref)
			items = append(items, study.QueuedItem{ID: uuid.NewString(), Kind: study.KindText, SourceRef: ref, DisplayName: f.name})
		default:
			response.RespondError(c, http.StatusUnsupportedMediaType, "unsupported_media_type", fmt.Errorf("%s: %s is not supported", f.name, f.mime.String()))
			return fail()
		}
	}
	return items, refs, true
}

func (h *UploadHandler) release(refs []string) {
	for _, ref := range refs {
		h.sources.Release(ref)
	}
}

// pagesField prefers a per-file "pages:<filename>" field over the shared "pages" field.
func pagesField(c *gin.Context, filename string) string {
	if v := c.PostForm("pages:" + filename); v != "" {
		return v
	}
	return c.PostForm("pages")
}

// parsePages reads selections like "1-3,7,9-10".
func parsePages(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil || start < 1 || start > maxSelectablePage {
			return nil, fmt.Errorf("invalid page %q", part)
		}
		end := start
		if isRange {
			end, err = strconv.Atoi(strings.TrimSpace(hi))
			if err != nil || end < start || end > maxSelectablePage {
				return nil, fmt.Errorf("invalid page range %q", part)
			}
		}
		for p := start; p <= end; p++ {
			out = append(out, p)
		}
	}
	return out, nil
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/studyquiz-backend/internal/http/response"
	"github.com/yungbote/studyquiz-backend/internal/library"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
	"github.com/yungbote/studyquiz-backend/internal/quiz/session"
)

type MaterialHandler struct {
	log      *logger.Logger
	library  *library.Service
	sessions *session.Service
}

func NewMaterialHandler(log *logger.Logger, lib *library.Service, sessions *session.Service) *MaterialHandler {
	return &MaterialHandler{log: log.With("handler", "MaterialHandler"), library: lib, sessions: sessions}
}

// GET /api/materials
func (h *MaterialHandler) List(c *gin.Context) {
	materials, err := h.library.Materials(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"materials": materials})
}

// GET /api/materials/:id
func (h *MaterialHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	m, err := h.library.Material(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"material": m})
}

// GET /api/materials/:id/preview
func (h *MaterialHandler) Preview(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	p, err := h.library.Preview(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, p.MimeType, p.Data)
}

// DELETE /api/materials/:id
func (h *MaterialHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.library.DeleteMaterial(c.Request.Context(), id); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/materials/:id/viewed
func (h *MaterialHandler) Viewed(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.sessions.MarkMaterialViewed(c.Request.Context(), id); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

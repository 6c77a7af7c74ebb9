package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/studyquiz-backend/internal/domain/study"
	"github.com/yungbote/studyquiz-backend/internal/http/response"
	"github.com/yungbote/studyquiz-backend/internal/library"
	pkgerrors "github.com/yungbote/studyquiz-backend/internal/pkg/errors"
	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
	"github.com/yungbote/studyquiz-backend/internal/quiz/generator"
	"github.com/yungbote/studyquiz-backend/internal/quiz/session"
)

type SessionHandler struct {
	log       *logger.Logger
	library   *library.Service
	sessions  *session.Service
	generator *generator.Generator
}

func NewSessionHandler(log *logger.Logger, lib *library.Service, sessions *session.Service, gen *generator.Generator) *SessionHandler {
	return &SessionHandler{
		log:       log.With("handler", "SessionHandler"),
		library:   lib,
		sessions:  sessions,
		generator: gen,
	}
}

type startQuizRequest struct {
	Type          study.QuizType `json:"type"`
	BaseSessionID *uuid.UUID     `json:"baseSessionId"`
}

// POST /api/materials/:id/quizzes
func (h *SessionHandler) StartQuiz(c *gin.Context) {
	materialID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req startQuizRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	if req.Type == "" {
		req.Type = study.QuizStandard
	}
	s, err := h.generator.StartGeneration(c.Request.Context(), materialID, req.Type, req.BaseSessionID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"session": s})
}

type bulkQuizRequest struct {
	MaterialIDs []uuid.UUID `json:"materialIds"`
}

// POST /api/quizzes/bulk
func (h *SessionHandler) StartBulk(c *gin.Context) {
	var req bulkQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if len(req.MaterialIDs) == 0 {
		response.RespondAPIError(c, fmt.Errorf("materialIds is empty: %w", pkgerrors.ErrInvalidArgument))
		return
	}
	created, err := h.generator.StartBackgroundGeneration(c.Request.Context(), req.MaterialIDs)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"sessions": created})
}

// GET /api/sessions?materialId=
func (h *SessionHandler) List(c *gin.Context) {
	var filter *uuid.UUID
	if raw := c.Query("materialId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.RespondAPIError(c, fmt.Errorf("materialId %q: %w", raw, pkgerrors.ErrInvalidArgument))
			return
		}
		filter = &id
	}
	sessions, err := h.library.Sessions(c.Request.Context(), filter)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"sessions": sessions})
}

// GET /api/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	s, err := h.library.Session(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"session": s})
}

type answerRequest struct {
	QuestionID     string `json:"questionId" binding:"required"`
	SelectedOption string `json:"selectedOption"`
}

// POST /api/sessions/:id/answers
func (h *SessionHandler) Answer(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	s, err := h.sessions.SubmitAnswer(c.Request.Context(), id, req.QuestionID, req.SelectedOption)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	a := s.AnswerMap()[req.QuestionID]
	response.RespondOK(c, gin.H{"session": s, "answer": a})
}

// POST /api/sessions/:id/viewed
func (h *SessionHandler) Viewed(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.sessions.MarkViewed(c.Request.Context(), id); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DELETE /api/sessions/:id
func (h *SessionHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.sessions.Delete(c.Request.Context(), id); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

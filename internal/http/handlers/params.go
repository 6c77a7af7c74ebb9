package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/studyquiz-backend/internal/http/response"
	pkgerrors "github.com/yungbote/studyquiz-backend/internal/pkg/errors"
)

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.RespondAPIError(c, fmt.Errorf("%s %q: %w", name, c.Param(name), pkgerrors.ErrInvalidArgument))
		return uuid.Nil, false
	}
	return id, true
}

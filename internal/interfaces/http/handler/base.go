package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sgpatel/secure-pdf-viewer/internal/domain/printing"
	"github.com/sgpatel/secure-pdf-viewer/internal/interfaces/http/dto"
	"github.com/sgpatel/secure-pdf-viewer/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Error sends an error response with an explicit status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.Set(middleware.ErrorCodeKey, code)
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, code, message string) {
	h.Error(c, http.StatusBadRequest, code, message)
}

// HandleError converts pipeline errors to HTTP responses. The status follows
// the error code, and the failing stage is reported when known.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)

	var pe *printing.PrintError
	if !errors.As(err, &pe) {
		h.Error(c, http.StatusInternalServerError, printing.ErrCodeInternal, "An unexpected error occurred")
		return
	}

	c.Set(middleware.ErrorCodeKey, pe.Code)
	resp := dto.NewErrorResponseWithRequestID(pe.Code, printing.MessageOf(err), middleware.GetRequestID(c))
	resp.Stage = string(printing.StageOf(err))
	c.JSON(dto.GetHTTPStatus(pe.Code), resp)
}

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sgpatel/secure-pdf-viewer/internal/interfaces/http/dto"
)

// BodyLimit rejects requests whose declared body exceeds maxBytes and caps
// streamed bodies at the same size
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			resp := dto.NewErrorResponseWithRequestID(dto.ErrCodeRequestTooLarge,
				"Request body exceeds maximum allowed size", GetRequestID(c))
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, resp)
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

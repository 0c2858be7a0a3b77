package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sgpatel/secure-pdf-viewer/internal/domain/printing"
	"github.com/sgpatel/secure-pdf-viewer/internal/interfaces/http/dto"
	"github.com/sgpatel/secure-pdf-viewer/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveError(err error) (*httptest.ResponseRecorder, *gin.Context) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set(middleware.RequestIDKey, "req-7")
	h := &BaseHandler{}
	h.HandleError(c, err)
	return w, c
}

func TestBaseHandler_HandleError(t *testing.T) {
	t.Run("wrapped print error keeps code and stage", func(t *testing.T) {
		cause := printing.NewPrintError(printing.ErrCodeEmptyInput, "print job contains no pages", nil)
		err := fmt.Errorf("submit: %w", printing.AtStage(printing.StageFlatten, cause))

		w, c := serveError(err)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		var resp dto.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, printing.ErrCodeEmptyInput, resp.Code)
		assert.Equal(t, "flatten", resp.Stage)
		assert.Equal(t, "req-7", resp.RequestID)
		assert.Equal(t, printing.ErrCodeEmptyInput, c.GetString(middleware.ErrorCodeKey))
		assert.Len(t, c.Errors, 1)
	})

	t.Run("unknown error hides its message", func(t *testing.T) {
		w, _ := serveError(errors.New("open /tmp/spv-123/secret.pdf: permission denied"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		var resp dto.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, printing.ErrCodeInternal, resp.Code)
		assert.NotContains(t, resp.Error, "secret.pdf")
	})

	t.Run("nil error writes nothing", func(t *testing.T) {
		w, _ := serveError(nil)
		assert.Empty(t, w.Body.String())
	})
}

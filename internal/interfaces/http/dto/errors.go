package dto

import (
	"net/http"

	"github.com/sgpatel/secure-pdf-viewer/internal/domain/printing"
)

// Request level error codes. Pipeline failures use the codes defined in the
// printing domain.
const (
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeInvalidBase64   = "INVALID_BASE64"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	ErrCodeRateLimited     = "RATE_LIMIT_EXCEEDED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// Request errors -> 400
	ErrCodeBadRequest:    http.StatusBadRequest,
	ErrCodeValidation:    http.StatusBadRequest,
	ErrCodeInvalidBase64: http.StatusBadRequest,

	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:     http.StatusTooManyRequests,

	// Wrong or missing password -> 401 so the client can prompt again
	printing.ErrCodeInvalidPassword: http.StatusUnauthorized,

	// Unusable document or policy rejection -> 422
	printing.ErrCodeCorruptDocument:  http.StatusUnprocessableEntity,
	printing.ErrCodePageRenderFailed: http.StatusUnprocessableEntity,
	printing.ErrCodeEmptyInput:       http.StatusUnprocessableEntity,
	printing.ErrCodeVirtualPrinter:   http.StatusUnprocessableEntity,

	printing.ErrCodePrinterNotFound:     http.StatusNotFound,
	printing.ErrCodeDuplicateSubmission: http.StatusConflict,
	printing.ErrCodeTimeout:             http.StatusGatewayTimeout,
	printing.ErrCodePlatformUnsupported: http.StatusNotImplemented,

	// Everything that is the server's fault -> 500
	printing.ErrCodeCommandFailed:   http.StatusInternalServerError,
	printing.ErrCodeEncodingFailed:  http.StatusInternalServerError,
	printing.ErrCodeSpoolFailed:     http.StatusInternalServerError,
	printing.ErrCodeTempFileFailed:  http.StatusInternalServerError,
	printing.ErrCodeCanceled:        http.StatusInternalServerError,
	printing.ErrCodeInternal:        http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

package handler

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	printingapp "github.com/sgpatel/secure-pdf-viewer/internal/application/printing"
	"github.com/sgpatel/secure-pdf-viewer/internal/domain/printing"
	"github.com/sgpatel/secure-pdf-viewer/internal/infrastructure/logger"
	"github.com/sgpatel/secure-pdf-viewer/internal/interfaces/http/dto"
	"github.com/sgpatel/secure-pdf-viewer/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// IdempotencyKeyHeader lets clients make print submissions safe to retry
const IdempotencyKeyHeader = "Idempotency-Key"

const maxIdempotencyKeyLength = 128

// PrintService is the application service behind the print endpoints
type PrintService interface {
	ListPrinters(ctx context.Context) ([]printing.PrinterName, error)
	Submit(ctx context.Context, req printingapp.SubmitRequest) (*printingapp.SubmitResult, error)
	Inspect(ctx context.Context, doc printing.SourceDocument) (*printing.DocumentInfo, error)
}

// PrintHandlerConfig configures PrintHandler
type PrintHandlerConfig struct {
	// JobTimeout bounds a print submission. The job keeps running when the
	// client disconnects, until this timeout.
	JobTimeout time.Duration
	// Idempotency is optional; without it Idempotency-Key is ignored
	Idempotency    printing.IdempotencyStore
	IdempotencyTTL time.Duration
	Logger         *zap.Logger
}

// PrintHandler handles printer listing, inspection and print submission
type PrintHandler struct {
	BaseHandler
	service        PrintService
	jobTimeout     time.Duration
	idempotency    printing.IdempotencyStore
	idempotencyTTL time.Duration
	logger         *zap.Logger
}

// NewPrintHandler creates a new PrintHandler
func NewPrintHandler(service PrintService, cfg PrintHandlerConfig) *PrintHandler {
	h := &PrintHandler{
		service:        service,
		jobTimeout:     cfg.JobTimeout,
		idempotency:    cfg.Idempotency,
		idempotencyTTL: cfg.IdempotencyTTL,
		logger:         cfg.Logger,
	}
	if h.jobTimeout <= 0 {
		h.jobTimeout = 2 * time.Minute
	}
	if h.idempotencyTTL <= 0 {
		h.idempotencyTTL = 10 * time.Minute
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

// ListPrinters returns the selectable printer names as a bare JSON array
func (h *PrintHandler) ListPrinters(c *gin.Context) {
	printers, err := h.service.ListPrinters(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	names := make([]string, len(printers))
	for i, p := range printers {
		names[i] = p.String()
	}
	c.JSON(http.StatusOK, names)
}

// Print flattens the submitted PDF and sends it to the chosen printer
func (h *PrintHandler) Print(c *gin.Context) {
	var req dto.PrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleBindError(c, err)
		return
	}

	data, err := decodePDF(req.PdfData)
	if err != nil {
		h.BadRequest(c, dto.ErrCodeInvalidBase64, "pdfData is not valid base64")
		return
	}

	log := logger.For(c.Request.Context(), h.logger)

	key := c.GetHeader(IdempotencyKeyHeader)
	if key != "" && h.idempotency != nil {
		if len(key) > maxIdempotencyKeyLength {
			h.BadRequest(c, dto.ErrCodeBadRequest, "Idempotency-Key is too long")
			return
		}
		fresh, err := h.idempotency.MarkProcessed(c.Request.Context(), key, h.idempotencyTTL)
		switch {
		case err != nil:
			log.Warn("idempotency store unavailable, accepting submission", zap.Error(err))
			key = ""
		case !fresh:
			h.HandleError(c, printing.NewPrintError(printing.ErrCodeDuplicateSubmission,
				"a print request with this Idempotency-Key was already submitted", nil))
			return
		}
	} else {
		key = ""
	}

	// A client disconnect must not strand a half-finished job
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.jobTimeout)
	defer cancel()

	result, err := h.service.Submit(ctx, printingapp.SubmitRequest{
		Document: printing.SourceDocument{Data: data, Password: req.Password},
		Printer:  printing.PrinterName(req.PrinterName),
	})
	if err != nil {
		if key != "" && dispatchMayHaveReached(err) {
			log.Warn("keeping idempotency key, the spooler may still print this job",
				zap.String("code", printing.CodeOf(err)),
			)
			key = ""
		}
		if key != "" {
			if relErr := h.idempotency.Release(context.WithoutCancel(c.Request.Context()), key); relErr != nil {
				log.Warn("failed to release idempotency key", zap.Error(relErr))
			}
		}
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.PrintResponse{
		Success:    true,
		Message:    result.Message,
		JobID:      result.JobID,
		PageCount:  result.PageCount,
		SpoolJobID: result.SpoolJobID,
	})
}

// dispatchMayHaveReached reports whether err left a spool submission in an
// unknown state. Retrying such a job could print it twice.
func dispatchMayHaveReached(err error) bool {
	if printing.StageOf(err) != printing.StageDispatch {
		return false
	}
	switch printing.CodeOf(err) {
	case printing.ErrCodeTimeout, printing.ErrCodeCanceled:
		return true
	}
	return false
}

// Inspect reports page count, encryption and page sizes without printing
func (h *PrintHandler) Inspect(c *gin.Context) {
	var req dto.InspectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleBindError(c, err)
		return
	}

	data, err := decodePDF(req.PdfData)
	if err != nil {
		h.BadRequest(c, dto.ErrCodeInvalidBase64, "pdfData is not valid base64")
		return
	}

	info, err := h.service.Inspect(c.Request.Context(), printing.SourceDocument{Data: data, Password: req.Password})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, info)
}

// decodePDF accepts plain base64 or a data URL as produced by FileReader
func decodePDF(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

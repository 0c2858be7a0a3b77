package printing

import (
	"github.com/sgpatel/secure-pdf-viewer/internal/domain/printing"
)

// SubmitRequest is one print request
type SubmitRequest struct {
	Document printing.SourceDocument
	Printer  printing.PrinterName
}

// SubmitResult describes an accepted print job
type SubmitResult struct {
	JobID      string
	Printer    printing.PrinterName
	PageCount  int
	SpoolJobID string
	Message    string
}

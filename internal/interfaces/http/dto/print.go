package dto

// PrintRequest is the body of POST /api/print
type PrintRequest struct {
	PrinterName string `json:"printerName" binding:"required,max=256"`
	// PdfData is the document, standard base64 encoded
	PdfData string `json:"pdfData" binding:"required"`
	// Password is empty for unencrypted documents
	Password string `json:"password"`
}

// PrintResponse is returned when a job reached the print queue
type PrintResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	JobID      string `json:"jobId"`
	PageCount  int    `json:"pageCount"`
	SpoolJobID string `json:"spoolJobId,omitempty"`
}

// InspectRequest is the body of POST /api/documents/inspect
type InspectRequest struct {
	PdfData  string `json:"pdfData" binding:"required"`
	Password string `json:"password"`
}

package printing

import (
	"context"
	"errors"
	"fmt"
)

// Error codes for print pipeline failures
const (
	// Printer listing
	ErrCodePlatformUnsupported = "PLATFORM_UNSUPPORTED"
	ErrCodeCommandFailed       = "COMMAND_FAILED"

	// Rasterization
	ErrCodeInvalidPassword  = "INVALID_PASSWORD"
	ErrCodeCorruptDocument  = "CORRUPT_DOCUMENT"
	ErrCodePageRenderFailed = "PAGE_RENDER_FAILED"

	// Flattening
	ErrCodeEmptyInput     = "EMPTY_INPUT"
	ErrCodeEncodingFailed = "ENCODING_FAILED"

	// Dispatch
	ErrCodePrinterNotFound = "PRINTER_NOT_FOUND"
	ErrCodeSpoolFailed     = "SPOOL_FAILED"
	ErrCodeTimeout         = "TIMEOUT"

	// Temporary artifacts
	ErrCodeTempFileFailed = "TEMP_FILE_FAILED"

	// Submission policy
	ErrCodeVirtualPrinter      = "VIRTUAL_PRINTER_REJECTED"
	ErrCodeDuplicateSubmission = "DUPLICATE_SUBMISSION"

	ErrCodeCanceled = "CANCELED"
	ErrCodeInternal = "INTERNAL_ERROR"
)

// PrintError is a classified failure raised by one of the pipeline components.
type PrintError struct {
	Code    string
	Message string
	// Page is the 1-based page number for page level failures, 0 otherwise.
	Page  int
	Cause error
}

func (e *PrintError) Error() string {
	msg := e.Message
	if e.Page > 0 {
		msg = fmt.Sprintf("%s (page %d)", msg, e.Page)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *PrintError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a PrintError with the same code, so that
// errors.Is(err, ErrInvalidPassword) matches any invalid password failure.
func (e *PrintError) Is(target error) bool {
	t, ok := target.(*PrintError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewPrintError creates a new PrintError
func NewPrintError(code, message string, cause error) *PrintError {
	return &PrintError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewPageRenderError creates a PAGE_RENDER_FAILED error naming the failed page
func NewPageRenderError(page int, cause error) *PrintError {
	return &PrintError{
		Code:    ErrCodePageRenderFailed,
		Message: "failed to render page",
		Page:    page,
		Cause:   cause,
	}
}

// FromContextError converts a context error into a TIMEOUT or CANCELED error.
func FromContextError(err error, message string) *PrintError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewPrintError(ErrCodeTimeout, message, err)
	}
	return NewPrintError(ErrCodeCanceled, message, err)
}

// Sentinel errors for errors.Is matching
var (
	ErrPlatformUnsupported = NewPrintError(ErrCodePlatformUnsupported, "platform not supported", nil)
	ErrCommandFailed       = NewPrintError(ErrCodeCommandFailed, "printer command failed", nil)
	ErrInvalidPassword     = NewPrintError(ErrCodeInvalidPassword, "invalid document password", nil)
	ErrCorruptDocument     = NewPrintError(ErrCodeCorruptDocument, "document could not be read", nil)
	ErrPageRenderFailed    = NewPrintError(ErrCodePageRenderFailed, "failed to render page", nil)
	ErrEmptyInput          = NewPrintError(ErrCodeEmptyInput, "print job contains no pages", nil)
	ErrEncodingFailed      = NewPrintError(ErrCodeEncodingFailed, "failed to encode flattened document", nil)
	ErrPrinterNotFound     = NewPrintError(ErrCodePrinterNotFound, "printer not found", nil)
	ErrSpoolFailed         = NewPrintError(ErrCodeSpoolFailed, "print spooler rejected the job", nil)
	ErrTimeout             = NewPrintError(ErrCodeTimeout, "operation timed out", nil)
	ErrTempFileFailed      = NewPrintError(ErrCodeTempFileFailed, "temporary file operation failed", nil)
	ErrVirtualPrinter      = NewPrintError(ErrCodeVirtualPrinter, "virtual printers are not allowed", nil)
	ErrDuplicateSubmission = NewPrintError(ErrCodeDuplicateSubmission, "print request already submitted", nil)
)

// Stage identifies the pipeline step at which a failure occurred
type Stage string

const (
	StageWriteSource    Stage = "write_source"
	StageRasterize      Stage = "rasterize"
	StageRedact         Stage = "redact"
	StageFlatten        Stage = "flatten"
	StageWriteFlattened Stage = "write_flattened"
	StageDispatch       Stage = "dispatch"
)

// StageError annotates an unchanged pipeline error with the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// AtStage wraps err with the given stage. A nil error stays nil and an error
// that already carries a stage is returned as is.
func AtStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// CodeOf returns the PrintError code found in err's chain, or INTERNAL_ERROR.
func CodeOf(err error) string {
	var pe *PrintError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrCodeInternal
}

// StageOf returns the stage annotation found in err's chain, if any.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// MessageOf returns the user-facing message of the PrintError in err's chain.
func MessageOf(err error) string {
	var pe *PrintError
	if errors.As(err, &pe) {
		return pe.Error()
	}
	return err.Error()
}

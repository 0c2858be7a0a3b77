package printing

import (
	"context"
	"time"
)

// PrinterDirectory lists the printers known to the host
type PrinterDirectory interface {
	// ListPrinters returns a point-in-time snapshot of printer names
	ListPrinters(ctx context.Context) ([]PrinterName, error)
}

// Rasterizer renders every page of a PDF to a bitmap
type Rasterizer interface {
	// Rasterize opens the document with its password and renders pages 1..N in order
	Rasterize(ctx context.Context, doc SourceDocument) ([]PageImage, error)
}

// Inspector reads document metadata without rendering pages
type Inspector interface {
	Inspect(ctx context.Context, doc SourceDocument) (*DocumentInfo, error)
}

// Flattener assembles page images into a new image-only PDF
type Flattener interface {
	Flatten(ctx context.Context, pages []PageImage) (*FlattenedDocument, error)
}

// Dispatcher hands a finished PDF file to a print queue and waits for the
// spooler to accept or reject it. The returned reference is the spooler's
// job identifier when it reports one.
type Dispatcher interface {
	Dispatch(ctx context.Context, filePath string, printer PrinterName) (string, error)
}

// IdempotencyStore remembers submission keys for a limited time
type IdempotencyStore interface {
	// MarkProcessed marks a key with a TTL.
	// Returns true if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release forgets a key so the submission can be retried
	Release(ctx context.Context, key string) error

	// Close releases any resources held by the store
	Close() error
}

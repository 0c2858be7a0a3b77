package printing

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/sgpatel/secure-pdf-viewer/internal/domain/printing"
	"go.uber.org/zap"
)

// PdfcpuFlattener assembles page images into an image-only PDF. Each output
// page is sized to its image, so nothing of the source document survives
// except pixels.
type PdfcpuFlattener struct {
	logger *zap.Logger
}

// NewPdfcpuFlattener creates a new PdfcpuFlattener
func NewPdfcpuFlattener(logger *zap.Logger) *PdfcpuFlattener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PdfcpuFlattener{logger: logger}
}

// Flatten encodes every page losslessly and places it full-bleed on its own page
func (f *PdfcpuFlattener) Flatten(ctx context.Context, pages []printing.PageImage) (*printing.FlattenedDocument, error) {
	if len(pages) == 0 {
		return nil, printing.NewPrintError(printing.ErrCodeEmptyInput, "no pages to flatten", nil)
	}

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	readers := make([]io.Reader, 0, len(pages))
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, printing.FromContextError(err, "flattening interrupted")
		}
		if page.Image == nil || page.Image.Bounds().Empty() {
			return nil, printing.NewPrintError(printing.ErrCodeEncodingFailed,
				fmt.Sprintf("page %d has no image data", i+1), nil)
		}

		var buf bytes.Buffer
		if err := encoder.Encode(&buf, page.Image); err != nil {
			return nil, printing.NewPrintError(printing.ErrCodeEncodingFailed,
				fmt.Sprintf("failed to encode page %d", i+1), err)
		}
		readers = append(readers, &buf)
	}

	conf := newPdfcpuConfiguration()
	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full

	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, readers, imp, conf); err != nil {
		return nil, printing.NewPrintError(printing.ErrCodeEncodingFailed, "failed to assemble PDF", err)
	}

	count, err := api.PageCount(bytes.NewReader(out.Bytes()), newPdfcpuConfiguration())
	if err != nil {
		return nil, printing.NewPrintError(printing.ErrCodeEncodingFailed, "assembled PDF is unreadable", err)
	}
	if count != len(pages) {
		return nil, printing.NewPrintError(printing.ErrCodeEncodingFailed,
			fmt.Sprintf("assembled PDF has %d pages, expected %d", count, len(pages)), nil)
	}

	f.logger.Debug("document flattened",
		zap.Int("pages", count),
		zap.Int("bytes", out.Len()),
	)
	return &printing.FlattenedDocument{Data: out.Bytes(), PageCount: count}, nil
}

var _ printing.Flattener = (*PdfcpuFlattener)(nil)

package printing

import (
	"context"
	"errors"

	"github.com/gen2brain/go-fitz"
	"github.com/sgpatel/secure-pdf-viewer/internal/domain/printing"
	"go.uber.org/zap"
)

// DefaultRenderDPI renders pages at their native size, one pixel per point
const DefaultRenderDPI = 72.0

// FitzRasterizerConfig contains configuration for FitzRasterizer
type FitzRasterizerConfig struct {
	// DPI is the fixed render resolution, defaults to 72
	DPI    float64
	Logger *zap.Logger
}

// FitzRasterizer renders PDF pages with MuPDF
type FitzRasterizer struct {
	dpi    float64
	logger *zap.Logger
}

// NewFitzRasterizer creates a new FitzRasterizer
func NewFitzRasterizer(cfg FitzRasterizerConfig) *FitzRasterizer {
	if cfg.DPI <= 0 {
		cfg.DPI = DefaultRenderDPI
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &FitzRasterizer{dpi: cfg.DPI, logger: cfg.Logger}
}

// DPI returns the render resolution
func (r *FitzRasterizer) DPI() float64 {
	return r.dpi
}

// Rasterize renders pages 1..N of doc in order. A wrong or missing password
// fails before any page is rendered, and a single page failure fails the call.
func (r *FitzRasterizer) Rasterize(ctx context.Context, doc printing.SourceDocument) ([]printing.PageImage, error) {
	d, _, err := r.open(doc)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	n := d.NumPage()
	if n <= 0 {
		return nil, printing.NewPrintError(printing.ErrCodeCorruptDocument, "document has no pages", nil)
	}

	pages := make([]printing.PageImage, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, printing.FromContextError(err, "rasterization interrupted")
		}

		img, err := d.ImageDPI(i, r.dpi)
		if err != nil {
			return nil, printing.NewPageRenderError(i+1, err)
		}
		if img == nil || img.Bounds().Empty() {
			return nil, printing.NewPageRenderError(i+1, errors.New("page rendered to an empty image"))
		}
		pages = append(pages, printing.PageImage{Number: i + 1, Image: img})
	}

	r.logger.Debug("document rasterized",
		zap.Int("pages", len(pages)),
		zap.Float64("dpi", r.dpi),
	)
	return pages, nil
}

// Inspect reports page count, encryption and page sizes without rendering
func (r *FitzRasterizer) Inspect(ctx context.Context, doc printing.SourceDocument) (*printing.DocumentInfo, error) {
	d, encrypted, err := r.open(doc)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	n := d.NumPage()
	info := &printing.DocumentInfo{
		PageCount: n,
		Encrypted: encrypted,
		Pages:     make([]printing.PageSize, 0, n),
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, printing.FromContextError(err, "inspection interrupted")
		}
		b, err := d.Bound(i)
		if err != nil {
			return nil, printing.NewPageRenderError(i+1, err)
		}
		info.Pages = append(info.Pages, printing.PageSize{
			Number: i + 1,
			Width:  float64(b.Dx()),
			Height: float64(b.Dy()),
		})
	}
	return info, nil
}

// open parses doc, decrypting it first when MuPDF reports that a password is
// needed. The second return value reports whether the document was encrypted.
func (r *FitzRasterizer) open(doc printing.SourceDocument) (*fitz.Document, bool, error) {
	if doc.IsEmpty() {
		return nil, false, printing.NewPrintError(printing.ErrCodeCorruptDocument, "document is empty", nil)
	}

	d, err := fitz.NewFromMemory(doc.Data)
	if err == nil {
		return d, false, nil
	}
	if d != nil {
		d.Close()
	}
	if !errors.Is(err, fitz.ErrNeedsPassword) {
		return nil, false, printing.NewPrintError(printing.ErrCodeCorruptDocument, "document could not be opened", err)
	}

	if doc.Password == "" {
		return nil, true, printing.NewPrintError(printing.ErrCodeInvalidPassword, "document is password protected", nil)
	}

	plain, err := decryptPDF(doc.Data, doc.Password)
	if err != nil {
		return nil, true, err
	}

	d, err = fitz.NewFromMemory(plain)
	if err != nil {
		if d != nil {
			d.Close()
		}
		return nil, true, printing.NewPrintError(printing.ErrCodeCorruptDocument, "decrypted document could not be opened", err)
	}
	return d, true, nil
}

var (
	_ printing.Rasterizer = (*FitzRasterizer)(nil)
	_ printing.Inspector  = (*FitzRasterizer)(nil)
)

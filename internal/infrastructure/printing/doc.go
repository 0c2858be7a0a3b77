// Package printing provides the infrastructure behind the secure print pipeline.
//
// It contains:
//   - FitzRasterizer: renders PDF pages to bitmaps with MuPDF (go-fitz)
//   - PdfcpuFlattener: rebuilds page bitmaps into an image-only PDF with pdfcpu
//   - OSDirectory / OSDispatcher: printer listing and spooling through the
//     host's print commands, selected per platform from a strategy table
//   - IPPBackend: the same over IPP against a CUPS server
//   - Workspace: per-run temporary files that are always released
//
// Usage:
//
//	rasterizer := printing.NewFitzRasterizer(printing.FitzRasterizerConfig{DPI: 72})
//	pages, err := rasterizer.Rasterize(ctx, domain.SourceDocument{Data: pdf, Password: pw})
//	if err != nil {
//	    // errors.Is(err, domain.ErrInvalidPassword) when the password is wrong
//	}
//	flat, err := printing.NewPdfcpuFlattener(logger).Flatten(ctx, pages)
package printing

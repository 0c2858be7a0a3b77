package printing

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"testing"

	"github.com/sgpatel/secure-pdf-viewer/internal/domain/printing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// textAndVectorPDF is a 200x100pt page carrying live Helvetica text near the
// top and a filled blue rectangle at x 20-70, y 20-60 in PDF space.
func textAndVectorPDF() []byte {
	content := "BT /F1 24 Tf 10 60 Td (Hello) Tj ET\n0 0 1 rg 20 20 50 40 re f\n"
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 100] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestFitzRasterizer_RasterizesTextAndVectors(t *testing.T) {
	ctx := context.Background()
	r := NewFitzRasterizer(FitzRasterizerConfig{DPI: 72})

	pages, err := r.Rasterize(ctx, printing.SourceDocument{Data: textAndVectorPDF()})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	img := pages[0].Image
	assert.InDelta(t, 200, pages[0].Width(), 1)
	assert.InDelta(t, 100, pages[0].Height(), 1)

	// Rectangle spans image rows 40-80 once the y axis is flipped
	blue := img.RGBAAt(45, 60)
	assert.Less(t, blue.R, uint8(60))
	assert.Less(t, blue.G, uint8(60))
	assert.Greater(t, blue.B, uint8(200))

	dark := 0
	for y := 0; y < 40; y++ {
		for x := 0; x < 120; x++ {
			c := img.RGBAAt(x, y)
			if c.R < 100 && c.G < 100 && c.B < 100 {
				dark++
			}
		}
	}
	assert.Greater(t, dark, 50, "text glyphs should be rendered as pixels")

	// The flattened copy keeps the page but no text objects
	flat, err := NewPdfcpuFlattener(nil).Flatten(ctx, pages)
	require.NoError(t, err)
	assert.Equal(t, 1, flat.PageCount)
	assert.NotContains(t, string(flat.Data), "Hello")
	assert.NotContains(t, string(flat.Data), "/Helvetica")
}

func TestFitzRasterizer_Rasterize(t *testing.T) {
	ctx := context.Background()
	r := NewFitzRasterizer(FitzRasterizerConfig{})
	plain := buildPDF(t, image.Pt(100, 50), image.Pt(60, 80))

	t.Run("renders every page in order", func(t *testing.T) {
		pages, err := r.Rasterize(ctx, printing.SourceDocument{Data: plain})
		require.NoError(t, err)
		require.Len(t, pages, 2)

		assert.Equal(t, 1, pages[0].Number)
		assert.Equal(t, 2, pages[1].Number)
		assert.InDelta(t, 100, pages[0].Width(), 1)
		assert.InDelta(t, 50, pages[0].Height(), 1)
		assert.InDelta(t, 60, pages[1].Width(), 1)
		assert.InDelta(t, 80, pages[1].Height(), 1)
	})

	t.Run("password ignored for plain document", func(t *testing.T) {
		pages, err := r.Rasterize(ctx, printing.SourceDocument{Data: plain, Password: "unused"})
		require.NoError(t, err)
		assert.Len(t, pages, 2)
	})

	t.Run("higher dpi scales output", func(t *testing.T) {
		hi := NewFitzRasterizer(FitzRasterizerConfig{DPI: 144})
		pages, err := hi.Rasterize(ctx, printing.SourceDocument{Data: plain})
		require.NoError(t, err)
		assert.InDelta(t, 200, pages[0].Width(), 2)
		assert.Equal(t, 144.0, hi.DPI())
	})

	t.Run("encrypted with correct password", func(t *testing.T) {
		locked := encryptPDF(t, plain, "s3cret")

		pages, err := r.Rasterize(ctx, printing.SourceDocument{Data: locked, Password: "s3cret"})
		require.NoError(t, err)
		assert.Len(t, pages, 2)
	})

	t.Run("encrypted with wrong password", func(t *testing.T) {
		locked := encryptPDF(t, plain, "s3cret")

		_, err := r.Rasterize(ctx, printing.SourceDocument{Data: locked, Password: "guess"})
		assert.ErrorIs(t, err, printing.ErrInvalidPassword)
	})

	t.Run("encrypted without password", func(t *testing.T) {
		locked := encryptPDF(t, plain, "s3cret")

		_, err := r.Rasterize(ctx, printing.SourceDocument{Data: locked})
		assert.ErrorIs(t, err, printing.ErrInvalidPassword)
	})

	t.Run("corrupt input", func(t *testing.T) {
		_, err := r.Rasterize(ctx, printing.SourceDocument{Data: []byte("this is not a pdf")})
		assert.ErrorIs(t, err, printing.ErrCorruptDocument)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := r.Rasterize(ctx, printing.SourceDocument{})
		assert.ErrorIs(t, err, printing.ErrCorruptDocument)
	})

	t.Run("canceled before first page", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		pages, err := r.Rasterize(cctx, printing.SourceDocument{Data: plain})
		assert.Nil(t, pages)
		assert.Equal(t, printing.ErrCodeCanceled, printing.CodeOf(err))
	})
}

func TestFitzRasterizer_Inspect(t *testing.T) {
	ctx := context.Background()
	r := NewFitzRasterizer(FitzRasterizerConfig{})
	plain := buildPDF(t, image.Pt(100, 50), image.Pt(60, 80), image.Pt(30, 30))

	t.Run("plain document", func(t *testing.T) {
		info, err := r.Inspect(ctx, printing.SourceDocument{Data: plain})
		require.NoError(t, err)
		assert.Equal(t, 3, info.PageCount)
		assert.False(t, info.Encrypted)
		require.Len(t, info.Pages, 3)
		assert.Equal(t, 2, info.Pages[1].Number)
		assert.InDelta(t, 60, info.Pages[1].Width, 1)
		assert.InDelta(t, 80, info.Pages[1].Height, 1)
	})

	t.Run("encrypted document", func(t *testing.T) {
		info, err := r.Inspect(ctx, printing.SourceDocument{Data: encryptPDF(t, plain, "pw"), Password: "pw"})
		require.NoError(t, err)
		assert.True(t, info.Encrypted)
		assert.Equal(t, 3, info.PageCount)
	})
}

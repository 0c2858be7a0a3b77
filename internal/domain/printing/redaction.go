package printing

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
)

// RedactionFill is the opaque color painted over redacted regions
var RedactionFill = color.RGBA{R: 128, G: 128, B: 128, A: 255}

// RedactionRegion is a rectangle to black out on one page.
// Coordinates are PDF points measured from the top-left corner of the page.
type RedactionRegion struct {
	Page   int     `json:"page" mapstructure:"page"`
	X      float64 `json:"x" mapstructure:"x"`
	Y      float64 `json:"y" mapstructure:"y"`
	Width  float64 `json:"width" mapstructure:"width"`
	Height float64 `json:"height" mapstructure:"height"`
}

// Validate checks the region is usable
func (r RedactionRegion) Validate() error {
	if r.Page < 1 {
		return fmt.Errorf("redaction page must be >= 1, got %d", r.Page)
	}
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("redaction region on page %d must have a positive size", r.Page)
	}
	return nil
}

// pixelRect converts the region to pixel space for a page rendered at dpi.
func (r RedactionRegion) pixelRect(dpi float64) image.Rectangle {
	scale := dpi / 72.0
	return image.Rect(
		int(math.Floor(r.X*scale)),
		int(math.Floor(r.Y*scale)),
		int(math.Ceil((r.X+r.Width)*scale)),
		int(math.Ceil((r.Y+r.Height)*scale)),
	)
}

// ApplyRedactions paints every region onto its page in place and returns the
// number of regions that touched a page. Regions are clipped to the page and
// regions naming a page the document does not have are ignored.
func ApplyRedactions(pages []PageImage, regions []RedactionRegion, dpi float64) int {
	if len(regions) == 0 || len(pages) == 0 {
		return 0
	}

	byNumber := make(map[int]*image.RGBA, len(pages))
	for _, p := range pages {
		if p.Image != nil {
			byNumber[p.Number] = p.Image
		}
	}

	applied := 0
	fill := &image.Uniform{C: RedactionFill}
	for _, region := range regions {
		img, ok := byNumber[region.Page]
		if !ok {
			continue
		}
		bounds := img.Bounds()
		rect := region.pixelRect(dpi).Add(bounds.Min).Intersect(bounds)
		if rect.Empty() {
			continue
		}
		draw.Draw(img, rect, fill, image.Point{}, draw.Src)
		applied++
	}
	return applied
}

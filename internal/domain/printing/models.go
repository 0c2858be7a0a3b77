package printing

import (
	"image"
	"strings"
)

// PrinterName identifies an OS print queue
type PrinterName string

// String returns the string representation of PrinterName
func (p PrinterName) String() string {
	return string(p)
}

// IsEmpty returns true if the name is blank
func (p PrinterName) IsEmpty() bool {
	return strings.TrimSpace(string(p)) == ""
}

// SourceDocument is the PDF as submitted by the client.
// An empty password means the document is expected to be unencrypted.
type SourceDocument struct {
	Data     []byte
	Password string
}

// IsEmpty returns true if the document carries no bytes
func (d SourceDocument) IsEmpty() bool {
	return len(d.Data) == 0
}

// PageImage is one rendered page
type PageImage struct {
	// Number is the 1-based page number in the source document
	Number int
	Image  *image.RGBA
}

// Width returns the pixel width of the page image
func (p PageImage) Width() int {
	if p.Image == nil {
		return 0
	}
	return p.Image.Bounds().Dx()
}

// Height returns the pixel height of the page image
func (p PageImage) Height() int {
	if p.Image == nil {
		return 0
	}
	return p.Image.Bounds().Dy()
}

// FlattenedDocument is a rebuilt, unencrypted PDF where every page is a
// single full-page image.
type FlattenedDocument struct {
	Data      []byte
	PageCount int
}

// PageSize is a page's size in PDF points
type PageSize struct {
	Number int     `json:"number"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DocumentInfo summarizes a document without rendering it
type DocumentInfo struct {
	PageCount int        `json:"pageCount"`
	Encrypted bool       `json:"encrypted"`
	Pages     []PageSize `json:"pages"`
}

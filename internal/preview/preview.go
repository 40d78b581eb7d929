// Package preview renders a selected document as a PNG thumbnail so the user can
// check they picked the right file before submitting.
package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"net/http"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"

	"github.com/zombor/invoice-matcher/internal/matching"
)

// ErrUnsupported is returned for documents that cannot be rendered
var ErrUnsupported = errors.New("unsupported document type")

// Render returns a PNG of the document's first page
func Render(doc matching.Document) ([]byte, error) {
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrUnsupported)
	}

	switch kind := detect(doc); kind {
	case "application/pdf":
		return renderPDF(doc.Data)
	case "image/heic":
		img, err := heic.Decode(bytes.NewReader(doc.Data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return encodePNG(img)
	case "image/png":
		return doc.Data, nil
	case "image/jpeg", "image/gif":
		img, _, err := image.Decode(bytes.NewReader(doc.Data))
		if err != nil {
			return nil, fmt.Errorf("decoding image: %w", err)
		}
		return encodePNG(img)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}
}

// detect prefers the bytes over the declared content type, which browsers often get
// wrong for phone photos
func detect(doc matching.Document) string {
	if isHEIC(doc.Data) {
		return "image/heic"
	}
	sniffed := http.DetectContentType(doc.Data)
	switch {
	case sniffed == "application/pdf", strings.HasPrefix(sniffed, "image/"):
		return sniffed
	}

	declared := strings.ToLower(strings.TrimSpace(doc.ContentType))
	if i := strings.Index(declared, ";"); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared == "image/heif" {
		return "image/heic"
	}
	if declared == "" {
		return sniffed
	}
	return declared
}

// renderPDF renders the first page of a PDF
func renderPDF(data []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, errors.New("PDF has no pages")
	}
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEIC checks for an ftyp box with a HEIC/HEIF brand
func isHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// Package bundle wraps rendered certificate images into PDF documents.
package bundle

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
)

const ContentTypePDF = "application/pdf"

// Page is one certificate image and its pixel size.
type Page struct {
	Name   string
	PNG    []byte
	Width  int
	Height int
}

// WritePDF writes pages as one PDF, one page per image, in order. Page size
// matches the image with one pixel mapped to one point.
func WritePDF(w io.Writer, pages []Page) error {
	if len(pages) == 0 {
		return fmt.Errorf("bundle: no pages")
	}
	pdf := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "pt",
		Size:    fpdf.SizeType{Wd: float64(pages[0].Width), Ht: float64(pages[0].Height)},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	for i, p := range pages {
		if p.Width <= 0 || p.Height <= 0 {
			return fmt.Errorf("bundle: page %d has no size", i)
		}
		wd, ht := float64(p.Width), float64(p.Height)
		orientation := "P"
		if wd > ht {
			orientation = "L"
		}
		pdf.AddPageFormat(orientation, fpdf.SizeType{Wd: wd, Ht: ht})

		name := fmt.Sprintf("page-%d-%s", i, p.Name)
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(p.PNG))
		pdf.ImageOptions(name, 0, 0, wd, ht, false, opts, 0, "")
		if err := pdf.Error(); err != nil {
			return fmt.Errorf("bundle: page %d: %w", i, err)
		}
	}
	return pdf.Output(w)
}

// PDF returns the bundle as bytes.
func PDF(pages []Page) ([]byte, error) {
	var buf bytes.Buffer
	if err := WritePDF(&buf, pages); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

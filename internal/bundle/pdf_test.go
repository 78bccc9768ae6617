package bundle_test

import (
	"bytes"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/YannKr/certstamp/internal/bundle"
)

func pngPage(t *testing.T, name string, w, h int) bundle.Page {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.New(w, h, color.NRGBA{200, 10, 10, 255}), imaging.PNG); err != nil {
		t.Fatal(err)
	}
	return bundle.Page{Name: name, PNG: buf.Bytes(), Width: w, Height: h}
}

func TestPDFHasOnePagePerCertificate(t *testing.T) {
	pages := []bundle.Page{
		pngPage(t, "a", 300, 200),
		pngPage(t, "b", 200, 300),
		pngPage(t, "c", 300, 200),
	}
	data, err := bundle.PDF(pages)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("output does not start with a PDF header: %q", data[:8])
	}
	n := bytes.Count(data, []byte("/Type /Page")) - bytes.Count(data, []byte("/Type /Pages"))
	if n != len(pages) {
		t.Errorf("page objects = %d, want %d", n, len(pages))
	}
}

func TestPDFRejectsEmpty(t *testing.T) {
	if _, err := bundle.PDF(nil); err == nil {
		t.Error("expected error for empty bundle")
	}
}

func TestPDFRejectsBadImage(t *testing.T) {
	_, err := bundle.PDF([]bundle.Page{{Name: "x", PNG: []byte("nope"), Width: 10, Height: 10}})
	if err == nil {
		t.Error("expected error for undecodable page")
	}
}

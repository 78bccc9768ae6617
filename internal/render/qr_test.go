package render_test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"runtime"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/makiuchi-d/gozxing"
	gozxingqr "github.com/makiuchi-d/gozxing/qrcode"

	"github.com/YannKr/certstamp/internal/apperr"
	"github.com/YannKr/certstamp/internal/model"
	"github.com/YannKr/certstamp/internal/render"
)

// scanQR crops r plus a white margin from img, magnifies it like a camera
// would and decodes the QR code found there.
func scanQR(t *testing.T, img *image.NRGBA, r image.Rectangle) (string, error) {
	t.Helper()
	crop := imaging.Crop(img, r.Inset(-16).Intersect(img.Bounds()))
	crop = imaging.Resize(crop, crop.Bounds().Dx()*4, 0, imaging.NearestNeighbor)
	bmp, err := gozxing.NewBinaryBitmapFromImage(crop)
	if err != nil {
		t.Fatal(err)
	}
	hints := map[gozxing.DecodeHintType]interface{}{gozxing.DecodeHintType_TRY_HARDER: true}
	res, err := gozxingqr.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", err
	}
	return res.GetText(), nil
}

func qrTemplate(x, y, w, h float64) *model.Template {
	return &model.Template{ID: "qr", SHA256: "bg", Width: 300, Height: 300, Fields: []model.Field{
		{Type: model.FieldQRCode, X: x, Y: y, Width: w, Height: h, FontFamily: "Impact", FontSize: 99},
	}}
}

func TestRenderQRDecodes(t *testing.T) {
	e := newEngine(t)
	if got := e.VerifyURL("K7M2P9QX4D"); got != verifyBase+"/K7M2P9QX4D" {
		t.Fatalf("VerifyURL = %q", got)
	}
	bg := solidPNG(t, 300, 300)
	values := map[model.FieldType]string{model.FieldUniqueCode: "K7M2P9QX4D"}

	for _, side := range []int{200, 120, 60, 40} {
		t.Run(fmt.Sprint(side), func(t *testing.T) {
			// A wider box still yields a square anchored at its corner.
			tpl := qrTemplate(40, 40, float64(side+30), float64(side))
			a, err := e.Render(context.Background(), tpl, bg, values)
			if err != nil {
				t.Fatal(err)
			}
			img := decode(t, a)
			square := image.Rect(40, 40, 40+side, 40+side)
			if ink := inkBounds(img); ink.Empty() || !ink.In(square) {
				t.Fatalf("qr ink %v, want inside %v", ink, square)
			}
			got, err := scanQR(t, img, square)
			if err != nil {
				t.Fatalf("decode %dpx qr: %v", side, err)
			}
			if got != verifyBase+"/K7M2P9QX4D" {
				t.Errorf("payload = %q", got)
			}
		})
	}
}

func TestRenderQRTooSmall(t *testing.T) {
	e := newEngine(t)
	values := map[model.FieldType]string{model.FieldUniqueCode: "K7M2P9QX4D"}
	_, err := e.Render(context.Background(), qrTemplate(40, 40, 20, 20), solidPNG(t, 300, 300), values)
	if err == nil {
		t.Fatal("expected error for a qr field smaller than the symbol")
	}
	if got := apperr.CodeOf(err); got != "RENDER_FAILED" {
		t.Errorf("code = %q, want RENDER_FAILED", got)
	}
}

func TestQRImageWholeModules(t *testing.T) {
	img, err := render.QRImage(verifyBase+"/K7M2P9QX4D", 97)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 97 || b.Dy() != 97 {
		t.Fatalf("bounds = %v, want 97x97", b)
	}
	if _, err := render.QRImage("x", 0); err == nil {
		t.Error("expected error for zero side")
	}
}

func TestRenderQRClippedToCanvas(t *testing.T) {
	e := newEngine(t)
	bg := solidPNG(t, 300, 300)
	values := map[model.FieldType]string{model.FieldUniqueCode: "K7M2P9QX4D"}

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	a, err := e.Render(context.Background(), qrTemplate(50, 50, 20000, 20000), bg, values)
	if err != nil {
		t.Fatal(err)
	}
	runtime.ReadMemStats(&after)
	if alloc := after.TotalAlloc - before.TotalAlloc; alloc > 64<<20 {
		t.Errorf("oversized qr field allocated %d bytes", alloc)
	}

	img := decode(t, a)
	if b := img.Bounds(); b.Dx() != 300 || b.Dy() != 300 {
		t.Fatalf("artifact bounds = %v", b)
	}
	visible := image.Rect(50, 50, 300, 300)
	if ink := inkBounds(img); ink.Empty() || !ink.In(visible) {
		t.Errorf("qr ink %v, want inside %v", ink, visible)
	}
	if got, err := scanQR(t, img, visible); err != nil || got != verifyBase+"/K7M2P9QX4D" {
		t.Errorf("decode clipped qr = %q, %v", got, err)
	}

	off, err := e.Render(context.Background(), qrTemplate(5000, 5000, 100, 100), bg, values)
	if err != nil {
		t.Fatal(err)
	}
	if ink := inkBounds(decode(t, off)); !ink.Empty() {
		t.Errorf("qr field outside the canvas drew ink at %v", ink)
	}
}

func TestRenderQRDistinctCodes(t *testing.T) {
	e := newEngine(t)
	bg := solidPNG(t, 300, 300)
	tpl := qrTemplate(30, 50, 150, 120)
	var outs [][]byte
	for _, code := range []string{"K7M2P9QX4D", "Z9Y8X7W6V5"} {
		a, err := e.Render(context.Background(), tpl, bg, map[model.FieldType]string{model.FieldUniqueCode: code})
		if err != nil {
			t.Fatal(err)
		}
		outs = append(outs, decode(t, a).Pix)
	}
	if bytes.Equal(outs[0], outs[1]) {
		t.Error("different codes produced identical QR output")
	}
}

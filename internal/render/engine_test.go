package render_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/YannKr/certstamp/internal/apperr"
	"github.com/YannKr/certstamp/internal/layout"
	"github.com/YannKr/certstamp/internal/model"
	"github.com/YannKr/certstamp/internal/render"
)

const verifyBase = "https://certs.example.org/verify"

func solidPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.White)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newEngine(t *testing.T) *render.Engine {
	t.Helper()
	e, err := render.NewEngine(render.NewFonts(nil), verifyBase, nil, 4)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func decode(t *testing.T, a *render.Artifact) *image.NRGBA {
	t.Helper()
	img, err := imaging.Decode(bytes.NewReader(a.Data))
	if err != nil {
		t.Fatal(err)
	}
	return imaging.Clone(img)
}

// inkBounds returns the bounding box of every non-white pixel.
func inkBounds(img *image.NRGBA) image.Rectangle {
	var r image.Rectangle
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			if c.R == 255 && c.G == 255 && c.B == 255 {
				continue
			}
			p := image.Rect(x, y, x+1, y+1)
			if r.Empty() {
				r = p
			} else {
				r = r.Union(p)
			}
		}
	}
	return r
}

func textTemplate(f model.Field) *model.Template {
	return &model.Template{ID: "tpl", SHA256: "bg", Width: 400, Height: 300, Fields: []model.Field{f}}
}

func TestRenderPositionDeltaMovesInk(t *testing.T) {
	e := newEngine(t)
	bg := solidPNG(t, 400, 300)
	values := map[model.FieldType]string{model.FieldParticipantName: "Grace Hopper"}
	base := model.Field{Type: model.FieldParticipantName, X: 40, Y: 30, Width: 250, Height: 60, FontSize: 24, FontColor: "#112233"}

	a1, err := e.Render(context.Background(), textTemplate(base), bg, values)
	if err != nil {
		t.Fatal(err)
	}
	moved := base
	moved.X += 37
	moved.Y += 81
	a2, err := e.Render(context.Background(), textTemplate(moved), bg, values)
	if err != nil {
		t.Fatal(err)
	}

	img1, img2 := decode(t, a1), decode(t, a2)
	b1, b2 := inkBounds(img1), inkBounds(img2)
	if b1.Empty() {
		t.Fatal("no text rendered")
	}
	if want := b1.Add(image.Pt(37, 81)); b2 != want {
		t.Fatalf("ink bounds = %v, want %v", b2, want)
	}
	for y := b1.Min.Y; y < b1.Max.Y; y++ {
		for x := b1.Min.X; x < b1.Max.X; x++ {
			if img1.NRGBAAt(x, y) != img2.NRGBAAt(x+37, y+81) {
				t.Fatalf("pixel (%d,%d) differs after move", x, y)
			}
		}
	}
}

func TestRenderDisplayScaleIndependent(t *testing.T) {
	e := newEngine(t)
	bg := solidPNG(t, 400, 300)
	values := map[model.FieldType]string{model.FieldDocumentID: "ID-42", model.FieldQRCode: "K7M2P9QX4D"}
	native := []model.Field{
		{Type: model.FieldDocumentID, X: 100, Y: 60, Width: 200, Height: 40, FontSize: 20},
		{Type: model.FieldQRCode, X: 300, Y: 200, Width: 80, Height: 80},
	}
	scale := layout.DisplayScale(200, 400)
	var roundTripped []model.Field
	for _, f := range native {
		shown := scale.ToDisplay(f)
		roundTripped = append(roundTripped, scale.ToNative(shown))
	}

	tplA := &model.Template{ID: "a", SHA256: "bg", Width: 400, Height: 300, Fields: native}
	tplB := &model.Template{ID: "b", SHA256: "bg", Width: 400, Height: 300, Fields: roundTripped}
	a, err := e.Render(context.Background(), tplA, bg, values)
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Render(context.Background(), tplB, bg, values)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Data, b.Data) {
		t.Error("display round trip changed the rendered output")
	}
}

func TestRenderClipsOverflow(t *testing.T) {
	e := newEngine(t)
	bg := solidPNG(t, 400, 300)
	f := model.Field{Type: model.FieldCertifierName, X: 50, Y: 50, Width: 60, Height: 30, FontSize: 40}
	long := "Supercalifragilistic expialidocious certifying authority of the realm"
	a, err := e.Render(context.Background(), textTemplate(f), bg, map[model.FieldType]string{model.FieldCertifierName: long})
	if err != nil {
		t.Fatal(err)
	}
	ink := inkBounds(decode(t, a))
	if ink.Empty() {
		t.Fatal("nothing drawn")
	}
	if !ink.In(image.Rect(50, 50, 110, 80)) {
		t.Errorf("ink %v outside field box", ink)
	}
}

func TestRenderWrapsLongText(t *testing.T) {
	e := newEngine(t)
	bg := solidPNG(t, 400, 300)
	f := model.Field{Type: model.FieldParticipantName, X: 10, Y: 10, Width: 120, Height: 200, FontSize: 18}
	a, err := e.Render(context.Background(), textTemplate(f), bg, map[model.FieldType]string{model.FieldParticipantName: "Ada Augusta King Countess of Lovelace"})
	if err != nil {
		t.Fatal(err)
	}
	ink := inkBounds(decode(t, a))
	if ink.Dy() < 40 {
		t.Errorf("ink height %d suggests text was not wrapped", ink.Dy())
	}
	if ink.Max.X > 130 {
		t.Errorf("ink %v wider than box", ink)
	}
}

func TestRenderMissingValueIsBlank(t *testing.T) {
	e := newEngine(t)
	bg := solidPNG(t, 200, 100)
	tpl := &model.Template{ID: "blank", SHA256: "bg", Width: 200, Height: 100, Fields: []model.Field{
		{Type: model.FieldRepresentativeName3, X: 0, Y: 0, Width: 100, Height: 40},
	}}
	a, err := e.Render(context.Background(), tpl, bg, map[model.FieldType]string{})
	if err != nil {
		t.Fatal(err)
	}
	if ink := inkBounds(decode(t, a)); !ink.Empty() {
		t.Errorf("expected blank output, ink at %v", ink)
	}
}

func TestRenderResizesBackgroundToTemplate(t *testing.T) {
	e := newEngine(t)
	bg := solidPNG(t, 100, 50)
	tpl := &model.Template{ID: "big", SHA256: "small", Width: 400, Height: 200}
	a, err := e.Render(context.Background(), tpl, bg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if b := decode(t, a).Bounds(); b.Dx() != 400 || b.Dy() != 200 {
		t.Errorf("output size %v, want 400x200", b)
	}
	if a.ContentType != render.ContentTypePNG {
		t.Errorf("content type %q", a.ContentType)
	}
}

func TestRenderCancelled(t *testing.T) {
	e := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tpl := textTemplate(model.Field{Type: model.FieldDate, X: 0, Y: 0, Width: 10, Height: 10})
	if _, err := e.Render(ctx, tpl, solidPNG(t, 400, 300), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestRenderUndecodableBackground(t *testing.T) {
	e := newEngine(t)
	tpl := textTemplate(model.Field{Type: model.FieldDate, Width: 10, Height: 10})
	_, err := e.Render(context.Background(), tpl, []byte("not an image"), nil)
	if apperr.KindOf(err) != apperr.KindRender {
		t.Errorf("kind = %v, want render", apperr.KindOf(err))
	}
	if apperr.IsTransient(err) {
		t.Error("decode failure should not be transient")
	}
}

type fakeRasterizer struct {
	png   []byte
	calls int
}

func (f *fakeRasterizer) FirstPage(context.Context, []byte) ([]byte, error) {
	f.calls++
	return f.png, nil
}

func TestInspect(t *testing.T) {
	raster := &fakeRasterizer{png: solidPNG(t, 612, 792)}
	e, err := render.NewEngine(nil, verifyBase, raster, 0)
	if err != nil {
		t.Fatal(err)
	}

	bg, err := e.Inspect(context.Background(), solidPNG(t, 321, 123))
	if err != nil {
		t.Fatal(err)
	}
	if bg.Mime != "image/png" || bg.SourceType != "image" || bg.Width != 321 || bg.Height != 123 {
		t.Errorf("png inspect = %+v", bg)
	}

	pdf := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
	bg, err = e.Inspect(context.Background(), pdf)
	if err != nil {
		t.Fatal(err)
	}
	if bg.SourceType != "pdf" || bg.Width != 612 || bg.Height != 792 {
		t.Errorf("pdf inspect = %+v", bg)
	}
	if raster.calls != 1 {
		t.Errorf("rasterizer calls = %d, want 1", raster.calls)
	}

	_, err = e.Inspect(context.Background(), []byte("plain text, not an image"))
	if !errors.Is(err, apperr.ErrUnsupportedAsset) {
		t.Errorf("got %v, want UnsupportedAsset", err)
	}
}

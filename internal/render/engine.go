// Package render composites field values onto a template background.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/YannKr/certstamp/internal/apperr"
	"github.com/YannKr/certstamp/internal/layout"
	"github.com/YannKr/certstamp/internal/model"
)

const ContentTypePNG = "image/png"

// Artifact is one flattened certificate image.
type Artifact struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

type Engine struct {
	Fonts         *Fonts
	VerifyBaseURL string
	Rasterizer    Rasterizer

	cache *lru.Cache[string, *image.NRGBA]
}

// NewEngine builds an engine with a background cache holding cacheSize
// decoded templates. A cacheSize of zero disables caching.
func NewEngine(fonts *Fonts, verifyBaseURL string, rasterizer Rasterizer, cacheSize int) (*Engine, error) {
	e := &Engine{Fonts: fonts, VerifyBaseURL: verifyBaseURL, Rasterizer: rasterizer}
	if cacheSize > 0 {
		c, err := lru.New[string, *image.NRGBA](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("background cache: %w", err)
		}
		e.cache = c
	}
	if e.Fonts == nil {
		e.Fonts = NewFonts(nil)
	}
	return e, nil
}

// VerifyURL is the payload encoded in qr_code fields.
func (e *Engine) VerifyURL(code string) string {
	return e.VerifyBaseURL + "/" + code
}

// Render draws every field of tpl over its background at native resolution.
// Values missing from values render as empty text. The result does not
// depend on anything but its inputs.
func (e *Engine) Render(ctx context.Context, tpl *model.Template, background []byte, values map[model.FieldType]string) (*Artifact, error) {
	if tpl.Width <= 0 || tpl.Height <= 0 {
		return nil, apperr.ErrInvalidGeometry.WithMessage("template %s has no size", tpl.ID)
	}
	bg, err := e.loadBackground(ctx, tpl.ID+":"+tpl.SHA256+fmt.Sprintf(":%dx%d", tpl.Width, tpl.Height), background, tpl.Width, tpl.Height)
	if err != nil {
		return nil, err
	}
	canvas := imaging.Clone(bg)

	for i := range tpl.Fields {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f := tpl.Fields[i]
		box := fieldRect(f)
		if f.Type.IsQR() {
			code := values[model.FieldQRCode]
			if code == "" {
				code = values[model.FieldUniqueCode]
			}
			if code == "" {
				continue
			}
			if err := drawQR(canvas, box, e.VerifyURL(code)); err != nil {
				return nil, apperr.Render(err, false)
			}
			continue
		}

		text := values[f.Type]
		if text == "" {
			continue
		}
		if err := e.drawField(canvas, box, f, text); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, apperr.Render(fmt.Errorf("encode png: %w", err), false)
	}
	return &Artifact{Data: buf.Bytes(), ContentType: ContentTypePNG, Width: tpl.Width, Height: tpl.Height}, nil
}

func (e *Engine) drawField(canvas *image.NRGBA, box image.Rectangle, f model.Field, text string) error {
	size := f.FontSize
	if size <= 0 {
		size = layout.DefaultFontSize
	}
	face, err := e.Fonts.Face(f.FontFamily, size)
	if err != nil {
		return apperr.Render(fmt.Errorf("font %q: %w", f.FontFamily, err), false)
	}
	defer face.Close()

	var c color.Color = color.Black
	if f.FontColor != "" {
		nc, err := layout.ParseColor(f.FontColor)
		if err != nil {
			return apperr.ErrInvalidColor.WithMessage("field %s: invalid font color %q", f.ID, f.FontColor)
		}
		c = nc
	}
	align := f.TextAlign
	if align == "" {
		align = model.AlignLeft
	}
	drawText(canvas, box, text, face, c, align)
	return nil
}

// fieldRect snaps a field's native coordinates to whole pixels.
func fieldRect(f model.Field) image.Rectangle {
	x := int(math.Round(f.X))
	y := int(math.Round(f.Y))
	return image.Rect(x, y, x+int(math.Round(f.Width)), y+int(math.Round(f.Height)))
}

// Forget drops every cached background of templateID.
func (e *Engine) Forget(templateID string) {
	if e.cache == nil {
		return
	}
	prefix := templateID + ":"
	for _, k := range e.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			e.cache.Remove(k)
		}
	}
}

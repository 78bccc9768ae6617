package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	"github.com/YannKr/certstamp/internal/apperr"
)

var supportedMimes = map[string]string{
	"image/png":       "image",
	"image/jpeg":      "image",
	"image/gif":       "image",
	"image/webp":      "image",
	"application/pdf": "pdf",
}

// Background describes an uploaded template asset.
type Background struct {
	Mime       string
	SourceType string
	Width      int
	Height     int
}

// Inspect sniffs data and reports its natural pixel size. PDFs are measured
// from their rasterized first page.
func (e *Engine) Inspect(ctx context.Context, data []byte) (*Background, error) {
	mime := mimetype.Detect(data)
	var mt, source string
	for m := mime; m != nil; m = m.Parent() {
		if s, ok := supportedMimes[m.String()]; ok {
			mt, source = m.String(), s
			break
		}
	}
	if mt == "" {
		return nil, apperr.ErrUnsupportedAsset.WithMessage("unsupported background type %s", mime.String())
	}

	if source == "pdf" {
		img, err := e.decode(ctx, mt, data)
		if err != nil {
			return nil, err
		}
		b := img.Bounds()
		return &Background{Mime: mt, SourceType: source, Width: b.Dx(), Height: b.Dy()}, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.ErrUnsupportedAsset.Wrap(err).WithMessage("cannot decode %s background", mt)
	}
	return &Background{Mime: mt, SourceType: source, Width: cfg.Width, Height: cfg.Height}, nil
}

// decode turns an asset into an image at its natural size.
func (e *Engine) decode(ctx context.Context, mt string, data []byte) (image.Image, error) {
	if mt == "application/pdf" {
		if e.Rasterizer == nil {
			return nil, apperr.ErrUnsupportedAsset.WithMessage("pdf backgrounds are not enabled")
		}
		png, err := e.Rasterizer.FirstPage(ctx, data)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, apperr.Render(fmt.Errorf("rasterize pdf: %w", err), true)
		}
		data = png
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperr.Render(fmt.Errorf("decode background: %w", err), false)
	}
	return img, nil
}

// loadBackground returns the template background at native resolution,
// using the cache when the asset has been decoded before.
func (e *Engine) loadBackground(ctx context.Context, key string, data []byte, width, height int) (*image.NRGBA, error) {
	if e.cache != nil {
		if img, ok := e.cache.Get(key); ok {
			return img, nil
		}
	}

	img, err := e.decode(ctx, mimetype.Detect(data).String(), data)
	if err != nil {
		return nil, err
	}

	var bg *image.NRGBA
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		bg = imaging.Resize(img, width, height, imaging.Lanczos)
	} else {
		bg = imaging.Clone(img)
	}
	if e.cache != nil {
		e.cache.Add(key, bg)
	}
	return bg, nil
}

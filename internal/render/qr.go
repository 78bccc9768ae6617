package render

import (
	"fmt"
	"image"
	"image/draw"

	qrcode "github.com/skip2/go-qrcode"
)

// QRLevel is the error correction level used for verification QR codes.
const QRLevel = qrcode.Medium

// QRImage encodes content as a square QR image of exactly side pixels.
// Every module is a whole number of pixels and the symbol is centred on
// white. The quiet zone is dropped when the bordered symbol does not fit;
// a symbol that still needs more than side pixels is an error.
func QRImage(content string, side int) (image.Image, error) {
	if side <= 0 {
		return nil, fmt.Errorf("qr side must be positive, got %d", side)
	}
	q, err := qrcode.New(content, QRLevel)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	bits := q.Bitmap()
	if len(bits) > side {
		q.DisableBorder = true
		bits = q.Bitmap()
	}
	n := len(bits)
	if n > side {
		return nil, fmt.Errorf("qr code needs %d px, field allows %d px", n, side)
	}

	scale := side / n
	off := (side - n*scale) / 2
	img := image.NewGray(image.Rect(0, 0, side, side))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	for y, row := range bits {
		for x, dark := range row {
			if !dark {
				continue
			}
			m := image.Rect(off+x*scale, off+y*scale, off+(x+1)*scale, off+(y+1)*scale)
			draw.Draw(img, m, image.Black, image.Point{}, draw.Src)
		}
	}
	return img, nil
}

// drawQR paints a QR for content as the largest square inside the visible
// part of box, anchored at its top-left corner. Nothing is drawn when box
// lies outside dst.
func drawQR(dst draw.Image, box image.Rectangle, content string) error {
	box = box.Intersect(dst.Bounds())
	if box.Empty() {
		return nil
	}
	side := box.Dx()
	if box.Dy() < side {
		side = box.Dy()
	}
	qr, err := QRImage(content, side)
	if err != nil {
		return err
	}
	r := image.Rect(box.Min.X, box.Min.Y, box.Min.X+side, box.Min.Y+side)
	draw.Draw(dst, r, qr, qr.Bounds().Min, draw.Src)
	return nil
}

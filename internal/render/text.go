package render

import (
	"image"
	"image/color"
	"image/draw"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/YannKr/certstamp/internal/model"
)

// drawText renders s inside box. Lines wrap on whitespace at the box width
// and anything past the box edges is clipped. Text is never shrunk.
func drawText(dst draw.Image, box image.Rectangle, s string, face font.Face, c color.Color, align model.TextAlign) {
	box = box.Intersect(dst.Bounds())
	if box.Empty() || s == "" {
		return
	}
	clip, ok := subImage(dst, box)
	if !ok {
		return
	}

	m := face.Metrics()
	lineHeight := m.Height.Ceil()
	if lineHeight <= 0 {
		lineHeight = (m.Ascent + m.Descent).Ceil()
	}
	ascent := m.Ascent.Ceil()

	d := &font.Drawer{Dst: clip, Src: image.NewUniform(c), Face: face}
	top := box.Min.Y
	for _, line := range wrapLines(face, s, fixed.I(box.Dx())) {
		if top >= box.Max.Y {
			break
		}
		adv := font.MeasureString(face, line)
		var off fixed.Int26_6
		switch align {
		case model.AlignCenter:
			off = (fixed.I(box.Dx()) - adv) / 2
		case model.AlignRight:
			off = fixed.I(box.Dx()) - adv
		}
		d.Dot = fixed.Point26_6{X: fixed.I(box.Min.X) + off, Y: fixed.I(top + ascent)}
		d.DrawString(line)
		top += lineHeight
	}
}

// wrapLines breaks s into lines no wider than max. Explicit newlines are
// kept. A single word wider than max gets its own line.
func wrapLines(face font.Face, s string, max fixed.Int26_6) []string {
	var lines []string
	space := font.MeasureString(face, " ")
	for _, para := range strings.Split(s, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		cur := words[0]
		curW := font.MeasureString(face, cur)
		for _, w := range words[1:] {
			ww := font.MeasureString(face, w)
			if curW+space+ww <= max {
				cur += " " + w
				curW += space + ww
				continue
			}
			lines = append(lines, cur)
			cur, curW = w, ww
		}
		lines = append(lines, cur)
	}
	return lines
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

func subImage(dst draw.Image, r image.Rectangle) (draw.Image, bool) {
	si, ok := dst.(subImager)
	if !ok {
		return nil, false
	}
	out, ok := si.SubImage(r).(draw.Image)
	return out, ok
}

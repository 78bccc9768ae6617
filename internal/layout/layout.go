// Package layout validates field placements and converts between display and
// template-native coordinates.
package layout

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/YannKr/certstamp/internal/apperr"
	"github.com/YannKr/certstamp/internal/model"
)

const (
	DefaultFontSize   = 14
	DefaultFontFamily = "Arial"
	DefaultFontColor  = "#000000"
)

// Validate checks f and normalises it in place. Negative positions are
// clamped to zero; non-positive sizes are rejected.
func Validate(f *model.Field) error {
	if !f.Type.Valid() {
		return apperr.ErrInvalidFieldType.WithMessage("unknown field type %q", f.Type)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return apperr.ErrInvalidGeometry.WithMessage("field %s: width and height must be positive, got %gx%g", f.Type, f.Width, f.Height)
	}
	if f.X < 0 {
		f.X = 0
	}
	if f.Y < 0 {
		f.Y = 0
	}
	if f.FontColor != "" {
		if _, err := ParseColor(f.FontColor); err != nil {
			return apperr.ErrInvalidColor.WithMessage("field %s: invalid font color %q", f.Type, f.FontColor)
		}
	}
	if f.TextAlign == "" {
		f.TextAlign = model.AlignLeft
	} else if !f.TextAlign.Valid() {
		return apperr.ErrInvalidTextAlign.WithMessage("field %s: invalid text align %q", f.Type, f.TextAlign)
	}
	if f.FontSize < 0 {
		return apperr.ErrInvalidGeometry.WithMessage("field %s: font size must not be negative", f.Type)
	}
	if f.FontSize == 0 {
		f.FontSize = DefaultFontSize
	}
	return nil
}

// ValidateAll validates every field and reports the first failure with its
// position in the collection.
func ValidateAll(fields []model.Field) error {
	for i := range fields {
		if err := Validate(&fields[i]); err != nil {
			if ae, ok := err.(*apperr.Error); ok {
				return ae.WithMessage("fields[%d]: %s", i, ae.Message)
			}
			return fmt.Errorf("fields[%d]: %w", i, err)
		}
	}
	return nil
}

// ParseColor accepts #RGB, #RRGGBB and #RRGGBBAA. The leading # is required.
func ParseColor(s string) (color.NRGBA, error) {
	if !strings.HasPrefix(s, "#") {
		return color.NRGBA{}, fmt.Errorf("color %q: missing #", s)
	}
	hex := s[1:]
	switch len(hex) {
	case 3:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]}) + "ff"
	case 6:
		hex += "ff"
	case 8:
	default:
		return color.NRGBA{}, fmt.Errorf("color %q: bad length", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("color %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// Scale is the ratio between an on-screen rendering of a template and its
// native width.
type Scale float64

// DisplayScale returns displayWidth / templateWidth.
func DisplayScale(displayWidth, templateWidth float64) Scale {
	if templateWidth <= 0 {
		return 1
	}
	return Scale(displayWidth / templateWidth)
}

// ToNative converts a field measured on a scaled display into template space.
func (s Scale) ToNative(f model.Field) model.Field {
	if s <= 0 {
		return f
	}
	k := float64(s)
	f.X /= k
	f.Y /= k
	f.Width /= k
	f.Height /= k
	f.FontSize /= k
	return f
}

// ToDisplay is the inverse of ToNative.
func (s Scale) ToDisplay(f model.Field) model.Field {
	k := float64(s)
	f.X *= k
	f.Y *= k
	f.Width *= k
	f.Height *= k
	f.FontSize *= k
	return f
}

// AssignDurableIDs keeps ids that are already UUIDs and replaces every other
// id (temporary editor keys, blanks, duplicates) with a new one. The returned
// map goes from the submitted id to the stored id for every replaced entry
// that had a non-empty submitted id.
func AssignDurableIDs(fields []model.Field, newID func() string) map[string]string {
	if newID == nil {
		newID = func() string { return uuid.New().String() }
	}
	remap := make(map[string]string)
	seen := make(map[string]bool, len(fields))
	for i := range fields {
		id := fields[i].ID
		if _, err := uuid.Parse(id); err == nil && !seen[id] {
			seen[id] = true
			continue
		}
		durable := newID()
		if id != "" {
			if _, dup := remap[id]; !dup {
				remap[id] = durable
			}
		}
		fields[i].ID = durable
		seen[durable] = true
	}
	return remap
}

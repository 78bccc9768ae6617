package render

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// familyFiles maps editor font names to TTF files searched for in the
// configured font directories.
var familyFiles = map[string]string{
	"arial":           "LiberationSans-Regular.ttf",
	"helvetica":       "LiberationSans-Regular.ttf",
	"times new roman": "LiberationSerif-Regular.ttf",
	"georgia":         "LiberationSerif-Regular.ttf",
	"palatino":        "LiberationSerif-Regular.ttf",
	"garamond":        "LiberationSerif-Regular.ttf",
	"bookman":         "LiberationSerif-Regular.ttf",
	"courier new":     "LiberationMono-Regular.ttf",
	"verdana":         "DejaVuSans.ttf",
	"comic sans ms":   "DejaVuSans.ttf",
	"trebuchet ms":    "DejaVuSans.ttf",
	"impact":          "DejaVuSans-Bold.ttf",
	"dancing script":  "DancingScript.ttf",
	"great vibes":     "GreatVibes.ttf",
	"parisienne":      "Parisienne.ttf",
	"allura":          "Allura.ttf",
}

var fallbackFiles = []string{"DejaVuSans.ttf", "LiberationSans-Regular.ttf"}

// builtin fonts used when no file on disk matches.
var builtin = map[string][]byte{
	"go-regular": goregular.TTF,
	"go-bold":    gobold.TTF,
	"go-mono":    gomono.TTF,
}

func builtinFor(family string) string {
	switch strings.ToLower(family) {
	case "courier new", "courier", "monospace", "go mono":
		return "go-mono"
	case "impact", "go bold":
		return "go-bold"
	}
	return "go-regular"
}

// Fonts resolves font family names to parsed fonts. Parsed fonts are shared;
// faces are created per draw because a face is not safe for concurrent use.
type Fonts struct {
	Dirs []string

	mu     sync.Mutex
	parsed map[string]*opentype.Font
}

func NewFonts(dirs []string) *Fonts {
	return &Fonts{Dirs: dirs, parsed: make(map[string]*opentype.Font)}
}

// Resolve finds the font for family: the mapped file, then the fallback
// files, then the built-in Go fonts.
func (f *Fonts) Resolve(family string) (*opentype.Font, error) {
	var candidates []string
	if file, ok := familyFiles[strings.ToLower(strings.TrimSpace(family))]; ok {
		candidates = append(candidates, file)
	}
	candidates = append(candidates, fallbackFiles...)

	for _, name := range candidates {
		if path := f.find(name); path != "" {
			fnt, err := f.load(path, func() ([]byte, error) { return os.ReadFile(path) })
			if err == nil {
				return fnt, nil
			}
			slog.Warn("font load failed", "path", path, "error", err)
		}
	}

	key := builtinFor(family)
	return f.load(key, func() ([]byte, error) { return builtin[key], nil })
}

// Face returns a new face for family at sizePx pixels.
func (f *Fonts) Face(family string, sizePx float64) (font.Face, error) {
	fnt, err := f.Resolve(family)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(fnt, &opentype.FaceOptions{
		Size:    sizePx,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

func (f *Fonts) find(name string) string {
	for _, dir := range f.Dirs {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (f *Fonts) load(key string, read func() ([]byte, error)) (*opentype.Font, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.parsed == nil {
		f.parsed = make(map[string]*opentype.Font)
	}
	if fnt, ok := f.parsed[key]; ok {
		return fnt, nil
	}
	data, err := read()
	if err != nil {
		return nil, fmt.Errorf("read font %s: %w", key, err)
	}
	fnt, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", key, err)
	}
	f.parsed[key] = fnt
	return fnt, nil
}

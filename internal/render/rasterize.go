package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// Rasterizer turns the first page of a PDF into PNG bytes.
type Rasterizer interface {
	FirstPage(ctx context.Context, pdf []byte) ([]byte, error)
}

// MagickRasterizer shells out to ImageMagick.
type MagickRasterizer struct {
	Path    string
	Density int
}

func (m *MagickRasterizer) FirstPage(ctx context.Context, pdf []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "certstamp-pdf-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.png")
	if err := os.WriteFile(in, pdf, 0600); err != nil {
		return nil, err
	}

	path := m.Path
	if path == "" {
		path = "magick"
	}
	density := m.Density
	if density <= 0 {
		density = 150
	}
	cmd := exec.CommandContext(ctx, path,
		"-density", strconv.Itoa(density),
		in+"[0]",
		"-background", "white",
		"-alpha", "remove",
		"-flatten",
		"png:"+out,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("imagemagick rasterize: %w\noutput: %s", err, string(output))
	}
	return os.ReadFile(out)
}

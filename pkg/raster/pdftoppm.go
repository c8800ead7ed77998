package raster

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Defaults for the poppler backed rasterizer.
const (
	DefaultPdftoppm = "pdftoppm"
	DefaultDPI      = 150
)

// Pdftoppm renders PDF pages with poppler's pdftoppm.
type Pdftoppm struct {
	// Binary is the pdftoppm executable (default "pdftoppm" on PATH).
	Binary string

	// DPI is the render resolution (default 150).
	DPI int

	// Width, when positive, caps the width of each page image.
	Width int

	logger zerolog.Logger
}

// NewPdftoppm creates a rasterizer with defaults filled in.
func NewPdftoppm(binary string, dpi, width int) *Pdftoppm {
	if binary == "" {
		binary = DefaultPdftoppm
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Pdftoppm{
		Binary: binary,
		DPI:    dpi,
		Width:  width,
		logger: log.With().Str("component", "raster").Logger(),
	}
}

// Available reports whether the binary can be found.
func (p *Pdftoppm) Available() bool {
	_, err := exec.LookPath(p.Binary)
	return err == nil
}

// Rasterize renders every page of src and writes <baseName>.<i>.jpg into dstDir.
func (p *Pdftoppm) Rasterize(ctx context.Context, src, dstDir, baseName string) ([]string, error) {
	tmp, err := os.MkdirTemp(dstDir, "."+baseName+".pages-")
	if err != nil {
		return nil, fmt.Errorf("create page workspace: %w", err)
	}
	defer os.RemoveAll(tmp)

	dpi := p.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Binary, "-jpeg", "-r", strconv.Itoa(dpi), src, filepath.Join(tmp, "page"))
	cmd.Stderr = &stderr

	p.logger.Debug().
		Str("path", src).
		Int("dpi", dpi).
		Msg("Rendering PDF pages")

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", p.Binary, filepath.Base(src), err, strings.TrimSpace(stderr.String()))
	}

	pages, err := collectPages(tmp)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%s %s: no pages rendered", p.Binary, filepath.Base(src))
	}

	out := make([]string, 0, len(pages))
	for i, page := range pages {
		dst := filepath.Join(dstDir, PageName(baseName, i))
		if err := normalize(page, dst, p.Width); err != nil {
			return nil, err
		}
		out = append(out, dst)
	}

	pagesTotal.WithLabelValues("pdftoppm").Add(float64(len(out)))
	p.logger.Debug().
		Str("path", src).
		Int("pages", len(out)).
		Msg("Rendered PDF pages")

	return out, nil
}

// collectPages lists the images written by pdftoppm in page order. Page
// numbers are zero padded to the width of the page count, so names are
// ordered numerically rather than lexically.
func collectPages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read page workspace: %w", err)
	}

	type page struct {
		num  int
		path string
	}
	var pages []page
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".jpg") {
			continue
		}
		stem := strings.TrimSuffix(name, ".jpg")
		idx := strings.LastIndex(stem, "-")
		if idx < 0 {
			continue
		}
		num, err := strconv.Atoi(stem[idx+1:])
		if err != nil {
			continue
		}
		pages = append(pages, page{num: num, path: filepath.Join(dir, name)})
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].num < pages[j].num })

	paths := make([]string, len(pages))
	for i, p := range pages {
		paths[i] = p.path
	}
	return paths, nil
}

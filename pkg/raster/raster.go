// Package raster turns exported dashboard documents into page images.
package raster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sternrassler/dashboard-news/pkg/client"
	"github.com/disintegration/imaging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dashboard_news_pages_rendered_total",
	Help: "Total page images written by rasterizer",
}, []string{"rasterizer"})

// JPEGQuality is used for every page image.
const JPEGQuality = 90

// Rasterizer converts src into page images written to dstDir as
// <baseName>.<page>.jpg, pages numbered from 0. Paths are returned in page
// order.
type Rasterizer interface {
	Rasterize(ctx context.Context, src, dstDir, baseName string) ([]string, error)
}

// PageName returns the file name of a page image.
func PageName(baseName string, page int) string {
	return fmt.Sprintf("%s.%d.jpg", baseName, page)
}

// ForFormat returns the rasterizer for artifacts of the given export format.
// PDF artifacts use pdf; image artifacts are re-encoded directly.
func ForFormat(format client.ExportFormat, pdf Rasterizer, width int) Rasterizer {
	if format == client.FormatPng {
		return &ImageFile{Width: width}
	}
	return pdf
}

// ImageFile handles artifacts that already are a single image.
type ImageFile struct {
	// Width, when positive, caps the output width.
	Width int
}

// Rasterize re-encodes src as page 0.
func (r *ImageFile) Rasterize(ctx context.Context, src, dstDir, baseName string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dst := filepath.Join(dstDir, PageName(baseName, 0))
	if err := normalize(src, dst, r.Width); err != nil {
		return nil, err
	}
	pagesTotal.WithLabelValues("image").Inc()
	return []string{dst}, nil
}

// normalize decodes src, shrinks it to width when wider, and writes a JPEG to dst.
func normalize(src, dst string, width int) error {
	img, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("open image %s: %w", src, err)
	}

	if width > 0 && img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create page directory: %w", err)
	}
	if err := imaging.Save(img, dst, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return fmt.Errorf("save page %s: %w", dst, err)
	}
	return nil
}

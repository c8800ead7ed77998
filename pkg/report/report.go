// Package report assembles exported dashboard page images into one PDF report.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/johnfercher/maroto/pkg/consts"
	"github.com/johnfercher/maroto/pkg/pdf"
	"github.com/johnfercher/maroto/pkg/props"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Defaults used by NewAssembler.
const (
	DefaultTag          = "sumodashboardnews"
	DefaultTitle        = "Report"
	DefaultFooter       = "Courtesy of SumoDashboardNews!"
	DefaultImagePercent = 95.0

	// NoItemsNotice is written when a run exported nothing.
	NoItemsNotice = "No dashboards exported"
)

const (
	headerStamp = "2006/01/02, 15:04:05"
	fileStamp   = "20060102.150405"

	textRowHeight  = 10.0
	imageRowHeight = 200.0
)

// Item is one report section: a dashboard and its page images in page order.
type Item struct {
	DashboardID string
	Label       string
	Images      []string
}

// Assembler writes report documents.
type Assembler struct {
	// Tag names the report and prefixes its file name.
	Tag string

	// Title prefixes the header line.
	Title string

	// Footer is printed at the bottom of every page.
	Footer string

	// ImageWidthPercent is the share of the column width used by an image.
	ImageWidthPercent float64

	// Now returns the generation time (default time.Now).
	Now func() time.Time

	logger zerolog.Logger
}

// NewAssembler returns an assembler with defaults filled in.
func NewAssembler(tag string) *Assembler {
	if tag == "" {
		tag = DefaultTag
	}
	return &Assembler{
		Tag:               tag,
		Title:             DefaultTitle,
		Footer:            DefaultFooter,
		ImageWidthPercent: DefaultImagePercent,
		Now:               time.Now,
		logger:            log.With().Str("component", "report").Logger(),
	}
}

// FileName returns the report file name for a generation time.
func (a *Assembler) FileName(at time.Time) string {
	return fmt.Sprintf("%s.%s.pdf", a.Tag, at.Format(fileStamp))
}

// Assemble writes a portrait A4 report for items into dir and returns its
// path. Sections follow the order of items; items without images are left
// out. A report is produced even when no item qualifies.
func (a *Assembler) Assemble(items []Item, dir string) (string, error) {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	at := now()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	path := filepath.Join(dir, a.FileName(at))

	m := pdf.NewMaroto(consts.Portrait, consts.A4)
	m.SetBorder(false)

	header := fmt.Sprintf("%s: %s Generated: %s", a.Title, a.Tag, at.Format(headerStamp))
	m.RegisterHeader(func() {
		m.Row(textRowHeight, func() {
			m.Col(12, func() {
				m.Text(header, props.Text{Size: 9, Align: consts.Right, Style: consts.Italic})
			})
		})
	})
	if a.Footer != "" {
		m.RegisterFooter(func() {
			m.Row(textRowHeight, func() {
				m.Col(12, func() {
					m.Text(a.Footer, props.Text{Size: 9, Align: consts.Center, Style: consts.Italic})
				})
			})
		})
	}

	sections := 0
	for _, item := range items {
		if len(item.Images) == 0 {
			a.logger.Warn().
				Str("dashboard", item.DashboardID).
				Msg("No page image for dashboard, leaving it out of the report")
			continue
		}
		if sections > 0 {
			m.AddPage()
		}
		sections++
		a.addSection(m, sections, item)
	}

	if sections == 0 {
		m.Row(textRowHeight*2, func() {
			m.Col(12, func() {
				m.Text(NoItemsNotice, props.Text{Size: 14, Align: consts.Center, Style: consts.Bold})
			})
		})
	}

	if err := m.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}

	a.logger.Info().
		Str("path", path).
		Int("sections", sections).
		Msg("Report written")

	return path, nil
}

func (a *Assembler) addSection(m pdf.Maroto, n int, item Item) {
	label := item.Label
	if label == "" {
		label = item.DashboardID
	}

	m.Row(textRowHeight*1.5, func() {
		m.Col(12, func() {
			m.Text(fmt.Sprintf("Title %d: %s", n, label), props.Text{Size: 16, Style: consts.Bold})
		})
	})

	percent := a.ImageWidthPercent
	if percent <= 0 || percent > 100 {
		percent = DefaultImagePercent
	}

	// Only the first page of an export goes into the report. A failed image
	// registration poisons the whole document, so missing files are caught
	// before maroto sees them.
	image := item.Images[0]
	m.Row(imageRowHeight, func() {
		m.Col(12, func() {
			if _, err := os.Stat(image); err != nil {
				a.logger.Warn().
					Err(err).
					Str("dashboard", item.DashboardID).
					Str("path", image).
					Msg("Page image missing")
				m.Text("Image unavailable", props.Text{Align: consts.Center})
				return
			}
			if err := m.FileImage(image, props.Rect{Center: true, Percent: percent}); err != nil {
				a.logger.Warn().
					Err(err).
					Str("dashboard", item.DashboardID).
					Str("path", image).
					Msg("Failed to add page image")
				m.Text("Image unavailable", props.Text{Align: consts.Center})
			}
		})
	})

	m.Row(textRowHeight, func() {
		m.Col(12, func() {
			m.Text(fmt.Sprintf("This is a sample summary for %s", label), props.Text{Size: 11})
		})
	})
}

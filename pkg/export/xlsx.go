// Package export writes region results to spreadsheets.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/poi-sweep/pkg/events"
	"github.com/Sternrassler/poi-sweep/pkg/poi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx/v2"
)

// Sheet names.
const (
	RecordsSheet = "POI"
	SummarySheet = "Summary"
)

// RecordHeader is the header row of the records sheet.
var RecordHeader = []string{"名称", "地址", "电话", "ID", "坐标"}

// XLSXWriter writes one workbook per region into Dir, named
// "<region><keyword>_<code>.xlsx".
type XLSXWriter struct {
	Dir     string
	Keyword string

	logger zerolog.Logger
	now    func() time.Time
}

// NewXLSXWriter creates a writer. Dir is created on first write.
func NewXLSXWriter(dir, keyword string) *XLSXWriter {
	return &XLSXWriter{
		Dir:     dir,
		Keyword: keyword,
		logger:  log.With().Str("component", "export").Logger(),
		now:     time.Now,
	}
}

// Path returns the file a region is written to. The region code, when set,
// keeps regions whose names sanitize alike apart.
func (w *XLSXWriter) Path(region, code string) string {
	name := region + w.Keyword
	if code = strings.TrimSpace(code); code != "" {
		name += "_" + code
	}
	return filepath.Join(w.Dir, sanitize(name)+".xlsx")
}

// Write implements harvest.Writer.
func (w *XLSXWriter) Write(ctx context.Context, summary events.Summary, records []poi.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f := xlsx.NewFile()

	sheet, err := f.AddSheet(RecordsSheet)
	if err != nil {
		return fmt.Errorf("xlsx: add sheet: %w", err)
	}
	addRow(sheet, RecordHeader...)
	for _, r := range records {
		addRow(sheet, r.Name, r.Address, r.Phone, r.ID, r.Location)
	}

	meta, err := f.AddSheet(SummarySheet)
	if err != nil {
		return fmt.Errorf("xlsx: add sheet: %w", err)
	}
	for _, kv := range [][2]string{
		{"region", summary.RegionName},
		{"code", summary.RegionCode},
		{"keyword", w.Keyword},
		{"status", string(summary.Status)},
		{"records", fmt.Sprint(summary.TotalWritten)},
		{"cells", fmt.Sprint(summary.CellsProcessed)},
		{"failed cells", fmt.Sprint(summary.CellsFailed)},
		{"partial cells", fmt.Sprint(summary.CoverageGaps)},
		{"coverage complete", fmt.Sprint(summary.CoverageComplete)},
		{"reason", summary.Reason},
		{"run id", summary.RunID},
		{"written at", w.now().Format(time.RFC3339)},
	} {
		addRow(meta, kv[0], kv[1])
	}

	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("xlsx: create output dir: %w", err)
	}

	path := w.Path(summary.RegionName, summary.RegionCode)
	if err := f.Save(path); err != nil {
		return fmt.Errorf("xlsx: save %s: %w", path, err)
	}

	w.logger.Info().
		Str("region", summary.RegionName).
		Str("path", path).
		Int("records", len(records)).
		Msg("Region written")
	return nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// sanitize drops characters that are not allowed in file names.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}

// Package export writes enriched delinquency datasets to spreadsheet files.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/delinquency-bot/internal/model"
)

// BaseColumns are always written, in this order.
var BaseColumns = []string{
	"contract_code",
	"connection_blocked",
	"is_reduced",
	"network_address",
	"customer_name",
	"reseller_name",
	"username",
}

// EnrichmentColumns are appended when at least one row was enriched.
var EnrichmentColumns = []string{"status", "plan"}

// Artifact is a spreadsheet written for one aging bucket.
type Artifact struct {
	Bucket model.Bucket
	Path   string
	Rows   int
}

// Remove deletes the artifact from disk. Missing files are not an error.
func (a *Artifact) Remove() error {
	if a == nil || a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "export: remove %s", a.Path)
	}
	return nil
}

// FileName returns the deterministic file name for a bucket.
func FileName(b model.Bucket) string {
	return fmt.Sprintf("delinquents_%d_days.xlsx", b.Days())
}

// SheetName returns the single sheet name used inside a bucket's file.
func SheetName(b model.Bucket) string {
	return fmt.Sprintf("Delinquents_%d_days", b.Days())
}

// Columns returns the header row for a dataset.
func Columns(rows []model.Account) []string {
	cols := append([]string{}, BaseColumns...)
	if anyEnriched(rows) {
		cols = append(cols, EnrichmentColumns...)
	}
	return cols
}

func anyEnriched(rows []model.Account) bool {
	for _, r := range rows {
		if r.Enriched() {
			return true
		}
	}
	return false
}

// Writer writes artifacts into a directory.
type Writer struct {
	dir string
}

// NewWriter returns a Writer rooted at dir. An empty dir means the OS temp dir.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Writer{dir: dir}
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// Export writes rows to <dir>/<FileName(bucket)>. The file is first written
// to a temporary name in the same directory and renamed into place, so a
// reader never observes a partial spreadsheet.
func (w *Writer) Export(bucket model.Bucket, rows []model.Account) (*Artifact, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "export: create dir %s", w.dir)
	}

	f, err := build(bucket, rows)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(w.dir, ".delinquents-*.xlsx.tmp")
	if err != nil {
		return nil, eris.Wrap(err, "export: create temp file")
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if err := f.Write(tmp); err != nil {
		cleanup()
		return nil, eris.Wrapf(err, "export: write %s", SheetName(bucket))
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return nil, eris.Wrap(err, "export: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, eris.Wrap(err, "export: close temp file")
	}

	final := filepath.Join(w.dir, FileName(bucket))
	if err := os.Rename(tmpPath, final); err != nil {
		_ = os.Remove(tmpPath)
		return nil, eris.Wrapf(err, "export: rename to %s", final)
	}

	zap.L().Info("export: wrote artifact",
		zap.String("bucket", bucket.String()),
		zap.String("path", final),
		zap.Int("rows", len(rows)),
	)

	return &Artifact{Bucket: bucket, Path: final, Rows: len(rows)}, nil
}

func build(bucket model.Bucket, rows []model.Account) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName(bucket))
	if err != nil {
		return nil, eris.Wrapf(err, "export: add sheet %s", SheetName(bucket))
	}

	cols := Columns(rows)
	header := sheet.AddRow()
	for _, c := range cols {
		header.AddCell().SetString(c)
	}

	withEnrichment := len(cols) > len(BaseColumns)
	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.ContractCode)
		row.AddCell().SetString(strconv.FormatBool(r.ConnectionBlocked))
		row.AddCell().SetString(strconv.FormatBool(r.IsReduced))
		row.AddCell().SetString(r.NetworkAddress)
		row.AddCell().SetString(r.CustomerName)
		row.AddCell().SetString(r.ResellerName)
		row.AddCell().SetString(r.Username)
		if !withEnrichment {
			continue
		}
		// Unenriched rows still get both cells so columns stay aligned.
		var status, plan string
		if r.Enrichment != nil {
			status, plan = r.Enrichment.Status, r.Enrichment.Plan
		}
		row.AddCell().SetString(status)
		row.AddCell().SetString(plan)
	}

	return f, nil
}

// ReadRows reads the first sheet of an artifact, header row included.
func ReadRows(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "export: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("export: %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

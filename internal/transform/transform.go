// Package transform implements the cleaning stage: it consumes the raw
// CSV artifact produced by the extractor and emits the cleaned dataset
// the analytics and dashboard layers expect.
package transform

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/placesdata/pipeline"
	"github.com/placesdata/pipeline/config"

	"go.uber.org/zap"
)

// Columns coerced to numeric values; unparseable entries become empty.
var numericColumns = []string{
	"data_value",
	"low_confidence_limit",
	"high_confidence_limit",
	"totalpopulation",
	"totalpop18plus",
}

// Columns carrying no data in the source dataset.
var droppedColumns = []string{
	"data_value_footnote_symbol",
	"data_value_footnote",
}

var (
	longitudeRe = regexp.MustCompile(`POINT \((-?\d+\.\d+)`)
	latitudeRe  = regexp.MustCompile(`(-?\d+\.\d+)\)`)
)

// LatestRawFile finds the most recently modified raw artifact for the
// dataset under dir. A missing file is a configuration error: the
// stage refuses to start without input.
func LatestRawFile(dir, dataset string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, dataset+"_*.csv"))
	if err != nil {
		return "", err
	}
	var newest string
	var newestMod time.Time
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = path
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf(
			"%w: no raw file matching %s_*.csv in %s",
			pipeline.ErrConfiguration, dataset, dir,
		)
	}
	return newest, nil
}

func Load(path string) (*pipeline.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening raw file: %v", pipeline.ErrConfiguration, err)
	}
	defer file.Close()

	table, err := pipeline.ParseCSVTable(file)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	zap.S().Infow("loaded raw dataset", "path", path, "rows", table.NumRows(), "columns", len(table.Columns))
	return table, nil
}

// Clean normalizes the raw table: standardized column names, rows with
// missing critical fields dropped, numeric coercion, deduplication,
// dead columns removed and coordinates split out of the geolocation
// point text.
func Clean(raw *pipeline.Table) (*pipeline.Table, error) {
	t := standardizeColumns(raw)

	locIdx := t.ColumnIndex("locationname")
	valIdx := t.ColumnIndex("data_value")
	if locIdx < 0 || valIdx < 0 {
		return nil, fmt.Errorf(
			"cleaning: required columns locationname/data_value not found in %v",
			t.Columns,
		)
	}

	kept := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if row[locIdx] == "" || row[valIdx] == "" {
			continue
		}
		kept = append(kept, row)
	}
	t.Rows = kept
	zap.S().Debugw("dropped rows with missing critical fields", "remaining", len(t.Rows))

	if geoIdx := t.ColumnIndex("geolocation"); geoIdx >= 0 {
		for _, row := range t.Rows {
			if row[geoIdx] == "" {
				row[geoIdx] = "Unknown"
			}
		}
	}

	for _, col := range numericColumns {
		idx := t.ColumnIndex(col)
		if idx < 0 {
			continue
		}
		for _, row := range t.Rows {
			if row[idx] == "" {
				continue
			}
			if _, err := strconv.ParseFloat(row[idx], 64); err != nil {
				row[idx] = ""
			}
		}
	}

	t = dropDuplicateRows(t)
	t = dropColumns(t, droppedColumns)
	t = extractCoordinates(t)

	zap.S().Infow("data cleaning complete", "rows", t.NumRows(), "columns", len(t.Columns))
	return t, nil
}

// AddDerived appends the percentage_of_population and year_category
// columns the downstream consumers expect.
func AddDerived(t *pipeline.Table) (*pipeline.Table, error) {
	valIdx := t.ColumnIndex("data_value")
	popIdx := t.ColumnIndex("totalpopulation")
	yearIdx := t.ColumnIndex("year")
	catIdx := t.ColumnIndex("category")
	if valIdx < 0 || popIdx < 0 || yearIdx < 0 || catIdx < 0 {
		return nil, fmt.Errorf(
			"deriving columns: data_value/totalpopulation/year/category not found in %v",
			t.Columns,
		)
	}

	out := &pipeline.Table{
		Columns: append(append([]string{}, t.Columns...), "percentage_of_population", "year_category"),
		Rows:    make([][]string, 0, len(t.Rows)),
	}
	for _, row := range t.Rows {
		percentage := ""
		value, errV := strconv.ParseFloat(row[valIdx], 64)
		population, errP := strconv.ParseFloat(row[popIdx], 64)
		if errV == nil && errP == nil && population != 0 {
			percentage = strconv.FormatFloat(value/population*100, 'f', -1, 64)
		}
		yearCategory := row[yearIdx] + " - " + row[catIdx]

		out.Rows = append(out.Rows, append(append([]string{}, row...), percentage, yearCategory))
	}
	return out, nil
}

// SaveCleaned writes the cleaned dataset as cleaned_data_<ts>.csv.
func SaveCleaned(t *pipeline.Table, outputDir string, now func() time.Time) (string, error) {
	if now == nil {
		now = time.Now
	}
	path := filepath.Join(
		outputDir,
		fmt.Sprintf("cleaned_data_%s.csv", now().Format("20060102_150405")),
	)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: creating %s: %v", pipeline.ErrPersistence, path, err)
	}

	cw := csv.NewWriter(file)
	if err := cw.Write(t.Columns); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("%w: writing %s: %v", pipeline.ErrPersistence, path, err)
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			_ = file.Close()
			return "", fmt.Errorf("%w: writing %s: %v", pipeline.ErrPersistence, path, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("%w: writing %s: %v", pipeline.ErrPersistence, path, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("%w: closing %s: %v", pipeline.ErrPersistence, path, err)
	}

	zap.S().Infow("cleaned data saved", "path", path, "rows", t.NumRows())
	return path, nil
}

// Run executes the whole cleaning stage.
func Run(cfg *config.Config) (string, error) {
	inputPath := cfg.Transform.InputPath
	if inputPath == "" {
		var err error
		inputPath, err = LatestRawFile(cfg.Run.RawDir, cfg.Output.DatasetName)
		if err != nil {
			return "", err
		}
	}

	raw, err := Load(inputPath)
	if err != nil {
		return "", err
	}

	cleaned, err := Clean(raw)
	if err != nil {
		return "", err
	}
	cleaned, err = AddDerived(cleaned)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(cfg.Transform.ProcessedDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating %s: %v", pipeline.ErrPersistence, cfg.Transform.ProcessedDir, err)
	}
	return SaveCleaned(cleaned, cfg.Transform.ProcessedDir, nil)
}

func standardizeColumns(t *pipeline.Table) *pipeline.Table {
	columns := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		columns[i] = strings.ReplaceAll(strings.TrimSpace(strings.ToLower(col)), " ", "_")
	}
	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		rows[i] = append([]string{}, row...)
	}
	return &pipeline.Table{Columns: columns, Rows: rows}
}

func dropDuplicateRows(t *pipeline.Table) *pipeline.Table {
	seen := make(map[string]struct{}, len(t.Rows))
	kept := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		key := strings.Join(row, "\x1f")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, row)
	}
	t.Rows = kept
	return t
}

func dropColumns(t *pipeline.Table, names []string) *pipeline.Table {
	drop := make(map[int]struct{}, len(names))
	for _, name := range names {
		if idx := t.ColumnIndex(name); idx >= 0 {
			drop[idx] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return t
	}

	columns := make([]string, 0, len(t.Columns)-len(drop))
	for i, col := range t.Columns {
		if _, ok := drop[i]; !ok {
			columns = append(columns, col)
		}
	}
	rows := make([][]string, len(t.Rows))
	for ri, row := range t.Rows {
		next := make([]string, 0, len(columns))
		for i, v := range row {
			if _, ok := drop[i]; !ok {
				next = append(next, v)
			}
		}
		rows[ri] = next
	}
	return &pipeline.Table{Columns: columns, Rows: rows}
}

func extractCoordinates(t *pipeline.Table) *pipeline.Table {
	geoIdx := t.ColumnIndex("geolocation")
	columns := append(append([]string{}, t.Columns...), "longitude", "latitude")
	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		longitude, latitude := "", ""
		if geoIdx >= 0 {
			if m := longitudeRe.FindStringSubmatch(row[geoIdx]); m != nil {
				longitude = m[1]
			}
			if m := latitudeRe.FindStringSubmatch(row[geoIdx]); m != nil {
				latitude = m[1]
			}
		}
		rows[i] = append(append([]string{}, row...), longitude, latitude)
	}
	return &pipeline.Table{Columns: columns, Rows: rows}
}

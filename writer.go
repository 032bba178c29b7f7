package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	parquetwriter "github.com/xitongsys/parquet-go/writer"
	"go.uber.org/zap"
)

// Writer persists a finished dataset in a primary (CSV) and an
// optional secondary (Parquet) format. Both artifacts of one Save call
// share a single timestamp so they always refer to the same run.
type Writer struct {
	datasetName    string
	parquetEnabled bool
	now            func() time.Time
}

func NewWriter(datasetName string, parquetEnabled bool) *Writer {
	return &Writer{
		datasetName:    datasetName,
		parquetEnabled: parquetEnabled,
		now:            time.Now,
	}
}

// Save writes the table under outputDir and returns the CSV path and,
// when columnar support is available, the Parquet path. A missing
// Parquet capability degrades to CSV-only output; any other failure is
// fatal.
func (w *Writer) Save(table *Table, outputDir string) (string, string, error) {
	timestamp := w.now().Format("20060102_150405")
	csvPath := filepath.Join(outputDir, fmt.Sprintf("%s_%s.csv", w.datasetName, timestamp))
	parquetPath := filepath.Join(outputDir, fmt.Sprintf("%s_%s.parquet", w.datasetName, timestamp))

	if err := w.writeCSV(table, csvPath); err != nil {
		return "", "", fmt.Errorf("%w: writing %s: %v", ErrPersistence, csvPath, err)
	}
	zap.S().Infow("csv saved", "path", csvPath, "rows", table.NumRows())

	if err := w.writeParquet(table, parquetPath); err != nil {
		if errors.Is(err, ErrParquetUnavailable) {
			zap.S().Warnw(
				"parquet file could not be saved, continuing with csv only",
				"error", err,
			)
			return csvPath, "", nil
		}
		return csvPath, "", fmt.Errorf("%w: writing %s: %v", ErrPersistence, parquetPath, err)
	}
	zap.S().Infow("parquet saved", "path", parquetPath, "rows", table.NumRows())

	return csvPath, parquetPath, nil
}

func (w *Writer) writeCSV(table *Table, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(file)
	if err := cw.Write(table.Columns); err != nil {
		_ = file.Close()
		return err
	}
	for _, row := range table.Rows {
		if err := cw.Write(row); err != nil {
			_ = file.Close()
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func (w *Writer) writeParquet(table *Table, path string) error {
	if !w.parquetEnabled {
		return ErrParquetUnavailable
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}

	pw, err := parquetwriter.NewJSONWriter(parquetSchema(table.Columns), fw, 4)
	if err != nil {
		_ = fw.Close()
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range table.Rows {
		record := make(map[string]any, len(table.Columns))
		for i, col := range table.Columns {
			record[col] = row[i]
		}
		// JSONWriter only accepts pre-encoded JSON (string or []byte).
		encoded, err := json.Marshal(record)
		if err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return err
		}
		if err := pw.Write(string(encoded)); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return err
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}

// parquetSchema renders the raw table as all-optional UTF8 columns;
// the extractor stores values untyped, coercion happens downstream.
func parquetSchema(columns []string) string {
	fields := make([]map[string]string, 0, len(columns))
	for _, col := range columns {
		fields = append(fields, map[string]string{
			"Tag": fmt.Sprintf(
				"name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL",
				col,
			),
		})
	}
	out := map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	}
	b, _ := json.Marshal(out)
	return string(b)
}

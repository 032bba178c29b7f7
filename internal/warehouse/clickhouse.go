// Package warehouse loads the cleaned dataset into ClickHouse so that
// dashboards can query it without touching the CSV artifacts.
package warehouse

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/ClickHouse/clickhouse-go/v2/lib/proto"
	"github.com/placesdata/pipeline"
	"github.com/placesdata/pipeline/config"
	"github.com/placesdata/pipeline/internal/analytics"

	"go.uber.org/zap"
)

type Loader struct {
	conn  driver.Conn
	table string
}

func New(cfg config.WarehouseConfig) (*Loader, *proto.ServerHandshake, error) {
	zap.S().Debug("opening connection to the ClickHouse")
	conn, err := clickhouse.Open(
		&clickhouse.Options{
			Addr: []string{
				fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
			},
			Auth: clickhouse.Auth{
				Database: cfg.Database,
				Username: cfg.Credentials.Username,
				Password: cfg.Credentials.Password,
			},
		},
	)
	if err != nil {
		return nil, nil, fmt.Errorf("opening clickhouse connection: %w", err)
	}
	version, err := conn.ServerVersion()
	if err != nil {
		return nil, nil, fmt.Errorf("retrieving clickhouse server version: %w", err)
	}
	return &Loader{conn: conn, table: cfg.Table}, version, nil
}

func (l *Loader) Close() error {
	return l.conn.Close()
}

// InitTable creates the destination table from the cleaned table's
// layout. Every column is kept as String; typed views belong to the
// warehouse side.
func (l *Loader) InitTable(ctx context.Context, columns []string) error {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = fmt.Sprintf("`%s` String", col)
	}
	query := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s) ENGINE = MergeTree ORDER BY tuple()",
		l.table,
		strings.Join(defs, ", "),
	)
	zap.S().Debugw("sending query to the database", "query", query)
	return l.conn.Exec(ctx, query)
}

func (l *Loader) InsertTable(ctx context.Context, t *pipeline.Table) error {
	query := fmt.Sprintf("INSERT INTO %s", l.table)
	zap.S().Debugw("inserting a batch to the database", "query", query, "rows", t.NumRows())
	batch, err := l.conn.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	for _, row := range t.Rows {
		values := make([]any, len(row))
		for i, v := range row {
			values[i] = v
		}
		if err := batch.Append(values...); err != nil {
			return err
		}
	}
	return batch.Send()
}

// Run loads the latest cleaned artifact into the warehouse.
func Run(ctx context.Context, cfg *config.Config) error {
	path, err := analytics.LatestCleanedFile(cfg.Transform.ProcessedDir)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: opening cleaned file: %v", pipeline.ErrConfiguration, err)
	}
	table, err := pipeline.ParseCSVTable(file)
	_ = file.Close()
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	loader, version, err := New(cfg.Warehouse)
	if err != nil {
		return err
	}
	defer loader.Close()
	zap.S().Infow(
		"created a new clickhouse client",
		"version", fmt.Sprintf("%v", version.Version),
	)

	if err := loader.InitTable(ctx, table.Columns); err != nil {
		return fmt.Errorf("initializing table %s: %w", cfg.Warehouse.Table, err)
	}
	if err := loader.InsertTable(ctx, table); err != nil {
		return fmt.Errorf("inserting cleaned rows: %w", err)
	}
	zap.S().Infow("cleaned dataset loaded", "table", cfg.Warehouse.Table, "rows", table.NumRows())
	return nil
}

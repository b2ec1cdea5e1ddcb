// Package writers persists trading-stream activity of a run to parquet files.
package writers

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/rxtech-lab/argo-alpaca/pkg/errors"
)

// TradeUpdatesWriter buffers trade updates in an in-memory DuckDB table and
// exports them to a parquet file on Flush.
type TradeUpdatesWriter struct {
	db         *sql.DB
	sq         squirrel.StatementBuilderType
	outputPath string
	mu         sync.Mutex
}

// NewTradeUpdatesWriter creates a writer for the parquet file at outputPath.
func NewTradeUpdatesWriter(outputPath string) *TradeUpdatesWriter {
	return &TradeUpdatesWriter{
		db:         nil,
		sq:         squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		outputPath: outputPath,
		mu:         sync.Mutex{},
	}
}

// Initialize opens the database. Rows already exported to outputPath are
// loaded back so a restarted run keeps appending to the same file.
func (w *TradeUpdatesWriter) Initialize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.outputPath), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeRepositoryInit, "failed to create output directory", err)
	}

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return errors.Wrap(errors.ErrCodeRepositoryInit, "failed to open DuckDB connection", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS trade_updates (
			update_id TEXT PRIMARY KEY,
			event TEXT,
			order_id TEXT,
			client_order_id TEXT,
			symbol TEXT,
			side TEXT,
			status TEXT,
			price DOUBLE,
			qty DOUBLE,
			timestamp TIMESTAMP
		)
	`)
	if err != nil {
		_ = db.Close()

		return errors.Wrap(errors.ErrCodeRepositoryInit, "failed to create trade_updates table", err)
	}

	if _, statErr := os.Stat(w.outputPath); statErr == nil {
		// a corrupt file is overwritten by the next export
		_, _ = db.Exec(fmt.Sprintf(`
			INSERT INTO trade_updates
			SELECT * FROM read_parquet('%s')
			ON CONFLICT (update_id) DO NOTHING
		`, w.outputPath))
	}

	w.db = db

	return nil
}

// updateID identifies one update. Fills carry an execution id; other events
// are keyed by order, event and timestamp.
func updateID(update types.TradeUpdate) string {
	if update.ExecutionID != "" {
		return update.ExecutionID
	}

	return update.Order.ID + ":" + update.Event + ":" + strconv.FormatInt(update.Timestamp.UnixNano(), 10)
}

func parseOptionalFloat(v string) sql.NullFloat64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return sql.NullFloat64{Float64: 0, Valid: false}
	}

	return sql.NullFloat64{Float64: f, Valid: true}
}

// Write stores one trade update. Re-delivered updates are ignored.
func (w *TradeUpdatesWriter) Write(update types.TradeUpdate) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.db == nil {
		return errors.New(errors.ErrCodePersistFailed, "writer not initialized")
	}

	query, args, err := w.sq.Insert("trade_updates").
		Columns("update_id", "event", "order_id", "client_order_id", "symbol", "side", "status", "price", "qty", "timestamp").
		Values(
			updateID(update),
			update.Event,
			update.Order.ID,
			update.Order.ClientOrderID,
			update.Order.Symbol,
			update.Order.Side,
			string(update.Order.Status),
			parseOptionalFloat(update.Price),
			parseOptionalFloat(update.Qty),
			update.Timestamp,
		).
		Suffix("ON CONFLICT (update_id) DO NOTHING").
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodePersistFailed, "failed to build insert", err)
	}

	if _, err := w.db.Exec(query, args...); err != nil {
		return errors.Wrap(errors.ErrCodePersistFailed, "failed to insert trade update", err)
	}

	return nil
}

// Flush exports every stored update to the parquet file.
func (w *TradeUpdatesWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.db == nil {
		return errors.New(errors.ErrCodePersistFailed, "writer not initialized")
	}

	_, err := w.db.Exec(fmt.Sprintf(`
		COPY (SELECT * FROM trade_updates ORDER BY timestamp ASC, update_id ASC)
		TO '%s' (FORMAT PARQUET)
	`, w.outputPath))
	if err != nil {
		return errors.Wrap(errors.ErrCodePersistFailed, "failed to export to parquet", err)
	}

	return nil
}

// GetOutputPath returns the parquet file path.
func (w *TradeUpdatesWriter) GetOutputPath() string {
	return w.outputPath
}

// Count returns the number of stored updates.
func (w *TradeUpdatesWriter) Count() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.db == nil {
		return 0, errors.New(errors.ErrCodeQueryFailed, "writer not initialized")
	}

	var count int
	if err := w.db.QueryRow("SELECT COUNT(*) FROM trade_updates").Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count trade updates", err)
	}

	return count, nil
}

// Close releases database resources.
func (w *TradeUpdatesWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.db == nil {
		return nil
	}

	err := w.db.Close()
	w.db = nil

	if err != nil {
		return errors.Wrap(errors.ErrCodePersistFailed, "failed to close database", err)
	}

	return nil
}

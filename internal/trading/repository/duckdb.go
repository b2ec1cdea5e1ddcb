package repository

import (
	"database/sql"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/rxtech-lab/argo-alpaca/pkg/errors"
	"go.uber.org/zap"
)

const ordersTable = "executor_orders"

// DuckDBRepository persists order records in DuckDB. The full record is kept as
// JSON next to the indexed columns.
type DuckDBRepository struct {
	db     *sql.DB
	sq     squirrel.StatementBuilderType
	logger *logger.Logger
	// mu serializes writes so the stale-mapping retraction and the upsert apply together.
	mu sync.Mutex
}

// NewDuckDBRepository opens the database at path. An empty path or ":memory:"
// opens an in-memory database.
func NewDuckDBRepository(path string, log *logger.Logger) (*DuckDBRepository, error) {
	dsn := path
	if path == ":memory:" {
		dsn = ""
	}

	if dsn != "" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, errors.Wrap(errors.ErrCodeRepositoryInit, "failed to create data directory", err)
		}
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRepositoryInit, "failed to open database", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()

		return nil, errors.Wrap(errors.ErrCodeRepositoryInit, "failed to connect to database", err)
	}

	repo := &DuckDBRepository{
		db:     db,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		logger: log.Named("repository"),
		mu:     sync.Mutex{},
	}

	if err := repo.initialize(); err != nil {
		db.Close()

		return nil, err
	}

	return repo, nil
}

func (r *DuckDBRepository) initialize() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS ` + ordersTable + ` (
			id TEXT PRIMARY KEY,
			broker_order_id TEXT,
			idempotency_key TEXT,
			symbol TEXT,
			status TEXT,
			retry_count INTEGER,
			created_at TIMESTAMP,
			updated_at TIMESTAMP,
			data TEXT
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeRepositoryInit, "failed to create orders table", err)
	}

	return nil
}

// Save implements OrderRepository.
func (r *DuckDBRepository) Save(state types.ExecutorOrderState) error {
	if state.ID == "" {
		return errors.New(errors.ErrCodeMissingParameter, "order id is required")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(errors.ErrCodePersistFailed, "failed to encode order", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrCodePersistFailed, "failed to begin transaction", err)
	}

	defer func() { _ = tx.Rollback() }()

	var brokerID any
	if state.BrokerOrderID != "" {
		brokerID = state.BrokerOrderID

		retract := r.sq.
			Update(ordersTable).
			Set("broker_order_id", nil).
			Where(squirrel.And{
				squirrel.Eq{"broker_order_id": state.BrokerOrderID},
				squirrel.NotEq{"id": state.ID},
			}).
			RunWith(tx)

		res, err := retract.Exec()
		if err != nil {
			return errors.Wrap(errors.ErrCodePersistFailed, "failed to retract stale broker mapping", err)
		}

		if n, _ := res.RowsAffected(); n > 0 {
			r.logger.Warn("retracted stale broker mapping",
				zap.String("broker_order_id", state.BrokerOrderID),
				zap.String("order_id", state.ID),
			)
		}
	}

	upsert := r.sq.
		Insert(ordersTable).
		Columns("id", "broker_order_id", "idempotency_key", "symbol", "status", "retry_count", "created_at", "updated_at", "data").
		Values(state.ID, brokerID, state.IdempotencyKey, state.Request.Symbol, string(state.Status),
			state.RetryCount, state.CreatedAt, state.UpdatedAt, string(data)).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			broker_order_id = excluded.broker_order_id,
			idempotency_key = excluded.idempotency_key,
			status = excluded.status,
			retry_count = excluded.retry_count,
			updated_at = excluded.updated_at,
			data = excluded.data`).
		RunWith(tx)

	if _, err := upsert.Exec(); err != nil {
		return errors.Wrap(errors.ErrCodePersistFailed, "failed to upsert order", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodePersistFailed, "failed to commit order", err)
	}

	return nil
}

// Get implements OrderRepository.
func (r *DuckDBRepository) Get(id string) (types.ExecutorOrderState, error) {
	return r.getOne(squirrel.Eq{"id": id}, "id", id)
}

// GetByBrokerID implements OrderRepository.
func (r *DuckDBRepository) GetByBrokerID(brokerOrderID string) (types.ExecutorOrderState, error) {
	return r.getOne(squirrel.Eq{"broker_order_id": brokerOrderID}, "broker id", brokerOrderID)
}

func (r *DuckDBRepository) getOne(where squirrel.Sqlizer, kind, key string) (types.ExecutorOrderState, error) {
	row := r.sq.
		Select("broker_order_id", "data").
		From(ordersTable).
		Where(where).
		Limit(1).
		RunWith(r.db).
		QueryRow()

	state, err := scanState(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return types.ExecutorOrderState{}, notFound(kind, key)
	}

	if err != nil {
		return types.ExecutorOrderState{}, err
	}

	return state, nil
}

// List implements OrderRepository.
func (r *DuckDBRepository) List() ([]types.ExecutorOrderState, error) {
	rows, err := r.sq.
		Select("broker_order_id", "data").
		From(ordersTable).
		OrderBy("created_at ASC", "id ASC").
		RunWith(r.db).
		Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query orders", err)
	}
	defer rows.Close()

	var out []types.ExecutorOrderState

	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, state)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to iterate orders", err)
	}

	return out, nil
}

// Count returns the number of stored records.
func (r *DuckDBRepository) Count() (int, error) {
	var count int

	err := r.sq.Select("COUNT(*)").From(ordersTable).RunWith(r.db).QueryRow().Scan(&count)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count orders", err)
	}

	return count, nil
}

// Close implements OrderRepository.
func (r *DuckDBRepository) Close() error {
	if r.db == nil {
		return nil
	}

	if err := r.db.Close(); err != nil {
		return errors.Wrap(errors.ErrCodePersistFailed, "failed to close database", err)
	}

	r.db = nil

	return nil
}

func scanState(row squirrel.RowScanner) (types.ExecutorOrderState, error) {
	var (
		brokerID sql.NullString
		data     string
	)

	if err := row.Scan(&brokerID, &data); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return types.ExecutorOrderState{}, err
		}

		return types.ExecutorOrderState{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan order", err)
	}

	var state types.ExecutorOrderState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return types.ExecutorOrderState{}, errors.Wrap(errors.ErrCodeRecordCorrupted, "failed to decode order", err)
	}

	// the column is authoritative; a retracted mapping is not rewritten into the JSON
	state.BrokerOrderID = brokerID.String

	return state, nil
}

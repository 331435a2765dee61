// pkg/loader/loader.go

// Package loader copies validated chunks into Postgres. One chunk is one
// transaction: the COPY either lands whole or not at all, which is what
// makes re-running a failed table safe.
package loader

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/danalec/CNPJ-Receita-Federal/pkg/model"
)

// ChunkLoader is the loading contract the pipeline depends on.
type ChunkLoader interface {
	LoadChunk(ctx context.Context, cfg *model.TableConfig, chunk *model.Chunk) (int64, error)
	VerifyRowCount(ctx context.Context, table string, expected int64) (bool, int64, error)
	TruncateTable(ctx context.Context, table string) error
}

// BulkLoader loads chunks through the COPY protocol with an explicit column
// list, so the destination table may carry extra columns (serial keys,
// load timestamps) without breaking the positional mapping.
type BulkLoader struct {
	db      *sqlx.DB
	logger  *zap.Logger
	timeout time.Duration
}

// NewBulkLoader creates a loader over the destination database.
func NewBulkLoader(db *sqlx.DB, logger *zap.Logger) *BulkLoader {
	return &BulkLoader{
		db:      db,
		logger:  logger,
		timeout: 10 * time.Minute,
	}
}

// WithTimeout sets the per-chunk transaction timeout.
func (l *BulkLoader) WithTimeout(timeout time.Duration) *BulkLoader {
	l.timeout = timeout
	return l
}

// LoadChunk copies one chunk into its destination table and returns the row
// count written. Any failure rolls the whole chunk back.
func (l *BulkLoader) LoadChunk(ctx context.Context, cfg *model.TableConfig, chunk *model.Chunk) (int64, error) {
	if chunk.RowCount() == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction for %s: %w", cfg.TableName, err)
	}

	n, err := copyRows(ctx, tx, cfg.TableName, chunk)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("copying chunk %d into %s: %w", chunk.Index, cfg.TableName, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing chunk %d into %s: %w", chunk.Index, cfg.TableName, err)
	}

	l.logger.Debug("Loaded chunk",
		zap.String("table", cfg.TableName),
		zap.Int("chunk", chunk.Index),
		zap.Int64("rows", n),
		zap.Duration("elapsed", time.Since(start)))
	return n, nil
}

func copyRows(ctx context.Context, tx *sql.Tx, table string, chunk *model.Chunk) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, chunk.Columns...))
	if err != nil {
		return 0, fmt.Errorf("preparing copy: %w", err)
	}

	args := make([]any, len(chunk.Columns))
	for i, row := range chunk.Rows {
		for j, v := range row {
			if v == nil {
				args[j] = nil
			} else {
				args[j] = *v
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			stmt.Close()
			return 0, fmt.Errorf("buffering row %d: %w", i, err)
		}
	}
	// The empty exec flushes the COPY buffer to the server.
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return 0, fmt.Errorf("flushing copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return 0, fmt.Errorf("closing copy: %w", err)
	}
	return int64(chunk.RowCount()), nil
}

// VerifyRowCount checks the destination table holds at least the expected
// rows. A destination can legitimately hold more after repeated runs.
func (l *BulkLoader) VerifyRowCount(ctx context.Context, table string, expected int64) (bool, int64, error) {
	var actual int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if err := l.db.GetContext(ctx, &actual, q); err != nil {
		return false, 0, fmt.Errorf("counting rows of %s: %w", table, err)
	}
	ok := actual >= expected
	if !ok {
		l.logger.Warn("Row count verification failed",
			zap.String("table", table),
			zap.Int64("expected", expected),
			zap.Int64("actual", actual))
	}
	return ok, actual, nil
}

// TruncateTable empties a destination table before a full reload.
func (l *BulkLoader) TruncateTable(ctx context.Context, table string) error {
	q := fmt.Sprintf("TRUNCATE TABLE %s", table)
	if _, err := l.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("truncating %s: %w", table, err)
	}
	l.logger.Info("Truncated table", zap.String("table", table))
	return nil
}

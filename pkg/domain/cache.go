// pkg/domain/cache.go

// Package domain caches the reference-code sets used for referential
// validation. Sets are loaded lazily from the destination database, one
// query per (table, column), and held for the rest of the run.
package domain

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Cache holds the loaded domain sets. Safe for concurrent readers; loads
// are serialized per key.
type Cache struct {
	db     *sqlx.DB
	logger *zap.Logger

	mu   sync.Mutex
	sets map[string]map[string]struct{}
}

// NewCache creates an empty cache over the destination database.
func NewCache(db *sqlx.DB, logger *zap.Logger) *Cache {
	return &Cache{
		db:     db,
		logger: logger,
		sets:   make(map[string]map[string]struct{}),
	}
}

// Reset drops every loaded set. Called at the start of each run so stale
// domains from a previous run can never leak into validation.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets = make(map[string]map[string]struct{})
	if c.logger != nil {
		c.logger.Debug("Reset domain cache")
	}
}

func key(table, column string) string {
	return table + "." + column
}

// EnsureLoaded loads the (table, column) set if it is not cached yet and
// errors when the set is empty: validating facts against a domain table
// that has not been populated would quarantine every row. How callers
// treat that error is the validation mode's decision.
func (c *Cache) EnsureLoaded(ctx context.Context, table, column string) error {
	set, err := c.Domain(ctx, table, column)
	if err != nil {
		return err
	}
	if len(set) == 0 {
		return fmt.Errorf("domain %s is empty; load %s before its dependents", key(table, column), table)
	}
	return nil
}

// Domain returns the cached value set for (table, column), loading it on
// first use. An empty set is returned as-is and never cached, since the
// table may still be loaded later in the same run. The returned map is
// shared; callers must not mutate it.
func (c *Cache) Domain(ctx context.Context, table, column string) (map[string]struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(table, column)
	if set, ok := c.sets[k]; ok {
		return set, nil
	}

	set, err := c.load(ctx, table, column)
	if err != nil {
		return nil, err
	}
	if len(set) > 0 {
		c.sets[k] = set
	}
	return set, nil
}

func (c *Cache) load(ctx context.Context, table, column string) (map[string]struct{}, error) {
	start := time.Now()
	q := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL", column, table, column)
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("loading domain %s.%s: %w", table, column, err)
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning domain %s.%s: %w", table, column, err)
		}
		if v.Valid {
			set[v.String] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating domain %s.%s: %w", table, column, err)
	}

	if c.logger != nil {
		c.logger.Info("Loaded domain set",
			zap.String("table", table),
			zap.String("column", column),
			zap.Int("values", len(set)),
			zap.Duration("elapsed", time.Since(start)))
	}
	return set, nil
}

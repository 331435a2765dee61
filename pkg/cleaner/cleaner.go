// pkg/cleaner/cleaner.go

// Package cleaner implements the per-entity-kind cleaning and auto-repair
// engine. Each kind has one variant behind a uniform clean contract; the
// dispatch table is built at startup, never through reflection. Every pass
// is idempotent: cleaning its own output changes nothing.
package cleaner

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/danalec/CNPJ-Receita-Federal/pkg/model"
)

// Level is the configured repair aggressiveness.
type Level int

const (
	// LevelNone passes chunks through untouched.
	LevelNone Level = iota
	// LevelBasic applies structural normalization only.
	LevelBasic
	// LevelAggressive adds format strictening, sample diff capture, and
	// geographic enrichment from the auxiliary lookups.
	LevelAggressive
)

// ParseLevel parses a configured repair level string.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "none":
		return LevelNone, nil
	case "basic":
		return LevelBasic, nil
	case "aggressive":
		return LevelAggressive, nil
	default:
		return LevelNone, fmt.Errorf("unknown repair level %q", s)
	}
}

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelBasic:
		return "basic"
	case LevelAggressive:
		return "aggressive"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Helpers carries the optional auxiliary lookups consumed in aggressive mode.
type Helpers struct {
	Geo *GeoIndex
}

// maxTelemetrySamples bounds sample diffs, invalid-identifier examples, and
// E.164 examples per column.
const maxTelemetrySamples = 5

type cleanFunc func(p *pass) error

// Engine cleans chunks according to the configured level. The pipeline never
// shares an engine across goroutines.
type Engine struct {
	level    Level
	helpers  *Helpers
	logger   *zap.Logger
	variants map[string]cleanFunc
}

// NewEngine builds the engine and its kind→variant dispatch table.
func NewEngine(level Level, helpers *Helpers, logger *zap.Logger) *Engine {
	if helpers == nil {
		helpers = &Helpers{}
	}
	e := &Engine{
		level:   level,
		helpers: helpers,
		logger:  logger,
	}
	e.variants = map[string]cleanFunc{
		"empresas":         cleanEmpresas,
		"estabelecimentos": cleanEstabelecimentos,
		"socios":           cleanSocios,
		"simples":          cleanSimples,
	}
	return e
}

// Level returns the configured repair level.
func (e *Engine) Level() Level { return e.level }

// Clean mutates the chunk in place and returns the repair telemetry plus any
// named row masks (invalid_cnpj, malformed_array). At LevelNone the chunk is
// untouched and the telemetry carries only the null counts.
func (e *Engine) Clean(cfg *model.TableConfig, chunk *model.Chunk) (*model.RepairTelemetry, map[string][]bool, error) {
	tel := model.NewRepairTelemetry()
	masks := make(map[string][]bool)

	nullsBefore := make(map[string]int, len(chunk.Columns))
	for _, col := range chunk.Columns {
		nullsBefore[col] = chunk.NullCount(col)
	}

	if e.level != LevelNone {
		p := &pass{
			chunk:   chunk,
			cfg:     cfg,
			level:   e.level,
			helpers: e.helpers,
			tel:     tel,
			masks:   masks,
		}
		variant, ok := e.variants[cfg.Kind]
		if ok {
			if err := variant(p); err != nil {
				return nil, nil, fmt.Errorf("cleaning %s chunk %d: %w", cfg.Kind, chunk.Index, err)
			}
		} else {
			// Domain tables get structural normalization only.
			cleanPassthrough(p)
		}
	}

	for _, col := range chunk.Columns {
		after := chunk.NullCount(col)
		tel.NullsAfter[col] = after
		if d := after - nullsBefore[col]; d != 0 {
			tel.NullDeltas[col] = d
		}
	}

	if e.logger != nil {
		e.logger.Debug("Cleaned chunk",
			zap.String("kind", cfg.Kind),
			zap.Int("chunk", chunk.Index),
			zap.Int("rows", chunk.RowCount()),
			zap.String("level", e.level.String()))
	}
	return tel, masks, nil
}

// pass is the per-chunk working state shared by a variant's operations.
type pass struct {
	chunk   *model.Chunk
	cfg     *model.TableConfig
	level   Level
	helpers *Helpers
	tel     *model.RepairTelemetry
	masks   map[string][]bool
}

// apply runs fn over every non-null value of a column, skipping columns the
// chunk does not carry. A nil return nulls the value. Changed counts and
// before/after samples are captured in aggressive mode only.
func (p *pass) apply(column string, fn func(string) *string) {
	idx := p.chunk.ColumnIndex(column)
	if idx < 0 {
		return
	}
	for _, row := range p.chunk.Rows {
		v := row[idx]
		if v == nil {
			continue
		}
		nv := fn(*v)
		row[idx] = nv
		if p.level != LevelAggressive || nv == nil || *nv == *v {
			continue
		}
		p.tel.ChangedCounts[column]++
		if diffs := p.tel.SampleDiffs[column]; len(diffs) < maxTelemetrySamples {
			p.tel.SampleDiffs[column] = append(diffs, model.SampleDiff{Before: *v, After: *nv})
		}
	}
}

// mask returns (allocating if needed) the named row mask for this chunk.
func (p *pass) mask(name string) []bool {
	m, ok := p.masks[name]
	if !ok {
		m = make([]bool, p.chunk.RowCount())
		p.masks[name] = m
	}
	return m
}

// cleanPassthrough trims free text and collapses empties to null on every
// column. Used for the small domain tables.
func cleanPassthrough(p *pass) {
	for _, col := range p.chunk.Columns {
		p.apply(col, trimToNull)
	}
}

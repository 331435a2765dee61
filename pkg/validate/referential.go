// pkg/validate/referential.go

// Package validate holds the row-level integrity checks that run between
// cleaning and loading: critical-field presence, referential validation of
// reference codes, and the chunk-level quality gate.
package validate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/danalec/CNPJ-Receita-Federal/pkg/model"
)

// DomainSource supplies reference-code sets. Satisfied by domain.Cache.
type DomainSource interface {
	Domain(ctx context.Context, table, column string) (map[string]struct{}, error)
}

// Mode selects how referential violations are handled.
type Mode int

const (
	// ModeRelaxed nulls the violating value, keeps the row, and reports it
	// for quarantine.
	ModeRelaxed Mode = iota
	// ModeStrict aborts the table on the first violating column.
	ModeStrict
)

// ParseMode parses a configured validation mode string.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "relaxed":
		return ModeRelaxed, nil
	case "strict":
		return ModeStrict, nil
	default:
		return ModeRelaxed, fmt.Errorf("unknown validation mode %q", s)
	}
}

func (m Mode) String() string {
	if m == ModeStrict {
		return "strict"
	}
	return "relaxed"
}

// maxViolationSamples bounds the sample values attached to a strict-mode
// failure.
const maxViolationSamples = 5

// ValidationError is the strict-mode failure for one referencing column.
// The repair telemetry of the offending chunk rides along so the operator
// sees what cleaning did before the violation was detected.
type ValidationError struct {
	Table     string
	Column    string
	Count     int
	Samples   []string
	Telemetry *model.RepairTelemetry
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("referential validation failed: %s.%s has %d unknown values (samples: %v)",
		e.Table, e.Column, e.Count, e.Samples)
}

// AttachTelemetry sets the chunk telemetry on the error and returns it.
func (e *ValidationError) AttachTelemetry(tel *model.RepairTelemetry) *ValidationError {
	e.Telemetry = tel
	return e
}

// Result is the relaxed-mode outcome of validating one chunk.
type Result struct {
	Mask   []bool     // rows with at least one nulled reference
	Fields [][]string // violated columns per row, mask-aligned
	Counts map[string]int
}

// Violated reports whether any row was touched.
func (r *Result) Violated() bool {
	for _, v := range r.Mask {
		if v {
			return true
		}
	}
	return false
}

// Validator checks reference-code columns against their domain sets.
type Validator struct {
	mode    Mode
	domains DomainSource
	logger  *zap.Logger
}

// NewValidator builds a validator over a domain source.
func NewValidator(mode Mode, domains DomainSource, logger *zap.Logger) *Validator {
	return &Validator{mode: mode, domains: domains, logger: logger}
}

// Mode returns the configured validation mode.
func (v *Validator) Mode() Mode { return v.mode }

// CheckCritical returns a mask of rows with a null critical field, and the
// offending columns per row. Such rows can never be loaded.
func CheckCritical(cfg *model.TableConfig, chunk *model.Chunk) ([]bool, [][]string) {
	mask := make([]bool, chunk.RowCount())
	fields := make([][]string, chunk.RowCount())
	for _, col := range cfg.CriticalFields {
		idx := chunk.ColumnIndex(col)
		if idx < 0 {
			continue
		}
		for i, row := range chunk.Rows {
			if row[idx] == nil {
				mask[i] = true
				fields[i] = append(fields[i], col)
			}
		}
	}
	return mask, fields
}

// Validate checks every declared foreign key of the chunk. In strict mode
// the first violating column yields a *ValidationError and the chunk is left
// as it was. In relaxed mode violating values are nulled in place and the
// result reports which rows were touched.
func (v *Validator) Validate(ctx context.Context, cfg *model.TableConfig, chunk *model.Chunk) (*Result, error) {
	res := &Result{
		Mask:   make([]bool, chunk.RowCount()),
		Fields: make([][]string, chunk.RowCount()),
		Counts: make(map[string]int),
	}

	for _, fk := range cfg.ForeignKeys {
		idx := chunk.ColumnIndex(fk.Column)
		if idx < 0 {
			continue
		}
		member, ok, err := v.membership(ctx, fk)
		if err != nil {
			return nil, err
		}
		if !ok {
			// The domain table has no rows. Strict mode treats the ordering
			// violation as fatal; relaxed mode degrades to unchecked writes
			// for this column.
			if v.mode == ModeStrict {
				return nil, fmt.Errorf("domain %s.%s is empty; load %s before %s",
					fk.DomainTable, fk.DomainColumn, fk.DomainTable, cfg.TableName)
			}
			if v.logger != nil {
				v.logger.Warn("Domain table empty, skipping referential check",
					zap.String("table", cfg.TableName),
					zap.String("column", fk.Column),
					zap.String("domain", fk.DomainTable))
			}
			continue
		}

		if v.mode == ModeStrict {
			count := 0
			var samples []string
			for _, row := range chunk.Rows {
				val := row[idx]
				if val == nil || member(*val) {
					continue
				}
				count++
				if len(samples) < maxViolationSamples {
					samples = append(samples, *val)
				}
			}
			if count > 0 {
				return nil, &ValidationError{
					Table:   cfg.TableName,
					Column:  fk.Column,
					Count:   count,
					Samples: samples,
				}
			}
			continue
		}

		for i, row := range chunk.Rows {
			val := row[idx]
			if val == nil || member(*val) {
				continue
			}
			row[idx] = nil
			res.Mask[i] = true
			res.Fields[i] = append(res.Fields[i], fk.Column)
			res.Counts[fk.Column]++
		}
	}

	if v.logger != nil && v.mode == ModeRelaxed && res.Violated() {
		v.logger.Warn("Nulled unknown reference codes",
			zap.String("table", cfg.TableName),
			zap.Int("chunk", chunk.Index),
			zap.Any("columns", res.Counts))
	}
	return res, nil
}

// membership resolves a foreign key to a membership test. A foreign key
// without a domain table means the built-in federative-unit set. The second
// return is false when the domain set exists but holds no values.
func (v *Validator) membership(ctx context.Context, fk model.ForeignKey) (func(string) bool, bool, error) {
	if fk.DomainTable == "" {
		return model.ValidUF, true, nil
	}
	set, err := v.domains.Domain(ctx, fk.DomainTable, fk.DomainColumn)
	if err != nil {
		return nil, false, fmt.Errorf("resolving domain for %s: %w", fk.Column, err)
	}
	if len(set) == 0 {
		return nil, false, nil
	}
	return func(s string) bool {
		_, ok := set[s]
		return ok
	}, true, nil
}

// pkg/validate/gate.go
package validate

import (
	"fmt"

	"github.com/danalec/CNPJ-Receita-Federal/pkg/model"
)

// Gate is the chunk-level quality gate. A chunk where cleaning changed or
// nulled too large a share of any column is assumed to be structurally
// broken input and is quarantined whole instead of loaded.
type Gate struct {
	// MinRows is the smallest chunk the gate judges. Smaller chunks always
	// pass; ratios over a handful of rows are noise.
	MinRows int
	// MaxChangedRatio is the per-column ceiling on changed rows / total rows.
	MaxChangedRatio float64
	// MaxNullDeltaRatio is the per-column ceiling on newly nulled rows /
	// total rows.
	MaxNullDeltaRatio float64
}

// DefaultGate matches the shipped configuration defaults.
func DefaultGate() Gate {
	return Gate{MinRows: 100, MaxChangedRatio: 0.5, MaxNullDeltaRatio: 0.3}
}

// Decision is the gate's verdict for one chunk. It serializes into the
// chunk's telemetry line.
type Decision struct {
	Pass           bool    `json:"pass"`
	Column         string  `json:"column,omitempty"` // worst offending column when failing
	ChangedRatio   float64 `json:"changed_ratio,omitempty"`
	NullDeltaRatio float64 `json:"null_delta_ratio,omitempty"`
}

// Detail renders the decision for a quarantine record.
func (d Decision) Detail() map[string]any {
	return map[string]any{
		"column":           d.Column,
		"changed_ratio":    d.ChangedRatio,
		"null_delta_ratio": d.NullDeltaRatio,
	}
}

func (d Decision) String() string {
	if d.Pass {
		return "pass"
	}
	return fmt.Sprintf("fail on %s (changed %.3f, null delta %.3f)",
		d.Column, d.ChangedRatio, d.NullDeltaRatio)
}

// Evaluate judges one chunk's telemetry. Only positive null deltas count;
// repairs that fill values in do not trip the gate.
func (g Gate) Evaluate(rows int, tel *model.RepairTelemetry) Decision {
	if rows < g.MinRows || tel == nil {
		return Decision{Pass: true}
	}

	d := Decision{Pass: true}
	n := float64(rows)
	for col, changed := range tel.ChangedCounts {
		r := float64(changed) / n
		if r > g.MaxChangedRatio && r > d.ChangedRatio {
			d.Pass = false
			d.Column = col
			d.ChangedRatio = r
		}
	}
	for col, delta := range tel.NullDeltas {
		if delta <= 0 {
			continue
		}
		r := float64(delta) / n
		if r > g.MaxNullDeltaRatio && r > d.NullDeltaRatio {
			d.Pass = false
			if r > d.ChangedRatio {
				d.Column = col
			}
			d.NullDeltaRatio = r
		}
	}
	return d
}

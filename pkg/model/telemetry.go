// pkg/model/telemetry.go
package model

import "time"

// SampleDiff is one before/after pair captured during aggressive repair.
type SampleDiff struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// Enrichment records a value inferred from an auxiliary lookup, with its
// provenance, so no repair is ever silent.
type Enrichment struct {
	Column string `json:"column"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

// RepairTelemetry is the per-chunk record of what the cleaning stage did.
// ChangedCounts and SampleDiffs are only populated in aggressive mode.
type RepairTelemetry struct {
	NullsAfter        map[string]int          `json:"nulls_after,omitempty"`
	NullDeltas        map[string]int          `json:"null_deltas,omitempty"`
	ChangedCounts     map[string]int          `json:"changed_counts,omitempty"`
	SampleDiffs       map[string][]SampleDiff `json:"sample_diffs,omitempty"`
	InvalidIDs        map[string]int          `json:"invalid_ids,omitempty"`
	InvalidIDExamples map[string][]string     `json:"invalid_id_examples,omitempty"`
	E164Examples      map[string][]string     `json:"e164_examples,omitempty"`
	Enrichments       []Enrichment            `json:"enrichments,omitempty"`
}

// NewRepairTelemetry returns an empty telemetry record.
func NewRepairTelemetry() *RepairTelemetry {
	return &RepairTelemetry{
		NullsAfter:        make(map[string]int),
		NullDeltas:        make(map[string]int),
		ChangedCounts:     make(map[string]int),
		SampleDiffs:       make(map[string][]SampleDiff),
		InvalidIDs:        make(map[string]int),
		InvalidIDExamples: make(map[string][]string),
		E164Examples:      make(map[string][]string),
	}
}

// ColumnStats holds the observed per-column extremes for a run summary.
type ColumnStats struct {
	Min   string `json:"min,omitempty"`
	Max   string `json:"max,omitempty"`
	Nulls int64  `json:"nulls"`
}

// RunSummary aggregates all chunk telemetry for one table of one run. It is
// an append-only artifact, written once when the table finishes.
type RunSummary struct {
	Table             string                  `json:"table"`
	RunID             string                  `json:"run_id,omitempty"`
	RowsTotal         int64                   `json:"rows_total"`
	RowsSkipped       int64                   `json:"rows_skipped"`
	ChunksProcessed   int                     `json:"chunks_processed"`
	ChunksQuarantined int                     `json:"chunks_quarantined"`
	ChangedTotals     map[string]int64        `json:"changed_totals,omitempty"`
	NullDeltaTotals   map[string]int64        `json:"null_delta_totals,omitempty"`
	Columns           map[string]*ColumnStats `json:"columns,omitempty"`
	StartedAt         time.Time               `json:"started_at"`
	FinishedAt        time.Time               `json:"finished_at"`
}

// NewRunSummary initializes a summary for a table.
func NewRunSummary(table, runID string) *RunSummary {
	return &RunSummary{
		Table:           table,
		RunID:           runID,
		ChangedTotals:   make(map[string]int64),
		NullDeltaTotals: make(map[string]int64),
		Columns:         make(map[string]*ColumnStats),
		StartedAt:       time.Now().UTC(),
	}
}

// AddChunk folds one chunk's telemetry and observed values into the summary.
func (s *RunSummary) AddChunk(chunk *Chunk, tel *RepairTelemetry) {
	s.ChunksProcessed++
	s.RowsTotal += int64(chunk.RowCount())
	if tel == nil {
		return
	}
	for col, n := range tel.ChangedCounts {
		s.ChangedTotals[col] += int64(n)
	}
	for col, n := range tel.NullDeltas {
		s.NullDeltaTotals[col] += int64(n)
	}
	for i, col := range chunk.Columns {
		st := s.Columns[col]
		if st == nil {
			st = &ColumnStats{}
			s.Columns[col] = st
		}
		for _, row := range chunk.Rows {
			v := row[i]
			if v == nil {
				st.Nulls++
				continue
			}
			if st.Min == "" || *v < st.Min {
				st.Min = *v
			}
			if *v > st.Max {
				st.Max = *v
			}
		}
	}
}

// Complete stamps the summary end time.
func (s *RunSummary) Complete() {
	s.FinishedAt = time.Now().UTC()
}

// pkg/model/quarantine.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// Quarantine reasons form a closed taxonomy; sinks and tests match on these
// strings, so they never change casually.
const (
	ReasonCriticalFieldsNull = "critical_fields_null"
	ReasonInvalidCNPJ        = "invalid_cnpj"
	ReasonFKViolation        = "fk_violation"
	ReasonQualityGate        = "quality_gate"
	ReasonMalformedArray     = "malformed_array"
)

// QuarantineRecord is the durable trace of a row or chunk excluded or
// altered for integrity reasons. Append-only, never mutated.
type QuarantineRecord struct {
	ID         string            `json:"id"`
	Table      string            `json:"table"`
	Reason     string            `json:"reason"`
	Fields     []string          `json:"fields,omitempty"`
	ChunkIndex int               `json:"chunk_index"`
	RowIndex   *int              `json:"row_index,omitempty"`
	Row        map[string]string `json:"row,omitempty"`
	Detail     map[string]any    `json:"detail,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// NewQuarantineRecord builds a record for a whole chunk; attach row context
// with WithRow for row-level rejections.
func NewQuarantineRecord(table, reason string, chunkIndex int) QuarantineRecord {
	return QuarantineRecord{
		ID:         uuid.New().String(),
		Table:      table,
		Reason:     reason,
		ChunkIndex: chunkIndex,
		Timestamp:  time.Now().UTC(),
	}
}

// WithFields tags the offending column names.
func (r QuarantineRecord) WithFields(fields ...string) QuarantineRecord {
	r.Fields = append(r.Fields, fields...)
	return r
}

// WithRow attaches the row index and a snapshot of the row content.
func (r QuarantineRecord) WithRow(rowIndex int, snapshot map[string]string) QuarantineRecord {
	r.RowIndex = &rowIndex
	r.Row = snapshot
	return r
}

// WithDetail attaches free-form context, such as gate ratios.
func (r QuarantineRecord) WithDetail(key string, value any) QuarantineRecord {
	if r.Detail == nil {
		r.Detail = make(map[string]any)
	}
	r.Detail[key] = value
	return r
}

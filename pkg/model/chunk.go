// pkg/model/chunk.go
package model

// Chunk is a bounded batch of rows sharing one schema, the unit of cleaning,
// validation, and loading. Values are nullable strings: a nil entry is a SQL
// NULL. Chunks never share transactional scope with each other.
type Chunk struct {
	Kind    string
	Index   int // zero-based position within the source file
	Columns []string
	Rows    [][]*string
}

// NewChunk creates an empty chunk for the given kind and column order.
func NewChunk(kind string, index int, columns []string) *Chunk {
	return &Chunk{
		Kind:    kind,
		Index:   index,
		Columns: columns,
		Rows:    make([][]*string, 0),
	}
}

// ColumnIndex returns the position of a column, or -1 when absent.
func (c *Chunk) ColumnIndex(name string) int {
	for i, col := range c.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// RowCount returns the number of rows in the chunk.
func (c *Chunk) RowCount() int {
	return len(c.Rows)
}

// Value returns the value at (row, column name); nil means NULL or an absent
// column.
func (c *Chunk) Value(row int, column string) *string {
	idx := c.ColumnIndex(column)
	if idx < 0 || row < 0 || row >= len(c.Rows) {
		return nil
	}
	return c.Rows[row][idx]
}

// SetValue sets the value at (row, column name). Absent columns are ignored.
func (c *Chunk) SetValue(row int, column string, v *string) {
	idx := c.ColumnIndex(column)
	if idx < 0 || row < 0 || row >= len(c.Rows) {
		return
	}
	c.Rows[row][idx] = v
}

// NullCount returns how many rows hold NULL in the named column.
func (c *Chunk) NullCount(column string) int {
	idx := c.ColumnIndex(column)
	if idx < 0 {
		return 0
	}
	n := 0
	for _, row := range c.Rows {
		if row[idx] == nil {
			n++
		}
	}
	return n
}

// RowSnapshot returns a column→value map for one row, suitable for embedding
// in a quarantine record. NULLs are omitted.
func (c *Chunk) RowSnapshot(row int) map[string]string {
	snap := make(map[string]string, len(c.Columns))
	if row < 0 || row >= len(c.Rows) {
		return snap
	}
	for i, col := range c.Columns {
		if v := c.Rows[row][i]; v != nil {
			snap[col] = *v
		}
	}
	return snap
}

// Filter keeps only rows where keep[i] is true. The mask must be row-aligned.
// Filtering everything away leaves a valid empty chunk.
func (c *Chunk) Filter(keep []bool) {
	if len(keep) != len(c.Rows) {
		return
	}
	kept := c.Rows[:0]
	for i, row := range c.Rows {
		if keep[i] {
			kept = append(kept, row)
		}
	}
	c.Rows = kept
}

// Clone returns a deep copy of the chunk. Cleaning operates on copies so a
// failed chunk can still be snapshotted as it arrived.
func (c *Chunk) Clone() *Chunk {
	out := &Chunk{
		Kind:    c.Kind,
		Index:   c.Index,
		Columns: append([]string(nil), c.Columns...),
		Rows:    make([][]*string, len(c.Rows)),
	}
	for i, row := range c.Rows {
		nr := make([]*string, len(row))
		for j, v := range row {
			if v != nil {
				s := *v
				nr[j] = &s
			}
		}
		out.Rows[i] = nr
	}
	return out
}

// pkg/sink/sink.go

// Package sink persists the run's audit artifacts: quarantine records and
// repair telemetry as append-only JSONL partitioned by UTC date, per-table
// run summaries, and Prometheus metrics.
package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danalec/CNPJ-Receita-Federal/pkg/model"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/validate"
)

const (
	quarantineDir = "quarantine"
	telemetryDir  = "telemetry"
)

// Sink writes audit artifacts under a base directory. Safe for use from a
// single goroutine per table; the internal lock covers the file map.
type Sink struct {
	dir       string
	maxBytes  int64
	logger    *zap.Logger
	now       func() time.Time
	collector string
	client    *http.Client
	daily     bool

	mu    sync.Mutex
	files map[string]*rotatingFile
}

// NewSink prepares the artifact directories under dir. maxBytes bounds each
// JSONL part file; zero disables rotation.
func NewSink(dir string, maxBytes int64, logger *zap.Logger) (*Sink, error) {
	for _, sub := range []string{quarantineDir, telemetryDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating sink directory: %w", err)
		}
	}
	return &Sink{
		dir:      dir,
		maxBytes: maxBytes,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		client:   &http.Client{Timeout: 10 * time.Second},
		daily:    true,
		files:    make(map[string]*rotatingFile),
	}, nil
}

// WithDailyPartition toggles the UTC-date segment of JSONL file names.
// Disabled, every run appends to one stream per table.
func (s *Sink) WithDailyPartition(on bool) *Sink {
	s.daily = on
	return s
}

// WithCollector sets an endpoint that receives each run summary as a JSON
// POST. Delivery is best effort.
func (s *Sink) WithCollector(url string) *Sink {
	s.collector = url
	return s
}

// WriteQuarantine appends one quarantine record.
func (s *Sink) WriteQuarantine(rec model.QuarantineRecord) error {
	return s.appendJSON(quarantineDir, rec.Table, rec)
}

// telemetryEnvelope is one chunk's telemetry line.
type telemetryEnvelope struct {
	Table      string                 `json:"table"`
	ChunkIndex int                    `json:"chunk_index"`
	Timestamp  time.Time              `json:"timestamp"`
	Telemetry  *model.RepairTelemetry `json:"telemetry"`
	Gate       *validate.Decision     `json:"gate,omitempty"`
}

// WriteTelemetry appends one chunk's repair telemetry together with the
// quality-gate decision taken on it, so a quarantined chunk's line shows
// why it never reached the load.
func (s *Sink) WriteTelemetry(table string, chunkIndex int, tel *model.RepairTelemetry, gate *validate.Decision) error {
	return s.appendJSON(telemetryDir, table, telemetryEnvelope{
		Table:      table,
		ChunkIndex: chunkIndex,
		Timestamp:  s.now(),
		Telemetry:  tel,
		Gate:       gate,
	})
}

// WriteSummary writes the per-table run summary, replacing any previous one.
func (s *Sink) WriteSummary(sum *model.RunSummary) error {
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary for %s: %w", sum.Table, err)
	}
	path := filepath.Join(s.dir, telemetryDir, sum.Table+"_summary.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing summary for %s: %w", sum.Table, err)
	}
	if s.logger != nil {
		s.logger.Info("Wrote run summary",
			zap.String("table", sum.Table),
			zap.String("path", path),
			zap.Int64("rows", sum.RowsTotal))
	}
	s.pushSummary(data, sum.Table)
	return nil
}

// pushSummary POSTs a summary to the collector endpoint. Failures are
// logged, never fatal: the on-disk summary is the source of truth.
func (s *Sink) pushSummary(data []byte, table string) {
	if s.collector == "" {
		return
	}
	resp, err := s.client.Post(s.collector, "application/json", bytes.NewReader(data))
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("Failed to push summary",
				zap.String("table", table),
				zap.String("url", s.collector),
				zap.Error(err))
		}
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 && s.logger != nil {
		s.logger.Warn("Collector rejected summary",
			zap.String("table", table),
			zap.Int("status", resp.StatusCode))
	}
}

// Close flushes and closes every open part file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for k, rf := range s.files {
		if err := rf.close(); err != nil && first == nil {
			first = err
		}
		delete(s.files, k)
	}
	return first
}

func (s *Sink) appendJSON(sub, table string, v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s record: %w", sub, err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	date := ""
	if s.daily {
		date = s.now().Format("2006-01-02")
	}
	k := sub + "/" + table
	rf := s.files[k]
	if rf == nil || rf.date != date {
		if rf != nil {
			rf.close()
		}
		rf = &rotatingFile{
			dir:      filepath.Join(s.dir, sub),
			table:    table,
			date:     date,
			maxBytes: s.maxBytes,
		}
		s.files[k] = rf
	}
	return rf.write(line)
}

// rotatingFile is one table's JSONL stream for one UTC date. When a part
// exceeds maxBytes it is closed and the next numeric suffix is opened.
type rotatingFile struct {
	dir      string
	table    string
	date     string
	maxBytes int64
	seq      int
	f        *os.File
	size     int64
}

func (rf *rotatingFile) path() string {
	stem := rf.table
	if rf.date != "" {
		stem += "_" + rf.date
	}
	name := stem + ".jsonl"
	if rf.seq > 0 {
		name = fmt.Sprintf("%s_%d.jsonl", stem, rf.seq)
	}
	return filepath.Join(rf.dir, name)
}

func (rf *rotatingFile) write(line []byte) error {
	// Advance past any part that would overflow, including full parts left
	// behind by an earlier run on the same date.
	for {
		if err := rf.ensureOpen(); err != nil {
			return err
		}
		if rf.maxBytes <= 0 || rf.size == 0 || rf.size+int64(len(line)) <= rf.maxBytes {
			break
		}
		if err := rf.close(); err != nil {
			return err
		}
		rf.seq++
	}
	n, err := rf.f.Write(line)
	rf.size += int64(n)
	if err != nil {
		return fmt.Errorf("appending to %s: %w", rf.path(), err)
	}
	return nil
}

func (rf *rotatingFile) ensureOpen() error {
	if rf.f != nil {
		return nil
	}
	f, err := os.OpenFile(rf.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", rf.path(), err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat %s: %w", rf.path(), err)
	}
	rf.f = f
	rf.size = st.Size()
	return nil
}

func (rf *rotatingFile) close() error {
	if rf.f == nil {
		return nil
	}
	err := rf.f.Close()
	rf.f = nil
	rf.size = 0
	return err
}

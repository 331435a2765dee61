// pkg/pipeline/orchestrator.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/danalec/CNPJ-Receita-Federal/pkg/cleaner"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/loader"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/model"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/sink"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/validate"
)

// DomainStore is the domain-cache contract the orchestrator needs.
// Satisfied by domain.Cache.
type DomainStore interface {
	Reset()
	EnsureLoaded(ctx context.Context, table, column string) error
}

// OrchestratorConfig carries the orchestrator's collaborators and knobs.
type OrchestratorConfig struct {
	Engine    *cleaner.Engine
	Validator *validate.Validator
	Gate      validate.Gate
	Loader    loader.ChunkLoader
	Domains   DomainStore
	Sink      *sink.Sink
	Metrics   *sink.Metrics
	Reader    *ChunkReader
	Logger    *zap.Logger

	RunID           string
	DataDir         string
	SkipInvalidRows bool
	TruncateBefore  bool
}

// Orchestrator drives the clean, validate, and load path for every table of
// one run. Tables run strictly in declared order; the domain cache must see
// each dependency table fully loaded before its dependents validate.
type Orchestrator struct {
	cfg OrchestratorConfig
	log *zap.Logger
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		cfg: cfg,
		log: cfg.Logger.Named("orchestrator"),
	}
}

// RunLoad processes every selected table in declared order. The domain
// cache is reset exactly once so stale sets from an earlier run never feed
// validation.
func (o *Orchestrator) RunLoad(ctx context.Context, include, exclude []string) error {
	o.cfg.Domains.Reset()

	kinds := selectKinds(include, exclude)
	if len(kinds) == 0 {
		return NewConfigError("tables", "selection matches no configured table")
	}

	for _, kind := range kinds {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := o.LoadTable(ctx, kind); err != nil {
			return fmt.Errorf("loading %s: %w", kind, err)
		}
	}
	return nil
}

// LoadTable streams all of one table's source files through the pipeline
// and writes its run summary.
func (o *Orchestrator) LoadTable(ctx context.Context, kind string) (*model.RunSummary, error) {
	tcfg, err := model.ConfigFor(kind)
	if err != nil {
		return nil, err
	}

	if err := o.checkDomains(ctx, tcfg); err != nil {
		return nil, err
	}

	files, err := sourceFiles(o.cfg.DataDir, kind)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, NewConfigError("data_dir", fmt.Sprintf("no source files for %s under %s", kind, o.cfg.DataDir))
	}

	o.log.Info("Loading table",
		zap.String("table", tcfg.TableName),
		zap.Int("files", len(files)),
		zap.String("run", o.cfg.RunID))
	start := time.Now()

	if o.cfg.TruncateBefore {
		if err := o.cfg.Loader.TruncateTable(ctx, tcfg.TableName); err != nil {
			return nil, err
		}
	}

	sum := model.NewRunSummary(tcfg.TableName, o.cfg.RunID)
	for _, path := range files {
		malformed, err := o.cfg.Reader.ReadFile(tcfg, path, func(chunk *model.Chunk) error {
			return o.processChunk(ctx, tcfg, chunk, sum)
		})
		if err != nil {
			return nil, fmt.Errorf("processing %s: %w", path, err)
		}
		sum.RowsSkipped += int64(malformed)
	}
	sum.Complete()

	if err := o.cfg.Sink.WriteSummary(sum); err != nil {
		return nil, err
	}
	// Best effort; a short count is logged, not fatal, since earlier runs
	// may own part of the table.
	if _, _, err := o.cfg.Loader.VerifyRowCount(ctx, tcfg.TableName, sum.RowsTotal); err != nil {
		o.log.Warn("Row count verification failed", zap.String("table", tcfg.TableName), zap.Error(err))
	}

	o.log.Info("Finished table",
		zap.String("table", tcfg.TableName),
		zap.Int64("rows", sum.RowsTotal),
		zap.Int64("skipped", sum.RowsSkipped),
		zap.Int("chunks", sum.ChunksProcessed),
		zap.Int("quarantined_chunks", sum.ChunksQuarantined),
		zap.Duration("elapsed", time.Since(start)))
	return sum, nil
}

// checkDomains verifies every referenced domain table is populated before
// any chunk of a fact table is read. Strict validation treats a missing
// domain as a fatal ordering violation; relaxed validation logs a warning
// and degrades to unchecked writes for that column.
func (o *Orchestrator) checkDomains(ctx context.Context, tcfg *model.TableConfig) error {
	for _, fk := range tcfg.ForeignKeys {
		if fk.DomainTable == "" {
			continue
		}
		err := o.cfg.Domains.EnsureLoaded(ctx, fk.DomainTable, fk.DomainColumn)
		if err == nil {
			continue
		}
		if o.cfg.Validator.Mode() == validate.ModeStrict {
			return NewConfigError("load_order", err.Error())
		}
		o.log.Warn("Domain unavailable, writes go unchecked for this column",
			zap.String("table", tcfg.TableName),
			zap.String("column", fk.Column),
			zap.Error(err))
	}
	return nil
}

func (o *Orchestrator) processChunk(ctx context.Context, tcfg *model.TableConfig, chunk *model.Chunk, sum *model.RunSummary) error {
	tel, masks, err := o.cfg.Engine.Clean(tcfg, chunk)
	if err != nil {
		return err
	}
	decision := o.cfg.Gate.Evaluate(chunk.RowCount(), tel)
	if err := o.cfg.Sink.WriteTelemetry(tcfg.TableName, chunk.Index, tel, &decision); err != nil {
		return err
	}
	for _, n := range tel.ChangedCounts {
		o.cfg.Metrics.RepairedRows.WithLabelValues(tcfg.TableName).Add(float64(n))
	}

	if !decision.Pass {
		o.log.Warn("Quality gate quarantined chunk",
			zap.String("table", tcfg.TableName),
			zap.Int("chunk", chunk.Index),
			zap.String("decision", decision.String()))
		rec := model.NewQuarantineRecord(tcfg.TableName, model.ReasonQualityGate, chunk.Index)
		for k, v := range decision.Detail() {
			rec = rec.WithDetail(k, v)
		}
		if err := o.cfg.Sink.WriteQuarantine(rec); err != nil {
			return err
		}
		o.cfg.Metrics.ChunksQuarantined.WithLabelValues(tcfg.TableName).Inc()
		sum.ChunksQuarantined++
		sum.RowsSkipped += int64(chunk.RowCount())
		return nil
	}

	origIndex, err := o.quarantineRows(tcfg, chunk, masks, sum)
	if err != nil {
		return err
	}

	res, err := o.cfg.Validator.Validate(ctx, tcfg, chunk)
	if err != nil {
		var verr *validate.ValidationError
		if errors.As(err, &verr) {
			verr.AttachTelemetry(tel)
		}
		return err
	}
	for i, bad := range res.Mask {
		if !bad {
			continue
		}
		rec := model.NewQuarantineRecord(tcfg.TableName, model.ReasonFKViolation, chunk.Index).
			WithFields(res.Fields[i]...).
			WithRow(origIndex[i], chunk.RowSnapshot(i))
		if err := o.cfg.Sink.WriteQuarantine(rec); err != nil {
			return err
		}
		o.cfg.Metrics.RowsQuarantined.WithLabelValues(tcfg.TableName, model.ReasonFKViolation).Inc()
	}

	start := time.Now()
	n, err := o.cfg.Loader.LoadChunk(ctx, tcfg, chunk)
	if err != nil {
		return err
	}
	o.cfg.Metrics.LoadDuration.WithLabelValues(tcfg.TableName).Observe(time.Since(start).Seconds())
	o.cfg.Metrics.RowsLoaded.WithLabelValues(tcfg.TableName).Add(float64(n))
	o.cfg.Metrics.ChunksProcessed.WithLabelValues(tcfg.TableName).Inc()

	sum.AddChunk(chunk, tel)
	return nil
}

// quarantineRows records and drops rows the chunk cannot carry into the
// load: null critical fields always; checksum-invalid identifiers when the
// skip flag is set. Malformed array rows are recorded but kept, their value
// already nulled by cleaning. The returned slice maps each surviving row's
// position back to its index in the source chunk, so later quarantine
// records keep referring to source rows.
func (o *Orchestrator) quarantineRows(tcfg *model.TableConfig, chunk *model.Chunk, masks map[string][]bool, sum *model.RunSummary) ([]int, error) {
	keep := make([]bool, chunk.RowCount())
	for i := range keep {
		keep[i] = true
	}

	critMask, critFields := validate.CheckCritical(tcfg, chunk)
	for i, bad := range critMask {
		if !bad {
			continue
		}
		rec := model.NewQuarantineRecord(tcfg.TableName, model.ReasonCriticalFieldsNull, chunk.Index).
			WithFields(critFields[i]...).
			WithRow(i, chunk.RowSnapshot(i))
		if err := o.cfg.Sink.WriteQuarantine(rec); err != nil {
			return nil, err
		}
		o.cfg.Metrics.RowsQuarantined.WithLabelValues(tcfg.TableName, model.ReasonCriticalFieldsNull).Inc()
		keep[i] = false
	}

	for i, bad := range masks[model.ReasonInvalidCNPJ] {
		if !bad || !keep[i] {
			continue
		}
		rec := model.NewQuarantineRecord(tcfg.TableName, model.ReasonInvalidCNPJ, chunk.Index).
			WithRow(i, chunk.RowSnapshot(i))
		if err := o.cfg.Sink.WriteQuarantine(rec); err != nil {
			return nil, err
		}
		o.cfg.Metrics.RowsQuarantined.WithLabelValues(tcfg.TableName, model.ReasonInvalidCNPJ).Inc()
		if o.cfg.SkipInvalidRows {
			keep[i] = false
		}
	}

	for i, bad := range masks[model.ReasonMalformedArray] {
		if !bad || !keep[i] {
			continue
		}
		rec := model.NewQuarantineRecord(tcfg.TableName, model.ReasonMalformedArray, chunk.Index).
			WithFields("cnae_fiscal_secundaria").
			WithRow(i, chunk.RowSnapshot(i))
		if err := o.cfg.Sink.WriteQuarantine(rec); err != nil {
			return nil, err
		}
		o.cfg.Metrics.RowsQuarantined.WithLabelValues(tcfg.TableName, model.ReasonMalformedArray).Inc()
	}

	origIndex := make([]int, 0, len(keep))
	dropped := 0
	for i, k := range keep {
		if k {
			origIndex = append(origIndex, i)
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		chunk.Filter(keep)
		sum.RowsSkipped += int64(dropped)
	}
	return origIndex, nil
}

// selectKinds applies include and exclude filters to the declared order.
func selectKinds(include, exclude []string) []string {
	inc := toSet(include)
	exc := toSet(exclude)
	var out []string
	for _, kind := range model.LoadOrder {
		if len(inc) > 0 {
			if _, ok := inc[kind]; !ok {
				continue
			}
		}
		if _, ok := exc[kind]; ok {
			continue
		}
		out = append(out, kind)
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it != "" {
			set[it] = struct{}{}
		}
	}
	return set
}

// sourceFiles lists a kind's extracted files in stable order.
func sourceFiles(dataDir, kind string) ([]string, error) {
	dir := filepath.Join(dataDir, kind)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

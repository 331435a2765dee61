// cmd/cnpj-loader/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/danalec/CNPJ-Receita-Federal/pkg/cleaner"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/config"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/connector"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/domain"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/loader"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/pipeline"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/sink"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/validate"
)

func main() {
	run := flag.String("run", "", "release identifier (e.g. 2026-08); required")
	step := flag.String("step", "", "execute a single stage instead of the full sequence")
	force := flag.Bool("force", false, "re-run stages the state file marks completed")
	tables := flag.String("tables", "", "comma-separated table kinds to load (default: all)")
	exclude := flag.String("exclude", "", "comma-separated table kinds to skip")
	flag.Parse()

	if *run == "" {
		fmt.Fprintln(os.Stderr, "missing required -run release identifier")
		os.Exit(2)
	}

	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger setup failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := runPipeline(cfg, logger, *run, *step, *force, splitList(*tables), splitList(*exclude)); err != nil {
		logger.Error("Run failed",
			zap.String("run", *run),
			zap.String("category", pipeline.Categorize(err).String()),
			zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Run finished", zap.String("run", *run))
}

func runPipeline(cfg *config.Config, logger *zap.Logger, run, step string, force bool, include, exclude []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	var pg connector.DatabaseConnector
	pg, err := connector.NewPostgresConnector(ctx, cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer pg.Close()

	level, err := cleaner.ParseLevel(cfg.RepairLevel)
	if err != nil {
		return err
	}
	mode, err := validate.ParseMode(cfg.ValidationMode)
	if err != nil {
		return err
	}

	helpers := &cleaner.Helpers{}
	if cfg.GeoIndex != "" {
		geo, err := cleaner.LoadGeoIndex(cfg.GeoIndex)
		if err != nil {
			return err
		}
		logger.Info("Loaded geo index", zap.Int("prefixes", geo.Len()))
		helpers.Geo = geo
	}

	snk, err := sink.NewSink(cfg.OutputDir, cfg.SinkMaxBytes, logger)
	if err != nil {
		return err
	}
	snk = snk.WithDailyPartition(cfg.SinkDailyPartition)
	if cfg.CollectorURL != "" {
		snk = snk.WithCollector(cfg.CollectorURL)
	}
	defer snk.Close()
	metrics := sink.NewMetrics(logger)

	domains := domain.NewCache(pg.DB(), logger)
	orch := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		Engine:          cleaner.NewEngine(level, helpers, logger),
		Validator:       validate.NewValidator(mode, domains, logger),
		Gate:            validate.Gate{MinRows: cfg.GateMinRows, MaxChangedRatio: cfg.GateMaxChangedRatio, MaxNullDeltaRatio: cfg.GateMaxNullDeltaRatio},
		Loader:          loader.NewBulkLoader(pg.DB(), logger),
		Domains:         domains,
		Sink:            snk,
		Metrics:         metrics,
		Reader:          pipeline.NewChunkReader(cfg.ChunkSize, cfg.Encoding, logger),
		Logger:          logger,
		RunID:           run,
		DataDir:         cfg.DataDir,
		SkipInvalidRows: cfg.SkipInvalidRows,
		TruncateBefore:  cfg.TruncateBefore,
	})

	state, err := pipeline.LoadRunState(cfg.StateFile, logger)
	if err != nil {
		return err
	}
	runner := pipeline.NewRunner(state, logger)
	if err := runner.Register("check", func(context.Context) error { return pg.Validate() }); err != nil {
		return err
	}
	if err := runner.Register("load", func(ctx context.Context) error {
		return orch.RunLoad(ctx, include, exclude)
	}); err != nil {
		return err
	}

	if step != "" {
		err = runner.RunStage(ctx, run, step, force)
	} else {
		err = runner.Run(ctx, run, force)
	}

	// Exports are best effort and run even after a failed load so partial
	// progress is visible.
	metrics.LastRunTimestamp.SetToCurrentTime()
	metrics.WriteTextfile(cfg.MetricsTextfile)
	metrics.Push(cfg.PushgatewayURL, cfg.MetricsJob)
	return err
}

func buildLogger(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var zcfg zap.Config
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

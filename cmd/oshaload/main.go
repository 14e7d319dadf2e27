package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/config"
	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/logging"
	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/metrics"
	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/metrics/prompush"
	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/pipeline"
	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/schema"
	"github.com/SafetyMP/EHS-OSHA-DataReview/internal/storage"

	// register all backends with the storage factory.
	// config specifies which to use but we build in support for all of them.
	_ "github.com/SafetyMP/EHS-OSHA-DataReview/internal/storage/all"
)

// Exit codes: 0 = at least one table loaded, 2 = nothing to do (all tables
// already populated), 1 = fatal error.
const (
	exitOK        = 0
	exitFatal     = 1
	exitNothingTo = 2
)

// defaultFiles maps each target table to its extract file name inside the
// data directory.
var defaultFiles = map[string]string{
	"inspections": "osha_inspection.csv",
	"violations":  "osha_violation.csv",
	"accidents":   "osha_accident.csv",
}

// main is the entry point for the loader binary. It loads the run config,
// optionally initializes a metrics backend, and executes the requested
// tables' loads.
func main() {
	os.Exit(run())
}

func run() int {
	var (
		cfgPath     string
		tablesFlag  string
		nrows       int
		forceReload bool
		workers     int
		chunkSize   int
		statusOnly  bool
		reset       bool
		validate    bool
		logLevel    string
		logFormat   string
	)

	flag.StringVar(&cfgPath, "config", "", "run config JSON path (optional)")
	flag.StringVar(&tablesFlag, "tables", "all", "comma-separated tables to load (inspections,violations,accidents) or all")
	flag.IntVar(&nrows, "nrows", 0, "cap rows loaded per extract (sampling); 0 loads everything")
	flag.BoolVar(&forceReload, "force-reload", false, "empty populated tables and reload them")
	flag.IntVar(&workers, "workers", 0, "partition workers; 0 derives from the storage engine")
	flag.IntVar(&chunkSize, "chunk-size", 0, "rows per streamed chunk; 0 uses the default")
	flag.BoolVar(&statusOnly, "status", false, "print per-table row counts and exit")
	flag.BoolVar(&reset, "reset", false, "drop and recreate all tables, then exit")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	flag.Parse()

	log, err := logging.New(logLevel, logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return exitFatal
	}
	defer log.Sync()

	cfg, code := loadConfig(cfgPath, validate)
	if code >= 0 {
		return code
	}

	setupMetrics(cfg, log)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics flush failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := pipeline.New(storage.Config{
		Kind:      cfg.Storage.Kind,
		DSN:       cfg.Storage.DB.DSN,
		BatchSize: cfg.Runtime.BatchSize,
	}, log)
	loader.ChunkSize = pick(chunkSize, cfg.Runtime.ChunkSize)
	loader.Workers = pick(workers, cfg.Runtime.Workers)
	loader.NRows = nrows
	loader.ForceReload = forceReload

	switch {
	case reset:
		if err := loader.Reset(ctx); err != nil {
			log.Error("reset failed", zap.Error(err))
			return exitFatal
		}
		log.Info("all tables dropped and recreated")
		return exitOK
	case statusOnly:
		return printStatus(ctx, loader)
	}

	sources, err := resolveSources(cfg, tablesFlag)
	if err != nil {
		log.Error("invalid table selection", zap.Error(err))
		return exitFatal
	}

	start := time.Now()
	var loaded, skipped int
	for _, src := range sources {
		rep, err := loader.LoadTable(ctx, src)
		if err != nil {
			log.Error("load failed",
				zap.String("table", src.Table.Name),
				zap.Int64("loaded_before_failure", rep.Loaded),
				zap.Error(err))
			return exitFatal
		}
		if rep.SkippedExisting {
			skipped++
			continue
		}
		loaded++
	}

	log.Info("run complete",
		zap.Int("tables_loaded", loaded),
		zap.Int("tables_skipped", skipped),
		zap.Duration("elapsed", time.Since(start).Truncate(time.Millisecond)))

	if loaded == 0 {
		return exitNothingTo
	}
	return exitOK
}

// loadConfig reads and validates the run config. The second return is an
// exit code to terminate with, or -1 to continue.
func loadConfig(path string, validateOnly bool) (config.Config, int) {
	var cfg config.Config
	var err error
	if path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return cfg, exitFatal
		}
	} else {
		cfg.ApplyDefaults()
	}

	hasError := false
	for _, iss := range config.Validate(cfg) {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		return cfg, exitFatal
	}
	if validateOnly {
		fmt.Println("configuration is valid")
		return cfg, exitOK
	}
	return cfg, -1
}

// setupMetrics installs the configured metrics backend; metrics stay no-op
// when none is configured or setup fails.
func setupMetrics(cfg config.Config, log *zap.Logger) {
	if cfg.Metrics.Kind != "prompush" {
		return
	}
	gw := cfg.Metrics.Options.String("gateway_url", "")
	job := cfg.Metrics.Options.String("job", "oshaload")
	b, err := prompush.NewBackend(job, gw)
	if err != nil {
		log.Warn("metrics backend init failed, continuing without metrics", zap.Error(err))
		return
	}
	log.Info("metrics enabled", zap.String("gateway", gw), zap.String("job", job))
	metrics.SetBackend(b)
}

// resolveSources expands the -tables selection into load sources in
// dependency order: inspections before violations, so the enrichment lookup
// reads freshly loaded data's extract.
func resolveSources(cfg config.Config, tablesFlag string) ([]pipeline.Source, error) {
	want := map[string]bool{}
	if tablesFlag == "" || tablesFlag == "all" {
		for name := range defaultFiles {
			want[name] = true
		}
	} else {
		for _, name := range strings.Split(tablesFlag, ",") {
			name = strings.TrimSpace(strings.ToLower(name))
			if _, ok := defaultFiles[name]; !ok {
				return nil, fmt.Errorf("unknown table %q", name)
			}
			want[name] = true
		}
	}

	pathFor := func(table string) string {
		name := defaultFiles[table]
		if override, ok := cfg.Sources[table]; ok && override != "" {
			name = override
		}
		return filepath.Join(cfg.DataDir, name)
	}

	var sources []pipeline.Source
	order := []string{"inspections", "violations", "accidents"}
	for _, name := range order {
		if !want[name] {
			continue
		}
		table, ok := schema.ByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown table %q", name)
		}
		src := pipeline.Source{Table: table, Path: pathFor(name)}
		if name == "violations" {
			src.Agency = "osha"
			src.InspectionsPath = pathFor("inspections")
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func printStatus(ctx context.Context, loader *pipeline.Loader) int {
	statuses, err := loader.Status(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFatal
	}
	names := make([]string, 0, len(statuses))
	for name := range statuses {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := statuses[name]
		fmt.Printf("%-12s %d rows", name, st.Rows)
		if len(st.Indexes) > 0 {
			var missing []string
			for ix, present := range st.Indexes {
				if !present {
					missing = append(missing, ix)
				}
			}
			sort.Strings(missing)
			if len(missing) == 0 {
				fmt.Printf("  indexes %d/%d", len(st.Indexes), len(st.Indexes))
			} else {
				fmt.Printf("  indexes %d/%d missing: %s",
					len(st.Indexes)-len(missing), len(st.Indexes), strings.Join(missing, ", "))
			}
		}
		fmt.Println()
	}
	return exitOK
}

func pick(flagVal, cfgVal int) int {
	if flagVal > 0 {
		return flagVal
	}
	return cfgVal
}

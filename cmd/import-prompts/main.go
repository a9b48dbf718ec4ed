// Package main converts tab-separated prompt lists into prompt packs, written
// as YAML and/or inserted into the database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/cory-johannsen/splash/internal/config"
	"github.com/cory-johannsen/splash/internal/importer"
	"github.com/cory-johannsen/splash/internal/importer/tsv"
	"github.com/cory-johannsen/splash/internal/observability"
	"github.com/cory-johannsen/splash/internal/storage/postgres"
)

func main() {
	source := flag.String("source", "", "tab-separated prompt file, or a directory of them")
	pack := flag.String("pack", "", "pack name for a single-file import (default: file name)")
	outputDir := flag.String("output", "", "directory to write YAML packs to")
	toDB := flag.Bool("db", false, "insert the prompts into the database")
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file (used with -db)")
	flag.Parse()

	if *source == "" || (*outputDir == "" && !*toDB) {
		fmt.Fprintln(os.Stderr, "usage: import-prompts -source <file|dir> [-pack <name>] [-output <dir>] [-db -config <file>]")
		os.Exit(1)
	}

	logCfg := config.LoggingConfig{Level: "info", Format: "console"}
	var cfg config.Config
	if *toDB {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		if err := config.ValidateDatabase(cfg.Database); err != nil {
			log.Fatalf("invalid database config: %v", err)
		}
		logCfg = cfg.Logging
	}

	logger, err := observability.NewLogger(logCfg, "import-prompts")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	var sinks []importer.Sink
	if *outputDir != "" {
		sinks = append(sinks, importer.DirSink{Dir: *outputDir})
	}
	if *toDB {
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		defer pool.Close()
		sinks = append(sinks, importer.StoreSink{Store: postgres.NewPromptRepository(pool.DB())})
	}

	imp := importer.New(tsv.NewSource(*pack), logger, sinks...)
	if _, err := imp.Run(ctx, *source); err != nil {
		logger.Fatal("import failed", zap.Error(err))
	}
}

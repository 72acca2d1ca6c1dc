package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/docforge/invoice-extract/internal/config"
	"github.com/docforge/invoice-extract/internal/pipeline"
)

func main() {
	settingsPath := flag.String("settings", "", "driver settings YAML")
	configPath := flag.String("config", "", "stage configuration JSON (overrides settings)")
	segmentsPath := flag.String("segments", "", "segmenter output JSON (overrides settings)")
	outputDir := flag.String("out", "", "artifact output directory (overrides settings)")
	docID := flag.String("doc-id", "", "document id (minted when empty)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <invoice.pdf>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	pdfPath := flag.Arg(0)

	set, err := pipeline.LoadSettings(*settingsPath)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	if *configPath != "" {
		set.ConfigPath = *configPath
	}
	if *segmentsPath != "" {
		set.SegmentsPath = *segmentsPath
	}
	if *outputDir != "" {
		set.OutputDir = *outputDir
	}

	logger, err := newLogger(set.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Default()
	if set.ConfigPath != "" {
		cfg, err = config.Load(set.ConfigPath)
		if err != nil {
			logger.Fatalw("invalid stage configuration", "path", set.ConfigPath, "error", err)
		}
	}

	runner := pipeline.New(cfg, set, logger)
	result, err := runner.Run(pdfPath, *docID)
	if err != nil {
		logger.Fatalw("pipeline failed", "pdf", pdfPath, "error", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Fatalw("encode result", "error", err)
	}
	fmt.Println(string(out))
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		lvl = parsed
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

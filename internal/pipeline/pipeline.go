// Package pipeline composes the stages in dependency order over a single
// PDF and persists every stage artifact through the atomic store. Each run
// is single-threaded and stateless between stage invocations; re-running
// with unchanged inputs yields byte-identical artifacts.
package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/docforge/invoice-extract/internal/artifact"
	"github.com/docforge/invoice-extract/internal/cellnorm"
	"github.com/docforge/invoice-extract/internal/config"
	"github.com/docforge/invoice-extract/internal/detect"
	"github.com/docforge/invoice-extract/internal/engine"
	"github.com/docforge/invoice-extract/internal/fields"
	"github.com/docforge/invoice-extract/internal/grid"
	"github.com/docforge/invoice-extract/internal/items"
	"github.com/docforge/invoice-extract/internal/score"
	"github.com/docforge/invoice-extract/internal/segment"
	"github.com/docforge/invoice-extract/internal/token"
	"github.com/docforge/invoice-extract/internal/validate"
)

// Runner drives one document through the full pipeline.
type Runner struct {
	cfg   *config.Config
	set   *Settings
	log   *zap.SugaredLogger
	store *artifact.Store
}

// New wires a runner. The artifact store writes under the settings' output
// directory.
func New(cfg *config.Config, set *Settings, log *zap.SugaredLogger) *Runner {
	return &Runner{
		cfg:   cfg,
		set:   set,
		log:   log,
		store: &artifact.Store{Dir: set.OutputDir},
	}
}

// Run executes every stage over one PDF and returns the final score
// artifact. Only unreadable input or invalid configuration aborts the run;
// extraction shortfalls flow through as nulls and flags.
func (r *Runner) Run(pdfPath, docID string) (*score.Result, error) {
	engines := []engine.Engine{engine.NewPDFReader()}
	if r.set.Backends.TextExtractor != "" {
		engines = append(engines, engine.NewRemoteEngine(r.set.Backends.TextExtractor))
	}

	toks, err := token.Tokenize(pdfPath, docID, engines, token.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	for _, w := range toks.Warnings {
		r.log.Warnw("stage.tokenize.degraded", "warning", w)
	}
	if err := r.store.Write(token.StageName, toks); err != nil {
		return nil, err
	}
	return r.process(pdfPath, toks)
}

// process runs every stage downstream of tokenization.
func (r *Runner) process(pdfPath string, toks *token.Result) (*score.Result, error) {
	normed := token.Normalize(toks)
	if err := r.store.Write(token.NormalizeStageName, normed); err != nil {
		return nil, err
	}

	regions := r.loadRegions()

	detectors := detect.Chain{}
	if r.set.Backends.TableDetector != "" {
		detectors = append(detectors, detect.NewRemoteDetector(r.set.Backends.TableDetector))
	}
	detectors = append(detectors, detect.NewTokenDetector(normed))

	gridRes, err := grid.NewBuilder(r.cfg, detectors, r.log).Build(pdfPath, normed)
	if err != nil {
		return nil, fmt.Errorf("build grid: %w", err)
	}
	if err := r.store.Write(grid.StageName, gridRes); err != nil {
		return nil, err
	}

	cells := cellnorm.New(r.cfg, r.log).Apply(gridRes)
	if err := r.store.Write(cellnorm.StageName, cells); err != nil {
		return nil, err
	}

	itemRes := items.NewExtractor(r.cfg, r.log).Extract(cells)
	if err := r.store.Write(items.StageName, itemRes); err != nil {
		return nil, err
	}

	fieldExt, err := fields.NewExtractor(r.cfg, r.log)
	if err != nil {
		return nil, fmt.Errorf("extract fields: %w", err)
	}
	fieldRes := fieldExt.Extract(fields.Inputs{
		Tokens:  normed,
		Regions: regions,
		Grid:    cells,
		Items:   itemRes,
	})
	if err := r.store.Write(fields.StageName, fieldRes); err != nil {
		return nil, err
	}

	valRes := validate.New(r.cfg, r.log).Validate(itemRes, fieldRes)
	if err := r.store.Write(validate.StageName, valRes); err != nil {
		return nil, err
	}

	scoreRes := score.New(r.cfg, r.log).Score(fieldRes, valRes, cells.TokenSpanMisses)
	if err := r.store.Write(score.StageName, scoreRes); err != nil {
		return nil, err
	}

	r.log.Infow("pipeline.done",
		"doc_id", scoreRes.DocID,
		"items", itemRes.Count,
		"score", scoreRes.Confidence.Score,
	)
	return scoreRes, nil
}

// loadRegions reads the segmenter collaborator output when configured. A
// missing or unreadable file degrades to region-less extraction.
func (r *Runner) loadRegions() *segment.Document {
	if r.set.SegmentsPath == "" {
		return nil
	}
	doc, err := segment.Load(r.set.SegmentsPath)
	if err != nil {
		r.log.Warnw("segments unavailable, falling back to grid scan", "error", err)
		return nil
	}
	return doc
}

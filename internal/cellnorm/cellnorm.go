// Package cellnorm is the cell-normalizer stage: it attaches a text_norm
// value to every grid cell, applying locale-aware number, integer and date
// normalization per the configured column types, after repairing soft
// hyphens and whitespace-broken words. Original cell text is never touched.
package cellnorm

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/docforge/invoice-extract/internal/artifact"
	"github.com/docforge/invoice-extract/internal/config"
	"github.com/docforge/invoice-extract/internal/grid"
)

const (
	StageName    = "normalize_cells"
	StageVersion = "1.1.0"
)

const softHyphen = "­"

// Normalizer runs the stage.
type Normalizer struct {
	cfg   *config.Config
	log   *zap.SugaredLogger
	words []*rejoinRule
}

type rejoinRule struct {
	re   *regexp.Regexp
	word string
}

// New compiles the common-word rejoin rules once up front.
func New(cfg *config.Config, log *zap.SugaredLogger) *Normalizer {
	n := &Normalizer{cfg: cfg, log: log}
	for _, w := range cfg.CommonWords {
		if rule := compileRejoin(w); rule != nil {
			n.words = append(n.words, rule)
		}
	}
	return n
}

// compileRejoin builds a case-insensitive pattern matching the word's
// letters with arbitrary whitespace between them ("F REE" matches "FREE").
func compileRejoin(word string) *rejoinRule {
	runes := []rune(word)
	if len(runes) < 2 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`(?i)\b`)
	for i, r := range runes {
		if i > 0 {
			b.WriteString(`\s*`)
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
	}
	b.WriteString(`\b`)
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil
	}
	return &rejoinRule{re: re, word: word}
}

// RepairText strips soft hyphens and re-joins configured common words whose
// letters were separated by stray spacing.
func (n *Normalizer) RepairText(s string) string {
	s = strings.ReplaceAll(s, softHyphen, "")
	for _, rule := range n.words {
		s = rule.re.ReplaceAllString(s, rule.word)
	}
	return strings.Join(strings.Fields(s), " ")
}

// Apply produces a new grid result with text_norm filled on every cell. The
// input is read-only; envelope stage and version are restamped.
func (n *Normalizer) Apply(in *grid.Result) *grid.Result {
	out := &grid.Result{
		Envelope:        artifact.NewEnvelope(in.DocID, StageName, StageVersion),
		TokenSpanMisses: in.TokenSpanMisses,
	}
	for _, table := range in.Tables {
		t := table
		t.Header = n.normalizeRow(table.Header)
		t.Rows = make([][]grid.Cell, len(table.Rows))
		for i, row := range table.Rows {
			t.Rows[i] = n.normalizeRow(row)
		}
		out.Tables = append(out.Tables, t)
	}
	n.log.Infow("stage.normalize_cells.ok", "tables", len(out.Tables))
	return out
}

func (n *Normalizer) normalizeRow(row []grid.Cell) []grid.Cell {
	out := make([]grid.Cell, len(row))
	for i, cell := range row {
		cell.TextNorm = n.NormalizeCell(cell)
		out[i] = cell
	}
	return out
}

// NormalizeCell computes text_norm for one cell from its family or position
// type. Failed typed normalization keeps the repaired text.
func (n *Normalizer) NormalizeCell(cell grid.Cell) string {
	text := n.RepairText(cell.Text)
	if text == "" {
		return ""
	}

	if n.isDateColumn(cell.Family) {
		if norm, ok := NormalizeDate(text, n.cfg.DateFormats); ok {
			return norm
		}
		return text
	}

	switch n.columnKind(cell) {
	case "number":
		norm, _ := NormalizeNumber(text, n.cfg.NumberFormat)
		return norm
	case "integer":
		norm, _ := NormalizeInteger(text, n.cfg.NumberFormat)
		return norm
	default:
		return text
	}
}

func (n *Normalizer) columnKind(cell grid.Cell) string {
	if kind, ok := n.cfg.ColumnTypes.ByFamily[string(cell.Family)]; ok {
		return kind
	}
	if kind, ok := n.cfg.ColumnTypes.ByPosition[strconv.Itoa(cell.Col)]; ok {
		return kind
	}
	return ""
}

func (n *Normalizer) isDateColumn(fam grid.Family) bool {
	for _, name := range n.cfg.ColumnTypes.DateColumns {
		if string(fam) == name {
			return true
		}
	}
	return false
}

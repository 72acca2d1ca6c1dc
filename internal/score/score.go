// Package score computes the composite trust score from validation results
// and header completeness. Components are weighted, penalties subtracted,
// and the result clamped to [0,1]; every float is rounded to a fixed
// precision so reruns diff clean.
package score

import (
	"math"

	"go.uber.org/zap"

	"github.com/docforge/invoice-extract/internal/artifact"
	"github.com/docforge/invoice-extract/internal/config"
	"github.com/docforge/invoice-extract/internal/fields"
	"github.com/docforge/invoice-extract/internal/validate"
)

const (
	StageName    = "score"
	StageVersion = "1.0.2"
)

const (
	ReasonTotalsMissing    = "totals_missing"
	ReasonSevereRow        = "severe_row_mismatch"
	ReasonTokenSpanMissing = "token_span_missing"
)

// Confidence is the explainable score breakdown.
type Confidence struct {
	RowPassRate        float64  `json:"row_pass_rate"`
	HeaderCompleteness float64  `json:"header_completeness"`
	SubtotalPass       float64  `json:"subtotal_pass"`
	Base               float64  `json:"base"`
	Penalties          float64  `json:"penalties"`
	Score              float64  `json:"score"`
	Reasons            []string `json:"reasons"`
}

// Result is the scorer artifact.
type Result struct {
	artifact.Envelope
	Confidence Confidence `json:"confidence"`
}

// Scorer runs the stage.
type Scorer struct {
	cfg *config.Config
	log *zap.SugaredLogger
}

func New(cfg *config.Config, log *zap.SugaredLogger) *Scorer {
	return &Scorer{cfg: cfg, log: log}
}

// Score combines the weighted components and applies penalties in the fixed
// reason order. tokenSpanMisses comes from the grid stage's token capture
// accounting.
func (s *Scorer) Score(f *fields.Result, val *validate.Result, tokenSpanMisses int) *Result {
	c := Confidence{
		RowPassRate:        round4(val.RowPassRate()),
		HeaderCompleteness: round4(s.headerCompleteness(f.Fields)),
	}
	if val.Subtotal.Pass {
		c.SubtotalPass = 1
	}

	w := s.cfg.Weights
	c.Base = round4(w.Row*c.RowPassRate + w.Header*c.HeaderCompleteness + w.Subtotal*c.SubtotalPass)

	p := s.cfg.Penalties
	if val.HasFlag(validate.FlagTotalsMissing) {
		c.Penalties += p.TotalsMissing
		c.Reasons = append(c.Reasons, ReasonTotalsMissing)
	}
	if val.HasSevere() {
		c.Penalties += p.Severe
		c.Reasons = append(c.Reasons, ReasonSevereRow)
	}
	if tokenSpanMisses > 0 {
		c.Penalties += p.TokenSpanMiss
		c.Reasons = append(c.Reasons, ReasonTokenSpanMissing)
	}
	c.Penalties = round4(c.Penalties)
	c.Score = round4(clamp01(c.Base - c.Penalties))

	s.log.Infow("stage.score.ok", "score", c.Score, "reasons", c.Reasons)
	return &Result{
		Envelope:   artifact.NewEnvelope(f.DocID, StageName, StageVersion),
		Confidence: c,
	}
}

// headerCompleteness is the non-empty fraction of the required plus expected
// header fields.
func (s *Scorer) headerCompleteness(f fields.Fields) float64 {
	names := append([]string{}, s.cfg.HeaderFields.Required...)
	names = append(names, s.cfg.HeaderFields.Expected...)
	if len(names) == 0 {
		return 1
	}
	present := 0
	for _, name := range names {
		if fieldPresent(f, name) {
			present++
		}
	}
	return float64(present) / float64(len(names))
}

func fieldPresent(f fields.Fields, name string) bool {
	strVal := func(p *string) bool { return p != nil && *p != "" }
	switch name {
	case "invoice_no":
		return strVal(f.InvoiceNo)
	case "invoice_date":
		return strVal(f.InvoiceDate)
	case "seller_name":
		return strVal(f.SellerName)
	case "buyer_name":
		return strVal(f.BuyerName)
	case "buyer_address":
		return strVal(f.BuyerAddress)
	case "po_no":
		return strVal(f.PONo)
	case "customer_code":
		return strVal(f.CustomerCode)
	case "payment_terms":
		return strVal(f.PaymentTerms)
	case "currency":
		return strVal(f.Currency)
	case "subtotal":
		return f.Subtotal != nil
	case "grand_total":
		return f.GrandTotal != nil
	}
	return false
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// round4 fixes output precision for reproducible diffs.
func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}

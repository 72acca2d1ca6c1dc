// Package validate runs the arithmetic checks over extracted items and
// fields: per-row qty×price against the reported amount, the subtotal
// against the item sum, and the synthetic tax totals derived from whichever
// subtotal is available. Mismatches are graded pass / fail / severe, never
// raised as errors.
package validate

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/docforge/invoice-extract/internal/artifact"
	"github.com/docforge/invoice-extract/internal/config"
	"github.com/docforge/invoice-extract/internal/fields"
	"github.com/docforge/invoice-extract/internal/items"
)

const (
	StageName    = "validate"
	StageVersion = "1.1.0"

	rowRelTolerance      = 0.005
	rowToleranceFloor    = 1.00
	subtotalRelTolerance = 0.003
	subtotalFloor        = 2.00

	// Severity is graded against a coarser band than pass/fail: three
	// times the 5% gross-error tolerance. A merely failing row is off by
	// more than its tight tolerance; a severe one is off by multiples.
	severeFactor   = 3.0
	severeRelFloor = 0.05

	// taxBaseFraction is the statutory base share of a tax-inclusive
	// subtotal.
	taxBaseFraction = 11.0 / 12.0
)

const (
	FlagTotalsMissing   = "TOTALS_MISSING"
	FlagSubtotalMissing = "SUBTOTAL_MISSING"

	codeOK           = "ok"
	codeMismatch     = "amount_mismatch"
	codeInsufficient = "insufficient_data"
)

// RowCheck is the arithmetic check of one line item.
type RowCheck struct {
	No        int      `json:"no"`
	Computed  *float64 `json:"computed"`
	Reported  *float64 `json:"reported"`
	Diff      float64  `json:"diff"`
	Tolerance float64  `json:"tolerance"`
	Pass      bool     `json:"pass"`
	Severe    bool     `json:"severe"`
	Code      string   `json:"code"`
}

// SubtotalCheck compares the item sum against the document-reported value.
type SubtotalCheck struct {
	Computed  *float64 `json:"computed"`
	Reported  *float64 `json:"reported"`
	Diff      float64  `json:"diff"`
	Tolerance float64  `json:"tolerance"`
	Pass      bool     `json:"pass"`
	Severe    bool     `json:"severe"`
	Code      string   `json:"code"`
}

// SyntheticTotals are the template totals derived purely from the subtotal
// and the configured tax rate.
type SyntheticTotals struct {
	Subtotal   float64 `json:"subtotal"`
	TaxRate    float64 `json:"tax_rate"`
	TaxBase    float64 `json:"tax_base"`
	TaxAmount  float64 `json:"tax_amount"`
	GrandTotal float64 `json:"grand_total"`
}

// Result is the validation artifact.
type Result struct {
	artifact.Envelope
	Rows        []RowCheck       `json:"rows"`
	Subtotal    SubtotalCheck    `json:"subtotal"`
	Synthetic   *SyntheticTotals `json:"synthetic_totals"`
	Flags       []string         `json:"flags"`
	SevereFlags []string         `json:"severe_flags"`
}

// RowPassRate returns the fraction of rows that passed, 0 with no rows.
func (r *Result) RowPassRate() float64 {
	if len(r.Rows) == 0 {
		return 0
	}
	passed := 0
	for _, row := range r.Rows {
		if row.Pass {
			passed++
		}
	}
	return float64(passed) / float64(len(r.Rows))
}

// HasSevere reports whether any check crossed the severe threshold.
func (r *Result) HasSevere() bool { return len(r.SevereFlags) > 0 }

// HasFlag reports whether a plain flag was raised.
func (r *Result) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Validator runs the stage.
type Validator struct {
	cfg *config.Config
	log *zap.SugaredLogger
}

func New(cfg *config.Config, log *zap.SugaredLogger) *Validator {
	return &Validator{cfg: cfg, log: log}
}

// Validate grades every row and the subtotal and derives synthetic totals
// when any subtotal exists. Insufficient data fails the affected check; it
// never aborts the stage.
func (v *Validator) Validate(it *items.Result, f *fields.Result) *Result {
	res := &Result{Envelope: artifact.NewEnvelope(it.DocID, StageName, StageVersion)}

	for _, item := range it.Items {
		res.Rows = append(res.Rows, checkRow(item))
	}
	for _, row := range res.Rows {
		if row.Severe {
			res.SevereFlags = append(res.SevereFlags, fmt.Sprintf("ROW_%d_MISMATCH", row.No))
		}
	}

	res.Subtotal = checkSubtotal(it, f)
	if res.Subtotal.Severe {
		res.SevereFlags = append(res.SevereFlags, "SUBTOTAL_MISMATCH")
	}

	subtotal, reported := availableSubtotal(it, f)
	switch {
	case subtotal == nil:
		res.Flags = append(res.Flags, FlagTotalsMissing)
	default:
		res.Synthetic = v.synthetic(*subtotal)
		if !reported && len(it.Items) > 0 {
			res.Flags = append(res.Flags, FlagSubtotalMissing)
		}
	}

	v.log.Infow("stage.validate.ok",
		"rows", len(res.Rows),
		"pass_rate", res.RowPassRate(),
		"flags", res.Flags,
		"severe", res.SevereFlags,
	)
	return res
}

// checkRow compares qty×unit_price with the reported amount under the row
// tolerance. Any missing operand fails the row without a severe grade.
func checkRow(item items.LineItem) RowCheck {
	check := RowCheck{No: item.No}
	if item.Qty == nil || item.UnitPrice == nil || item.Amount == nil {
		check.Code = codeInsufficient
		return check
	}
	computed := round2(*item.Qty * *item.UnitPrice)
	check.Computed = &computed
	check.Reported = item.Amount
	check.Diff = round2(math.Abs(computed - *item.Amount))
	check.Tolerance = math.Max(rowRelTolerance*math.Abs(computed), rowToleranceFloor)
	check.Pass = check.Diff <= check.Tolerance
	check.Severe = !check.Pass && check.Diff > severeThreshold(computed, check.Tolerance)
	check.Code = codeOK
	if !check.Pass {
		check.Code = codeMismatch
	}
	return check
}

func checkSubtotal(it *items.Result, f *fields.Result) SubtotalCheck {
	check := SubtotalCheck{Reported: f.ReportedSubtotal}
	if len(it.Items) == 0 {
		check.Code = codeInsufficient
		return check
	}
	sum := 0.0
	counted := 0
	for _, item := range it.Items {
		if item.Amount != nil {
			sum += *item.Amount
			counted++
		}
	}
	if counted == 0 {
		check.Code = codeInsufficient
		return check
	}
	computed := round2(sum)
	check.Computed = &computed
	if f.ReportedSubtotal == nil {
		check.Code = codeInsufficient
		return check
	}
	check.Diff = round2(math.Abs(computed - *f.ReportedSubtotal))
	check.Tolerance = math.Max(subtotalRelTolerance*math.Abs(computed), subtotalFloor)
	check.Pass = check.Diff <= check.Tolerance
	check.Severe = !check.Pass && check.Diff > severeThreshold(computed, check.Tolerance)
	check.Code = codeOK
	if !check.Pass {
		check.Code = codeMismatch
	}
	return check
}

// availableSubtotal prefers the document-reported subtotal and falls back to
// the item sum. The second return says whether the document reported one.
func availableSubtotal(it *items.Result, f *fields.Result) (*float64, bool) {
	if f.ReportedSubtotal != nil {
		return f.ReportedSubtotal, true
	}
	if len(it.Items) > 0 {
		sum := 0.0
		counted := 0
		for _, item := range it.Items {
			if item.Amount != nil {
				sum += *item.Amount
				counted++
			}
		}
		if counted > 0 {
			sum = round2(sum)
			return &sum, false
		}
	}
	return nil, false
}

// synthetic derives the template totals from a subtotal and the configured
// tax rate.
func (v *Validator) synthetic(subtotal float64) *SyntheticTotals {
	rate := v.cfg.TaxRatePercent
	base := round2(subtotal * taxBaseFraction)
	tax := round2(base * rate / 100)
	return &SyntheticTotals{
		Subtotal:   round2(subtotal),
		TaxRate:    rate,
		TaxBase:    base,
		TaxAmount:  tax,
		GrandTotal: round2(subtotal + tax),
	}
}

// severeThreshold is the mismatch magnitude beyond which a failing check is
// graded severe: three times the gross band, never tighter than three times
// the check's own tolerance.
func severeThreshold(computed, tolerance float64) float64 {
	return severeFactor * math.Max(severeRelFloor*math.Abs(computed), tolerance)
}

// round2 rounds to 2 decimal places.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

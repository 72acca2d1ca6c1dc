package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docforge/invoice-extract/internal/artifact"
	"github.com/docforge/invoice-extract/internal/config"
	"github.com/docforge/invoice-extract/internal/fields"
	"github.com/docforge/invoice-extract/internal/items"
)

func f(v float64) *float64 { return &v }

func itemResult(list ...items.LineItem) *items.Result {
	return &items.Result{
		Envelope: artifact.NewEnvelope("doc-val", items.StageName, items.StageVersion),
		Items:    list,
		Count:    len(list),
	}
}

func fieldResult(reported *float64) *fields.Result {
	return &fields.Result{
		Envelope:         artifact.NewEnvelope("doc-val", fields.StageName, fields.StageVersion),
		ReportedSubtotal: reported,
	}
}

func testValidator() *Validator {
	return New(config.Default(), zap.NewNop().Sugar())
}

func TestRowCheckGrades(t *testing.T) {
	tests := []struct {
		name       string
		amount     float64
		wantPass   bool
		wantSevere bool
	}{
		{"exact match passes", 10000, true, false},
		{"within floor passes", 10000.80, true, false},
		{"five percent off fails not severe", 10500, false, false},
		{"gross mismatch is severe", 50000, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := items.LineItem{No: 1, Qty: f(10), UnitPrice: f(1000), Amount: f(tt.amount)}
			res := testValidator().Validate(itemResult(item), fieldResult(f(tt.amount)))
			require.Len(t, res.Rows, 1)
			row := res.Rows[0]
			assert.Equal(t, tt.wantPass, row.Pass)
			assert.Equal(t, tt.wantSevere, row.Severe)
			if tt.wantPass {
				assert.Equal(t, codeOK, row.Code)
			}
		})
	}
}

func TestRowCheckTolerance(t *testing.T) {
	// computed 10000: tolerance = max(0.5% * 10000, 1.00) = 50.
	item := items.LineItem{No: 1, Qty: f(10), UnitPrice: f(1000), Amount: f(10000)}
	res := testValidator().Validate(itemResult(item), fieldResult(f(10000)))
	require.Len(t, res.Rows, 1)
	assert.InDelta(t, 50.0, res.Rows[0].Tolerance, 1e-9)
	assert.Zero(t, res.Rows[0].Diff)

	// Small computed values fall back to the absolute floor.
	small := items.LineItem{No: 2, Qty: f(1), UnitPrice: f(10), Amount: f(10.90)}
	res = testValidator().Validate(itemResult(small), fieldResult(f(10.90)))
	assert.InDelta(t, 1.00, res.Rows[0].Tolerance, 1e-9)
	assert.True(t, res.Rows[0].Pass)
}

func TestRowCheckInsufficientDataFails(t *testing.T) {
	item := items.LineItem{No: 1, Qty: f(10), Amount: f(10000)}
	res := testValidator().Validate(itemResult(item), fieldResult(nil))
	require.Len(t, res.Rows, 1)
	assert.False(t, res.Rows[0].Pass)
	assert.False(t, res.Rows[0].Severe)
	assert.Equal(t, codeInsufficient, res.Rows[0].Code)
}

func TestSubtotalCheck(t *testing.T) {
	list := itemResult(
		items.LineItem{No: 1, Qty: f(10), UnitPrice: f(1000), Amount: f(10000)},
		items.LineItem{No: 2, Qty: f(5), UnitPrice: f(2000), Amount: f(10000)},
	)

	res := testValidator().Validate(list, fieldResult(f(20000)))
	assert.True(t, res.Subtotal.Pass)
	require.NotNil(t, res.Subtotal.Computed)
	assert.Equal(t, 20000.0, *res.Subtotal.Computed)
	// tolerance = max(0.3% * 20000, 2.00) = 60.
	assert.InDelta(t, 60.0, res.Subtotal.Tolerance, 1e-9)

	res = testValidator().Validate(list, fieldResult(f(21000)))
	assert.False(t, res.Subtotal.Pass)
	assert.False(t, res.Subtotal.Severe, "5% off is a plain mismatch")

	res = testValidator().Validate(list, fieldResult(f(60000)))
	assert.False(t, res.Subtotal.Pass)
	assert.True(t, res.Subtotal.Severe)
	assert.Contains(t, res.SevereFlags, "SUBTOTAL_MISMATCH")
}

func TestSyntheticTotals(t *testing.T) {
	list := itemResult(items.LineItem{No: 1, Qty: f(12), UnitPrice: f(1000), Amount: f(12000)})
	res := testValidator().Validate(list, fieldResult(f(12000)))

	require.NotNil(t, res.Synthetic)
	assert.Equal(t, 12000.0, res.Synthetic.Subtotal)
	assert.InDelta(t, 11000.0, res.Synthetic.TaxBase, 1e-9)
	assert.InDelta(t, 1320.0, res.Synthetic.TaxAmount, 1e-9)
	assert.InDelta(t, 13320.0, res.Synthetic.GrandTotal, 1e-9)
	assert.Equal(t, 12.0, res.Synthetic.TaxRate)
}

func TestSyntheticTotalsConfigurableRate(t *testing.T) {
	cfg := config.Default()
	cfg.TaxRatePercent = 10
	v := New(cfg, zap.NewNop().Sugar())

	res := v.Validate(itemResult(), fieldResult(f(12000)))
	require.NotNil(t, res.Synthetic)
	assert.InDelta(t, 1100.0, res.Synthetic.TaxAmount, 1e-9)
}

func TestTotalsMissingFlag(t *testing.T) {
	// No items and no reported subtotal: totals are truly uncomputable.
	res := testValidator().Validate(itemResult(), fieldResult(nil))
	assert.True(t, res.HasFlag(FlagTotalsMissing))
	assert.Nil(t, res.Synthetic)

	// Items alone are enough to derive totals.
	list := itemResult(items.LineItem{No: 1, Qty: f(1), UnitPrice: f(100), Amount: f(100)})
	res = testValidator().Validate(list, fieldResult(nil))
	assert.False(t, res.HasFlag(FlagTotalsMissing))
	assert.True(t, res.HasFlag(FlagSubtotalMissing), "fields reported none but items computed one")
	require.NotNil(t, res.Synthetic)

	// A reported subtotal clears both flags.
	res = testValidator().Validate(list, fieldResult(f(100)))
	assert.False(t, res.HasFlag(FlagTotalsMissing))
	assert.False(t, res.HasFlag(FlagSubtotalMissing))
}

func TestRowPassRate(t *testing.T) {
	list := itemResult(
		items.LineItem{No: 1, Qty: f(10), UnitPrice: f(1000), Amount: f(10000)},
		items.LineItem{No: 2, Qty: f(10), UnitPrice: f(1000), Amount: f(10500)},
	)
	res := testValidator().Validate(list, fieldResult(f(20500)))
	assert.InDelta(t, 0.5, res.RowPassRate(), 1e-9)
}

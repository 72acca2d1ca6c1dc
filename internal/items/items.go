// Package items maps normalized grid rows to structured line items. A row
// qualifies only when its first cell parses as a non-negative integer; every
// other row is skipped without comment.
package items

import (
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/docforge/invoice-extract/internal/artifact"
	"github.com/docforge/invoice-extract/internal/config"
	"github.com/docforge/invoice-extract/internal/grid"
)

const (
	StageName    = "extract_items"
	StageVersion = "1.2.0"
)

// LineItem is one extracted table row. Numeric fields are independently
// nullable because extraction confidence varies per cell; a fractionless
// quantity marshals without a decimal part.
type LineItem struct {
	No          int      `json:"no"`
	HSCode      *string  `json:"hs_code"`
	SKU         *string  `json:"sku"`
	Code        *string  `json:"code"`
	Description string   `json:"description"`
	Qty         *float64 `json:"qty"`
	UOM         string   `json:"uom"`
	UnitPrice   *float64 `json:"unit_price"`
	Amount      *float64 `json:"amount"`
}

// Result is the line-item stage artifact.
type Result struct {
	artifact.Envelope
	Items []LineItem `json:"items"`
	Count int        `json:"item_count"`
}

// Extractor runs the stage.
type Extractor struct {
	cfg *config.Config
	log *zap.SugaredLogger
}

func NewExtractor(cfg *config.Config, log *zap.SugaredLogger) *Extractor {
	return &Extractor{cfg: cfg, log: log}
}

// Extract builds line items from every table in the grid. A header row whose
// first cell is itself a valid item number carries over as a data row, which
// happens when header detection lands one row too low. Items are sorted by
// no, ties keeping original row order.
func (e *Extractor) Extract(in *grid.Result) *Result {
	res := &Result{Envelope: artifact.NewEnvelope(in.DocID, StageName, StageVersion)}
	for _, table := range in.Tables {
		if _, ok := itemNumber(table.Header); ok {
			if item, built := e.buildItem(table.Header); built {
				res.Items = append(res.Items, item)
			}
		}
		for _, row := range table.Rows {
			if item, built := e.buildItem(row); built {
				res.Items = append(res.Items, item)
			}
		}
	}
	sort.SliceStable(res.Items, func(i, j int) bool { return res.Items[i].No < res.Items[j].No })
	res.Count = len(res.Items)
	e.log.Infow("stage.extract_items.ok", "items", res.Count)
	return res
}

// itemNumber parses the row's first cell as a non-negative integer.
func itemNumber(row []grid.Cell) (int, bool) {
	if len(row) == 0 {
		return 0, false
	}
	text := cellValue(row[0])
	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (e *Extractor) buildItem(row []grid.Cell) (LineItem, bool) {
	no, ok := itemNumber(row)
	if !ok {
		return LineItem{}, false
	}

	item := LineItem{No: no, UOM: e.cfg.DefaultUOM}
	descCol := -1
	for col, cell := range row {
		if cell.Family == grid.FamilyDesc {
			descCol = col
		}
	}

	var spare []string
	for col, cell := range row {
		text := cellValue(cell)
		switch cell.Family {
		case grid.FamilyNo:
			// Already parsed.
		case grid.FamilyHS:
			if text != "" {
				item.HSCode = &text
			}
		case grid.FamilyDesc:
			item.Description = text
		case grid.FamilyQty:
			item.Qty = parseNumber(text)
		case grid.FamilyUOM:
			if text != "" {
				item.UOM = text
			}
		case grid.FamilyPrice:
			item.UnitPrice = parseNumber(text)
		case grid.FamilyAmount:
			item.Amount = parseNumber(text)
		default:
			// Unclassified columns between the number and the description
			// usually carry part identifiers.
			if col > 0 && (descCol < 0 || col < descCol) && text != "" {
				spare = append(spare, text)
			}
		}
	}
	if len(spare) > 0 {
		item.SKU = &spare[0]
	}
	if len(spare) > 1 {
		item.Code = &spare[1]
	}
	return item, true
}

// cellValue prefers the normalized text, falling back to raw.
func cellValue(cell grid.Cell) string {
	if cell.TextNorm != "" {
		return cell.TextNorm
	}
	return strings.TrimSpace(cell.Text)
}

func parseNumber(text string) *float64 {
	if text == "" {
		return nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil
	}
	return &v
}

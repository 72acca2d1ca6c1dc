// Package config defines the JSON configuration consumed by the cell
// normalizer, grid builder, field extractor and confidence scorer, and
// validates it against a JSON Schema before any stage touches it.
// Structurally invalid configuration is fatal; optional keys get defaults
// only after the document passes validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// NumberFormat describes the locale of numeric cell text.
type NumberFormat struct {
	Decimal     string `json:"decimal"`
	Thousands   string `json:"thousands"`
	AllowParens *bool  `json:"allow_parens"`
}

// ParensNegative reports whether a parenthesized value reads as negative.
// Unset means yes; only an explicit false turns it off.
func (nf NumberFormat) ParensNegative() bool {
	return nf.AllowParens == nil || *nf.AllowParens
}

// DateFormats lists the candidate input patterns tried in order and the
// century cutoff for two-digit years.
type DateFormats struct {
	InputPatterns []string `json:"input_patterns"`
	OutputFormat  string   `json:"output_format"`
	CenturyCutoff int      `json:"century_cutoff"`
}

// ColumnTypes maps column families or positions to a normalization kind
// ("number", "integer"; anything else is left as text) and names the
// families that carry dates.
type ColumnTypes struct {
	ByFamily    map[string]string `json:"by_family"`
	ByPosition  map[string]string `json:"by_position"`
	DateColumns []string          `json:"date_columns"`
}

// PaymentTerms locates the payment-terms block in the header grid.
type PaymentTerms struct {
	LabelContains   []string `json:"label_contains"`
	IncludeNextRows int      `json:"include_next_n_rows"`
}

// Weights are the confidence base-score component weights.
type Weights struct {
	Row      float64 `json:"row"`
	Header   float64 `json:"header"`
	Subtotal float64 `json:"subtotal"`
}

// HeaderFields names the header fields counted toward completeness.
type HeaderFields struct {
	Required []string `json:"required"`
	Expected []string `json:"expected"`
	Optional []string `json:"optional"`
}

// Penalties are subtracted from the confidence base score.
type Penalties struct {
	TotalsMissing float64 `json:"totals_missing"`
	Severe        float64 `json:"severe"`
	TokenSpanMiss float64 `json:"token_span_miss"`
}

// Config is the full stage configuration document.
type Config struct {
	NumberFormat         NumberFormat        `json:"number_format"`
	DateFormats          DateFormats         `json:"date_formats"`
	ColumnTypes          ColumnTypes         `json:"column_types"`
	CommonWords          []string            `json:"common_words"`
	InvoiceNoPatterns    []string            `json:"invoice_no_patterns"`
	DatePatterns         []string            `json:"date_patterns"`
	POPatterns           []string            `json:"po_patterns"`
	CustomerCodePatterns []string            `json:"customer_code_patterns"`
	CurrencyOrder        []string            `json:"currency_order"`
	PaymentTerms         PaymentTerms        `json:"payment_terms"`
	Weights              Weights             `json:"weights"`
	HeaderFields         HeaderFields        `json:"header_fields"`
	Penalties            Penalties           `json:"penalties"`
	TotalsKeywords       []string            `json:"totals_keywords"`
	FamilyKeywords       map[string][]string `json:"family_keywords"`
	DefaultUOM           string              `json:"default_uom"`
	TaxRatePercent       float64             `json:"tax_rate_percent"`
}

// Load reads, validates and defaults a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse validates raw JSON against the schema and unmarshals it.
func Parse(data []byte) (*Config, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns the built-in configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.NumberFormat.Decimal == "" {
		c.NumberFormat.Decimal = ","
	}
	if c.NumberFormat.Thousands == "" {
		c.NumberFormat.Thousands = "."
	}
	if len(c.DateFormats.InputPatterns) == 0 {
		c.DateFormats.InputPatterns = []string{"DD-MM-YYYY", "DD/MM/YYYY", "YYYY-MM-DD", "DD-MM-YY"}
	}
	if c.DateFormats.OutputFormat == "" {
		c.DateFormats.OutputFormat = "2006-01-02"
	}
	if c.DateFormats.CenturyCutoff == 0 {
		c.DateFormats.CenturyCutoff = 50
	}
	if c.ColumnTypes.ByFamily == nil {
		c.ColumnTypes.ByFamily = map[string]string{
			"NO": "integer", "QTY": "number", "PRICE": "number", "AMOUNT": "number",
		}
	}
	if len(c.CurrencyOrder) == 0 {
		c.CurrencyOrder = []string{"IDR", "USD", "EUR", "SGD", "JPY"}
	}
	if len(c.PaymentTerms.LabelContains) == 0 {
		c.PaymentTerms.LabelContains = []string{"PAYMENT", "TERM"}
	}
	if c.PaymentTerms.IncludeNextRows == 0 {
		c.PaymentTerms.IncludeNextRows = 1
	}
	if c.Weights == (Weights{}) {
		c.Weights = Weights{Row: 0.6, Header: 0.2, Subtotal: 0.2}
	}
	if len(c.HeaderFields.Required) == 0 {
		c.HeaderFields.Required = []string{"invoice_no", "invoice_date", "buyer_name"}
	}
	if len(c.HeaderFields.Expected) == 0 {
		c.HeaderFields.Expected = []string{"seller_name", "currency", "po_no"}
	}
	if c.Penalties == (Penalties{}) {
		c.Penalties = Penalties{TotalsMissing: 0.05, Severe: 0.20, TokenSpanMiss: 0.05}
	}
	if len(c.TotalsKeywords) == 0 {
		c.TotalsKeywords = []string{
			"SUBTOTAL", "SUB TOTAL", "SUB-TOTAL", "TOTAL", "GRAND TOTAL",
			"VAT", "PPN", "DPP", "TAX", "AMOUNT DUE",
		}
	}
	if c.FamilyKeywords == nil {
		c.FamilyKeywords = map[string][]string{
			"NO":     {"NO", "NO.", "#", "SR", "ITEM NO"},
			"HS":     {"HS", "HS CODE", "HSCODE", "TARIFF"},
			"DESC":   {"DESCRIPTION", "DESC", "ITEM", "GOODS", "PARTICULARS", "PRODUCT"},
			"QTY":    {"QTY", "QUANTITY", "QTY.", "PCS"},
			"UOM":    {"UOM", "UNIT", "UNITS", "U/M"},
			"PRICE":  {"PRICE", "UNIT PRICE", "RATE", "@"},
			"AMOUNT": {"AMOUNT", "TOTAL", "VALUE", "SUBTOTAL", "EXT"},
		}
	}
	if c.DefaultUOM == "" {
		c.DefaultUOM = "PCS"
	}
	if c.TaxRatePercent == 0 {
		c.TaxRatePercent = 12
	}
	if len(c.InvoiceNoPatterns) == 0 {
		c.InvoiceNoPatterns = []string{
			`(?i)INVOICE\s*(?:NO|NUMBER|#)?\s*[:.]?\s*([A-Z0-9][A-Z0-9/\-\.]+)`,
		}
	}
	if len(c.DatePatterns) == 0 {
		c.DatePatterns = []string{
			`(?i)(?:INVOICE\s+)?DATE\s*[:.]?\s*(\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4})`,
		}
	}
	if len(c.POPatterns) == 0 {
		c.POPatterns = []string{
			`(?i)P\.?O\.?\s*(?:NO|NUMBER|#)?\s*[:.]?\s*([A-Z0-9][A-Z0-9/\-\.]+)`,
		}
	}
	if len(c.CustomerCodePatterns) == 0 {
		c.CustomerCodePatterns = []string{
			`(?i)CUSTOMER\s*(?:CODE|ID|NO)\s*[:.]?\s*([A-Z0-9\-]+)`,
		}
	}
}

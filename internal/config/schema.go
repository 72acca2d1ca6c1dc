package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// buildSchema returns the JSON-Schema (draft 2020-12 subset) the configuration
// document must satisfy. Unknown top-level keys are rejected so typos in
// recognized keys fail loudly instead of being silently ignored.
func buildSchema() map[string]any {
	sep := map[string]any{"type": "string", "maxLength": 1}
	strList := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	nonNeg := map[string]any{"type": "number", "minimum": 0.0}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"number_format": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"decimal":      sep,
					"thousands":    sep,
					"allow_parens": map[string]any{"type": "boolean"},
				},
				"required": []string{"decimal"},
			},
			"date_formats": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"input_patterns": strList,
					"output_format":  map[string]any{"type": "string"},
					"century_cutoff": map[string]any{"type": "integer", "minimum": 0, "maximum": 99},
				},
				"required": []string{"input_patterns"},
			},
			"column_types": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"by_family":    map[string]any{"type": "object"},
					"by_position":  map[string]any{"type": "object"},
					"date_columns": strList,
				},
			},
			"common_words":           strList,
			"invoice_no_patterns":    strList,
			"date_patterns":          strList,
			"po_patterns":            strList,
			"customer_code_patterns": strList,
			"currency_order":         strList,
			"payment_terms": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"label_contains":      strList,
					"include_next_n_rows": map[string]any{"type": "integer", "minimum": 0},
				},
			},
			"weights": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"row":      nonNeg,
					"header":   nonNeg,
					"subtotal": nonNeg,
				},
				"required": []string{"row", "header", "subtotal"},
			},
			"header_fields": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"required": strList,
					"expected": strList,
					"optional": strList,
				},
			},
			"penalties": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"totals_missing":  nonNeg,
					"severe":          nonNeg,
					"token_span_miss": nonNeg,
				},
			},
			"totals_keywords":  strList,
			"family_keywords":  map[string]any{"type": "object"},
			"default_uom":      map[string]any{"type": "string"},
			"tax_rate_percent": nonNeg,
		},
	}
}

// validateSchema checks raw config JSON against the schema. Any violation is
// a fatal configuration error.
func validateSchema(data []byte) error {
	schemaBytes, err := json.Marshal(buildSchema())
	if err != nil {
		return fmt.Errorf("marshal config schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.json", bytes.NewReader(schemaBytes)); err != nil {
		return fmt.Errorf("add config schema: %w", err)
	}
	schema, err := compiler.Compile("config.json")
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}

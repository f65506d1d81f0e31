// Package pricing loads the provider/model price table and computes per-call
// cost breakdowns. The catalog is immutable after Load; unknown provider or
// model combinations cost zero and never fail a request.
package pricing

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
)

// Entry is a single price row. Unit selects the token denomination the raw
// prices are quoted in.
type Entry struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
	Unit   string  `json:"unit"` // "per_1k" or "per_million"
}

// Breakdown is the per-call cost accounting attached to every response.
// Costs are rounded to 8 decimals; TotalCost always equals InputCost +
// OutputCost within that rounding.
type Breakdown struct {
	Currency       string  `json:"currency"`
	Provider       string  `json:"provider"`
	Model          string  `json:"model"`
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	InputCost      float64 `json:"input_cost"`
	OutputCost     float64 `json:"output_cost"`
	TotalCost      float64 `json:"total_cost"`
	PricingVersion string  `json:"pricing_version,omitempty"`
}

type catalogFile struct {
	Currency  string                      `json:"currency"`
	Version   string                      `json:"version"`
	Providers map[string]map[string]Entry `json:"providers"`
}

// Catalog holds the loaded price table. Safe for concurrent use.
type Catalog struct {
	currency  string
	version   string
	providers map[string]map[string]Entry
}

// Load reads and parses a pricing JSON file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file: %w", err)
	}
	var f catalogFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse pricing file %s: %w", path, err)
	}
	return NewCatalog(f.Currency, f.Version, f.Providers), nil
}

// NewCatalog builds a catalog from an already-parsed table. Provider and
// model keys are normalized to lower case.
func NewCatalog(currency, version string, providers map[string]map[string]Entry) *Catalog {
	if currency == "" {
		currency = "USD"
	}
	normalized := make(map[string]map[string]Entry, len(providers))
	for prov, models := range providers {
		table := make(map[string]Entry, len(models))
		for model, e := range models {
			table[strings.ToLower(model)] = e
		}
		normalized[strings.ToLower(prov)] = table
	}
	return &Catalog{currency: currency, version: version, providers: normalized}
}

// Version reports the catalog version string from the pricing file.
func (c *Catalog) Version() string { return c.version }

// Cost computes the breakdown for one call. An unknown (provider, model)
// yields zero costs but preserves the token counts.
func (c *Catalog) Cost(provider, model string, inputTokens, outputTokens int) Breakdown {
	b := Breakdown{
		Currency:       c.currency,
		Provider:       strings.ToLower(provider),
		Model:          model,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
		PricingVersion: c.version,
	}

	entry, ok := c.lookup(provider, model)
	if !ok {
		return b
	}

	perToken := 1e3
	if entry.Unit == "per_million" {
		perToken = 1e6
	}
	b.InputCost = round8(float64(inputTokens) * entry.Input / perToken)
	b.OutputCost = round8(float64(outputTokens) * entry.Output / perToken)
	b.TotalCost = round8(b.InputCost + b.OutputCost)
	return b
}

func (c *Catalog) lookup(provider, model string) (Entry, bool) {
	table, ok := c.providers[strings.ToLower(provider)]
	if !ok {
		return Entry{}, false
	}
	if e, ok := table[strings.ToLower(model)]; ok {
		return e, true
	}
	// A "*" row prices every model of the provider.
	e, ok := table["*"]
	return e, ok
}

func round8(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}

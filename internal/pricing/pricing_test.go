package pricing

import (
	"math"
	"testing"
)

func testCatalog() *Catalog {
	return NewCatalog("USD", "test", map[string]map[string]Entry{
		"openai": {
			"gpt-4o":      {Input: 2.5, Output: 10.0, Unit: "per_million"},
			"legacy-tier": {Input: 0.01, Output: 0.03, Unit: "per_1k"},
		},
		"ollama": {
			"*": {Input: 0, Output: 0, Unit: "per_million"},
		},
	})
}

func TestCostPerMillion(t *testing.T) {
	c := testCatalog()
	b := c.Cost("openai", "gpt-4o", 1000, 500)

	if b.InputCost != 0.0025 {
		t.Errorf("input cost: expected 0.0025, got %v", b.InputCost)
	}
	if b.OutputCost != 0.005 {
		t.Errorf("output cost: expected 0.005, got %v", b.OutputCost)
	}
	if b.TotalCost != 0.0075 {
		t.Errorf("total cost: expected 0.0075, got %v", b.TotalCost)
	}
	if b.Currency != "USD" {
		t.Errorf("expected USD, got %s", b.Currency)
	}
}

func TestCostPer1K(t *testing.T) {
	c := testCatalog()
	b := c.Cost("openai", "legacy-tier", 2000, 1000)

	if b.InputCost != 0.02 {
		t.Errorf("input cost: expected 0.02, got %v", b.InputCost)
	}
	if b.OutputCost != 0.03 {
		t.Errorf("output cost: expected 0.03, got %v", b.OutputCost)
	}
}

func TestCostUnknownModelIsZero(t *testing.T) {
	c := testCatalog()
	b := c.Cost("openai", "nonexistent", 100, 100)

	if b.TotalCost != 0 || b.InputCost != 0 || b.OutputCost != 0 {
		t.Errorf("expected zero cost for unknown model, got %+v", b)
	}
	// Token counts must survive even when pricing is unknown.
	if b.InputTokens != 100 || b.OutputTokens != 100 {
		t.Errorf("token counts must be preserved, got %+v", b)
	}
}

func TestCostUnknownProviderIsZero(t *testing.T) {
	c := testCatalog()
	b := c.Cost("nonexistent", "gpt-4o", 100, 100)
	if b.TotalCost != 0 {
		t.Errorf("expected zero cost for unknown provider, got %v", b.TotalCost)
	}
}

func TestCostWildcardRow(t *testing.T) {
	c := testCatalog()
	b := c.Cost("ollama", "any-local-model", 5000, 5000)
	if b.TotalCost != 0 {
		t.Errorf("wildcard row should price any model, got %v", b.TotalCost)
	}
}

func TestCostCaseInsensitiveLookup(t *testing.T) {
	c := testCatalog()
	b := c.Cost("OpenAI", "GPT-4O", 1000, 0)
	if b.InputCost != 0.0025 {
		t.Errorf("lookup must be case-insensitive, got %+v", b)
	}
}

func TestCostRoundsToEightDecimals(t *testing.T) {
	c := NewCatalog("USD", "", map[string]map[string]Entry{
		"p": {"m": {Input: 0.123456789, Output: 0, Unit: "per_million"}},
	})
	b := c.Cost("p", "m", 1, 0)
	scaled := b.InputCost * 1e8
	if math.Abs(scaled-math.Round(scaled)) > 1e-9 {
		t.Errorf("cost not rounded to 8 decimals: %v", b.InputCost)
	}
}

func TestTotalEqualsSumOfParts(t *testing.T) {
	c := testCatalog()
	b := c.Cost("openai", "gpt-4o", 1234567, 7654321)
	if got := round8(b.InputCost + b.OutputCost); got != b.TotalCost {
		t.Errorf("total %v != input+output %v", b.TotalCost, got)
	}
}

func TestDefaultCurrency(t *testing.T) {
	c := NewCatalog("", "", nil)
	if b := c.Cost("p", "m", 1, 1); b.Currency != "USD" {
		t.Errorf("expected default USD, got %s", b.Currency)
	}
}

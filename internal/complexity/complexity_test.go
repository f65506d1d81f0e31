package complexity

import (
	"strings"
	"testing"
)

func TestScoreEmptyPromptIsZero(t *testing.T) {
	if got := Score(""); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestScoreBounded(t *testing.T) {
	prompts := []string{
		"hi",
		strings.Repeat("analyze the compliance architecture. ", 500),
		"```\ndef f():\n    return {1: 2}\n```",
	}
	for _, p := range prompts {
		if s := Score(p); s < 0 || s > 1 {
			t.Errorf("score out of [0,1]: %v for %q", s, p[:20])
		}
	}
}

func TestScoreMonotonicSignals(t *testing.T) {
	plain := Score("tell me about dogs")
	withCode := Score("tell me about dogs ```code```")
	if withCode <= plain {
		t.Errorf("code fence should raise score: %v <= %v", withCode, plain)
	}
	withKeywords := Score("analyze and summarize the compliance policy for dogs")
	if withKeywords <= plain {
		t.Errorf("risk keywords should raise score: %v <= %v", withKeywords, plain)
	}
}

func TestEvaluateSimple(t *testing.T) {
	r := Evaluate("what time is it?")
	if r.Label != "simple" {
		t.Errorf("expected simple, got %s (score %v)", r.Label, r.Score)
	}
	if r.Band != "low" {
		t.Errorf("simple must collapse to low, got %s", r.Band)
	}
}

func TestEvaluateComplexByLength(t *testing.T) {
	r := Evaluate(strings.Repeat("word ", 200)) // 1000 chars
	if r.Label != "complex" {
		t.Errorf("expected complex for >=900 chars, got %s", r.Label)
	}
	if r.Band != "high" {
		t.Errorf("complex must collapse to high, got %s", r.Band)
	}
}

func TestEvaluateComplexByKeywords(t *testing.T) {
	r := Evaluate("analyze, compare and summarize these findings")
	if r.KeywordHits < 3 {
		t.Fatalf("expected >=3 keyword hits, got %d", r.KeywordHits)
	}
	if r.Label != "complex" {
		t.Errorf("expected complex for 3 keyword hits, got %s", r.Label)
	}
}

func TestEvaluateLongContext(t *testing.T) {
	r := Evaluate(strings.Repeat("a", 4000))
	if r.Label != "long_context" {
		t.Errorf("expected long_context at 4000 chars, got %s", r.Label)
	}
	if r.Band != "high" {
		t.Errorf("long_context must collapse to high, got %s", r.Band)
	}
}

func TestEvaluateModerateMiddle(t *testing.T) {
	// Long enough to escape the simple buckets, short of every complex
	// trigger.
	prompt := strings.Repeat("please describe the weather in this city today. ", 9)
	r := Evaluate(prompt)
	if r.Label != "moderate" {
		t.Errorf("expected moderate, got %s (score %v, len %d)", r.Label, r.Score, len(prompt))
	}
	if r.Band != "mid" {
		t.Errorf("moderate must collapse to mid, got %s", r.Band)
	}
}

func TestKeywordHitsCaseInsensitive(t *testing.T) {
	if hits := keywordHits("ANALYZE the MIGRATION"); hits != 2 {
		t.Errorf("expected 2 hits, got %d", hits)
	}
}

// Package complexity scores prompt text on a [0,1] scale and assigns a band.
// The score is a weighted sum over cheap lexical features; no model calls.
package complexity

import (
	"regexp"
	"strings"
)

// riskKeywords hint at analytical or compliance-heavy work that benefits
// from a stronger model.
var riskKeywords = []string{
	"analyze",
	"optimize",
	"summarize",
	"compare",
	"design",
	"explain",
	"policy",
	"architecture",
	"draft",
	"contract",
	"clause",
	"compliance",
	"legal",
	"governance",
	"security",
	"regulation",
	"migration",
}

// longContextThreshold is the character count beyond which a prompt is
// treated as long-context regardless of score.
const longContextThreshold = 4000

var (
	digitRE    = regexp.MustCompile(`\d`)
	symbolRE   = regexp.MustCompile(`[{}\[\]()=+\-*/<>]`)
	codeWordRE = regexp.MustCompile(`\b(class|def|function)\b`)
	jsonRE     = regexp.MustCompile(`(?s)\{.*:.*\}`)
	sentenceRE = regexp.MustCompile(`[.!?]+`)
)

// Result carries the score plus both the public band and the finer-grained
// internal label used in telemetry.
type Result struct {
	Score       float64
	Band        string // low | mid | high
	Label       string // simple | moderate | complex | long_context
	KeywordHits int
}

// Score computes the heuristic complexity score in [0,1].
func Score(prompt string) float64 {
	if prompt == "" {
		return 0.0
	}

	fLen := clamp01(float64(len(prompt)) / 2000.0)
	fDigits := clamp01(float64(len(digitRE.FindAllString(prompt, -1))) / 50.0)
	fSymbols := clamp01(float64(len(symbolRE.FindAllString(prompt, -1))) / 80.0)

	fCode := 0.0
	if strings.Contains(prompt, "```") || codeWordRE.MatchString(prompt) {
		fCode = 0.2
	}
	fJSON := 0.0
	if jsonRE.MatchString(prompt) {
		fJSON = 0.2
	}

	sentences := len(sentenceRE.Split(prompt, -1))
	fSent := clamp01(float64(sentences) / 20.0)

	fKw := 0.1 * float64(keywordHits(prompt))
	if fKw > 0.3 {
		fKw = 0.3
	}

	score := 0.45*fLen + 0.15*fDigits + 0.1*fSymbols + fCode + fJSON + 0.2*fSent + fKw
	return clamp01(score)
}

// Evaluate scores the prompt and assigns both the internal label and the
// collapsed public band.
func Evaluate(prompt string) Result {
	score := Score(prompt)
	hits := keywordHits(prompt)
	length := len(prompt)

	label := "moderate"
	switch {
	case length >= longContextThreshold:
		label = "long_context"
	case length >= 900 || score >= 0.65 || hits >= 3:
		label = "complex"
	case length <= 160 && score <= 0.12 && hits == 0:
		label = "simple"
	case score < 0.35 && length < 350 && hits <= 1:
		label = "simple"
	}

	return Result{
		Score:       score,
		Band:        bandForLabel(label),
		Label:       label,
		KeywordHits: hits,
	}
}

func bandForLabel(label string) string {
	switch label {
	case "simple":
		return "low"
	case "complex", "long_context":
		return "high"
	default:
		return "mid"
	}
}

func keywordHits(prompt string) int {
	lower := strings.ToLower(prompt)
	hits := 0
	for _, kw := range riskKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	return hits
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

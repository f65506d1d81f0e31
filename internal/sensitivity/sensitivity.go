// Package sensitivity tags text with PII/PHI/financial category labels via
// regex and keyword rules. Tags describe the content without storing it.
package sensitivity

import (
	"regexp"
	"sort"
	"strings"
)

// The fixed tag taxonomy. Tags outside this set are never produced.
const (
	TagEmail     = "PII_EMAIL"
	TagPhone     = "PII_PHONE"
	TagCard      = "PII_FINANCIAL_CARD"
	TagMedical   = "PHI_MEDICAL"
	TagFinancial = "FINANCIAL_TERMS"
)

var (
	emailRE = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)
	phoneRE = regexp.MustCompile(`\b(\+?\d{1,3}[ -]?)?\(?\d{3}\)?[ -]?\d{3}[ -]?\d{4}\b`)
	cardRE  = regexp.MustCompile(`\b(\d[ -]?){13,16}\b`)
)

var phiKeywords = []string{"doctor", "diagnosis", "prescription", "hospital", "patient", "medical"}

var financialKeywords = []string{"salary", "bank", "loan", "credit", "mortgage", "account number"}

// Tags returns the sorted, deduplicated tag list for the given text.
func Tags(text string) []string {
	if text == "" {
		return nil
	}

	set := make(map[string]struct{})
	if emailRE.MatchString(text) {
		set[TagEmail] = struct{}{}
	}
	if phoneRE.MatchString(text) {
		set[TagPhone] = struct{}{}
	}
	if cardRE.MatchString(text) {
		set[TagCard] = struct{}{}
	}
	if containsAny(text, phiKeywords) {
		set[TagMedical] = struct{}{}
	}
	if containsAny(text, financialKeywords) {
		set[TagFinancial] = struct{}{}
	}
	return sorted(set)
}

// Union merges tag lists into one sorted, deduplicated list.
func Union(lists ...[]string) []string {
	set := make(map[string]struct{})
	for _, list := range lists {
		for _, tag := range list {
			set[tag] = struct{}{}
		}
	}
	return sorted(set)
}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func sorted(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

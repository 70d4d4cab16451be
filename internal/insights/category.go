// Package insights aggregates spending and compares it against benchmarks.
package insights

import (
	"regexp"
	"strings"
)

// Benchmark categories.
const (
	CarInsurance = "car_insurance"
	DiningOut    = "dining_out"
	Groceries    = "groceries"
	Utilities    = "utilities"
	Other        = "other"
)

var categoryAliases = map[string]string{
	"dining":         DiningOut,
	"restaurants":    DiningOut,
	"eating out":     DiningOut,
	"food_out":       DiningOut,
	"auto_insurance": CarInsurance,
	"car":            CarInsurance,
	"car insurance":  CarInsurance,
	"auto":           CarInsurance,
	"grocery":        Groceries,
	"supermarket":    Groceries,
	"food_home":      Groceries,
	"utility":        Utilities,
	"power":          Utilities,
	"electric":       Utilities,
	"gas":            Utilities,
	"water":          Utilities,
	"internet":       Utilities,
	"cable":          Utilities,
}

var nonSlug = regexp.MustCompile(`[^a-z0-9_]+`)

// NormalizeCategory maps a free-form label onto a snake_case category,
// folding known aliases onto the benchmark set.
func NormalizeCategory(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if c, ok := categoryAliases[n]; ok {
		return c
	}
	if slug := nonSlug.ReplaceAllString(n, "_"); slug != "" {
		return slug
	}
	return Other
}

var merchantRules = []struct {
	pattern  *regexp.Regexp
	category string
}{
	{regexp.MustCompile(`(?i)\b(geico|state\s*farm|progressive|allstate|liberty\s*mutual|njm)\b`), CarInsurance},
	{regexp.MustCompile(`(?i)\b(chipotle|mcdonald|burger\s*king|wendy|starbucks|dunkin|panera|taco\s*bell|doordash|ubereats|grubhub)\b`), DiningOut},
	{regexp.MustCompile(`(?i)\b(whole\s*foods|trader\s*joe|kroger|heb|publix|shoprite|acme|stop\s*&\s*shop|costco|walmart)\b`), Groceries},
	{regexp.MustCompile(`(?i)\b(pseg|coned|edison|verizon|comcast|xfinity|spectrum|at&t|att|nj\s*gas|nj\s*water)\b`), Utilities},
}

// Classify picks a category: the explicit one if given, then merchant and
// description keywords, then Other.
func Classify(merchant, description, explicit string) string {
	if strings.TrimSpace(explicit) != "" {
		return NormalizeCategory(explicit)
	}
	text := merchant + " " + description
	for _, rule := range merchantRules {
		if rule.pattern.MatchString(text) {
			return rule.category
		}
	}
	return Other
}

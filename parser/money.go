// Package parser turns currency-bearing text into numbers and pulls product
// identifiers out of free page text.
package parser

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	nonNumeric    = regexp.MustCompile(`[^\d.,-]`)
	leadingNumber = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)`)
	moneyToken    = regexp.MustCompile(`(?i)(USD|CAD|GBP|EUR|\$|£|€)?\s*([0-9][0-9.,-]{0,10})`)
)

// ParseAmount converts a money-like fragment into a number, resolving
// ambiguous comma/dot separators. It returns NaN when nothing numeric is found.
//
// With both separators present the comma is a thousands separator. With only
// commas, a final group of exactly two digits marks the last comma as the
// decimal point; otherwise every comma is a thousands separator.
func ParseAmount(text string) float64 {
	cleaned := nonNumeric.ReplaceAllString(text, "")
	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")

	switch {
	case hasComma && hasDot:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case hasComma:
		last := strings.LastIndex(cleaned, ",")
		if len(cleaned)-last-1 == 2 {
			cleaned = strings.ReplaceAll(cleaned[:last], ",", "") + "." + cleaned[last+1:]
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}
	return parseLeadingFloat(cleaned)
}

// FirstAmount parses the earliest money token in text. A currency symbol or
// ISO code may precede the digits. It returns NaN when no token parses.
func FirstAmount(text string) float64 {
	m := moneyToken.FindStringSubmatch(text)
	if m == nil {
		return math.NaN()
	}
	return ParseAmount(m[2])
}

// AllAmounts returns every finite money token in text, in order of appearance.
func AllAmounts(text string) []float64 {
	var out []float64
	for _, m := range moneyToken.FindAllStringSubmatch(text, -1) {
		if v := ParseAmount(m[2]); IsFinite(v) {
			out = append(out, v)
		}
	}
	return out
}

// Plausible keeps the values inside [min, max].
func Plausible(values []float64, min, max float64) []float64 {
	var out []float64
	for _, v := range values {
		if v >= min && v <= max {
			out = append(out, v)
		}
	}
	return out
}

// Smallest returns the minimum of values.
func Smallest(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return sorted[0], true
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// parseLeadingFloat mimics lenient float parsing: the longest numeric prefix
// wins, so "12.34.56" yields 12.34.
func parseLeadingFloat(s string) float64 {
	m := leadingNumber.FindString(s)
	if m == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

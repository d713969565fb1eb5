package parser

import (
	"regexp"
	"strings"
)

var (
	isbn13     = regexp.MustCompile(`\b97[89]\d{10}\b`)
	isbn10     = regexp.MustCompile(`\b\d{9}[\dX]\b`)
	isbnLabel  = regexp.MustCompile(`(?i)\bISBN(?:-1[03])?\s*:?\s*([0-9][0-9\-]{8,16}[0-9Xx])`)
	validISBN  = regexp.MustCompile(`^(97[89]\d{10}|\d{9}[\dX])$`)
	whitespace = regexp.MustCompile(`\s+`)
)

// FindISBN searches text for a 13-digit ISBN starting with 978/979, then for
// a 10-character ISBN. It returns "" when neither is present.
func FindISBN(text string) string {
	text = CollapseSpace(text)
	if m := isbn13.FindString(text); m != "" {
		return m
	}
	return isbn10.FindString(text)
}

// LabeledISBN reads the identifier printed after an "ISBN" label, e.g.
// "ISBN-13: 978-0-13-468599-1". Hyphens are removed.
func LabeledISBN(text string) string {
	m := isbnLabel.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return NormalizeISBN(m[1])
}

// NormalizeISBN strips separators and returns the identifier when it has a
// valid ISBN-10 or ISBN-13 shape, or "" otherwise.
func NormalizeISBN(raw string) string {
	id := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(raw))
	if !validISBN.MatchString(id) {
		return ""
	}
	return id
}

// CollapseSpace folds runs of whitespace into single spaces.
func CollapseSpace(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

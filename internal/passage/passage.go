// Package passage composes the text the embedding model sees. The E5 model
// family distinguishes stored documents from search queries by prefix, so
// documents are emitted as "passage: ..." and queries as "query: ...".
package passage

import (
	"strings"

	"github.com/pravoline/allowdex/internal/domain"
)

const (
	documentPrefix = "passage: "
	queryPrefix    = "query: "

	fieldSeparator   = " | "
	subjectSeparator = "; "
)

// Normalize collapses whitespace runs to single spaces and trims the ends.
// Empty input (or whitespace-only input) yields an empty string; callers
// treat that as "nothing to embed", not as an error.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// BuildDocument combines allowance attributes into a single prefixed passage
// string. Fields appear in a fixed order and empty fields are omitted. If
// every field is empty the result is empty and the caller must skip embedding.
func BuildDocument(a domain.Allowance) string {
	var parts []string

	if name := Normalize(a.Name); name != "" {
		parts = append(parts, "name: "+name)
	}
	if level := Normalize(a.Level); level != "" {
		parts = append(parts, "level: "+level)
	}
	if basis := Normalize(a.LegalBasis); basis != "" {
		parts = append(parts, "legal_basis: "+basis)
	}
	if subjects := normalizeSubjects(a.Subjects); len(subjects) > 0 {
		parts = append(parts, "eligibility: "+strings.Join(subjects, subjectSeparator))
	}
	if validity := Normalize(a.ValidityPeriod); validity != "" {
		parts = append(parts, "validity: "+validity)
	}

	if len(parts) == 0 {
		return ""
	}
	return documentPrefix + strings.Join(parts, fieldSeparator)
}

// BuildQuery normalizes user input and applies the query prefix convention.
// Empty normalized input returns an empty string.
func BuildQuery(input string) string {
	cleaned := Normalize(input)
	if cleaned == "" {
		return ""
	}
	return queryPrefix + cleaned
}

func normalizeSubjects(subjects []string) []string {
	cleaned := make([]string, 0, len(subjects))
	for _, s := range subjects {
		if n := Normalize(s); n != "" {
			cleaned = append(cleaned, n)
		}
	}
	return cleaned
}

package domain

import "time"

// Allowance is one catalog entry: a state benefit with the attributes the
// embedding pipeline turns into a passage document. The catalog assigns the
// id; the core only reads entries to build and search documents.
type Allowance struct {
	ID             int64
	Name           string
	LegalBasis     string
	Level          string
	Subjects       []string
	ValidityPeriod string
	CreatedAt      time.Time
}

package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pravoline/allowdex/internal/domain"
)

// Hash field names for the allowance rows.
const (
	fieldName       = "name"
	fieldLegalBasis = "legal_basis"
	fieldLevel      = "level"
	fieldSubjects   = "subjects"
	fieldValidity   = "validity_period"
	fieldCreatedAt  = "created_at"
)

func encodeAllowance(a domain.Allowance) map[string]string {
	subjects, _ := json.Marshal(a.Subjects)
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return map[string]string{
		fieldName:       a.Name,
		fieldLegalBasis: a.LegalBasis,
		fieldLevel:      a.Level,
		fieldSubjects:   string(subjects),
		fieldValidity:   a.ValidityPeriod,
		fieldCreatedAt:  createdAt.Format(time.RFC3339Nano),
	}
}

func decodeAllowance(id int64, fields map[string]string) (domain.Allowance, error) {
	a := domain.Allowance{
		ID:             id,
		Name:           fields[fieldName],
		LegalBasis:     fields[fieldLegalBasis],
		Level:          fields[fieldLevel],
		ValidityPeriod: fields[fieldValidity],
	}

	if raw := fields[fieldSubjects]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &a.Subjects); err != nil {
			return domain.Allowance{}, fmt.Errorf("decode subjects of allowance %d: %w", id, err)
		}
	}
	if raw := fields[fieldCreatedAt]; raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return domain.Allowance{}, fmt.Errorf("decode created_at of allowance %d: %w", id, err)
		}
		a.CreatedAt = ts
	}
	return a, nil
}

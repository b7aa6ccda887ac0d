package passage

import (
	"testing"

	"github.com/pravoline/allowdex/internal/domain"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"\t\n", ""},
		{"hello", "hello"},
		{"  hello   world  ", "hello world"},
		{"a\tb\nc", "a b c"},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildDocument_AllFields(t *testing.T) {
	a := domain.Allowance{
		Name:           "  Molodaya   semya ",
		LegalBasis:     "FZ-157",
		Level:          "federal",
		Subjects:       []string{" young families ", "", "large families"},
		ValidityPeriod: "2024-2030",
	}

	want := "passage: name: Molodaya semya | level: federal | legal_basis: FZ-157 | " +
		"eligibility: young families; large families | validity: 2024-2030"
	if got := BuildDocument(a); got != want {
		t.Errorf("BuildDocument:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestBuildDocument_OmitsEmptyFields(t *testing.T) {
	a := domain.Allowance{Name: "Maternity capital"}

	want := "passage: name: Maternity capital"
	if got := BuildDocument(a); got != want {
		t.Errorf("BuildDocument = %q, want %q", got, want)
	}
}

func TestBuildDocument_AllEmpty(t *testing.T) {
	a := domain.Allowance{Name: "  ", Subjects: []string{"", "  "}}

	if got := BuildDocument(a); got != "" {
		t.Errorf("BuildDocument for empty allowance = %q, want empty", got)
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"housing  subsidy ", "query: housing subsidy"},
		{"", ""},
		{"   \t", ""},
	}

	for _, tt := range tests {
		if got := BuildQuery(tt.in); got != tt.want {
			t.Errorf("BuildQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

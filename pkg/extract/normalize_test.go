package extract

import (
	"testing"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		typ  common.EntityType
		in   string
		want string
	}{
		{common.EntityEmail, "John.Doe@Example.COM", "john.doe@example.com"},
		{common.EntityURL, "HTTPS://Example.com/A", "https://example.com/a"},
		{common.EntityPhone, "+1 (555) 123-4567", "15551234567"},
		{common.EntityPerson, "jOHN   doe-SMITH", "John Doe-Smith"},
		{common.EntityConcept, "  machine \n learning ", "machine learning"},
		{common.EntityMoney, "$3.5  million", "$3.5 million"},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			got := Normalize(tt.typ, tt.in)
			if got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := Normalize(tt.typ, got); again != got {
				t.Fatalf("Normalize is not idempotent: %q -> %q", got, again)
			}
		})
	}
}

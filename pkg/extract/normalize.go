package extract

import (
	"strings"
	"unicode"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
)

// Normalize returns the canonical form of an entity text. Every branch is
// idempotent: Normalize(t, Normalize(t, s)) == Normalize(t, s).
func Normalize(t common.EntityType, s string) string {
	switch t {
	case common.EntityEmail, common.EntityURL:
		return strings.ToLower(collapseSpace(s))
	case common.EntityPhone:
		return digitsOnly(s)
	case common.EntityPerson:
		return titleCase(collapseSpace(s))
	default:
		return collapseSpace(s)
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// titleCase upper-cases the first letter of every space or hyphen separated
// part and lower-cases the rest.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	start := true
	for _, r := range s {
		switch {
		case r == ' ' || r == '-':
			b.WriteRune(r)
			start = true
		case start:
			b.WriteRune(unicode.ToUpper(r))
			start = false
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

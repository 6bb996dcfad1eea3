package extract

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/OFFIS-RIT/kgraph/pkg/common"

	mapset "github.com/deckarep/golang-set/v2"
)

var (
	capitalizedRun = regexp.MustCompile(`\p{Lu}\p{Ll}+(?:[-']\p{Lu}?\p{Ll}+)*(?:[ \t]+\p{Lu}\p{Ll}+(?:[-']\p{Lu}?\p{Ll}+)*)+`)

	legalSuffixes = mapset.NewSet(
		"Inc", "LLC", "Ltd", "Corp", "Corporation", "Co", "Company", "GmbH", "AG", "SA",
		"PLC", "LLP", "Group", "Holdings", "Technologies", "Foundation", "University",
		"Institute", "Bank", "Labs",
	)
	placeSuffixes = mapset.NewSet(
		"Street", "St", "Avenue", "Ave", "Road", "Rd", "Boulevard", "Blvd", "Lane", "Ln",
		"Drive", "Way", "Plaza", "City", "County", "Province", "State", "Park", "Square",
		"Bridge", "River", "Lake", "Mountain", "Mountains", "Island", "Islands", "Valley",
		"Bay", "Beach", "Heights", "Harbor", "Port", "Strasse", "Platz",
	)

	organizationRe = suffixPhrase(legalSuffixes)
	locationRe     = suffixPhrase(placeSuffixes)
)

// suffixPhrase matches up to five capitalized words followed by one of the
// suffixes, for example "Acme Widgets Inc" or "Baker Street".
func suffixPhrase(suffixes mapset.Set[string]) *regexp.Regexp {
	alts := suffixes.ToSlice()
	for i, s := range alts {
		alts[i] = regexp.QuoteMeta(s)
	}
	// Longer alternatives first so "Corporation" wins over "Co".
	slices.SortFunc(alts, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return regexp.MustCompile(`(?:\p{Lu}[\p{L}\p{N}&'.-]*[ \t]+){1,5}(?:` + strings.Join(alts, "|") + `)\b`)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// atWordBoundary reports whether text[start:end] is not glued to letters or
// digits on either side.
func atWordBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

type token struct {
	text       string
	start, end int
}

func splitTokens(text string, offset int) []token {
	var out []token
	i := 0
	for i < len(text) {
		for i < len(text) && (text[i] == ' ' || text[i] == '\t') {
			i++
		}
		j := i
		for j < len(text) && text[j] != ' ' && text[j] != '\t' {
			j++
		}
		if j > i {
			out = append(out, token{text: text[i:j], start: offset + i, end: offset + j})
		}
		i = j
	}
	return out
}

// trimStopwords drops stopwords from both ends of a token run.
func trimStopwords(tokens []token, stop mapset.Set[string]) []token {
	for len(tokens) > 0 && stop.Contains(tokens[0].text) {
		tokens = tokens[1:]
	}
	for len(tokens) > 0 && stop.Contains(tokens[len(tokens)-1].text) {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

func tokenTexts(tokens []token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.text
	}
	return out
}

// personConfidence scores a run of capitalized tokens as a person name.
func personConfidence(tokens int, length int) float64 {
	c := 0.6
	if tokens == 2 {
		c += 0.2
	}
	if length < 4 || length > 50 {
		c -= 0.2
	}
	return common.Clamp01(c)
}

func (x *Extractor) extractPersons(text string) []common.Entity {
	var out []common.Entity
	for _, loc := range capitalizedRun.FindAllStringIndex(text, -1) {
		if !atWordBoundary(text, loc[0], loc[1]) {
			continue
		}
		tokens := trimStopwords(splitTokens(text[loc[0]:loc[1]], loc[0]), x.vocab.stopwords)
		if len(tokens) < 2 {
			continue
		}
		words := tokenTexts(tokens)
		if x.vocab.isConceptPhrase(words) || x.vocab.places.Contains(strings.Join(words, " ")) {
			continue
		}
		if containsAny(words, legalSuffixes) || containsAny(words, placeSuffixes) {
			continue
		}
		start, end := tokens[0].start, tokens[len(tokens)-1].end
		out = append(out, common.Entity{
			Text:       text[start:end],
			Type:       common.EntityPerson,
			StartPos:   start,
			EndPos:     end,
			Confidence: personConfidence(len(tokens), end-start),
			Metadata: common.EntityMetadata{
				Source:  common.SourceHeuristic,
				Pattern: "capitalized_sequence",
			},
		})
	}
	return out
}

func containsAny(words []string, set mapset.Set[string]) bool {
	for _, w := range words {
		if set.Contains(strings.TrimRight(w, ".,")) {
			return true
		}
	}
	return false
}

func (x *Extractor) extractSuffixed(text string, re *regexp.Regexp, typ common.EntityType, confidence float64, name string) []common.Entity {
	var out []common.Entity
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if !atWordBoundary(text, loc[0], loc[1]) {
			continue
		}
		tokens := trimStopwords(splitTokens(text[loc[0]:loc[1]], loc[0]), x.vocab.stopwords)
		if len(tokens) < 2 {
			continue
		}
		start, end := tokens[0].start, tokens[len(tokens)-1].end
		out = append(out, common.Entity{
			Text:       text[start:end],
			Type:       typ,
			StartPos:   start,
			EndPos:     end,
			Confidence: confidence,
			Metadata: common.EntityMetadata{
				Source:  common.SourceHeuristic,
				Pattern: name,
			},
		})
	}
	return out
}

// extractVocabulary matches vocabulary terms at word boundaries.
func extractVocabulary(text string, terms []vocabTerm, typ common.EntityType, confidence float64, source common.EntitySource) []common.Entity {
	var out []common.Entity
	for _, t := range terms {
		for _, loc := range t.re.FindAllStringIndex(text, -1) {
			if !atWordBoundary(text, loc[0], loc[1]) {
				continue
			}
			out = append(out, common.Entity{
				Text:       text[loc[0]:loc[1]],
				Type:       typ,
				StartPos:   loc[0],
				EndPos:     loc[1],
				Confidence: confidence,
				Metadata: common.EntityMetadata{
					Source:  source,
					Pattern: t.term,
					Extra:   map[string]any{"category": t.category},
				},
			})
		}
	}
	return out
}

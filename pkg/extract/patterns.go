package extract

import (
	"regexp"
	"strings"

	"github.com/OFFIS-RIT/kgraph/pkg/common"
)

// pattern is one regular expression for one entity type. score turns the
// matched text into a confidence.
type pattern struct {
	name  string
	typ   common.EntityType
	re    *regexp.Regexp
	score func(match string) float64
	trim  string
}

func fixed(v float64) func(string) float64 {
	return func(string) float64 { return v }
}

const monthNames = `(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)`

var patterns = []pattern{
	{
		name:  "email",
		typ:   common.EntityEmail,
		re:    regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9-]+(?:\.[A-Za-z0-9-]+)*`),
		score: scoreEmail,
		trim:  ".-",
	},
	{
		name:  "url",
		typ:   common.EntityURL,
		re:    regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"'()]+`),
		score: fixed(0.9),
		trim:  ".,;:!?",
	},
	{
		name:  "phone",
		typ:   common.EntityPhone,
		re:    regexp.MustCompile(`(?:\+\d{1,3}[\s.-]?)?(?:\(\d{2,4}\)|\b\d{2,4})[\s.-]?\d{3,4}[\s.-]?\d{3,4}\b`),
		score: scorePhone,
	},
	{
		name:  "date_iso",
		typ:   common.EntityDate,
		re:    regexp.MustCompile(`\b\d{4}-(?:0[1-9]|1[0-2])-(?:0[1-9]|[12]\d|3[01])\b`),
		score: fixed(0.9),
	},
	{
		name:  "date_numeric",
		typ:   common.EntityDate,
		re:    regexp.MustCompile(`\b(?:0?[1-9]|[12]\d|3[01])[/.](?:0?[1-9]|1[0-2]|[12]\d|3[01])[/.](?:\d{4}|\d{2})\b`),
		score: fixed(0.8),
	},
	{
		name:  "date_written",
		typ:   common.EntityDate,
		re:    regexp.MustCompile(`\b` + monthNames + `\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b|\b\d{1,2}(?:st|nd|rd|th)?\s+` + monthNames + `\.?,?\s+\d{4}\b`),
		score: fixed(0.85),
	},
	{
		name:  "time",
		typ:   common.EntityTime,
		re:    regexp.MustCompile(`(?i)\b(?:[01]?\d|2[0-3]):[0-5]\d(?::[0-5]\d)?(?:\s?[ap]\.?m\.?)?|\b(?:1[0-2]|0?[1-9])\s?[ap]\.?m\b\.?`),
		score: fixed(0.85),
	},
	{
		name:  "money",
		typ:   common.EntityMoney,
		re:    regexp.MustCompile(`(?i)[$€£¥]\s?\d{1,3}(?:,\d{3})*(?:\.\d+)?(?:\s?(?:million|billion|thousand|bn|[mk])\b)?|\b\d+(?:[.,]\d+)?\s?(?:usd|eur|gbp|dollars|euros|pounds)\b`),
		score: fixed(0.9),
	},
	{
		name:  "percent",
		typ:   common.EntityPercent,
		re:    regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s?(?:%|percent\b)`),
		score: fixed(0.9),
	},
	{
		name:  "number",
		typ:   common.EntityNumber,
		re:    regexp.MustCompile(`\b\d{1,3}(?:,\d{3})+(?:\.\d+)?\b|\b\d+(?:\.\d+)?\b`),
		score: fixed(0.6),
	},
}

func scoreEmail(m string) float64 {
	at := strings.IndexByte(m, '@')
	if at > 0 && strings.Contains(m[at:], ".") {
		return 0.95
	}
	return 0.7
}

func scorePhone(m string) float64 {
	if countDigits(m) >= 10 {
		return 0.9
	}
	return 0.6
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// extractPatterns runs every enabled pattern over text. NUMBER matches that
// overlap any other pattern match are dropped; they are almost always the
// digits of a phone number, date or amount.
func extractPatterns(text string, enabled func(common.EntityType) bool) []common.Entity {
	var out []common.Entity
	var numbers []common.Entity
	for _, p := range patterns {
		shadowsNumbers := p.typ != common.EntityNumber && enabled(common.EntityNumber)
		if !enabled(p.typ) && !shadowsNumbers {
			continue
		}
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			if p.trim != "" {
				trimmed := strings.TrimRight(text[start:end], p.trim)
				end = start + len(trimmed)
			}
			if end <= start {
				continue
			}
			match := text[start:end]
			e := common.Entity{
				Text:       match,
				Type:       p.typ,
				StartPos:   start,
				EndPos:     end,
				Confidence: p.score(match),
				Metadata: common.EntityMetadata{
					Source:  common.SourcePattern,
					Pattern: p.name,
				},
			}
			if p.typ == common.EntityNumber {
				numbers = append(numbers, e)
				continue
			}
			out = append(out, e)
		}
	}

	if enabled(common.EntityNumber) {
		for _, n := range numbers {
			covered := false
			for _, o := range out {
				if n.Overlaps(o) {
					covered = true
					break
				}
			}
			if !covered {
				out = append(out, n)
			}
		}
	}

	// Non-number matches were kept above to shadow numbers even when their
	// own type is disabled; drop them now.
	filtered := out[:0]
	for _, e := range out {
		if enabled(e.Type) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

package relate

import (
	"fmt"
	"os"
	"regexp"

	"github.com/OFFIS-RIT/kgraph/pkg/common"

	"gopkg.in/yaml.v3"
)

// TypePair is an allowed (source, target) entity type combination. An empty
// side matches any type.
type TypePair struct {
	Source common.EntityType `yaml:"source"`
	Target common.EntityType `yaml:"target"`
}

func (p TypePair) matches(source, target common.EntityType) bool {
	return (p.Source == "" || p.Source == source) && (p.Target == "" || p.Target == target)
}

// Trigger is one phrase rule. Pattern must capture the two endpoints in the
// named groups "source" and "target".
type Trigger struct {
	Name       string                  `yaml:"name"`
	Type       common.RelationshipType `yaml:"type"`
	Pattern    string                  `yaml:"pattern"`
	Bonus      float64                 `yaml:"bonus"`
	Compatible []TypePair              `yaml:"compatible"`
}

type compiledTrigger struct {
	Trigger
	re *regexp.Regexp
}

func (t compiledTrigger) compatible(source, target common.EntityType) bool {
	for _, p := range t.Compatible {
		if p.matches(source, target) {
			return true
		}
	}
	return false
}

const (
	namePhrase = `\p{Lu}[\p{L}\p{N}&.'-]*(?:[ \t]+\p{Lu}[\p{L}\p{N}&.'-]*){0,5}`
	datePhrase = `\d{4}-\d{2}-\d{2}|\p{Lu}\p{Ll}+\.? \d{1,2}(?:st|nd|rd|th)?,? \d{4}|\d{1,2}[/.]\d{1,2}[/.]\d{2,4}`
)

func phrase(verbs string) string {
	return fmt.Sprintf(`(?P<source>%s)\s+(?:%s)\s+(?P<target>%s)`, namePhrase, verbs, namePhrase)
}

var (
	personOrg = []TypePair{{Source: common.EntityPerson, Target: common.EntityOrganization}}
	orgOrg    = []TypePair{{Source: common.EntityOrganization, Target: common.EntityOrganization}}
)

// DefaultTriggers returns the built-in phrase rules.
func DefaultTriggers() []Trigger {
	return []Trigger{
		{
			Name: "works_for", Type: common.RelPersonWorksFor, Bonus: 0.2, Compatible: personOrg,
			Pattern: phrase(`works for|worked for|works at|worked at|is employed by|was employed by|joined`),
		},
		{
			Name: "founded", Type: common.RelPersonFounded, Bonus: 0.2, Compatible: personOrg,
			Pattern: phrase(`founded|co-founded|cofounded|established|started`),
		},
		{
			Name: "person_located_in", Type: common.RelPersonLocatedIn, Bonus: 0.15,
			Compatible: []TypePair{{Source: common.EntityPerson, Target: common.EntityLocation}},
			Pattern:    phrase(`lives in|lived in|resides in|was born in|moved to`),
		},
		{
			Name: "org_located_in", Type: common.RelOrgLocatedIn, Bonus: 0.15,
			Compatible: []TypePair{{Source: common.EntityOrganization, Target: common.EntityLocation}},
			Pattern:    phrase(`is headquartered in|is located in|is based in|has offices in|operates in`),
		},
		{
			Name: "acquired", Type: common.RelOrgAcquired, Bonus: 0.2, Compatible: orgOrg,
			Pattern: phrase(`acquired|bought|purchased|took over`),
		},
		{
			Name: "part_of", Type: common.RelPartOf, Bonus: 0.1,
			Compatible: []TypePair{
				{Source: common.EntityOrganization, Target: common.EntityOrganization},
				{Source: common.EntityPerson, Target: common.EntityOrganization},
				{Source: common.EntityLocation, Target: common.EntityLocation},
			},
			Pattern: phrase(`is part of|is a part of|is a member of|is a division of|is a subsidiary of|belongs to`),
		},
		{
			Name: "collaborates_with", Type: common.RelCollaboratesWith, Bonus: 0.1,
			Compatible: []TypePair{
				{Source: common.EntityPerson, Target: common.EntityPerson},
				{Source: common.EntityOrganization, Target: common.EntityOrganization},
			},
			Pattern: phrase(`collaborates with|collaborated with|partnered with|partners with|worked with|works with`),
		},
		{
			Name: "has_contact", Type: common.RelHasContact, Bonus: 0.2,
			Compatible: []TypePair{
				{Source: common.EntityPerson, Target: common.EntityEmail},
				{Source: common.EntityPerson, Target: common.EntityPhone},
				{Source: common.EntityOrganization, Target: common.EntityEmail},
				{Source: common.EntityOrganization, Target: common.EntityPhone},
			},
			Pattern: `(?P<source>` + namePhrase + `)(?:'s)?\s+(?:email|e-mail|phone|phone number|contact)(?:\s+address)?\s*(?:is|:)\s*(?P<target>[^\s,;]+)|` +
				`(?i:reach|contact|call|email)\s+(?P<source>` + namePhrase + `)\s+(?:at|via|on)\s+(?P<target>[^\s,;]+)`,
		},
		{
			Name: "occurred_on", Type: common.RelOccurredOn, Bonus: 0.15,
			Compatible: []TypePair{{Target: common.EntityDate}},
			Pattern:    `(?P<source>` + namePhrase + `)\s+(?:happened|took place|occurred|was held|was signed|was founded|launched|was released)\s+on\s+(?P<target>` + datePhrase + `)`,
		},
	}
}

// LoadTriggers reads trigger rules from a YAML list.
func LoadTriggers(path string) ([]Trigger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trigger file: %w", err)
	}
	var triggers []Trigger
	if err := yaml.Unmarshal(data, &triggers); err != nil {
		return nil, fmt.Errorf("failed to parse trigger file %s: %w", path, err)
	}
	return triggers, nil
}

func compileTriggers(triggers []Trigger) ([]compiledTrigger, error) {
	out := make([]compiledTrigger, 0, len(triggers))
	for _, t := range triggers {
		re, err := regexp.Compile(t.Pattern)
		if err != nil {
			return nil, fmt.Errorf("trigger %s: %w", t.Name, err)
		}
		if re.SubexpIndex("source") < 0 || re.SubexpIndex("target") < 0 {
			return nil, fmt.Errorf("trigger %s: pattern needs source and target groups", t.Name)
		}
		out = append(out, compiledTrigger{Trigger: t, re: re})
	}
	return out, nil
}

// spans returns the source and target group locations of one match. A
// pattern may define each group more than once in alternatives; the first
// group that participated wins.
func (t compiledTrigger) spans(loc []int) (source, target [2]int, ok bool) {
	source, target = [2]int{-1, -1}, [2]int{-1, -1}
	for i, n := range t.re.SubexpNames() {
		if loc[2*i] < 0 {
			continue
		}
		switch {
		case n == "source" && source[0] < 0:
			source = [2]int{loc[2*i], loc[2*i+1]}
		case n == "target" && target[0] < 0:
			target = [2]int{loc[2*i], loc[2*i+1]}
		}
	}
	return source, target, source[0] >= 0 && target[0] >= 0
}

package extract

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"gopkg.in/yaml.v3"
)

// Vocabulary holds the curated word lists the heuristic and concept
// strategies match against. It can be loaded from YAML:
//
//	concepts:
//	  technology: [machine learning, kubernetes]
//	  business: [acquisition, revenue]
//	locations: [Berlin, Oldenburg]
//	stopwords: [Contact, Dear]
type Vocabulary struct {
	Concepts  map[string][]string `yaml:"concepts"`
	Locations []string            `yaml:"locations"`
	Stopwords []string            `yaml:"stopwords"`
}

type vocabTerm struct {
	term     string
	category string
	re       *regexp.Regexp
}

// compiledVocabulary is the matcher form of a Vocabulary.
type compiledVocabulary struct {
	concepts  []vocabTerm
	locations []vocabTerm
	stopwords mapset.Set[string]
	lowered   mapset.Set[string]
	places    mapset.Set[string]
}

var defaultVocabulary = Vocabulary{
	Concepts: map[string][]string{
		"technology": {
			"artificial intelligence", "machine learning", "deep learning", "neural network",
			"natural language processing", "knowledge graph", "large language model",
			"cloud computing", "blockchain", "cybersecurity", "database", "data science",
			"big data", "microservices", "kubernetes", "open source", "semantic search",
			"vector database", "internet of things", "quantum computing", "robotics",
			"software engineering", "api",
		},
		"business": {
			"acquisition", "merger", "revenue", "supply chain", "market share", "startup",
			"venture capital", "investment", "business model", "customer experience",
			"digital transformation", "marketing", "profit margin", "partnership",
		},
		"science": {
			"climate change", "renewable energy", "genome", "vaccine", "sustainability",
			"carbon emissions", "electric vehicle",
		},
		"legal": {
			"intellectual property", "data protection", "compliance", "gdpr", "patent",
		},
	},
	Locations: []string{
		"Amsterdam", "Beijing", "Berlin", "Boston", "Brussels", "Chicago", "Dublin",
		"Frankfurt", "Hamburg", "Hong Kong", "London", "Los Angeles", "Madrid", "Munich",
		"New York", "Oldenburg", "Paris", "Rome", "San Francisco", "Seattle", "Shanghai",
		"Singapore", "Sydney", "Tokyo", "Toronto", "Vienna", "Zurich",
		"Australia", "Brazil", "Canada", "China", "France", "Germany", "India", "Italy",
		"Japan", "Netherlands", "Spain", "Switzerland", "United Kingdom", "United States",
		"Europe", "Asia", "Africa", "California", "Texas", "Bavaria",
	},
	Stopwords: []string{
		"A", "An", "And", "As", "At", "But", "By", "Call", "Contact", "Dear", "Email",
		"For", "From", "Hello", "Hi", "If", "In", "It", "Meet", "Mr", "Mrs", "Ms", "Dr",
		"On", "Or", "Our", "Please", "Prof", "Regards", "See", "So", "Thanks", "That",
		"The", "Their", "These", "This", "Those", "Today", "Tomorrow", "We", "When",
		"While", "With", "Yesterday", "Monday", "Tuesday", "Wednesday", "Thursday",
		"Friday", "Saturday", "Sunday", "January", "February", "March", "April", "May",
		"June", "July", "August", "September", "October", "November", "December",
	},
}

// DefaultVocabulary returns a copy of the built-in vocabulary.
func DefaultVocabulary() Vocabulary {
	v := Vocabulary{
		Concepts:  make(map[string][]string, len(defaultVocabulary.Concepts)),
		Locations: slices.Clone(defaultVocabulary.Locations),
		Stopwords: slices.Clone(defaultVocabulary.Stopwords),
	}
	for k, terms := range defaultVocabulary.Concepts {
		v.Concepts[k] = slices.Clone(terms)
	}
	return v
}

// LoadVocabulary reads a YAML vocabulary file. Sections missing from the file
// fall back to the built-in lists.
func LoadVocabulary(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("failed to read vocabulary file: %w", err)
	}
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Vocabulary{}, fmt.Errorf("failed to parse vocabulary file %s: %w", path, err)
	}
	def := DefaultVocabulary()
	if len(v.Concepts) == 0 {
		v.Concepts = def.Concepts
	}
	if len(v.Locations) == 0 {
		v.Locations = def.Locations
	}
	if len(v.Stopwords) == 0 {
		v.Stopwords = def.Stopwords
	}
	return v, nil
}

func compileVocabulary(v Vocabulary) *compiledVocabulary {
	cv := &compiledVocabulary{
		stopwords: mapset.NewSet[string](),
		lowered:   mapset.NewSet[string](),
		places:    mapset.NewSet[string](),
	}
	categories := make([]string, 0, len(v.Concepts))
	for c := range v.Concepts {
		categories = append(categories, c)
	}
	slices.Sort(categories)
	for _, c := range categories {
		for _, term := range v.Concepts[c] {
			if t := termMatcher(term, c); t != nil {
				cv.concepts = append(cv.concepts, *t)
				cv.lowered.Add(strings.ToLower(strings.Join(strings.Fields(term), " ")))
			}
		}
	}
	for _, loc := range v.Locations {
		if t := termMatcher(loc, "location"); t != nil {
			// Place names are proper nouns, match them case-sensitively.
			t.re = regexp.MustCompile(strings.TrimPrefix(t.re.String(), "(?i)"))
			cv.locations = append(cv.locations, *t)
			cv.places.Add(t.term)
		}
	}
	for _, s := range v.Stopwords {
		cv.stopwords.Add(strings.TrimSpace(s))
	}
	return cv
}

// termMatcher builds a case-insensitive, whitespace-tolerant matcher.
func termMatcher(term, category string) *vocabTerm {
	words := strings.Fields(term)
	if len(words) == 0 {
		return nil
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return &vocabTerm{
		term:     strings.Join(words, " "),
		category: category,
		re:       regexp.MustCompile(`(?i)` + strings.Join(quoted, `\s+`)),
	}
}

func (cv *compiledVocabulary) isConceptPhrase(tokens []string) bool {
	return cv.lowered.Contains(strings.ToLower(strings.Join(tokens, " ")))
}

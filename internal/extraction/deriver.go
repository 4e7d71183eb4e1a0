package extraction

import (
	"regexp"
	"strings"

	"github.com/converselabs/contextd/pkg/types"
)

// template is one inference pattern for the fact deriver. Unlike the lexical
// rules, a template only emits a fact when the span it captures contains the
// value of an already-extracted entity. This keeps inferred facts anchored to
// something the analyzer actually recognized instead of guessing from raw text.
type template struct {
	pattern    *regexp.Regexp
	key        func(entity types.EntityCandidate) string
	confidence float64
}

var defaultTemplates = []template{
	{
		// "I love Thai food", "I prefer trains" — preference statements.
		pattern: regexp.MustCompile(`(?i)\bi (?:love|like|enjoy|prefer) ([^,.!?\n]+)`),
		key: func(entity types.EntityCandidate) string {
			return "preference_" + slugify(entity.Value)
		},
		confidence: 0.85,
	},
	{
		// "I'm from Lisbon" — origin statements.
		pattern: regexp.MustCompile(`(?i)\bi(?:'m| am) from ([^,.!?\n]+)`),
		key: func(entity types.EntityCandidate) string {
			return "origin"
		},
		confidence: 0.90,
	},
}

// DeriveFacts cross-references text with entity candidates to produce
// higher-confidence composite facts. For each template match it searches the
// candidate slice in order and emits a fact for the first entity whose value
// appears (case-insensitively) inside the captured span. No matching entity
// means no fact.
func DeriveFacts(text string, entities []types.EntityCandidate) []types.Fact {
	if len(entities) == 0 {
		return nil
	}

	var facts []types.Fact
	for _, tmpl := range defaultTemplates {
		match := tmpl.pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		span := strings.ToLower(match[1])

		for _, entity := range entities {
			if entity.Value == "" {
				continue
			}
			if !strings.Contains(span, strings.ToLower(entity.Value)) {
				continue
			}
			facts = append(facts, types.Fact{
				Key:        tmpl.key(entity),
				Value:      entity.Value,
				Confidence: tmpl.confidence,
			})
			break
		}
	}

	return facts
}

// slugify lowercases a value and collapses whitespace runs to underscores so
// it can be embedded in a fact key.
func slugify(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), "_")
}

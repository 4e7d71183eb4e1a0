package extraction

import (
	"regexp"
	"strings"

	"github.com/converselabs/contextd/pkg/types"
)

// rule is one lexical fact pattern. Rules are independent: each is evaluated
// against the full input and contributes at most one fact per call. The
// confidence is a design constant, not computed.
type rule struct {
	pattern    *regexp.Regexp
	key        func(match []string) string
	value      func(match []string) string
	confidence float64
}

// staticKey returns a key function that ignores the match.
func staticKey(key string) func([]string) string {
	return func([]string) string { return key }
}

// lastGroup returns the trimmed text of the last capture group.
func lastGroup(match []string) string {
	return strings.TrimSpace(match[len(match)-1])
}

// defaultRules is the ordered lexical rule table. Order never affects which
// rules fire (they are independent) but does fix output order, which matters
// when a later pipeline stage deduplicates by key.
var defaultRules = []rule{
	{
		// "my favorite color is blue" → favorite_color=blue
		pattern: regexp.MustCompile(`(?i)\bmy favou?rite ([a-z]+) (?:is|are) ([^,.!?\n]+)`),
		key: func(match []string) string {
			return "favorite_" + strings.ToLower(match[1])
		},
		value:      lastGroup,
		confidence: 0.9,
	},
	{
		pattern:    regexp.MustCompile(`(?i)\bmy name is ([^,.!?\n]+)`),
		key:        staticKey("name"),
		value:      lastGroup,
		confidence: 0.95,
	},
	{
		pattern:    regexp.MustCompile(`(?i)\bi live in ([^,.!?\n]+)`),
		key:        staticKey("location"),
		value:      lastGroup,
		confidence: 0.9,
	},
	{
		pattern:    regexp.MustCompile(`(?i)\bi work (?:at|for) ([^,.!?\n]+)`),
		key:        staticKey("employer"),
		value:      lastGroup,
		confidence: 0.9,
	},
	{
		pattern:    regexp.MustCompile(`(?i)\bi(?:'m| am) from ([^,.!?\n]+)`),
		key:        staticKey("hometown"),
		value:      lastGroup,
		confidence: 0.9,
	},
	{
		pattern:    regexp.MustCompile(`(?i)\bi(?:'m| am) (\d{1,3}) years old\b`),
		key:        staticKey("age"),
		value:      lastGroup,
		confidence: 0.9,
	},
	{
		pattern:    regexp.MustCompile(`(?i)\bmy birthday is (?:on )?([^,.!?\n]+)`),
		key:        staticKey("birthday"),
		value:      lastGroup,
		confidence: 0.9,
	},
}

// Matcher is the stateless, pattern-based fast path for fact detection.
// It makes no external calls and has no failure mode: unmatched input
// yields an empty slice.
type Matcher struct {
	rules []rule
}

// NewMatcher creates a matcher with the default rule table.
func NewMatcher() *Matcher {
	return &Matcher{rules: defaultRules}
}

// Match evaluates every rule against text and returns the facts found,
// in rule-table order.
func (m *Matcher) Match(text string) []types.Fact {
	facts := []types.Fact{}

	for _, r := range m.rules {
		match := r.pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		value := r.value(match)
		if value == "" {
			continue
		}
		facts = append(facts, types.Fact{
			Key:        r.key(match),
			Value:      value,
			Confidence: r.confidence,
		})
	}

	return facts
}

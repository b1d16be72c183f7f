// Package annotation enriches narration text with emotion and pacing markers. Remote
// language model backends are tried first and the deterministic RuleSet is the
// fallback that always succeeds.
package annotation

import (
	"regexp"
	"strings"
	"unicode"
)

// Intensity tiers for punctuation-level markers.
const (
	sentencePauseIntensity = 0.3
	inhaleIntensity        = 0.5
	clausePauseIntensity   = 0.7
)

var paragraphBreak = regexp.MustCompile(`[ \t]*\n[ \t]*\n\s*`)

// Rule tags every whole-word, case-insensitive match of Pattern with Tag when the
// requested intensity is at least MinIntensity.
type Rule struct {
	Pattern      *regexp.Regexp
	Tag          string
	MinIntensity float64
}

// NewRule builds a Rule matching any of the given words or phrases.
func NewRule(tag string, minIntensity float64, words ...string) Rule {
	quoted := make([]string, len(words))
	for index, word := range words {
		quoted[index] = regexp.QuoteMeta(word)
	}

	return Rule{
		Pattern:      regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`),
		Tag:          "(" + tag + ")",
		MinIntensity: minIntensity,
	}
}

// DefaultRules returns the built-in emotion table in application order.
func DefaultRules() []Rule {
	return []Rule{
		NewRule("laughs", 0.2, "ha ha", "haha", "funny", "joke", "humor"),
		NewRule("sighs", 0.3, "oh dear", "oh no", "unfortunately", "sadly"),
		NewRule("gasps", 0.4, "wow", "amazing", "incredible", "unbelievable"),
		NewRule("whispers", 0.1, "whisper", "quietly", "softly"),
		NewRule("clears throat", 0.3, "ahem", "um", "well"),
		NewRule("sighs", 0.2, "tired", "exhausted", "weary"),
		NewRule("gasps", 0.4, "surprise", "shocked", "startled"),
		NewRule("coughs", 0.3, "cough", "cold", "sick"),
	}
}

// RuleSet is the deterministic pattern-based annotator. It never fails and performs no
// I/O, so it is safe for concurrent use.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet creates a RuleSet. A nil or empty table selects DefaultRules.
func NewRuleSet(rules []Rule) *RuleSet {
	if len(rules) == 0 {
		rules = DefaultRules()
	}

	return &RuleSet{rules: rules}
}

// Apply annotates text for the given intensity. Word-level emotion tags are inserted
// first, then sentence pauses above 0.3, breathing at paragraph breaks above 0.5 and
// clause pauses above 0.7.
func (r *RuleSet) Apply(text string, intensity float64) string {
	annotated := text

	for _, rule := range r.rules {
		if intensity >= rule.MinIntensity {
			annotated = tagMatches(annotated, rule)
		}
	}

	annotated = InsertPauses(
		annotated,
		intensity > sentencePauseIntensity,
		intensity > clausePauseIntensity,
	)

	if intensity > inhaleIntensity {
		annotated = insertInhales(annotated)
	}

	return annotated
}

// tagMatches appends the rule tag after each match unless a marker already follows it.
func tagMatches(text string, rule Rule) string {
	matches := rule.Pattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var builder strings.Builder

	last := 0

	for _, match := range matches {
		end := match[1]
		builder.WriteString(text[last:end])

		last = end

		if strings.HasPrefix(strings.TrimLeftFunc(text[end:], unicode.IsSpace), "(") {
			continue
		}

		builder.WriteByte(' ')
		builder.WriteString(rule.Tag)
	}

	builder.WriteString(text[last:])

	return builder.String()
}

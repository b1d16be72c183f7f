package annotation_test

import (
	"strings"
	"testing"
	"time"

	"github.com/book-expert/narration-service/internal/annotation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleSet_Apply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		intensity float64
		expected  string
	}{
		{
			name:      "exclamation with clause and sentence pauses",
			input:     "Wow, that's amazing!",
			intensity: 0.8,
			expected:  "Wow (gasps), (brief pause) that's amazing (gasps)! (pauses)",
		},
		{
			name:      "zero intensity leaves text alone",
			input:     "Wow, that's amazing!",
			intensity: 0,
			expected:  "Wow, that's amazing!",
		},
		{
			name:      "low tier only whispers",
			input:     "She spoke softly. It was funny.",
			intensity: 0.1,
			expected:  "She spoke softly (whispers). It was funny.",
		},
		{
			name:      "moderate tier adds sentence pauses only",
			input:     "Oh no, I am tired. Go on.",
			intensity: 0.5,
			expected:  "Oh no (sighs), I am tired (sighs). (pauses) Go on. (pauses)",
		},
		{
			name:      "whole words only",
			input:     "The wowed crowd coughed.",
			intensity: 1,
			expected:  "The wowed crowd coughed. (pauses)",
		},
		{
			name:      "case insensitive",
			input:     "HAHA that was a JOKE",
			intensity: 0.4,
			expected:  "HAHA (laughs) that was a JOKE (laughs)",
		},
		{
			name:      "paragraph breaks become inhales",
			input:     "It ended.\n\nThen it began",
			intensity: 0.6,
			expected:  "It ended. (pauses) (inhales) Then it began",
		},
	}

	rules := annotation.NewRuleSet(nil)

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, rules.Apply(testCase.input, testCase.intensity))
		})
	}
}

func TestRuleSet_ApplyIsDeterministic(t *testing.T) {
	t.Parallel()

	rules := annotation.NewRuleSet(nil)
	input := "Well, well. Unfortunately the joke was incredible; I was shocked!\n\nAhem."

	for _, intensity := range []float64{0, 0.1, 0.25, 0.3, 0.45, 0.7, 0.71, 1} {
		first := rules.Apply(input, intensity)
		for range 5 {
			assert.Equal(t, first, rules.Apply(input, intensity))
		}
	}
}

func TestRuleSet_ApplyDoesNotRetagAnnotatedText(t *testing.T) {
	t.Parallel()

	rules := annotation.NewRuleSet(nil)
	once := rules.Apply("Wow, that's amazing! It was funny.", 0.9)
	twice := rules.Apply(once, 0.9)

	assert.Equal(t, once, twice)
	assert.Equal(t, 1, strings.Count(twice, "amazing (gasps)"))
}

func TestRuleSet_CustomRules(t *testing.T) {
	t.Parallel()

	rules := annotation.NewRuleSet([]annotation.Rule{
		annotation.NewRule("excited", 0.5, "hooray"),
	})

	assert.Equal(t, "Hooray (excited)", rules.Apply("Hooray", 0.5))
	assert.Equal(t, "Hooray", rules.Apply("Hooray", 0.2))
}

func TestInsertPauses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		sentences bool
		clauses   bool
		expected  string
	}{
		{
			name:      "sentence and clause",
			input:     "Hello, world. Bye!",
			sentences: true,
			clauses:   true,
			expected:  "Hello, (brief pause) world. (pauses) Bye! (pauses)",
		},
		{
			name:      "sentences only",
			input:     "Hello, world. Bye!",
			sentences: true,
			expected:  "Hello, world. (pauses) Bye! (pauses)",
		},
		{
			name:      "disabled",
			input:     "Hello, world.",
			expected:  "Hello, world.",
			sentences: false,
		},
		{
			name:      "decimals and urls untouched",
			input:     "Pi is 3.14 and see example.com today",
			sentences: true,
			clauses:   true,
			expected:  "Pi is 3.14 and see example.com today",
		},
		{
			name:      "terminator runs and closing quotes",
			input:     `He asked "why?!" and left...`,
			sentences: true,
			expected:  `He asked "why?!" (pauses) and left... (pauses)`,
		},
		{
			name:      "existing markers are kept",
			input:     "Done. (pauses) Next, (brief pause) then. (inhales) End.",
			sentences: true,
			clauses:   true,
			expected:  "Done. (pauses) Next, (brief pause) then. (inhales) End. (pauses)",
		},
		{
			name:      "marker after a line break",
			input:     "Done.\n\t(pauses) Next (pause",
			sentences: true,
			expected:  "Done.\n\t(pauses) Next (pause",
		},
		{
			name:      "whitespace preserved",
			input:     "One.\nTwo.",
			sentences: true,
			expected:  "One. (pauses)\nTwo. (pauses)",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			output := annotation.InsertPauses(testCase.input, testCase.sentences, testCase.clauses)
			assert.Equal(t, testCase.expected, output)
			assert.Equal(t, output, annotation.InsertPauses(output, testCase.sentences, testCase.clauses))
		})
	}
}

func TestInsertPauses_BookLengthInput(t *testing.T) {
	t.Parallel()

	const sentences = 20000

	input := strings.Repeat("It was late, and the house was quiet. ", sentences)

	started := time.Now()
	output := annotation.InsertPauses(input, true, true)
	elapsed := time.Since(started)

	require.Less(t, elapsed, 5*time.Second)
	assert.Equal(t, sentences, strings.Count(output, annotation.MarkerPause))
	assert.Equal(t, sentences, strings.Count(output, annotation.MarkerBriefPause))
	assert.Equal(t, output, annotation.InsertPauses(output, true, true))
}

package text_test

import (
	"testing"

	"github.com/book-expert/narration-service/internal/tts/text"
)

// preprocessorTestCase defines a standard test case for the preprocessor.
type preprocessorTestCase struct {
	name     string
	input    string
	expected string
}

// runPreprocessorTests runs table-driven tests against PreprocessText.
func runPreprocessorTests(t *testing.T, tests []preprocessorTestCase) {
	t.Helper()

	preprocessor := text.NewPreprocessor()

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			result := preprocessor.PreprocessText(testCase.input)
			if result != testCase.expected {
				t.Errorf("Expected %q, got %q", testCase.expected, result)
			}
		})
	}
}

func TestNewPreprocessor(t *testing.T) {
	t.Parallel()

	preprocessor := text.NewPreprocessor()
	if preprocessor == nil {
		t.Fatal("NewPreprocessor returned nil")
	}
}

func TestPreprocessor_PreprocessText_EmptyInput(t *testing.T) {
	t.Parallel()

	preprocessor := text.NewPreprocessor()

	result := preprocessor.PreprocessText("   ")
	if result != "" {
		t.Errorf("Expected empty string for blank input, got %q", result)
	}
}

func TestPreprocessor_PreprocessText_BasicText(t *testing.T) {
	t.Parallel()

	runPreprocessorTests(t, []preprocessorTestCase{
		{name: "adds terminator", input: "Hello world", expected: "Hello world."},
		{name: "keeps terminator", input: "Hello world!", expected: "Hello world!"},
		{name: "collapses whitespace", input: "Hello \n\t world.", expected: "Hello world."},
	})
}

func TestPreprocessor_PreprocessText_AbbreviationExpansion(t *testing.T) {
	t.Parallel()

	runPreprocessorTests(t, []preprocessorTestCase{
		{name: "Mr expansion", input: "Mr. Smith", expected: "Mister Smith."},
		{name: "Mrs expansion", input: "Mrs. Smith", expected: "Misses Smith."},
		{name: "Dr expansion", input: "Dr. Johnson", expected: "Doctor Johnson."},
		{name: "word suffix untouched", input: "Bring the items.", expected: "Bring the items."},
	})
}

func TestPreprocessor_PreprocessText_Numbers(t *testing.T) {
	t.Parallel()

	runPreprocessorTests(t, []preprocessorTestCase{
		{name: "single digit", input: "I have 3 cats", expected: "I have three cats."},
		{name: "teen", input: "She is 15", expected: "She is fifteen."},
		{name: "hundreds", input: "Page 342", expected: "Page three hundred forty two."},
		{name: "thousands", input: "In 1999 it ended", expected: "In one thousand nine hundred ninety nine it ended."},
		{name: "zero", input: "0 left", expected: "zero left."},
		{name: "speaker markers kept", input: "[S1] I ate 2 [S2]", expected: "[S1] I ate two [S2]"},
	})
}

func TestPreprocessor_PreprocessText_Punctuation(t *testing.T) {
	t.Parallel()

	runPreprocessorTests(t, []preprocessorTestCase{
		{name: "repeated marks", input: "Stop!!! Now??", expected: "Stop! Now?"},
		{name: "ellipsis kept", input: "Well...", expected: "Well..."},
		{name: "dash normalized", input: "wait—what", expected: "wait-what."},
		{name: "smart quotes", input: "“Hi” she said.", expected: `"Hi" she said.`},
		{name: "marker not terminated", input: "Wow! (pauses)", expected: "Wow! (pauses)"},
	})
}

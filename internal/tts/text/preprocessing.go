// Package text provides text preprocessing utilities for narration: sentence splitting,
// sentence-aligned chunking, speaker-turn tagging and speech normalization.
//
// Nothing in this package removes annotation markers such as "(pauses)"; every
// transformation is safe to run on annotated text.
package text

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// NumberBaseTen represents the base for decimal number system.
	NumberBaseTen = 10
	// NumberBaseTwenty represents the boundary for teen numbers.
	NumberBaseTwenty = 20
	// NumberBaseHundred represents the base for hundreds.
	NumberBaseHundred = 100
	// NumberBaseThousand represents the base for thousands.
	NumberBaseThousand = 1000
	// MaxNumberForWords represents the maximum number that can be converted to words.
	MaxNumberForWords = 999999
)

// Regex patterns for text preprocessing.
const (
	abbreviationRegexPattern = `\b(Mrs|Mr|Ms|Dr|St|Co|Ltd|Corp|Inc)\.`
	numberRegexPattern       = `\b\d+\b`
	speakerMarkerRegex       = `\[S\d+\]`
)

// Punctuation and formatting constants.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

// Preprocessor normalizes narration text into a form speech backends read aloud well.
type Preprocessor struct {
	abbreviationPattern *regexp.Regexp
	numberPattern       *regexp.Regexp
	markerPattern       *regexp.Regexp
	abbreviations       map[string]string
	punctuationReplacer *strings.Replacer
}

// NewPreprocessor creates a new text preprocessor with compiled patterns and replacers.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		abbreviationPattern: regexp.MustCompile(abbreviationRegexPattern),
		numberPattern:       regexp.MustCompile(numberRegexPattern),
		markerPattern:       regexp.MustCompile(speakerMarkerRegex),
		abbreviations: map[string]string{
			"Mr":   "Mister",
			"Mrs":  "Misses",
			"Ms":   "Miss",
			"Dr":   "Doctor",
			"St":   "Saint",
			"Co":   "Company",
			"Ltd":  "Limited",
			"Corp": "Corporation",
			"Inc":  "Incorporated",
		},
		punctuationReplacer: strings.NewReplacer(
			emDash, "-",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, ellipsis,
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// PreprocessText performs speech normalization. Cheaper transformations run first.
func (p *Preprocessor) PreprocessText(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}

	normalized := p.expandAbbreviations(input)
	normalized = p.normalizeNumbers(normalized)
	normalized = p.punctuationReplacer.Replace(normalized)
	normalized = NormalizeWhitespace(normalized)
	normalized = collapseRepeatedPunctuation(normalized)

	return ensureProperSentenceEnding(normalized)
}

// expandAbbreviations converts common abbreviations to their full form. Matching is
// anchored on word boundaries so "items." is left alone.
func (p *Preprocessor) expandAbbreviations(input string) string {
	return p.abbreviationPattern.ReplaceAllStringFunc(input, func(match string) string {
		expanded, found := p.abbreviations[strings.TrimSuffix(match, ".")]
		if !found {
			return match
		}

		return expanded
	})
}

// normalizeNumbers converts standalone integers to words. Digits inside speaker markers
// such as "[S1]" are preserved.
func (p *Preprocessor) normalizeNumbers(input string) string {
	markers := p.markerPattern.FindAllStringIndex(input, -1)

	var builder strings.Builder

	last := 0

	for _, match := range p.numberPattern.FindAllStringIndex(input, -1) {
		if insideAny(match[0], markers) {
			continue
		}

		builder.WriteString(input[last:match[0]])

		number, err := strconv.Atoi(input[match[0]:match[1]])
		if err != nil {
			builder.WriteString(input[match[0]:match[1]])
		} else {
			builder.WriteString(integerToWords(number))
		}

		last = match[1]
	}

	builder.WriteString(input[last:])

	return builder.String()
}

func insideAny(position int, spans [][]int) bool {
	for _, span := range spans {
		if position >= span[0] && position < span[1] {
			return true
		}
	}

	return false
}

// collapseRepeatedPunctuation folds runs of the same punctuation mark ("!!!" -> "!").
// Different marks in sequence, like "!)" or ".)", are kept.
func collapseRepeatedPunctuation(input string) string {
	var (
		builder  strings.Builder
		previous rune
	)

	for _, char := range input {
		if unicode.IsPunct(char) && char == previous && char != '.' {
			continue
		}

		builder.WriteRune(char)

		previous = char
	}

	return builder.String()
}

// ensureProperSentenceEnding appends a period unless the text already ends with a
// terminator or a closing marker.
func ensureProperSentenceEnding(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	lastChar, _ := utf8.DecodeLastRuneInString(trimmed)

	switch lastChar {
	case '.', '!', '?', ')', ']', '"', '\'':
		return trimmed
	default:
		return trimmed + "."
	}
}

// numberConverter converts integers into their English word representation.
type numberConverter struct {
	ones  []string
	teens []string
	tens  []string
}

func newNumberConverter() *numberConverter {
	return &numberConverter{
		ones: []string{
			"", "one", "two", "three", "four", "five",
			"six", "seven", "eight", "nine",
		},
		teens: []string{
			"ten", "eleven", "twelve", "thirteen", "fourteen",
			"fifteen", "sixteen", "seventeen", "eighteen", "nineteen",
		},
		tens: []string{
			"", "", "twenty", "thirty", "forty", "fifty",
			"sixty", "seventy", "eighty", "ninety",
		},
	}
}

func (nc *numberConverter) convertUnderHundred(num int) string {
	if num < NumberBaseTen {
		return nc.ones[num]
	}

	if num < NumberBaseTwenty {
		return nc.teens[num-NumberBaseTen]
	}

	result := nc.tens[num/NumberBaseTen]
	if num%NumberBaseTen > 0 {
		result += " " + nc.ones[num%NumberBaseTen]
	}

	return result
}

func (nc *numberConverter) convertUnderThousand(num int) string {
	parts := make([]string, 0, 2)

	if hundreds := num / NumberBaseHundred; hundreds > 0 {
		parts = append(parts, nc.ones[hundreds]+" hundred")
	}

	if remainder := num % NumberBaseHundred; remainder > 0 {
		parts = append(parts, nc.convertUnderHundred(remainder))
	}

	return strings.Join(parts, " ")
}

func integerToWords(number int) string {
	if number < 0 || number > MaxNumberForWords {
		return strconv.Itoa(number)
	}

	if number == 0 {
		return "zero"
	}

	converter := newNumberConverter()
	parts := make([]string, 0, 2)

	if thousands := number / NumberBaseThousand; thousands > 0 {
		parts = append(parts, converter.convertUnderThousand(thousands)+" thousand")
	}

	if remainder := number % NumberBaseThousand; remainder > 0 {
		parts = append(parts, converter.convertUnderThousand(remainder))
	}

	return strings.Join(parts, " ")
}

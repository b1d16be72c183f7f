package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SplitSentences splits text after runs of terminal punctuation that are followed by
// whitespace or the end of input. Parenthesised markers that directly follow a
// terminator, such as "(pauses)", stay attached to the sentence they close.
// Returned sentences are trimmed and never empty.
func SplitSentences(input string) []string {
	runes := []rune(input)
	sentences := make([]string, 0)
	start := 0
	index := 0

	for index < len(runes) {
		if !isTerminal(runes[index]) {
			index++

			continue
		}

		end := index
		for end < len(runes) && (isTerminal(runes[end]) || isCloser(runes[end])) {
			end++
		}

		// Decimal points, initials and URLs are not boundaries.
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			index = end

			continue
		}

		end = absorbMarkers(runes, end)
		sentences = appendTrimmed(sentences, runes[start:end])
		start = end
		index = end
	}

	return appendTrimmed(sentences, runes[start:])
}

// RuneLen returns the number of characters in s.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// NormalizeWhitespace collapses every whitespace run to a single space and trims the
// result.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	default:
		return false
	}
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’':
		return true
	default:
		return false
	}
}

// absorbMarkers extends a sentence end over whitespace-separated "(...)" groups.
func absorbMarkers(runes []rune, end int) int {
	for {
		next := end
		for next < len(runes) && unicode.IsSpace(runes[next]) {
			next++
		}

		if next >= len(runes) || runes[next] != '(' {
			return end
		}

		closing := -1

		for k := next + 1; k < len(runes); k++ {
			if runes[k] == ')' {
				closing = k

				break
			}
		}

		if closing < 0 || (closing+1 < len(runes) && !unicode.IsSpace(runes[closing+1])) {
			return end
		}

		end = closing + 1
	}
}

func appendTrimmed(sentences []string, segment []rune) []string {
	sentence := NormalizeWhitespace(string(segment))
	if sentence == "" {
		return sentences
	}

	return append(sentences, sentence)
}

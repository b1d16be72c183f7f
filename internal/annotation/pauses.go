package annotation

import (
	"strings"
	"unicode"
)

// Pause and breathing markers understood by the dialogue synthesis backends.
const (
	MarkerPause      = "(pauses)"
	MarkerBriefPause = "(brief pause)"
	MarkerInhale     = "(inhales)"
)

var pauseMarkerRunes = [][]rune{[]rune(MarkerPause), []rune(MarkerBriefPause), []rune(MarkerInhale)}

// InsertPauses adds MarkerPause after sentence terminators and, when clauses is true,
// MarkerBriefPause after clause punctuation. A boundary is punctuation followed by
// whitespace or the end of text. Boundaries already followed by a pause marker are left
// alone, so the function is idempotent. Existing whitespace is preserved.
func InsertPauses(text string, sentences, clauses bool) string {
	if !sentences && !clauses {
		return text
	}

	runes := []rune(text)

	var builder strings.Builder

	builder.Grow(len(text) + len(text)/4)

	index := 0
	for index < len(runes) {
		current := runes[index]

		marker := ""

		switch {
		case sentences && isSentenceTerminal(current):
			marker = MarkerPause
		case clauses && isClausePunctuation(current):
			marker = MarkerBriefPause
		}

		if marker == "" {
			builder.WriteRune(current)
			index++

			continue
		}

		end := boundaryEnd(runes, index, marker == MarkerPause)
		builder.WriteString(string(runes[index:end]))
		index = end

		if !isBoundary(runes, end) || hasPauseMarker(runes, end) {
			continue
		}

		builder.WriteByte(' ')
		builder.WriteString(marker)
	}

	return builder.String()
}

// insertInhales replaces each paragraph break with a breathing marker.
func insertInhales(text string) string {
	return paragraphBreak.ReplaceAllString(text, " "+MarkerInhale+" ")
}

// boundaryEnd returns the index after a run of terminal punctuation and closing quotes or
// brackets. Clause punctuation never extends.
func boundaryEnd(runes []rune, start int, sentence bool) int {
	end := start + 1
	if !sentence {
		return end
	}

	for end < len(runes) && (isSentenceTerminal(runes[end]) || isCloser(runes[end])) {
		end++
	}

	return end
}

func isBoundary(runes []rune, position int) bool {
	return position >= len(runes) || unicode.IsSpace(runes[position])
}

// hasPauseMarker reports whether a pause marker follows position after optional
// whitespace. It reads only as far as the longest marker.
func hasPauseMarker(runes []rune, position int) bool {
	for position < len(runes) && unicode.IsSpace(runes[position]) {
		position++
	}

	for _, marker := range pauseMarkerRunes {
		if hasRunePrefix(runes[position:], marker) {
			return true
		}
	}

	return false
}

func hasRunePrefix(runes, prefix []rune) bool {
	if len(runes) < len(prefix) {
		return false
	}

	for index, r := range prefix {
		if runes[index] != r {
			return false
		}
	}

	return true
}

func isSentenceTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isClausePunctuation(r rune) bool {
	return r == ',' || r == ';' || r == ':'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’':
		return true
	default:
		return false
	}
}

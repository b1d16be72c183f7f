package text

import "strings"

// DefaultChunkLength is the chunk size used for annotation when none is configured.
const DefaultChunkLength = 200

// SplitChunks groups whole sentences into chunks shorter than maxLen characters once
// rejoined with single spaces. A sentence that alone exceeds maxLen becomes its own
// chunk; sentences are never split. A non-positive maxLen yields a single chunk.
func SplitChunks(input string, maxLen int) []string {
	sentences := SplitSentences(input)
	if len(sentences) == 0 {
		return nil
	}

	if maxLen <= 0 {
		return []string{strings.Join(sentences, " ")}
	}

	chunks := make([]string, 0, len(sentences))
	current := ""

	for _, sentence := range sentences {
		if current == "" {
			current = sentence

			continue
		}

		// current + " " + sentence must fit in maxLen.
		if RuneLen(current)+RuneLen(sentence) < maxLen {
			current += " " + sentence

			continue
		}

		chunks = append(chunks, current)
		current = sentence
	}

	return append(chunks, current)
}

// JoinChunks reassembles chunks in order, trimming each and separating them with a
// single space. Empty chunks are skipped.
func JoinChunks(chunks []string) string {
	parts := make([]string, 0, len(chunks))

	for _, chunk := range chunks {
		trimmed := strings.TrimSpace(chunk)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}

	return strings.Join(parts, " ")
}

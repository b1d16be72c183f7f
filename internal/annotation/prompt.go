package annotation

import (
	"fmt"
	"strings"
)

const promptTemplate = `You are an audiobook narrator editor. Add ONLY %s emotional cues in parentheses to the following text. Do NOT change, rephrase, or add any other words. Only insert emotion annotations like (laughs), (sighs), (whispers), (pauses), (excited), (sad) where appropriate.

Original text: "%s"

Return ONLY the original text with added emotion annotations in parentheses:`

// Labels that models tend to echo in front of their answer.
var echoedLabels = []string{
	"Annotated version:",
	"Annotated text:",
	"Annotated:",
	"Enhanced text:",
	"Original text:",
	"Text:",
}

// IntensityLevel describes an intensity in the words used by the prompt.
func IntensityLevel(intensity float64) string {
	switch {
	case intensity < 0.3:
		return "subtle"
	case intensity < 0.7:
		return "moderate"
	default:
		return "expressive"
	}
}

// BuildPrompt renders the annotation instruction for one chunk.
func BuildPrompt(text string, intensity float64) string {
	return fmt.Sprintf(promptTemplate, IntensityLevel(intensity), text)
}

// CleanResponse strips quoting and echoed prompt artifacts from a model answer. When
// the answer repeats the original text followed by extra annotations, the two are
// joined with a single space.
func CleanResponse(response, original string) string {
	cleaned := strings.TrimSpace(response)

	for _, label := range echoedLabels {
		if index := strings.LastIndex(cleaned, label); index >= 0 {
			cleaned = strings.TrimSpace(cleaned[index+len(label):])
		}
	}

	cleaned = strings.TrimSpace(strings.ReplaceAll(cleaned, `"`, ""))

	trimmedOriginal := strings.TrimSpace(original)
	if trimmedOriginal != "" && cleaned != trimmedOriginal &&
		strings.HasPrefix(cleaned, trimmedOriginal) {
		tail := strings.TrimSpace(cleaned[len(trimmedOriginal):])
		if tail != "" {
			return trimmedOriginal + " " + tail
		}
	}

	return cleaned
}

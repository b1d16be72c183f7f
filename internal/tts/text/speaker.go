package text

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultMinScaffoldChars is the length below which unmarked text is embedded in a
// carrier phrase.
const DefaultMinScaffoldChars = 20

const (
	speakerOne = 1
	speakerTwo = 2

	speakerMarkerPattern = `\[S(\d+)\]`
	speakerMarkerFormat  = "[S%d]"

	// Carrier phrases for inputs too short to condition a dialogue model.
	shortCarrierFormat = "[S2] Here is what you wanted to hear. [S1] %s [S2] That was perfect. [S1]"
	singleCarrierFmt   = "[S2] Let me read this for you. [S1] %s [S2] Hope you enjoyed that. [S1]"
)

// SpeakerTagger normalizes speaker-turn markers for dialogue synthesis backends.
// Output always starts and ends with a marker and no marker is immediately followed by
// the same marker.
type SpeakerTagger struct {
	minChars      int
	markerPattern *regexp.Regexp
}

type speakerSegment struct {
	speaker int
	content string
}

// NewSpeakerTagger creates a tagger. A non-positive minChars selects
// DefaultMinScaffoldChars.
func NewSpeakerTagger(minChars int) *SpeakerTagger {
	if minChars <= 0 {
		minChars = DefaultMinScaffoldChars
	}

	return &SpeakerTagger{
		minChars:      minChars,
		markerPattern: regexp.MustCompile(speakerMarkerPattern),
	}
}

// HasMarkers reports whether text already contains speaker markers.
func (t *SpeakerTagger) HasMarkers(input string) bool {
	return t.markerPattern.MatchString(input)
}

// HasSpeech reports whether text contains anything besides speaker markers and
// whitespace.
func (t *SpeakerTagger) HasSpeech(input string) bool {
	return strings.TrimSpace(t.markerPattern.ReplaceAllString(input, "")) != ""
}

// Normalize returns text with explicit, strictly alternating speaker markers.
// Input without speech (see HasSpeech) yields an empty string; callers reject it first.
func (t *SpeakerTagger) Normalize(input string) string {
	cleaned := NormalizeWhitespace(input)
	if !t.HasSpeech(cleaned) {
		return ""
	}

	if t.HasMarkers(cleaned) {
		return renderSegments(t.parseSegments(cleaned))
	}

	if RuneLen(cleaned) < t.minChars {
		return fmt.Sprintf(shortCarrierFormat, ensureTerminator(cleaned))
	}

	sentences := SplitSentences(cleaned)
	if len(sentences) == 1 {
		return fmt.Sprintf(singleCarrierFmt, ensureTerminator(sentences[0]))
	}

	return renderSegments(alternateSentences(sentences))
}

// alternateSentences gives the first sentence its own turn, then switches speaker every
// two sentences.
func alternateSentences(sentences []string) []speakerSegment {
	segments := make([]speakerSegment, 0, len(sentences)/2+1)
	speaker := speakerOne

	segments = append(segments, speakerSegment{speaker: speaker, content: sentences[0]})

	for index := 1; index < len(sentences); index += 2 {
		speaker = otherSpeaker(speaker)
		end := min(index+2, len(sentences))
		segments = append(segments, speakerSegment{
			speaker: speaker,
			content: strings.Join(sentences[index:end], " "),
		})
	}

	return segments
}

// parseSegments splits marked text into speaker turns. Leading unmarked text is given to
// the speaker that does not open the marked section.
func (t *SpeakerTagger) parseSegments(input string) []speakerSegment {
	matches := t.markerPattern.FindAllStringSubmatchIndex(input, -1)
	segments := make([]speakerSegment, 0, len(matches)+1)

	firstSpeaker := markerSpeaker(input, matches[0])
	if lead := strings.TrimSpace(input[:matches[0][0]]); lead != "" {
		segments = append(segments, speakerSegment{speaker: otherSpeaker(firstSpeaker), content: lead})
	}

	for index, match := range matches {
		end := len(input)
		if index+1 < len(matches) {
			end = matches[index+1][0]
		}

		segments = append(segments, speakerSegment{
			speaker: markerSpeaker(input, match),
			content: strings.TrimSpace(input[match[1]:end]),
		})
	}

	return mergeSegments(segments)
}

// mergeSegments drops empty turns and folds consecutive turns by the same speaker.
func mergeSegments(segments []speakerSegment) []speakerSegment {
	merged := make([]speakerSegment, 0, len(segments))

	for _, segment := range segments {
		if segment.content == "" {
			continue
		}

		last := len(merged) - 1
		if last >= 0 && merged[last].speaker == segment.speaker {
			merged[last].content += " " + segment.content

			continue
		}

		merged = append(merged, segment)
	}

	return merged
}

func renderSegments(segments []speakerSegment) string {
	if len(segments) == 0 {
		return ""
	}

	var builder strings.Builder

	for _, segment := range segments {
		builder.WriteString(fmt.Sprintf(speakerMarkerFormat, segment.speaker))
		builder.WriteString(" ")
		builder.WriteString(segment.content)
		builder.WriteString(" ")
	}

	last := segments[len(segments)-1].speaker
	builder.WriteString(fmt.Sprintf(speakerMarkerFormat, otherSpeaker(last)))

	return builder.String()
}

func markerSpeaker(input string, match []int) int {
	speaker, err := strconv.Atoi(input[match[2]:match[3]])
	if err != nil {
		return speakerOne
	}

	return speaker
}

func otherSpeaker(speaker int) int {
	if speaker == speakerOne {
		return speakerTwo
	}

	return speakerOne
}

func ensureTerminator(sentence string) string {
	if sentence == "" {
		return sentence
	}

	last := []rune(sentence)[RuneLen(sentence)-1]
	if isTerminal(last) || isCloser(last) {
		return sentence
	}

	return sentence + "."
}

package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/book-expert/narration-service/internal/core"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV format codes.
const (
	pcmFormat       = 1
	ieeeFloatFormat = 3
)

const (
	filePermissions = 0o600
	floatBitDepth   = 32
	// Eight-bit PCM is unsigned with silence at the midpoint.
	unsignedBitDepth = 8
	unsignedOffset   = 128
)

// Static errors.
var (
	ErrInvalidWAV    = errors.New("invalid WAV data")
	ErrEmptyWaveform = errors.New("waveform has no samples")
)

// EncodeWAV writes a mono waveform as uncompressed PCM at the given bit depth.
func EncodeWAV(writer io.WriteSeeker, waveform core.Waveform, bitDepth int) error {
	if len(waveform.Samples) == 0 {
		return ErrEmptyWaveform
	}

	quality := Quality{
		SampleRate: waveform.SampleRate,
		BitDepth:   bitDepth,
		Channels:   DEFAULT_CHANNELS,
		Volume:     1.0,
	}

	validateErr := quality.Validate()
	if validateErr != nil {
		return validateErr
	}

	encoder := wav.NewEncoder(writer, waveform.SampleRate, bitDepth, DEFAULT_CHANNELS, pcmFormat)

	buffer := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: DEFAULT_CHANNELS,
			SampleRate:  waveform.SampleRate,
		},
		Data:           floatsToInts(waveform.Samples, bitDepth),
		SourceBitDepth: bitDepth,
	}

	writeErr := encoder.Write(buffer)
	if writeErr != nil {
		return fmt.Errorf("failed to write PCM data: %w", writeErr)
	}

	closeErr := encoder.Close()
	if closeErr != nil {
		return fmt.Errorf("failed to finalize WAV header: %w", closeErr)
	}

	return nil
}

// WriteWAVFile encodes a waveform into a new file at path. The file must not already
// exist.
func WriteWAVFile(path string, waveform core.Waveform) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to create WAV file %s: %w", path, err)
	}

	encodeErr := EncodeWAV(file, waveform, DEFAULT_BIT_DEPTH)
	closeErr := file.Close()

	if encodeErr != nil {
		_ = os.Remove(path)

		return encodeErr
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close WAV file %s: %w", path, closeErr)
	}

	return nil
}

// DecodeWAV parses an integer PCM or 32-bit IEEE float WAV payload into a mono waveform.
// Multi-channel audio is mixed down by averaging channels. Other encodings are rejected
// with ErrInvalidWAV.
func DecodeWAV(data []byte) (core.Waveform, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return core.Waveform{}, ErrInvalidWAV
	}

	format := int(decoder.WavAudioFormat)
	bitDepth := int(decoder.BitDepth)

	switch {
	case format == pcmFormat:
	case format == ieeeFloatFormat && bitDepth == floatBitDepth:
	default:
		return core.Waveform{}, fmt.Errorf("%w: unsupported encoding (format %d, %d bits)",
			ErrInvalidWAV, format, bitDepth)
	}

	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return core.Waveform{}, fmt.Errorf("%w: %w", ErrInvalidWAV, err)
	}

	var samples []float32
	if format == ieeeFloatFormat {
		samples = bitsToFloats(buffer.Data)
	} else {
		samples = intsToFloats(buffer.Data, bitDepth)
	}

	channels := max(int(decoder.NumChans), 1)

	return core.Waveform{
		Samples:    mixDown(samples, channels),
		SampleRate: int(decoder.SampleRate),
	}, nil
}

// ReadWAVFile decodes the WAV file at path.
func ReadWAVFile(path string) (core.Waveform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Waveform{}, fmt.Errorf("failed to read WAV file %s: %w", path, err)
	}

	return DecodeWAV(data)
}

func fullScale(bitDepth int) float64 {
	return math.Pow(2, float64(bitDepth-1)) - 1
}

func floatsToInts(samples []float32, bitDepth int) []int {
	scale := fullScale(bitDepth)
	ints := make([]int, len(samples))

	for index, sample := range samples {
		clamped := math.Max(-1, math.Min(1, float64(sample)))
		ints[index] = int(math.Round(clamped * scale))

		if bitDepth == unsignedBitDepth {
			ints[index] += unsignedOffset
		}
	}

	return ints
}

func intsToFloats(ints []int, bitDepth int) []float32 {
	if bitDepth <= 0 {
		bitDepth = DEFAULT_BIT_DEPTH
	}

	scale := fullScale(bitDepth)
	samples := make([]float32, len(ints))

	for index, value := range ints {
		if bitDepth == unsignedBitDepth {
			value -= unsignedOffset
		}

		samples[index] = float32(math.Max(-1, float64(value)/scale))
	}

	return samples
}

// bitsToFloats reinterprets 32-bit sample words as IEEE floats.
func bitsToFloats(words []int) []float32 {
	samples := make([]float32, len(words))

	for index, word := range words {
		samples[index] = math.Float32frombits(uint32(word)) // #nosec G115 -- reinterpreting the decoded 32-bit word
	}

	return samples
}

func mixDown(samples []float32, channels int) []float32 {
	if channels == 1 {
		return samples
	}

	mono := make([]float32, len(samples)/channels)

	for frame := range mono {
		var sum float32
		for channel := range channels {
			sum += samples[frame*channels+channel]
		}

		mono[frame] = sum / float32(channels)
	}

	return mono
}

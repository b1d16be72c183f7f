package tts

import (
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/narration-service/internal/tts/ttsutils"
)

const logFmtProgress = "Generated %d/%d tokens (%.1f tok/s, ETA %s)"

// Progress is a snapshot of an in-flight token generation.
type Progress struct {
	Generated int           `json:"generated"`
	Budget    int           `json:"budget"`
	Elapsed   time.Duration `json:"elapsed"`
	Rate      float64       `json:"rate"`
	ETA       time.Duration `json:"eta"`
}

// ProgressFunc observes generation progress. It runs on the generating goroutine, so it
// must return quickly; it cannot influence the result.
type ProgressFunc func(Progress)

func newProgress(generated, budget int, elapsed time.Duration) Progress {
	progress := Progress{
		Generated: generated,
		Budget:    budget,
		Elapsed:   elapsed,
	}

	if elapsed > 0 {
		progress.Rate = float64(generated) / elapsed.Seconds()
	}

	if progress.Rate > 0 && budget > generated {
		remaining := float64(budget-generated) / progress.Rate
		progress.ETA = time.Duration(remaining * float64(time.Second))
	}

	return progress
}

// ProgressLogger logs each progress snapshot at info level.
func ProgressLogger(log *logger.Logger) ProgressFunc {
	return func(progress Progress) {
		log.Info(
			logFmtProgress,
			progress.Generated,
			progress.Budget,
			progress.Rate,
			ttsutils.FormatDuration(progress.ETA.Seconds()),
		)
	}
}

// ProgressChannel forwards snapshots to ch, dropping them when ch is full.
func ProgressChannel(ch chan<- Progress) ProgressFunc {
	return func(progress Progress) {
		select {
		case ch <- progress:
		default:
		}
	}
}

// Tee fans a snapshot out to every non-nil observer.
func Tee(observers ...ProgressFunc) ProgressFunc {
	return func(progress Progress) {
		for _, observer := range observers {
			if observer != nil {
				observer(progress)
			}
		}
	}
}

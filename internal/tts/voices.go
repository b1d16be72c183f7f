package tts

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/book-expert/logger"
	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/tts/ttsutils"
)

const (
	defaultVoiceDisplayName = "Default"
	logFmtVoiceDegraded     = "Voice '%s' not found in %s, using default voice"
	logFmtVoiceScanFailed   = "Failed to scan voices directory %s: %v"
)

// VoiceCatalog discovers voices from reference samples in a directory. The directory
// is scanned on every query; nothing is cached.
type VoiceCatalog struct {
	dir string
	log *logger.Logger
}

// NewVoiceCatalog creates a catalog over dir, creating dir when missing.
func NewVoiceCatalog(dir string, log *logger.Logger) (*VoiceCatalog, error) {
	if dir != "" {
		dirErr := ttsutils.EnsureDir(dir)
		if dirErr != nil {
			return nil, dirErr
		}
	}

	return &VoiceCatalog{dir: dir, log: log}, nil
}

// DefaultVoiceProfile is the voice that needs no reference audio.
func DefaultVoiceProfile() core.VoiceProfile {
	return core.VoiceProfile{
		ID:          core.DefaultVoice,
		DisplayName: defaultVoiceDisplayName,
		Available:   true,
	}
}

// List returns the default voice followed by discovered voices sorted by id.
func (c *VoiceCatalog) List() []core.VoiceProfile {
	profiles := []core.VoiceProfile{DefaultVoiceProfile()}

	return append(profiles, c.scan()...)
}

// Resolve maps id to a profile. Unknown ids resolve to the default voice with a
// warning; resolution never fails.
func (c *VoiceCatalog) Resolve(id string) core.VoiceProfile {
	if id == "" || id == core.DefaultVoice {
		return DefaultVoiceProfile()
	}

	for _, profile := range c.scan() {
		if profile.ID == id {
			return profile
		}
	}

	c.log.Warn(logFmtVoiceDegraded, id, c.dir)

	return DefaultVoiceProfile()
}

func (c *VoiceCatalog) scan() []core.VoiceProfile {
	if c.dir == "" {
		return nil
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.log.Warn(logFmtVoiceScanFailed, c.dir, err)

		return nil
	}

	profiles := make([]core.VoiceProfile, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !ttsutils.IsValidAudioFile(entry.Name()) {
			continue
		}

		id := ttsutils.VoiceID(entry.Name())
		if id == core.DefaultVoice {
			continue
		}

		profiles = append(profiles, core.VoiceProfile{
			ID:              id,
			DisplayName:     ttsutils.DisplayName(id),
			SampleAudioPath: filepath.Join(c.dir, entry.Name()),
			Available:       true,
		})
	}

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })

	return profiles
}

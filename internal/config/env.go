package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// applyEnv overlays the environment variables understood by the classic
// subgen container so existing deployments keep working without a config file.
// Values that cannot be parsed are reported together.
func applyEnv(cfg *Config, lookup LookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			*dst = ParseBool(v)
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("env %s=%q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}

	str("PLEXSERVER", &cfg.Plex.URL)
	str("PLEXTOKEN", &cfg.Plex.Token)
	str("JELLYFINSERVER", &cfg.Jellyfin.URL)
	str("JELLYFINTOKEN", &cfg.Jellyfin.Token)

	str("WHISPER_MODEL", &cfg.Transcription.Model)
	integer("WHISPER_THREADS", &cfg.Transcription.Threads)
	integer("CONCURRENT_TRANSCRIPTIONS", &cfg.Transcription.Concurrency)
	str("TRANSCRIBE_DEVICE", &cfg.Transcription.Device)
	str("MODEL_PATH", &cfg.Transcription.ModelDir)
	boolean("WORD_LEVEL_HIGHLIGHT", &cfg.Transcription.WordLevelHighlight)

	boolean("PROCADDEDMEDIA", &cfg.Events.ProcessAdded)
	boolean("PROCMEDIAONPLAY", &cfg.Events.ProcessPlayed)

	str("NAMESUBLANG", &cfg.Subtitles.NameLanguage)
	str("SKIPIFINTERNALSUBLANG", &cfg.Subtitles.SkipIfInternalLanguage)

	boolean("USE_PATH_MAPPING", &cfg.PathMapping.Enabled)
	str("PATH_MAPPING_FROM", &cfg.PathMapping.From)
	str("PATH_MAPPING_TO", &cfg.PathMapping.To)

	boolean("DEBUG", &cfg.Server.Debug)
	if v, ok := lookup("WEBHOOKPORT"); ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || port <= 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("env WEBHOOKPORT=%q is not a valid port", v))
		} else {
			cfg.Server.Addr = ":" + strconv.Itoa(port)
		}
	}
	return errors.Join(errs...)
}

// ParseBool treats every value except false, off and 0 (case-insensitive) as true.
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "false", "off", "0":
		return false
	default:
		return true
	}
}

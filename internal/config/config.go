package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/gosubgen/internal/common"
)

// Config is the root configuration loaded from YAML and the environment.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Plex          MediaServerConfig   `yaml:"plex"`
	Jellyfin      MediaServerConfig   `yaml:"jellyfin"`
	Events        EventsConfig        `yaml:"events"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Subtitles     SubtitlesConfig     `yaml:"subtitles"`
	PathMapping   PathMappingConfig   `yaml:"pathMapping"`
}

// ServerConfig holds HTTP server and runtime settings.
type ServerConfig struct {
	Addr            string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	MaxBodySize     ByteSize      `yaml:"maxBodySize"`
	DataDir         string        `yaml:"dataDir"`
	APIKey          string        `yaml:"apiKey"`          // optional static API key header (X-API-Key) for the job API
	DatabasePath    string        `yaml:"databasePath"`    // optional, overrides default dataDir/gosubgen.db
	ShutdownGrace   time.Duration `yaml:"shutdownGrace"`   // time to wait for workers before forced stop
	CallbackURL     string        `yaml:"callbackUrl"`     // optional completion webhook
	CallbackRetries int           `yaml:"callbackRetries"` // number of callback attempts
	CallbackBackoff time.Duration `yaml:"callbackBackoff"` // base backoff duration
	LogLevel        string        `yaml:"logLevel"`        // debug|info|warn|error
	LogFormat       string        `yaml:"logFormat"`       // text|json|auto
	Debug           bool          `yaml:"debug"`
}

// MediaServerConfig holds connection details for Plex or Jellyfin.
type MediaServerConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// Configured reports whether both URL and token are present.
func (m MediaServerConfig) Configured() bool {
	return strings.TrimSpace(m.URL) != "" && strings.TrimSpace(m.Token) != ""
}

// EventsConfig selects which webhook events trigger transcription.
type EventsConfig struct {
	ProcessAdded  bool `yaml:"processAdded"`
	ProcessPlayed bool `yaml:"processPlayed"`
}

// TranscriptionConfig selects the engine and its execution limits.
type TranscriptionConfig struct {
	Engine             string        `yaml:"engine"` // "whisperx" or "mock"
	Model              string        `yaml:"model"`
	Threads            int           `yaml:"threads"`
	Device             string        `yaml:"device"`
	Concurrency        int           `yaml:"concurrency"`
	QueueCapacity      int           `yaml:"queueCapacity"`
	Timeout            time.Duration `yaml:"timeout"` // 0 disables the engine timeout
	ModelDir           string        `yaml:"modelDir"`
	WordLevelHighlight bool          `yaml:"wordLevelHighlight"`
	Command            string        `yaml:"command"`
	Mock               MockSettings  `yaml:"mock"`
}

// MockSettings config for the mock engine.
type MockSettings struct {
	Delay time.Duration `yaml:"delay"`
}

// SubtitlesConfig controls artifact naming and the embedded subtitle check.
type SubtitlesConfig struct {
	NameLanguage           string `yaml:"nameLanguage"`
	SkipIfInternalLanguage string `yaml:"skipIfInternalLanguage"`
	ProbeFailOpen          bool   `yaml:"probeFailOpen"`
	FFprobePath            string `yaml:"ffprobePath"`
}

// PathMappingConfig rewrites media server paths to local paths.
type PathMappingConfig struct {
	Enabled bool   `yaml:"enabled"`
	From    string `yaml:"from"`
	To      string `yaml:"to"`
}

// ByteSize represents a size in bytes that unmarshals from strings like "10Mi", "20MB", "512KiB", "1024".
type ByteSize uint64

// UnmarshalYAML implements yaml unmarshalling for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		str := strings.TrimSpace(value.Value)
		parsed, err := ParseByteSize(str)
		if err != nil {
			return err
		}
		*b = ByteSize(parsed)
		return nil
	}
	return fmt.Errorf("invalid bytesize node kind: %v", value.Kind)
}

var reNumeric = regexp.MustCompile(`^\d+$`)

// ParseByteSize parses a string like "10Mi", "20MB", "512KiB", "1024" into bytes.
// Supports Kubernetes-style quantities for binary units: Ki, Mi, Gi (case-insensitive).
// Also accepts KiB/MiB/GiB and decimal KB/MB/GB, and bare bytes.
func ParseByteSize(s string) (uint64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	if reNumeric.MatchString(s) {
		val, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size number: %w", err)
		}
		return val, nil
	}

	up := strings.ToUpper(s)

	type unit struct {
		suffix string
		value  uint64
	}
	units := []unit{
		{"KIB", 1024},
		{"MIB", 1024 * 1024},
		{"GIB", 1024 * 1024 * 1024},
		{"KI", 1024},
		{"MI", 1024 * 1024},
		{"GI", 1024 * 1024 * 1024},
		{"KB", 1000},
		{"MB", 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(up, u.suffix) {
			num := strings.TrimSpace(s[:len(s)-len(u.suffix)])
			val, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size number in %q: %w", orig, err)
			}
			return uint64(val * float64(u.value)), nil
		}
	}
	return 0, fmt.Errorf("unknown size suffix in %q", orig)
}

// Default returns the configuration used when neither a file nor the environment override a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      ":8090",
			LogFormat: "auto",
		},
		Events: EventsConfig{
			ProcessAdded:  true,
			ProcessPlayed: true,
		},
		Transcription: TranscriptionConfig{
			Engine:      "whisperx",
			Model:       "medium",
			Threads:     4,
			Device:      "cpu",
			Concurrency: common.DefaultWorkerCount,
			ModelDir:    ".",
		},
		Subtitles: SubtitlesConfig{
			NameLanguage:           "aa",
			SkipIfInternalLanguage: "eng",
			ProbeFailOpen:          true,
			FFprobePath:            "ffprobe",
		},
		PathMapping: PathMappingConfig{
			From: "/tv",
			To:   "/Volumes/TV",
		},
	}
}

// Load reads YAML config from path, expands environment variables, applies the
// environment overrides and validates the result.
// If path is empty, it will attempt to read from env var GOSUBGEN_CONFIG, then "config.yaml".
// A missing implicit config file is not an error; a missing explicit one is.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		if env := os.Getenv("GOSUBGEN_CONFIG"); env != "" {
			path = env
			explicit = true
		} else {
			path = "config.yaml"
		}
	}

	cfg := Default()
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - reading sanitized config file path is expected
	switch {
	case err == nil:
		// Expand environment variables in file content.
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0o750); err != nil {
			return nil, fmt.Errorf("ensure dataDir: %w", err)
		}
	}
	if cfg.Server.DatabasePath == "" {
		cfg.Server.DatabasePath = filepath.Join(cfg.Server.DataDir, common.DatabaseFileName)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8090"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = ByteSize(1024 * 1024) // 1 MiB, webhook payloads are small
	}
	if cfg.Server.DataDir == "" {
		cfg.Server.DataDir = "data"
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = 15 * time.Second
	}
	if cfg.Server.CallbackRetries == 0 {
		cfg.Server.CallbackRetries = 3
	}
	if cfg.Server.CallbackBackoff == 0 {
		cfg.Server.CallbackBackoff = 2 * time.Second
	}
	if strings.TrimSpace(cfg.Server.LogLevel) == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.Debug {
		cfg.Server.LogLevel = "debug"
	}
	if strings.TrimSpace(cfg.Server.LogFormat) == "" {
		cfg.Server.LogFormat = "auto"
	}

	cfg.Plex.URL = strings.TrimRight(strings.TrimSpace(cfg.Plex.URL), "/")
	cfg.Jellyfin.URL = strings.TrimRight(strings.TrimSpace(cfg.Jellyfin.URL), "/")

	// Transcription defaults
	t := &cfg.Transcription
	if strings.TrimSpace(t.Engine) == "" {
		t.Engine = "whisperx"
	}
	t.Engine = strings.ToLower(strings.TrimSpace(t.Engine))
	if strings.TrimSpace(t.Model) == "" {
		t.Model = "medium"
	}
	if t.Threads <= 0 {
		t.Threads = 4
	}
	if t.Concurrency <= 0 {
		t.Concurrency = common.DefaultWorkerCount
	}
	if t.QueueCapacity <= 0 {
		t.QueueCapacity = common.DefaultQueueCapacity
	}
	t.Device = strings.ToLower(strings.TrimSpace(t.Device))
	switch t.Device {
	case "":
		t.Device = "cpu"
	case "gpu":
		t.Device = "cuda"
	}
	if strings.TrimSpace(t.ModelDir) == "" {
		t.ModelDir = "."
	}
	if strings.TrimSpace(t.Command) == "" {
		t.Command = "whisperx"
	}
	if t.Mock.Delay == 0 {
		t.Mock.Delay = 2 * time.Second
	}

	// Subtitle defaults
	if strings.TrimSpace(cfg.Subtitles.NameLanguage) == "" {
		cfg.Subtitles.NameLanguage = "aa"
	}
	if strings.TrimSpace(cfg.Subtitles.FFprobePath) == "" {
		cfg.Subtitles.FFprobePath = "ffprobe"
	}
}

func validate(cfg *Config) error {
	switch cfg.Transcription.Engine {
	case "whisperx", "mock":
	default:
		return fmt.Errorf("transcription.engine %q is not supported", cfg.Transcription.Engine)
	}
	if cfg.Transcription.Timeout < 0 {
		return errors.New("transcription.timeout must not be negative")
	}
	if strings.ContainsAny(cfg.Transcription.Model, `/\`) {
		return fmt.Errorf("transcription.model %q must not contain path separators", cfg.Transcription.Model)
	}
	if err := validateLanguage("subtitles.nameLanguage", cfg.Subtitles.NameLanguage); err != nil {
		return err
	}
	if skip := cfg.Subtitles.SkipIfInternalLanguage; skip != "" {
		if err := validateLanguage("subtitles.skipIfInternalLanguage", skip); err != nil {
			return err
		}
	}
	if cfg.PathMapping.Enabled && strings.TrimSpace(cfg.PathMapping.From) == "" {
		return errors.New("pathMapping.from is required when path mapping is enabled")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Server.LogFormat)) {
	case "text", "json", "auto":
	default:
		return fmt.Errorf("server.logFormat %q is not supported", cfg.Server.LogFormat)
	}
	return nil
}

// validateLanguage only checks that the code is a well-formed tag; matching
// against stream metadata stays an exact string comparison.
func validateLanguage(field, code string) error {
	if strings.TrimSpace(code) != code || code == "" {
		return fmt.Errorf("%s must be a non-empty language code without surrounding spaces", field)
	}
	if _, err := language.Parse(code); err != nil {
		// Well-formed but unregistered codes (e.g. bibliographic "ger") are fine.
		var unknown language.ValueError
		if errors.As(err, &unknown) {
			return nil
		}
		return fmt.Errorf("%s %q is not a valid language code: %w", field, code, err)
	}
	return nil
}

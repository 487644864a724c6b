package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Providers accepted by SCRIBE_PROVIDER.
var Providers = []string{"openai", "groq", "gemini", "custom"}

const defaultCaptureCommand = "ffmpeg -hide_banner -loglevel error -f pulse -i default -c:a libopus -f webm pipe:1"

type Config struct {
	// Transcription
	APIKey         string        `env:"SCRIBE_API_KEY"`
	Provider       string        `env:"SCRIBE_PROVIDER" envDefault:"gemini"`
	BaseURL        string        `env:"SCRIBE_BASE_URL"`
	Model          string        `env:"SCRIBE_MODEL"`
	PostProcessing bool          `env:"SCRIBE_POST_PROCESSING" envDefault:"true"`
	SpeakerLabel   string        `env:"SCRIBE_SPEAKER_LABEL" envDefault:"Me"`
	RequestTimeout time.Duration `env:"SCRIBE_REQUEST_TIMEOUT" envDefault:"120s"`

	// Notes
	VaultDir              string `env:"VAULT_DIR" envDefault:"./vault"`
	TranscriptionFolder   string `env:"TRANSCRIPTION_FOLDER" envDefault:"scribed"`
	AudioFilename         string `env:"AUDIO_FILENAME" envDefault:"recording.webm"`
	NoteFilename          string `env:"NOTE_FILENAME" envDefault:"transcription.md"`
	FolderTimestampFormat string `env:"FOLDER_TIMESTAMP_FORMAT" envDefault:"2006-01-02 1504"`
	NoteFrontmatter       bool   `env:"NOTE_FRONTMATTER" envDefault:"false"`
	AutoOpenNote          bool   `env:"AUTO_OPEN_NOTE" envDefault:"true"`
	OpenCommand           string `env:"OPEN_COMMAND"`

	// Daily note linking
	DailyNoteLinking    bool   `env:"DAILY_NOTE_LINKING" envDefault:"true"`
	DailyNoteSection    string `env:"DAILY_NOTE_SECTION" envDefault:"## Meetings"`
	LinkFormat          string `env:"LINK_FORMAT" envDefault:"- [[{path}|Transcription {time}]]"`
	LinkTimestampFormat string `env:"LINK_TIMESTAMP_FORMAT" envDefault:"15:04"`
	DailyNotes          DailyNotesConfig

	// Capture
	CaptureCommand   string        `env:"CAPTURE_COMMAND"`
	CaptureMimeType  string        `env:"CAPTURE_MIME_TYPE" envDefault:"audio/webm"`
	FragmentInterval time.Duration `env:"FRAGMENT_INTERVAL" envDefault:"1s"`
	FragmentQueue    int           `env:"FRAGMENT_QUEUE" envDefault:"64"`

	// HTTP API
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"5m"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	AuthToken    string        `env:"AUTH_TOKEN"`

	// Optional integrations
	DatabaseURL     string `env:"DATABASE_URL"`
	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"scribe"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"scribe"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`
	InboxDir        string `env:"INBOX_DIR"`
	S3              S3Config

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`
}

// DailyNotesConfig describes the host's daily-note feature. When Enabled is
// false the built-in defaults (vault root, 2006-01-02) are used.
type DailyNotesConfig struct {
	Enabled bool   `env:"DAILY_NOTES_ENABLED" envDefault:"false"`
	Folder  string `env:"DAILY_NOTES_FOLDER"`
	Format  string `env:"DAILY_NOTES_FORMAT"`
}

// S3Config configures the optional S3 backup of the vault.
type S3Config struct {
	Bucket        string `env:"S3_BUCKET"`
	Endpoint      string `env:"S3_ENDPOINT"`
	Region        string `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKey     string `env:"S3_ACCESS_KEY"`
	SecretKey     string `env:"S3_SECRET_KEY"`
	Prefix        string `env:"S3_PREFIX"`
	UploadWorkers int    `env:"S3_UPLOAD_WORKERS" envDefault:"2"`
	UploadQueue   int    `env:"S3_UPLOAD_QUEUE" envDefault:"100"`
}

// Enabled reports whether S3 backup is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile  string
	HTTPAddr string
	LogLevel string
	VaultDir string
	Provider string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.CaptureCommand == "" {
		cfg.CaptureCommand = defaultCaptureCommand
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.VaultDir != "" {
		cfg.VaultDir = overrides.VaultDir
	}
	if overrides.Provider != "" {
		cfg.Provider = overrides.Provider
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env parsing cannot.
func (c *Config) Validate() error {
	known := false
	for _, p := range Providers {
		if c.Provider == p {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("SCRIBE_PROVIDER %q: must be one of %v", c.Provider, Providers)
	}
	if c.FragmentInterval <= 0 {
		return fmt.Errorf("FRAGMENT_INTERVAL must be positive, got %s", c.FragmentInterval)
	}
	if c.FragmentQueue <= 0 {
		return fmt.Errorf("FRAGMENT_QUEUE must be positive, got %d", c.FragmentQueue)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("SCRIBE_REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.TranscriptionFolder == "" || c.AudioFilename == "" || c.NoteFilename == "" {
		return fmt.Errorf("TRANSCRIPTION_FOLDER, AUDIO_FILENAME and NOTE_FILENAME must not be empty")
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/loqalabs/dictat/internal/language"
	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	TraceStdout  bool   `yaml:"trace_stdout"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type Config struct {
	AppName     string            `yaml:"app_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	EventStore  EventStoreConfig  `yaml:"event_store"`
	Capture     CaptureConfig     `yaml:"capture"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Session     SessionConfig     `yaml:"session"`
	UI          UIConfig          `yaml:"ui"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// CaptureConfig controls the microphone and the utterance segmenter.
// OnsetTimeoutMS and PhraseTimeLimitMS override the selected profile when non-zero.
type CaptureConfig struct {
	Source             string  `yaml:"source"` // portaudio, file
	Device             string  `yaml:"device"`
	File               string  `yaml:"file"`
	Realtime           bool    `yaml:"realtime"`
	SampleRate         int     `yaml:"sample_rate"`
	Channels           int     `yaml:"channels"`
	FrameDurationMS    int     `yaml:"frame_duration_ms"`
	Profile            string  `yaml:"profile"` // short, long
	OnsetTimeoutMS     int     `yaml:"onset_timeout_ms"`
	PhraseTimeLimitMS  int     `yaml:"phrase_time_limit_ms"`
	PauseThresholdMS   int     `yaml:"pause_threshold_ms"`
	PreRollMS          int     `yaml:"pre_roll_ms"`
	EnergyMultiplier   float64 `yaml:"energy_multiplier"`
	MinEnergyThreshold float64 `yaml:"min_energy_threshold"`
	JoinTimeoutMS      int     `yaml:"join_timeout_ms"`
}

type RecognitionConfig struct {
	Mode            string `yaml:"mode"` // google, exec, mock
	Command         string `yaml:"command"`
	Endpoint        string `yaml:"endpoint"`
	CredentialsFile string `yaml:"credentials_file"`
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	MaxInflight     int    `yaml:"max_inflight"`
	TimeoutMS       int    `yaml:"timeout_ms"`
	DrainTimeoutMS  int    `yaml:"drain_timeout_ms"`
}

type SessionConfig struct {
	DefaultLanguage string `yaml:"default_language"`
}

type UIConfig struct {
	PollIntervalMS int    `yaml:"poll_interval_ms"`
	Terminal       bool   `yaml:"terminal"`
	SaveDir        string `yaml:"save_dir"`
	DefaultStatus  string `yaml:"default_status"`
}

// Profile is a pair of capture timeouts observed in practice.
type Profile struct {
	OnsetTimeout    time.Duration
	PhraseTimeLimit time.Duration
}

var Profiles = map[string]Profile{
	"short": {OnsetTimeout: time.Second, PhraseTimeLimit: 5 * time.Second},
	"long":  {OnsetTimeout: 3 * time.Second, PhraseTimeLimit: 20 * time.Second},
}

// Timeouts resolves the onset timeout and phrase time limit for a session.
func (c CaptureConfig) Timeouts() (onset, limit time.Duration) {
	p := Profiles[c.Profile]
	onset, limit = p.OnsetTimeout, p.PhraseTimeLimit
	if c.OnsetTimeoutMS > 0 {
		onset = time.Duration(c.OnsetTimeoutMS) * time.Millisecond
	}
	if c.PhraseTimeLimitMS > 0 {
		limit = time.Duration(c.PhraseTimeLimitMS) * time.Millisecond
	}
	return onset, limit
}

func Default() Config {
	return Config{
		AppName:     "dictat",
		Environment: "development",
		HTTP: HTTPConfig{
			Enabled: true,
			Bind:    "127.0.0.1",
			Port:    8088,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        true,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/dictat-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   1000,
		},
		Capture: CaptureConfig{
			Source:             "portaudio",
			SampleRate:         16000,
			Channels:           1,
			FrameDurationMS:    30,
			Profile:            "short",
			PauseThresholdMS:   800,
			PreRollMS:          500,
			EnergyMultiplier:   1.5,
			MinEnergyThreshold: 300,
			JoinTimeoutMS:      1000,
		},
		Recognition: RecognitionConfig{
			Mode:           "google",
			MaxInflight:    4,
			DrainTimeoutMS: 10000,
		},
		Session: SessionConfig{
			DefaultLanguage: "ca-ES",
		},
		UI: UIConfig{
			PollIntervalMS: 100,
			Terminal:       true,
			SaveDir:        ".",
			DefaultStatus:  "Click the microphone",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.AppName, "DICTAT_APP_NAME")
	overrideString(&cfg.Environment, "DICTAT_ENVIRONMENT")
	overrideBool(&cfg.HTTP.Enabled, "DICTAT_HTTP_ENABLED")
	overrideString(&cfg.HTTP.Bind, "DICTAT_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "DICTAT_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "DICTAT_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "DICTAT_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "DICTAT_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.TraceStdout, "DICTAT_TELEMETRY_TRACE_STDOUT")
	overrideBool(&cfg.Bus.Enabled, "DICTAT_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "DICTAT_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "DICTAT_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "DICTAT_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "DICTAT_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "DICTAT_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "DICTAT_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "DICTAT_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "DICTAT_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "DICTAT_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "DICTAT_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "DICTAT_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "DICTAT_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "DICTAT_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "DICTAT_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Capture.Source, "DICTAT_CAPTURE_SOURCE")
	overrideString(&cfg.Capture.Device, "DICTAT_CAPTURE_DEVICE")
	overrideString(&cfg.Capture.File, "DICTAT_CAPTURE_FILE")
	overrideBool(&cfg.Capture.Realtime, "DICTAT_CAPTURE_REALTIME")
	overrideInt(&cfg.Capture.SampleRate, "DICTAT_CAPTURE_SAMPLE_RATE")
	overrideInt(&cfg.Capture.Channels, "DICTAT_CAPTURE_CHANNELS")
	overrideInt(&cfg.Capture.FrameDurationMS, "DICTAT_CAPTURE_FRAME_DURATION_MS")
	overrideString(&cfg.Capture.Profile, "DICTAT_CAPTURE_PROFILE")
	overrideInt(&cfg.Capture.OnsetTimeoutMS, "DICTAT_CAPTURE_ONSET_TIMEOUT_MS")
	overrideInt(&cfg.Capture.PhraseTimeLimitMS, "DICTAT_CAPTURE_PHRASE_TIME_LIMIT_MS")
	overrideInt(&cfg.Capture.PauseThresholdMS, "DICTAT_CAPTURE_PAUSE_THRESHOLD_MS")
	overrideInt(&cfg.Capture.PreRollMS, "DICTAT_CAPTURE_PRE_ROLL_MS")
	overrideFloat(&cfg.Capture.EnergyMultiplier, "DICTAT_CAPTURE_ENERGY_MULTIPLIER")
	overrideFloat(&cfg.Capture.MinEnergyThreshold, "DICTAT_CAPTURE_MIN_ENERGY_THRESHOLD")
	overrideInt(&cfg.Capture.JoinTimeoutMS, "DICTAT_CAPTURE_JOIN_TIMEOUT_MS")
	overrideString(&cfg.Recognition.Mode, "DICTAT_RECOGNITION_MODE")
	overrideString(&cfg.Recognition.Command, "DICTAT_RECOGNITION_COMMAND")
	overrideString(&cfg.Recognition.Endpoint, "DICTAT_RECOGNITION_ENDPOINT")
	overrideString(&cfg.Recognition.CredentialsFile, "DICTAT_RECOGNITION_CREDENTIALS_FILE")
	overrideString(&cfg.Recognition.APIKey, "DICTAT_RECOGNITION_API_KEY")
	overrideString(&cfg.Recognition.Model, "DICTAT_RECOGNITION_MODEL")
	overrideInt(&cfg.Recognition.MaxInflight, "DICTAT_RECOGNITION_MAX_INFLIGHT")
	overrideInt(&cfg.Recognition.TimeoutMS, "DICTAT_RECOGNITION_TIMEOUT_MS")
	overrideInt(&cfg.Recognition.DrainTimeoutMS, "DICTAT_RECOGNITION_DRAIN_TIMEOUT_MS")
	overrideString(&cfg.Session.DefaultLanguage, "DICTAT_SESSION_DEFAULT_LANGUAGE")
	overrideInt(&cfg.UI.PollIntervalMS, "DICTAT_UI_POLL_INTERVAL_MS")
	overrideBool(&cfg.UI.Terminal, "DICTAT_UI_TERMINAL")
	overrideString(&cfg.UI.SaveDir, "DICTAT_UI_SAVE_DIR")
	overrideString(&cfg.UI.DefaultStatus, "DICTAT_UI_DEFAULT_STATUS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.AppName == "" {
		return errors.New("app_name must not be empty")
	}
	if cfg.HTTP.Enabled && (cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535) {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	switch cfg.Capture.Source {
	case "portaudio":
	case "file":
		if cfg.Capture.File == "" {
			return errors.New("capture.file must be set when source=file")
		}
	default:
		return errors.New("capture.source must be one of portaudio|file")
	}
	if cfg.Capture.SampleRate <= 0 {
		return errors.New("capture.sample_rate must be positive")
	}
	if cfg.Capture.Channels <= 0 {
		return errors.New("capture.channels must be positive")
	}
	if cfg.Capture.FrameDurationMS <= 0 {
		return errors.New("capture.frame_duration_ms must be positive")
	}
	if _, ok := Profiles[cfg.Capture.Profile]; !ok && (cfg.Capture.OnsetTimeoutMS <= 0 || cfg.Capture.PhraseTimeLimitMS <= 0) {
		return errors.New("capture.profile must be one of short|long unless both timeouts are set")
	}
	if cfg.Capture.OnsetTimeoutMS < 0 || cfg.Capture.PhraseTimeLimitMS < 0 {
		return errors.New("capture timeouts must be >= 0")
	}
	if cfg.Capture.PauseThresholdMS <= 0 {
		return errors.New("capture.pause_threshold_ms must be positive")
	}
	if cfg.Capture.EnergyMultiplier < 1 {
		return errors.New("capture.energy_multiplier must be >= 1")
	}
	if cfg.Capture.JoinTimeoutMS <= 0 {
		return errors.New("capture.join_timeout_ms must be positive")
	}
	switch cfg.Recognition.Mode {
	case "google", "mock":
	case "exec":
		if cfg.Recognition.Command == "" {
			return errors.New("recognition.command must be set when mode=exec")
		}
	default:
		return errors.New("recognition.mode must be one of google|exec|mock")
	}
	if cfg.Recognition.MaxInflight <= 0 {
		return errors.New("recognition.max_inflight must be >= 1")
	}
	if cfg.Recognition.TimeoutMS < 0 {
		return errors.New("recognition.timeout_ms must be >= 0")
	}
	if _, ok := language.Lookup(cfg.Session.DefaultLanguage); !ok {
		return fmt.Errorf("session.default_language %q is not supported", cfg.Session.DefaultLanguage)
	}
	if cfg.UI.PollIntervalMS <= 0 {
		return errors.New("ui.poll_interval_ms must be positive")
	}
	return nil
}

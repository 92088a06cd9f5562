package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "COACH"

// Config stores runtime configuration for the coach.
type Config struct {
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Coach     CoachConfig     `mapstructure:"coach" yaml:"coach"`
	Deepgram  DeepgramConfig  `mapstructure:"deepgram" yaml:"deepgram"`
	Audio     AudioConfig     `mapstructure:"audio" yaml:"audio"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Bus       BusConfig       `mapstructure:"bus" yaml:"bus"`
	Rules     RulesConfig     `mapstructure:"rules" yaml:"rules"`
	Questions QuestionsConfig `mapstructure:"questions" yaml:"questions"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// CoachConfig points at the evaluation and speech synthesis service.
type CoachConfig struct {
	BaseURL       string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	AudioCacheDir string        `mapstructure:"audio_cache_dir" yaml:"audio_cache_dir"`
	Player        string        `mapstructure:"player" yaml:"player"`
}

type DeepgramConfig struct {
	APIKey      string `mapstructure:"api_key" yaml:"api_key"`
	APIBaseURL  string `mapstructure:"api_base_url" yaml:"api_base_url"`
	Model       string `mapstructure:"model" yaml:"model"`
	Language    string `mapstructure:"language" yaml:"language"`
	SmartFormat bool   `mapstructure:"smart_format" yaml:"smart_format"`
}

type AudioConfig struct {
	Command          string `mapstructure:"command" yaml:"command"`
	InputFormat      string `mapstructure:"input_format" yaml:"input_format"`
	InputDevice      string `mapstructure:"input_device" yaml:"input_device"`
	SampleRate       int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels         int    `mapstructure:"channels" yaml:"channels"`
	EchoCancellation bool   `mapstructure:"echo_cancellation" yaml:"echo_cancellation"`
	NoiseSuppression bool   `mapstructure:"noise_suppression" yaml:"noise_suppression"`
	AutoGainControl  bool   `mapstructure:"auto_gain_control" yaml:"auto_gain_control"`
}

type SessionConfig struct {
	Language          string        `mapstructure:"language" yaml:"language"`
	StartRetryDelay   time.Duration `mapstructure:"start_retry_delay" yaml:"start_retry_delay"`
	RestartRetryDelay time.Duration `mapstructure:"restart_retry_delay" yaml:"restart_retry_delay"`
	MaxQuietRestarts  int           `mapstructure:"max_quiet_restarts" yaml:"max_quiet_restarts"`
	FFTSize           int           `mapstructure:"fft_size" yaml:"fft_size"`
	SampleInterval    time.Duration `mapstructure:"sample_interval" yaml:"sample_interval"`
	RefreshRate       int           `mapstructure:"refresh_rate" yaml:"refresh_rate"`
	ChunkSize         int           `mapstructure:"chunk_size" yaml:"chunk_size"`
	StopTimeout       time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
}

// StoreConfig selects the per-tab practice store. Driver is memory or sqlite.
type StoreConfig struct {
	Driver string        `mapstructure:"driver" yaml:"driver"`
	DSN    string        `mapstructure:"dsn" yaml:"dsn"`
	TTL    time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// BusConfig enables result fan-out over NATS when URL is set.
type BusConfig struct {
	URL     string `mapstructure:"url" yaml:"url"`
	Subject string `mapstructure:"subject" yaml:"subject"`
}

type RulesConfig struct {
	Path           string `mapstructure:"path" yaml:"path"`
	IterationLimit int    `mapstructure:"iteration_limit" yaml:"iteration_limit"`
}

type QuestionsConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ServerConfig controls the HTTP API. AllowedOrigins defaults to the
// server's own origin.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr" yaml:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type TelemetryConfig struct {
	Metrics bool `mapstructure:"metrics" yaml:"metrics"`
}

// envFallbacks maps keys to legacy variables consulted after COACH_*.
var envFallbacks = map[string][]string{
	"deepgram.api_key":      {"DEEPGRAM_API_KEY"},
	"deepgram.api_base_url": {"DEEPGRAM_API_BASE"},
	"deepgram.model":        {"DEEPGRAM_MODEL"},
	"deepgram.language":     {"DEEPGRAM_LANGUAGE"},
	"deepgram.smart_format": {"DEEPGRAM_SMART_FORMAT"},
	"audio.input_device":    {"DEEPGRAM_PULSE_SOURCE"},
}

// New returns a viper instance carrying defaults and environment bindings.
// Callers may bind cobra flags onto it before Decode.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range envFallbacks {
		names := append([]string{envName(key)}, legacy...)
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
	return v
}

// Load resolves configuration from defaults, an optional YAML file and the environment.
func Load(path string) (Config, error) {
	return Decode(New(), path)
}

// Decode reads path (when set) into v and unmarshals the result.
func Decode(v *viper.Viper, path string) (Config, error) {
	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Rules.Path == "" {
		cfg.Rules.Path = defaultRulesPath()
	}
	return cfg.normalize()
}

func setDefaults(v *viper.Viper) {
	cacheDir := filepath.Join(os.TempDir(), "soft-skill-coach", "audio")
	if dir, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(dir, "soft-skill-coach", "audio")
	}

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("coach.base_url", "http://localhost:5000")
	v.SetDefault("coach.timeout", 90*time.Second)
	v.SetDefault("coach.audio_cache_dir", cacheDir)
	v.SetDefault("coach.player", "")

	v.SetDefault("deepgram.api_key", "")
	v.SetDefault("deepgram.api_base_url", "https://api.deepgram.com/v1")
	v.SetDefault("deepgram.model", "nova-2")
	v.SetDefault("deepgram.language", "")
	v.SetDefault("deepgram.smart_format", true)

	v.SetDefault("audio.command", "ffmpeg")
	v.SetDefault("audio.input_format", "pulse")
	v.SetDefault("audio.input_device", "default")
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.echo_cancellation", true)
	v.SetDefault("audio.noise_suppression", true)
	v.SetDefault("audio.auto_gain_control", true)

	v.SetDefault("session.language", "en-US")
	v.SetDefault("session.start_retry_delay", 50*time.Millisecond)
	v.SetDefault("session.restart_retry_delay", 100*time.Millisecond)
	v.SetDefault("session.max_quiet_restarts", 5)
	v.SetDefault("session.fft_size", 256)
	v.SetDefault("session.sample_interval", 33*time.Millisecond)
	v.SetDefault("session.refresh_rate", 60)
	v.SetDefault("session.chunk_size", 4096)
	v.SetDefault("session.stop_timeout", 2*time.Second)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.ttl", 2*time.Hour)

	v.SetDefault("bus.url", "")
	v.SetDefault("bus.subject", "coach.results")

	v.SetDefault("rules.path", "")
	v.SetDefault("rules.iteration_limit", 30)

	v.SetDefault("questions.path", "")
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("telemetry.metrics", true)
}

func (c Config) normalize() (Config, error) {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch c.Log.Format {
	case "text", "json", "logfmt":
	default:
		return Config{}, fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	c.Deepgram.APIKey = strings.TrimSpace(c.Deepgram.APIKey)
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = 1
	}
	if c.Rules.IterationLimit <= 0 {
		c.Rules.IterationLimit = 30
	}
	if c.Session.ChunkSize < 256 {
		c.Session.ChunkSize = 4096
	}
	if c.Session.FFTSize < 32 || c.Session.FFTSize&(c.Session.FFTSize-1) != 0 {
		return Config{}, fmt.Errorf("session.fft_size %d must be a power of two >= 32", c.Session.FFTSize)
	}

	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = LocalOrigins(c.Server.Addr)
	}

	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.DSN == "" {
			return Config{}, errors.New("store.dsn is required for the sqlite driver")
		}
	default:
		return Config{}, fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return c, nil
}

// Redacted returns a copy that is safe to print.
func (c Config) Redacted() Config {
	if c.Deepgram.APIKey != "" {
		c.Deepgram.APIKey = "********"
	}
	return c
}

// YAML renders the redacted configuration.
func (c Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}

// LocalOrigins returns the origins a browser uses for a page served from addr.
func LocalOrigins(addr string) []string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil
	}
	switch host {
	case "", "0.0.0.0", "::", "127.0.0.1", "localhost":
		return []string{"http://127.0.0.1:" + port, "http://localhost:" + port}
	default:
		return []string{"http://" + net.JoinHostPort(host, port)}
	}
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func defaultRulesPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return firstExisting(
		filepath.Join(home, ".config", "soft-skill-coach", "answer.rules"),
		filepath.Join(home, ".soft-skill-coach", "answer.rules"),
	)
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

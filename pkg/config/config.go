package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so admin lists can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Try []interface{} to handle mixed types
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Oopz       OopzConfig       `json:"oopz"`
	Commands   CommandsConfig   `json:"commands"`
	Moderation ModerationConfig `json:"moderation"`
	AI         AIConfig         `json:"ai"`
	Image      ImageConfig      `json:"image"`
	Music      MusicConfig      `json:"music"`
	Stats      StatsConfig      `json:"stats"`
	Names      NamesConfig      `json:"names"`
	Metrics    MetricsConfig    `json:"metrics"`
	Log        LogConfig        `json:"log"`
}

// OopzConfig holds platform credentials and connection tuning.
type OopzConfig struct {
	GatewayURL         string `env:"OOPZBOT_OOPZ_GATEWAY_URL"          json:"gateway_url"`
	APIBase            string `env:"OOPZBOT_OOPZ_API_BASE"             json:"api_base"`
	PersonUID          string `env:"OOPZBOT_OOPZ_PERSON_UID"           json:"person_uid"`
	DeviceID           string `env:"OOPZBOT_OOPZ_DEVICE_ID"            json:"device_id"`
	Token              string `env:"OOPZBOT_OOPZ_TOKEN"                json:"token"`
	PrivateKeyPath     string `env:"OOPZBOT_OOPZ_PRIVATE_KEY_PATH"     json:"private_key_path"`
	AppVersion         string `env:"OOPZBOT_OOPZ_APP_VERSION"          json:"app_version"`
	Platform           string `env:"OOPZBOT_OOPZ_PLATFORM"             json:"platform"`
	Channel            string `env:"OOPZBOT_OOPZ_CHANNEL"              json:"channel"`
	HeartbeatSeconds   int    `env:"OOPZBOT_OOPZ_HEARTBEAT_SECONDS"    json:"heartbeat_seconds"`
	LivenessMultiplier int    `env:"OOPZBOT_OOPZ_LIVENESS_MULTIPLIER"  json:"liveness_multiplier"`
	ConnectTimeoutSecs int    `env:"OOPZBOT_OOPZ_CONNECT_TIMEOUT_SECS" json:"connect_timeout_secs"`
}

type CommandsConfig struct {
	Prefix       string              `env:"OOPZBOT_COMMANDS_PREFIX"        json:"prefix"`
	Mention      string              `env:"OOPZBOT_COMMANDS_MENTION"       json:"mention"`
	Admins       FlexibleStringSlice `env:"OOPZBOT_COMMANDS_ADMINS"        json:"admins"`
	KeywordsFile string              `env:"OOPZBOT_COMMANDS_KEYWORDS_FILE" json:"keywords_file"`
}

type ModerationConfig struct {
	Enabled          bool     `env:"OOPZBOT_MODERATION_ENABLED"            json:"enabled"`
	Keywords         []string `env:"OOPZBOT_MODERATION_KEYWORDS"           json:"keywords"`
	WindowSize       int      `env:"OOPZBOT_MODERATION_WINDOW_SIZE"        json:"window_size"`
	WindowSeconds    int      `env:"OOPZBOT_MODERATION_WINDOW_SECONDS"     json:"window_seconds"`
	ContextDetection bool     `env:"OOPZBOT_MODERATION_CONTEXT_DETECTION"  json:"context_detection"`
	AIDetection      bool     `env:"OOPZBOT_MODERATION_AI_DETECTION"       json:"ai_detection"`
	AIMinLength      int      `env:"OOPZBOT_MODERATION_AI_MIN_LENGTH"      json:"ai_min_length"`
	AITimeoutSeconds int      `env:"OOPZBOT_MODERATION_AI_TIMEOUT_SECONDS" json:"ai_timeout_seconds"`
	ExemptAdmins     bool     `env:"OOPZBOT_MODERATION_EXEMPT_ADMINS"      json:"exempt_admins"`
	WarnFirst        bool     `env:"OOPZBOT_MODERATION_WARN_FIRST"         json:"warn_first"`
	Recall           bool     `env:"OOPZBOT_MODERATION_RECALL"             json:"recall"`
	MuteTierSeconds  []int    `env:"OOPZBOT_MODERATION_MUTE_TIER_SECONDS"  json:"mute_tier_seconds"`
	MuteSeconds      int      `env:"OOPZBOT_MODERATION_MUTE_SECONDS"       json:"mute_seconds"`
}

// Window returns the configured context window bound as a duration.
func (m ModerationConfig) Window() time.Duration {
	return time.Duration(m.WindowSeconds) * time.Second
}

// AITimeout bounds a single classifier call. A non-positive value falls
// back to 5 seconds.
func (m ModerationConfig) AITimeout() time.Duration {
	if m.AITimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(m.AITimeoutSeconds) * time.Second
}

type AIConfig struct {
	Enabled      bool    `env:"OOPZBOT_AI_ENABLED"       json:"enabled"`
	Provider     string  `env:"OOPZBOT_AI_PROVIDER"      json:"provider"` // "openai" or "anthropic"
	APIBase      string  `env:"OOPZBOT_AI_API_BASE"      json:"api_base"`
	APIKey       string  `env:"OOPZBOT_AI_API_KEY"       json:"api_key"`
	Model        string  `env:"OOPZBOT_AI_MODEL"         json:"model"`
	SystemPrompt string  `env:"OOPZBOT_AI_SYSTEM_PROMPT" json:"system_prompt"`
	MaxTokens    int     `env:"OOPZBOT_AI_MAX_TOKENS"    json:"max_tokens"`
	Temperature  float64 `env:"OOPZBOT_AI_TEMPERATURE"   json:"temperature"`
}

type ImageConfig struct {
	Enabled   bool   `env:"OOPZBOT_IMAGE_ENABLED"   json:"enabled"`
	APIBase   string `env:"OOPZBOT_IMAGE_API_BASE"  json:"api_base"`
	APIKey    string `env:"OOPZBOT_IMAGE_API_KEY"   json:"api_key"`
	Model     string `env:"OOPZBOT_IMAGE_MODEL"     json:"model"`
	Size      string `env:"OOPZBOT_IMAGE_SIZE"      json:"size"`
	Watermark bool   `env:"OOPZBOT_IMAGE_WATERMARK" json:"watermark"`
}

type MusicConfig struct {
	BaseURL string `env:"OOPZBOT_MUSIC_BASE_URL" json:"base_url"`
	Cookie  string `env:"OOPZBOT_MUSIC_COOKIE"   json:"cookie"`
}

type StatsConfig struct {
	BaseURL string `env:"OOPZBOT_STATS_BASE_URL" json:"base_url"`
	APIKey  string `env:"OOPZBOT_STATS_API_KEY"  json:"api_key"`
}

type NamesConfig struct {
	FilePath string `env:"OOPZBOT_NAMES_FILE_PATH" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `env:"OOPZBOT_METRICS_ENABLED" json:"enabled"`
	Addr    string `env:"OOPZBOT_METRICS_ADDR"    json:"addr"`
}

type LogConfig struct {
	Level  string `env:"OOPZBOT_LOG_LEVEL"  json:"level"`
	Format string `env:"OOPZBOT_LOG_FORMAT" json:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Oopz: OopzConfig{
			GatewayURL:         "wss://gateway.oopz.cn/ws",
			APIBase:            "https://api.oopz.cn",
			AppVersion:         "1.8.0",
			Platform:           "windows",
			Channel:            "official",
			HeartbeatSeconds:   30,
			LivenessMultiplier: 3,
			ConnectTimeoutSecs: 15,
		},
		Commands: CommandsConfig{
			Prefix:       "/",
			KeywordsFile: "data/keywords.json",
		},
		Moderation: ModerationConfig{
			Enabled:          true,
			WindowSize:       10,
			WindowSeconds:    30,
			ContextDetection: true,
			AIMinLength:      6,
			AITimeoutSeconds: 5,
			ExemptAdmins:     true,
			Recall:           true,
			// minutes-to-weeks enforcement tiers
			MuteTierSeconds: []int{600, 3600, 86400, 604800},
			MuteSeconds:     600,
		},
		AI: AIConfig{
			Provider:     "openai",
			SystemPrompt: "You are a friendly chat assistant.",
			MaxTokens:    256,
			Temperature:  0.7,
		},
		Image: ImageConfig{
			Size: "1920x1920",
		},
		Names: NamesConfig{
			FilePath: "data/names.json",
		},
		Metrics: MetricsConfig{
			Addr: ":9108",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, cfg.Validate()
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate rejects configurations that would fail at runtime: a mute
// duration outside the allowed tier set must be caught before any
// enforcement action is ever built.
func (c *Config) Validate() error {
	if c.Oopz.HeartbeatSeconds <= 0 {
		return errors.New("oopz.heartbeat_seconds must be positive")
	}
	if c.Oopz.LivenessMultiplier < 2 {
		return errors.New("oopz.liveness_multiplier must be at least 2")
	}
	if c.Moderation.Enabled {
		if len(c.Moderation.MuteTierSeconds) == 0 {
			return errors.New("moderation.mute_tier_seconds must not be empty")
		}
		if !slices.Contains(c.Moderation.MuteTierSeconds, c.Moderation.MuteSeconds) {
			return fmt.Errorf("moderation.mute_seconds %d is not an allowed tier %v",
				c.Moderation.MuteSeconds, c.Moderation.MuteTierSeconds)
		}
		if c.Moderation.WindowSize <= 0 || c.Moderation.WindowSeconds <= 0 {
			return errors.New("moderation window bounds must be positive")
		}
	}
	return nil
}

// IsAdmin reports whether id is on the admin allow-list. An empty list
// means open mode: every caller passes.
func (c *Config) IsAdmin(id string) bool {
	if len(c.Commands.Admins) == 0 {
		return true
	}
	return slices.Contains(c.Commands.Admins, id)
}

// OpenMode reports whether the admin allow-list is empty.
func (c *Config) OpenMode() bool {
	return len(c.Commands.Admins) == 0
}

package env

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "AGENTLOOP"

type Config struct {
	Provider       string `mapstructure:"provider"`
	Model          string `mapstructure:"model"`
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	MaxTokens      int    `mapstructure:"max_tokens"`
	ThinkingBudget int    `mapstructure:"thinking_budget"`
	ReplayScript   string `mapstructure:"replay_script"`

	MaxIterations    int `mapstructure:"max_iterations"`
	ObservationLimit int `mapstructure:"observation_limit"`

	LogDir     string `mapstructure:"log_dir"`
	LogLevel   string `mapstructure:"log_level"`
	LogConsole bool   `mapstructure:"log_console"`

	StateDir      string `mapstructure:"state_dir"`
	WorkspaceRoot string `mapstructure:"workspace_root"`
	HTTPAddr      string `mapstructure:"http_addr"`

	BrowserHeadless bool `mapstructure:"browser_headless"`
	FetchLimit      int  `mapstructure:"fetch_limit"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("provider", "anthropic")
	v.SetDefault("model", "")
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "")
	v.SetDefault("max_tokens", 8192)
	v.SetDefault("thinking_budget", 0)
	v.SetDefault("replay_script", "")
	v.SetDefault("max_iterations", 10)
	v.SetDefault("observation_limit", 20000)
	v.SetDefault("log_dir", "logs")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_console", false)
	v.SetDefault("state_dir", "state")
	v.SetDefault("workspace_root", ".")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("browser_headless", true)
	v.SetDefault("fetch_limit", 20000)
}

// LoadConfig reads the optional YAML file at path and applies AGENTLOOP_*
// environment overrides on top of it.
func LoadConfig(path string) (Config, error) {
	var c Config

	v := viper.New()
	defaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return c, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c Config) Validate() error {
	switch c.Provider {
	case "anthropic", "openrouter", "ollama", "replay":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.Provider == "replay" && c.ReplayScript == "" {
		return fmt.Errorf("provider replay needs replay_script")
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	return nil
}

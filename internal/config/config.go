package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration
type Config struct {
	Chat struct {
		Token string `koanf:"token"`
	} `koanf:"chat"`

	GitHub struct {
		Token         string `koanf:"token"`
		AppID         string `koanf:"app_id"`
		AppPrivateKey string `koanf:"app_private_key"`
		DefaultOwner  string `koanf:"default_owner"`
		DefaultRepo   string `koanf:"default_repo"`
		// Prefixes maps mention prefixes (e.g. "bot") to "owner/repo" pairs.
		Prefixes map[string]string `koanf:"prefixes"`
	} `koanf:"github"`

	Cache struct {
		RefreshWindow time.Duration `koanf:"refresh_window"`
		MaxEntries    int           `koanf:"max_entries"`
	} `koanf:"cache"`

	Responses struct {
		TrackingWindow     time.Duration `koanf:"tracking_window"`
		ComicTracking      time.Duration `koanf:"comic_tracking_window"`
		DeleteActionWindow time.Duration `koanf:"delete_action_window"`
		ComicActionWindow  time.Duration `koanf:"comic_action_window"`
	} `koanf:"responses"`

	Webhooks struct {
		Port     int               `koanf:"port"`
		Secret   string            `koanf:"secret"`
		Channels map[string]string `koanf:"channels"`
	} `koanf:"webhooks"`
}

// LoadConfig loads the configuration from a file
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"cache.refresh_window":            "30m",
		"cache.max_entries":               1024,
		"responses.tracking_window":       "24h",
		"responses.comic_tracking_window": "1h",
		"responses.delete_action_window":  "30s",
		"responses.comic_action_window":   "1h",
		"webhooks.port":                   8787,
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		// Try to load from default locations
		defaultPaths := []string{"./mentionbot.toml", "$HOME/.mentionbot.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix MENTIONBOT_
	k.Load(env.Provider("MENTIONBOT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(s), "_", ".", -1)
	}), nil)

	// Unmarshal into Config struct
	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	// Create sample configuration
	sampleConfig := `# MentionBot Configuration

[chat]
token = "your-chat-token"

[github]
token = "your-github-token"
default_owner = "ghostty-org"
default_repo = "ghostty"

[github.prefixes]
main = "ghostty-org/ghostty"
bot = "ghostty-org/discord-bot"
web = "ghostty-org/website"

[cache]
refresh_window = "30m"
max_entries = 1024

[webhooks]
port = 8787
secret = "your-webhook-secret"

[webhooks.channels]
main = "github-feed"
discussions = "github-discussions"
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.Chat.Token == "" {
		return fmt.Errorf("chat token is required")
	}

	if config.GitHub.DefaultOwner == "" || config.GitHub.DefaultRepo == "" {
		return fmt.Errorf("github default_owner and default_repo are required")
	}

	if config.GitHub.Token == "" && config.GitHub.AppPrivateKey == "" {
		return fmt.Errorf("either a github token or an app private key is required")
	}

	for prefix, target := range config.GitHub.Prefixes {
		if prefix == "" {
			return fmt.Errorf("empty prefix in github.prefixes")
		}
		if !strings.Contains(target, "/") {
			return fmt.Errorf("prefix %q must map to an owner/repo pair, got %q", prefix, target)
		}
	}

	if config.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max_entries must be positive")
	}

	if config.Cache.RefreshWindow <= 0 {
		return fmt.Errorf("cache refresh_window must be positive")
	}

	return nil
}

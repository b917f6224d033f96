package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Database DatabaseConfig `mapstructure:"database"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Download DownloadConfig `mapstructure:"download"`
	YtDlp    YtDlpConfig    `mapstructure:"ytdlp"`
	FFmpeg   FFmpegConfig   `mapstructure:"ffmpeg"`
	Relays   RelaysConfig   `mapstructure:"relays"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type TelegramConfig struct {
	Token       string `mapstructure:"token"`
	AdminChatID int64  `mapstructure:"admin_chat_id"`
	PollTimeout int    `mapstructure:"poll_timeout"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// HTTPConfig is the liveness endpoint
type HTTPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type DownloadConfig struct {
	Dir            string        `mapstructure:"dir"`
	MaxUploadMB    int           `mapstructure:"max_upload_mb"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	StreamTimeout  time.Duration `mapstructure:"stream_timeout"`
}

type YtDlpConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Binary        string   `mapstructure:"binary"`
	CookieFile    string   `mapstructure:"cookie_file"`
	UserAgent     string   `mapstructure:"user_agent"`
	PlayerClients []string `mapstructure:"player_clients"`
}

type FFmpegConfig struct {
	Binary string `mapstructure:"binary"`
}

type RelaysConfig struct {
	Embedded        bool          `mapstructure:"embedded"`
	Instances       []string      `mapstructure:"instances"`
	MetadataTimeout time.Duration `mapstructure:"metadata_timeout"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{
			PollTimeout: 60,
		},
		Database: DatabaseConfig{
			Path: "/data/bot.db",
		},
		HTTP: HTTPConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Download: DownloadConfig{
			Dir:            "downloads",
			MaxUploadMB:    50,
			RequestTimeout: 10 * time.Minute,
			StreamTimeout:  60 * time.Second,
		},
		YtDlp: YtDlpConfig{
			Enabled:       true,
			Binary:        "yt-dlp",
			CookieFile:    "cookies.txt",
			UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			PlayerClients: []string{"ios", "android", "tv", "mweb"},
		},
		FFmpeg: FFmpegConfig{
			Binary: "ffmpeg",
		},
		Relays: RelaysConfig{
			Embedded: true,
			Instances: []string{
				"https://inv.nadeko.net",
				"https://invidious.nerdvpn.de",
				"https://yewtu.be",
			},
			MetadataTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}

// legacyEnv maps the variable names the bot has always been deployed with.
// Earlier names win.
var legacyEnv = map[string][]string{
	"telegram.token": {"TELEGRAM_BOT_TOKEN", "BOT_TOKEN"},
	"database.path":  {"DB_PATH"},
	"http.port":      {"PORT"},
}

// Load loads configuration from an optional file and the environment
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v, Default())

	v.SetEnvPrefix("TUBEDROP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		input := append([]string{key, "TUBEDROP_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(input...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Decode into a zero value; decoding over Default() merges list values
	// instead of replacing them.
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.Download.Dir = expandPath(config.Download.Dir)
	config.Database.Path = expandPath(config.Database.Path)
	config.YtDlp.CookieFile = expandPath(config.YtDlp.CookieFile)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("telegram.token", c.Telegram.Token)
	v.SetDefault("telegram.admin_chat_id", c.Telegram.AdminChatID)
	v.SetDefault("telegram.poll_timeout", c.Telegram.PollTimeout)
	v.SetDefault("database.path", c.Database.Path)
	v.SetDefault("http.host", c.HTTP.Host)
	v.SetDefault("http.port", c.HTTP.Port)
	v.SetDefault("download.dir", c.Download.Dir)
	v.SetDefault("download.max_upload_mb", c.Download.MaxUploadMB)
	v.SetDefault("download.request_timeout", c.Download.RequestTimeout)
	v.SetDefault("download.stream_timeout", c.Download.StreamTimeout)
	v.SetDefault("ytdlp.enabled", c.YtDlp.Enabled)
	v.SetDefault("ytdlp.binary", c.YtDlp.Binary)
	v.SetDefault("ytdlp.cookie_file", c.YtDlp.CookieFile)
	v.SetDefault("ytdlp.user_agent", c.YtDlp.UserAgent)
	v.SetDefault("ytdlp.player_clients", c.YtDlp.PlayerClients)
	v.SetDefault("ffmpeg.binary", c.FFmpeg.Binary)
	v.SetDefault("relays.embedded", c.Relays.Embedded)
	v.SetDefault("relays.instances", c.Relays.Instances)
	v.SetDefault("relays.metadata_timeout", c.Relays.MetadataTimeout)
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)
	v.SetDefault("logging.output_path", c.Logging.OutputPath)
}

// Validate checks values that would otherwise fail later at runtime
func (c *Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTP.Port)
	}
	if c.Download.Dir == "" {
		return fmt.Errorf("download directory not configured")
	}
	if c.Download.MaxUploadMB <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d", c.Download.MaxUploadMB)
	}
	for _, instance := range c.Relays.Instances {
		if !strings.HasPrefix(instance, "https://") && !strings.HasPrefix(instance, "http://") {
			return fmt.Errorf("relay instance %q must be an http(s) URL", instance)
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return nil
}

// RequireToken is checked only by commands that talk to Telegram
func (c *Config) RequireToken() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN or BOT_TOKEN environment variable is not set")
	}
	return nil
}

// MaxUploadBytes returns the delivery ceiling in bytes
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Download.MaxUploadMB) * 1024 * 1024
}

func expandPath(path string) string {
	path = os.ExpandEnv(path)
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return path
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// Routing keys for events published to the exchange
	RoutingCrawlerURL    = "crawler.url"
	RoutingDownloaderLog = "downloader.log"

	// Exchange type
	ExchangeTypeDirect = "direct"
)

// Config is the struct that holds the configuration of the application
type Config struct {
	App        AppConfig        `json:"app"`
	RabbitMq   RabbitMQConfig   `json:"rabbitmq"`
	Search     SearchConfig     `json:"search"`
	Downloader DownloaderConfig `json:"downloader"`
	Stats      StatsConfig      `json:"stats"`
	WebPanel   WebPanelConfig   `json:"webpanel"`
}

type AppConfig struct {
	Name     string `json:"name"`
	LogLevel int    `json:"logLevel"`
	Env      string `json:"env"`
}

// RabbitMQConfig is optional. An empty URL disables event publishing.
type RabbitMQConfig struct {
	URL              string     `json:"url"`
	Exchange         string     `json:"exchange"`
	Queue            QueueNames `json:"queue"`
	ReconnectRetries int        `json:"reconnectRetries"`
	ReconnectTimeout int        `json:"reconnectTimeout"`
}

type QueueNames struct {
	Log string `json:"log"`
}

type SearchConfig struct {
	BaseURL   string            `json:"baseURL"`
	GuildID   string            `json:"guildID"`
	ChannelID string            `json:"channelID"`
	Content   string            `json:"content"`
	PageSize  int               `json:"pageSize"`
	Interval  time.Duration     `json:"interval"`
	Timeout   time.Duration     `json:"timeout"`
	Headers   map[string]string `json:"headers"`
}

type DownloaderConfig struct {
	URLsFile           string        `json:"urlsFile"`
	ScriptFile         string        `json:"scriptFile"`
	ProfileDir         string        `json:"profileDir"`
	SaveDir            string        `json:"saveDir"`
	UserAgent          string        `json:"userAgent"`
	NavigationTimeout  time.Duration `json:"navigationTimeout"`
	DownloadTimeout    time.Duration `json:"downloadTimeout"`
	BrowserExecutePath string        `json:"browserExecutePath"`
}

type StatsConfig struct {
	LogDir       string   `json:"logDir"`
	InfoOutput   string   `json:"infoOutput"`
	YakuOutput   string   `json:"yakuOutput"`
	MinKyoku     int      `json:"minKyoku"`
	ExcludeNames []string `json:"excludeNames"`
}

type WebPanelConfig struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	SaveDir string `json:"saveDir"`
}

// Paths holds the directories and files a downloader run works with, resolved
// to absolute paths.
type Paths struct {
	URLsFile   string
	ScriptFile string
	ProfileDir string
	SaveDir    string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "paipu")
	v.SetDefault("app.logLevel", 4)
	v.SetDefault("app.env", "development")

	v.SetDefault("rabbitmq.exchange", "paipu")
	v.SetDefault("rabbitmq.queue.log", "paipu_log")
	v.SetDefault("rabbitmq.reconnectRetries", 3)
	v.SetDefault("rabbitmq.reconnectTimeout", 1000)

	v.SetDefault("search.baseURL", "https://discord.com/api/v9")
	v.SetDefault("search.guildID", "563730522736689153")
	v.SetDefault("search.channelID", "1394370118318030888")
	v.SetDefault("search.content", "mahjongsoul.game.yo-star.com")
	v.SetDefault("search.pageSize", 25)
	v.SetDefault("search.interval", 2*time.Second)
	v.SetDefault("search.timeout", 30*time.Second)

	v.SetDefault("downloader.urlsFile", "urls.txt")
	v.SetDefault("downloader.scriptFile", "downloadlogs.js")
	v.SetDefault("downloader.profileDir", "playwright_data")
	v.SetDefault("downloader.saveDir", "downloads")
	v.SetDefault("downloader.navigationTimeout", 30*time.Second)
	v.SetDefault("downloader.downloadTimeout", 0)

	v.SetDefault("stats.logDir", "downloads")
	v.SetDefault("stats.infoOutput", "info.csv")
	v.SetDefault("stats.yakuOutput", "yaku.csv")
	v.SetDefault("stats.minKyoku", 100)

	v.SetDefault("webpanel.host", "127.0.0.1")
	v.SetDefault("webpanel.port", 8080)
	v.SetDefault("webpanel.saveDir", "downloads")
}

// Load config from config.json, .env and the environment
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom reads config.json from dir.
func LoadFrom(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config") // File name without extension
	v.SetConfigType("json")   // Set to JSON format
	v.AddConfigPath(dir)
	v.AutomaticEnv()
	setDefaults(v)

	// Try to read configuration file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override from environment variables if available
	if envURL := os.Getenv("RABBITMQ_URL"); envURL != "" {
		config.RabbitMq.URL = envURL
	}
	if token := os.Getenv("SEARCH_AUTHORIZATION"); token != "" {
		if config.Search.Headers == nil {
			config.Search.Headers = map[string]string{}
		}
		config.Search.Headers["authorization"] = token
	}

	return &config, nil
}

// Prepare creates the profile and save directories if they are missing and
// returns the resolved paths. Safe to call repeatedly.
func (c *DownloaderConfig) Prepare() (*Paths, error) {
	p := &Paths{}
	for _, f := range []struct {
		src string
		dst *string
	}{
		{c.URLsFile, &p.URLsFile},
		{c.ScriptFile, &p.ScriptFile},
		{c.ProfileDir, &p.ProfileDir},
		{c.SaveDir, &p.SaveDir},
	} {
		if f.src == "" {
			return nil, fmt.Errorf("downloader path is not configured")
		}
		abs, err := filepath.Abs(f.src)
		if err != nil {
			return nil, fmt.Errorf("error resolving %s: %w", f.src, err)
		}
		*f.dst = abs
	}

	for _, dir := range []string{p.ProfileDir, p.SaveDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("error creating directory %s: %w", dir, err)
		}
	}

	return p, nil
}

// Endpoint returns the message search URL for the configured guild
func (c *SearchConfig) Endpoint() string {
	return fmt.Sprintf("%s/guilds/%s/messages/search", c.BaseURL, c.GuildID)
}

// Get config for app
func (c *Config) GetAppConfig() *AppConfig {
	return &c.App
}

// Get config for search crawling
func (c *Config) GetSearchConfig() *SearchConfig {
	return &c.Search
}

// Get config for downloader
func (c *Config) GetDownloaderConfig() *DownloaderConfig {
	return &c.Downloader
}

// Get config for stats
func (c *Config) GetStatsConfig() *StatsConfig {
	return &c.Stats
}

// Get config for web panel
func (c *Config) GetWebPanelConfig() *WebPanelConfig {
	return &c.WebPanel
}

// Get config for RabbitMQ
func (c *Config) GetRabbitMQConfig() *RabbitMQConfig {
	return &c.RabbitMq
}

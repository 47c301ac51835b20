package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"redditcollector/pkg/errors"
)

// Config holds all configuration options for the collection pipeline
type Config struct {
	// Collection targets (subreddits and users)
	Targets TargetsConfig `yaml:"targets" json:"targets"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Post filters applied before extraction
	Blacklist BlacklistConfig `yaml:"blacklist" json:"blacklist"`

	// Durable metadata store
	Store StoreConfig `yaml:"store" json:"store"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SubredditTarget identifies one subreddit to collect
type SubredditTarget struct {
	Name       string `yaml:"name" json:"name"`
	Limit      int    `yaml:"limit" json:"limit"`
	Sort       string `yaml:"sort" json:"sort"`
	TimeFilter string `yaml:"time_filter" json:"time_filter"`
}

// UserTarget identifies one user profile to collect
type UserTarget struct {
	Name  string `yaml:"name" json:"name"`
	Limit int    `yaml:"limit" json:"limit"`
}

// TargetsConfig holds all configured collection targets
type TargetsConfig struct {
	Subreddits []SubredditTarget `yaml:"subreddits" json:"subreddits"`
	Users      []UserTarget      `yaml:"users" json:"users"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	OutputDir               string        `yaml:"output_dir" json:"output_dir"`
	MediaKinds              []string      `yaml:"media_kinds" json:"media_kinds"`
	MinScore                int           `yaml:"min_score" json:"min_score"`
	SkipNSFW                bool          `yaml:"skip_nsfw" json:"skip_nsfw"`
	MaxFileSizeMB           int64         `yaml:"max_file_size_mb" json:"max_file_size_mb"`
	GenerateSidecar         bool          `yaml:"generate_sidecar" json:"generate_sidecar"`
	VideosOnlyFromFavorites bool          `yaml:"videos_only_from_favorites" json:"videos_only_from_favorites"`
	ConcurrentDownloads     int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	DownloadTimeout         time.Duration `yaml:"download_timeout" json:"download_timeout"`
	RunTimeout              time.Duration `yaml:"run_timeout" json:"run_timeout"`
}

// RateLimitConfig holds rate limiting and retry configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	MaxAttempts       int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay" json:"max_delay"`
}

// BlacklistConfig drops posts before any network call is made for them
type BlacklistConfig struct {
	Authors       []string `yaml:"authors" json:"authors"`
	Subreddits    []string `yaml:"subreddits" json:"subreddits"`
	Domains       []string `yaml:"domains" json:"domains"`
	TitleKeywords []string `yaml:"title_keywords" json:"title_keywords"`
}

// StoreConfig holds the durable metadata store location
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Download: DownloadConfig{
			OutputDir:           "./downloads",
			MediaKinds:          []string{"image", "video", "gif"},
			MinScore:            10,
			SkipNSFW:            true,
			MaxFileSizeMB:       100,
			GenerateSidecar:     true,
			ConcurrentDownloads: 3,
			DownloadTimeout:     30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 10,
			BurstSize:         3,
			MaxAttempts:       3,
			BaseDelay:         1 * time.Second,
			MaxDelay:          60 * time.Second,
		},
		Store: StoreConfig{
			Path: "media.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		"config.yaml",
		"config.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "redditcollector", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "redditcollector", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if outputDir := os.Getenv("REDDITCOLLECTOR_OUTPUT_DIR"); outputDir != "" {
		c.Download.OutputDir = outputDir
	}
	if storePath := os.Getenv("REDDITCOLLECTOR_STORE_PATH"); storePath != "" {
		c.Store.Path = storePath
	}
	if minScore := os.Getenv("REDDITCOLLECTOR_MIN_SCORE"); minScore != "" {
		if val, err := strconv.Atoi(minScore); err == nil {
			c.Download.MinScore = val
		}
	}
	if rpm := os.Getenv("REDDITCOLLECTOR_REQUESTS_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err == nil && val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}
	if concurrent := os.Getenv("REDDITCOLLECTOR_CONCURRENT_DOWNLOADS"); concurrent != "" {
		if val, err := strconv.Atoi(concurrent); err == nil && val > 0 {
			c.Download.ConcurrentDownloads = val
		}
	}
	if skipNSFW := os.Getenv("REDDITCOLLECTOR_SKIP_NSFW"); skipNSFW != "" {
		c.Download.SkipNSFW = strings.ToLower(skipNSFW) == "true"
	}
	if logLevel := os.Getenv("REDDITCOLLECTOR_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Download.OutputDir = outputDir
	}
	if storePath, ok := flags["store"].(string); ok && storePath != "" {
		c.Store.Path = storePath
	}
	if concurrent, ok := flags["concurrent"].(int); ok && concurrent > 0 {
		c.Download.ConcurrentDownloads = concurrent
	}
	if rpm, ok := flags["rate-limit"].(int); ok && rpm > 0 {
		c.RateLimit.RequestsPerMinute = rpm
	}
	if minScore, ok := flags["min-score"].(int); ok {
		c.Download.MinScore = minScore
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Validate checks if the configuration is valid. Any violation is a fatal
// configuration error: the run must not reach the network with a bad config.
func (c *Config) Validate() error {
	var problems []string

	if len(c.Targets.Subreddits) == 0 && len(c.Targets.Users) == 0 {
		problems = append(problems, "no targets configured: add subreddits or users")
	}
	for _, t := range c.Targets.Subreddits {
		if t.Name == "" {
			problems = append(problems, "subreddit target with empty name")
		}
		switch t.Sort {
		case "", "hot", "new", "top", "rising":
		default:
			problems = append(problems, fmt.Sprintf("invalid sort %q for r/%s", t.Sort, t.Name))
		}
	}
	for _, t := range c.Targets.Users {
		if t.Name == "" {
			problems = append(problems, "user target with empty name")
		}
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		problems = append(problems, "requests per minute must be positive")
	}
	if c.RateLimit.MaxAttempts <= 0 {
		problems = append(problems, "max attempts must be positive")
	}
	if c.Download.ConcurrentDownloads <= 0 {
		problems = append(problems, "concurrent downloads must be positive")
	}
	if c.Download.ConcurrentDownloads > 10 {
		problems = append(problems, "concurrent downloads should not exceed 10")
	}
	if c.Download.OutputDir == "" {
		problems = append(problems, "output directory is required")
	}
	if c.Download.MaxFileSizeMB <= 0 {
		problems = append(problems, "max file size must be positive")
	}
	if c.Store.Path == "" {
		problems = append(problems, "store path is required")
	}
	for _, kind := range c.Download.MediaKinds {
		switch kind {
		case "image", "video", "gif":
		default:
			problems = append(problems, fmt.Sprintf("unknown media kind %q", kind))
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		problems = append(problems, fmt.Sprintf("invalid log level %q", c.Logging.Level))
	}

	if len(problems) > 0 {
		return errors.New(errors.TypeConfigInvalid, strings.Join(problems, "; "))
	}

	return nil
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".redditcollector.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, errors.Wrap(errors.TypeConfigInvalid, "failed to load config file", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, errors.Wrap(errors.TypeConfigInvalid, "failed to load environment variables", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// MaxFileSizeBytes returns the configured size cap in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return c.Download.MaxFileSizeMB * 1024 * 1024
}

// KindAllowed reports whether a media kind survives the configured allow-list.
func (c *Config) KindAllowed(kind string) bool {
	for _, k := range c.Download.MediaKinds {
		if k == kind {
			return true
		}
	}
	return false
}

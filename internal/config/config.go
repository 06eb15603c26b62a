package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Keyword sets being tracked, keyed by label
	Keywords map[string][]string `mapstructure:"keywords"`

	// Keyword files to merge into Keywords, keyed by label. One keyword
	// per line; lines are trimmed and blank lines skipped.
	KeywordFiles map[string]string `mapstructure:"keyword_files"`

	// Per-platform collector configuration
	Collectors CollectorsConfig `mapstructure:"collectors"`

	// API credentials
	Credentials CredentialsConfig `mapstructure:"credentials"`

	// Storage configuration
	Storage StorageConfig `mapstructure:"storage"`

	// Cleaning and counting configuration
	Processing ProcessingConfig `mapstructure:"processing"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// CollectorsConfig groups the per-platform collector settings
type CollectorsConfig struct {
	CrowdTangle CrowdTangleConfig `mapstructure:"crowdtangle"`
	Pushshift   PushshiftConfig   `mapstructure:"pushshift"`
	FourChan    FourChanConfig    `mapstructure:"fourchan"`
	FBAds       FBAdsConfig       `mapstructure:"fb_ads"`
	Twitter     TwitterConfig     `mapstructure:"twitter"`
}

// CrowdTangleConfig holds CrowdTangle collector settings
type CrowdTangleConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Schedule   string        `mapstructure:"schedule"`
	ListIDs    []string      `mapstructure:"list_ids"`
	MaxQueries int           `mapstructure:"max_queries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// PushshiftConfig holds Pushshift collector settings
type PushshiftConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Schedule   string        `mapstructure:"schedule"`
	Kinds      []string      `mapstructure:"kinds"` // "submission", "comment"
	MaxQueries int           `mapstructure:"max_queries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// FourChanConfig holds 4chan collector settings
type FourChanConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Boards           []string      `mapstructure:"boards"`
	SnapshotSchedule string        `mapstructure:"snapshot_schedule"`
	ArchiveSchedule  string        `mapstructure:"archive_schedule"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// FBAdsConfig holds Ad Library collector settings
type FBAdsConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Schedule  string        `mapstructure:"schedule"`
	Country   string        `mapstructure:"country"`
	TokenFile string        `mapstructure:"token_file"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// TwitterConfig holds Twitter collector settings
type TwitterConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	BacksearchSchedule string        `mapstructure:"backsearch_schedule"`
	FollowFile         string        `mapstructure:"follow_file"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// CredentialsConfig holds API tokens. All of these load from the
// environment or a .env file, never from the config file.
type CredentialsConfig struct {
	CrowdTangleToken  string `mapstructure:"crowdtangle_token"`
	TwitterBearer     string `mapstructure:"twitter_bearer"`
	TwitterStreamAuth string `mapstructure:"twitter_stream_auth"`
	FBAppID           string `mapstructure:"fb_app_id"`
	FBAppSecret       string `mapstructure:"fb_app_secret"`
}

// StorageConfig holds archive layout configuration
type StorageConfig struct {
	// DataDir is the archive root; each platform gets a subdirectory
	DataDir string `mapstructure:"data_dir"`

	// LedgerPath is the run ledger SQLite file
	LedgerPath string `mapstructure:"ledger_path"`
}

// PlatformDir returns the archive directory for one platform.
func (s StorageConfig) PlatformDir(platform string) string {
	return s.DataDir + "/" + platform
}

// ProcessingConfig holds cleaning and counting settings
type ProcessingConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	TopN      int    `mapstructure:"top_n"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file, .env and environment.
func Load(configPath string) (*Config, error) {
	// Credentials live in .env during development; missing file is fine.
	godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.civiclens")
	}

	setDefaults(v)
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error, we'll use defaults and env
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	loadFromEnv(&config)

	if err := config.loadKeywordFiles(); err != nil {
		return nil, err
	}

	return &config, nil
}

// loadKeywordFiles reads each configured keyword file and appends its
// lines to the keyword set with the same label.
func (c *Config) loadKeywordFiles() error {
	if len(c.KeywordFiles) == 0 {
		return nil
	}
	if c.Keywords == nil {
		c.Keywords = make(map[string][]string)
	}
	for label, path := range c.KeywordFiles {
		kws, err := ReadLines(path)
		if err != nil {
			return fmt.Errorf("keyword file for %q: %w", label, err)
		}
		c.Keywords[label] = append(c.Keywords[label], kws...)
	}
	return nil
}

// ReadLines reads a file of one entry per line, trimming whitespace and
// skipping blank lines.
func ReadLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Collector defaults: daily platforms run in the early morning for the
	// previous day, the 4chan archive watcher runs every minute.
	v.SetDefault("collectors.crowdtangle.enabled", true)
	v.SetDefault("collectors.crowdtangle.schedule", "0 2 * * *")
	v.SetDefault("collectors.crowdtangle.max_queries", 500)
	v.SetDefault("collectors.crowdtangle.timeout", "4h")

	v.SetDefault("collectors.pushshift.enabled", true)
	v.SetDefault("collectors.pushshift.schedule", "0 3 * * *")
	v.SetDefault("collectors.pushshift.kinds", []string{"submission", "comment"})
	v.SetDefault("collectors.pushshift.max_queries", 20000)
	v.SetDefault("collectors.pushshift.timeout", "6h")

	v.SetDefault("collectors.fourchan.enabled", true)
	v.SetDefault("collectors.fourchan.boards", []string{"pol"})
	v.SetDefault("collectors.fourchan.snapshot_schedule", "*/30 * * * *")
	v.SetDefault("collectors.fourchan.archive_schedule", "* * * * *")
	v.SetDefault("collectors.fourchan.timeout", "25m")

	v.SetDefault("collectors.fb_ads.enabled", true)
	v.SetDefault("collectors.fb_ads.schedule", "0 4 * * *")
	v.SetDefault("collectors.fb_ads.country", "US")
	v.SetDefault("collectors.fb_ads.token_file", "./fb_token")
	v.SetDefault("collectors.fb_ads.timeout", "4h")

	v.SetDefault("collectors.twitter.enabled", true)
	v.SetDefault("collectors.twitter.backsearch_schedule", "0 5 * * *")
	v.SetDefault("collectors.twitter.timeout", "6h")

	// Storage defaults
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.ledger_path", "./data/runs.db")

	// Processing defaults
	v.SetDefault("processing.output_dir", "./data/derived")
	v.SetDefault("processing.top_n", 50)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output_path", "stdout")
}

// bindEnvVars binds environment variables
func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix("CIVICLENS")
	v.AutomaticEnv()

	v.BindEnv("credentials.crowdtangle_token", "CROWDTANGLE_TOKEN")
	v.BindEnv("credentials.twitter_bearer", "TWITTER_BEARER_TOKEN")
	v.BindEnv("credentials.twitter_stream_auth", "TWITTER_STREAM_AUTH")
	v.BindEnv("credentials.fb_app_id", "FB_APP_ID")
	v.BindEnv("credentials.fb_app_secret", "FB_APP_SECRET")
}

// loadFromEnv loads credentials from environment variables
func loadFromEnv(config *Config) {
	if token := os.Getenv("CROWDTANGLE_TOKEN"); token != "" {
		config.Credentials.CrowdTangleToken = token
	}
	if token := os.Getenv("TWITTER_BEARER_TOKEN"); token != "" {
		config.Credentials.TwitterBearer = token
	}
	if auth := os.Getenv("TWITTER_STREAM_AUTH"); auth != "" {
		config.Credentials.TwitterStreamAuth = auth
	}
	if id := os.Getenv("FB_APP_ID"); id != "" {
		config.Credentials.FBAppID = id
	}
	if secret := os.Getenv("FB_APP_SECRET"); secret != "" {
		config.Credentials.FBAppSecret = secret
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.Keywords) == 0 {
		return fmt.Errorf("keywords must name at least one keyword set")
	}
	for label, kws := range c.Keywords {
		if len(kws) == 0 {
			return fmt.Errorf("keyword set %q is empty", label)
		}
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must be set")
	}
	if c.Collectors.CrowdTangle.Enabled && c.Credentials.CrowdTangleToken == "" {
		return fmt.Errorf("crowdtangle enabled but CROWDTANGLE_TOKEN not set")
	}
	if c.Collectors.Twitter.Enabled && c.Credentials.TwitterBearer == "" {
		return fmt.Errorf("twitter enabled but TWITTER_BEARER_TOKEN not set")
	}
	if c.Collectors.FBAds.Enabled && (c.Credentials.FBAppID == "" || c.Credentials.FBAppSecret == "") {
		return fmt.Errorf("fb_ads enabled but FB_APP_ID/FB_APP_SECRET not set")
	}
	return nil
}

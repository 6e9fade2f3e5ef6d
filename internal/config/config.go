package config

import (
	"fmt"
	"os"
	"strconv"

	"shorts-uploader/internal/jobs"
)

// Config holds all application configuration.
// Supports environment variables with sensible defaults.
//
// Environment Variables:
// YouTube API Configuration:
// - YT_CLIENT_ID: OAuth client ID (required for upload commands)
// - YT_CLIENT_SECRET: OAuth client secret (required for upload commands)
// - YT_REFRESH_TOKEN: OAuth refresh token (required for upload commands)
// - YT_TOKEN_URL: OAuth token endpoint (default: https://oauth2.googleapis.com/token)
// - YT_API_URL: Data API base URL (default: https://www.googleapis.com/youtube/v3)
// - YT_UPLOAD_URL: Upload API base URL (default: https://www.googleapis.com/upload/youtube/v3)
// - YT_TIMEOUT: Request timeout in seconds (default: 600)
//
// Upload Configuration:
// - UPLOAD_LIST: CSV upload list path (default: upload_list.csv)
// - VIDEO_DIR: Directory scanned in directory mode (default: videos)
// - MAX_UPLOADS: Scheduled-run job cap (default: 5)
// - UPLOAD_INTERVAL: Seconds between uploads in batch mode (default: 60)
// - DEFAULT_CATEGORY: Category applied when a row omits one (default: 22)
// - DEFAULT_PRIVACY: Privacy applied when a row omits one (default: public)
// - DEFAULT_PLAYLIST: Playlist applied when a row omits one (default: none)
//
// Quota Configuration:
// - QUOTA_DAILY_LIMIT: Daily unit budget (default: 10000)
// - QUOTA_STATE: Quota ledger path (default: quota_state.json)
//
// Storage Configuration:
// - HISTORY_DB: Upload history database path (default: data/history.db)
// - LOG_DIR: Per-run log directory (default: logs)
//
// Schedule Configuration:
// - CRON_EXPR: Daemon-mode schedule (default: 0 * * * *)

type Config struct {
	// YouTube API Configuration
	YouTube YouTubeConfig `json:"youtube"`

	// Upload Configuration
	Uploads UploadsConfig `json:"uploads"`

	// Quota Configuration
	Quota QuotaConfig `json:"quota"`

	// Storage Configuration
	Storage StorageConfig `json:"storage"`

	// Schedule Configuration
	Schedule ScheduleConfig `json:"schedule"`
}

// YouTubeConfig holds the API credentials and endpoints.
type YouTubeConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
	TokenURL     string `json:"token_url"`
	APIURL       string `json:"api_url"`
	UploadURL    string `json:"upload_url"`
	Timeout      int    `json:"timeout"`
}

// Validate checks the credentials needed to talk to the API. Commands
// that never reach the network skip this check.
func (c YouTubeConfig) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("YT_CLIENT_ID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("YT_CLIENT_SECRET is required")
	}
	if c.RefreshToken == "" {
		return fmt.Errorf("YT_REFRESH_TOKEN is required")
	}
	return nil
}

// UploadsConfig holds the upload list and per-job defaults.
type UploadsConfig struct {
	ListPath        string `json:"list_path"`
	VideoDir        string `json:"video_dir"`
	MaxPerRun       int    `json:"max_per_run"`
	IntervalSeconds int    `json:"interval_seconds"`
	DefaultCategory string `json:"default_category"`
	DefaultPrivacy  string `json:"default_privacy"`
	DefaultPlaylist string `json:"default_playlist"`
}

// QuotaConfig holds the local quota ledger settings.
type QuotaConfig struct {
	DailyLimit int    `json:"daily_limit"`
	StatePath  string `json:"state_path"`
}

// StorageConfig holds the history database and log locations.
type StorageConfig struct {
	HistoryDBPath string `json:"history_db_path"`
	LogDir        string `json:"log_dir"`
}

// ScheduleConfig holds the daemon-mode schedule.
type ScheduleConfig struct {
	CronExpr string `json:"cron_expr"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		YouTube: YouTubeConfig{
			ClientID:     getEnvString("YT_CLIENT_ID", ""),
			ClientSecret: getEnvString("YT_CLIENT_SECRET", ""),
			RefreshToken: getEnvString("YT_REFRESH_TOKEN", ""),
			TokenURL:     getEnvString("YT_TOKEN_URL", "https://oauth2.googleapis.com/token"),
			APIURL:       getEnvString("YT_API_URL", "https://www.googleapis.com/youtube/v3"),
			UploadURL:    getEnvString("YT_UPLOAD_URL", "https://www.googleapis.com/upload/youtube/v3"),
			Timeout:      getEnvInt("YT_TIMEOUT", 600),
		},
		Uploads: UploadsConfig{
			ListPath:        getEnvString("UPLOAD_LIST", "upload_list.csv"),
			VideoDir:        getEnvString("VIDEO_DIR", "videos"),
			MaxPerRun:       getEnvInt("MAX_UPLOADS", 5),
			IntervalSeconds: getEnvInt("UPLOAD_INTERVAL", 60),
			DefaultCategory: getEnvString("DEFAULT_CATEGORY", jobs.DefaultCategoryID),
			DefaultPrivacy:  getEnvString("DEFAULT_PRIVACY", string(jobs.PrivacyPublic)),
			DefaultPlaylist: getEnvString("DEFAULT_PLAYLIST", ""),
		},
		Quota: QuotaConfig{
			DailyLimit: getEnvInt("QUOTA_DAILY_LIMIT", 10000),
			StatePath:  getEnvString("QUOTA_STATE", "quota_state.json"),
		},
		Storage: StorageConfig{
			HistoryDBPath: getEnvString("HISTORY_DB", "data/history.db"),
			LogDir:        getEnvString("LOG_DIR", "logs"),
		},
		Schedule: ScheduleConfig{
			CronExpr: getEnvString("CRON_EXPR", "0 * * * *"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.Uploads.MaxPerRun < 1 {
		return fmt.Errorf("MAX_UPLOADS must be at least 1")
	}
	if c.Uploads.IntervalSeconds < 0 {
		return fmt.Errorf("UPLOAD_INTERVAL must not be negative")
	}
	if c.Quota.DailyLimit < 1 {
		return fmt.Errorf("QUOTA_DAILY_LIMIT must be at least 1")
	}
	if !jobs.ValidPrivacy(jobs.PrivacyStatus(c.Uploads.DefaultPrivacy)) {
		return fmt.Errorf("DEFAULT_PRIVACY must be one of public, private, unlisted")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig        `mapstructure:"app"`
	Server    ServerConfig     `mapstructure:"server"`
	Store     StoreConfig      `mapstructure:"store"`
	Query     QueryConfig      `mapstructure:"query"`
	Backup    BackupConfig     `mapstructure:"backup"`
	Schedules []ScheduleConfig `mapstructure:"schedules"`
	Monitor   MonitorConfig    `mapstructure:"monitor"`
	Migrator  MigratorConfig   `mapstructure:"migrator"`
}

type AppConfig struct {
	Name     string    `mapstructure:"name"`
	LogLevel string    `mapstructure:"log_level"`
	LogFile  string    `mapstructure:"log_file"`
	Log      LogConfig `mapstructure:"log"`
}

type LogConfig struct {
	MaxSizeMB  int `mapstructure:"max_size_mb"`
	MaxBackups int `mapstructure:"max_backups"`
	MaxAgeDays int `mapstructure:"max_age_days"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig points at the SQLite file that holds connections and backup records.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type QueryConfig struct {
	DefaultLimit   int           `mapstructure:"default_limit"`
	MaxLimit       int           `mapstructure:"max_limit"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

type BackupConfig struct {
	LocalPath        string         `mapstructure:"local_path"`
	Workers          int            `mapstructure:"workers"`
	QueueSize        int            `mapstructure:"queue_size"`
	RetentionDays    int            `mapstructure:"retention_days"`
	CleanupSchedule  string         `mapstructure:"cleanup_schedule"`
	CompressionLevel int            `mapstructure:"compression_level"`
	Tools            ToolsConfig    `mapstructure:"tools"`
	UploadTargets    []UploadTarget `mapstructure:"upload_targets"`
}

// ToolsConfig holds the vendor binaries used for dumps and restores.
type ToolsConfig struct {
	PgDump       string `mapstructure:"pg_dump"`
	Psql         string `mapstructure:"psql"`
	MySQLDump    string `mapstructure:"mysqldump"`
	MySQL        string `mapstructure:"mysql"`
	MongoDump    string `mapstructure:"mongodump"`
	MongoRestore string `mapstructure:"mongorestore"`
}

type UploadTarget struct {
	Type    string `mapstructure:"type"`
	Name    string `mapstructure:"name"`
	Enabled bool   `mapstructure:"enabled"`

	// Local mirror directory
	Path string `mapstructure:"path"`

	// Google Drive
	CredentialsFile string `mapstructure:"credentials_file"`
	FolderID        string `mapstructure:"folder_id"`

	// AWS S3
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
	Endpoint  string `mapstructure:"endpoint"`

	// Telegram
	BotToken   string `mapstructure:"bot_token"`
	ChatID     string `mapstructure:"chat_id"`
	SendFile   bool   `mapstructure:"send_file"`
	NotifyOnly bool   `mapstructure:"notify_only"`
}

// ScheduleConfig triggers a backup of an existing connection on a cron spec.
type ScheduleConfig struct {
	ConnectionID string   `mapstructure:"connection_id"`
	Cron         string   `mapstructure:"cron"`
	Name         string   `mapstructure:"name"`
	BackupType   string   `mapstructure:"backup_type"`
	Tables       []string `mapstructure:"tables"`
	Compress     bool     `mapstructure:"compress"`
}

type MonitorConfig struct {
	SampleSchedule string        `mapstructure:"sample_schedule"`
	HistoryWindow  time.Duration `mapstructure:"history_window"`
	HistorySize    int           `mapstructure:"history_size"`
	IssueCapacity  int           `mapstructure:"issue_capacity"`
	DiskPath       string        `mapstructure:"disk_path"`
}

type MigratorConfig struct {
	Binary         string        `mapstructure:"binary"`
	WorkDir        string        `mapstructure:"work_dir"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "dbtoolkit")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log.max_size_mb", 100)
	v.SetDefault("app.log.max_backups", 3)
	v.SetDefault("app.log.max_age_days", 28)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8765)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("store.path", "./data/dbtoolkit.db")

	v.SetDefault("query.default_limit", 1000)
	v.SetDefault("query.max_limit", 10000)
	v.SetDefault("query.default_timeout", 30*time.Second)

	v.SetDefault("backup.local_path", "./backups")
	v.SetDefault("backup.workers", 2)
	v.SetDefault("backup.queue_size", 16)
	v.SetDefault("backup.retention_days", 7)
	v.SetDefault("backup.cleanup_schedule", "0 0 3 * * *")
	v.SetDefault("backup.compression_level", 9)
	v.SetDefault("backup.tools.pg_dump", "pg_dump")
	v.SetDefault("backup.tools.psql", "psql")
	v.SetDefault("backup.tools.mysqldump", "mysqldump")
	v.SetDefault("backup.tools.mysql", "mysql")
	v.SetDefault("backup.tools.mongodump", "mongodump")
	v.SetDefault("backup.tools.mongorestore", "mongorestore")

	v.SetDefault("monitor.sample_schedule", "*/3 * * * * *")
	v.SetDefault("monitor.history_window", 3*time.Hour)
	v.SetDefault("monitor.history_size", 3600)
	v.SetDefault("monitor.issue_capacity", 500)
	v.SetDefault("monitor.disk_path", "/")

	v.SetDefault("migrator.binary", "migrator")
	v.SetDefault("migrator.default_timeout", 300*time.Second)
}

// Load reads the YAML file at path. An empty path runs on defaults and
// environment only. A .env next to the working directory is loaded first
// when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DBTOOLKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Backup.LocalPath == "" {
		return fmt.Errorf("backup.local_path is required")
	}
	if c.Backup.Workers < 1 {
		return fmt.Errorf("backup.workers must be at least 1")
	}
	if c.Backup.QueueSize < 1 {
		return fmt.Errorf("backup.queue_size must be at least 1")
	}
	if c.Backup.CompressionLevel < 1 || c.Backup.CompressionLevel > 9 {
		return fmt.Errorf("backup.compression_level must be between 1 and 9")
	}
	if c.Query.DefaultLimit < 1 || c.Query.DefaultLimit > c.Query.MaxLimit {
		return fmt.Errorf("query.default_limit must be between 1 and query.max_limit")
	}
	if c.Query.DefaultTimeout <= 0 {
		return fmt.Errorf("query.default_timeout must be positive")
	}

	for i, s := range c.Schedules {
		if s.ConnectionID == "" {
			return fmt.Errorf("schedules[%d]: connection_id is required", i)
		}
		if s.Cron == "" {
			return fmt.Errorf("schedules[%d]: cron is required", i)
		}
	}

	for i, t := range c.Backup.UploadTargets {
		if t.Type == "" {
			return fmt.Errorf("backup.upload_targets[%d]: type is required", i)
		}
	}

	return nil
}

func (c *Config) GetEnabledUploadTargets() []UploadTarget {
	var enabled []UploadTarget
	for _, target := range c.Backup.UploadTargets {
		if target.Enabled {
			enabled = append(enabled, target)
		}
	}
	return enabled
}

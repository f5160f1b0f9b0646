package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "bookmarks.cfg.json"

// BookmarksConfig holds the category directory settings
type BookmarksConfig struct {
	Dir      string `json:"dir" mapstructure:"dir"`
	Binary   bool   `json:"binary" mapstructure:"binary"`
	InboxDir string `json:"inboxDir" mapstructure:"inboxDir"`
	ShareDir string `json:"shareDir" mapstructure:"shareDir"`
}

// DBConfig holds postgres connection settings
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// StateConfig selects where the manager state is persisted
type StateConfig struct {
	Driver string   `json:"driver" mapstructure:"driver"`
	Path   string   `json:"path" mapstructure:"path"`
	DB     DBConfig `json:"db" mapstructure:"db"`
}

// S3Config holds S3 backup store settings
type S3Config struct {
	Endpoint        string `json:"endpoint" mapstructure:"endpoint"`
	Region          string `json:"region" mapstructure:"region"`
	Bucket          string `json:"bucket" mapstructure:"bucket"`
	Prefix          string `json:"prefix" mapstructure:"prefix"`
	AccessKeyID     string `json:"accessKeyId" mapstructure:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey" mapstructure:"secretAccessKey"`
	UsePathStyle    bool   `json:"usePathStyle" mapstructure:"usePathStyle"`
}

// APIConfig holds HTTP backup store settings
type APIConfig struct {
	ServerURL string `json:"serverUrl" mapstructure:"serverUrl"`
	APIKey    string `json:"apiKey" mapstructure:"apiKey"`
}

// CloudConfig holds backup settings
type CloudConfig struct {
	Enabled            bool          `json:"enabled" mapstructure:"enabled"`
	Type               string        `json:"type" mapstructure:"type"`
	Interval           time.Duration `json:"interval" mapstructure:"interval"`
	MinRequestInterval time.Duration `json:"minRequestInterval" mapstructure:"minRequestInterval"`
	Timeout            time.Duration `json:"timeout" mapstructure:"timeout"`
	StagingDir         string        `json:"stagingDir" mapstructure:"stagingDir"`
	BadgerPath         string        `json:"badgerPath" mapstructure:"badgerPath"`
	S3                 S3Config      `json:"s3" mapstructure:"s3"`
	API                APIConfig     `json:"api" mapstructure:"api"`
}

// RenderConfig holds the streaming renderer settings
type RenderConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds InfluxDB metrics settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// URL returns the influx server address.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// GraylogConfig holds GELF output settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// SetDefaults registers default values for every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("bookmarks.dir", "./bookmarks")
	viper.SetDefault("bookmarks.binary", false)
	viper.SetDefault("bookmarks.inboxDir", "")
	viper.SetDefault("bookmarks.shareDir", filepath.Join(os.TempDir(), "bookmarks-share"))

	viper.SetDefault("state.driver", "sqlite")
	viper.SetDefault("state.path", "./bookmarks/state.db")
	viper.SetDefault("state.db.host", "localhost")
	viper.SetDefault("state.db.port", "5432")
	viper.SetDefault("state.db.username", "postgres")
	viper.SetDefault("state.db.password", "postgres")
	viper.SetDefault("state.db.database", "bookmarks")

	viper.SetDefault("cloud.enabled", false)
	viper.SetDefault("cloud.type", "badger")
	viper.SetDefault("cloud.interval", "1h")
	viper.SetDefault("cloud.minRequestInterval", "30s")
	viper.SetDefault("cloud.timeout", "30s")
	viper.SetDefault("cloud.stagingDir", filepath.Join(os.TempDir(), "bookmarks-restore"))
	viper.SetDefault("cloud.badger.path", "./bookmarks/backup")
	viper.SetDefault("cloud.s3.endpoint", "")
	viper.SetDefault("cloud.s3.region", "us-east-1")
	viper.SetDefault("cloud.s3.bucket", "")
	viper.SetDefault("cloud.s3.prefix", "")
	viper.SetDefault("cloud.s3.accessKeyId", "")
	viper.SetDefault("cloud.s3.secretAccessKey", "")
	viper.SetDefault("cloud.s3.usePathStyle", false)
	viper.SetDefault("cloud.api.serverUrl", "http://localhost:5000")
	viper.SetDefault("cloud.api.apiKey", "")

	viper.SetDefault("render.websocket.url", "")
	viper.SetDefault("render.websocket.secret", "")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "bookmarks")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "bookmarks")
	viper.SetDefault("influx.bucket", "bookmarks")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. Defaults stay
// in effect when the file is missing.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GetBookmarksConfig returns the category directory settings.
func GetBookmarksConfig() BookmarksConfig {
	return BookmarksConfig{
		Dir:      viper.GetString("bookmarks.dir"),
		Binary:   viper.GetBool("bookmarks.binary"),
		InboxDir: viper.GetString("bookmarks.inboxDir"),
		ShareDir: viper.GetString("bookmarks.shareDir"),
	}
}

// GetStateConfig returns the state database settings.
func GetStateConfig() StateConfig {
	return StateConfig{
		Driver: viper.GetString("state.driver"),
		Path:   viper.GetString("state.path"),
		DB: DBConfig{
			Host:     viper.GetString("state.db.host"),
			Port:     viper.GetString("state.db.port"),
			Username: viper.GetString("state.db.username"),
			Password: viper.GetString("state.db.password"),
			Database: viper.GetString("state.db.database"),
		},
	}
}

// GetCloudConfig returns the backup settings.
func GetCloudConfig() CloudConfig {
	return CloudConfig{
		Enabled:            viper.GetBool("cloud.enabled"),
		Type:               viper.GetString("cloud.type"),
		Interval:           viper.GetDuration("cloud.interval"),
		MinRequestInterval: viper.GetDuration("cloud.minRequestInterval"),
		Timeout:            viper.GetDuration("cloud.timeout"),
		StagingDir:         viper.GetString("cloud.stagingDir"),
		BadgerPath:         viper.GetString("cloud.badger.path"),
		S3: S3Config{
			Endpoint:        viper.GetString("cloud.s3.endpoint"),
			Region:          viper.GetString("cloud.s3.region"),
			Bucket:          viper.GetString("cloud.s3.bucket"),
			Prefix:          viper.GetString("cloud.s3.prefix"),
			AccessKeyID:     viper.GetString("cloud.s3.accessKeyId"),
			SecretAccessKey: viper.GetString("cloud.s3.secretAccessKey"),
			UsePathStyle:    viper.GetBool("cloud.s3.usePathStyle"),
		},
		API: APIConfig{
			ServerURL: viper.GetString("cloud.api.serverUrl"),
			APIKey:    viper.GetString("cloud.api.apiKey"),
		},
	}
}

// GetRenderConfig returns the streaming renderer settings.
func GetRenderConfig() RenderConfig {
	return RenderConfig{
		URL:    viper.GetString("render.websocket.url"),
		Secret: viper.GetString("render.websocket.secret"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the metrics sink settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetGraylogConfig returns the GELF output settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

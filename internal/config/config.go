package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	AWS      AWSConfig      `yaml:"aws"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	NATS     NATSConfig     `yaml:"nats"`
	APNs     APNsConfig     `yaml:"apns"`
	Geocoder GeocoderConfig `yaml:"geocoder"`
	Image    ImageConfig    `yaml:"image"`
	Post     PostConfig     `yaml:"post"`
	Cache    CacheConfig    `yaml:"cache"`
	Display  DisplayConfig  `yaml:"display"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// AWSConfig holds S3 configuration
type AWSConfig struct {
	Region       string `yaml:"region"`
	S3Bucket     string `yaml:"s3_bucket"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// RedisConfig holds cache connection settings. An empty Addr disables caching.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NATSConfig holds event bus settings. An empty URL disables publishing.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// APNsConfig holds push notification settings. An empty KeyPath disables pushes.
type APNsConfig struct {
	KeyPath    string `yaml:"key_path"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// GeocoderConfig holds reverse geocoding settings
type GeocoderConfig struct {
	URL         string        `yaml:"url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxInFlight int           `yaml:"max_in_flight"`
}

// ImageConfig holds upload limits and encoding settings
type ImageConfig struct {
	MaxUploadMB   int `yaml:"max_upload_mb"`
	JPEGQuality   int `yaml:"jpeg_quality"`
	ThumbnailSide int `yaml:"thumbnail_side"`
	MaxPixels     int `yaml:"max_pixels"`
}

// PostConfig holds composition workflow settings
type PostConfig struct {
	EnrichmentWait time.Duration `yaml:"enrichment_wait"`
}

// CacheConfig holds cache TTLs
type CacheConfig struct {
	FeedTTL   time.Duration `yaml:"feed_ttl"`
	ViewerTTL time.Duration `yaml:"viewer_ttl"`
}

// DisplayConfig holds presentation settings for rendered dates
type DisplayConfig struct {
	Timezone string `yaml:"timezone"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults fills zero values with working defaults
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "post.created"
	}
	if c.Geocoder.Timeout == 0 {
		c.Geocoder.Timeout = 5 * time.Second
	}
	if c.Geocoder.MaxInFlight == 0 {
		c.Geocoder.MaxInFlight = 8
	}
	if c.Image.MaxUploadMB == 0 {
		c.Image.MaxUploadMB = 10
	}
	if c.Image.JPEGQuality == 0 {
		c.Image.JPEGQuality = 10
	}
	if c.Image.ThumbnailSide == 0 {
		c.Image.ThumbnailSide = 640
	}
	if c.Image.MaxPixels == 0 {
		c.Image.MaxPixels = 50_000_000
	}
	if c.Post.EnrichmentWait == 0 {
		c.Post.EnrichmentWait = 2 * time.Second
	}
	if c.Cache.FeedTTL == 0 {
		c.Cache.FeedTTL = time.Minute
	}
	if c.Cache.ViewerTTL == 0 {
		c.Cache.ViewerTTL = 5 * time.Minute
	}
	if c.Display.Timezone == "" {
		c.Display.Timezone = "UTC"
	}
}

// Validate reports configuration that the server cannot start with
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.AWS.S3Bucket == "" {
		return fmt.Errorf("aws.s3_bucket is required")
	}
	if c.Image.JPEGQuality < 1 || c.Image.JPEGQuality > 100 {
		return fmt.Errorf("image.jpeg_quality must be between 1 and 100")
	}
	if c.Image.MaxUploadMB < 0 {
		return fmt.Errorf("image.max_upload_mb must not be negative")
	}
	if c.Image.MaxPixels < 0 {
		return fmt.Errorf("image.max_pixels must not be negative")
	}
	if c.Post.EnrichmentWait < 0 {
		return fmt.Errorf("post.enrichment_wait must not be negative")
	}
	if _, err := time.LoadLocation(c.Display.Timezone); err != nil {
		return fmt.Errorf("invalid display.timezone: %w", err)
	}
	if c.APNs.KeyPath != "" && (c.APNs.KeyID == "" || c.APNs.TeamID == "" || c.APNs.Topic == "") {
		return fmt.Errorf("apns.key_id, apns.team_id and apns.topic are required when apns.key_path is set")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// MaxUploadBytes returns the upload limit in bytes
func (c *ImageConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

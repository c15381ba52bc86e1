package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
jwt:
  secret: test-secret
aws:
  s3_bucket: posts
`

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "post.created", cfg.NATS.Subject)
	assert.Equal(t, 5*time.Second, cfg.Geocoder.Timeout)
	assert.Equal(t, 8, cfg.Geocoder.MaxInFlight)
	assert.Equal(t, 10, cfg.Image.JPEGQuality)
	assert.Equal(t, 640, cfg.Image.ThumbnailSide)
	assert.Equal(t, 50_000_000, cfg.Image.MaxPixels)
	assert.Equal(t, int64(10*1024*1024), cfg.Image.MaxUploadBytes())
	assert.Equal(t, 2*time.Second, cfg.Post.EnrichmentWait)
	assert.Equal(t, time.Minute, cfg.Cache.FeedTTL)
	assert.Equal(t, 5*time.Minute, cfg.Cache.ViewerTTL)
	assert.Equal(t, "UTC", cfg.Display.Timezone)
}

func TestParse_ReadsDurations(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + `
post:
  enrichment_wait: 750ms
cache:
  feed_ttl: 30s
`))
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.Post.EnrichmentWait)
	assert.Equal(t, 30*time.Second, cfg.Cache.FeedTTL)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		c := &Config{}
		c.JWT.Secret = "secret"
		c.AWS.S3Bucket = "bucket"
		c.ApplyDefaults()
		return c
	}

	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"Valid", func(c *Config) {}, false},
		{"Missing JWT secret", func(c *Config) { c.JWT.Secret = "" }, true},
		{"Missing bucket", func(c *Config) { c.AWS.S3Bucket = "" }, true},
		{"Quality too high", func(c *Config) { c.Image.JPEGQuality = 101 }, true},
		{"Negative pixel limit", func(c *Config) { c.Image.MaxPixels = -1 }, true},
		{"Negative enrichment wait", func(c *Config) { c.Post.EnrichmentWait = -time.Second }, true},
		{"Unknown timezone", func(c *Config) { c.Display.Timezone = "Mars/Olympus" }, true},
		{"APNs key without topic", func(c *Config) { c.APNs.KeyPath = "/keys/apns.p8" }, true},
		{"APNs complete", func(c *Config) {
			c.APNs = APNsConfig{KeyPath: "/keys/apns.p8", KeyID: "KEY", TeamID: "TEAM", Topic: "com.example.bereal"}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "posts", cfg.AWS.S3Bucket)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "bereal", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=bereal sslmode=disable", db.DSN())
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"bookmarks": { "dir": "/srv/bookmarks", "binary": true },
		"state": { "driver": "postgres", "db": { "host": "10.0.0.1", "port": "5433" } }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "/srv/bookmarks", viper.GetString("bookmarks.dir"))
	assert.Equal(t, true, viper.GetBool("bookmarks.binary"))
	assert.Equal(t, "postgres", viper.GetString("state.driver"))
	assert.Equal(t, "10.0.0.1", viper.GetString("state.db.host"))
	assert.Equal(t, "5433", viper.GetString("state.db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, "./bookmarks", viper.GetString("bookmarks.dir"))
	assert.Equal(t, false, viper.GetBool("bookmarks.binary"))
	assert.Equal(t, "", viper.GetString("bookmarks.inboxDir"))
	assert.Equal(t, "sqlite", viper.GetString("state.driver"))
	assert.Equal(t, "./bookmarks/state.db", viper.GetString("state.path"))
	assert.Equal(t, false, viper.GetBool("cloud.enabled"))
	assert.Equal(t, "badger", viper.GetString("cloud.type"))
	assert.Equal(t, time.Hour, viper.GetDuration("cloud.interval"))
	assert.Equal(t, 30*time.Second, viper.GetDuration("cloud.minRequestInterval"))
	assert.Equal(t, "", viper.GetString("render.websocket.url"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")

	// defaults are still registered
	assert.Equal(t, "./bookmarks", GetBookmarksConfig().Dir)
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetDuration(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testDuration", "90s")
	assert.Equal(t, 90*time.Second, GetDuration("testDuration"))
}

func TestGetBookmarksConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetBookmarksConfig()
	assert.Equal(t, "./bookmarks", cfg.Dir)
	assert.False(t, cfg.Binary)
	assert.Equal(t, filepath.Join(os.TempDir(), "bookmarks-share"), cfg.ShareDir)
}

func TestGetStateConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"state": {
			"driver": "postgres",
			"path": "/var/lib/bookmarks/state.db",
			"db": { "host": "db", "port": "6543", "username": "bm", "password": "pw", "database": "marks" }
		}
	}`)))

	sc := GetStateConfig()
	assert.Equal(t, "postgres", sc.Driver)
	assert.Equal(t, "/var/lib/bookmarks/state.db", sc.Path)
	assert.Equal(t, DBConfig{Host: "db", Port: "6543", Username: "bm", Password: "pw", Database: "marks"}, sc.DB)
}

func TestGetCloudConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cc := GetCloudConfig()
	assert.False(t, cc.Enabled)
	assert.Equal(t, "badger", cc.Type)
	assert.Equal(t, time.Hour, cc.Interval)
	assert.Equal(t, 30*time.Second, cc.MinRequestInterval)
	assert.Equal(t, 30*time.Second, cc.Timeout)
	assert.Equal(t, "./bookmarks/backup", cc.BadgerPath)
	assert.Equal(t, "us-east-1", cc.S3.Region)
	assert.Equal(t, "http://localhost:5000", cc.API.ServerURL)
}

func TestGetCloudConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"cloud": {
			"enabled": true,
			"type": "s3",
			"interval": "15m",
			"s3": { "endpoint": "http://minio:9000", "bucket": "marks", "usePathStyle": true },
			"api": { "apiKey": "k" }
		}
	}`)))

	cc := GetCloudConfig()
	assert.True(t, cc.Enabled)
	assert.Equal(t, "s3", cc.Type)
	assert.Equal(t, 15*time.Minute, cc.Interval)
	assert.Equal(t, "http://minio:9000", cc.S3.Endpoint)
	assert.Equal(t, "marks", cc.S3.Bucket)
	assert.True(t, cc.S3.UsePathStyle)
	assert.Equal(t, "k", cc.API.APIKey)
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "bookmarks", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, "", cfg.Endpoint)
	assert.Equal(t, true, cfg.Insecure)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "my-service",
			"batchTimeout": "30s",
			"endpoint": "localhost:4317",
			"insecure": false
		}
	}`)))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-service", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4317", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

func TestGetInfluxConfig_URL(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{ "influx": { "host": "metrics", "protocol": "https" } }`)))

	ic := GetInfluxConfig()
	assert.Equal(t, "https://metrics:8086", ic.URL())
	assert.Equal(t, "bookmarks", ic.Bucket)
}

func TestGetRenderConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("render.websocket.url", "ws://localhost:5000/ingest")
	viper.Set("render.websocket.secret", "s")

	rc := GetRenderConfig()
	assert.Equal(t, "ws://localhost:5000/ingest", rc.URL)
	assert.Equal(t, "s", rc.Secret)
}

func TestGetGraylogConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	SetDefaults()
	viper.Set("graylog.enabled", true)

	gc := GetGraylogConfig()
	assert.True(t, gc.Enabled)
	assert.Equal(t, "localhost:12201", gc.Address)
}

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func writeDocument(t *testing.T, doc document) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	data, err := json.Marshal(doc)
	assert.NilError(t, err)
	assert.NilError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadDefaultsWhenPathMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.NilError(t, err)
	assert.Equal(t, cfg.Port, 6688)
	assert.Equal(t, cfg.LogLevel, "info")
}

func TestLoadOverlaysDocument(t *testing.T) {
	path := writeDocument(t, document{Port: 7777, LogLevel: "debug"})

	cfg, err := Load(path)
	assert.NilError(t, err)
	assert.Equal(t, cfg.Port, 7777)
	assert.Equal(t, cfg.LogLevel, "debug")
}

func TestLoadEnvOverridesDocument(t *testing.T) {
	path := writeDocument(t, document{Port: 7777, LogLevel: "debug"})

	t.Setenv(EnvPrefix+"_PORT", "9999")
	t.Setenv(EnvPrefix+"_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	assert.NilError(t, err)
	assert.Equal(t, cfg.Port, 9999)
	assert.Equal(t, cfg.LogLevel, "warn")
}

func TestLoadDebugEnvForcesDebugLogLevel(t *testing.T) {
	t.Setenv(EnvPrefix+"_DEBUG", "1")

	cfg, err := Load("")
	assert.NilError(t, err)
	assert.Check(t, cfg.Debug)
	assert.Equal(t, cfg.LogLevel, "debug")
}

func TestLoadStartNowEnv(t *testing.T) {
	t.Setenv(EnvPrefix+"_START_NOW", "1")

	cfg, err := Load("")
	assert.NilError(t, err)
	assert.Check(t, cfg.AutoStart)
}

func TestLoadReportsMalformedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	assert.NilError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := Load(path)
	assert.Check(t, err != nil, "expected an error for a malformed document")
}

func TestDefaultPathIsNonEmpty(t *testing.T) {
	assert.Check(t, DefaultPath() != "")
}

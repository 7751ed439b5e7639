package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/igwatch/internal/output"
)

// testEnv sets up isolated config dir, viper, and output for testing.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	// Override configDirFunc for tests
	origFunc := configDirFunc
	configDirFunc = func() (string, error) { return dir, nil }
	t.Cleanup(func() { configDirFunc = origFunc })

	// Reset viper
	viper.Reset()
	setDefaults()

	// Capture output
	ui = &output.UI{Out: &bytes.Buffer{}, ErrOut: &bytes.Buffer{}}

	return dir
}

// uiOutput returns everything written to ui.Out since testEnv.
func uiOutput(t *testing.T) string {
	t.Helper()
	buf, ok := ui.Out.(*bytes.Buffer)
	require.True(t, ok, "ui.Out is not a buffer; call testEnv first")
	return buf.String()
}

func TestConfigInit_CreatesFile(t *testing.T) {
	dir := testEnv(t)

	err := configInitRun()
	require.NoError(t, err)

	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.NoError(t, err, "config file should exist")

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "igwatch configuration")
	assert.Contains(t, string(data), "https://smart.who.int")
	assert.Contains(t, string(data), "concurrency: 8")
	assert.Contains(t, string(data), "timeout: 30s")
}

func TestConfigInit_RoundTrips(t *testing.T) {
	dir := testEnv(t)
	viper.Set("projects.source", "https://example.org/igs.yaml")
	viper.Set("fleet.concurrency", 3)

	require.NoError(t, configInitRun())

	viper.Reset()
	viper.SetConfigFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, viper.ReadInConfig())

	assert.Equal(t, "https://example.org/igs.yaml", viper.GetString("projects.source"))
	assert.Equal(t, 3, viper.GetInt("fleet.concurrency"))
	assert.Equal(t, "https://build.fhir.org", viper.GetString("proxy.upstreams.fhir"))
	assert.Equal(t, "30s", viper.GetDuration("http.timeout").String())
	assert.Equal(t, 8080, viper.GetInt("port"))
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	dir := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = false
	err := configInitRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigInit_ForceOverwrite(t *testing.T) {
	dir := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = true
	t.Cleanup(func() { configForce = false })
	err := configInitRun()
	require.NoError(t, err)

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "igwatch configuration")
}

func TestConfigShow_NoFile(t *testing.T) {
	testEnv(t)

	err := configShowRun()
	assert.NoError(t, err)

	out := uiOutput(t)
	assert.Contains(t, out, "(none)")
	assert.Contains(t, out, "fleet.concurrency")
	assert.Contains(t, out, "(default)")
}

func TestConfigShow_WithFile(t *testing.T) {
	testEnv(t)

	// Create config first
	require.NoError(t, configInitRun())

	err := configShowRun()
	assert.NoError(t, err)
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	testEnv(t)
	viper.Set("github.token", "ghp_abcdefgh1234")

	require.NoError(t, configShowRun())

	out := uiOutput(t)
	assert.Contains(t, out, "****1234")
	assert.NotContains(t, out, "ghp_abcdefgh1234")
	assert.Contains(t, out, "(unset)", "anthropic.api_key is empty")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "(unset)", maskSecret(""))
	assert.Equal(t, "****", maskSecret("abc"))
	assert.Equal(t, "****6789", maskSecret("123456789"))
}

func TestConfigEdit_NoEditor(t *testing.T) {
	testEnv(t)

	// Unset EDITOR and VISUAL
	origEditor := os.Getenv("EDITOR")
	origVisual := os.Getenv("VISUAL")
	_ = os.Unsetenv("EDITOR")
	_ = os.Unsetenv("VISUAL")
	t.Cleanup(func() {
		if origEditor != "" {
			_ = os.Setenv("EDITOR", origEditor)
		}
		if origVisual != "" {
			_ = os.Setenv("VISUAL", origVisual)
		}
	})

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "$EDITOR is not set")
}

func TestConfigEdit_NoConfigFile(t *testing.T) {
	testEnv(t)

	t.Setenv("EDITOR", "echo") // harmless command

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDetectSource(t *testing.T) {
	fileValues := map[string]bool{"fleet.concurrency": true}

	// From env
	t.Setenv("IGW_LOG_LEVEL", "debug")
	assert.Contains(t, detectSource("log.level", "IGW_LOG_LEVEL", fileValues), "env")

	// From file
	assert.Contains(t, detectSource("fleet.concurrency", "IGW_FLEET_CONCURRENCY_NONEXISTENT", fileValues), "file")

	// Default
	assert.Contains(t, detectSource("port", "IGW_PORT_NONEXISTENT", fileValues), "default")
}

func TestFlattenKeys(t *testing.T) {
	input := map[string]any{
		"port": 8080,
		"proxy": map[string]any{
			"upstreams": map[string]any{
				"smart": "https://smart.who.int",
			},
		},
	}

	result := make(map[string]bool)
	flattenKeys("", input, result)

	assert.True(t, result["port"])
	assert.True(t, result["proxy.upstreams.smart"])
	assert.False(t, result["proxy"])
	assert.False(t, result["proxy.upstreams"])
}

func TestConfigInit_DryRun(t *testing.T) {
	dir := testEnv(t)
	dryRun = true
	ui.DryRun = true
	defer func() { dryRun = false }()

	err := configInitRun()
	require.NoError(t, err)

	// File should NOT have been created
	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.True(t, os.IsNotExist(err), "config file should not exist in dry-run mode")
	assert.Contains(t, uiOutput(t), "igwatch configuration")
}

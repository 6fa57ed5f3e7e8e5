package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padbridge/padbridge/internal/config"
)

func TestFindUserConfig(t *testing.T) {
	t.Setenv("PADBRIDGE_CONFIG", "")
	assert.Equal(t, "a.toml", findUserConfig([]string{"bridge", "--config=a.toml"}))
	assert.Equal(t, "b.yaml", findUserConfig([]string{"--config", "b.yaml", "bridge"}))
	assert.Equal(t, "", findUserConfig([]string{"--config"}))

	t.Setenv("PADBRIDGE_CONFIG", "env.json")
	assert.Equal(t, "env.json", findUserConfig(nil))
	assert.Equal(t, "flag.json", findUserConfig([]string{"--config=flag.json"}))
}

func TestSetupRawLogger(t *testing.T) {
	var logged []string
	logErr := func(msg string, _ ...any) { logged = append(logged, msg) }

	dest := filepath.Join(t.TempDir(), "raw.log")
	raw, f := setupRawLogger(config.Log{RawFile: dest}, logErr)
	require.NotNil(t, f)
	raw.Log(true, []byte{0x01, 0x02})
	require.NoError(t, f.Close())
	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.NotEmpty(t, b)

	raw, f = setupRawLogger(config.Log{RawFile: filepath.Join(t.TempDir(), "missing", "raw.log")}, logErr)
	assert.Nil(t, f)
	assert.NotNil(t, raw)
	assert.Equal(t, []string{"failed to open raw log file"}, logged)

	raw, f = setupRawLogger(config.Log{Level: "info"}, logErr)
	assert.Nil(t, f)
	assert.NotNil(t, raw)
}

func TestBuildVersion(t *testing.T) {
	assert.NotEmpty(t, buildVersion())
	assert.Contains(t, description(), "Version: ")
}

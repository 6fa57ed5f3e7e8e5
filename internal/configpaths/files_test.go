package configpaths_test

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/padbridge/padbridge/internal/configpaths"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("XDG lookup is unix only")
	}
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	dir, err := configpaths.DefaultConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(xdg, "padbridge"), dir)

	key, err := configpaths.KeyFilePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(xdg, "padbridge", "padbridge.key.txt"), key)

	p, err := configpaths.DefaultNamedConfigPath("bridge", "yml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(xdg, "padbridge", "bridge.yaml"), p)
}

func TestConfigCandidatePaths(t *testing.T) {
	testCases := []struct {
		user string
		want func(j, y, tm []string) []string
	}{
		{"my.toml", func(_, _, tm []string) []string { return tm }},
		{"my.yml", func(_, y, _ []string) []string { return y }},
		{"my.conf", func(j, _, _ []string) []string { return j }},
	}
	for _, tc := range testCases {
		t.Run(tc.user, func(t *testing.T) {
			j, y, tm := configpaths.ConfigCandidatePaths(tc.user)
			got := tc.want(j, y, tm)
			require.NotEmpty(t, got)
			assert.Equal(t, tc.user, got[0], "user path comes first")
		})
	}

	j, y, tm := configpaths.ConfigCandidatePaths("")
	assert.NotEmpty(t, j)
	assert.Len(t, y, 2*len(j))
	assert.Len(t, tm, len(j))
}

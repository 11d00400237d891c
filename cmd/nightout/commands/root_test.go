package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	previous, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(previous) })
}

func TestLoadConfigDefaultsWhenMissing(t *testing.T) {
	chdir(t, t.TempDir())

	creds, policy, err := loadConfig()
	require.NoError(t, err)
	require.Equal(t, "zeke", creds.Username)
	require.Equal(t, "coys", creds.Password)
	require.Equal(t, 2, policy.DinnerBufferHours)
}

func TestLoadConfigAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	contents := `{
		credentials: { username: "ann", password: "hunter2" },
		dinner_buffer_hours: 3,
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nightout.json5"), []byte(contents), 0644))
	chdir(t, dir)

	creds, policy, err := loadConfig()
	require.NoError(t, err)
	require.Equal(t, "ann", creds.Username)
	require.Equal(t, "hunter2", creds.Password)
	require.Equal(t, 3, policy.DinnerBufferHours)
}

func TestLoadConfigRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nightout.json5"), []byte("{ not json5"), 0644))
	chdir(t, dir)

	_, _, err := loadConfig()
	require.Error(t, err)
	require.ErrorContains(t, err, "nightout.json5")
}

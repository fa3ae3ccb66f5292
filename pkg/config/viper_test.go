package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "booth.yaml")
	require.NoError(t, os.WriteFile(path, []byte("program:\n  session: sunday\n  settle_delay: 150ms\n"), 0o644))
	t.Setenv("STAGE_CONFIG_FILE", path)

	v, err := Load(t.TempDir(), "config")
	require.NoError(t, err)
	assert.Equal(t, "sunday", v.GetString("program.session"))
	assert.Equal(t, 150*time.Millisecond, Duration(v, "program.settle_delay", time.Second))
	assert.Equal(t, time.Second, Duration(v, "program.missing", time.Second))
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	t.Setenv("STAGE_CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load(t.TempDir(), "config")
	assert.Error(t, err)
}

func TestLoad_NoFileFallsBackToEnv(t *testing.T) {
	t.Setenv("STAGE_CONFIG_FILE", "")
	t.Setenv("PROGRAM_SESSION", "from-env")

	v, err := Load(t.TempDir(), "definitely-not-present")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v.GetString("program.session"))
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_UsesDefaultsWhenNoConfigFilePresent(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Default().XCTestProtocolVersions, cfg.XCTestProtocolVersions)
}

func TestLoad_OverlaysConfigFileOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(`
crash_log_directory: /tmp/custom-crashes
xctest_protocol_versions:
  min: 2
  max: 5
`), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom-crashes", cfg.CrashLogDirectory)
	assert.Equal(t, 2, cfg.XCTestProtocolVersions.Min)
	assert.Equal(t, 5, cfg.XCTestProtocolVersions.Max)
}

func TestLoad_EnvOverridesWinOverConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(`shim_directory: /from-file`), 0644))

	t.Setenv("TEST_SHIM_DIRECTORY", "/from-env")
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/from-env", cfg.ShimDirectory)
}

func TestValidate_RejectsEmptyProtocolRange(t *testing.T) {
	cfg := Default()
	cfg.XCTestProtocolVersions = ProtocolVersionRange{Min: 3, Max: 1}
	require.Error(t, cfg.Validate())
}

func TestValidate_AcceptsDefaultConfig(t *testing.T) {
	require.NoError(t, Default().Validate())
}

package xctest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestBundler_PrepareStagesTestBundleAndWritesConfiguration(t *testing.T) {
	bundle := newTestBundle(t)
	workRoot := t.TempDir()
	bundler := NewBundler(workRoot, AdHocPolicy{})

	cfg := XCTestConfiguration{
		SessionID:      uuid.NewString(),
		TestBundlePath: bundle,
		TestsToRun:     []string{"MyAppTests/testOK"},
	}

	prepared, err := bundler.Prepare(cfg)
	require.NoError(t, err)

	assert.DirExists(t, prepared.WorkingDirectory)
	assert.FileExists(t, filepath.Join(prepared.TestBundlePath, "Info.plist"))
	assert.FileExists(t, prepared.ConfigurationPath)

	raw, err := os.ReadFile(prepared.ConfigurationPath)
	require.NoError(t, err)
	var roundTripped XCTestConfiguration
	require.NoError(t, yaml.Unmarshal(raw, &roundTripped))
	assert.Equal(t, cfg.SessionID, roundTripped.SessionID)
}

func TestBundler_PrepareStagesHostApplicationAsRunnerPayload(t *testing.T) {
	bundle := newTestBundle(t)

	appDir := t.TempDir()
	hostApp := filepath.Join(appDir, "MyApp.app")
	require.NoError(t, os.MkdirAll(hostApp, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(hostApp, "MyApp"), []byte("binary"), 0o755))

	bundler := NewBundler(t.TempDir(), AdHocPolicy{})
	cfg := XCTestConfiguration{
		SessionID:      uuid.NewString(),
		TestBundlePath: bundle,
		HostAppPath:    hostApp,
	}

	prepared, err := bundler.Prepare(cfg)
	require.NoError(t, err)

	assert.DirExists(t, prepared.RunnerAppPayloadPath)
	assert.FileExists(t, filepath.Join(prepared.HostApplicationPath, "MyApp"))
}

func TestBundler_PrepareRejectsMissingSessionID(t *testing.T) {
	bundler := NewBundler(t.TempDir(), AdHocPolicy{})
	_, err := bundler.Prepare(XCTestConfiguration{TestBundlePath: newTestBundle(t)})
	require.Error(t, err)
}

func TestBundler_PrepareRejectsHostApplicationFailingSigningPolicy(t *testing.T) {
	bundler := NewBundler(t.TempDir(), RequireSignedPolicy{})
	cfg := XCTestConfiguration{
		SessionID:      uuid.NewString(),
		TestBundlePath: newTestBundle(t),
		HostAppPath:    filepath.Join(t.TempDir(), "MyApp.unsigned"),
	}
	_, err := bundler.Prepare(cfg)
	require.Error(t, err)
}

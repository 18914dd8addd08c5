package xctest

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"idbcore/internal/coreerr"
)

// PreparedBundle is the on-disk result of the preparation phase (spec
// §4.2 step 1): a working directory holding a copy of the test bundle,
// the serialized XCTestConfiguration artifact the runner process reads,
// and — for UI/application tests — the located host application bundle
// and an assembled runner-app payload directory.
type PreparedBundle struct {
	WorkingDirectory      string
	TestBundlePath        string
	ConfigurationPath     string
	HostApplicationPath   string
	RunnerAppPayloadPath  string
}

// Bundler prepares a working directory for one test run, grounded on
// the pipeline's preparation phase (spec §4.2 step 1).
type Bundler struct {
	workingDirectoryRoot string
	signing              SigningPolicy
}

// NewBundler returns a Bundler rooted at workingDirectoryRoot, verifying
// the host application against policy before it is staged; the test
// bundle itself is not verified.
func NewBundler(workingDirectoryRoot string, policy SigningPolicy) *Bundler {
	if policy == nil {
		policy = AdHocPolicy{}
	}
	return &Bundler{workingDirectoryRoot: workingDirectoryRoot, signing: policy}
}

// Prepare copies cfg.TestBundlePath into a fresh per-session working
// directory, writes the serialized configuration artifact, and — when
// cfg.HostAppPath is set — verifies and stages the host application
// bundle plus a runner-app payload directory that embeds it.
func (b *Bundler) Prepare(cfg XCTestConfiguration) (*PreparedBundle, error) {
	if cfg.SessionID == "" {
		return nil, coreerr.New(coreerr.KindInvalidArgument, "xctest.Bundler.Prepare", "configuration has no session id")
	}
	workDir := filepath.Join(b.workingDirectoryRoot, cfg.SessionID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, coreerr.Wrap(coreerr.KindPrecondition, "xctest.Bundler.Prepare", err, "failed to create working directory %s", workDir)
	}

	stagedBundle := filepath.Join(workDir, filepath.Base(cfg.TestBundlePath))
	if err := copyTree(cfg.TestBundlePath, stagedBundle); err != nil {
		return nil, coreerr.Wrap(coreerr.KindPrecondition, "xctest.Bundler.Prepare", err, "failed to stage test bundle %s", cfg.TestBundlePath)
	}

	result := &PreparedBundle{
		WorkingDirectory: workDir,
		TestBundlePath:   stagedBundle,
	}

	if cfg.HostAppPath != "" {
		if err := b.signing.Verify(cfg.HostAppPath); err != nil {
			return nil, coreerr.Wrap(coreerr.KindPrecondition, "xctest.Bundler.Prepare", err, "host application failed signing policy")
		}
		payloadDir := filepath.Join(workDir, "Payload")
		stagedApp := filepath.Join(payloadDir, filepath.Base(cfg.HostAppPath))
		if err := copyTree(cfg.HostAppPath, stagedApp); err != nil {
			return nil, coreerr.Wrap(coreerr.KindPrecondition, "xctest.Bundler.Prepare", err, "failed to stage host application %s", cfg.HostAppPath)
		}
		result.HostApplicationPath = stagedApp
		result.RunnerAppPayloadPath = payloadDir
	}

	configPath := filepath.Join(workDir, "XCTestConfiguration.yml")
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindPrecondition, "xctest.Bundler.Prepare", err, "failed to serialize test configuration")
	}
	if err := os.WriteFile(configPath, raw, 0o644); err != nil {
		return nil, coreerr.Wrap(coreerr.KindPrecondition, "xctest.Bundler.Prepare", err, "failed to write configuration artifact %s", configPath)
	}
	result.ConfigurationPath = configPath

	return result, nil
}

// copyTree copies a regular file or recursively copies a directory tree
// from src to dst. The test bundle/host app inputs this daemon handles
// are plain on-disk directories or files, never special files, so a
// straightforward walk suffices.
func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dst, info.Mode())
	}
	if err := os.MkdirAll(dst, info.Mode()); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := copyTree(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, mode)
}

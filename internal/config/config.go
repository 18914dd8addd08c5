// Package config loads daemon configuration from a YAML file plus
// environment overrides, adapted from the teacher's internal/config
// loader: same "start from defaults, overlay config.yaml, then overlay
// env vars" shape, rebuilt around this daemon's settings instead of
// muster's aggregator/MCP-server config.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"idbcore/internal/coreerr"
	"idbcore/pkg/logging"
)

var log = logging.NewNamed("config")

// ProtocolVersionRange bounds the XCTest daemon wire protocol versions
// this build will negotiate, resolving spec.md's open question ("what
// protocol version range should the handshake accept?") as a config
// field rather than a compiled-in constant, so a deployment can widen
// it without a rebuild.
type ProtocolVersionRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// ResourceManagerDefaults holds acquisition/pool timeouts for resource
// managers (spec §4.1). They are loaded but not passed to
// async.NewResourceManager, which falls back to its own 30s acquisition
// and 5s pool timeouts when the caller sets none.
type ResourceManagerDefaults struct {
	AcquisitionTimeoutSeconds int `yaml:"acquisition_timeout_seconds"`
	PoolTimeoutSeconds        int `yaml:"pool_timeout_seconds"`
}

// SessionManagerDefaults holds capacity/expiration settings for the
// delta-update session manager (spec §4.3). They are loaded but not read
// by the cmd subcommands, which build their managers with a fixed
// capacity of 1.
type SessionManagerDefaults struct {
	Capacity          int `yaml:"capacity"`
	ExpirationSeconds int `yaml:"expiration_seconds"`
}

// Config is this daemon's complete configuration surface.
type Config struct {
	// ShimDirectory overrides the location of the on-target shim
	// dylibs; propagated from the TEST_SHIM_DIRECTORY env var (spec §6).
	ShimDirectory string `yaml:"shim_directory"`
	// LLVMProfileFile is propagated into the test-runner environment to
	// place coverage output (spec §6, LLVM_PROFILE_FILE).
	LLVMProfileFile string `yaml:"llvm_profile_file"`
	// LogDirectoryPath is the configured log directory (spec §6,
	// LOG_DIRECTORY_PATH). This field is not passed to the test runner;
	// the runner environment receives LOG_DIRECTORY_PATH only when it is
	// set in the daemon's own environment.
	LogDirectoryPath string `yaml:"log_directory_path"`
	// CrashLogDirectory is the directory the crash-log store watches
	// (spec §4.6).
	CrashLogDirectory string `yaml:"crash_log_directory"`
	// TargetRegistryPath points at the YAML inventory `targets list`
	// reads (spec §3); maintained by an operator or provisioning script,
	// not discovered automatically.
	TargetRegistryPath string `yaml:"target_registry_path"`

	XCTestProtocolVersions ProtocolVersionRange    `yaml:"xctest_protocol_versions"`
	ResourceManager        ResourceManagerDefaults `yaml:"resource_manager"`
	SessionManager         SessionManagerDefaults  `yaml:"session_manager"`
}

const configFileName = "config.yaml"

// Default returns the built-in configuration used when no config.yaml
// is present and no environment overrides apply.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		ShimDirectory:     filepath.Join(home, ".idbcore", "shims"),
		LogDirectoryPath:  filepath.Join(home, ".idbcore", "logs"),
		CrashLogDirectory: filepath.Join(home, ".idbcore", "crashes"),
		TargetRegistryPath: filepath.Join(home, ".idbcore", "targets.yaml"),
		XCTestProtocolVersions: ProtocolVersionRange{
			Min: 1,
			Max: 4,
		},
		ResourceManager: ResourceManagerDefaults{
			AcquisitionTimeoutSeconds: 30,
			PoolTimeoutSeconds:        60,
		},
		SessionManager: SessionManagerDefaults{
			Capacity:          0,
			ExpirationSeconds: 300,
		},
	}
}

// DefaultConfigPathOrPanic returns ~/.idbcore, the directory Load reads
// config.yaml from, matching the
// teacher's GetDefaultConfigPathOrPanic convention of failing fast at
// startup rather than deferring a home-directory lookup error.
func DefaultConfigPathOrPanic() string {
	home, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}
	return filepath.Join(home, ".idbcore")
}

// Load reads config.yaml from dir (if present), overlays it onto
// Default(), then overlays the three env-var overrides spec §6 names.
// A missing config.yaml is not an error: the defaults (plus any env
// overrides) are used as-is.
func Load(dir string) (Config, error) {
	cfg := Default()

	path := filepath.Join(dir, configFileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if uerr := yaml.Unmarshal(data, &cfg); uerr != nil {
			return Config{}, coreerr.Wrap(coreerr.KindInvalidArgument, "config.Load", uerr, "malformed config at %s", path)
		}
		log.Info("loaded configuration from %s", path)
	case os.IsNotExist(err):
		log.Info("no config.yaml at %s, using defaults", path)
	default:
		return Config{}, coreerr.Wrap(coreerr.KindInvalidArgument, "config.Load", err, "failed to read %s", path)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides overlays TEST_SHIM_DIRECTORY, LLVM_PROFILE_FILE, and
// LOG_DIRECTORY_PATH (spec §6), which always win over config.yaml since
// they're typically set per-invocation by a CI harness.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TEST_SHIM_DIRECTORY"); v != "" {
		cfg.ShimDirectory = v
	}
	if v := os.Getenv("LLVM_PROFILE_FILE"); v != "" {
		cfg.LLVMProfileFile = v
	}
	if v := os.Getenv("LOG_DIRECTORY_PATH"); v != "" {
		cfg.LogDirectoryPath = v
	}
}

// Validate reports an invalid-argument error if the configuration is
// internally inconsistent (spec §9: the protocol version range must be
// non-empty and monotonic).
func (c Config) Validate() error {
	if c.XCTestProtocolVersions.Min <= 0 || c.XCTestProtocolVersions.Max < c.XCTestProtocolVersions.Min {
		return coreerr.New(coreerr.KindInvalidArgument, "config.Validate", "invalid xctest protocol version range [%d, %d]",
			c.XCTestProtocolVersions.Min, c.XCTestProtocolVersions.Max)
	}
	return nil
}

package xctest

// CoverageSettings configures LLVM profile collection for a test run.
type CoverageSettings struct {
	Enabled       bool
	ExportFormat  string // "raw" or "exported"
	ProfileOutput string
}

// ResultBundleOptions controls whether and where a .xcresult bundle is
// collected (spec §3: "collected opportunistically").
type ResultBundleOptions struct {
	Enabled bool
	Path    string
}

// XCTestConfiguration is the serializable test-run request (spec §3):
// combines the session UUID, bundle paths, test filters, environment,
// and output options. Serialized to the on-disk artifact the runner
// process reads via XCTestConfigurationFilePath (spec §4.2 step 2).
type XCTestConfiguration struct {
	SessionID       string            `yaml:"session_id"`
	TestBundlePath  string            `yaml:"test_bundle_path"`
	HostAppPath     string            `yaml:"host_app_path,omitempty"`
	TestsToRun      []string          `yaml:"tests_to_run,omitempty"`
	TestsToSkip     []string          `yaml:"tests_to_skip,omitempty"`
	Environment     map[string]string `yaml:"environment,omitempty"`
	Arguments       []string          `yaml:"arguments,omitempty"`
	Coverage        CoverageSettings  `yaml:"coverage"`
	ResultBundle    ResultBundleOptions `yaml:"result_bundle"`
}

// shouldRun reports whether testID passes this configuration's
// tests-to-run/tests-to-skip filters.
func (cfg XCTestConfiguration) shouldRun(testID string) bool {
	if len(cfg.TestsToRun) > 0 && !contains(cfg.TestsToRun, testID) {
		return false
	}
	return !contains(cfg.TestsToSkip, testID)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

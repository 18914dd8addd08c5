package xctest

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"idbcore/internal/async"
	"idbcore/internal/commandrouter"
	"idbcore/internal/coreerr"
)

// RunnerEnvironment carries the launch-time environment augmentation
// spec §4.2 step 2 names: the shim library to inject and the framework
// search paths the injected frameworks need resolved.
type RunnerEnvironment struct {
	ShimLibraryPath      string
	FrameworkSearchPaths []string
	// LLVMProfileFile is the default coverage output path propagated into
	// the runner's environment (spec §6, LLVM_PROFILE_FILE); a run's own
	// Coverage.ProfileOutput, if set, overrides it.
	LLVMProfileFile string
}

// Dialer opens the bundle and daemon transports for one test run (spec
// §4.2 step 3: "abstract — socket, mach, shared-memory, or file
// descriptor pair"). Two logical channels share the conceptual
// transport in the original; this daemon dials one physical Transport
// per logical channel, which is the shape both connTransport and
// pipeTransport already provide and keeps Channel's framing unaware of
// multiplexing concerns.
type Dialer func(ctx context.Context) (bundleTransport, daemonTransport Transport, daemonVersion int, err error)

// Pipeline runs the full preparation -> launch -> handshake -> channel
// multiplexing -> execution -> teardown sequence for one test
// configuration (spec §4.2).
type Pipeline struct {
	bundler     *Bundler
	dial        Dialer
	runnerPath  string
	env         RunnerEnvironment
	accepted    ProtocolVersionRange
	termination commandrouter.ProcessTerminationStrategy
}

// NewPipeline constructs a Pipeline. runnerPath is the test-runner
// executable to launch; accepted is the protocol version range this
// build will negotiate (an Open Question in spec.md §9, resolved as a
// config field — see internal/config.ProtocolVersionRange).
func NewPipeline(bundler *Bundler, dial Dialer, runnerPath string, env RunnerEnvironment, accepted ProtocolVersionRange) *Pipeline {
	return &Pipeline{
		bundler:     bundler,
		dial:        dial,
		runnerPath:  runnerPath,
		env:         env,
		accepted:    accepted,
		termination: commandrouter.DefaultTerminationStrategy(),
	}
}

// event is the wire shape of one test-plan event (spec §4.2 step 5).
// Channel payloads are opaque []byte; the daemon channel's "method"
// field carries the event kind and the payload carries this structure
// JSON-encoded, mirroring the teacher's convention of small typed
// envelopes over DTX's generic argument lists.
type event struct {
	Suite    string      `json:"suite,omitempty"`
	Class    string      `json:"class,omitempty"`
	Method   string      `json:"method,omitempty"`
	Activity string      `json:"activity,omitempty"`
	Failure  FailureInfo `json:"failure,omitempty"`
	Output   string      `json:"output,omitempty"`
}

// Run executes the pipeline end to end, reporting structural events to
// reporter as they arrive and returning the finished TestReport.
func (p *Pipeline) Run(ctx context.Context, cfg XCTestConfiguration, reporter Reporter) (*TestReport, error) {
	prepared, err := p.bundler.Prepare(cfg)
	if err != nil {
		return nil, err
	}

	bundleTransport, daemonTransport, daemonVersion, err := p.dial(ctx)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindTransport, "xctest.Pipeline.Run", err, "failed to dial test transport")
	}

	bundleChannel := NewChannel("bundle", bundleTransport)
	daemonChannel := NewChannel("daemon", daemonTransport)
	defer func() {
		// close channels in reverse open order (spec §4.2 step 6)
		daemonChannel.Close()
		bundleChannel.Close()
	}()

	if err := bundleChannel.Handshake(p.accepted, daemonVersion); err != nil {
		return nil, err
	}
	if err := daemonChannel.Handshake(p.accepted, daemonVersion); err != nil {
		return nil, err
	}

	stdout := async.NewLambdaConsumer(func(chunk []byte) { reporter.Output(string(chunk)) })
	proc, err := commandrouter.Spawn(p.spawnConfig(prepared, cfg, stdout), p.termination)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindPrecondition, "xctest.Pipeline.Run", err, "failed to launch test runner")
	}

	report := &TestReport{}
	eventsDone := make(chan struct{})
	go p.pumpEvents(daemonChannel, cfg, reporter, report, eventsDone)

	beginPayload, _ := json.Marshal(cfg)
	if _, err := daemonChannel.Send("begin-test-plan", beginPayload).Await(0); err != nil {
		proc.Terminate(ctx)
		return nil, coreerr.Wrap(coreerr.KindTransport, "xctest.Pipeline.Run", err, "failed to begin test plan")
	}

	select {
	case <-eventsDone:
	case <-proc.Exit().Done():
		crashedCase := markInFlightAsCrashed(report)
		if crashedCase != "" {
			reporter.Crash(crashedCase, "")
		}
	case <-ctx.Done():
		proc.Terminate(context.Background())
		return report, coreerr.Wrap(coreerr.KindCancelled, "xctest.Pipeline.Run", ctx.Err(), "test plan cancelled")
	}

	if _, err := daemonChannel.Send("end-test-plan", nil).Await(5 * time.Second); err != nil {
		// best effort; the run already has whatever events it collected
	}

	proc.Terminate(ctx)
	stdout.EOF()

	return report, nil
}

// spawnConfig builds the runner process's SpawnConfig, augmenting the
// environment exactly as spec §4.2 step 2 requires.
func (p *Pipeline) spawnConfig(prepared *PreparedBundle, cfg XCTestConfiguration, stdout *async.LambdaConsumer) commandrouter.SpawnConfig {
	env := make(map[string]string, len(cfg.Environment)+3)
	for k, v := range cfg.Environment {
		env[k] = v
	}
	env["DYLD_INSERT_LIBRARIES"] = p.env.ShimLibraryPath
	env["XCTestConfigurationFilePath"] = prepared.ConfigurationPath
	if len(p.env.FrameworkSearchPaths) > 0 {
		env["DYLD_FRAMEWORK_PATH"] = strings.Join(p.env.FrameworkSearchPaths, ":")
	}
	if dir := os.Getenv("LOG_DIRECTORY_PATH"); dir != "" {
		env["LOG_DIRECTORY_PATH"] = dir
	}
	if cfg.Coverage.Enabled && cfg.Coverage.ProfileOutput != "" {
		env["LLVM_PROFILE_FILE"] = cfg.Coverage.ProfileOutput
	} else if p.env.LLVMProfileFile != "" {
		env["LLVM_PROFILE_FILE"] = p.env.LLVMProfileFile
	}
	if cfg.ResultBundle.Enabled && cfg.ResultBundle.Path != "" {
		env["XCRESULT_PATH"] = cfg.ResultBundle.Path
	}

	return commandrouter.SpawnConfig{
		Path: p.runnerPath,
		Args: cfg.Arguments,
		Env:  env,
		IO:   commandrouter.IOConfig{Stdout: stdout, Stderr: async.NewNullConsumer()},
	}
}

// pumpEvents drains the daemon channel's unsolicited event stream,
// translating each into the closed event vocabulary of spec §4.2 step
// 5 and folding it into report, until the channel closes or a
// test-plan-finished event is observed.
func (p *Pipeline) pumpEvents(ch *Channel, cfg XCTestConfiguration, reporter Reporter, report *TestReport, done chan struct{}) {
	defer close(done)
	for m := range ch.Events() {
		var e event
		if err := json.Unmarshal(m.Payload, &e); err != nil {
			continue
		}
		switch m.Method {
		case "suite-start":
			reporter.SuiteStart(e.Suite)
			report.suite(e.Suite)
		case "suite-finish":
			reporter.SuiteFinish(e.Suite)
		case "case-start":
			if !cfg.shouldRun(e.Class + "/" + e.Method) {
				continue
			}
			reporter.CaseStart(e.Class, e.Method)
			report.suite(e.Suite).caseByMethod(e.Class, e.Method).Status = CaseNotFinished
		case "case-issue":
			reporter.CaseIssue(e.Class, e.Method, e.Failure)
			c := report.suite(e.Suite).caseByMethod(e.Class, e.Method)
			c.Failures = append(c.Failures, e.Failure)
		case "case-finish":
			status := CasePassed
			c := report.suite(e.Suite).caseByMethod(e.Class, e.Method)
			if len(c.Failures) > 0 {
				status = CaseFailed
			}
			c.Status = status
			reporter.CaseFinish(e.Class, e.Method, status)
		case "activity-start":
			reporter.ActivityStart(e.Class, e.Method, e.Activity)
		case "activity-finish":
			reporter.ActivityFinish(e.Class, e.Method, e.Activity)
		case "output":
			reporter.Output(e.Output)
		case "crash":
			c := report.suite(e.Suite).caseByMethod(e.Class, e.Method)
			c.Crashed = true
			c.Status = CaseFailed
			reporter.Crash(e.Class, e.Method)
		case "test-plan-finished":
			// Emitted once by the on-target daemon after every suite it
			// planned to run has reported suite-finish; this is the
			// signal Run waits on before sending "end test plan".
			return
		}
	}
}

// markInFlightAsCrashed marks the single in-progress case (if any) as
// crashed when the runner process exits mid-test (spec §4.2 failure
// semantics: "a runner-process crash mid-test ... is materialised as a
// crash event attached to the currently-running case"). Returns the
// crashed case's class, or "" if none was in flight.
func markInFlightAsCrashed(report *TestReport) string {
	for _, s := range report.Suites {
		for _, c := range s.Cases {
			if c.Status == CaseNotFinished {
				c.Crashed = true
				c.Status = CaseFailed
				return c.Class
			}
		}
	}
	return ""
}

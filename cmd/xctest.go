package cmd

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/briandowns/spinner"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"idbcore/internal/commandrouter"
	"idbcore/internal/commandrouter/cliformat"
	"idbcore/internal/config"
	"idbcore/internal/session"
	"idbcore/internal/target"
	"idbcore/internal/xctest"
	"idbcore/pkg/logging"
)

var (
	xctestBundlePath       string
	xctestHostAppPath      string
	xctestTestsToRun       []string
	xctestTestsToSkip      []string
	xctestRunnerPath       string
	xctestTransportAddr    string
	xctestTimeout          time.Duration
	xctestUDID             string
	xctestCoverageEnabled  bool
	xctestCoverageFormat   string
	xctestCoverageOutput   string
	xctestResultBundlePath string
)

// xctestRunCapability is the commandrouter.Capability exposing the run
// session manager, so `xctest run` reaches the Pipeline through the
// same dispatch path every other target-bound operation does (spec
// §4.5).
type xctestRunCapability struct {
	mgr *session.Manager[xctest.XCTestConfiguration, *xctest.RunOperation, xctest.RunOutcome]
}

func (c *xctestRunCapability) ID() commandrouter.CapabilityID { return "xctest.run" }

func newXCTestCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "xctest",
		Short: "Drive XCTest runs against the attached target",
	}
	c.AddCommand(newXCTestRunCmd())
	return c
}

func newXCTestRunCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "run",
		Short: "Prepare, launch, and stream results for one test configuration",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.Load(config.DefaultConfigPathOrPanic())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			workRoot := cfg.ShimDirectory
			bundler := xctest.NewBundler(workRoot, xctest.AdHocPolicy{})

			dial := func(ctx context.Context) (xctest.Transport, xctest.Transport, int, error) {
				dialer := net.Dialer{}
				bundleConn, err := dialer.DialContext(ctx, "unix", xctestTransportAddr)
				if err != nil {
					return nil, nil, 0, err
				}
				daemonConn, err := dialer.DialContext(ctx, "unix", xctestTransportAddr)
				if err != nil {
					bundleConn.Close()
					return nil, nil, 0, err
				}
				return xctest.NewConnTransport(bundleConn), xctest.NewConnTransport(daemonConn), cfg.XCTestProtocolVersions.Max, nil
			}

			env := xctest.RunnerEnvironment{
				ShimLibraryPath: cfg.ShimDirectory,
				LLVMProfileFile: cfg.LLVMProfileFile,
			}
			accepted := xctest.ProtocolVersionRange{Min: cfg.XCTestProtocolVersions.Min, Max: cfg.XCTestProtocolVersions.Max}
			pipeline := xctest.NewPipeline(bundler, dial, xctestRunnerPath, env, accepted)

			testCfg := xctest.XCTestConfiguration{
				SessionID:      uuid.NewString(),
				TestBundlePath: xctestBundlePath,
				HostAppPath:    xctestHostAppPath,
				TestsToRun:     xctestTestsToRun,
				TestsToSkip:    xctestTestsToSkip,
				Coverage: xctest.CoverageSettings{
					Enabled:       xctestCoverageEnabled,
					ExportFormat:  xctestCoverageFormat,
					ProfileOutput: xctestCoverageOutput,
				},
				ResultBundle: xctest.ResultBundleOptions{
					Enabled: xctestResultBundlePath != "",
					Path:    xctestResultBundlePath,
				},
			}

			reporter := xctest.NewCompositeReporter(
				xctest.NewTextLogReporter(logging.NewNamed("xctest.cli")),
				xctest.NewJSONStreamReporter(func(line string) { fmt.Fprintln(c.OutOrStdout(), line) }),
			)

			ctx, cancel := context.WithTimeout(context.Background(), xctestTimeout)
			defer cancel()

			mgr := session.NewManager(session.ManagerConfig[xctest.XCTestConfiguration, *xctest.RunOperation, xctest.RunOutcome]{
				Create: func(rc xctest.XCTestConfiguration) (*xctest.RunOperation, error) {
					return xctest.NewRunOperation(ctx, pipeline, rc, reporter), nil
				},
				Poll:     xctest.RunPoll,
				Capacity: 1,
			})
			defer mgr.Close()

			tg := target.New(xctestUDID, target.KindSimulator, "")
			fwd := commandrouter.NewForwarder(tg)
			fwd.Register("xctest.run", true, func(*target.Target) (commandrouter.Capability, error) {
				return &xctestRunCapability{mgr: mgr}, nil
			})
			capAny, err := fwd.Dispatch("xctest.run")
			if err != nil {
				return err
			}
			capability := capAny.(*xctestRunCapability)

			spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			spin.Suffix = " running test plan..."
			spin.Start()

			sess, err := capability.mgr.Start(testCfg).Await(0)
			if err != nil {
				spin.Stop()
				return err
			}
			outcome, err := sess.ObtainUpdates().AwaitContext(ctx)
			spin.Stop()
			if err != nil {
				return err
			}
			if outcome.Err != nil {
				return outcome.Err
			}
			report := outcome.Report

			out, err := cliformat.FormatTestReport(report, cliformat.Options{Format: cliformat.FormatTable})
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), out)

			failed := 0
			for _, s := range report.Suites {
				for _, tc := range s.Cases {
					if tc.Status == xctest.CaseFailed {
						failed++
					}
				}
			}
			if failed > 0 {
				c.SilenceErrors = true
				return fmt.Errorf("test run completed with %d failing case(s)", failed)
			}
			return nil
		},
	}
	c.Flags().StringVar(&xctestBundlePath, "test-bundle", "", "path to the .xctest bundle")
	c.Flags().StringVar(&xctestHostAppPath, "host-app", "", "path to the host application bundle (UI tests)")
	c.Flags().StringSliceVar(&xctestTestsToRun, "tests-to-run", nil, "restrict the run to these Class/method identifiers")
	c.Flags().StringSliceVar(&xctestTestsToSkip, "tests-to-skip", nil, "exclude these Class/method identifiers")
	c.Flags().StringVar(&xctestRunnerPath, "runner", "", "path to the test-runner executable")
	c.Flags().StringVar(&xctestTransportAddr, "transport-addr", "", "unix socket address of the on-target daemon")
	c.Flags().DurationVar(&xctestTimeout, "timeout", 10*time.Minute, "overall deadline for the test plan")
	c.Flags().StringVar(&xctestUDID, "udid", "", "UDID of the target to run against")
	c.Flags().BoolVar(&xctestCoverageEnabled, "coverage", false, "collect LLVM code coverage for this run")
	c.Flags().StringVar(&xctestCoverageFormat, "coverage-format", "raw", "raw or exported")
	c.Flags().StringVar(&xctestCoverageOutput, "coverage-output", "", "path to write the collected .profraw/.profdata to")
	c.Flags().StringVar(&xctestResultBundlePath, "result-bundle-path", "", "collect a .xcresult bundle at this path")
	c.MarkFlagRequired("test-bundle")
	c.MarkFlagRequired("runner")
	c.MarkFlagRequired("transport-addr")
	c.MarkFlagRequired("udid")
	return c
}

package xctest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"idbcore/internal/session"
)

// pipelineHarness wires up the same loopback transport pair and
// scripted daemon responder as TestPipeline_RunProducesPassingCaseReport,
// so RunOperation tests exercise a real Pipeline.Run rather than a fake.
func pipelineHarness(t *testing.T) *Pipeline {
	t.Helper()
	bundlerDir := t.TempDir()
	bundler := NewBundler(bundlerDir, AdHocPolicy{})

	bundleClient, bundleServer := NewPipeTransportPair()
	daemonClient, daemonServer := NewPipeTransportPair()
	t.Cleanup(func() { bundleServer.Close(); daemonServer.Close() })

	serverDaemonCh := NewChannel("daemon-server", daemonServer)
	require.NoError(t, serverDaemonCh.Handshake(ProtocolVersionRange{Min: 1, Max: 1}, 1))
	serverBundleCh := NewChannel("bundle-server", bundleServer)
	require.NoError(t, serverBundleCh.Handshake(ProtocolVersionRange{Min: 1, Max: 1}, 1))

	go func() {
		for m := range serverDaemonCh.Events() {
			switch m.Method {
			case "begin-test-plan":
				daemonServer.Send(Message{ID: m.ID, Method: "begin-test-plan-ack"})
				send := func(method string, e event) {
					payload, _ := json.Marshal(e)
					daemonServer.Send(Message{ID: 0, Method: method, Payload: payload})
				}
				send("suite-start", event{Suite: "MyAppTests"})
				send("case-start", event{Suite: "MyAppTests", Class: "MyAppTests", Method: "testOK"})
				send("case-finish", event{Suite: "MyAppTests", Class: "MyAppTests", Method: "testOK"})
				send("suite-finish", event{Suite: "MyAppTests"})
				send("test-plan-finished", event{})
			case "end-test-plan":
				daemonServer.Send(Message{ID: m.ID, Method: "end-test-plan-ack"})
			}
		}
	}()
	go func() {
		for range serverBundleCh.Events() {
		}
	}()

	dial := func(ctx context.Context) (Transport, Transport, int, error) {
		return bundleClient, daemonClient, 1, nil
	}
	return NewPipeline(bundler, dial, "/bin/sh", RunnerEnvironment{ShimLibraryPath: "/usr/lib/shim.dylib"}, ProtocolVersionRange{Min: 1, Max: 1})
}

func TestRunOperation_CompletesWithPassingReport(t *testing.T) {
	pipeline := pipelineHarness(t)
	cfg := XCTestConfiguration{
		SessionID:      uuid.NewString(),
		TestBundlePath: newTestBundle(t),
		Arguments:      []string{"-c", "sleep 2"},
	}

	op := NewRunOperation(context.Background(), pipeline, cfg, NewConsumableReporter())

	var done bool
	outcome, err := RunPoll(op, "sess", &done).Await(5 * time.Second)
	require.NoError(t, err)
	require.True(t, done)
	require.NoError(t, outcome.Err)
	require.Len(t, outcome.Report.Suites, 1)
	require.Equal(t, CasePassed, outcome.Report.Suites[0].Cases[0].Status)

	_, err = op.Completion().Await(time.Second)
	require.NoError(t, err)
}

func TestRunOperation_CancelStopsRunWithoutRejecting(t *testing.T) {
	pipeline := pipelineHarness(t)
	cfg := XCTestConfiguration{
		SessionID:      uuid.NewString(),
		TestBundlePath: newTestBundle(t),
		Arguments:      []string{"-c", "sleep 2"},
	}

	op := NewRunOperation(context.Background(), pipeline, cfg, NewConsumableReporter())
	op.Cancel()

	var done bool
	outcome, err := RunPoll(op, "sess", &done).Await(5 * time.Second)
	require.NoError(t, err, "RunPoll must resolve, never reject, even for a cancelled run")
	require.True(t, done)
	require.Error(t, outcome.Err, "the wrapped Pipeline.Run error belongs inside RunOutcome, not the poll future")
}

func TestSessionManager_DrivesXCTestRun(t *testing.T) {
	pipeline := pipelineHarness(t)
	cfg := XCTestConfiguration{
		SessionID:      uuid.NewString(),
		TestBundlePath: newTestBundle(t),
		Arguments:      []string{"-c", "sleep 2"},
	}

	mgr := session.NewManager(session.ManagerConfig[XCTestConfiguration, *RunOperation, RunOutcome]{
		Create: func(c XCTestConfiguration) (*RunOperation, error) {
			return NewRunOperation(context.Background(), pipeline, c, NewConsumableReporter()), nil
		},
		Poll:     RunPoll,
		Capacity: 1,
	})
	defer mgr.Close()

	sess, err := mgr.Start(cfg).Await(time.Second)
	require.NoError(t, err)

	outcome, err := sess.ObtainUpdates().AwaitContext(context.Background())
	require.NoError(t, err)
	require.NoError(t, outcome.Err)
	require.True(t, sess.IsTerminal())

	_, err = mgr.Start(cfg).Await(time.Second)
	require.NoError(t, err, "the finished run should have freed its capacity slot")
}

package xctest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	bundle := filepath.Join(dir, "MyAppTests.xctest")
	require.NoError(t, os.MkdirAll(bundle, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bundle, "Info.plist"), []byte("<plist/>"), 0o644))
	return bundle
}

func TestPipeline_RunProducesPassingCaseReport(t *testing.T) {
	bundlerDir := t.TempDir()
	bundler := NewBundler(bundlerDir, AdHocPolicy{})

	bundleClient, bundleServer := NewPipeTransportPair()
	daemonClient, daemonServer := NewPipeTransportPair()
	defer bundleServer.Close()
	defer daemonServer.Close()

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
		for m := range serverBundleCh.Events() {
			_ = m
		}
	}()

	dial := func(ctx context.Context) (Transport, Transport, int, error) {
		return bundleClient, daemonClient, 1, nil
	}

	pipeline := NewPipeline(bundler, dial, "/bin/sh", RunnerEnvironment{ShimLibraryPath: "/usr/lib/shim.dylib"}, ProtocolVersionRange{Min: 1, Max: 1})

	cfg := XCTestConfiguration{
		SessionID:      uuid.NewString(),
		TestBundlePath: newTestBundle(t),
		Arguments:      []string{"-c", "sleep 2"},
	}

	reporter := NewConsumableReporter()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	report, err := pipeline.Run(ctx, cfg, reporter)
	require.NoError(t, err)
	require.Len(t, report.Suites, 1)
	require.Len(t, report.Suites[0].Cases, 1)
	require.Equal(t, CasePassed, report.Suites[0].Cases[0].Status)
}

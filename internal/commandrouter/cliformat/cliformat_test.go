package cliformat

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"idbcore/internal/target"
	"idbcore/internal/xctest"
)

func TestFormatTargetsTable(t *testing.T) {
	targets := []*target.Target{
		target.New("udid-1", target.KindSimulator, "17.0"),
	}
	out, err := FormatTargets(targets, Options{Format: FormatTable})
	require.NoError(t, err)
	require.Contains(t, out, "udid-1")
	require.Contains(t, out, "Total: 1 targets")
}

func TestFormatTargetsEmptyTable(t *testing.T) {
	out, err := FormatTargets(nil, Options{Format: FormatTable})
	require.NoError(t, err)
	require.Equal(t, "No targets found", out)
}

func TestFormatTargetsJSON(t *testing.T) {
	targets := []*target.Target{
		target.New("udid-2", target.KindDevice, "18.1"),
	}
	out, err := FormatTargets(targets, Options{Format: FormatJSON})
	require.NoError(t, err)
	require.Contains(t, out, `"udid": "udid-2"`)
}

func TestFormatTestReportTableTruncatesLongFailureMessages(t *testing.T) {
	report := &xctest.TestReport{
		Suites: []*xctest.Suite{
			{
				Name: "LoginTests",
				Cases: []*xctest.Case{
					{
						Class:    "LoginTests",
						Method:   "testValidLogin",
						Status:   xctest.CasePassed,
						Duration: 120 * time.Millisecond,
					},
					{
						Class:    "LoginTests",
						Method:   "testInvalidPassword",
						Status:   xctest.CaseFailed,
						Duration: 45 * time.Millisecond,
						Failures: []xctest.FailureInfo{
							{Message: strings.Repeat("assertion failed because the expected value did not match ", 3)},
						},
					},
				},
			},
		},
	}

	out, err := FormatTestReport(report, Options{Format: FormatTable})
	require.NoError(t, err)
	require.Contains(t, out, "testValidLogin")
	require.Contains(t, out, "testInvalidPassword")
	require.Contains(t, out, "1 passed, 1 failed, 2 total")
	require.Contains(t, out, "...")

	for _, line := range strings.Split(out, "\n") {
		require.LessOrEqual(t, len(line), 200, "no rendered line should contain the full untruncated failure message")
	}
}

func TestFormatTestReportEmpty(t *testing.T) {
	out, err := FormatTestReport(&xctest.TestReport{}, Options{Format: FormatTable})
	require.NoError(t, err)
	require.Equal(t, "No test cases ran", out)
}

func TestFormatTestReportYAML(t *testing.T) {
	report := &xctest.TestReport{
		Suites: []*xctest.Suite{
			{Name: "S", Cases: []*xctest.Case{{Class: "S", Method: "m", Status: xctest.CaseSkipped}}},
		},
	}
	out, err := FormatTestReport(report, Options{Format: FormatYAML})
	require.NoError(t, err)
	require.Contains(t, out, "status: skipped")
}

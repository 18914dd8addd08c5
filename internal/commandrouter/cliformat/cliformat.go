// Package cliformat renders command-router domain objects (targets and
// test reports) as CLI table/JSON/YAML output, adapted from the teacher's
// internal/formatting package: same go-pretty-backed table renderer and
// OutputFormat enum, rebuilt against target/xctest types instead of MCP
// tool/resource listings.
package cliformat

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"idbcore/internal/target"
	"idbcore/internal/xctest"
	pkgstrings "idbcore/pkg/strings"
)

// OutputFormat selects how a result set is rendered.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
	FormatTable   OutputFormat = "table"
)

// Options configures rendering.
type Options struct {
	Format OutputFormat
	Color  bool
}

func newTable(o Options) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	if !o.Color {
		t.Style().Color = table.ColorOptionsDefault
	}
	return t
}

// FormatTargets renders a target list per Options.Format.
func FormatTargets(targets []*target.Target, o Options) (string, error) {
	switch o.Format {
	case FormatJSON:
		return marshalJSON(targetRows(targets))
	case FormatYAML:
		return marshalYAML(targetRows(targets))
	default:
		return formatTargetsTable(targets, o), nil
	}
}

type targetRow struct {
	UDID     string   `json:"udid" yaml:"udid"`
	Kind     string   `json:"kind" yaml:"kind"`
	OS       string   `json:"os_version" yaml:"os_version"`
	State    string   `json:"state" yaml:"state"`
	Features []string `json:"capabilities" yaml:"capabilities"`
}

func targetRows(targets []*target.Target) []targetRow {
	rows := make([]targetRow, 0, len(targets))
	for _, t := range targets {
		rows = append(rows, targetRow{
			UDID:     t.UDID(),
			Kind:     t.Kind().String(),
			OS:       t.OSVersion(),
			State:    t.State().String(),
			Features: t.Capabilities(),
		})
	}
	return rows
}

func formatTargetsTable(targets []*target.Target, o Options) string {
	if len(targets) == 0 {
		return "No targets found"
	}
	t := newTable(o)
	t.AppendHeader(table.Row{
		colorize(o, "UDID"), colorize(o, "KIND"), colorize(o, "OS"), colorize(o, "STATE"),
	})
	for _, tg := range targets {
		t.AppendRow(table.Row{tg.UDID(), tg.Kind().String(), tg.OSVersion(), tg.State().String()})
	}
	var b strings.Builder
	t.SetOutputMirror(&b)
	t.Render()
	fmt.Fprintf(&b, "\nTotal: %d targets\n", len(targets))
	return b.String()
}

// FormatTestReport renders a completed test run's suite/case tree per
// Options.Format. In table mode, the first failure message of a failing
// case is truncated to a single display line rather than spilling the
// table onto extra rows.
func FormatTestReport(report *xctest.TestReport, o Options) (string, error) {
	switch o.Format {
	case FormatJSON:
		return marshalJSON(testReportRows(report))
	case FormatYAML:
		return marshalYAML(testReportRows(report))
	default:
		return formatTestReportTable(report, o), nil
	}
}

type caseRow struct {
	Suite    string        `json:"suite" yaml:"suite"`
	Class    string        `json:"class" yaml:"class"`
	Method   string        `json:"method" yaml:"method"`
	Status   string        `json:"status" yaml:"status"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Failure  string        `json:"failure,omitempty" yaml:"failure,omitempty"`
}

func caseStatusString(s xctest.CaseStatus) string {
	switch s {
	case xctest.CasePassed:
		return "passed"
	case xctest.CaseSkipped:
		return "skipped"
	case xctest.CaseFailed:
		return "failed"
	default:
		return "not_finished"
	}
}

func testReportRows(report *xctest.TestReport) []caseRow {
	var rows []caseRow
	for _, s := range report.Suites {
		for _, c := range s.Cases {
			row := caseRow{Suite: s.Name, Class: c.Class, Method: c.Method, Status: caseStatusString(c.Status), Duration: c.Duration}
			if len(c.Failures) > 0 {
				row.Failure = c.Failures[0].Message
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func formatTestReportTable(report *xctest.TestReport, o Options) string {
	rows := testReportRows(report)
	if len(rows) == 0 {
		return "No test cases ran"
	}
	t := newTable(o)
	t.AppendHeader(table.Row{
		colorize(o, "SUITE"), colorize(o, "CASE"), colorize(o, "STATUS"), colorize(o, "DURATION"), colorize(o, "FAILURE"),
	})
	passed, failed := 0, 0
	for _, r := range rows {
		switch r.Status {
		case "passed":
			passed++
		case "failed":
			failed++
		}
		t.AppendRow(table.Row{
			r.Suite, r.Class + "." + r.Method, r.Status, r.Duration.Round(time.Millisecond),
			pkgstrings.TruncateDescription(r.Failure, pkgstrings.DefaultDescriptionMaxLen),
		})
	}
	var b strings.Builder
	t.SetOutputMirror(&b)
	t.Render()
	fmt.Fprintf(&b, "\n%d passed, %d failed, %d total\n", passed, failed, len(rows))
	return b.String()
}

func colorize(o Options, s string) string {
	if !o.Color {
		return s
	}
	return text.FgHiCyan.Sprint(s)
}

func marshalJSON(v interface{}) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	return string(b), err
}

func marshalYAML(v interface{}) (string, error) {
	b, err := yaml.Marshal(v)
	return string(b), err
}

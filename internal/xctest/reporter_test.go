package xctest

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumableReporter_DrainReturnsAndClearsQueue(t *testing.T) {
	r := NewConsumableReporter()
	r.SuiteStart("MySuiteTests")
	r.CaseStart("MySuiteTests", "testFoo")
	r.CaseFinish("MySuiteTests", "testFoo", CasePassed)

	updates := r.Drain()
	require.Len(t, updates, 3)
	assert.Equal(t, "suite-start", updates[0].Event)
	assert.Equal(t, "case-finish", updates[2].Event)
	assert.Equal(t, CasePassed, updates[2].Status)

	assert.Empty(t, r.Drain())
}

func TestCompositeReporter_FansOutToEveryReporter(t *testing.T) {
	a := NewConsumableReporter()
	b := NewConsumableReporter()
	composite := NewCompositeReporter(a, b)

	composite.SuiteStart("MySuiteTests")
	composite.CaseStart("MySuiteTests", "testFoo")
	composite.CaseFinish("MySuiteTests", "testFoo", CaseFailed)

	assert.Len(t, a.Drain(), 3)
	assert.Len(t, b.Drain(), 3)
}

func TestJSONStreamReporter_EmitsOneLinePerEvent(t *testing.T) {
	var lines []string
	r := NewJSONStreamReporter(func(line string) { lines = append(lines, line) })

	r.SuiteStart("MySuiteTests")
	r.CaseStart("MySuiteTests", "testFoo")
	r.CaseFinish("MySuiteTests", "testFoo", CasePassed)

	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "suite-start")
	assert.Contains(t, lines[2], "case-finish")
}

func TestJUnitReporter_FlushProducesOneTestsuitePerClass(t *testing.T) {
	r := NewJUnitReporter()
	r.SuiteStart("MySuiteTests")
	r.CaseFinish("MySuiteTests", "testFoo", CasePassed)
	r.CaseFinish("MySuiteTests", "testBar", CaseFailed)

	raw, err := r.Flush()
	require.NoError(t, err)

	var parsed junitReport
	require.NoError(t, xml.Unmarshal(raw, &parsed))
	require.Len(t, parsed.Suites, 1)
	assert.Equal(t, "MySuiteTests", parsed.Suites[0].Name)
	require.Len(t, parsed.Suites[0].Cases, 2)
	assert.Nil(t, parsed.Suites[0].Cases[0].Failure)
	require.NotNil(t, parsed.Suites[0].Cases[1].Failure)
}

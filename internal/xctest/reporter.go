package xctest

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sync"

	"idbcore/pkg/logging"
)

// Reporter receives every structural event of a test run (spec §4.2:
// "an interface with entry points for every structural event").
// Implementations must be safe for concurrent calls, since transport
// and daemon channel events may interleave without an ordering
// guarantee across channels (spec §5).
type Reporter interface {
	SuiteStart(name string)
	CaseStart(class, method string)
	CaseIssue(class, method string, failure FailureInfo)
	CaseFinish(class, method string, status CaseStatus)
	SuiteFinish(name string)
	ActivityStart(class, method, activity string)
	ActivityFinish(class, method, activity string)
	Output(text string)
	Crash(class, method string)
}

// CompositeReporter fans every event out to N concrete reporters (spec
// §4.2: "a composite variant dispatches to multiple concrete
// reporters"). Reporters are called in order; a panic in one is not
// recovered, so the reporters after it do not receive that event.
type CompositeReporter struct {
	reporters []Reporter
}

func NewCompositeReporter(reporters ...Reporter) *CompositeReporter {
	return &CompositeReporter{reporters: reporters}
}

func (c *CompositeReporter) each(fn func(Reporter)) {
	for _, r := range c.reporters {
		fn(r)
	}
}

func (c *CompositeReporter) SuiteStart(name string)  { c.each(func(r Reporter) { r.SuiteStart(name) }) }
func (c *CompositeReporter) SuiteFinish(name string) { c.each(func(r Reporter) { r.SuiteFinish(name) }) }
func (c *CompositeReporter) CaseStart(class, method string) {
	c.each(func(r Reporter) { r.CaseStart(class, method) })
}
func (c *CompositeReporter) CaseIssue(class, method string, f FailureInfo) {
	c.each(func(r Reporter) { r.CaseIssue(class, method, f) })
}
func (c *CompositeReporter) CaseFinish(class, method string, status CaseStatus) {
	c.each(func(r Reporter) { r.CaseFinish(class, method, status) })
}
func (c *CompositeReporter) ActivityStart(class, method, activity string) {
	c.each(func(r Reporter) { r.ActivityStart(class, method, activity) })
}
func (c *CompositeReporter) ActivityFinish(class, method, activity string) {
	c.each(func(r Reporter) { r.ActivityFinish(class, method, activity) })
}
func (c *CompositeReporter) Output(text string) { c.each(func(r Reporter) { r.Output(text) }) }
func (c *CompositeReporter) Crash(class, method string) {
	c.each(func(r Reporter) { r.Crash(class, method) })
}

// TextLogReporter writes every event as one human-readable log line,
// grounded on pkg/logging.Named's hierarchical logger contract — the
// "legacy text logger" spec §4.2 names.
type TextLogReporter struct {
	log *logging.Named
}

func NewTextLogReporter(log *logging.Named) *TextLogReporter { return &TextLogReporter{log: log} }

func (t *TextLogReporter) SuiteStart(name string)  { t.log.Info("suite start: %s", name) }
func (t *TextLogReporter) SuiteFinish(name string) { t.log.Info("suite finish: %s", name) }
func (t *TextLogReporter) CaseStart(class, method string) {
	t.log.Info("case start: %s.%s", class, method)
}
func (t *TextLogReporter) CaseIssue(class, method string, f FailureInfo) {
	t.log.Warn("case issue: %s.%s: %s (%s:%d)", class, method, f.Message, f.File, f.Line)
}
func (t *TextLogReporter) CaseFinish(class, method string, status CaseStatus) {
	t.log.Info("case finish: %s.%s status=%d", class, method, status)
}
func (t *TextLogReporter) ActivityStart(class, method, activity string) {
	t.log.Debug("activity start: %s.%s/%s", class, method, activity)
}
func (t *TextLogReporter) ActivityFinish(class, method, activity string) {
	t.log.Debug("activity finish: %s.%s/%s", class, method, activity)
}
func (t *TextLogReporter) Output(text string)            { t.log.Debug("output: %s", text) }
func (t *TextLogReporter) Crash(class, method string)     { t.log.Error(nil, "crash: %s.%s", class, method) }

// ConsumableReporter stores every update in a queue drained by delta
// polls (spec §4.2: "a consumable reporter stores every update in a
// queue drained by delta polls"). It is the bridge to the session
// delta-update manager (§4.3).
type ConsumableReporter struct {
	mu      sync.Mutex
	updates []TestUpdate
}

// TestUpdate is one queued delta entry for a ConsumableReporter.
type TestUpdate struct {
	Class    string
	Method   string
	Event    string
	Status   CaseStatus
	Failure  *FailureInfo
	Crashed  bool
}

func NewConsumableReporter() *ConsumableReporter { return &ConsumableReporter{} }

func (c *ConsumableReporter) push(u TestUpdate) {
	c.mu.Lock()
	c.updates = append(c.updates, u)
	c.mu.Unlock()
}

// Drain returns and clears every update queued since the last Drain
// call — the primitive a session's poll() builds its delta from.
func (c *ConsumableReporter) Drain() []TestUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.updates
	c.updates = nil
	return out
}

func (c *ConsumableReporter) SuiteStart(name string)  { c.push(TestUpdate{Event: "suite-start", Method: name}) }
func (c *ConsumableReporter) SuiteFinish(name string) { c.push(TestUpdate{Event: "suite-finish", Method: name}) }
func (c *ConsumableReporter) CaseStart(class, method string) {
	c.push(TestUpdate{Class: class, Method: method, Event: "case-start"})
}
func (c *ConsumableReporter) CaseIssue(class, method string, f FailureInfo) {
	c.push(TestUpdate{Class: class, Method: method, Event: "case-issue", Failure: &f})
}
func (c *ConsumableReporter) CaseFinish(class, method string, status CaseStatus) {
	c.push(TestUpdate{Class: class, Method: method, Event: "case-finish", Status: status})
}
func (c *ConsumableReporter) ActivityStart(class, method, activity string) {
	c.push(TestUpdate{Class: class, Method: method, Event: "activity-start"})
}
func (c *ConsumableReporter) ActivityFinish(class, method, activity string) {
	c.push(TestUpdate{Class: class, Method: method, Event: "activity-finish"})
}
func (c *ConsumableReporter) Output(text string) { c.push(TestUpdate{Event: "output"}) }
func (c *ConsumableReporter) Crash(class, method string) {
	c.push(TestUpdate{Class: class, Method: method, Event: "crash", Crashed: true})
}

// JSONStreamReporter writes each event as a single JSON line.
type JSONStreamReporter struct {
	mu  sync.Mutex
	out func(line string)
}

func NewJSONStreamReporter(out func(line string)) *JSONStreamReporter {
	return &JSONStreamReporter{out: out}
}

func (j *JSONStreamReporter) emit(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	j.mu.Lock()
	j.out(string(b))
	j.mu.Unlock()
}

func (j *JSONStreamReporter) SuiteStart(name string) { j.emit(map[string]string{"event": "suite-start", "suite": name}) }
func (j *JSONStreamReporter) SuiteFinish(name string) {
	j.emit(map[string]string{"event": "suite-finish", "suite": name})
}
func (j *JSONStreamReporter) CaseStart(class, method string) {
	j.emit(map[string]string{"event": "case-start", "class": class, "method": method})
}
func (j *JSONStreamReporter) CaseIssue(class, method string, f FailureInfo) {
	j.emit(map[string]interface{}{"event": "case-issue", "class": class, "method": method, "failure": f})
}
func (j *JSONStreamReporter) CaseFinish(class, method string, status CaseStatus) {
	j.emit(map[string]interface{}{"event": "case-finish", "class": class, "method": method, "status": status})
}
func (j *JSONStreamReporter) ActivityStart(class, method, activity string) {
	j.emit(map[string]string{"event": "activity-start", "class": class, "method": method, "activity": activity})
}
func (j *JSONStreamReporter) ActivityFinish(class, method, activity string) {
	j.emit(map[string]string{"event": "activity-finish", "class": class, "method": method, "activity": activity})
}
func (j *JSONStreamReporter) Output(text string) { j.emit(map[string]string{"event": "output", "text": text}) }
func (j *JSONStreamReporter) Crash(class, method string) {
	j.emit(map[string]string{"event": "crash", "class": class, "method": method})
}

// junitTestCase/junitTestSuite/junitReport are the XML shapes JUnitReporter
// accumulates into and flushes via Flush.
type junitTestCase struct {
	XMLName xml.Name `xml:"testcase"`
	Class   string   `xml:"classname,attr"`
	Name    string   `xml:"name,attr"`
	Failure *string  `xml:"failure,omitempty"`
}

type junitTestSuite struct {
	XMLName xml.Name        `xml:"testsuite"`
	Name    string          `xml:"name,attr"`
	Cases   []junitTestCase `xml:"testcase"`
}

type junitReport struct {
	XMLName xml.Name         `xml:"testsuites"`
	Suites  []*junitTestSuite `xml:"testsuite"`
}

// JUnitReporter accumulates structural events into a JUnit-XML report,
// flushed on demand (spec §4.2: "a JUnit-XML generator").
type JUnitReporter struct {
	mu     sync.Mutex
	report junitReport
	byName map[string]*junitTestSuite
}

func NewJUnitReporter() *JUnitReporter {
	return &JUnitReporter{byName: make(map[string]*junitTestSuite)}
}

func (j *JUnitReporter) suite(name string) *junitTestSuite {
	j.mu.Lock()
	defer j.mu.Unlock()
	s, ok := j.byName[name]
	if !ok {
		s = &junitTestSuite{Name: name}
		j.byName[name] = s
		j.report.Suites = append(j.report.Suites, s)
	}
	return s
}

func (j *JUnitReporter) SuiteStart(name string)  { j.suite(name) }
func (j *JUnitReporter) SuiteFinish(name string) {}
func (j *JUnitReporter) CaseStart(class, method string) {}
func (j *JUnitReporter) CaseIssue(class, method string, f FailureInfo) {}
func (j *JUnitReporter) CaseFinish(class, method string, status CaseStatus) {
	s := j.suite(class)
	j.mu.Lock()
	defer j.mu.Unlock()
	var failure *string
	if status == CaseFailed {
		msg := fmt.Sprintf("%s.%s failed", class, method)
		failure = &msg
	}
	s.Cases = append(s.Cases, junitTestCase{Class: class, Name: method, Failure: failure})
}
func (j *JUnitReporter) ActivityStart(class, method, activity string)  {}
func (j *JUnitReporter) ActivityFinish(class, method, activity string) {}
func (j *JUnitReporter) Output(text string)                            {}
func (j *JUnitReporter) Crash(class, method string)                    {}

// Flush marshals the accumulated report to JUnit XML.
func (j *JUnitReporter) Flush() ([]byte, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return xml.MarshalIndent(j.report, "", "  ")
}

package xctest

import "time"

// FailureInfo describes a single test-case failure (spec §3).
type FailureInfo struct {
	Message string
	File    string
	Line    int
}

// Attachment is arbitrary binary data attached to an Activity
// (screenshots, logs, diagnostic blobs).
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Activity is a nested record within a test case (spec §3).
type Activity struct {
	Name        string
	Children    []Activity
	Attachments []Attachment
}

// CaseStatus enumerates a test case's terminal outcome.
type CaseStatus int

const (
	CaseNotFinished CaseStatus = iota
	CasePassed
	CaseSkipped
	CaseFailed
)

// Case is one test method's report record (spec §3).
type Case struct {
	Bundle     string
	Class      string
	Method     string
	Status     CaseStatus
	Duration   time.Duration
	Failures   []FailureInfo
	Crashed    bool
	Activities []Activity
	Logs       string
}

// Suite groups Cases under one test class/target (spec §3: "a tree of
// suite -> case -> activity records").
type Suite struct {
	Name  string
	Cases []*Case
}

// TestReport is the root of the suite/case/activity tree for one run.
type TestReport struct {
	Suites []*Suite
}

func (r *TestReport) suite(name string) *Suite {
	for _, s := range r.Suites {
		if s.Name == name {
			return s
		}
	}
	s := &Suite{Name: name}
	r.Suites = append(r.Suites, s)
	return s
}

func (s *Suite) caseByMethod(class, method string) *Case {
	for _, c := range s.Cases {
		if c.Class == class && c.Method == method {
			return c
		}
	}
	c := &Case{Class: class, Method: method}
	s.Cases = append(s.Cases, c)
	return c
}

// Package crashlog implements the crash-log store (spec §4.6): a
// directory watcher that parses newly-discovered crash reports and
// serves predicate-matched retrieval to subscribers. Grounded on the
// teacher's internal/reconciler/filesystem_detector.go (fsnotify-driven
// change detection) and on original_source/FBControlCore/Utility/
// FBCrashLogStore.h for the ingest/predicate-match contract.
package crashlog

import "time"

// CrashLog is a parsed crash report (spec §3).
type CrashLog struct {
	ProcessName              string
	ProcessIdentifier        int
	ParentProcessName        string
	ParentProcessIdentifier  int
	ExecutablePath           string
	Identifier               string
	Date                     time.Time
	ExceptionDescription     string
	CrashedThreadDescription string
	RawText                  string
}

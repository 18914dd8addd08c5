package crashlog

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"idbcore/internal/coreerr"
)

// ParseConcatenatedJSON treats raw as two adjacent JSON objects (a
// metadata document followed by a content document, as macOS's
// ips-format reports emit them) and searches every field across both
// for the values it needs, grounded on original_source's
// FBConcatedJSONCrashLogParser. This is deliberately layout-agnostic:
// rather than assuming either document's shape, every key at any depth
// is flattened and matched by name, so a reordered or renamed-but-
// synonymous field in a future OS release still resolves.
func ParseConcatenatedJSON(raw string) (*CrashLog, error) {
	dec := json.NewDecoder(strings.NewReader(raw))

	flat := make(map[string]interface{})
	for {
		var doc interface{}
		err := dec.Decode(&doc)
		if err != nil {
			break
		}
		flatten("", doc, flat)
	}
	if len(flat) == 0 {
		return nil, coreerr.New(coreerr.KindInvalidArgument, "crashlog.ParseConcatenatedJSON", "no JSON documents found in input")
	}

	c := &CrashLog{RawText: raw}
	c.ProcessName = firstString(flat, "procName", "process_name", "processName")
	c.ProcessIdentifier = firstInt(flat, "pid", "processID", "process_id")
	c.ParentProcessName = firstString(flat, "parentProc", "parent_process_name", "parentProcessName")
	c.ParentProcessIdentifier = firstInt(flat, "parentPid", "parent_process_id", "parentProcessID")
	c.ExecutablePath = firstString(flat, "procPath", "executablePath", "executable_path")
	c.Identifier = firstString(flat, "bundleID", "bundleInfo.CFBundleIdentifier", "app_identifier", "bug_type")
	c.ExceptionDescription = firstString(flat, "exception", "exceptionReason", "termination")
	c.CrashedThreadDescription = firstString(flat, "crashedThread", "faultingThread", "crashReason")

	if ts := firstString(flat, "timestamp", "captureTime", "date"); ts != "" {
		if t, err := time.Parse("2006-01-02 15:04:05.000 -0700", ts); err == nil {
			c.Date = t
		} else if t, err := time.Parse(time.RFC3339, ts); err == nil {
			c.Date = t
		}
	}
	return c, nil
}

// flatten walks an arbitrary decoded JSON value, recording every scalar
// leaf under its own key (last path segment) so callers can search by
// field name without knowing which of the two documents holds it or how
// deeply nested it is.
func flatten(prefix string, v interface{}, out map[string]interface{}) {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, child := range t {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			flatten(path, child, out)
			// also index by the bare key, so short aliases resolve
			// regardless of nesting depth.
			if _, exists := out[k]; !exists {
				out[k] = child
			}
		}
	default:
		if prefix != "" {
			out[prefix] = v
		}
	}
}

func firstString(flat map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := flat[k]; ok {
			switch s := v.(type) {
			case string:
				return s
			case float64:
				return strconv.FormatFloat(s, 'f', -1, 64)
			}
		}
	}
	return ""
}

func firstInt(flat map[string]interface{}, keys ...string) int {
	for _, k := range keys {
		if v, ok := flat[k]; ok {
			switch n := v.(type) {
			case float64:
				return int(n)
			case string:
				if i, err := strconv.Atoi(n); err == nil {
					return i
				}
			}
		}
	}
	return 0
}

package crashlog

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"idbcore/internal/coreerr"
)

// dateLayout matches the "Date/Time:" field as written by SerializePlainText
// and by the host platform's crash reporter.
const dateLayout = "2006-01-02 15:04:05.000 -0700"

// ParsePlainText extracts crash fields via positional field tags (spec
// §4.6 invariant), grounded on original_source's
// FBPlainTextCrashLogParser contract. It is deliberately tolerant of
// missing fields: a field simply stays at its zero value rather than
// failing the whole parse, since crash-log layouts vary across OS
// versions.
func ParsePlainText(raw string) (*CrashLog, error) {
	c := &CrashLog{RawText: raw}
	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var inCrashedThread bool
	var crashedThreadLines []string

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "Process:"):
			c.ProcessName, c.ProcessIdentifier = parseNameAndPID(strings.TrimPrefix(line, "Process:"))
		case strings.HasPrefix(line, "Parent Process:"):
			c.ParentProcessName, c.ParentProcessIdentifier = parseNameAndPID(strings.TrimPrefix(line, "Parent Process:"))
		case strings.HasPrefix(line, "Path:"):
			c.ExecutablePath = strings.TrimSpace(strings.TrimPrefix(line, "Path:"))
		case strings.HasPrefix(line, "Identifier:"):
			c.Identifier = strings.TrimSpace(strings.TrimPrefix(line, "Identifier:"))
		case strings.HasPrefix(line, "Date/Time:"):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "Date/Time:"))
			if t, err := time.Parse(dateLayout, raw); err == nil {
				c.Date = t
			}
		case strings.HasPrefix(line, "Exception Type:"):
			c.ExceptionDescription = strings.TrimSpace(strings.TrimPrefix(line, "Exception Type:"))
		case strings.HasPrefix(line, "Exception Message:") && c.ExceptionDescription != "":
			c.ExceptionDescription = c.ExceptionDescription + " " + strings.TrimSpace(strings.TrimPrefix(line, "Exception Message:"))
		case isCrashedThreadHeader(line):
			inCrashedThread = true
			crashedThreadLines = append(crashedThreadLines, line)
		case inCrashedThread:
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "Thread") {
				inCrashedThread = false
				continue
			}
			crashedThreadLines = append(crashedThreadLines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, coreerr.Wrap(coreerr.KindInvalidArgument, "crashlog.ParsePlainText", err, "failed to scan crash log")
	}
	c.CrashedThreadDescription = strings.Join(crashedThreadLines, "\n")
	return c, nil
}

func isCrashedThreadHeader(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "Thread") && strings.Contains(trimmed, "Crashed")
}

// parseNameAndPID splits a "Name [PID]" field value.
func parseNameAndPID(field string) (string, int) {
	field = strings.TrimSpace(field)
	open := strings.LastIndex(field, "[")
	close := strings.LastIndex(field, "]")
	if open < 0 || close < 0 || close < open {
		return field, 0
	}
	name := strings.TrimSpace(field[:open])
	pid, _ := strconv.Atoi(strings.TrimSpace(field[open+1 : close]))
	return name, pid
}

// SerializePlainText re-renders the fields ParsePlainText extracts, used
// by the round-trip test in spec §8: parsing the serialized output must
// recover the same identifier, pid, process name, date, and exception
// description as the original parse.
func SerializePlainText(c *CrashLog) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Process:               %s [%d]\n", c.ProcessName, c.ProcessIdentifier)
	fmt.Fprintf(&b, "Path:                  %s\n", c.ExecutablePath)
	fmt.Fprintf(&b, "Identifier:            %s\n", c.Identifier)
	fmt.Fprintf(&b, "Parent Process:        %s [%d]\n", c.ParentProcessName, c.ParentProcessIdentifier)
	if !c.Date.IsZero() {
		fmt.Fprintf(&b, "Date/Time:             %s\n", c.Date.Format(dateLayout))
	}
	fmt.Fprintf(&b, "Exception Type:        %s\n", c.ExceptionDescription)
	if c.CrashedThreadDescription != "" {
		b.WriteString(c.CrashedThreadDescription)
		b.WriteString("\n")
	}
	return b.String()
}

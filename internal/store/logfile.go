package store

import (
	"bufio"
	"strings"
	"time"
)

// Lines written by the rotating file logger start with log.LstdFlags:
// "2006/01/02 15:04:05 <message>". Lines without that prefix (panics,
// multi-line dumps) are kept with an empty timestamp.
const stdFlagsLayout = "2006/01/02 15:04:05"

// FileLogFilter narrows the entries returned from a day's log file.
// The zero value keeps everything.
type FileLogFilter struct {
	Since  string // RFC3339; keep only entries strictly after this instant
	Search string // case-insensitive substring match on the full line
}

// ParseLogFile turns the raw content of one day file into log entries,
// applying the filter. File entries never carry a service tag; binaries
// sharing a LOG_DIR interleave in the same day file, and only the ES path
// can tell them apart.
func ParseLogFile(content string, filter FileLogFilter) []LogEntry {
	var since time.Time
	if filter.Since != "" {
		if t, err := time.Parse(time.RFC3339, filter.Since); err == nil {
			since = t.UTC()
		}
	}
	needle := strings.ToLower(strings.TrimSpace(filter.Search))

	var entries []LogEntry
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		ts, ok := lineTimestamp(line)
		if !since.IsZero() && ok && !ts.After(since) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(line), needle) {
			continue
		}
		entry := LogEntry{Message: line}
		if ok {
			entry.TS = ts.Format(time.RFC3339Nano)
		}
		entries = append(entries, entry)
	}
	return entries
}

// LastFileCheckpoint returns the timestamp of the newest dated line in the
// file, RFC3339Nano, or "" when no line has a parseable prefix.
func LastFileCheckpoint(content string) string {
	var last time.Time
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if ts, ok := lineTimestamp(strings.TrimSuffix(sc.Text(), "\r")); ok && ts.After(last) {
			last = ts
		}
	}
	if last.IsZero() {
		return ""
	}
	return last.Format(time.RFC3339Nano)
}

// lineTimestamp parses the LstdFlags prefix of a log line.
func lineTimestamp(line string) (time.Time, bool) {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < len(stdFlagsLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(stdFlagsLayout, trimmed[:len(stdFlagsLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// Package audit writes the append-only harvest log. Each iteration is a
// brace-delimited fragment with one quoted field per line, followed by
// "},". The file is meant for humans and grep, not for reading back.
package audit

import (
	"io"
	"strconv"
	"strings"
	"time"
)

// TimeLayout formats record timestamps.
const TimeLayout = "2006-01-02 15:04"

// Record is the audit view of one crawl iteration.
type Record struct {
	Cursor      int64
	RunID       string
	ID          *int64
	Description *string
	URI         string
	Dir         string
	Started     time.Time
	MaxWait     bool
	ExitCode    *int
	Err         string
	Stack       string
	Finished    time.Time
}

// FailureMessage is the err value for an iteration that did not clone.
func FailureMessage(cursor int64) string {
	return "ERR: Could not download repo with id:" + strconv.FormatInt(cursor, 10)
}

// JSONSafe escapes double quotes and line and tab control characters
// so s fits on one quoted line.
func JSONSafe(s string) string {
	return jsonSafe.Replace(s)
}

var jsonSafe = strings.NewReplacer(`"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

// Lines renders r as the lines written to the log.
func (r Record) Lines() []string {
	lines := []string{`{"cursor":"` + strconv.FormatInt(r.Cursor, 10) + `",`}
	if r.RunID != "" {
		lines = append(lines, field("run_id", r.RunID))
	}
	if r.ID != nil {
		desc := "None"
		if r.Description != nil {
			desc = *r.Description
		}
		lines = append(lines,
			field("id", strconv.FormatInt(*r.ID, 10)),
			field("description", desc),
			field("uri", r.URI),
		)
	}
	if r.Dir != "" {
		lines = append(lines, field("dir", r.Dir))
	}
	if !r.Started.IsZero() {
		lines = append(lines, field("time-start", r.Started.Format(TimeLayout)))
	}
	if r.MaxWait {
		lines = append(lines, field("max_wait", "exceeded"))
	}
	if r.ExitCode != nil {
		lines = append(lines, field("exit_code", strconv.Itoa(*r.ExitCode)))
	}
	if r.Err != "" {
		lines = append(lines, field("err", r.Err))
	}
	if r.Stack != "" {
		lines = append(lines, field("stacktrace", r.Stack))
	}
	finished := r.Finished
	if finished.IsZero() {
		finished = time.Now()
	}
	lines = append(lines, `"time":"`+finished.Format(TimeLayout)+`"`, "},")
	return lines
}

// WriteTo writes the record lines to w.
func (r Record) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	for _, l := range r.Lines() {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

func field(name, value string) string {
	return `"` + name + `":"` + JSONSafe(value) + `",`
}

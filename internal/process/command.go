package process

import (
	"os"
	"runtime"
	"strings"
)

// Command describes one external invocation as an argument vector.
type Command struct {
	// Args holds the executable followed by its arguments.
	Args []string
	// Dir is the working directory; empty means the caller's.
	Dir string
	// Env replaces the environment when non-nil.
	Env []string
}

// Args builds a Command from argument tokens.
func Args(args ...string) Command {
	return Command{Args: append([]string(nil), args...)}
}

// String renders the command for logs.
func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// Shell runs line through the host shell. It is the only place a shell
// is introduced; build line with JoinArgs or ShellLine.
func Shell(line string) Command {
	if runtime.GOOS == "windows" {
		return Command{Args: []string{"cmd", "/C", line}}
	}
	return Command{Args: []string{"/bin/sh", "-c", line}}
}

// JoinArgs joins parts with single spaces, skipping empty elements.
// On POSIX hosts an element containing shell metacharacters is single
// quoted so values taken from remote listings cannot alter the line.
func JoinArgs(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, quoteArg(p, runtime.GOOS))
	}
	return strings.Join(out, " ")
}

// ShellLine builds `<command> >> <logPath> 2>&1`. An empty logPath sends
// output to the platform null device.
func ShellLine(logPath string, parts ...string) string {
	target := logPath
	if target == "" {
		target = os.DevNull
	}
	return JoinArgs(parts...) + " >> " + quoteArg(target, runtime.GOOS) + " 2>&1"
}

func quoteArg(arg, goos string) string {
	if goos == "windows" || arg == "" {
		return arg
	}
	if !strings.ContainsFunc(arg, isShellSpecial) {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

func isShellSpecial(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	switch r {
	case '-', '_', '.', '/', ':', ',', '+', '=', '@', '%':
		return false
	}
	return true
}

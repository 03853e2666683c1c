// Package process runs external commands for the harvester.
//
// Commands are structured argument lists. The host shell is only involved
// when a caller builds a Command through Shell, which StartLogged does to
// let the shell own stdout/stderr redirection into an append-only log.
//
// Three execution modes are provided:
//   - RunSync waits for the child and returns stdout followed by stderr.
//     Output is spooled through temporary files, never pipes, so a child
//     that writes more than a pipe buffer cannot deadlock the parent.
//   - Start returns a Handle immediately; the child inherits the runner's
//     streams.
//   - StartLogged is Start with output appended to a log file whose name
//     is adjusted when another run already holds it.
//
// Liveness is polled through Handle.Running, which never blocks. A child
// killed by a signal is simply not running; its exit code reads as -1.
// Supervisor keeps one spawned command alive with a cool-down between
// restarts.
package process

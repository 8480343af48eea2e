// Package logs reads the daemon and per-job log files for `bookture logs`.
//
// Reads are bounded: Last keeps a ring of the final lines, and Follow polls
// from a byte offset so a long-running job log never has to be loaded whole.
package logs

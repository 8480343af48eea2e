// Package main hosts the bookture CLI entrypoint and command graph.
//
// `bookture serve` runs the daemon in the foreground; every other command is
// a thin HTTP client of that daemon (submit, resume, follow, jobs) or a local
// utility (config, status fallbacks). Configuration resolution and client
// construction live in commandContext so subcommands only deal with output.
package main

// Package preflight provides readiness checks for the directories, binaries,
// and remote collaborators podforge depends on.
//
// The daemon runs RunAll at startup and logs every failure; the CLI
// "podforge preflight" command prints the same results as a table. Remote
// checks only run when the matching feature is configured.
package preflight

// Package daemonctl connects the CLI to job operations. When the daemon's
// status API answers, commands go through it; otherwise they run directly
// against the job store so queue inspection and submission keep working
// while the daemon is down.
package daemonctl

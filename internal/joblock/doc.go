// Package joblock provides advisory per-job locks so that at most one worker
// processes a given assembly job at a time.
//
// Two backends are available: a file backend built on flock(2), suitable when
// every worker shares one host, and a Redis backend for workers spread across
// machines. The atomic claim in the job store remains the source of truth; the
// lock keeps a second worker from even starting while the first holds it.
package joblock

// Package staging manages the per-job scratch tree under paths.scratch_dir.
//
// Workers render into <scratch_dir>/<job id>/attempt-<n> and remove the
// attempt directory when the attempt ends. Sweep reclaims what a crashed
// worker left behind: job directories that belong to no running job, and
// directories older than the configured retention.
package staging

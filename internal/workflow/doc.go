// Package workflow runs assembly jobs from the queue to a published episode.
//
// The Manager starts a pool of workers that poll for queued jobs. A worker
// takes the job's advisory lock, claims the row, and then runs attempts until
// one succeeds, the failure is not retryable, or the attempt cap is reached.
// Each attempt loads the transcript, resolves segments while detecting voice
// commands, renders the episode, publishes and confirms the artifact, and
// commits the result. Cancellation and the job's wall-clock budget are checked
// at every stage boundary; heartbeats keep the row alive while work runs, and
// one worker reclaims rows whose heartbeats went stale.
//
// Configuration is read through a snapshot function at the start of every
// attempt so hot-reloaded phrase sets, curves, and budgets apply to the next
// attempt without disturbing one already in flight.
package workflow

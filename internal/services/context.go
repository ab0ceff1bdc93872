package services

import "context"

// Scope identifies the unit of work a context belongs to. Stage and Attempt
// change as a job moves through its pipeline; the identifiers are fixed once
// a worker claims the job.
type Scope struct {
	JobID     string
	EpisodeID string
	RequestID string
	Stage     string
	Attempt   int
}

type scopeKey struct{}

// ScopeFrom returns the scope carried by ctx, or the zero Scope.
func ScopeFrom(ctx context.Context) Scope {
	if ctx == nil {
		return Scope{}
	}
	scope, _ := ctx.Value(scopeKey{}).(Scope)
	return scope
}

func withScope(ctx context.Context, update func(*Scope)) context.Context {
	scope := ScopeFrom(ctx)
	update(&scope)
	return context.WithValue(ctx, scopeKey{}, scope)
}

// WithJob scopes ctx to a claimed job. requestID correlates every log line
// of one processing run.
func WithJob(ctx context.Context, jobID, episodeID, requestID string) context.Context {
	return withScope(ctx, func(s *Scope) {
		s.JobID = jobID
		s.EpisodeID = episodeID
		s.RequestID = requestID
	})
}

// WithStage records the pipeline stage. A blank stage leaves ctx unchanged.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return withScope(ctx, func(s *Scope) { s.Stage = stage })
}

// WithAttempt records the 1-based attempt number; non-positive values are
// ignored.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	if attempt <= 0 {
		return ctx
	}
	return withScope(ctx, func(s *Scope) { s.Attempt = attempt })
}

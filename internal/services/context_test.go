package services_test

import (
	"context"
	"testing"

	"podforge/internal/services"
)

func TestScopeAccumulates(t *testing.T) {
	ctx := services.WithJob(context.Background(), "job-42", "ep-7", "req-123")
	ctx = services.WithAttempt(ctx, 2)
	render := services.WithStage(ctx, "render")

	want := services.Scope{JobID: "job-42", EpisodeID: "ep-7", RequestID: "req-123", Stage: "render", Attempt: 2}
	if got := services.ScopeFrom(render); got != want {
		t.Fatalf("scope = %+v, want %+v", got, want)
	}
	if got := services.ScopeFrom(ctx).Stage; got != "" {
		t.Fatalf("parent context gained stage %q", got)
	}
}

func TestScopeIgnoresBlankValues(t *testing.T) {
	ctx := context.Background()
	if services.WithStage(ctx, "") != ctx || services.WithAttempt(ctx, 0) != ctx {
		t.Fatal("blank stage or attempt should return ctx unchanged")
	}
	if got := services.ScopeFrom(ctx); got != (services.Scope{}) {
		t.Fatalf("expected zero scope, got %+v", got)
	}
}

package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"podforge/internal/logging"
	"podforge/internal/queue"
	"podforge/internal/services"
)

// attemptError resolves what actually stopped an attempt. When the attempt
// context was cancelled on purpose, the recorded cause (cancellation, budget,
// lost ownership) wins over whatever error the interrupted stage returned.
func attemptError(parent, run context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if run.Err() != nil {
		cause := context.Cause(run)
		if cause != nil && !errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
			return cause
		}
	}
	return err
}

// ioError tags an unclassified storage failure as transient.
func ioError(stage, op, msg string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if services.Kind(err) != services.KindInternal {
		return err
	}
	return services.Wrap(services.ErrTransientIO, stage, op, msg, err)
}

func failureMessage(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}

// fail records a terminal failure on the job row.
func (m *Manager) fail(ctx context.Context, job *queue.Job, err error, logger *slog.Logger) {
	kind := services.Kind(err)
	message := failureMessage(err)
	details := services.Details(err)
	attrs := []logging.Attr{
		logging.String(logging.FieldErrorKind, kind),
		logging.String("error_stage", details.Stage),
		logging.String("error_operation", details.Operation),
		logging.Error(err),
	}
	if hint := errorHint(kind); hint != "" {
		attrs = append(attrs, logging.String(logging.FieldErrorHint, hint))
	}
	logging.ErrorWithContext(logging.WithContext(ctx, logger), "job failed", "job_failed", attrs...)

	if markErr := m.store.MarkFailed(context.WithoutCancel(ctx), job.ID, kind, message); markErr != nil {
		logger.Error("failed to persist job failure", logging.Error(markErr))
	}
	m.setLastError(err)
}

func errorHint(kind string) string {
	switch kind {
	case services.KindMissingContent:
		return "attach main content audio and resubmit"
	case services.KindNotFound:
		return "check that referenced audio and transcripts still exist"
	case services.KindBudgetExceeded:
		return "raise the plan budget or memory ceiling"
	case services.KindConfiguration:
		return "fix the daemon configuration and retry the job"
	case services.KindInvalidInput:
		return "correct the job descriptor or template and resubmit"
	case services.KindTransientIO, services.KindTimeout, services.KindSynthesisTimeout, services.KindRenderFailed:
		return "retry the job once the collaborator recovers"
	default:
		return ""
	}
}

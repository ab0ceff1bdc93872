package workflow

import (
	"context"
	"maps"

	"podforge/internal/logging"
	"podforge/internal/queue"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running   bool
	Workers   int
	LastError string
	LastJob   *queue.Job
	// ActiveJobs maps running job ids to the worker processing them.
	ActiveJobs map[string]string
	QueueStats map[queue.Status]int
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:    m.running,
		ActiveJobs: maps.Clone(m.active),
	}
	if m.running {
		summary.Workers = max(m.config().Workflow.Workers, 1)
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastJob != nil {
		copy := *m.lastJob
		summary.LastJob = &copy
	}
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// recordLastJob stores the final state of a job the pool just finished.
func (m *Manager) recordLastJob(ctx context.Context, id string) {
	job, err := m.store.GetJob(context.WithoutCancel(ctx), id)
	if err != nil || job == nil {
		return
	}
	m.mu.Lock()
	m.lastJob = job
	m.mu.Unlock()
}

func (m *Manager) trackActive(id, worker string) {
	m.mu.Lock()
	m.active[id] = worker
	m.mu.Unlock()
}

func (m *Manager) untrackActive(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

package worker

import (
	"context"
	"time"

	"github.com/smilemakc/workflowcore/internal/domainerr"
	"github.com/smilemakc/workflowcore/internal/infrastructure/storage/models"
	"github.com/smilemakc/workflowcore/pkg/runtime"
)

// scanLoop fetches pending/published rows and retry-eligible rows,
// interleaves them fairly across tenants, and dispatches each under the
// concurrency gate. Sleeps PollInterval when a pass finds nothing.
func (w *Worker) scanLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		batch, err := w.fetchBatch(ctx)
		if err != nil {
			w.log.Error("scan loop fetch failed", "error", err)
			w.sleep(ctx, w.cfg.PollInterval)
			continue
		}

		if len(batch) == 0 {
			w.sleep(ctx, w.cfg.PollInterval)
			continue
		}

		for _, row := range batch {
			select {
			case <-ctx.Done():
				return
			case w.sem <- struct{}{}:
			}

			go func(row *models.WorkflowEventProcessingModel) {
				defer func() { <-w.sem }()
				w.processOne(ctx, row)
			}(row)
		}
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// fetchBatch pulls both pending/published and retry-eligible rows and
// interleaves them round-robin by tenant, so a single noisy tenant cannot
// starve the others' events out of a batch.
func (w *Worker) fetchBatch(ctx context.Context) ([]*models.WorkflowEventProcessingModel, error) {
	pending, err := w.processing.FetchPendingOrPublished(ctx, w.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	retryable, err := w.processing.FetchRetryEligible(ctx, w.cfg.BatchSize, time.Now())
	if err != nil {
		return nil, err
	}

	for _, row := range retryable {
		row.Status = models.ProcessingStatusRetrying
		if err := w.processing.UpdateStatus(ctx, row); err != nil {
			w.log.Error("mark row retrying", "processing_id", row.ID, "error", err)
			continue
		}
	}

	all := append(pending, retryable...)
	return roundRobinByTenant(all), nil
}

// roundRobinByTenant groups rows by tenant preserving arrival order, then
// interleaves the groups so the resulting slice alternates across tenants
// instead of draining one tenant's backlog before touching the next.
func roundRobinByTenant(rows []*models.WorkflowEventProcessingModel) []*models.WorkflowEventProcessingModel {
	if len(rows) <= 1 {
		return rows
	}

	order := make([]string, 0)
	groups := make(map[string][]*models.WorkflowEventProcessingModel)
	for _, row := range rows {
		if _, seen := groups[row.Tenant]; !seen {
			order = append(order, row.Tenant)
		}
		groups[row.Tenant] = append(groups[row.Tenant], row)
	}

	out := make([]*models.WorkflowEventProcessingModel, 0, len(rows))
	for {
		progressed := false
		for _, tenant := range order {
			g := groups[tenant]
			if len(g) == 0 {
				continue
			}
			out = append(out, g[0])
			groups[tenant] = g[1:]
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return out
}

// processOne runs ProcessQueuedEvent for a single row, recording the
// outcome in metrics and, on a permanently classified error, capping
// MaxAttempts so the retry scan stops retrying it.
func (w *Worker) processOne(ctx context.Context, row *models.WorkflowEventProcessingModel) {
	start := time.Now()
	err := w.runtime.ProcessQueuedEvent(ctx, runtime.ProcessOptions{
		Tenant:       row.Tenant,
		ProcessingID: row.ID,
		WorkerID:     w.id,
	})
	elapsed := time.Since(start)

	if err != nil {
		w.metrics.recordFailure(elapsed, err)
		w.log.Error("process queued event failed", "processing_id", row.ID, "event_id", row.EventID, "error", err)

		classification := w.classifier.Classify(err)
		if classification.Strategy == domainerr.StrategyManualIntervention {
			w.capRetries(ctx, row)
		}
		return
	}

	w.metrics.recordSuccess(elapsed)
}

// capRetries reloads the row and sets MaxAttempts to its current
// AttemptCount so FetchRetryEligible stops selecting it, once the
// classifier has decided the failure needs manual intervention.
func (w *Worker) capRetries(ctx context.Context, row *models.WorkflowEventProcessingModel) {
	current, err := w.processing.FindByID(ctx, row.Tenant, row.ID)
	if err != nil || current == nil {
		return
	}
	current.MaxAttempts = current.AttemptCount
	if err := w.processing.UpdateStatus(ctx, current); err != nil {
		w.log.Error("cap retries after manual-intervention classification", "processing_id", row.ID, "error", err)
	}
}

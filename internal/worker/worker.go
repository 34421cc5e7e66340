// Package worker implements the worker service: the host process that
// owns a workerId, subscribes to the global event stream for fan-out
// dispatch, scans the database for queued and retry-eligible processing
// records, and reports health and shutdown gracefully on SIGINT/SIGTERM/SIGHUP.
package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/smilemakc/workflowcore/internal/config"
	"github.com/smilemakc/workflowcore/internal/domain/repository"
	"github.com/smilemakc/workflowcore/internal/domainerr"
	"github.com/smilemakc/workflowcore/internal/infrastructure/logger"
	"github.com/smilemakc/workflowcore/internal/infrastructure/stream"
	"github.com/smilemakc/workflowcore/pkg/runtime"
)

// Worker is the worker service.
type Worker struct {
	id  string
	cfg config.WorkerConfig

	runtime     *runtime.Runtime
	processing  repository.ProcessingRepository
	attachments repository.AttachmentRepository
	events      repository.EventRepository
	stream      *stream.Client
	log         *logger.Logger
	classifier  domainerr.Classifier

	cron *cron.Cron

	mu        sync.Mutex
	running   bool
	startedAt time.Time

	sem chan struct{}

	metrics *metrics

	shutdownOnce sync.WaitGroup
	stopScan     context.CancelFunc
	scanDone     chan struct{}
}

// Deps bundles the Worker's collaborators for New.
type Deps struct {
	Config      config.WorkerConfig
	Runtime     *runtime.Runtime
	Processing  repository.ProcessingRepository
	Attachments repository.AttachmentRepository
	Events      repository.EventRepository
	Stream      *stream.Client
	Logger      *logger.Logger
	// Classifier partitions processing errors into retry strategies. Nil
	// defaults to domainerr.DefaultClassifier.
	Classifier domainerr.Classifier
}

// New builds a Worker with a freshly generated workerId.
func New(d Deps) *Worker {
	classifier := d.Classifier
	if classifier == nil {
		classifier = domainerr.DefaultClassifier{}
	}
	return &Worker{
		id:          newWorkerID(),
		cfg:         d.Config,
		runtime:     d.Runtime,
		processing:  d.Processing,
		attachments: d.Attachments,
		events:      d.Events,
		stream:      d.Stream,
		log:         d.Logger,
		classifier:  classifier,
		sem:         make(chan struct{}, d.Config.ConcurrencyLimit),
		metrics:     newMetrics(),
	}
}

// newWorkerID builds a "hostname-pid-randomShort" identifier.
func newWorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

// ID returns this worker's identifier.
func (w *Worker) ID() string { return w.id }

// Run ensures the global consumer group, registers the dispatch handler,
// starts the scan loop and the stale-processing sweep, then blocks until a termination signal arrives or
// ctx is cancelled, running the graceful shutdown sequence before returning.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.stream.EnsureConsumerGroup(ctx, stream.GlobalStream, stream.GlobalGroup); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	if err := w.stream.RegisterConsumer(ctx, stream.GlobalStream, stream.GlobalGroup, w.id, w.handleGlobalDispatch); err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	scanCtx, cancelScan := context.WithCancel(ctx)
	w.stopScan = cancelScan
	w.scanDone = make(chan struct{})
	go w.scanLoop(scanCtx, w.scanDone)

	w.startStalePromotionSweep(ctx)

	w.mu.Lock()
	w.running = true
	w.startedAt = time.Now()
	w.mu.Unlock()

	w.log.Info("worker started", "worker_id", w.id, "concurrency_limit", w.cfg.ConcurrencyLimit)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		w.log.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
		w.log.Info("context cancelled, shutting down")
	}

	return w.shutdown()
}

// shutdown stops accepting new work, stops the cron sweep and consumer,
// waits up to ShutdownTimeout for in-flight tasks, then returns.
// Abandoned tasks' locks expire naturally via their TTL.
func (w *Worker) shutdown() error {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	if w.cron != nil {
		cronCtx := w.cron.Stop()
		<-cronCtx.Done()
	}

	if w.stopScan != nil {
		w.stopScan()
	}
	w.stream.StopConsumer()

	done := make(chan struct{})
	go func() {
		if w.scanDone != nil {
			<-w.scanDone
		}
		w.drainInFlight()
		close(done)
	}()

	select {
	case <-done:
		w.log.Info("worker shutdown complete", "worker_id", w.id)
	case <-time.After(w.cfg.ShutdownTimeout):
		w.log.Warn("worker shutdown timed out waiting for in-flight tasks", "worker_id", w.id)
	}
	return nil
}

// drainInFlight blocks until the concurrency semaphore is fully free, i.e.
// no processing task is in flight.
func (w *Worker) drainInFlight() {
	for i := 0; i < cap(w.sem); i++ {
		w.sem <- struct{}{}
	}
}

// startStalePromotionSweep schedules the periodic promotion of rows stuck in
// "processing" past 2x the lock TTL back to "failed" so the retry scan can
// pick them up, per the Open Question on stale "processing" rows.
func (w *Worker) startStalePromotionSweep(ctx context.Context) {
	interval := w.cfg.StalePromotionInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	w.cron = cron.New()
	spec := fmt.Sprintf("@every %s", interval)
	_, err := w.cron.AddFunc(spec, func() {
		cutoff := time.Now().Add(-2 * w.cfg.LockTTL)
		n, err := w.processing.PromoteStaleProcessing(ctx, cutoff)
		if err != nil {
			w.log.Error("stale processing promotion sweep failed", "error", err)
			return
		}
		if n > 0 {
			w.log.Info("promoted stale processing rows", "count", n, "cutoff", cutoff)
		}
	})
	if err != nil {
		w.log.Error("schedule stale promotion sweep", "error", err)
		return
	}
	w.cron.Start()
}

// IsRunning reports whether the worker has completed startup and not yet
// begun shutdown.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// StartedAt returns when the worker completed startup.
func (w *Worker) StartedAt() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.startedAt
}

// activeCount reports how many processing slots are currently claimed.
func (w *Worker) activeCount() int {
	return len(w.sem)
}

package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/workflowcore/internal/config"
	"github.com/smilemakc/workflowcore/internal/infrastructure/logger"
	"github.com/smilemakc/workflowcore/internal/infrastructure/stream"
)

func newRunnableWorker(t *testing.T) *Worker {
	t.Helper()
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	processing := newFakeProcessingRepository()
	return &Worker{
		id:          "worker-run-test",
		cfg:         config.WorkerConfig{ConcurrencyLimit: 2, ShutdownTimeout: time.Second, StalePromotionInterval: time.Hour},
		runtime:     newTestRuntime(processing),
		processing:  processing,
		attachments: newFakeAttachmentRepository(),
		stream:      stream.NewClient(rdb),
		log:         logger.Default(),
		sem:         make(chan struct{}, 2),
		metrics:     newMetrics(),
	}
}

func TestWorker_Run_EnsuresConsumerGroupAndReportsRunning(t *testing.T) {
	w := newRunnableWorker(t)
	ctx, cancel := context.WithCancel(context.Background())

	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	require.Eventually(t, w.IsRunning, time.Second, 5*time.Millisecond)
	assert.False(t, w.StartedAt().IsZero())

	cancel()

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	assert.False(t, w.IsRunning())
}

func TestWorker_Shutdown_StopsConsumerAndCronWithoutBlockingOnNilFields(t *testing.T) {
	w := newRunnableWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	require.Eventually(t, w.IsRunning, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete in time")
	}
}

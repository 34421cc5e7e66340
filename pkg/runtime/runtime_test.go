package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/workflowcore/internal/infrastructure/lock"
	"github.com/smilemakc/workflowcore/internal/infrastructure/logger"
	"github.com/smilemakc/workflowcore/internal/infrastructure/storage/models"
	"github.com/smilemakc/workflowcore/pkg/actions"
	"github.com/smilemakc/workflowcore/pkg/eventsourcing"
	"github.com/smilemakc/workflowcore/pkg/streamevent"
)

type fakeExecutionRepository struct {
	mu  sync.Mutex
	rows map[uuid.UUID]*models.WorkflowExecutionModel
}

func newFakeExecutionRepository() *fakeExecutionRepository {
	return &fakeExecutionRepository{rows: make(map[uuid.UUID]*models.WorkflowExecutionModel)}
}

func (f *fakeExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecutionModel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if execution.ID == uuid.Nil {
		execution.ID = uuid.New()
	}
	f.rows[execution.ID] = execution
	return nil
}

func (f *fakeExecutionRepository) FindByID(ctx context.Context, tenant string, id uuid.UUID) (*models.WorkflowExecutionModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || row.Tenant != tenant {
		return nil, nil
	}
	return row, nil
}

func (f *fakeExecutionRepository) UpdateState(ctx context.Context, execution *models.WorkflowExecutionModel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[execution.ID] = execution
	return nil
}

type fakeEventRepo struct {
	mu     sync.Mutex
	events map[uuid.UUID][]*models.WorkflowEventModel
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: make(map[uuid.UUID][]*models.WorkflowEventModel)}
}

func (f *fakeEventRepo) Append(ctx context.Context, event *models.WorkflowEventModel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	f.events[event.ExecutionID] = append(f.events[event.ExecutionID], event)
	return nil
}

func (f *fakeEventRepo) FindByID(ctx context.Context, tenant string, id uuid.UUID) (*models.WorkflowEventModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, events := range f.events {
		for _, e := range events {
			if e.ID == id && e.Tenant == tenant {
				return e, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeEventRepo) ListForExecution(ctx context.Context, tenant string, executionID uuid.UUID, upTo *time.Time) ([]*models.WorkflowEventModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.WorkflowEventModel
	for _, e := range f.events[executionID] {
		if e.Tenant != tenant {
			continue
		}
		if upTo != nil && e.CreatedAt.After(*upTo) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeEventRepo) SetToState(ctx context.Context, tenant string, id uuid.UUID, toState string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, events := range f.events {
		for _, e := range events {
			if e.ID == id && e.Tenant == tenant {
				e.ToState = &toState
				return nil
			}
		}
	}
	return nil
}

type fakeProcessingRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.WorkflowEventProcessingModel
}

func newFakeProcessingRepository() *fakeProcessingRepository {
	return &fakeProcessingRepository{rows: make(map[uuid.UUID]*models.WorkflowEventProcessingModel)}
}

func (f *fakeProcessingRepository) Create(ctx context.Context, row *models.WorkflowEventProcessingModel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	f.rows[row.ID] = row
	return nil
}

func (f *fakeProcessingRepository) FindByID(ctx context.Context, tenant string, id uuid.UUID) (*models.WorkflowEventProcessingModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || row.Tenant != tenant {
		return nil, nil
	}
	return row, nil
}

func (f *fakeProcessingRepository) FindByEventID(ctx context.Context, tenant string, eventID uuid.UUID) (*models.WorkflowEventProcessingModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.EventID == eventID && row.Tenant == tenant {
			return row, nil
		}
	}
	return nil, nil
}

func (f *fakeProcessingRepository) UpdateStatus(ctx context.Context, row *models.WorkflowEventProcessingModel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[row.ID] = row
	return nil
}

type fakeActionResultRepo struct {
	mu    sync.Mutex
	byKey map[string]*models.WorkflowActionResultModel
}

func newFakeActionResultRepo() *fakeActionResultRepo {
	return &fakeActionResultRepo{byKey: make(map[string]*models.WorkflowActionResultModel)}
}

func (f *fakeActionResultRepo) FindByIdempotencyKey(ctx context.Context, tenant, idempotencyKey string) (*models.WorkflowActionResultModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byKey[tenant+"/"+idempotencyKey], nil
}

func (f *fakeActionResultRepo) Create(ctx context.Context, result *models.WorkflowActionResultModel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	f.byKey[result.Tenant+"/"+result.IdempotencyKey] = result
	return nil
}

func (f *fakeActionResultRepo) Update(ctx context.Context, result *models.WorkflowActionResultModel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byKey[result.Tenant+"/"+result.IdempotencyKey] = result
	return nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) RunDistributedTransaction(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeStreamPublisher struct {
	mu        sync.Mutex
	published []streamevent.Event
}

func (f *fakeStreamPublisher) Publish(ctx context.Context, streamName string, event streamevent.Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, event)
	return "1-0", nil
}

type fakeLocker struct {
	mu      sync.Mutex
	held    map[string]string
	failAcq bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]string)}
}

func (f *fakeLocker) Acquire(ctx context.Context, key, owner string, opts lock.Options) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAcq {
		return false, nil
	}
	if _, taken := f.held[key]; taken {
		return false, nil
	}
	f.held[key] = owner
	return true, nil
}

func (f *fakeLocker) Release(ctx context.Context, key, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, key)
	return nil
}

func newTestRuntime(t *testing.T) (*Runtime, *fakeExecutionRepository, *fakeEventRepo, *fakeProcessingRepository, *fakeStreamPublisher, *fakeLocker) {
	t.Helper()

	executions := newFakeExecutionRepository()
	events := newFakeEventRepo()
	processing := newFakeProcessingRepository()
	registry := actions.NewRegistry(newFakeActionResultRepo())
	engine := eventsourcing.NewEngine(events, eventsourcing.NewCache(time.Minute))
	streamPub := &fakeStreamPublisher{}
	locker := newFakeLocker()

	rt := New(Deps{
		Executions: executions,
		Events:     events,
		Processing: processing,
		Actions:    registry,
		Engine:     engine,
		Tx:         fakeTxRunner{},
		Stream:     streamPub,
		Locks:      locker,
		Config:     Config{LockTTL: time.Second, LockWaitTime: time.Millisecond, MaxRetries: 3},
		Logger:     logger.Default(),
	})
	return rt, executions, events, processing, streamPub, locker
}

func blockingDefinition(name string) Definition {
	return Definition{
		Name:    name,
		Version: "v1",
		Execute: func(ctx *WorkflowContext) error {
			_, err := ctx.Events().WaitFor("never-comes")
			return err
		},
	}
}

func TestRuntime_GetDefinition_UnknownWorkflow(t *testing.T) {
	rt, _, _, _, _, _ := newTestRuntime(t)
	_, err := rt.GetDefinition(context.Background(), "tenant-a", "missing", "")
	assert.Error(t, err)
}

func TestRuntime_GetDefinition_SingleVersionFallback(t *testing.T) {
	rt, _, _, _, _, _ := newTestRuntime(t)
	rt.RegisterWorkflow(Definition{Name: "wf", Version: "v1", Execute: func(ctx *WorkflowContext) error { return nil }})

	def, err := rt.GetDefinition(context.Background(), "tenant-a", "wf", "")
	require.NoError(t, err)
	assert.Equal(t, "v1", def.Version)
}

func TestRuntime_GetDefinition_ExplicitVersionNotFound(t *testing.T) {
	rt, _, _, _, _, _ := newTestRuntime(t)
	rt.RegisterWorkflow(Definition{Name: "wf", Version: "v1", Execute: func(ctx *WorkflowContext) error { return nil }})

	_, err := rt.GetDefinition(context.Background(), "tenant-a", "wf", "v2")
	assert.Error(t, err)
}

func TestRuntime_StartExecution_CreatesExecutionAndStartEvent(t *testing.T) {
	rt, executions, events, _, _, _ := newTestRuntime(t)
	rt.RegisterWorkflow(Definition{
		Name: "noop", Version: "v1",
		Execute: func(ctx *WorkflowContext) error { return ctx.SetState("done") },
	})

	result, err := rt.StartExecution(context.Background(), StartOptions{
		Tenant: "tenant-a", WorkflowName: "noop", InitialData: map[string]interface{}{"k": "v"},
	})
	require.NoError(t, err)
	assert.Equal(t, "initial", result.CurrentState)
	assert.False(t, result.IsComplete)

	execution, err := executions.FindByID(context.Background(), "tenant-a", result.ExecutionID)
	require.NoError(t, err)
	require.NotNil(t, execution)
	assert.Equal(t, "noop", execution.WorkflowName)

	logged, err := events.ListForExecution(context.Background(), "tenant-a", result.ExecutionID, nil)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, eventsourcing.EventWorkflowStarted, logged[0].EventName)
}

func TestRuntime_StartExecution_RunsBodyToCompletion(t *testing.T) {
	rt, executions, _, _, _, _ := newTestRuntime(t)
	rt.RegisterWorkflow(Definition{
		Name: "immediate", Version: "v1",
		Execute: func(ctx *WorkflowContext) error { return ctx.SetState("finished") },
	})

	result, err := rt.StartExecution(context.Background(), StartOptions{Tenant: "tenant-a", WorkflowName: "immediate"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		execution, _ := executions.FindByID(context.Background(), "tenant-a", result.ExecutionID)
		return execution != nil && execution.CurrentState == "finished"
	}, time.Second, 5*time.Millisecond)
}

func TestRuntime_StartExecution_PanicRecordsFailure(t *testing.T) {
	rt, executions, events, _, _, _ := newTestRuntime(t)
	rt.RegisterWorkflow(Definition{
		Name: "panics", Version: "v1",
		Execute: func(ctx *WorkflowContext) error { panic("boom") },
	})

	result, err := rt.StartExecution(context.Background(), StartOptions{Tenant: "tenant-a", WorkflowName: "panics"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		execution, _ := executions.FindByID(context.Background(), "tenant-a", result.ExecutionID)
		return execution != nil && execution.Status == "failed"
	}, time.Second, 5*time.Millisecond)

	logged, err := events.ListForExecution(context.Background(), "tenant-a", result.ExecutionID, nil)
	require.NoError(t, err)
	var sawFailed bool
	for _, e := range logged {
		if e.EventName == "workflow.failed" {
			sawFailed = true
		}
	}
	assert.True(t, sawFailed)
}

func TestRuntime_SubmitEvent_DrivesSuspendedExecutionForward(t *testing.T) {
	rt, executions, _, _, _, _ := newTestRuntime(t)
	rt.RegisterWorkflow(blockingDefinition("waiter"))

	started, err := rt.StartExecution(context.Background(), StartOptions{Tenant: "tenant-a", WorkflowName: "waiter"})
	require.NoError(t, err)
	assert.False(t, started.IsComplete)

	state, err := rt.SubmitEvent(context.Background(), SubmitEventOptions{
		Tenant: "tenant-a", ExecutionID: started.ExecutionID, EventName: "never-comes", EventType: "workflow",
	})
	require.NoError(t, err)
	assert.True(t, state.IsComplete)

	execution, err := executions.FindByID(context.Background(), "tenant-a", started.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "completed", execution.Status)
}

func TestRuntime_SubmitEventSync_DoesNotDriveExecuteForward(t *testing.T) {
	rt, executions, _, _, _, _ := newTestRuntime(t)
	rt.RegisterWorkflow(blockingDefinition("waiter-sync"))

	started, err := rt.StartExecution(context.Background(), StartOptions{Tenant: "tenant-a", WorkflowName: "waiter-sync"})
	require.NoError(t, err)

	result, err := rt.SubmitEventSync(context.Background(), SubmitEventOptions{
		Tenant: "tenant-a", ExecutionID: started.ExecutionID, EventName: "never-comes", EventType: "workflow",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.CurrentState)

	execution, err := executions.FindByID(context.Background(), "tenant-a", started.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "active", execution.Status)
}

func TestRuntime_SubmitEventSync_UnknownExecution(t *testing.T) {
	rt, _, _, _, _, _ := newTestRuntime(t)
	_, err := rt.SubmitEventSync(context.Background(), SubmitEventOptions{
		Tenant: "tenant-a", ExecutionID: uuid.New(), EventName: "x", EventType: "workflow",
	})
	assert.Error(t, err)
}

func TestRuntime_EnqueueEvent_PublishesAndMarksProcessingPublished(t *testing.T) {
	rt, _, _, processing, streamPub, _ := newTestRuntime(t)
	rt.RegisterWorkflow(blockingDefinition("enqueue-target"))

	started, err := rt.StartExecution(context.Background(), StartOptions{Tenant: "tenant-a", WorkflowName: "enqueue-target"})
	require.NoError(t, err)

	result, err := rt.EnqueueEvent(context.Background(), EnqueueOptions{
		Tenant: "tenant-a", ExecutionID: started.ExecutionID, EventName: "never-comes", EventType: "workflow",
	})
	require.NoError(t, err)

	row, err := processing.FindByID(context.Background(), "tenant-a", result.ProcessingID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingStatusPublished, row.Status)
	assert.Len(t, streamPub.published, 1)
}

func TestRuntime_EnqueueEvent_UnknownExecution(t *testing.T) {
	rt, _, _, _, _, _ := newTestRuntime(t)
	_, err := rt.EnqueueEvent(context.Background(), EnqueueOptions{
		Tenant: "tenant-a", ExecutionID: uuid.New(), EventName: "x", EventType: "workflow",
	})
	assert.Error(t, err)
}

func TestRuntime_ProcessQueuedEvent_AdvancesStateAndCompletesRow(t *testing.T) {
	rt, executions, _, processing, _, _ := newTestRuntime(t)
	rt.RegisterWorkflow(blockingDefinition("process-target"))

	started, err := rt.StartExecution(context.Background(), StartOptions{Tenant: "tenant-a", WorkflowName: "process-target"})
	require.NoError(t, err)

	enqueued, err := rt.EnqueueEvent(context.Background(), EnqueueOptions{
		Tenant: "tenant-a", ExecutionID: started.ExecutionID, EventName: "never-comes", EventType: "workflow",
	})
	require.NoError(t, err)

	err = rt.ProcessQueuedEvent(context.Background(), ProcessOptions{
		Tenant: "tenant-a", ProcessingID: enqueued.ProcessingID, WorkerID: "worker-1",
	})
	require.NoError(t, err)

	row, err := processing.FindByID(context.Background(), "tenant-a", enqueued.ProcessingID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingStatusCompleted, row.Status)

	execution, err := executions.FindByID(context.Background(), "tenant-a", started.ExecutionID)
	require.NoError(t, err)
	assert.NotEmpty(t, execution.CurrentState)
}

func TestRuntime_ProcessQueuedEvent_LockContentionFails(t *testing.T) {
	rt, _, _, processing, _, locker := newTestRuntime(t)
	rt.RegisterWorkflow(blockingDefinition("lock-target"))

	started, err := rt.StartExecution(context.Background(), StartOptions{Tenant: "tenant-a", WorkflowName: "lock-target"})
	require.NoError(t, err)

	enqueued, err := rt.EnqueueEvent(context.Background(), EnqueueOptions{
		Tenant: "tenant-a", ExecutionID: started.ExecutionID, EventName: "never-comes", EventType: "workflow",
	})
	require.NoError(t, err)

	locker.failAcq = true
	err = rt.ProcessQueuedEvent(context.Background(), ProcessOptions{
		Tenant: "tenant-a", ProcessingID: enqueued.ProcessingID, WorkerID: "worker-1",
	})
	assert.Error(t, err)

	row, err := processing.FindByID(context.Background(), "tenant-a", enqueued.ProcessingID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingStatusPublished, row.Status)
}

func TestRuntime_ProcessQueuedEvent_UnknownProcessingRecord(t *testing.T) {
	rt, _, _, _, _, _ := newTestRuntime(t)
	err := rt.ProcessQueuedEvent(context.Background(), ProcessOptions{Tenant: "tenant-a", ProcessingID: uuid.New(), WorkerID: "w"})
	assert.Error(t, err)
}

func TestRuntime_WaitForCompletion_TimesOut(t *testing.T) {
	rt, _, _, _, _, _ := newTestRuntime(t)
	rt.RegisterWorkflow(blockingDefinition("never-done"))

	started, err := rt.StartExecution(context.Background(), StartOptions{Tenant: "tenant-a", WorkflowName: "never-done"})
	require.NoError(t, err)

	_, err = rt.WaitForCompletion(context.Background(), "tenant-a", started.ExecutionID, 5*time.Millisecond, 20*time.Millisecond)
	assert.Error(t, err)
}

func TestRuntime_WaitForCompletion_ReturnsOnceComplete(t *testing.T) {
	rt, _, _, _, _, _ := newTestRuntime(t)
	rt.RegisterWorkflow(Definition{
		Name: "quick", Version: "v1",
		Execute: func(ctx *WorkflowContext) error { return ctx.SetState("done") },
	})

	started, err := rt.StartExecution(context.Background(), StartOptions{Tenant: "tenant-a", WorkflowName: "quick"})
	require.NoError(t, err)

	state, err := rt.WaitForCompletion(context.Background(), "tenant-a", started.ExecutionID, 5*time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.True(t, state.IsComplete)
}

func TestWorkflowContext_DataSetAndGet(t *testing.T) {
	rt, _, _, _, _, _ := newTestRuntime(t)
	rt.RegisterWorkflow(Definition{
		Name: "data-wf", Version: "v1",
		Execute: func(ctx *WorkflowContext) error {
			if err := ctx.Data().Set("amount", float64(10)); err != nil {
				return err
			}
			_, err := ctx.Events().WaitFor("never-comes")
			return err
		},
	})

	started, err := rt.StartExecution(context.Background(), StartOptions{Tenant: "tenant-a", WorkflowName: "data-wf"})
	require.NoError(t, err)
	assert.False(t, started.IsComplete)

	value, ok := (&DataProxy{wc: &WorkflowContext{runtime: rt, tenant: "tenant-a", executionID: started.ExecutionID, Context: context.Background()}}).Get("amount")
	assert.True(t, ok)
	assert.Equal(t, float64(10), value)
}

func TestWorkflowContext_DataSet_DoesNotReappendOnReplay(t *testing.T) {
	rt, _, events, _, _, _ := newTestRuntime(t)
	setCalls := 0
	rt.RegisterWorkflow(Definition{
		Name: "data-replay", Version: "v1",
		Execute: func(ctx *WorkflowContext) error {
			if err := ctx.Data().Set("amount", float64(10)); err != nil {
				return err
			}
			setCalls++
			_, err := ctx.Events().WaitFor("never-comes")
			return err
		},
	})

	started, err := rt.StartExecution(context.Background(), StartOptions{Tenant: "tenant-a", WorkflowName: "data-replay"})
	require.NoError(t, err)

	_, err = rt.SubmitEventSync(context.Background(), SubmitEventOptions{
		Tenant: "tenant-a", ExecutionID: started.ExecutionID, EventName: "some-other-event", EventType: "workflow",
	})
	require.NoError(t, err)
	_, err = rt.advance(context.Background(), defRef(rt, "data-replay"), "tenant-a", started.ExecutionID)
	require.NoError(t, err)

	assert.Equal(t, 2, setCalls)
	logged, err := events.ListForExecution(context.Background(), "tenant-a", started.ExecutionID, nil)
	require.NoError(t, err)
	dataSets := 0
	for _, e := range logged {
		if e.EventName == "workflow.data_set" {
			dataSets++
		}
	}
	assert.Equal(t, 1, dataSets)
}

func defRef(rt *Runtime, name string) *Definition {
	def, err := rt.GetDefinition(context.Background(), "tenant-a", name, "")
	if err != nil {
		panic(err)
	}
	return def
}

func TestWorkflowContext_ActionsCallInvokesRegisteredAction(t *testing.T) {
	rt, _, _, _, _, _ := newTestRuntime(t)
	var sawParam string
	calls := 0
	rt.actions.Register("record", "", []actions.Parameter{{Name: "note", Required: true, Tag: "required"}},
		func(ctx actions.Context, params map[string]interface{}) (map[string]interface{}, error) {
			calls++
			sawParam = params["note"].(string)
			return map[string]interface{}{"ok": true}, nil
		})

	rt.RegisterWorkflow(Definition{
		Name: "calls-action", Version: "v1",
		Execute: func(ctx *WorkflowContext) error {
			_, err := ctx.Actions().Call("record", map[string]interface{}{"note": "hello"})
			if err != nil {
				return err
			}
			_, err = ctx.Events().WaitFor("never-comes")
			return err
		},
	})

	started, err := rt.StartExecution(context.Background(), StartOptions{Tenant: "tenant-a", WorkflowName: "calls-action"})
	require.NoError(t, err)
	assert.False(t, started.IsComplete)
	assert.Equal(t, "hello", sawParam)
	assert.Equal(t, 1, calls)

	_, err = rt.SubmitEventSync(context.Background(), SubmitEventOptions{
		Tenant: "tenant-a", ExecutionID: started.ExecutionID, EventName: "some-other-event", EventType: "workflow",
	})
	require.NoError(t, err)
	def := defRef(rt, "calls-action")
	_, err = rt.advance(context.Background(), def, "tenant-a", started.ExecutionID)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "replaying should hit the idempotent Action Result, not invoke the executor again")
}

// newSharedRuntime builds a Runtime over the given shared persistence fakes
// but its own actions registry and event-sourcing engine/cache, the way two
// separate worker processes each wire their own in-process collaborators
// over the same database and broker.
func newSharedRuntime(
	executions *fakeExecutionRepository,
	events *fakeEventRepo,
	processing *fakeProcessingRepository,
	streamPub *fakeStreamPublisher,
	locker *fakeLocker,
) *Runtime {
	registry := actions.NewRegistry(newFakeActionResultRepo())
	engine := eventsourcing.NewEngine(events, eventsourcing.NewCache(time.Minute))
	return New(Deps{
		Executions: executions,
		Events:     events,
		Processing: processing,
		Actions:    registry,
		Engine:     engine,
		Tx:         fakeTxRunner{},
		Stream:     streamPub,
		Locks:      locker,
		Config:     Config{LockTTL: time.Second, LockWaitTime: time.Millisecond, MaxRetries: 3},
		Logger:     logger.Default(),
	})
}

func TestRuntime_CrossProcess_OtherWorkerAdvancesExecutionStartedElsewhere(t *testing.T) {
	executions := newFakeExecutionRepository()
	events := newFakeEventRepo()
	processing := newFakeProcessingRepository()
	streamPub := &fakeStreamPublisher{}
	locker := newFakeLocker()

	rtA := newSharedRuntime(executions, events, processing, streamPub, locker)
	rtB := newSharedRuntime(executions, events, processing, streamPub, locker)

	rtA.RegisterWorkflow(blockingDefinition("approval"))
	rtB.RegisterWorkflow(blockingDefinition("approval"))

	started, err := rtA.StartExecution(context.Background(), StartOptions{Tenant: "tenant-a", WorkflowName: "approval"})
	require.NoError(t, err)
	assert.False(t, started.IsComplete)

	enqueued, err := rtA.EnqueueEvent(context.Background(), EnqueueOptions{
		Tenant: "tenant-a", ExecutionID: started.ExecutionID, EventName: "never-comes", EventType: "workflow",
	})
	require.NoError(t, err)

	err = rtB.ProcessQueuedEvent(context.Background(), ProcessOptions{
		Tenant: "tenant-a", ProcessingID: enqueued.ProcessingID, WorkerID: "worker-b",
	})
	require.NoError(t, err)

	state, err := rtA.GetExecutionState(context.Background(), "tenant-a", started.ExecutionID)
	require.NoError(t, err)
	assert.True(t, state.IsComplete)

	execution, err := executions.FindByID(context.Background(), "tenant-a", started.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "completed", execution.Status)
}

func TestRuntime_CrossProcess_OtherWorkerSubmitsTriggerEventStartedElsewhere(t *testing.T) {
	executions := newFakeExecutionRepository()
	events := newFakeEventRepo()
	processing := newFakeProcessingRepository()
	streamPub := &fakeStreamPublisher{}
	locker := newFakeLocker()

	rtA := newSharedRuntime(executions, events, processing, streamPub, locker)
	rtB := newSharedRuntime(executions, events, processing, streamPub, locker)

	waitsOnTrigger := Definition{
		Name: "seeded", Version: "v1",
		Execute: func(ctx *WorkflowContext) error {
			if _, err := ctx.Events().WaitFor("trigger"); err != nil {
				return err
			}
			return ctx.SetState("triggered")
		},
	}
	rtA.RegisterWorkflow(waitsOnTrigger)
	rtB.RegisterWorkflow(waitsOnTrigger)

	started, err := rtA.StartExecution(context.Background(), StartOptions{Tenant: "tenant-a", WorkflowName: "seeded"})
	require.NoError(t, err)
	assert.False(t, started.IsComplete)

	state, err := rtB.SubmitEvent(context.Background(), SubmitEventOptions{
		Tenant: "tenant-a", ExecutionID: started.ExecutionID, EventName: "trigger", EventType: "workflow",
	})
	require.NoError(t, err)
	assert.True(t, state.IsComplete)
	assert.Equal(t, "triggered", state.CurrentState)
}

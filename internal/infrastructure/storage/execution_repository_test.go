package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/smilemakc/workflowcore/internal/infrastructure/storage/models"
)

func newMockExecutionRepo(t *testing.T) (*ExecutionRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	bunDB := bun.NewDB(db, pgdialect.New())
	return NewExecutionRepository(bunDB), mock
}

func executionColumns() []string {
	return []string{
		"id", "tenant", "workflow_name", "workflow_version", "current_state",
		"status", "context_data", "user_id", "error_message",
		"started_at", "completed_at", "created_at", "updated_at",
	}
}

func TestExecutionRepository_Create_Success(t *testing.T) {
	repo, mock := newMockExecutionRepo(t)

	mock.ExpectQuery("^INSERT INTO \"workflow_executions\"").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New()))

	execution := &models.WorkflowExecutionModel{
		Tenant:          "tenant-a",
		WorkflowName:    "onboarding",
		WorkflowVersion: "v1",
	}

	err := repo.Create(context.Background(), execution)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionRepository_FindByID_Success(t *testing.T) {
	repo, mock := newMockExecutionRepo(t)

	id := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows(executionColumns()).AddRow(
		id, "tenant-a", "onboarding", "v1", "awaiting_approval",
		"active", []byte("{}"), "", "",
		now, nil, now, now,
	)
	mock.ExpectQuery("^SELECT").WillReturnRows(rows)

	found, err := repo.FindByID(context.Background(), "tenant-a", id)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, id, found.ID)
	assert.Equal(t, "awaiting_approval", found.CurrentState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionRepository_FindByID_NotFound(t *testing.T) {
	repo, mock := newMockExecutionRepo(t)

	mock.ExpectQuery("^SELECT").WillReturnRows(sqlmock.NewRows(executionColumns()))

	found, err := repo.FindByID(context.Background(), "tenant-a", uuid.New())
	require.NoError(t, err)
	assert.Nil(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionRepository_FindByID_PropagatesQueryError(t *testing.T) {
	repo, mock := newMockExecutionRepo(t)

	mock.ExpectQuery("^SELECT").WillReturnError(assert.AnError)

	found, err := repo.FindByID(context.Background(), "tenant-a", uuid.New())
	assert.Error(t, err)
	assert.Nil(t, found)
}

func TestExecutionRepository_UpdateState_Success(t *testing.T) {
	repo, mock := newMockExecutionRepo(t)

	mock.ExpectExec("^UPDATE \"workflow_executions\"").
		WillReturnResult(sqlmock.NewResult(0, 1))

	execution := &models.WorkflowExecutionModel{
		ID:           uuid.New(),
		Tenant:       "tenant-a",
		CurrentState: "completed",
		Status:       "completed",
	}

	err := repo.UpdateState(context.Background(), execution)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionRepository_UpdateState_PropagatesExecError(t *testing.T) {
	repo, mock := newMockExecutionRepo(t)

	mock.ExpectExec("^UPDATE").WillReturnError(assert.AnError)

	err := repo.UpdateState(context.Background(), &models.WorkflowExecutionModel{
		ID:     uuid.New(),
		Tenant: "tenant-a",
	})
	assert.Error(t, err)
}

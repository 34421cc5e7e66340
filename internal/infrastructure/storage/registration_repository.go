package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/smilemakc/workflowcore/internal/domain/repository"
	"github.com/smilemakc/workflowcore/internal/infrastructure/storage/models"
)

var _ repository.RegistrationRepository = (*RegistrationRepository)(nil)

// RegistrationRepository implements repository.RegistrationRepository using Bun.
type RegistrationRepository struct {
	db *bun.DB
}

// NewRegistrationRepository creates a new RegistrationRepository.
func NewRegistrationRepository(db *bun.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// FindCurrentVersion loads a registration and whichever version is marked
// current.
func (r *RegistrationRepository) FindCurrentVersion(ctx context.Context, tenant, name string) (*models.WorkflowRegistrationModel, *models.WorkflowRegistrationVersionModel, error) {
	reg := new(models.WorkflowRegistrationModel)
	err := r.db.NewSelect().Model(reg).Where("tenant = ? AND name = ?", tenant, name).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("find registration %s: %w", name, err)
	}

	version := new(models.WorkflowRegistrationVersionModel)
	err = r.db.NewSelect().
		Model(version).
		Where("tenant = ? AND registration_id = ? AND is_current = TRUE", tenant, reg.ID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reg, nil, nil
		}
		return reg, nil, fmt.Errorf("find current version of %s: %w", name, err)
	}
	return reg, version, nil
}

// FindVersion loads a registration and a specific named version.
func (r *RegistrationRepository) FindVersion(ctx context.Context, tenant, name, version string) (*models.WorkflowRegistrationModel, *models.WorkflowRegistrationVersionModel, error) {
	reg := new(models.WorkflowRegistrationModel)
	err := r.db.NewSelect().Model(reg).Where("tenant = ? AND name = ?", tenant, name).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("find registration %s: %w", name, err)
	}

	v := new(models.WorkflowRegistrationVersionModel)
	err = r.db.NewSelect().
		Model(v).
		Where("tenant = ? AND registration_id = ? AND version = ?", tenant, reg.ID, version).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reg, nil, nil
		}
		return reg, nil, fmt.Errorf("find version %s of %s: %w", version, name, err)
	}
	return reg, v, nil
}

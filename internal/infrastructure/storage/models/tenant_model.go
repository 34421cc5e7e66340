package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TenantModel is the top-level isolation boundary every other row is scoped by.
type TenantModel struct {
	bun.BaseModel `bun:"table:tenants,alias:tn"`

	Tenant    string    `bun:"tenant,pk" json:"tenant"`
	Name      string    `bun:"name,notnull" json:"name"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// BeforeInsert sets the creation timestamp.
func (t *TenantModel) BeforeInsert(ctx interface{}) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	return nil
}

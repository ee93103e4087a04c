package audit

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"autoheal/pkg/db/migrations"
)

// Filter narrows a History query. Zero values are ignored.
type Filter struct {
	InstanceID   string
	InvocationID string
	Status       string
	Since        time.Time
	Limit        int
}

// History reads audit records through gorm.
type History struct {
	orm *gorm.DB
}

// NewHistory creates a History bound to orm.
func NewHistory(orm *gorm.DB) (*History, error) {
	if orm == nil {
		return nil, errors.New("orm is required")
	}
	return &History{orm: orm}, nil
}

// List returns matching records, newest first.
func (h *History) List(ctx context.Context, f Filter) ([]migrations.HealingAudit, error) {
	q := h.orm.WithContext(ctx).Model(&migrations.HealingAudit{})
	if f.InstanceID != "" {
		q = q.Where("instance_id = ?", f.InstanceID)
	}
	if f.InvocationID != "" {
		q = q.Where("invocation_id = ?", f.InvocationID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if !f.Since.IsZero() {
		q = q.Where("at >= ?", f.Since)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	var out []migrations.HealingAudit
	if err := q.Order("at DESC").Order("id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

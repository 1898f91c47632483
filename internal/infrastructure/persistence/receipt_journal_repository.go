package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/receiving/internal/domain/receiving"
	"github.com/erp/receiving/internal/domain/shared"
	"github.com/erp/receiving/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormReceiptJournal implements receiving.ReceiptJournal using GORM
type GormReceiptJournal struct {
	db *gorm.DB
}

// NewGormReceiptJournal creates a new GormReceiptJournal
func NewGormReceiptJournal(db *gorm.DB) *GormReceiptJournal {
	return &GormReceiptJournal{db: db}
}

// Record inserts one attempt. Attempts are append-only.
func (r *GormReceiptJournal) Record(ctx context.Context, attempt *receiving.ReceiptAttempt) error {
	if attempt == nil {
		return shared.NewDomainError("INVALID_INPUT", "Receipt attempt cannot be nil")
	}
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	model := models.ReceiptAttemptModelFromDomain(attempt)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to record receipt attempt: %w", err)
	}
	return nil
}

// ListByOrder returns the attempts for one order, newest first
func (r *GormReceiptJournal) ListByOrder(ctx context.Context, tenantID, orderID uuid.UUID, filter shared.Filter) (shared.Paginated[receiving.ReceiptAttempt], error) {
	filter = filter.Normalize()
	scoped := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Model(&models.ReceiptAttemptModel{}).
			Where("tenant_id = ? AND order_id = ?", tenantID, orderID)
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return shared.Paginated[receiving.ReceiptAttempt]{}, fmt.Errorf("failed to count receipt attempts: %w", err)
	}

	var rows []models.ReceiptAttemptModel
	err := scoped().
		Order("attempted_at DESC").
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error
	if err != nil {
		return shared.Paginated[receiving.ReceiptAttempt]{}, fmt.Errorf("failed to list receipt attempts: %w", err)
	}

	attempts := make([]receiving.ReceiptAttempt, len(rows))
	for i := range rows {
		attempts[i] = rows[i].ToDomain()
	}
	return shared.NewPaginated(attempts, total, filter.Page, filter.PageSize), nil
}

// PurgeBefore deletes the attempts made before cutoff, across all tenants,
// and returns how many rows were removed
func (r *GormReceiptJournal) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("attempted_at < ?", cutoff).
		Delete(&models.ReceiptAttemptModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge receipt attempts: %w", result.Error)
	}
	return result.RowsAffected, nil
}

var _ receiving.ReceiptJournal = (*GormReceiptJournal)(nil)

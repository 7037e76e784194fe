package assignments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tidyops/tidyops-backend/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an assignments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) UpsertAssignment(ctx context.Context, assignment *models.Assignment) (*models.Assignment, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "booking_id"},
				{Name: "assignee_type"},
				{Name: "assignee_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"role", "status", "checklist_total", "checklist_completed", "updated_at",
			}),
		}).
		Create(assignment).Error
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

func (r *repository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Assignment, error) {
	var rows []models.Assignment
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

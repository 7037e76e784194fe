package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tidyops/tidyops-backend/pkg/enums"
)

// Assignment links a person or crew to a booking. Rows are maintained by the
// staffing collaborator; the core only reads them for readiness aggregation,
// which counts rows whose status is still active. ChecklistCompleted never
// exceeds ChecklistTotal.
type Assignment struct {
	ID                 uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID          uuid.UUID              `gorm:"column:booking_id;type:uuid;not null;index:idx_assignments_booking"`
	AssigneeType       enums.AssigneeType     `gorm:"column:assignee_type;type:assignee_type;not null"`
	AssigneeID         uuid.UUID              `gorm:"column:assignee_id;type:uuid;not null"`
	Role               *string                `gorm:"column:role"`
	Status             enums.AssignmentStatus `gorm:"column:status;type:assignment_status;not null;default:'assigned'"`
	ChecklistTotal     int                    `gorm:"column:checklist_total;not null;default:0"`
	ChecklistCompleted int                    `gorm:"column:checklist_completed;not null;default:0"`
	CreatedAt          time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

package charges

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tidyops/tidyops-backend/pkg/db/models"
	"github.com/tidyops/tidyops-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a charges repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateAttempt(ctx context.Context, attempt *models.ChargeAttempt) (*models.ChargeAttempt, error) {
	if err := r.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return nil, err
	}
	return attempt, nil
}

func (r *repository) FindAttemptByID(ctx context.Context, id uuid.UUID) (*models.ChargeAttempt, error) {
	var attempt models.ChargeAttempt
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *repository) FindOpenAttemptByBooking(ctx context.Context, bookingID uuid.UUID) (*models.ChargeAttempt, error) {
	var attempt models.ChargeAttempt
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Where("status IN ?", []enums.ChargeAttemptStatus{
			enums.ChargeAttemptStatusProcessing,
			enums.ChargeAttemptStatusRequiresAction,
		}).
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *repository) FindAttemptBySquarePaymentID(ctx context.Context, paymentID string) (*models.ChargeAttempt, error) {
	var attempt models.ChargeAttempt
	err := r.db.WithContext(ctx).
		Where("square_payment_id = ?", paymentID).
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *repository) ListAttemptsByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.ChargeAttempt, error) {
	var attempts []models.ChargeAttempt
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("ordinal ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *repository) CountAttemptsByBooking(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ChargeAttempt{}).
		Where("booking_id = ?", bookingID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) UpdateAttempt(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.ChargeAttempt{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) CreatePaymentMethod(ctx context.Context, method *models.PaymentMethod) (*models.PaymentMethod, error) {
	if err := r.db.WithContext(ctx).Create(method).Error; err != nil {
		return nil, err
	}
	return method, nil
}

func (r *repository) FindDefaultPaymentMethod(ctx context.Context, customerID uuid.UUID) (*models.PaymentMethod, error) {
	var method models.PaymentMethod
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Where("is_default = ?", true).
		Where("disabled_at IS NULL").
		First(&method).Error
	if err != nil {
		return nil, err
	}
	return &method, nil
}

func (r *repository) ClearDefaultPaymentMethods(ctx context.Context, customerID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentMethod{}).
		Where("customer_id = ?", customerID).
		Where("is_default = ?", true).
		Update("is_default", false).Error
}

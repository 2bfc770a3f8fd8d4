package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"dae2blend/internal/models"
)

// ConversionRepository stores the ledger of conversion runs.
type ConversionRepository struct {
	db *gorm.DB
}

func NewConversionRepository(db *gorm.DB) *ConversionRepository {
	return &ConversionRepository{db: db}
}

// Create inserts a finished conversion.
func (r *ConversionRepository) Create(ctx context.Context, c *models.Conversion) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// Get retrieves a conversion by its ID.
func (r *ConversionRepository) Get(ctx context.Context, id uuid.UUID) (*models.Conversion, error) {
	var c models.Conversion
	err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error
	return &c, err
}

// Recent returns up to limit conversions, newest first.
func (r *ConversionRepository) Recent(ctx context.Context, limit int) ([]models.Conversion, error) {
	var conversions []models.Conversion
	q := r.db.WithContext(ctx).Order("started_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&conversions).Error
	return conversions, err
}

// ListByStatus returns up to limit conversions with the given status, newest
// first.
func (r *ConversionRepository) ListByStatus(ctx context.Context, status string, limit int) ([]models.Conversion, error) {
	var conversions []models.Conversion
	q := r.db.WithContext(ctx).Where("status = ?", status).Order("started_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&conversions).Error
	return conversions, err
}

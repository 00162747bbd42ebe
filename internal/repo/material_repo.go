// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for
// LearningMaterial.
//
// Materials are addressed by their logical ID (column material_id). The
// storage RowID is assigned on insert and never accepted from callers.
//
// Error semantics:
//   - GetMaterial returns ErrNotFound when no row matches.
//   - UpdateMaterialAudio and DeleteMaterial report the number of rows
//     affected; a missing ID is 0, not an error.
//   - A duplicate ID surfaces the raw driver error (see IsDuplicate).
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/news-archive/internal/domain"
)

// CreateMaterial inserts m, discarding any caller-supplied RowID. CreatedAt
// is stored in UTC; UpdatedAt is always the insert time.
func CreateMaterial(ctx context.Context, db *gorm.DB, m *domain.LearningMaterial) error {
	m.RowID = 0
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Create(m).Error
}

// CountMaterials returns the total number of stored materials.
func CountMaterials(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.LearningMaterial{}).Count(&total).Error
	return total, err
}

// ListMaterialsPage returns page (1-based) of materials, newest first.
// Pages past the end yield an empty slice.
func ListMaterialsPage(ctx context.Context, db *gorm.DB, page, pageSize int) ([]domain.LearningMaterial, error) {
	out := []domain.LearningMaterial{}
	err := db.WithContext(ctx).
		Order("created_at DESC").
		Order("row_id DESC").
		Offset(pageOffset(page, pageSize)).
		Limit(pageSize).
		Find(&out).Error
	return out, err
}

// GetMaterial fetches a material by logical ID, or ErrNotFound.
func GetMaterial(ctx context.Context, db *gorm.DB, id string) (*domain.LearningMaterial, error) {
	var m domain.LearningMaterial
	if err := db.WithContext(ctx).
		Where("material_id = ?", id).
		First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateMaterialAudio sets a single audio column on the material with the
// given ID and stamps updated_at. Other columns are untouched. The caller
// validates field.
func UpdateMaterialAudio(ctx context.Context, db *gorm.DB, id string, field domain.AudioField, url string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.LearningMaterial{}).
		Where("material_id = ?", id).
		UpdateColumns(map[string]any{
			field.Column(): url,
			"updated_at":   time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// DeleteMaterial removes the material with the given ID and returns 0 or 1.
func DeleteMaterial(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	res := db.WithContext(ctx).
		Where("material_id = ?", id).
		Delete(&domain.LearningMaterial{})
	return res.RowsAffected, res.Error
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (ETag generation) in the HTTP layer
// and for store summaries. Each function is context-aware and safe to call
// from services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/news-archive/internal/domain"
)

// MaterialStats is the aggregate fingerprint of the materials collection.
//
// Any write the viewer can observe moves at least one field:
//   - Count:       inserts and deletes
//   - LastUpdated: audio updates (and inserts, which stamp updated_at)
//   - MaxRowID:    an insert paired with a delete, even when the inserted
//     row carries an older created_at than the rest
type MaterialStats struct {
	Count       int64
	LastUpdated *time.Time
	MaxRowID    uint
}

// MaterialsStats returns the MaterialStats of the materials table.
//
// It executes three lightweight queries. When the collection is empty the
// zero MaterialStats is returned (Count 0, LastUpdated nil, MaxRowID 0).
func MaterialsStats(ctx context.Context, db *gorm.DB) (MaterialStats, error) {
	var st MaterialStats
	q := db.WithContext(ctx).Model(&domain.LearningMaterial{})

	// Count
	if err := q.Count(&st.Count).Error; err != nil {
		return MaterialStats{}, err
	}
	if st.Count == 0 {
		return MaterialStats{}, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var upd struct {
		UpdatedAt time.Time
	}
	if err := db.WithContext(ctx).Model(&domain.LearningMaterial{}).
		Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&upd).Error; err != nil {
		return MaterialStats{}, err
	}
	st.LastUpdated = &upd.UpdatedAt

	var row struct {
		RowID uint
	}
	if err := db.WithContext(ctx).Model(&domain.LearningMaterial{}).
		Select("row_id").Order("row_id DESC").Limit(1).Scan(&row).Error; err != nil {
		return MaterialStats{}, err
	}
	st.MaxRowID = row.RowID
	return st, nil
}

// RawNewsStats returns aggregate metadata for the raw news collection: the
// number of stored records and the newest CollectedAt among them.
//
// When the collection is empty, count is 0 and newest is nil.
//
// Return values:
//   - count:  total raw records
//   - newest: pointer to the greatest CollectedAt, or nil if no rows
//   - err:    database error, if any
func RawNewsStats(ctx context.Context, db *gorm.DB) (count int64, newest *time.Time, err error) {
	if err = db.WithContext(ctx).Model(&domain.RawNewsRecord{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest collected_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CollectedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.RawNewsRecord{}).
		Select("collected_at").Order("collected_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CollectedAt, nil
}

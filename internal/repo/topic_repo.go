// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for TopicSnapshot.
// Snapshots are append-only; the only mutation is window pruning.
package repo

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/news-archive/internal/domain"
)

// CreateTopicSnapshot inserts a snapshot holding groups, stamped with the
// current UTC time.
func CreateTopicSnapshot(ctx context.Context, db *gorm.DB, groups datatypes.JSON) (*domain.TopicSnapshot, error) {
	s := &domain.TopicSnapshot{
		CreatedAt: time.Now().UTC(),
		Groups:    groups,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// LatestTopicSnapshot returns the most recent snapshot, or ErrNotFound when
// none exist.
func LatestTopicSnapshot(ctx context.Context, db *gorm.DB) (*domain.TopicSnapshot, error) {
	var s domain.TopicSnapshot
	err := db.WithContext(ctx).
		Order("created_at DESC").
		Order("row_id DESC").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// PruneTopicSnapshots keeps the keep most recent snapshots and returns the
// number deleted.
func PruneTopicSnapshots(ctx context.Context, db *gorm.DB, keep int) (int64, error) {
	return pruneBeyondRank(ctx, db, &domain.TopicSnapshot{}, "created_at", keep)
}

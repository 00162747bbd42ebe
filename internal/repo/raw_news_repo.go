// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for RawNewsRecord.
//
// Records are keyed by original_link. Saving a record whose link already
// exists overwrites the stored fields in place and keeps its storage key.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/news-archive/internal/domain"
)

// maxUpsertAttempts bounds the insert/update cycle of a single record when
// the row keeps disappearing under concurrent pruning.
const maxUpsertAttempts = 3

// ErrUpsertContended is returned when a record could be neither inserted nor
// updated within maxUpsertAttempts because its row was removed concurrently
// each time.
var ErrUpsertContended = errors.New("record removed concurrently during upsert")

// SaveRawNews upserts each record by original_link and returns how many rows
// were newly created. Updated rows are not counted. Every record is written
// independently; a failure stops the loop and returns the count so far.
//
// A zero CollectedAt is stamped with the current time. All timestamps are
// stored in UTC.
func SaveRawNews(ctx context.Context, db *gorm.DB, records []domain.RawNewsRecord) (int, error) {
	created := 0
	for i := range records {
		inserted, err := upsertRawNews(ctx, db, records[i])
		if err != nil {
			return created, err
		}
		if inserted {
			created++
		}
	}
	return created, nil
}

func upsertRawNews(ctx context.Context, db *gorm.DB, rec domain.RawNewsRecord) (bool, error) {
	rec.RowID = 0
	if rec.CollectedAt.IsZero() {
		rec.CollectedAt = time.Now().UTC()
	} else {
		rec.CollectedAt = rec.CollectedAt.UTC()
	}
	if rec.PublishedAt != nil {
		p := rec.PublishedAt.UTC()
		rec.PublishedAt = &p
	}

	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		ins := db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "original_link"}},
				DoNothing: true,
			}).
			Create(&rec)
		if ins.Error != nil {
			return false, ins.Error
		}
		if ins.RowsAffected == 1 {
			return true, nil
		}

		upd := db.WithContext(ctx).
			Model(&domain.RawNewsRecord{}).
			Where("original_link = ?", rec.OriginalLink).
			Updates(map[string]any{
				"link":         rec.Link,
				"title":        rec.Title,
				"description":  rec.Description,
				"source":       rec.Source,
				"published_at": rec.PublishedAt,
				"collected_at": rec.CollectedAt,
				"extra":        rec.Extra,
			})
		if upd.Error != nil {
			return false, upd.Error
		}
		if upd.RowsAffected > 0 {
			return false, nil
		}
		// Row pruned between insert and update; insert again.
		rec.RowID = 0
	}
	return false, fmt.Errorf("%w: %s", ErrUpsertContended, rec.OriginalLink)
}

// RecentRawNews returns up to limit records, newest collected first.
func RecentRawNews(ctx context.Context, db *gorm.DB, limit int) ([]domain.RawNewsRecord, error) {
	var out []domain.RawNewsRecord
	err := db.WithContext(ctx).
		Order("collected_at DESC").
		Order("row_id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetRawNews fetches a record by its original link, or ErrNotFound.
func GetRawNews(ctx context.Context, db *gorm.DB, originalLink string) (*domain.RawNewsRecord, error) {
	var r domain.RawNewsRecord
	if err := db.WithContext(ctx).
		Where("original_link = ?", originalLink).
		First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// CountRawNews returns the number of stored records.
func CountRawNews(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.RawNewsRecord{}).Count(&total).Error
	return total, err
}

// PruneRawNews keeps the keep most recently collected records and returns
// the number deleted.
func PruneRawNews(ctx context.Context, db *gorm.DB, keep int) (int64, error) {
	return pruneBeyondRank(ctx, db, &domain.RawNewsRecord{}, "collected_at", keep)
}

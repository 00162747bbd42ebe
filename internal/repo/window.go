// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file holds the positional paging and count-bounded
// retention helpers shared by the raw-news, topic, and material repositories.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// pageOffset converts a 1-based page number into a row offset. Inputs are not
// validated; a page below 1 yields a negative offset, which GORM omits.
func pageOffset(page, size int) int {
	return (page - 1) * size
}

// pruneBeyondRank keeps the keep most recent rows of model ordered by column
// and deletes the rest in a single statement.
//
// Semantics:
//   - The value of the keep-th newest row (OFFSET keep-1) becomes the
//     threshold T and every row with column < T is removed.
//   - Rows that tie with T are retained, so more than keep rows can survive
//     when timestamps collide.
//   - When the collection holds keep rows or fewer, nothing is deleted.
//   - keep <= 0 disables pruning and returns 0; emptying a collection is
//     never a retention outcome.
func pruneBeyondRank(ctx context.Context, db *gorm.DB, model any, column string, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}

	var row struct {
		Threshold time.Time
	}
	res := db.WithContext(ctx).
		Model(model).
		Select(column + " AS threshold").
		Order(column + " DESC").
		Offset(keep - 1).
		Limit(1).
		Scan(&row)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, nil
	}

	del := db.WithContext(ctx).
		Where(column+" < ?", row.Threshold).
		Delete(model)
	return del.RowsAffected, del.Error
}

// Package services – TopicStore
//
// TopicStore appends topic-grouping snapshots, returns the newest one, and
// trims old snapshots with the same window rule as the raw news store.
package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/news-archive/internal/domain"
	"github.com/tbourn/news-archive/internal/repo"
)

// TopicStore is the topic snapshot store.
type TopicStore struct {
	DB *gorm.DB
}

// NewTopicStore returns a TopicStore backed by db.
func NewTopicStore(db *gorm.DB) *TopicStore {
	return &TopicStore{DB: db}
}

// SaveSnapshot stores groups as a new snapshot stamped with the current time.
// groups is encoded as JSON; already-encoded json.RawMessage or
// datatypes.JSON values are stored as is.
func (s *TopicStore) SaveSnapshot(ctx context.Context, groups any) (*domain.TopicSnapshot, error) {
	var payload datatypes.JSON
	switch g := groups.(type) {
	case datatypes.JSON:
		payload = g
	case json.RawMessage:
		payload = datatypes.JSON(g)
	default:
		b, err := json.Marshal(groups)
		if err != nil {
			return nil, fmt.Errorf("encode topic groups: %w", err)
		}
		payload = b
	}
	snap, err := repo.CreateTopicSnapshot(ctx, s.DB, payload)
	if err != nil {
		return nil, err
	}
	ingested.WithLabelValues(collectionTopics).Inc()
	return snap, nil
}

// Latest returns the newest snapshot, or repo.ErrNotFound when there is none.
func (s *TopicStore) Latest(ctx context.Context) (*domain.TopicSnapshot, error) {
	return repo.LatestTopicSnapshot(ctx, s.DB)
}

// Prune keeps the keep newest snapshots and returns how many were deleted.
func (s *TopicStore) Prune(ctx context.Context, keep int) (int64, error) {
	n, err := repo.PruneTopicSnapshots(ctx, s.DB, keep)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		pruned.WithLabelValues(collectionTopics).Add(float64(n))
	}
	log.Debug().Int("keep", keep).Int64("deleted", n).Msg("topic snapshots pruned")
	return n, nil
}

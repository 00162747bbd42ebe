// Package services – NewsStore
//
// NewsStore ingests raw news records deduplicated by original link, serves
// the most recently collected ones, and trims the collection to a fixed
// window on demand.
package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/news-archive/internal/domain"
	"github.com/tbourn/news-archive/internal/repo"
	"github.com/tbourn/news-archive/internal/search"
)

// searchWindow bounds how many recent records Search ranks. The retained
// collection is small, so the index is built per query.
const searchWindow = 500

// NewsStore is the raw record store. It holds no state beyond the handle
// and is safe for concurrent use.
type NewsStore struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// NewNewsStore returns a NewsStore backed by db.
func NewNewsStore(db *gorm.DB) *NewsStore {
	return &NewsStore{DB: db}
}

// Save upserts records by original link and returns how many were new.
// Records whose link already exists are overwritten in place and are not
// counted. A record without an original link rejects the whole batch with
// ErrMissingOriginalLink.
func (s *NewsStore) Save(ctx context.Context, records []domain.RawNewsRecord) (int, error) {
	for i := range records {
		if strings.TrimSpace(records[i].OriginalLink) == "" {
			return 0, ErrMissingOriginalLink
		}
	}
	created, err := repo.SaveRawNews(ctx, s.DB, records)
	if created > 0 {
		ingested.WithLabelValues(collectionNews).Add(float64(created))
	}
	if err != nil {
		return created, err
	}
	log.Debug().
		Int("records", len(records)).
		Int("created", created).
		Msg("raw news saved")
	return created, nil
}

// Recent returns up to limit records, most recently collected first.
func (s *NewsStore) Recent(ctx context.Context, limit int) ([]domain.RawNewsRecord, error) {
	return repo.RecentRawNews(ctx, s.DB, limit)
}

// Get returns the record stored under originalLink, or repo.ErrNotFound.
func (s *NewsStore) Get(ctx context.Context, originalLink string) (*domain.RawNewsRecord, error) {
	return repo.GetRawNews(ctx, s.DB, originalLink)
}

// Count returns the number of stored records.
func (s *NewsStore) Count(ctx context.Context) (int64, error) {
	return repo.CountRawNews(ctx, s.DB)
}

// Prune keeps the keep most recently collected records and returns how many
// were deleted. Records tied with the cutoff timestamp are all kept.
func (s *NewsStore) Prune(ctx context.Context, keep int) (int64, error) {
	n, err := repo.PruneRawNews(ctx, s.DB, keep)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		pruned.WithLabelValues(collectionNews).Add(float64(n))
	}
	log.Debug().Int("keep", keep).Int64("deleted", n).Msg("raw news pruned")
	return n, nil
}

// Search ranks the most recent records by keyword overlap between query and
// each record's title and description, and returns up to limit matches, best
// first. Equal scores favour the more recently collected record.
func (s *NewsStore) Search(ctx context.Context, query string, limit int) ([]domain.RawNewsRecord, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []domain.RawNewsRecord{}, nil
	}
	recent, err := repo.RecentRawNews(ctx, s.DB, searchWindow)
	if err != nil {
		return nil, err
	}

	docs := make([]search.Doc, len(recent))
	byLink := make(map[string]int, len(recent))
	for i, r := range recent {
		docs[i] = search.Doc{Key: r.OriginalLink, Text: r.Title + "\n" + r.Description}
		byLink[r.OriginalLink] = i
	}
	hits := search.New(docs).TopK(query, limit)

	out := make([]domain.RawNewsRecord, 0, len(hits))
	for _, h := range hits {
		out = append(out, recent[byLink[h.Key]])
	}
	return out, nil
}

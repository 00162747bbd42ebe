// Package services – MaterialStore
//
// MaterialStore keeps generated learning materials. Materials are created
// whole, read by page or by ID, receive audio URLs one field at a time, and
// are deleted individually. They are never pruned by retention.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/news-archive/internal/domain"
	"github.com/tbourn/news-archive/internal/repo"
	"github.com/tbourn/news-archive/internal/utils"
)

// MaterialStore is the learning material store.
type MaterialStore struct {
	DB *gorm.DB
}

// NewMaterialStore returns a MaterialStore backed by db.
func NewMaterialStore(db *gorm.DB) *MaterialStore {
	return &MaterialStore{DB: db}
}

// Create inserts m and returns its logical ID. Any storage key on m is
// discarded. A blank ID is replaced with a random UUID and a zero CreatedAt
// with the current time. A duplicate ID yields the driver's error (see
// repo.IsDuplicate).
func (s *MaterialStore) Create(ctx context.Context, m *domain.LearningMaterial) (string, error) {
	if m == nil {
		return "", ErrNilMaterial
	}
	m.ID = strings.TrimSpace(m.ID)
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if err := repo.CreateMaterial(ctx, s.DB, m); err != nil {
		return "", err
	}
	ingested.WithLabelValues(collectionMaterials).Inc()
	return m.ID, nil
}

// Count returns the number of stored materials.
func (s *MaterialStore) Count(ctx context.Context) (int64, error) {
	return repo.CountMaterials(ctx, s.DB)
}

// List returns page (1-based) of materials, newest first. page and pageSize
// are used as given; a page past the end is empty.
func (s *MaterialStore) List(ctx context.Context, page, pageSize int) ([]domain.LearningMaterial, error) {
	return repo.ListMaterialsPage(ctx, s.DB, page, pageSize)
}

// Page is one viewer page of materials with the totals needed to render
// navigation.
type Page struct {
	Items      []domain.LearningMaterial
	Page       int
	PageSize   int
	Total      int64
	TotalPages int
}

// ListPage is the viewer variant of List. pageSize is raised to at least 1
// and page is clamped into [1, TotalPages], so a viewer left on a page that
// no longer exists after deletions lands on the last one instead.
func (s *MaterialStore) ListPage(ctx context.Context, page, pageSize int) (*Page, error) {
	if pageSize < 1 {
		pageSize = 1
	}
	total, err := repo.CountMaterials(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	pages := utils.TotalPages(total, pageSize)
	page = utils.ClampPage(page, pages)

	items, err := repo.ListMaterialsPage(ctx, s.DB, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Page: page, PageSize: pageSize, Total: total, TotalPages: pages}, nil
}

// Get returns the material with the given ID, or repo.ErrNotFound.
func (s *MaterialStore) Get(ctx context.Context, id string) (*domain.LearningMaterial, error) {
	return repo.GetMaterial(ctx, s.DB, id)
}

// Stats returns the aggregate fingerprint of the collection for cache
// validators.
func (s *MaterialStore) Stats(ctx context.Context) (repo.MaterialStats, error) {
	return repo.MaterialsStats(ctx, s.DB)
}

// UpdateAudio records url in the given audio field of material id and
// reports how many rows changed. An unknown ID changes nothing and is not an
// error. Other fields of the material are left untouched.
func (s *MaterialStore) UpdateAudio(ctx context.Context, id string, field domain.AudioField, url string) (int64, error) {
	if !field.Valid() {
		return 0, ErrInvalidAudioField
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return 0, ErrEmptyAudioURL
	}
	n, err := repo.UpdateMaterialAudio(ctx, s.DB, id, field, url)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		log.Debug().Str("material_id", id).Str("field", string(field)).Msg("audio update matched no material")
	}
	return n, nil
}

// Delete removes the material with the given ID and returns 0 or 1.
func (s *MaterialStore) Delete(ctx context.Context, id string) (int64, error) {
	return repo.DeleteMaterial(ctx, s.DB, id)
}

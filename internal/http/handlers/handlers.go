package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/news-archive/internal/domain"
	"github.com/tbourn/news-archive/internal/repo"
	"github.com/tbourn/news-archive/internal/services"
	"github.com/tbourn/news-archive/internal/utils"
)

// MaterialService is the subset of services.MaterialStore used by the
// viewer.
type MaterialService interface {
	Create(ctx context.Context, m *domain.LearningMaterial) (string, error)
	ListPage(ctx context.Context, page, pageSize int) (*services.Page, error)
	Get(ctx context.Context, id string) (*domain.LearningMaterial, error)
	Stats(ctx context.Context) (repo.MaterialStats, error)
	UpdateAudio(ctx context.Context, id string, field domain.AudioField, url string) (int64, error)
	Delete(ctx context.Context, id string) (int64, error)
}

// TopicService is the subset of services.TopicStore used by the viewer.
type TopicService interface {
	SaveSnapshot(ctx context.Context, groups any) (*domain.TopicSnapshot, error)
	Latest(ctx context.Context) (*domain.TopicSnapshot, error)
}

// NewsService is the subset of services.NewsStore used by the viewer.
type NewsService interface {
	Save(ctx context.Context, records []domain.RawNewsRecord) (int, error)
	Recent(ctx context.Context, limit int) ([]domain.RawNewsRecord, error)
	Search(ctx context.Context, query string, limit int) ([]domain.RawNewsRecord, error)
}

// Paging bounds the page_size query parameter of list endpoints.
type Paging struct {
	DefaultSize int
	MaxSize     int
}

// Handlers groups the viewer endpoints.
type Handlers struct {
	materials MaterialService
	topics    TopicService
	news      NewsService
	paging    Paging
}

// New wires the handlers to their services. Non-positive paging values fall
// back to 50 per page and a maximum of 200.
func New(materials MaterialService, topics TopicService, news NewsService, paging Paging) *Handlers {
	if paging.MaxSize < 1 {
		paging.MaxSize = 200
	}
	if paging.DefaultSize < 1 {
		paging.DefaultSize = 50
	}
	if paging.DefaultSize > paging.MaxSize {
		paging.DefaultSize = paging.MaxSize
	}
	return &Handlers{materials: materials, topics: topics, news: news, paging: paging}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// pageParams reads page and page_size, raising both to at least 1 and
// capping page_size.
func (h *Handlers) pageParams(c *gin.Context) (page, pageSize int) {
	page = utils.AtoiDefault(c.Query("page"), 1)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), h.paging.DefaultSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > h.paging.MaxSize {
		pageSize = h.paging.MaxSize
	}
	return page, pageSize
}

// Package search powers the public explore page: a Meilisearch index of
// public novels with a PostgreSQL full-text fallback.
package search

import (
	"context"

	"writepad/internal/domain"
)

// Hit is a single search match. Callers hydrate the full novel by ID.
type Hit struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Genre  string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search facade.
type Response struct {
	Hits  []Hit  `json:"hits"`
	Total int    `json:"total"`
	Query string `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Hit, int, error)
	Healthy() bool
}

// NovelRecord is the data we index for a novel.
type NovelRecord struct {
	ID          string `json:"id"`
	OwnerID     string `json:"ownerId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Genre       string `json:"genre"`
	IsPublic    bool   `json:"isPublic"`
	CreatedAt   int64  `json:"createdAt"`
}

// RecordFromNovel converts a novel to its index document.
func RecordFromNovel(n domain.Novel) NovelRecord {
	return NovelRecord{
		ID:          n.ID,
		OwnerID:     n.OwnerID,
		Title:       n.Title,
		Description: n.Description,
		Genre:       n.Genre,
		IsPublic:    n.IsPublic,
		CreatedAt:   n.CreatedAt.Unix(),
	}
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 100:
		return 100
	default:
		return limit
	}
}

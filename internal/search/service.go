package search

import (
	"context"
	"log"
)

// Index is the write side of the search backend.
type Index interface {
	Healthy() bool
	IndexNovel(rec NovelRecord) error
	IndexNovels(records []NovelRecord) error
	DeleteNovel(id string) error
}

type indexSearcher interface {
	Searcher
	Index
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	primary  indexSearcher
	fallback *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	s := &Service{fallback: pgfts}
	if meili != nil {
		s.primary = meili
	}
	return s
}

func (s *Service) primaryHealthy() bool {
	return s.primary != nil && s.primary.Healthy()
}

// Engine names the backend currently answering queries.
func (s *Service) Engine() string {
	switch {
	case s.primaryHealthy():
		return "meilisearch"
	case s.fallback != nil:
		return "postgres"
	}
	return "none"
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.primaryHealthy() {
		hits, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Hits: nonNil(hits), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}
	if s.fallback == nil {
		return Response{Hits: []Hit{}, Query: q.Text}
	}

	hits, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Hits: []Hit{}, Total: 0, Query: q.Text}
	}
	return Response{Hits: nonNil(hits), Total: total, Query: q.Text}
}

// IndexNovel indexes a novel (fire-and-forget to Meilisearch). Private
// novels are indexed too; the search filter keeps them out of results.
func (s *Service) IndexNovel(rec NovelRecord) {
	if !s.primaryHealthy() {
		return
	}
	go func() {
		if err := s.primary.IndexNovel(rec); err != nil {
			log.Printf("search: index novel %s: %v", rec.ID, err)
		}
	}()
}

// DeleteNovel removes a novel from the search index (fire-and-forget).
func (s *Service) DeleteNovel(id string) {
	if !s.primaryHealthy() {
		return
	}
	go func() {
		if err := s.primary.DeleteNovel(id); err != nil {
			log.Printf("search: delete novel %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG pushes every novel from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if !s.primaryHealthy() || s.fallback == nil {
		return
	}
	records, err := s.fallback.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.primary.IndexNovels(records); err != nil {
		log.Printf("search: reindex novels: %v", err)
		return
	}
	log.Printf("search: reindexed %d novels", len(records))
}

func nonNil(h []Hit) []Hit {
	if h == nil {
		return []Hit{}
	}
	return h
}

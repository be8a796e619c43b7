package app

import (
	"context"
	"strings"

	"writepad/internal/domain"
	"writepad/internal/export"
	"writepad/internal/render"
	"writepad/internal/search"
)

const exploreLimit = 50

// ExploreNovels lists public novels newest first, or ranks them by query
// when one is given. Search hits are hydrated from the database so stale
// index entries for deleted or private novels drop out.
func (s *Service) ExploreNovels(ctx context.Context, query string) ([]domain.PublicNovel, error) {
	query = strings.TrimSpace(query)
	if query == "" || s.search == nil {
		return s.store.ListPublicNovels(ctx, exploreLimit)
	}

	resp := s.search.Search(ctx, search.Query{Text: query, Limit: exploreLimit})
	if len(resp.Hits) == 0 {
		return []domain.PublicNovel{}, nil
	}
	ids := make([]string, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		ids = append(ids, hit.ID)
	}
	novels, err := s.store.ListPublicNovelsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.PublicNovel, len(novels))
	for _, n := range novels {
		byID[n.ID] = n
	}
	ranked := make([]domain.PublicNovel, 0, len(novels))
	for _, id := range ids {
		if n, ok := byID[id]; ok {
			ranked = append(ranked, n)
		}
	}
	return ranked, nil
}

type PublicProfile struct {
	Profile domain.Profile       `json:"profile"`
	Novels  []domain.PublicNovel `json:"novels"`
}

func (s *Service) PublicProfile(ctx context.Context, userID string) (PublicProfile, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return PublicProfile{}, err
	}
	novels, err := s.store.ListPublicNovelsByOwner(ctx, userID)
	if err != nil {
		return PublicProfile{}, err
	}
	return PublicProfile{Profile: profile, Novels: novels}, nil
}

func (s *Service) PublicNovel(ctx context.Context, novelID string) (domain.PublicNovel, error) {
	return s.store.GetPublicNovel(ctx, novelID)
}

// TableOfContents lists the live chapters of a public novel. Liveness is
// evaluated by the database against the server clock.
func (s *Service) TableOfContents(ctx context.Context, novelID string) ([]domain.TOCEntry, error) {
	if _, err := s.store.GetPublicNovel(ctx, novelID); err != nil {
		return nil, err
	}
	chapters, err := s.store.ListLiveChapters(ctx, novelID, s.now())
	if err != nil {
		return nil, err
	}
	toc := make([]domain.TOCEntry, 0, len(chapters))
	for _, c := range chapters {
		entry := domain.TOCEntry{ID: c.ID, Title: c.Title, Order: c.Order, WordCount: c.WordCount}
		if c.PublishedAt != nil {
			entry.PublishedAt = *c.PublishedAt
		}
		toc = append(toc, entry)
	}
	return toc, nil
}

// ReadChapter renders a live chapter with links to its live neighbours.
// Drafts and scheduled chapters are reported as missing.
func (s *Service) ReadChapter(ctx context.Context, chapterID string) (domain.ReaderChapter, error) {
	now := s.now()
	chapter, err := s.store.GetLiveChapter(ctx, chapterID, now)
	if err != nil {
		return domain.ReaderChapter{}, err
	}
	live, err := s.store.ListLiveChapters(ctx, chapter.NovelID, now)
	if err != nil {
		return domain.ReaderChapter{}, err
	}

	out := domain.ReaderChapter{
		ID:        chapter.ID,
		NovelID:   chapter.NovelID,
		Title:     chapter.Title,
		HTML:      render.HTML(chapter.Content),
		WordCount: chapter.WordCount,
	}
	if out.WordCount == 0 {
		out.WordCount = render.ContentWordCount(chapter.Content)
	}
	if chapter.PublishedAt != nil {
		out.PublishedAt = *chapter.PublishedAt
	}
	for i, c := range live {
		if c.ID != chapter.ID {
			continue
		}
		if i > 0 {
			out.PrevID = live[i-1].ID
		}
		if i < len(live)-1 {
			out.NextID = live[i+1].ID
		}
		break
	}
	return out, nil
}

// ExportNovel builds a manuscript of an owned novel.
func (s *Service) ExportNovel(ctx context.Context, viewerID, novelID, format, include string) (*export.Result, error) {
	parsedFormat, err := export.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	selection, err := export.ParseSelection(include)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedNovel(ctx, viewerID, novelID); err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, export.Request{
		NovelID: novelID,
		Format:  parsedFormat,
		Include: selection,
		Now:     s.now(),
	})
}

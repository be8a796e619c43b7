package app

import (
	"context"
	"strings"
	"unicode/utf8"

	"writepad/internal/access"
	"writepad/internal/domain"
	"writepad/internal/render"
	"writepad/internal/search"
)

const (
	defaultNovelTitle   = "Untitled Novel"
	defaultChapterTitle = "Untitled Chapter"
	maxTitleRunes       = 200
)

func validateTitle(title *string) error {
	if title == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*title)
	if trimmed == "" {
		return validationError("title must not be empty", nil)
	}
	if utf8.RuneCountInString(trimmed) > maxTitleRunes {
		return validationError("title is too long", map[string]any{"max": maxTitleRunes})
	}
	*title = trimmed
	return nil
}

// authorize turns a role into an error. Viewers with no role at all get a
// 404 so private rows are indistinguishable from missing ones.
func authorize(role access.Role, action access.Action) error {
	if role == access.RoleNone {
		return errNotFound
	}
	if !access.Can(role, action) {
		return errForbidden
	}
	return nil
}

func (s *Service) ownedNovel(ctx context.Context, viewerID, novelID string) (domain.Novel, error) {
	novel, err := s.store.GetNovel(ctx, novelID)
	if err != nil {
		return domain.Novel{}, err
	}
	if err := authorize(access.NovelRole(novel, viewerID), access.ActionWrite); err != nil {
		return domain.Novel{}, err
	}
	return novel, nil
}

func (s *Service) indexNovel(novel domain.Novel) {
	if s.search != nil {
		s.search.IndexNovel(search.RecordFromNovel(novel))
	}
}

func (s *Service) deindexNovel(id string) {
	if s.search != nil {
		s.search.DeleteNovel(id)
	}
}

// Novels

func (s *Service) ListNovels(ctx context.Context, viewerID string) ([]domain.Novel, error) {
	return s.store.ListNovelsByOwner(ctx, viewerID)
}

func (s *Service) CreateNovel(ctx context.Context, viewerID string, input domain.NovelPatch) (domain.Novel, error) {
	if input.Title == nil || strings.TrimSpace(*input.Title) == "" {
		input.Title = domain.Ptr(defaultNovelTitle)
	}
	if err := validateTitle(input.Title); err != nil {
		return domain.Novel{}, err
	}
	novel := input.Apply(domain.Novel{OwnerID: viewerID})
	created, err := s.store.InsertNovel(ctx, novel)
	if err != nil {
		return domain.Novel{}, err
	}
	s.indexNovel(created)
	return created, nil
}

func (s *Service) GetNovel(ctx context.Context, viewerID, novelID string) (domain.Novel, error) {
	novel, err := s.store.GetNovel(ctx, novelID)
	if err != nil {
		return domain.Novel{}, err
	}
	if err := authorize(access.NovelRole(novel, viewerID), access.ActionRead); err != nil {
		return domain.Novel{}, err
	}
	return novel, nil
}

func (s *Service) UpdateNovel(ctx context.Context, viewerID, novelID string, patch domain.NovelPatch) (domain.Novel, error) {
	if patch.Empty() {
		return domain.Novel{}, validationError("no fields to update", nil)
	}
	if err := validateTitle(patch.Title); err != nil {
		return domain.Novel{}, err
	}
	updated, err := s.store.UpdateNovel(ctx, novelID, func(current domain.Novel) (domain.Novel, error) {
		if err := authorize(access.NovelRole(current, viewerID), access.ActionWrite); err != nil {
			return domain.Novel{}, err
		}
		return patch.Apply(current), nil
	})
	if err != nil {
		return domain.Novel{}, err
	}
	s.indexNovel(updated)
	return updated, nil
}

func (s *Service) DeleteNovel(ctx context.Context, viewerID, novelID string) error {
	if _, err := s.ownedNovel(ctx, viewerID, novelID); err != nil {
		return err
	}
	if err := s.store.DeleteNovel(ctx, novelID); err != nil {
		return err
	}
	s.deindexNovel(novelID)
	return nil
}

// Chapters

func (s *Service) ListChapters(ctx context.Context, viewerID, novelID string) ([]domain.Chapter, error) {
	if _, err := s.ownedNovel(ctx, viewerID, novelID); err != nil {
		return nil, err
	}
	return s.store.ListChapters(ctx, novelID)
}

type ChapterInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (s *Service) CreateChapter(ctx context.Context, viewerID, novelID string, input ChapterInput) (domain.Chapter, error) {
	if _, err := s.ownedNovel(ctx, viewerID, novelID); err != nil {
		return domain.Chapter{}, err
	}
	title := input.Title
	if strings.TrimSpace(title) == "" {
		title = defaultChapterTitle
	}
	if err := validateTitle(&title); err != nil {
		return domain.Chapter{}, err
	}
	return s.store.InsertChapter(ctx, domain.Chapter{
		NovelID:   novelID,
		Title:     title,
		Content:   input.Content,
		WordCount: render.ContentWordCount(input.Content),
	})
}

// GetChapter returns any chapter to its owner and live chapters of public
// novels to everyone else.
func (s *Service) GetChapter(ctx context.Context, viewerID, chapterID string) (domain.Chapter, error) {
	chapter, err := s.store.GetChapter(ctx, chapterID)
	if err != nil {
		return domain.Chapter{}, err
	}
	novel, err := s.store.GetNovel(ctx, chapter.NovelID)
	if err != nil {
		return domain.Chapter{}, err
	}
	if err := authorize(access.ChapterRole(novel, chapter, viewerID, s.now()), access.ActionRead); err != nil {
		return domain.Chapter{}, err
	}
	return chapter, nil
}

func (s *Service) chapterNovel(ctx context.Context, viewerID, chapterID string) (domain.Novel, error) {
	chapter, err := s.store.GetChapter(ctx, chapterID)
	if err != nil {
		return domain.Novel{}, err
	}
	return s.ownedNovel(ctx, viewerID, chapter.NovelID)
}

// UpdateChapter applies a partial update. Publishing without a time means
// "publish now" using the server clock. Order moves go through
// ReorderChapters so the whole novel stays dense.
func (s *Service) UpdateChapter(ctx context.Context, viewerID, chapterID string, patch domain.ChapterPatch) (domain.Chapter, error) {
	if patch.Empty() {
		return domain.Chapter{}, validationError("no fields to update", nil)
	}
	if patch.Order != nil {
		return domain.Chapter{}, validationError("order changes must use the chapter order endpoint", nil)
	}
	if err := validateTitle(patch.Title); err != nil {
		return domain.Chapter{}, err
	}
	if patch.PublishedAt != nil && patch.IsPublished == nil {
		patch.IsPublished = domain.Ptr(true)
	}
	if patch.IsPublished != nil && *patch.IsPublished && patch.PublishedAt == nil {
		patch.PublishedAt = domain.Ptr(s.now().UTC())
	}
	if _, err := s.chapterNovel(ctx, viewerID, chapterID); err != nil {
		return domain.Chapter{}, err
	}
	return s.store.UpdateChapter(ctx, chapterID, func(current domain.Chapter) (domain.Chapter, error) {
		next := patch.Apply(current)
		if patch.Content != nil {
			next.WordCount = render.ContentWordCount(next.Content)
		}
		return next, nil
	})
}

func (s *Service) DeleteChapter(ctx context.Context, viewerID, chapterID string) error {
	if _, err := s.chapterNovel(ctx, viewerID, chapterID); err != nil {
		return err
	}
	return s.store.DeleteChapter(ctx, chapterID)
}

// ReorderChapters applies a batch of order changes atomically and returns
// the novel's chapters in their new order.
func (s *Service) ReorderChapters(ctx context.Context, viewerID, novelID string, changes []domain.OrderChange) ([]domain.Chapter, error) {
	if len(changes) == 0 {
		return nil, validationError("at least one order change is required", nil)
	}
	seen := make(map[string]struct{}, len(changes))
	for _, change := range changes {
		if change.ID == "" || change.Order < 0 {
			return nil, validationError("each change needs an id and a non-negative order", nil)
		}
		if _, dup := seen[change.ID]; dup {
			return nil, validationError("duplicate chapter in order changes", map[string]any{"id": change.ID})
		}
		seen[change.ID] = struct{}{}
	}
	if _, err := s.ownedNovel(ctx, viewerID, novelID); err != nil {
		return nil, err
	}
	return s.store.ReorderChapters(ctx, novelID, changes)
}

// Lore

func (s *Service) ListLore(ctx context.Context, viewerID, novelID string) ([]domain.LoreEntry, error) {
	if _, err := s.ownedNovel(ctx, viewerID, novelID); err != nil {
		return nil, err
	}
	return s.store.ListLore(ctx, novelID)
}

type LoreInput struct {
	Title       string `json:"title"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

func (s *Service) CreateLore(ctx context.Context, viewerID, novelID string, input LoreInput) (domain.LoreEntry, error) {
	title := input.Title
	if err := validateTitle(&title); err != nil {
		return domain.LoreEntry{}, err
	}
	loreType, err := domain.ParseLoreType(input.Type)
	if err != nil {
		return domain.LoreEntry{}, err
	}
	if _, err := s.ownedNovel(ctx, viewerID, novelID); err != nil {
		return domain.LoreEntry{}, err
	}
	return s.store.InsertLore(ctx, domain.LoreEntry{
		NovelID:     novelID,
		Title:       title,
		Type:        loreType,
		Description: input.Description,
	})
}

func (s *Service) loreNovel(ctx context.Context, viewerID, loreID string) (domain.LoreEntry, error) {
	entry, err := s.store.GetLore(ctx, loreID)
	if err != nil {
		return domain.LoreEntry{}, err
	}
	novel, err := s.store.GetNovel(ctx, entry.NovelID)
	if err != nil {
		return domain.LoreEntry{}, err
	}
	if err := authorize(access.LoreRole(novel, viewerID), access.ActionWrite); err != nil {
		return domain.LoreEntry{}, err
	}
	return entry, nil
}

func (s *Service) GetLore(ctx context.Context, viewerID, loreID string) (domain.LoreEntry, error) {
	return s.loreNovel(ctx, viewerID, loreID)
}

func (s *Service) UpdateLore(ctx context.Context, viewerID, loreID string, patch domain.LorePatch) (domain.LoreEntry, error) {
	if patch.Empty() {
		return domain.LoreEntry{}, validationError("no fields to update", nil)
	}
	if err := validateTitle(patch.Title); err != nil {
		return domain.LoreEntry{}, err
	}
	if patch.Type != nil {
		parsed, err := domain.ParseLoreType(string(*patch.Type))
		if err != nil {
			return domain.LoreEntry{}, err
		}
		patch.Type = &parsed
	}
	if _, err := s.loreNovel(ctx, viewerID, loreID); err != nil {
		return domain.LoreEntry{}, err
	}
	return s.store.UpdateLore(ctx, loreID, func(current domain.LoreEntry) (domain.LoreEntry, error) {
		return patch.Apply(current), nil
	})
}

func (s *Service) DeleteLore(ctx context.Context, viewerID, loreID string) error {
	if _, err := s.loreNovel(ctx, viewerID, loreID); err != nil {
		return err
	}
	return s.store.DeleteLore(ctx, loreID)
}

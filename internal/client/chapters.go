package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"writepad/internal/autosave"
	"writepad/internal/collection"
	"writepad/internal/domain"
)

var (
	ErrOrderPatch     = errors.New("chapter order changes go through Reorder")
	ErrNoActive       = errors.New("no active chapter")
	ErrReorderMissing = errors.New("reorder: chapter not in list")
)

// ChapterStore mirrors one novel's chapters in reading order and owns the
// autosave of the chapter being edited.
type ChapterStore struct {
	*collection.Store[domain.Chapter, ChapterInput, domain.ChapterPatch]
	backend  Backend
	novelID  string
	now      func() time.Time
	logger   *log.Logger
	autosave time.Duration

	mu     sync.Mutex
	active string
	editor *autosave.Debouncer
}

func NewChapterStore(backend Backend, novelID string, autosaveDelay time.Duration, now func() time.Time, logger *log.Logger) *ChapterStore {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = log.Default()
	}
	remote := collection.Remote[domain.Chapter, ChapterInput, domain.ChapterPatch]{
		List: func(ctx context.Context, novelID string) ([]domain.Chapter, error) {
			chapters, err := backend.ListChapters(ctx, novelID)
			if err != nil {
				return nil, err
			}
			sort.SliceStable(chapters, func(i, j int) bool { return chapters[i].Order < chapters[j].Order })
			return chapters, nil
		},
		Insert: backend.CreateChapter,
		Update: backend.UpdateChapter,
		Delete: backend.DeleteChapter,
		Apply: func(c domain.Chapter, p domain.ChapterPatch) domain.Chapter {
			return p.Apply(c)
		},
		Reposition: func(c, pos domain.Chapter) domain.Chapter {
			c.Order = pos.Order
			return c
		},
	}
	return &ChapterStore{
		Store:    collection.New("chapters", novelID, remote, collection.WithLogger(logger)),
		backend:  backend,
		novelID:  novelID,
		now:      now,
		logger:   logger,
		autosave: autosaveDelay,
	}
}

func (s *ChapterStore) NovelID() string { return s.novelID }

// Update patches chapter fields other than order.
func (s *ChapterStore) Update(ctx context.Context, id string, patch domain.ChapterPatch) (domain.Chapter, error) {
	if patch.Order != nil {
		return domain.Chapter{}, ErrOrderPatch
	}
	return s.Store.Update(ctx, id, patch)
}

// Remove drops a chapter and closes the gap it leaves in the order. The
// backend renumbers in the same transaction as the delete.
func (s *ChapterStore) Remove(ctx context.Context, id string) error {
	if s.activeID() == id {
		_ = s.closeEditor(ctx, true)
	}
	found := false
	err := s.Transact(ctx, "remove "+id,
		func(items []domain.Chapter) ([]domain.Chapter, bool) {
			out := make([]domain.Chapter, 0, len(items))
			for _, c := range items {
				if c.ID == id {
					found = true
					continue
				}
				out = append(out, c)
			}
			if !found {
				return items, false
			}
			return domain.Renumber(out), true
		},
		func(ctx context.Context, _, _ []domain.Chapter) error {
			return s.backend.DeleteChapter(ctx, id)
		})
	if err == nil && !found {
		return fmt.Errorf("chapters %s: %w", id, collection.ErrNotFound)
	}
	return err
}

// Reorder moves moveID into targetID's position, renumbers densely, and
// persists only the chapters whose order changed.
func (s *ChapterStore) Reorder(ctx context.Context, moveID, targetID string) error {
	moved := false
	err := s.Transact(ctx, "reorder "+moveID,
		func(items []domain.Chapter) ([]domain.Chapter, bool) {
			out, ok := domain.Reorder(items, moveID, targetID)
			moved = ok
			return out, ok
		},
		func(ctx context.Context, before, after []domain.Chapter) error {
			changes := domain.DiffOrder(before, after)
			if len(changes) == 0 {
				return nil
			}
			_, err := s.backend.ReorderChapters(ctx, s.novelID, changes)
			return err
		})
	if err != nil {
		return err
	}
	if !moved && moveID != targetID {
		return ErrReorderMissing
	}
	return nil
}

func (s *ChapterStore) PublishNow(ctx context.Context, id string) (domain.Chapter, error) {
	return s.Store.Update(ctx, id, domain.PublishNow(s.now()))
}

// Schedule publishes the chapter at a future time. Times in the past are
// rejected here rather than by the backend.
func (s *ChapterStore) Schedule(ctx context.Context, id string, at time.Time) (domain.Chapter, error) {
	if err := domain.ValidateSchedule(at, s.now()); err != nil {
		return domain.Chapter{}, &ValidationError{Op: "schedule chapter", Code: "VALIDATION_ERROR", Message: err.Error()}
	}
	return s.Store.Update(ctx, id, domain.ScheduleAt(at))
}

func (s *ChapterStore) Unpublish(ctx context.Context, id string) (domain.Chapter, error) {
	return s.Store.Update(ctx, id, domain.Unpublish())
}

// StatusOf derives the chapter's publish status from the current clock.
func (s *ChapterStore) StatusOf(id string) (domain.ChapterStatus, bool) {
	c, ok := s.Get(id)
	if !ok {
		return "", false
	}
	return domain.Status(c, s.now()), true
}

// Live lists the chapters a reader can currently see.
func (s *ChapterStore) Live() []domain.Chapter {
	return domain.LiveChapters(s.Items(), s.now())
}

// SetActive makes id the chapter being edited. Pending edits to the
// previously active chapter are written first.
func (s *ChapterStore) SetActive(ctx context.Context, id string) error {
	if _, ok := s.Get(id); !ok {
		return fmt.Errorf("chapters %s: %w", id, collection.ErrNotFound)
	}
	if s.activeID() == id {
		return nil
	}
	flushErr := s.closeEditor(ctx, false)

	s.mu.Lock()
	s.active = id
	s.editor = autosave.New(s.autosave, func(ctx context.Context, content string) error {
		_, err := s.Store.Update(ctx, id, domain.ChapterPatch{Content: &content})
		return err
	}, autosave.WithLogger(s.logger))
	s.mu.Unlock()
	return flushErr
}

// Active returns the chapter being edited.
func (s *ChapterStore) Active() (domain.Chapter, bool) {
	id := s.activeID()
	if id == "" {
		return domain.Chapter{}, false
	}
	return s.Get(id)
}

// EditContent queues content for the active chapter. Rapid edits collapse
// into one write after the autosave delay.
func (s *ChapterStore) EditContent(content string) error {
	s.mu.Lock()
	editor := s.editor
	s.mu.Unlock()
	if editor == nil {
		return ErrNoActive
	}
	return editor.Schedule(content)
}

// SaveNow writes any pending edit of the active chapter immediately.
func (s *ChapterStore) SaveNow(ctx context.Context) error {
	s.mu.Lock()
	editor := s.editor
	s.mu.Unlock()
	if editor == nil {
		return nil
	}
	return editor.Flush(ctx)
}

// Close writes pending edits, then stops the store.
func (s *ChapterStore) Close(ctx context.Context) error {
	err := s.closeEditor(ctx, false)
	s.Store.Close()
	return err
}

func (s *ChapterStore) activeID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *ChapterStore) closeEditor(ctx context.Context, discard bool) error {
	s.mu.Lock()
	editor := s.editor
	s.editor = nil
	s.active = ""
	s.mu.Unlock()
	if editor == nil {
		return nil
	}
	if discard {
		editor.Cancel()
	}
	return editor.Close(ctx)
}

package client

import (
	"context"
	"log"
	"strings"
	"sync"

	"writepad/internal/collection"
	"writepad/internal/domain"
)

const DefaultNovelTitle = "Untitled Novel"

// NovelStore mirrors the signed-in user's novels, newest first.
type NovelStore struct {
	*collection.Store[domain.Novel, domain.NovelPatch, domain.NovelPatch]
	backend Backend

	mu       sync.RWMutex
	selected string
}

func NewNovelStore(backend Backend, ownerID string, logger *log.Logger) *NovelStore {
	remote := collection.Remote[domain.Novel, domain.NovelPatch, domain.NovelPatch]{
		List: func(ctx context.Context, _ string) ([]domain.Novel, error) {
			return backend.ListNovels(ctx)
		},
		Insert: func(ctx context.Context, _ string, input domain.NovelPatch) (domain.Novel, error) {
			if input.Title == nil || strings.TrimSpace(*input.Title) == "" {
				input.Title = domain.Ptr(DefaultNovelTitle)
			}
			return backend.CreateNovel(ctx, input)
		},
		Update: backend.UpdateNovel,
		Delete: backend.DeleteNovel,
		Apply: func(n domain.Novel, p domain.NovelPatch) domain.Novel {
			return p.Apply(n)
		},
	}
	return &NovelStore{
		Store: collection.New("novels", ownerID, remote,
			collection.WithPlacement(collection.Prepend),
			collection.WithLogger(logger)),
		backend: backend,
	}
}

func (s *NovelStore) Select(id string) {
	s.mu.Lock()
	s.selected = id
	s.mu.Unlock()
}

// Selected returns the selected novel if it is still in the list.
func (s *NovelStore) Selected() (domain.Novel, bool) {
	s.mu.RLock()
	id := s.selected
	s.mu.RUnlock()
	if id == "" {
		return domain.Novel{}, false
	}
	return s.Get(id)
}

// Remove deletes a novel and clears the selection when it pointed at it.
func (s *NovelStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	wasSelected := s.selected == id
	if wasSelected {
		s.selected = ""
	}
	s.mu.Unlock()
	err := s.Store.Remove(ctx, id)
	if err != nil && wasSelected {
		s.mu.Lock()
		if s.selected == "" {
			s.selected = id
		}
		s.mu.Unlock()
	}
	return err
}

// UploadCover stores an image under the covers prefix and points the novel
// at it.
func (s *NovelStore) UploadCover(ctx context.Context, id, contentType string, data []byte) (domain.Novel, error) {
	if _, ok := s.Get(id); !ok {
		return domain.Novel{}, &NotFoundError{Op: "upload cover", Message: "novel " + id}
	}
	object, err := s.backend.Upload(ctx, "covers", contentType, data)
	if err != nil {
		return domain.Novel{}, err
	}
	return s.Update(ctx, id, domain.NovelPatch{CoverURL: domain.Ptr(object.URL)})
}

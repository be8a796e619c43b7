package client

import (
	"context"
	"log"

	"writepad/internal/collection"
	"writepad/internal/domain"
)

// LoreStore mirrors one novel's lore entries, newest first.
type LoreStore struct {
	*collection.Store[domain.LoreEntry, LoreInput, domain.LorePatch]
}

func NewLoreStore(backend Backend, novelID string, logger *log.Logger) *LoreStore {
	remote := collection.Remote[domain.LoreEntry, LoreInput, domain.LorePatch]{
		List:   backend.ListLore,
		Insert: backend.CreateLore,
		Update: backend.UpdateLore,
		Delete: backend.DeleteLore,
		Apply: func(l domain.LoreEntry, p domain.LorePatch) domain.LoreEntry {
			return p.Apply(l)
		},
	}
	return &LoreStore{
		Store: collection.New("lore", novelID, remote,
			collection.WithPlacement(collection.Prepend),
			collection.WithLogger(logger)),
	}
}

// Create validates the entry type before asking the backend.
func (s *LoreStore) Create(ctx context.Context, input LoreInput) (domain.LoreEntry, error) {
	kind, err := domain.ParseLoreType(input.Type)
	if err != nil {
		return domain.LoreEntry{}, &ValidationError{Op: "create lore", Code: "VALIDATION_ERROR", Message: err.Error()}
	}
	input.Type = string(kind)
	return s.Store.Create(ctx, input)
}

func (s *LoreStore) Update(ctx context.Context, id string, patch domain.LorePatch) (domain.LoreEntry, error) {
	if patch.Type != nil {
		kind, err := domain.ParseLoreType(string(*patch.Type))
		if err != nil {
			return domain.LoreEntry{}, &ValidationError{Op: "update lore", Code: "VALIDATION_ERROR", Message: err.Error()}
		}
		patch.Type = &kind
	}
	return s.Store.Update(ctx, id, patch)
}

// OfType filters the entries by kind, keeping list order.
func (s *LoreStore) OfType(kind domain.LoreType) []domain.LoreEntry {
	out := make([]domain.LoreEntry, 0)
	for _, entry := range s.Items() {
		if entry.Type == kind {
			out = append(out, entry)
		}
	}
	return out
}

package client

import (
	"context"

	"writepad/internal/domain"
)

// Reader is the public, signed-out view of published work. It keeps no
// state; visibility is decided by the backend.
type Reader struct {
	backend Backend
}

func NewReader(backend Backend) *Reader {
	return &Reader{backend: backend}
}

func (r *Reader) Explore(ctx context.Context, query string) ([]domain.PublicNovel, error) {
	return r.backend.Explore(ctx, query)
}

func (r *Reader) Novel(ctx context.Context, id string) (domain.PublicNovel, error) {
	return r.backend.PublicNovel(ctx, id)
}

func (r *Reader) Profile(ctx context.Context, userID string) (PublicProfile, error) {
	return r.backend.PublicProfile(ctx, userID)
}

func (r *Reader) TableOfContents(ctx context.Context, novelID string) ([]domain.TOCEntry, error) {
	return r.backend.TableOfContents(ctx, novelID)
}

func (r *Reader) Chapter(ctx context.Context, chapterID string) (domain.ReaderChapter, error) {
	return r.backend.ReadChapter(ctx, chapterID)
}

// FirstChapter opens the first live chapter of a novel.
func (r *Reader) FirstChapter(ctx context.Context, novelID string) (domain.ReaderChapter, error) {
	toc, err := r.backend.TableOfContents(ctx, novelID)
	if err != nil {
		return domain.ReaderChapter{}, err
	}
	if len(toc) == 0 {
		return domain.ReaderChapter{}, &NotFoundError{Op: "read novel", Message: "no published chapters"}
	}
	return r.backend.ReadChapter(ctx, toc[0].ID)
}

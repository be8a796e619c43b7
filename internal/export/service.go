package export

import (
	"context"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"writepad/internal/domain"
	"writepad/internal/render"
)

// Source loads what a manuscript is built from.
type Source interface {
	GetNovel(ctx context.Context, id string) (domain.Novel, error)
	ListChapters(ctx context.Context, novelID string) ([]domain.Chapter, error)
	GetProfile(ctx context.Context, id string) (domain.Profile, error)
}

type converter func(ctx context.Context, html, title string) (*Result, error)

// Service provides manuscript export
type Service struct {
	source Source
	pdf    converter
	docx   converter
}

// NewService creates a new export service
func NewService(source Source) *Service {
	return &Service{source: source, pdf: exportPDF, docx: exportDOCX}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	novel, err := s.source.GetNovel(ctx, req.NovelID)
	if err != nil {
		return nil, fmt.Errorf("get novel: %w", err)
	}
	chapters, err := s.source.ListChapters(ctx, req.NovelID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	if req.Include == IncludeLive {
		chapters = domain.LiveChapters(chapters, req.Now)
	}

	author := ""
	if profile, err := s.source.GetProfile(ctx, novel.OwnerID); err == nil {
		author = profile.Username
	}

	html, err := RenderManuscriptHTML(BuildTemplateData(novel, author, chapters, req.Now))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(novel.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return s.pdf(ctx, html, novel.Title)
	case FormatDOCX:
		return s.docx(ctx, html, novel.Title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}

// BuildTemplateData renders each chapter body and totals the word count.
func BuildTemplateData(novel domain.Novel, author string, chapters []domain.Chapter, now time.Time) TemplateData {
	data := TemplateData{
		Title:       novel.Title,
		Description: novel.Description,
		Genre:       novel.Genre,
		Author:      author,
		GeneratedAt: now,
		Chapters:    make([]TemplateChapter, 0, len(chapters)),
	}
	for i, chapter := range chapters {
		words := chapter.WordCount
		if words == 0 {
			words = render.ContentWordCount(chapter.Content)
		}
		title := chapter.Title
		if title == "" {
			title = "Chapter " + strconv.Itoa(i+1)
		}
		data.WordCount += words
		data.Chapters = append(data.Chapters, TemplateChapter{
			Anchor:    "chapter-" + strconv.Itoa(i+1),
			Title:     title,
			Status:    string(domain.Status(chapter, now)),
			WordCount: words,
			BodyHTML:  template.HTML(render.HTML(chapter.Content)),
		})
	}
	return data
}

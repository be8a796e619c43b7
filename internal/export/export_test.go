package export

import (
	"context"
	"errors"
	"html/template"
	"strings"
	"testing"
	"time"

	"writepad/internal/domain"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"My Novel v1.2", "My-Novel-v12"},
		{"  Salt   Roads ", "Salt-Roads"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"Сказки моря", "Сказки-моря"},
		{"", "manuscript"},
		{"?!", "manuscript"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPageFooterEscapesTitle(t *testing.T) {
	footer := pageFooter(`Salt & "Roads"`)
	if !strings.Contains(footer, "Salt &amp; &#34;Roads&#34;") {
		t.Fatalf("title not escaped: %s", footer)
	}
	if !strings.Contains(footer, `class="pageNumber"`) {
		t.Fatalf("footer lacks page number slot: %s", footer)
	}
}

func TestParseFormatAndSelection(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != FormatHTML {
		t.Fatalf("ParseFormat(\"\") = %q, %v", f, err)
	}
	if f, err := ParseFormat("PDF"); err != nil || f != FormatPDF {
		t.Fatalf("ParseFormat(PDF) = %q, %v", f, err)
	}
	if _, err := ParseFormat("epub"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if s, err := ParseSelection("live"); err != nil || s != IncludeLive {
		t.Fatalf("ParseSelection(live) = %q, %v", s, err)
	}
	if _, err := ParseSelection("drafts"); !errors.Is(err, ErrUnsupportedSelection) {
		t.Fatalf("expected ErrUnsupportedSelection, got %v", err)
	}
}

func TestRenderManuscriptHTML(t *testing.T) {
	data := TemplateData{
		Title:       "The Salt Road",
		Description: "A caravan crosses the flats.",
		Genre:       "Fantasy",
		Author:      "mara",
		GeneratedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		WordCount:   4,
		Chapters: []TemplateChapter{
			{Anchor: "chapter-1", Title: "Departure", Status: "live", BodyHTML: template.HTML(`<p class="indent">They left at dawn.</p>`)},
			{Anchor: "chapter-2", Title: "Flats", Status: "draft", BodyHTML: template.HTML("<p>tbd</p>")},
		},
	}

	html, err := RenderManuscriptHTML(data)
	if err != nil {
		t.Fatalf("RenderManuscriptHTML() error = %v", err)
	}
	for _, want := range []string{"The Salt Road", "mara", "Fantasy", "Contents", `href="#chapter-2"`, "Mar 1, 2026"} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
	if !strings.Contains(html, `<p class="indent">They left at dawn.</p>`) {
		t.Error("chapter body should be rendered unescaped")
	}
	if !strings.Contains(html, `<p class="status">draft</p>`) {
		t.Error("non-live chapters should be labelled")
	}
}

type fakeSource struct {
	novel    domain.Novel
	chapters []domain.Chapter
	profile  domain.Profile
	err      error
}

func (f fakeSource) GetNovel(context.Context, string) (domain.Novel, error) {
	return f.novel, f.err
}

func (f fakeSource) ListChapters(context.Context, string) ([]domain.Chapter, error) {
	return f.chapters, nil
}

func (f fakeSource) GetProfile(context.Context, string) (domain.Profile, error) {
	return f.profile, nil
}

func testSource(now time.Time) fakeSource {
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	return fakeSource{
		novel:   domain.Novel{ID: "n1", OwnerID: "u1", Title: "Salt Road"},
		profile: domain.Profile{ID: "u1", Username: "mara"},
		chapters: []domain.Chapter{
			{ID: "c1", Title: "Live one", Content: "dawn broke", Order: 0, IsPublished: true, PublishedAt: &past},
			{ID: "c2", Title: "Scheduled", Content: "later", Order: 1, IsPublished: true, PublishedAt: &future},
			{ID: "c3", Title: "Draft", Content: "secret", Order: 2},
		},
	}
}

func TestExportHTMLIncludeAll(t *testing.T) {
	now := time.Now()
	svc := NewService(testSource(now))

	res, err := svc.Export(context.Background(), Request{NovelID: "n1", Format: FormatHTML, Include: IncludeAll, Now: now})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if res.Filename != "Salt-Road.html" || !strings.HasPrefix(res.MimeType, "text/html") {
		t.Fatalf("unexpected result metadata: %+v", res)
	}
	body := string(res.Data)
	for _, want := range []string{"dawn broke", "later", "secret", "mara"} {
		if !strings.Contains(body, want) {
			t.Errorf("manuscript missing %q", want)
		}
	}
	if !strings.Contains(body, "scheduled") {
		t.Error("scheduled chapter should carry its status")
	}
}

func TestExportLiveOnlyDropsDraftsAndScheduled(t *testing.T) {
	now := time.Now()
	svc := NewService(testSource(now))

	res, err := svc.Export(context.Background(), Request{NovelID: "n1", Format: FormatHTML, Include: IncludeLive, Now: now})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	body := string(res.Data)
	if !strings.Contains(body, "dawn broke") {
		t.Error("live chapter missing")
	}
	if strings.Contains(body, "secret") || strings.Contains(body, ">later<") {
		t.Error("draft or scheduled chapter leaked into live export")
	}
}

func TestExportDispatchesConverters(t *testing.T) {
	now := time.Now()
	svc := NewService(testSource(now))
	var gotTitle string
	svc.pdf = func(_ context.Context, html, title string) (*Result, error) {
		gotTitle = title
		if !strings.Contains(html, "dawn broke") {
			t.Error("converter received incomplete html")
		}
		return &Result{Data: []byte("%PDF"), Filename: "x.pdf", MimeType: "application/pdf"}, nil
	}
	svc.docx = func(context.Context, string, string) (*Result, error) {
		return nil, ErrDOCXDependencyMissing
	}

	res, err := svc.Export(context.Background(), Request{NovelID: "n1", Format: FormatPDF, Now: now})
	if err != nil || string(res.Data) != "%PDF" || gotTitle != "Salt Road" {
		t.Fatalf("pdf export = %+v, %v (title %q)", res, err, gotTitle)
	}
	if _, err := svc.Export(context.Background(), Request{NovelID: "n1", Format: FormatDOCX, Now: now}); !errors.Is(err, ErrDOCXDependencyMissing) {
		t.Fatalf("expected ErrDOCXDependencyMissing, got %v", err)
	}
}

func TestExportPropagatesSourceError(t *testing.T) {
	src := testSource(time.Now())
	src.err = errors.New("boom")
	if _, err := NewService(src).Export(context.Background(), Request{NovelID: "n1", Format: FormatHTML}); err == nil {
		t.Fatal("expected error")
	}
}

package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"writepad/internal/domain"
	"writepad/internal/functions"
	"writepad/internal/storage"
	"writepad/internal/store"
)

func loginAs(t *testing.T, svc *Service, name string) string {
	t.Helper()
	session, err := svc.Login(context.Background(), name)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return session.Token
}

func TestCreateNovelHTTP(t *testing.T) {
	svc := newHTTPTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")
	token := loginAs(t, svc, "Avery")

	rr := doJSON(t, server.Handler(), http.MethodPost, "/api/novels", token, `{"title":"The Long Road","genre":"Fantasy"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	novel, ok := decodeJSON(t, rr)["novel"].(map[string]any)
	if !ok {
		t.Fatalf("expected novel payload")
	}
	if novel["title"] != "The Long Road" || novel["ownerId"] != "user-Avery" {
		t.Fatalf("unexpected novel %v", novel)
	}
}

func TestNovelAccessCodesHTTP(t *testing.T) {
	fs := &fakeStore{
		getNovelFn: func(_ context.Context, id string) (domain.Novel, error) {
			switch id {
			case "private":
				return domain.Novel{ID: id, OwnerID: "user-Owner"}, nil
			case "public":
				return domain.Novel{ID: id, OwnerID: "user-Owner", IsPublic: true}, nil
			}
			return domain.Novel{}, sql.ErrNoRows
		},
	}
	svc := newHTTPTestService(fs)
	server := NewHTTPServer(svc, "*")
	token := loginAs(t, svc, "Stranger")

	cases := []struct {
		method string
		path   string
		body   string
		want   int
		code   string
	}{
		{http.MethodGet, "/api/novels/missing", "", http.StatusNotFound, "NOT_FOUND"},
		{http.MethodGet, "/api/novels/private", "", http.StatusNotFound, "NOT_FOUND"},
		{http.MethodGet, "/api/novels/public", "", http.StatusOK, ""},
		{http.MethodPatch, "/api/novels/public", `{"title":"Taken"}`, http.StatusForbidden, "FORBIDDEN"},
		{http.MethodDelete, "/api/novels/public", "", http.StatusForbidden, "FORBIDDEN"},
		{http.MethodPatch, "/api/novels/public", `{}`, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rr := doJSON(t, server.Handler(), tc.method, tc.path, token, tc.body)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d body=%s", tc.want, rr.Code, rr.Body.String())
			}
			if tc.code != "" {
				if code := decodeJSON(t, rr)["code"]; code != tc.code {
					t.Fatalf("expected code %s, got %v", tc.code, code)
				}
			}
		})
	}
}

func TestReorderChaptersHTTP(t *testing.T) {
	var got []domain.OrderChange
	fs := &fakeStore{
		getNovelFn: func(_ context.Context, id string) (domain.Novel, error) {
			return domain.Novel{ID: id, OwnerID: "user-Avery"}, nil
		},
		reorderChaptersFn: func(_ context.Context, _ string, changes []domain.OrderChange) ([]domain.Chapter, error) {
			got = changes
			return []domain.Chapter{{ID: "b", Order: 0}, {ID: "a", Order: 1}}, nil
		},
	}
	svc := newHTTPTestService(fs)
	server := NewHTTPServer(svc, "*")
	token := loginAs(t, svc, "Avery")

	rr := doJSON(t, server.Handler(), http.MethodPatch, "/api/novels/n1/chapters/order", token, `[{"id":"a","order":1},{"id":"b","order":0}]`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if len(got) != 2 || got[0].ID != "a" || got[0].Order != 1 {
		t.Fatalf("unexpected changes %+v", got)
	}
	chapters, _ := decodeJSON(t, rr)["chapters"].([]any)
	if len(chapters) != 2 {
		t.Fatalf("expected two chapters, got %v", chapters)
	}
}

func TestReorderNotDenseIsValidationError(t *testing.T) {
	fs := &fakeStore{
		getNovelFn: func(_ context.Context, id string) (domain.Novel, error) {
			return domain.Novel{ID: id, OwnerID: "user-Avery"}, nil
		},
		reorderChaptersFn: func(context.Context, string, []domain.OrderChange) ([]domain.Chapter, error) {
			return nil, store.ErrOrderNotDense
		},
	}
	svc := newHTTPTestService(fs)
	server := NewHTTPServer(svc, "*")
	token := loginAs(t, svc, "Avery")

	rr := doJSON(t, server.Handler(), http.MethodPatch, "/api/novels/n1/chapters/order", token, `[{"id":"a","order":5}]`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestPublicReaderHTTP(t *testing.T) {
	published := time.Now().Add(-time.Hour)
	fs := &fakeStore{
		getPublicNovelFn: func(_ context.Context, id string) (domain.PublicNovel, error) {
			if id != "n1" {
				return domain.PublicNovel{}, sql.ErrNoRows
			}
			return domain.PublicNovel{Novel: domain.Novel{ID: id, Title: "Open", IsPublic: true}}, nil
		},
		listLiveChaptersFn: func(context.Context, string, time.Time) ([]domain.Chapter, error) {
			return []domain.Chapter{{ID: "c1", NovelID: "n1", Title: "One", IsPublished: true, PublishedAt: &published}}, nil
		},
		getLiveChapterFn: func(_ context.Context, id string, _ time.Time) (domain.Chapter, error) {
			if id != "c1" {
				return domain.Chapter{}, sql.ErrNoRows
			}
			return domain.Chapter{ID: "c1", NovelID: "n1", Title: "One", Content: "Once upon a time", IsPublished: true, PublishedAt: &published}, nil
		},
	}
	server := NewHTTPServer(newHTTPTestService(fs), "*")

	toc := doJSON(t, server.Handler(), http.MethodGet, "/api/public/novels/n1/chapters", "", "")
	if toc.Code != http.StatusOK {
		t.Fatalf("expected toc 200, got %d body=%s", toc.Code, toc.Body.String())
	}
	if entries, _ := decodeJSON(t, toc)["chapters"].([]any); len(entries) != 1 {
		t.Fatalf("expected one toc entry, got %v", entries)
	}

	chapter := doJSON(t, server.Handler(), http.MethodGet, "/api/public/chapters/c1", "", "")
	if chapter.Code != http.StatusOK {
		t.Fatalf("expected chapter 200, got %d body=%s", chapter.Code, chapter.Body.String())
	}
	body, _ := decodeJSON(t, chapter)["chapter"].(map[string]any)
	if html, _ := body["html"].(string); !strings.Contains(html, "Once upon a time") {
		t.Fatalf("expected rendered html, got %v", body)
	}

	draft := doJSON(t, server.Handler(), http.MethodGet, "/api/public/chapters/draft", "", "")
	if draft.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for non-live chapter, got %d", draft.Code)
	}

	write := doJSON(t, server.Handler(), http.MethodPost, "/api/public/novels", "", `{}`)
	if write.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for public write, got %d", write.Code)
	}
}

func TestMarkThreadReadHTTP(t *testing.T) {
	var viewer, sender string
	fs := &fakeStore{
		markReadFn: func(_ context.Context, v, s string) (int, error) {
			viewer, sender = v, s
			return 3, nil
		},
	}
	svc := newHTTPTestService(fs)
	server := NewHTTPServer(svc, "*")
	token := loginAs(t, svc, "Avery")

	rr := doJSON(t, server.Handler(), http.MethodPost, "/api/messages/read", token, `{"senderId":"user-Robin"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if updated := decodeJSON(t, rr)["updated"]; updated != float64(3) {
		t.Fatalf("expected 3 updated, got %v", updated)
	}
	if viewer != "user-Avery" || sender != "user-Robin" {
		t.Fatalf("unexpected mark read args viewer=%q sender=%q", viewer, sender)
	}
}

func TestStorageWithoutBackendIsUnavailable(t *testing.T) {
	svc := newHTTPTestService(&fakeStore{})
	server := NewHTTPServer(svc, "*")
	token := loginAs(t, svc, "Avery")

	req := httptest.NewRequest(http.MethodPut, "/api/storage/covers", strings.NewReader("png-bytes"))
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestFunctionErrorIsDistinctFromServerError(t *testing.T) {
	svc := newHTTPTestService(&fakeStore{})
	svc.functions.Register("fails", func(context.Context, functions.Caller, json.RawMessage) (any, error) {
		return nil, &functions.Error{Function: "fails", Message: "prompt rejected"}
	})
	svc.functions.Register("breaks", func(context.Context, functions.Caller, json.RawMessage) (any, error) {
		return nil, errors.New("upstream unreachable")
	})
	svc.functions.Register("echo", func(_ context.Context, caller functions.Caller, body json.RawMessage) (any, error) {
		return map[string]any{"caller": caller.UserID, "body": string(body)}, nil
	})
	server := NewHTTPServer(svc, "*")
	token := loginAs(t, svc, "Avery")

	failed := doJSON(t, server.Handler(), http.MethodPost, "/api/functions/fails", token, `{}`)
	if failed.Code != http.StatusUnprocessableEntity || decodeJSON(t, failed)["code"] != "FUNCTION_ERROR" {
		t.Fatalf("expected 422 FUNCTION_ERROR, got %d body=%s", failed.Code, failed.Body.String())
	}

	broken := doJSON(t, server.Handler(), http.MethodPost, "/api/functions/breaks", token, `{}`)
	if broken.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", broken.Code)
	}

	unknown := doJSON(t, server.Handler(), http.MethodPost, "/api/functions/missing", token, `{}`)
	if unknown.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", unknown.Code)
	}

	ok := doJSON(t, server.Handler(), http.MethodPost, "/api/functions/echo", token, ``)
	payload := decodeJSON(t, ok)
	if payload["ok"] != true {
		t.Fatalf("expected ok envelope, got %v", payload)
	}
	result, _ := payload["result"].(map[string]any)
	if result["caller"] != "user-Avery" || result["body"] != "{}" {
		t.Fatalf("unexpected result %v", result)
	}
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{sql.ErrNoRows, http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"}), http.StatusConflict, "CONFLICT"},
		{&pgconn.PgError{Code: "23514"}, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{&pgconn.PgError{Code: "22P02"}, http.StatusNotFound, "NOT_FOUND"},
		{domain.ErrInvalidLoreType, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{storage.ErrTooLarge, http.StatusRequestEntityTooLarge, "TOO_LARGE"},
		{storage.ErrUnsupportedType, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE"},
		{errForbidden, http.StatusForbidden, "FORBIDDEN"},
		{errors.New("boom"), http.StatusInternalServerError, "SERVER_ERROR"},
	}
	for _, tc := range cases {
		status, code, _, _ := mapError(tc.err)
		if status != tc.status || code != tc.code {
			t.Errorf("mapError(%v) = %d %s, want %d %s", tc.err, status, code, tc.status, tc.code)
		}
	}
}

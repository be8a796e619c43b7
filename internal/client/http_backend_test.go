package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"writepad/internal/domain"
)

type staticTokens string

func (s staticTokens) AccessToken() string { return string(s) }

func newTestBackend(t *testing.T, handler http.HandlerFunc) *HTTPBackend {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	backend := NewHTTPBackend(server.URL+"/", 5*time.Second)
	backend.UseTokens(staticTokens("tok"))
	return backend
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestHTTPBackendSignInDecodesSession(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/signin" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("expected stored token forwarded, got %q", r.Header.Get("Authorization"))
		}
		var creds Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Provider != "dev" || creds.Name != "Robin" {
			t.Errorf("unexpected credentials %+v err=%v", creds, err)
		}
		writeTestJSON(w, http.StatusOK, map[string]any{
			"token": "a", "refreshToken": "r", "userId": "u_1", "userName": "Robin", "expiresAt": 1773489600,
		})
	})

	session, err := backend.SignIn(context.Background(), Credentials{Provider: "dev", Name: "Robin"})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	want := Session{Token: "a", RefreshToken: "r", UserID: "u_1", UserName: "Robin", ExpiresAt: time.Unix(1773489600, 0).UTC()}
	if session != want {
		t.Fatalf("expected %+v, got %+v", want, session)
	}
}

func TestHTTPBackendMapsErrorEnvelopes(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   map[string]any
		kind   string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: map[string]any{"code": "UNAUTHORIZED", "error": "expired"}, kind: "auth_required"},
		{name: "missing", status: http.StatusNotFound, body: map[string]any{"code": "NOT_FOUND", "error": "novel not found"}, kind: "not_found"},
		{name: "forbidden", status: http.StatusForbidden, body: map[string]any{"code": "FORBIDDEN", "error": "not yours"}, kind: "validation"},
		{name: "invalid", status: http.StatusUnprocessableEntity, body: map[string]any{"code": "VALIDATION_ERROR", "error": "title too long"}, kind: "validation"},
		{name: "conflict", status: http.StatusConflict, body: map[string]any{"code": "CONFLICT", "error": "duplicate"}, kind: "conflict"},
		{name: "server", status: http.StatusInternalServerError, body: map[string]any{"code": "SERVER_ERROR", "error": "boom"}, kind: "transport"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
				writeTestJSON(w, tc.status, tc.body)
			})
			_, err := backend.UpdateNovel(context.Background(), "n_1", domain.NovelPatch{Title: domain.Ptr("x")})
			if got := Kind(err); got != tc.kind {
				t.Fatalf("expected %s, got %s (%v)", tc.kind, got, err)
			}
		})
	}
}

func TestHTTPBackendRequiresTokenWithoutCallingServer(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeTestJSON(w, http.StatusOK, map[string]any{"novels": []any{}})
	}))
	defer server.Close()
	backend := NewHTTPBackend(server.URL, time.Second)

	if _, err := backend.ListNovels(context.Background()); !IsAuthRequired(err) {
		t.Fatalf("expected auth required, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("request sent without a session")
	}
	if _, err := backend.Explore(context.Background(), ""); err != nil {
		t.Fatalf("public explore should not need a session: %v", err)
	}
}

func TestHTTPBackendTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	backend := NewHTTPBackend(url, time.Second)
	backend.UseTokens(staticTokens("tok"))

	if _, err := backend.ListNovels(context.Background()); Kind(err) != "transport" {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestHTTPBackendInvokeDistinguishesFunctionFailure(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/functions/generate":
			writeTestJSON(w, http.StatusOK, map[string]any{"ok": true, "result": map[string]string{"text": "Once upon"}})
		case "/api/functions/broken":
			writeTestJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"code": "FUNCTION_ERROR", "error": "model refused", "details": map[string]any{"function": "broken"},
			})
		default:
			writeTestJSON(w, http.StatusNotFound, map[string]any{"code": "NOT_FOUND", "error": "unknown function"})
		}
	})
	ctx := context.Background()

	var out struct {
		Text string `json:"text"`
	}
	if err := backend.Invoke(ctx, "generate", map[string]string{"prompt": "a tale"}, &out); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out.Text != "Once upon" {
		t.Fatalf("unexpected result %q", out.Text)
	}

	err := backend.Invoke(ctx, "broken", nil, nil)
	var fnErr *FunctionError
	if !errors.As(err, &fnErr) || fnErr.Function != "broken" {
		t.Fatalf("expected function error for broken, got %v", err)
	}
	if err := backend.Invoke(ctx, "missing", nil, nil); Kind(err) != "not_found" {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestHTTPBackendReorderAndMarkRead(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPatch && r.URL.Path == "/api/novels/n_1/chapters/order":
			var changes []domain.OrderChange
			_ = json.NewDecoder(r.Body).Decode(&changes)
			chapters := make([]domain.Chapter, 0, len(changes))
			for _, c := range changes {
				chapters = append(chapters, domain.Chapter{ID: c.ID, Order: c.Order})
			}
			writeTestJSON(w, http.StatusOK, map[string]any{"chapters": chapters})
		case r.Method == http.MethodPost && r.URL.Path == "/api/messages/read":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["senderId"] != "u_ana" {
				t.Errorf("unexpected sender %q", body["senderId"])
			}
			writeTestJSON(w, http.StatusOK, map[string]any{"updated": 3})
		case r.Method == http.MethodGet && r.URL.Path == "/api/profiles":
			if r.URL.Query().Get("ids") != "u_a,u_b" {
				t.Errorf("expected one batched ids query, got %q", r.URL.RawQuery)
			}
			writeTestJSON(w, http.StatusOK, map[string]any{"profiles": []domain.Profile{{ID: "u_a"}, {ID: "u_b"}}})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	})
	ctx := context.Background()

	changes := []domain.OrderChange{{ID: "c_3", Order: 0}, {ID: "c_1", Order: 1}}
	chapters, err := backend.ReorderChapters(ctx, "n_1", changes)
	if err != nil || len(chapters) != 2 || chapters[0].ID != "c_3" {
		t.Fatalf("reorder: %+v %v", chapters, err)
	}
	n, err := backend.MarkRead(ctx, "u_ana")
	if err != nil || n != 3 {
		t.Fatalf("mark read: %d %v", n, err)
	}
	profiles, err := backend.GetProfiles(ctx, []string{"u_a", "u_b"})
	if err != nil || len(profiles) != 2 {
		t.Fatalf("profiles: %+v %v", profiles, err)
	}
	if none, err := backend.GetProfiles(ctx, nil); err != nil || len(none) != 0 {
		t.Fatalf("empty lookup should not call the server: %v", err)
	}
}

func TestHTTPBackendUploadAndExport(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/storage/covers":
			if r.Method != http.MethodPut || r.Header.Get("Content-Type") != "image/png" {
				t.Errorf("unexpected upload %s %s", r.Method, r.Header.Get("Content-Type"))
			}
			data, _ := io.ReadAll(r.Body)
			if string(data) != "png-bytes" {
				t.Errorf("unexpected body %q", data)
			}
			writeTestJSON(w, http.StatusCreated, StoredObject{Key: "covers/u_1/a.png", URL: "https://cdn/covers/u_1/a.png"})
		case "/api/novels/n_1/export":
			if got := r.URL.Query(); got.Get("format") != "docx" || got.Get("include") != "live" {
				t.Errorf("unexpected export query %v", got)
			}
			w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
			w.Header().Set("Content-Disposition", `attachment; filename="salt-roads.docx"`)
			_, _ = w.Write([]byte("PK\x03\x04"))
		}
	})
	ctx := context.Background()

	object, err := backend.Upload(ctx, "covers", "image/png", []byte("png-bytes"))
	if err != nil || object.Key != "covers/u_1/a.png" {
		t.Fatalf("upload: %+v %v", object, err)
	}
	data, filename, err := backend.Export(ctx, "n_1", "docx", "live")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if filename != "salt-roads.docx" || !reflect.DeepEqual(data, []byte("PK\x03\x04")) {
		t.Fatalf("unexpected export %q %q", filename, data)
	}
}

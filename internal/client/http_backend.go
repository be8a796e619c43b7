package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"writepad/internal/domain"
)

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource interface {
	AccessToken() string
}

// HTTPBackend talks to the writepad API.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
}

func NewHTTPBackend(baseURL string, timeout time.Duration) *HTTPBackend {
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// UseTokens sets where bearer tokens come from, usually an *Auth.
func (b *HTTPBackend) UseTokens(tokens TokenSource) {
	b.tokens = tokens
}

type sessionWire struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
	ExpiresAt    int64  `json:"expiresAt"`
}

func (w sessionWire) session() Session {
	return Session{
		Token:        w.Token,
		RefreshToken: w.RefreshToken,
		UserID:       w.UserID,
		UserName:     w.UserName,
		ExpiresAt:    time.Unix(w.ExpiresAt, 0).UTC(),
	}
}

type request struct {
	op          string
	method      string
	path        string
	body        any
	raw         []byte
	contentType string
	anonymous   bool
	token       string
}

func (b *HTTPBackend) send(ctx context.Context, r request) (*http.Response, error) {
	var body io.Reader
	contentType := r.contentType
	switch {
	case r.raw != nil:
		body = bytes.NewReader(r.raw)
	case r.body != nil:
		encoded, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", r.op, err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, b.baseURL+r.path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", r.op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	token := r.token
	if token == "" && b.tokens != nil {
		token = b.tokens.AccessToken()
	}
	if !r.anonymous {
		if token == "" {
			return nil, &AuthRequiredError{Op: r.op}
		}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: r.op, Err: err}
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		var envelope errorBody
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&envelope)
		return nil, fromResponse(r.op, resp.StatusCode, envelope)
	}
	return resp, nil
}

func (b *HTTPBackend) do(ctx context.Context, r request, out any) error {
	resp, err := b.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: r.op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (b *HTTPBackend) sessionCall(ctx context.Context, op, path string, body any) (Session, error) {
	var wire sessionWire
	if err := b.do(ctx, request{op: op, method: http.MethodPost, path: path, body: body, anonymous: true}, &wire); err != nil {
		return Session{}, err
	}
	return wire.session(), nil
}

// Auth

func (b *HTTPBackend) SignUp(ctx context.Context, input SignUpInput) (Session, error) {
	return b.sessionCall(ctx, "sign up", "/api/auth/signup", input)
}

func (b *HTTPBackend) SignIn(ctx context.Context, creds Credentials) (Session, error) {
	return b.sessionCall(ctx, "sign in", "/api/auth/signin", creds)
}

func (b *HTTPBackend) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	return b.sessionCall(ctx, "refresh session", "/api/session/refresh", map[string]string{"refreshToken": refreshToken})
}

func (b *HTTPBackend) SignOut(ctx context.Context, session Session) error {
	return b.do(ctx, request{
		op:        "sign out",
		method:    http.MethodPost,
		path:      "/api/session/logout",
		body:      map[string]string{"refreshToken": session.RefreshToken},
		anonymous: true,
		token:     session.Token,
	}, nil)
}

// Novels

func (b *HTTPBackend) ListNovels(ctx context.Context) ([]domain.Novel, error) {
	var out struct {
		Novels []domain.Novel `json:"novels"`
	}
	err := b.do(ctx, request{op: "list novels", method: http.MethodGet, path: "/api/novels"}, &out)
	return out.Novels, err
}

func (b *HTTPBackend) CreateNovel(ctx context.Context, input domain.NovelPatch) (domain.Novel, error) {
	var out struct {
		Novel domain.Novel `json:"novel"`
	}
	err := b.do(ctx, request{op: "create novel", method: http.MethodPost, path: "/api/novels", body: input}, &out)
	return out.Novel, err
}

func (b *HTTPBackend) UpdateNovel(ctx context.Context, id string, patch domain.NovelPatch) (domain.Novel, error) {
	var out struct {
		Novel domain.Novel `json:"novel"`
	}
	err := b.do(ctx, request{op: "update novel", method: http.MethodPatch, path: "/api/novels/" + url.PathEscape(id), body: patch}, &out)
	return out.Novel, err
}

func (b *HTTPBackend) DeleteNovel(ctx context.Context, id string) error {
	return b.do(ctx, request{op: "delete novel", method: http.MethodDelete, path: "/api/novels/" + url.PathEscape(id)}, nil)
}

// Chapters

func (b *HTTPBackend) ListChapters(ctx context.Context, novelID string) ([]domain.Chapter, error) {
	var out struct {
		Chapters []domain.Chapter `json:"chapters"`
	}
	err := b.do(ctx, request{op: "list chapters", method: http.MethodGet, path: "/api/novels/" + url.PathEscape(novelID) + "/chapters"}, &out)
	return out.Chapters, err
}

func (b *HTTPBackend) CreateChapter(ctx context.Context, novelID string, input ChapterInput) (domain.Chapter, error) {
	var out struct {
		Chapter domain.Chapter `json:"chapter"`
	}
	err := b.do(ctx, request{op: "create chapter", method: http.MethodPost, path: "/api/novels/" + url.PathEscape(novelID) + "/chapters", body: input}, &out)
	return out.Chapter, err
}

func (b *HTTPBackend) UpdateChapter(ctx context.Context, id string, patch domain.ChapterPatch) (domain.Chapter, error) {
	var out struct {
		Chapter domain.Chapter `json:"chapter"`
	}
	err := b.do(ctx, request{op: "update chapter", method: http.MethodPatch, path: "/api/chapters/" + url.PathEscape(id), body: patch}, &out)
	return out.Chapter, err
}

func (b *HTTPBackend) DeleteChapter(ctx context.Context, id string) error {
	return b.do(ctx, request{op: "delete chapter", method: http.MethodDelete, path: "/api/chapters/" + url.PathEscape(id)}, nil)
}

func (b *HTTPBackend) ReorderChapters(ctx context.Context, novelID string, changes []domain.OrderChange) ([]domain.Chapter, error) {
	var out struct {
		Chapters []domain.Chapter `json:"chapters"`
	}
	err := b.do(ctx, request{op: "reorder chapters", method: http.MethodPatch, path: "/api/novels/" + url.PathEscape(novelID) + "/chapters/order", body: changes}, &out)
	return out.Chapters, err
}

// Lore

func (b *HTTPBackend) ListLore(ctx context.Context, novelID string) ([]domain.LoreEntry, error) {
	var out struct {
		Lore []domain.LoreEntry `json:"lore"`
	}
	err := b.do(ctx, request{op: "list lore", method: http.MethodGet, path: "/api/novels/" + url.PathEscape(novelID) + "/lore"}, &out)
	return out.Lore, err
}

func (b *HTTPBackend) CreateLore(ctx context.Context, novelID string, input LoreInput) (domain.LoreEntry, error) {
	var out struct {
		Entry domain.LoreEntry `json:"entry"`
	}
	err := b.do(ctx, request{op: "create lore", method: http.MethodPost, path: "/api/novels/" + url.PathEscape(novelID) + "/lore", body: input}, &out)
	return out.Entry, err
}

func (b *HTTPBackend) UpdateLore(ctx context.Context, id string, patch domain.LorePatch) (domain.LoreEntry, error) {
	var out struct {
		Entry domain.LoreEntry `json:"entry"`
	}
	err := b.do(ctx, request{op: "update lore", method: http.MethodPatch, path: "/api/lore/" + url.PathEscape(id), body: patch}, &out)
	return out.Entry, err
}

func (b *HTTPBackend) DeleteLore(ctx context.Context, id string) error {
	return b.do(ctx, request{op: "delete lore", method: http.MethodDelete, path: "/api/lore/" + url.PathEscape(id)}, nil)
}

// Messages and profiles

func (b *HTTPBackend) ListMessages(ctx context.Context) ([]domain.Message, error) {
	var out struct {
		Messages []domain.Message `json:"messages"`
	}
	err := b.do(ctx, request{op: "list messages", method: http.MethodGet, path: "/api/messages"}, &out)
	return out.Messages, err
}

func (b *HTTPBackend) SendMessage(ctx context.Context, recipientID, content string) (domain.Message, error) {
	var out struct {
		Message domain.Message `json:"message"`
	}
	body := map[string]string{"recipientId": recipientID, "content": content}
	err := b.do(ctx, request{op: "send message", method: http.MethodPost, path: "/api/messages", body: body}, &out)
	return out.Message, err
}

func (b *HTTPBackend) MarkRead(ctx context.Context, senderID string) (int, error) {
	var out struct {
		Updated int `json:"updated"`
	}
	err := b.do(ctx, request{op: "mark read", method: http.MethodPost, path: "/api/messages/read", body: map[string]string{"senderId": senderID}}, &out)
	return out.Updated, err
}

func (b *HTTPBackend) GetProfiles(ctx context.Context, ids []string) ([]domain.Profile, error) {
	if len(ids) == 0 {
		return []domain.Profile{}, nil
	}
	var out struct {
		Profiles []domain.Profile `json:"profiles"`
	}
	path := "/api/profiles?ids=" + url.QueryEscape(strings.Join(ids, ","))
	err := b.do(ctx, request{op: "get profiles", method: http.MethodGet, path: path}, &out)
	return out.Profiles, err
}

func (b *HTTPBackend) UpdateProfile(ctx context.Context, patch domain.ProfilePatch) (domain.Profile, error) {
	var out struct {
		Profile domain.Profile `json:"profile"`
	}
	err := b.do(ctx, request{op: "update profile", method: http.MethodPatch, path: "/api/profiles/me", body: patch}, &out)
	return out.Profile, err
}

// Storage

func (b *HTTPBackend) Upload(ctx context.Context, kind, contentType string, data []byte) (StoredObject, error) {
	var out StoredObject
	err := b.do(ctx, request{
		op:          "upload " + kind,
		method:      http.MethodPut,
		path:        "/api/storage/" + url.PathEscape(kind),
		raw:         data,
		contentType: contentType,
	}, &out)
	return out, err
}

func (b *HTTPBackend) ObjectURL(ctx context.Context, key string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := b.do(ctx, request{op: "object url", method: http.MethodGet, path: "/api/storage/url?key=" + url.QueryEscape(key)}, &out)
	return out.URL, err
}

// Functions

func (b *HTTPBackend) Invoke(ctx context.Context, name string, body any, out any) error {
	if body == nil {
		body = map[string]any{}
	}
	var envelope struct {
		OK     bool            `json:"ok"`
		Result json.RawMessage `json:"result"`
	}
	op := "function " + name
	if err := b.do(ctx, request{op: op, method: http.MethodPost, path: "/api/functions/" + url.PathEscape(name), body: body}, &envelope); err != nil {
		return err
	}
	if !envelope.OK {
		return &FunctionError{Function: name, Message: "function did not report success"}
	}
	if err := decodeResult(envelope.Result, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode result: %w", err)}
	}
	return nil
}

// Export downloads a manuscript and returns its bytes and suggested filename.
func (b *HTTPBackend) Export(ctx context.Context, novelID, format, include string) ([]byte, string, error) {
	query := url.Values{}
	if format != "" {
		query.Set("format", format)
	}
	if include != "" {
		query.Set("include", include)
	}
	path := "/api/novels/" + url.PathEscape(novelID) + "/export"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	resp, err := b.send(ctx, request{op: "export novel", method: http.MethodGet, path: path})
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &TransportError{Op: "export novel", Err: err}
	}
	filename := "manuscript"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	return data, filename, nil
}

// Public reader

func (b *HTTPBackend) Explore(ctx context.Context, query string) ([]domain.PublicNovel, error) {
	var out struct {
		Novels []domain.PublicNovel `json:"novels"`
	}
	path := "/api/public/novels"
	if strings.TrimSpace(query) != "" {
		path += "?q=" + url.QueryEscape(query)
	}
	err := b.do(ctx, request{op: "explore", method: http.MethodGet, path: path, anonymous: true}, &out)
	return out.Novels, err
}

func (b *HTTPBackend) PublicNovel(ctx context.Context, id string) (domain.PublicNovel, error) {
	var out struct {
		Novel domain.PublicNovel `json:"novel"`
	}
	err := b.do(ctx, request{op: "public novel", method: http.MethodGet, path: "/api/public/novels/" + url.PathEscape(id), anonymous: true}, &out)
	return out.Novel, err
}

func (b *HTTPBackend) PublicProfile(ctx context.Context, userID string) (PublicProfile, error) {
	var out PublicProfile
	err := b.do(ctx, request{op: "public profile", method: http.MethodGet, path: "/api/public/users/" + url.PathEscape(userID), anonymous: true}, &out)
	return out, err
}

func (b *HTTPBackend) TableOfContents(ctx context.Context, novelID string) ([]domain.TOCEntry, error) {
	var out struct {
		Chapters []domain.TOCEntry `json:"chapters"`
	}
	err := b.do(ctx, request{op: "table of contents", method: http.MethodGet, path: "/api/public/novels/" + url.PathEscape(novelID) + "/chapters", anonymous: true}, &out)
	return out.Chapters, err
}

func (b *HTTPBackend) ReadChapter(ctx context.Context, chapterID string) (domain.ReaderChapter, error) {
	var out struct {
		Chapter domain.ReaderChapter `json:"chapter"`
	}
	err := b.do(ctx, request{op: "read chapter", method: http.MethodGet, path: "/api/public/chapters/" + url.PathEscape(chapterID), anonymous: true}, &out)
	return out.Chapter, err
}

var _ Backend = (*HTTPBackend)(nil)

// IsAuthRequired reports whether err asks the caller to sign in.
func IsAuthRequired(err error) bool {
	var authErr *AuthRequiredError
	return errors.As(err, &authErr)
}

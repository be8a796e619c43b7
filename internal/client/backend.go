// Package client is the writing workspace as seen from a signed-in user:
// the backend contract, session handling, and the optimistic stores that
// mirror novels, chapters, lore and the inbox.
package client

import (
	"context"
	"encoding/json"
	"time"

	"writepad/internal/domain"
)

// Session is a signed-in user and the tokens that authenticate them.
type Session struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	UserID       string    `json:"userId"`
	UserName     string    `json:"userName"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Expired reports whether the access token is past, or within skew of, its
// expiry.
func (s Session) Expired(now time.Time, skew time.Duration) bool {
	return !s.ExpiresAt.IsZero() && !now.Add(skew).Before(s.ExpiresAt)
}

// Credentials select a sign-in provider. Provider "password" uses Email and
// Password; "dev" uses Name.
type Credentials struct {
	Provider string `json:"provider"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	Name     string `json:"name,omitempty"`
}

type SignUpInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type ChapterInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type LoreInput struct {
	Title       string `json:"title"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type StoredObject struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

type PublicProfile struct {
	Profile domain.Profile       `json:"profile"`
	Novels  []domain.PublicNovel `json:"novels"`
}

// Backend is everything the stores need from the server. Calls other than
// the public reader and sign-in require a session.
type Backend interface {
	SignUp(ctx context.Context, input SignUpInput) (Session, error)
	SignIn(ctx context.Context, creds Credentials) (Session, error)
	Refresh(ctx context.Context, refreshToken string) (Session, error)
	SignOut(ctx context.Context, session Session) error

	ListNovels(ctx context.Context) ([]domain.Novel, error)
	CreateNovel(ctx context.Context, input domain.NovelPatch) (domain.Novel, error)
	UpdateNovel(ctx context.Context, id string, patch domain.NovelPatch) (domain.Novel, error)
	DeleteNovel(ctx context.Context, id string) error

	ListChapters(ctx context.Context, novelID string) ([]domain.Chapter, error)
	CreateChapter(ctx context.Context, novelID string, input ChapterInput) (domain.Chapter, error)
	UpdateChapter(ctx context.Context, id string, patch domain.ChapterPatch) (domain.Chapter, error)
	DeleteChapter(ctx context.Context, id string) error
	ReorderChapters(ctx context.Context, novelID string, changes []domain.OrderChange) ([]domain.Chapter, error)

	ListLore(ctx context.Context, novelID string) ([]domain.LoreEntry, error)
	CreateLore(ctx context.Context, novelID string, input LoreInput) (domain.LoreEntry, error)
	UpdateLore(ctx context.Context, id string, patch domain.LorePatch) (domain.LoreEntry, error)
	DeleteLore(ctx context.Context, id string) error

	ListMessages(ctx context.Context) ([]domain.Message, error)
	SendMessage(ctx context.Context, recipientID, content string) (domain.Message, error)
	MarkRead(ctx context.Context, senderID string) (int, error)

	GetProfiles(ctx context.Context, ids []string) ([]domain.Profile, error)
	UpdateProfile(ctx context.Context, patch domain.ProfilePatch) (domain.Profile, error)

	Upload(ctx context.Context, kind, contentType string, data []byte) (StoredObject, error)
	ObjectURL(ctx context.Context, key string) (string, error)

	// Invoke runs a named function. A function that ran and failed returns
	// *FunctionError; result is decoded into out when non-nil.
	Invoke(ctx context.Context, name string, body any, out any) error

	Export(ctx context.Context, novelID, format, include string) ([]byte, string, error)

	Explore(ctx context.Context, query string) ([]domain.PublicNovel, error)
	PublicNovel(ctx context.Context, id string) (domain.PublicNovel, error)
	PublicProfile(ctx context.Context, userID string) (PublicProfile, error)
	TableOfContents(ctx context.Context, novelID string) ([]domain.TOCEntry, error)
	ReadChapter(ctx context.Context, chapterID string) (domain.ReaderChapter, error)
}

// decodeResult unmarshals a function result into out.
func decodeResult(raw json.RawMessage, out any) error {
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

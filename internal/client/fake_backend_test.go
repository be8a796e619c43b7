package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"writepad/internal/domain"
)

var errBackendDown = &TransportError{Op: "fake", Err: errors.New("connection refused")}

// fakeBackend is an in-memory Backend. Failures are injected per method name.
type fakeBackend struct {
	mu       sync.Mutex
	now      time.Time
	nextID   int
	user     string
	novels   []domain.Novel
	chapters []domain.Chapter
	lore     []domain.LoreEntry
	messages []domain.Message
	profiles map[string]domain.Profile
	fail     map[string]error
	calls    map[string]int

	reorders     [][]domain.OrderChange
	chapterSaves []string
	profileCalls [][]string
	signOuts     []Session
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		now:      time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		user:     "u_me",
		profiles: map[string]domain.Profile{},
		fail:     map[string]error{},
		calls:    map[string]int{},
	}
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func (f *fakeBackend) failOn(method string, err error) {
	f.mu.Lock()
	f.fail[method] = err
	f.mu.Unlock()
}

func (f *fakeBackend) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// enter records the call and returns the injected failure; caller holds mu.
func (f *fakeBackend) enter(method string) error {
	f.calls[method]++
	return f.fail[method]
}

func (f *fakeBackend) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s_%d", prefix, f.nextID)
}

func (f *fakeBackend) session(name string) Session {
	return Session{
		Token:        "access-" + name,
		RefreshToken: "refresh-" + name,
		UserID:       "u_" + name,
		UserName:     name,
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func (f *fakeBackend) SignUp(ctx context.Context, input SignUpInput) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SignUp"); err != nil {
		return Session{}, err
	}
	return f.session(input.DisplayName), nil
}

func (f *fakeBackend) SignIn(ctx context.Context, creds Credentials) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SignIn"); err != nil {
		return Session{}, err
	}
	return f.session(creds.Name), nil
}

func (f *fakeBackend) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Refresh"); err != nil {
		return Session{}, err
	}
	s := f.session("me")
	s.Token = "access-refreshed"
	return s, nil
}

func (f *fakeBackend) SignOut(ctx context.Context, session Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts = append(f.signOuts, session)
	return f.enter("SignOut")
}

func (f *fakeBackend) ListNovels(ctx context.Context) ([]domain.Novel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListNovels"); err != nil {
		return nil, err
	}
	out := append([]domain.Novel(nil), f.novels...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeBackend) CreateNovel(ctx context.Context, input domain.NovelPatch) (domain.Novel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateNovel"); err != nil {
		return domain.Novel{}, err
	}
	f.now = f.now.Add(time.Minute)
	n := input.Apply(domain.Novel{ID: f.id("n"), OwnerID: f.user, CreatedAt: f.now})
	f.novels = append(f.novels, n)
	return n, nil
}

func (f *fakeBackend) UpdateNovel(ctx context.Context, id string, patch domain.NovelPatch) (domain.Novel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateNovel"); err != nil {
		return domain.Novel{}, err
	}
	for i, n := range f.novels {
		if n.ID == id {
			f.novels[i] = patch.Apply(n)
			return f.novels[i], nil
		}
	}
	return domain.Novel{}, &NotFoundError{Op: "update novel", Message: id}
}

func (f *fakeBackend) DeleteNovel(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteNovel"); err != nil {
		return err
	}
	for i, n := range f.novels {
		if n.ID == id {
			f.novels = append(f.novels[:i], f.novels[i+1:]...)
			return nil
		}
	}
	return &NotFoundError{Op: "delete novel", Message: id}
}

func (f *fakeBackend) novelChapters(novelID string) []domain.Chapter {
	out := make([]domain.Chapter, 0)
	for _, c := range f.chapters {
		if c.NovelID == novelID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func (f *fakeBackend) ListChapters(ctx context.Context, novelID string) ([]domain.Chapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListChapters"); err != nil {
		return nil, err
	}
	return f.novelChapters(novelID), nil
}

func (f *fakeBackend) CreateChapter(ctx context.Context, novelID string, input ChapterInput) (domain.Chapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateChapter"); err != nil {
		return domain.Chapter{}, err
	}
	c := domain.Chapter{
		ID:        f.id("c"),
		NovelID:   novelID,
		Title:     input.Title,
		Content:   input.Content,
		Order:     len(f.novelChapters(novelID)),
		CreatedAt: f.now,
		UpdatedAt: f.now,
	}
	f.chapters = append(f.chapters, c)
	return c, nil
}

func (f *fakeBackend) UpdateChapter(ctx context.Context, id string, patch domain.ChapterPatch) (domain.Chapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateChapter"); err != nil {
		return domain.Chapter{}, err
	}
	if patch.Content != nil {
		f.chapterSaves = append(f.chapterSaves, *patch.Content)
	}
	for i, c := range f.chapters {
		if c.ID == id {
			f.chapters[i] = patch.Apply(c)
			return f.chapters[i], nil
		}
	}
	return domain.Chapter{}, &NotFoundError{Op: "update chapter", Message: id}
}

func (f *fakeBackend) DeleteChapter(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteChapter"); err != nil {
		return err
	}
	novelID := ""
	kept := make([]domain.Chapter, 0, len(f.chapters))
	for _, c := range f.chapters {
		if c.ID == id {
			novelID = c.NovelID
			continue
		}
		kept = append(kept, c)
	}
	if novelID == "" {
		return &NotFoundError{Op: "delete chapter", Message: id}
	}
	f.chapters = kept
	for _, c := range domain.Renumber(f.novelChapters(novelID)) {
		f.setChapter(c)
	}
	return nil
}

func (f *fakeBackend) setChapter(c domain.Chapter) {
	for i := range f.chapters {
		if f.chapters[i].ID == c.ID {
			f.chapters[i] = c
		}
	}
}

func (f *fakeBackend) ReorderChapters(ctx context.Context, novelID string, changes []domain.OrderChange) ([]domain.Chapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ReorderChapters"); err != nil {
		return nil, err
	}
	f.reorders = append(f.reorders, append([]domain.OrderChange(nil), changes...))
	for _, change := range changes {
		for i := range f.chapters {
			if f.chapters[i].ID == change.ID {
				f.chapters[i].Order = change.Order
			}
		}
	}
	return f.novelChapters(novelID), nil
}

func (f *fakeBackend) ListLore(ctx context.Context, novelID string) ([]domain.LoreEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListLore"); err != nil {
		return nil, err
	}
	out := make([]domain.LoreEntry, 0)
	for i := len(f.lore) - 1; i >= 0; i-- {
		if f.lore[i].NovelID == novelID {
			out = append(out, f.lore[i])
		}
	}
	return out, nil
}

func (f *fakeBackend) CreateLore(ctx context.Context, novelID string, input LoreInput) (domain.LoreEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateLore"); err != nil {
		return domain.LoreEntry{}, err
	}
	entry := domain.LoreEntry{
		ID:          f.id("l"),
		NovelID:     novelID,
		Title:       input.Title,
		Type:        domain.LoreType(input.Type),
		Description: input.Description,
		CreatedAt:   f.now,
	}
	f.lore = append(f.lore, entry)
	return entry, nil
}

func (f *fakeBackend) UpdateLore(ctx context.Context, id string, patch domain.LorePatch) (domain.LoreEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateLore"); err != nil {
		return domain.LoreEntry{}, err
	}
	for i, l := range f.lore {
		if l.ID == id {
			f.lore[i] = patch.Apply(l)
			return f.lore[i], nil
		}
	}
	return domain.LoreEntry{}, &NotFoundError{Op: "update lore", Message: id}
}

func (f *fakeBackend) DeleteLore(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteLore"); err != nil {
		return err
	}
	for i, l := range f.lore {
		if l.ID == id {
			f.lore = append(f.lore[:i], f.lore[i+1:]...)
			return nil
		}
	}
	return &NotFoundError{Op: "delete lore", Message: id}
}

func (f *fakeBackend) ListMessages(ctx context.Context) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListMessages"); err != nil {
		return nil, err
	}
	return append([]domain.Message(nil), f.messages...), nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, recipientID, content string) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SendMessage"); err != nil {
		return domain.Message{}, err
	}
	f.now = f.now.Add(time.Minute)
	m := domain.Message{ID: f.id("m"), SenderID: f.user, RecipientID: recipientID, Content: content, CreatedAt: f.now}
	f.messages = append(f.messages, m)
	return m, nil
}

func (f *fakeBackend) MarkRead(ctx context.Context, senderID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("MarkRead"); err != nil {
		return 0, err
	}
	var n int
	f.messages, n = domain.MarkThreadRead(f.messages, f.user, senderID)
	return n, nil
}

func (f *fakeBackend) GetProfiles(ctx context.Context, ids []string) ([]domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileCalls = append(f.profileCalls, append([]string(nil), ids...))
	if err := f.enter("GetProfiles"); err != nil {
		return nil, err
	}
	out := make([]domain.Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := f.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeBackend) UpdateProfile(ctx context.Context, patch domain.ProfilePatch) (domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateProfile"); err != nil {
		return domain.Profile{}, err
	}
	p := patch.Apply(f.profiles[f.user])
	p.ID = f.user
	f.profiles[f.user] = p
	return p, nil
}

func (f *fakeBackend) Upload(ctx context.Context, kind, contentType string, data []byte) (StoredObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Upload"); err != nil {
		return StoredObject{}, err
	}
	key := kind + "/" + f.user + "/" + f.id("obj")
	return StoredObject{Key: key, URL: "https://cdn.test/" + key}, nil
}

func (f *fakeBackend) ObjectURL(ctx context.Context, key string) (string, error) {
	return "https://cdn.test/" + key, nil
}

func (f *fakeBackend) Invoke(ctx context.Context, name string, body any, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enter("Invoke")
}

func (f *fakeBackend) Export(ctx context.Context, novelID, format, include string) ([]byte, string, error) {
	return []byte("manuscript"), novelID + "." + format, nil
}

func (f *fakeBackend) Explore(ctx context.Context, query string) ([]domain.PublicNovel, error) {
	return nil, nil
}

func (f *fakeBackend) PublicNovel(ctx context.Context, id string) (domain.PublicNovel, error) {
	return domain.PublicNovel{}, &NotFoundError{Op: "public novel", Message: id}
}

func (f *fakeBackend) PublicProfile(ctx context.Context, userID string) (PublicProfile, error) {
	return PublicProfile{}, &NotFoundError{Op: "public profile", Message: userID}
}

func (f *fakeBackend) TableOfContents(ctx context.Context, novelID string) ([]domain.TOCEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TOCEntry, 0)
	for _, c := range domain.LiveChapters(f.novelChapters(novelID), f.now) {
		out = append(out, domain.TOCEntry{ID: c.ID, Title: c.Title, Order: c.Order, PublishedAt: *c.PublishedAt})
	}
	return out, nil
}

func (f *fakeBackend) ReadChapter(ctx context.Context, chapterID string) (domain.ReaderChapter, error) {
	return domain.ReaderChapter{ID: chapterID}, nil
}

var _ Backend = (*fakeBackend)(nil)

package client

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

const teardownTimeout = 10 * time.Second

// Workspace owns the stores of one signed-in user. Stores are built when a
// user signs in and flushed and closed when they sign out, so nothing
// outlives the session that loaded it.
type Workspace struct {
	backend  Backend
	auth     *Auth
	reader   *Reader
	autosave time.Duration
	now      func() time.Time
	logger   *log.Logger

	mu       sync.Mutex
	started  bool
	unsub    func()
	userID   string
	novels   *NovelStore
	mail     *MailStore
	chapters *ChapterStore
	lore     *LoreStore
}

type WorkspaceOption func(*Workspace)

func WithAutosaveDelay(d time.Duration) WorkspaceOption {
	return func(w *Workspace) { w.autosave = d }
}

func WithClock(now func() time.Time) WorkspaceOption {
	return func(w *Workspace) { w.now = now }
}

func WithLogger(l *log.Logger) WorkspaceOption {
	return func(w *Workspace) {
		if l != nil {
			w.logger = l
		}
	}
}

func NewWorkspace(backend Backend, auth *Auth, opts ...WorkspaceOption) *Workspace {
	w := &Workspace{
		backend:  backend,
		auth:     auth,
		reader:   NewReader(backend),
		autosave: time.Second,
		now:      time.Now,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start follows the auth state. If a session already exists the user's
// stores are built immediately.
func (w *Workspace) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	unsub := w.auth.OnChange(w.sessionChanged)
	w.mu.Lock()
	w.unsub = unsub
	w.mu.Unlock()
	w.sessionChanged(w.auth.Session())
}

func (w *Workspace) Auth() *Auth     { return w.auth }
func (w *Workspace) Reader() *Reader { return w.reader }

// UserID is the signed-in user the stores belong to, empty when signed out.
func (w *Workspace) UserID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.userID
}

func (w *Workspace) Novels() (*NovelStore, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.novels == nil {
		return nil, &AuthRequiredError{Op: "novels"}
	}
	return w.novels, nil
}

func (w *Workspace) Mail() (*MailStore, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.mail == nil {
		return nil, &AuthRequiredError{Op: "messages"}
	}
	return w.mail, nil
}

// Chapters and Lore are the stores of the novel last opened with OpenNovel.
func (w *Workspace) Chapters() (*ChapterStore, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chapters, w.chapters != nil
}

func (w *Workspace) Lore() (*LoreStore, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lore, w.lore != nil
}

// OpenNovel selects a novel and loads its chapters and lore, replacing the
// stores of the previously open novel after flushing its pending edits.
func (w *Workspace) OpenNovel(ctx context.Context, novelID string) (*ChapterStore, *LoreStore, error) {
	w.mu.Lock()
	if w.novels == nil {
		w.mu.Unlock()
		return nil, nil, &AuthRequiredError{Op: "open novel"}
	}
	prevChapters, prevLore := w.chapters, w.lore
	chapters := NewChapterStore(w.backend, novelID, w.autosave, w.now, w.logger)
	lore := NewLoreStore(w.backend, novelID, w.logger)
	w.chapters, w.lore = chapters, lore
	novels := w.novels
	w.mu.Unlock()

	novels.Select(novelID)
	var flushErr error
	if prevChapters != nil {
		flushErr = prevChapters.Close(ctx)
	}
	if prevLore != nil {
		prevLore.Close()
	}

	if err := chapters.Fetch(ctx); err != nil {
		return chapters, lore, err
	}
	if err := lore.Fetch(ctx); err != nil {
		return chapters, lore, err
	}
	return chapters, lore, flushErr
}

// SignOut writes pending edits while the session is still valid, then signs
// out.
func (w *Workspace) SignOut(ctx context.Context) error {
	flushErr := w.teardown(ctx)
	return errors.Join(flushErr, w.auth.SignOut(ctx))
}

// Close stops following auth and tears down the current user's stores.
func (w *Workspace) Close(ctx context.Context) error {
	w.mu.Lock()
	unsub := w.unsub
	w.unsub = nil
	w.started = false
	w.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	return w.teardown(ctx)
}

func (w *Workspace) sessionChanged(session *Session) {
	if session == nil {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if err := w.teardown(ctx); err != nil {
			w.logger.Printf("workspace: teardown after sign out: %v", err)
		}
		return
	}

	w.mu.Lock()
	same := w.userID == session.UserID && w.novels != nil
	w.mu.Unlock()
	if same {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := w.teardown(ctx); err != nil {
		w.logger.Printf("workspace: teardown before %s: %v", session.UserID, err)
	}

	w.mu.Lock()
	w.userID = session.UserID
	w.novels = NewNovelStore(w.backend, session.UserID, w.logger)
	w.mail = NewMailStore(w.backend, session.UserID, w.logger)
	w.mu.Unlock()
}

func (w *Workspace) teardown(ctx context.Context) error {
	w.mu.Lock()
	novels, mail, chapters, lore := w.novels, w.mail, w.chapters, w.lore
	w.novels, w.mail, w.chapters, w.lore = nil, nil, nil, nil
	w.userID = ""
	w.mu.Unlock()

	var errs []error
	if chapters != nil {
		errs = append(errs, chapters.Close(ctx))
	}
	if lore != nil {
		lore.Close()
	}
	if mail != nil {
		mail.Close()
	}
	if novels != nil {
		novels.Close()
	}
	return errors.Join(errs...)
}

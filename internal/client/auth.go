package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// refreshSkew is how close to expiry an access token is renewed.
const refreshSkew = 30 * time.Second

// Auth holds the current session and tells subscribers when it changes.
type Auth struct {
	backend Backend
	now     func() time.Time
	logger  *log.Logger

	mu        sync.RWMutex
	session   *Session
	listeners map[int]func(*Session)
	nextSub   int
}

type AuthOption func(*Auth)

func WithAuthClock(now func() time.Time) AuthOption {
	return func(a *Auth) { a.now = now }
}

func WithAuthLogger(l *log.Logger) AuthOption {
	return func(a *Auth) {
		if l != nil {
			a.logger = l
		}
	}
}

func NewAuth(backend Backend, opts ...AuthOption) *Auth {
	a := &Auth{
		backend:   backend,
		now:       time.Now,
		logger:    log.Default(),
		listeners: make(map[int]func(*Session)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Session returns the current session, or nil when signed out.
func (a *Auth) Session() *Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return nil
	}
	copied := *a.session
	return &copied
}

// AccessToken is the bearer token for backend calls, empty when signed out.
func (a *Auth) AccessToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return ""
	}
	return a.session.Token
}

// OnChange registers fn to receive every session change; nil means signed
// out. The returned func unsubscribes.
func (a *Auth) OnChange(fn func(*Session)) func() {
	a.mu.Lock()
	id := a.nextSub
	a.nextSub++
	a.listeners[id] = fn
	a.mu.Unlock()
	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

func (a *Auth) SignIn(ctx context.Context, creds Credentials) (Session, error) {
	session, err := a.backend.SignIn(ctx, creds)
	if err != nil {
		return Session{}, err
	}
	a.set(&session)
	return session, nil
}

func (a *Auth) SignUp(ctx context.Context, input SignUpInput) (Session, error) {
	session, err := a.backend.SignUp(ctx, input)
	if err != nil {
		return Session{}, err
	}
	a.set(&session)
	return session, nil
}

// SignOut revokes the session remotely and clears it locally. The local
// session is cleared even when revocation fails.
func (a *Auth) SignOut(ctx context.Context) error {
	current := a.Session()
	if current == nil {
		return nil
	}
	err := a.backend.SignOut(ctx, *current)
	if err != nil {
		a.logger.Printf("auth: sign out failed: %v", err)
	}
	a.set(nil)
	return err
}

// Refresh exchanges the refresh token for a new session. A rejected refresh
// signs the user out.
func (a *Auth) Refresh(ctx context.Context) (Session, error) {
	current := a.Session()
	if current == nil || current.RefreshToken == "" {
		return Session{}, &AuthRequiredError{Op: "refresh session"}
	}
	session, err := a.backend.Refresh(ctx, current.RefreshToken)
	if err != nil {
		if IsAuthRequired(err) {
			a.set(nil)
		}
		return Session{}, err
	}
	a.set(&session)
	return session, nil
}

// Restore adopts a previously saved session, refreshing it first when the
// access token has expired.
func (a *Auth) Restore(ctx context.Context, saved Session) (Session, error) {
	if saved.Token == "" && saved.RefreshToken == "" {
		return Session{}, &AuthRequiredError{Op: "restore session"}
	}
	a.mu.Lock()
	a.session = &saved
	a.mu.Unlock()
	if saved.Expired(a.now(), refreshSkew) {
		return a.Refresh(ctx)
	}
	a.notify(&saved)
	return saved, nil
}

// EnsureFresh refreshes the session when its access token is about to expire.
func (a *Auth) EnsureFresh(ctx context.Context) error {
	current := a.Session()
	if current == nil {
		return &AuthRequiredError{Op: "ensure session"}
	}
	if !current.Expired(a.now(), refreshSkew) {
		return nil
	}
	_, err := a.Refresh(ctx)
	return err
}

func (a *Auth) set(session *Session) {
	a.mu.Lock()
	a.session = session
	a.mu.Unlock()
	a.notify(session)
}

func (a *Auth) notify(session *Session) {
	a.mu.RLock()
	listeners := make([]func(*Session), 0, len(a.listeners))
	for _, fn := range a.listeners {
		listeners = append(listeners, fn)
	}
	a.mu.RUnlock()
	for _, fn := range listeners {
		if session == nil {
			fn(nil)
			continue
		}
		copied := *session
		fn(&copied)
	}
}

// LoadSession reads a session saved by SaveSession. A missing file yields
// (nil, nil).
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	return &session, nil
}

// SaveSession writes session to path with owner-only permissions; nil removes
// the file.
func SaveSession(path string, session *Session) error {
	if session == nil {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove session file: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

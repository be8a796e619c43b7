package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"writepad/internal/auth"
	"writepad/internal/authpw"
	"writepad/internal/config"
	"writepad/internal/domain"
	"writepad/internal/export"
	"writepad/internal/functions"
	"writepad/internal/notify"
	"writepad/internal/search"
	"writepad/internal/storage"
	"writepad/internal/store"
	"writepad/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	EnsureUserByName(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	DeleteUser(context.Context, string) error

	GetProfile(context.Context, string) (domain.Profile, error)
	GetProfiles(context.Context, []string) ([]domain.Profile, error)
	UpdateProfile(context.Context, string, domain.ProfilePatch) (domain.Profile, error)

	ListNovelsByOwner(context.Context, string) ([]domain.Novel, error)
	GetNovel(context.Context, string) (domain.Novel, error)
	InsertNovel(context.Context, domain.Novel) (domain.Novel, error)
	UpdateNovel(context.Context, string, func(domain.Novel) (domain.Novel, error)) (domain.Novel, error)
	DeleteNovel(context.Context, string) error
	ListPublicNovels(context.Context, int) ([]domain.PublicNovel, error)
	ListPublicNovelsByIDs(context.Context, []string) ([]domain.PublicNovel, error)
	ListPublicNovelsByOwner(context.Context, string) ([]domain.PublicNovel, error)
	GetPublicNovel(context.Context, string) (domain.PublicNovel, error)

	ListChapters(context.Context, string) ([]domain.Chapter, error)
	GetChapter(context.Context, string) (domain.Chapter, error)
	InsertChapter(context.Context, domain.Chapter) (domain.Chapter, error)
	UpdateChapter(context.Context, string, func(domain.Chapter) (domain.Chapter, error)) (domain.Chapter, error)
	DeleteChapter(context.Context, string) error
	ReorderChapters(context.Context, string, []domain.OrderChange) ([]domain.Chapter, error)
	ListLiveChapters(context.Context, string, time.Time) ([]domain.Chapter, error)
	GetLiveChapter(context.Context, string, time.Time) (domain.Chapter, error)

	ListLore(context.Context, string) ([]domain.LoreEntry, error)
	GetLore(context.Context, string) (domain.LoreEntry, error)
	InsertLore(context.Context, domain.LoreEntry) (domain.LoreEntry, error)
	UpdateLore(context.Context, string, func(domain.LoreEntry) (domain.LoreEntry, error)) (domain.LoreEntry, error)
	DeleteLore(context.Context, string) error

	ListMessages(context.Context, string) ([]domain.Message, error)
	InsertMessage(context.Context, domain.Message) (domain.Message, error)
	MarkRead(context.Context, string, string) (int, error)

	Ping(ctx context.Context) error
}

// sessionStore holds refresh sessions and the access-token denylist. The
// Postgres store and the Redis store both satisfy it.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeUserSessions(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

type searchIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexNovel(rec search.NovelRecord)
	DeleteNovel(id string)
}

type objectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PublicURL(key string) string
	RemovePrefix(ctx context.Context, prefix string) (int, error)
}

type messageNotifier interface {
	NotifyAsync(msg notify.NewMessage)
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	passwords *authpw.Service
	tokens    auth.Issuer
	search    searchIndex
	objects   objectStore
	notifier  messageNotifier
	exporter  exporter
	functions *functions.Registry
	now       func() time.Time
}

type Option func(*Service)

// WithSessionStore moves refresh sessions and revocations out of Postgres.
func WithSessionStore(sessions sessionStore) Option {
	return func(s *Service) { s.sessions = sessions }
}

func WithPasswordAuth(passwords *authpw.Service) Option {
	return func(s *Service) { s.passwords = passwords }
}

func WithSearch(index searchIndex) Option {
	return func(s *Service) { s.search = index }
}

func WithObjectStore(objects objectStore) Option {
	return func(s *Service) { s.objects = objects }
}

func WithNotifier(notifier messageNotifier) Option {
	return func(s *Service) { s.notifier = notifier }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(cfg config.Config, dataStore *store.PostgresStore, opts ...Option) *Service {
	return newService(cfg, dataStore, dataStore, opts...)
}

func newService(cfg config.Config, data dataStore, sessions sessionStore, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		store:    data,
		sessions: sessions,
		tokens:   auth.Issuer{Secret: []byte(cfg.JWTSecret), Name: cfg.JWTIssuer},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.exporter = export.NewService(data)
	s.functions = s.buildFunctions()
	return s
}

func (s *Service) buildFunctions() *functions.Registry {
	registry := functions.NewRegistry()
	registry.Register(functions.NameGenerate, functions.Generate(functions.NewCompleter(s.cfg.CompletionURL, s.cfg.CompletionKey)))

	var purger functions.ObjectPurger
	if s.objects != nil {
		purger = s.objects
	}
	deleteAccount := functions.DeleteOwnAccount(s.store, s.sessions, purger, storage.OwnerPrefix)
	registry.Register(functions.NameDeleteOwnAccount, func(ctx context.Context, caller functions.Caller, body json.RawMessage) (any, error) {
		novels, err := s.store.ListNovelsByOwner(ctx, caller.UserID)
		if err != nil {
			return nil, fmt.Errorf("list novels: %w", err)
		}
		result, err := deleteAccount(ctx, caller, body)
		if err != nil {
			return nil, err
		}
		for _, novel := range novels {
			s.deindexNovel(novel.ID)
		}
		return result, nil
	})
	return registry
}

// Check is one dependency probed by the readiness endpoint. Optional checks
// report problems without failing readiness.
type Check struct {
	Name     string
	Optional bool
	Probe    func(context.Context) error
	Detail   func() string
}

// Ping checks the database.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ReadinessChecks lists the dependencies this service was built with.
func (s *Service) ReadinessChecks() []Check {
	checks := []Check{{Name: "database", Probe: s.Ping}}
	if p, ok := s.sessions.(interface{ Ping(context.Context) error }); ok && any(s.sessions) != any(s.store) {
		checks = append(checks, Check{Name: "sessions", Probe: p.Ping})
	}
	if e, ok := s.search.(interface{ Engine() string }); ok {
		checks = append(checks, Check{Name: "search", Optional: true, Detail: e.Engine})
	}
	return checks
}

func (s *Service) DevLoginEnabled() bool {
	return s.cfg.DevLogin
}

// Login is the name-only dev provider.
func (s *Service) Login(ctx context.Context, name string) (Session, error) {
	if !s.cfg.DevLogin {
		return Session{}, domainError(http.StatusForbidden, "PROVIDER_DISABLED", "Dev login is disabled", nil)
	}
	userName := strings.TrimSpace(name)
	if userName == "" {
		userName = "Writer"
	}

	user, err := s.store.EnsureUserByName(ctx, userName)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	if s.passwords == nil {
		return Session{}, errAuthUnavailable
	}
	user, err := s.passwords.SignUp(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	if s.passwords == nil {
		return Session{}, errAuthUnavailable
	}
	user, err := s.passwords.SignIn(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// SignInWithProvider dispatches to the password or dev provider.
func (s *Service) SignInWithProvider(ctx context.Context, provider, email, password, name string) (Session, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "password":
		return s.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	case "dev":
		return s.Login(ctx, name)
	default:
		return Session{}, validationError("unknown provider", map[string]any{"provider": provider})
	}
}

func (s *Service) ChangePassword(ctx context.Context, session Session, current, next string) error {
	if s.passwords == nil {
		return errAuthUnavailable
	}
	if err := s.passwords.ChangePassword(ctx, session.UserID, current, next); err != nil {
		return err
	}
	return s.sessions.RevokeUserSessions(ctx, session.UserID)
}

var errAuthUnavailable = domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	ref, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// The Redis store only knows the user id.
	user, err := s.store.GetUserByID(ctx, ref.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := s.tokens.Issue(auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewToken()
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes whatever the caller presented. Both revocations are
// attempted even when the first fails.
func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	var errs []error
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			errs = append(errs, fmt.Errorf("revoke access token: %w", err))
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			errs = append(errs, fmt.Errorf("revoke refresh session: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Printf("logout for user %s incomplete: %v", session.UserID, err)
		return err
	}
	return nil
}

func (s *Service) InvokeFunction(ctx context.Context, session Session, name string, body []byte) (any, error) {
	return s.functions.Invoke(ctx, name, functions.Caller{UserID: session.UserID, UserName: session.UserName}, body)
}

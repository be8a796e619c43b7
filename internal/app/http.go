package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"writepad/internal/auth"
	"writepad/internal/authpw"
	"writepad/internal/domain"
	"writepad/internal/export"
	"writepad/internal/functions"
	"writepad/internal/session"
	"writepad/internal/storage"
	"writepad/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	open       map[string]http.HandlerFunc
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	s := &HTTPServer{service: service, corsOrigin: corsOrigin}
	s.open = map[string]http.HandlerFunc{
		"GET /api/health":           s.handleHealth,
		"HEAD /api/health":          s.handleHealth,
		"GET /api/ready":            s.handleReady,
		"HEAD /api/ready":           s.handleReady,
		"POST /api/auth/signup":     s.handleSignUp,
		"POST /api/auth/signin":     s.handleSignIn,
		"GET /api/session":          s.handleSessionInfo,
		"POST /api/session/login":   s.handleDevLogin,
		"POST /api/session/refresh": s.handleRefresh,
		"POST /api/session/logout":  s.handleLogout,
	}
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}
	if h, ok := s.open[r.Method+" "+r.URL.Path]; ok {
		h(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if parts[1] == "public" {
		s.handlePublic(w, r, parts[2:])
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	rest := parts[2:]
	switch parts[1] {
	case "auth":
		if r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "password" {
			s.handleChangePassword(w, r, session)
			return
		}
	case "novels":
		s.handleNovels(w, r, session, rest)
		return
	case "chapters":
		if len(rest) == 1 {
			s.handleChapter(w, r, session, rest[0])
			return
		}
	case "lore":
		if len(rest) == 1 {
			s.handleLoreEntry(w, r, session, rest[0])
			return
		}
	case "messages":
		s.handleMessages(w, r, session, rest)
		return
	case "profiles":
		s.handleProfiles(w, r, session, rest)
		return
	case "storage":
		s.handleStorage(w, r, session, rest)
		return
	case "functions":
		if len(rest) == 1 && r.Method == http.MethodPost {
			s.handleFunction(w, r, session, rest[0])
			return
		}
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleReady probes every configured dependency. Only required checks can
// turn the answer into 503.
func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ready := true
	checks := map[string]any{}
	for _, check := range s.service.ReadinessChecks() {
		result := map[string]any{"status": "ok"}
		if check.Probe != nil {
			if err := check.Probe(ctx); err != nil {
				result = map[string]any{"status": "error", "error": err.Error()}
				if !check.Optional {
					ready = false
				}
			}
		}
		if check.Detail != nil {
			result["detail"] = check.Detail()
		}
		checks[check.Name] = result
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"ok": ready, "status": status, "checks": checks})
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	switch {
	case err == nil:
		return session, true
	case errors.Is(err, auth.ErrExpiredToken), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	default:
		log.Printf("http: request %s session lookup failed: %v", requestIDFrom(r.Context()), err)
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
	}
	return Session{}, false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{"code": code, "error": message}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("http: request %s %s %s failed: %v", requestIDFrom(r.Context()), r.Method, r.URL.Path, err)
	}
	writeError(w, status, code, message, details)
}

// decodeBody treats an absent body as empty.
func decodeBody(r *http.Request, target any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || scheme != "Bearer" {
		return ""
	}
	return strings.TrimSpace(token)
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// Postgres SQLSTATE codes surfaced to clients.
const (
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgInvalidTextRepr     = "22P02"
)

// sentinelErrors maps package errors to their HTTP shape. The first match
// wins.
var sentinelErrors = []struct {
	errs    []error
	status  int
	code    string
	message string
}{
	{[]error{sql.ErrNoRows}, http.StatusNotFound, "NOT_FOUND", "Not found"},
	{[]error{auth.ErrInvalidToken, auth.ErrExpiredToken, session.ErrSessionNotFound}, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized"},
	{[]error{authpw.ErrInvalidCredentials}, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password"},
	{[]error{authpw.ErrEmailTaken}, http.StatusConflict, "EMAIL_EXISTS", "Email already registered"},
	{[]error{authpw.ErrMissingFields, authpw.ErrWeakPassword, store.ErrOrderNotDense, domain.ErrInvalidLoreType,
		export.ErrUnsupportedFormat, export.ErrUnsupportedSelection}, http.StatusUnprocessableEntity, "VALIDATION_ERROR", ""},
	{[]error{export.ErrPDFDependencyMissing, export.ErrDOCXDependencyMissing}, http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", ""},
	{[]error{functions.ErrUnknownFunction}, http.StatusNotFound, "NOT_FOUND", "Unknown function"},
	{[]error{storage.ErrUnknownKind}, http.StatusNotFound, "NOT_FOUND", ""},
	{[]error{storage.ErrUnsupportedType}, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", ""},
	{[]error{storage.ErrTooLarge}, http.StatusRequestEntityTooLarge, "TOO_LARGE", ""},
	{[]error{storage.ErrForeignKey}, http.StatusForbidden, "FORBIDDEN", ""},
}

// mapError turns an error into status, code, message and details. An empty
// message in the table means the error text itself is shown.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var fnErr *functions.Error
	if errors.As(err, &fnErr) {
		return http.StatusUnprocessableEntity, "FUNCTION_ERROR", fnErr.Message, map[string]any{"function": fnErr.Function}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return http.StatusConflict, "CONFLICT", "Conflicting change", map[string]any{"constraint": pgErr.ConstraintName}
		case pgCheckViolation, pgNotNullViolation, pgForeignKeyViolation:
			return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Rejected by constraint", map[string]any{"constraint": pgErr.ConstraintName}
		case pgInvalidTextRepr:
			// Malformed ids cannot match any row.
			return http.StatusNotFound, "NOT_FOUND", "Not found", nil
		}
	}
	for _, entry := range sentinelErrors {
		for _, target := range entry.errs {
			if !errors.Is(err, target) {
				continue
			}
			message = entry.message
			if message == "" {
				message = err.Error()
			}
			return entry.status, entry.code, message, nil
		}
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

package app

import (
	"io"
	"net/http"
	"strings"

	"writepad/internal/domain"
	"writepad/internal/storage"
)

const maxFunctionBody = 64 << 10

func (s *HTTPServer) handleMessages(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		messages, err := s.service.ListMessages(r.Context(), session.UserID)
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
	case len(rest) == 0 && r.Method == http.MethodPost:
		var body struct {
			RecipientID string `json:"recipientId"`
			Content     string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		msg, err := s.service.SendMessage(r.Context(), session, body.RecipientID, body.Content)
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
	case len(rest) == 1 && rest[0] == "read" && r.Method == http.MethodPost:
		var body struct {
			SenderID string `json:"senderId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updated, err := s.service.MarkThreadRead(r.Context(), session.UserID, body.SenderID)
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleProfiles(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		var ids []string
		if raw := r.URL.Query().Get("ids"); raw != "" {
			ids = strings.Split(raw, ",")
		}
		profiles, err := s.service.GetProfiles(r.Context(), ids)
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
	case len(rest) == 1 && rest[0] == "me" && r.Method == http.MethodPatch:
		var body domain.ProfilePatch
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		profile, err := s.service.UpdateMyProfile(r.Context(), session.UserID, body)
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"profile": profile})
	case len(rest) == 1 && r.Method == http.MethodGet:
		id := rest[0]
		if id == "me" {
			id = session.UserID
		}
		profile, err := s.service.GetProfile(r.Context(), id)
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"profile": profile})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleStorage(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case len(rest) == 1 && rest[0] == "url" && r.Method == http.MethodGet:
		url, err := s.service.ObjectURL(r.URL.Query().Get("key"))
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"url": url})
	case len(rest) == 1 && r.Method == http.MethodPut:
		defer r.Body.Close()
		data, err := io.ReadAll(io.LimitReader(r.Body, storage.MaxUploadBytes+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "Could not read upload", nil)
			return
		}
		object, err := s.service.UploadObject(r.Context(), session.UserID, rest[0], r.Header.Get("Content-Type"), data)
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, object)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleFunction(w http.ResponseWriter, r *http.Request, session Session, name string) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFunctionBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Could not read body", nil)
		return
	}
	result, err := s.service.InvokeFunction(r.Context(), session, name, body)
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": result})
}

// handlePublic serves the unauthenticated reader under /api/public.
func (s *HTTPServer) handlePublic(w http.ResponseWriter, r *http.Request, rest []string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	ctx := r.Context()
	switch {
	case len(rest) == 1 && rest[0] == "novels":
		novels, err := s.service.ExploreNovels(ctx, r.URL.Query().Get("q"))
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"novels": novels})
	case len(rest) == 2 && rest[0] == "novels":
		novel, err := s.service.PublicNovel(ctx, rest[1])
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"novel": novel})
	case len(rest) == 3 && rest[0] == "novels" && rest[2] == "chapters":
		toc, err := s.service.TableOfContents(ctx, rest[1])
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"chapters": toc})
	case len(rest) == 2 && rest[0] == "chapters":
		chapter, err := s.service.ReadChapter(ctx, rest[1])
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"chapter": chapter})
	case len(rest) == 2 && rest[0] == "users":
		profile, err := s.service.PublicProfile(ctx, rest[1])
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

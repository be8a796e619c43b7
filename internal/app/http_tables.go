package app

import (
	"mime"
	"net/http"
	"strconv"

	"writepad/internal/domain"
)

// handleNovels serves /api/novels and everything nested under a novel.
func (s *HTTPServer) handleNovels(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			novels, err := s.service.ListNovels(r.Context(), session.UserID)
			if err != nil {
				writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"novels": novels})
		case http.MethodPost:
			var body domain.NovelPatch
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			novel, err := s.service.CreateNovel(r.Context(), session.UserID, body)
			if err != nil {
				writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"novel": novel})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	novelID := rest[0]
	if len(rest) == 1 {
		switch r.Method {
		case http.MethodGet:
			novel, err := s.service.GetNovel(r.Context(), session.UserID, novelID)
			if err != nil {
				writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"novel": novel})
		case http.MethodPatch:
			var body domain.NovelPatch
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			novel, err := s.service.UpdateNovel(r.Context(), session.UserID, novelID, body)
			if err != nil {
				writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"novel": novel})
		case http.MethodDelete:
			if err := s.service.DeleteNovel(r.Context(), session.UserID, novelID); err != nil {
				writeMappedError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch {
	case rest[1] == "chapters" && len(rest) == 2:
		s.handleNovelChapters(w, r, session, novelID)
		return
	case rest[1] == "chapters" && len(rest) == 3 && rest[2] == "order" && r.Method == http.MethodPatch:
		var changes []domain.OrderChange
		if err := decodeBody(r, &changes); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		chapters, err := s.service.ReorderChapters(r.Context(), session.UserID, novelID, changes)
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"chapters": chapters})
		return
	case rest[1] == "lore" && len(rest) == 2:
		s.handleNovelLore(w, r, session, novelID)
		return
	case rest[1] == "export" && len(rest) == 2 && r.Method == http.MethodGet:
		s.handleExport(w, r, session, novelID)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleNovelChapters(w http.ResponseWriter, r *http.Request, session Session, novelID string) {
	switch r.Method {
	case http.MethodGet:
		chapters, err := s.service.ListChapters(r.Context(), session.UserID, novelID)
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"chapters": chapters})
	case http.MethodPost:
		var body ChapterInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		chapter, err := s.service.CreateChapter(r.Context(), session.UserID, novelID, body)
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"chapter": chapter})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleChapter(w http.ResponseWriter, r *http.Request, session Session, chapterID string) {
	switch r.Method {
	case http.MethodGet:
		chapter, err := s.service.GetChapter(r.Context(), session.UserID, chapterID)
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"chapter": chapter})
	case http.MethodPatch:
		var body domain.ChapterPatch
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		chapter, err := s.service.UpdateChapter(r.Context(), session.UserID, chapterID, body)
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"chapter": chapter})
	case http.MethodDelete:
		if err := s.service.DeleteChapter(r.Context(), session.UserID, chapterID); err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleNovelLore(w http.ResponseWriter, r *http.Request, session Session, novelID string) {
	switch r.Method {
	case http.MethodGet:
		entries, err := s.service.ListLore(r.Context(), session.UserID, novelID)
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"lore": entries})
	case http.MethodPost:
		var body LoreInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		entry, err := s.service.CreateLore(r.Context(), session.UserID, novelID, body)
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"entry": entry})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleLoreEntry(w http.ResponseWriter, r *http.Request, session Session, loreID string) {
	switch r.Method {
	case http.MethodGet:
		entry, err := s.service.GetLore(r.Context(), session.UserID, loreID)
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entry": entry})
	case http.MethodPatch:
		var body domain.LorePatch
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		entry, err := s.service.UpdateLore(r.Context(), session.UserID, loreID, body)
		if err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entry": entry})
	case http.MethodDelete:
		if err := s.service.DeleteLore(r.Context(), session.UserID, loreID); err != nil {
			writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, session Session, novelID string) {
	query := r.URL.Query()
	result, err := s.service.ExportNovel(r.Context(), session.UserID, novelID, query.Get("format"), query.Get("include"))
	if err != nil {
		writeMappedError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

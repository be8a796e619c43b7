package app

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"strings"
	"unicode/utf8"

	"writepad/internal/domain"
	"writepad/internal/notify"
	"writepad/internal/storage"
)

const (
	maxMessageRunes   = 5000
	maxProfileLookups = 100
	maxBioRunes       = 1000
)

// Messages

func (s *Service) ListMessages(ctx context.Context, viewerID string) ([]domain.Message, error) {
	messages, err := s.store.ListMessages(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	return domain.SortMessages(messages), nil
}

func (s *Service) SendMessage(ctx context.Context, session Session, recipientID, content string) (domain.Message, error) {
	content = strings.TrimSpace(content)
	recipientID = strings.TrimSpace(recipientID)
	switch {
	case recipientID == "":
		return domain.Message{}, validationError("recipientId is required", nil)
	case recipientID == session.UserID:
		return domain.Message{}, validationError("cannot message yourself", nil)
	case content == "":
		return domain.Message{}, validationError("content must not be empty", nil)
	case utf8.RuneCountInString(content) > maxMessageRunes:
		return domain.Message{}, validationError("message is too long", map[string]any{"max": maxMessageRunes})
	}

	msg, err := s.store.InsertMessage(ctx, domain.Message{
		SenderID:    session.UserID,
		RecipientID: recipientID,
		Content:     content,
	})
	if err != nil {
		return domain.Message{}, err
	}
	s.notifyRecipient(ctx, session, msg)
	return msg, nil
}

func (s *Service) notifyRecipient(ctx context.Context, session Session, msg domain.Message) {
	if s.notifier == nil {
		return
	}
	recipient, err := s.store.GetUserByID(ctx, msg.RecipientID)
	if err != nil {
		log.Printf("notify: lookup recipient %s: %v", msg.RecipientID, err)
		return
	}
	s.notifier.NotifyAsync(notify.NewMessage{
		To:            recipient.Email,
		RecipientName: recipient.DisplayName,
		SenderName:    session.UserName,
		Content:       msg.Content,
	})
}

// MarkThreadRead flags every unread message from senderID to the viewer.
func (s *Service) MarkThreadRead(ctx context.Context, viewerID, senderID string) (int, error) {
	if strings.TrimSpace(senderID) == "" {
		return 0, validationError("senderId is required", nil)
	}
	return s.store.MarkRead(ctx, viewerID, senderID)
}

// Profiles

func (s *Service) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	return s.store.GetProfile(ctx, id)
}

// GetProfiles resolves a batch of ids in one query. Unknown ids are skipped.
func (s *Service) GetProfiles(ctx context.Context, ids []string) ([]domain.Profile, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return []domain.Profile{}, nil
	}
	if len(unique) > maxProfileLookups {
		return nil, validationError("too many ids", map[string]any{"max": maxProfileLookups})
	}
	return s.store.GetProfiles(ctx, unique)
}

func (s *Service) UpdateMyProfile(ctx context.Context, viewerID string, patch domain.ProfilePatch) (domain.Profile, error) {
	if patch.Username != nil {
		trimmed := strings.TrimSpace(*patch.Username)
		if trimmed == "" || utf8.RuneCountInString(trimmed) > 60 {
			return domain.Profile{}, validationError("username must be 1-60 characters", nil)
		}
		patch.Username = &trimmed
	}
	if patch.Bio != nil && utf8.RuneCountInString(*patch.Bio) > maxBioRunes {
		return domain.Profile{}, validationError("bio is too long", map[string]any{"max": maxBioRunes})
	}
	return s.store.UpdateProfile(ctx, viewerID, patch)
}

// Storage

var errStorageUnavailable = domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Object storage not configured", nil)

type StoredObject struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// UploadObject stores a cover or avatar under the viewer's prefix.
func (s *Service) UploadObject(ctx context.Context, viewerID, kind, contentType string, data []byte) (StoredObject, error) {
	if s.objects == nil {
		return StoredObject{}, errStorageUnavailable
	}
	parsedKind, err := storage.ParseKind(kind)
	if err != nil {
		return StoredObject{}, err
	}
	if len(data) == 0 {
		return StoredObject{}, validationError("empty upload", nil)
	}
	if len(data) > storage.MaxUploadBytes {
		return StoredObject{}, storage.ErrTooLarge
	}
	key, err := storage.ObjectKey(viewerID, parsedKind, contentType)
	if err != nil {
		return StoredObject{}, err
	}
	if err := s.objects.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return StoredObject{}, err
	}
	return StoredObject{Key: key, URL: s.objects.PublicURL(key)}, nil
}

func (s *Service) ObjectURL(key string) (string, error) {
	if s.objects == nil {
		return "", errStorageUnavailable
	}
	if strings.TrimSpace(key) == "" {
		return "", validationError("key is required", nil)
	}
	return s.objects.PublicURL(key), nil
}

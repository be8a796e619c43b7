package client

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"writepad/internal/collection"
	"writepad/internal/domain"
)

var errMessagesImmutable = errors.New("messages cannot be edited or deleted")

// MailStore mirrors the viewer's direct messages, oldest first.
type MailStore struct {
	*collection.Store[domain.Message, sendInput, struct{}]
	backend Backend
	viewer  string
	logger  *log.Logger
}

type sendInput struct {
	recipientID string
	content     string
}

func NewMailStore(backend Backend, viewerID string, logger *log.Logger) *MailStore {
	if logger == nil {
		logger = log.Default()
	}
	remote := collection.Remote[domain.Message, sendInput, struct{}]{
		List: func(ctx context.Context, _ string) ([]domain.Message, error) {
			messages, err := backend.ListMessages(ctx)
			if err != nil {
				return nil, err
			}
			return domain.SortMessages(messages), nil
		},
		Insert: func(ctx context.Context, _ string, input sendInput) (domain.Message, error) {
			return backend.SendMessage(ctx, input.recipientID, input.content)
		},
		Update: func(context.Context, string, struct{}) (domain.Message, error) {
			return domain.Message{}, errMessagesImmutable
		},
		Delete: func(context.Context, string) error {
			return errMessagesImmutable
		},
		Apply: func(m domain.Message, _ struct{}) domain.Message { return m },
	}
	return &MailStore{
		Store:   collection.New("messages", viewerID, remote, collection.WithLogger(logger)),
		backend: backend,
		viewer:  viewerID,
		logger:  logger,
	}
}

// Send delivers a message and appends it once the backend accepts it.
func (s *MailStore) Send(ctx context.Context, recipientID, content string) (domain.Message, error) {
	content = strings.TrimSpace(content)
	switch {
	case recipientID == "":
		return domain.Message{}, &ValidationError{Op: "send message", Code: "VALIDATION_ERROR", Message: "recipient is required"}
	case recipientID == s.viewer:
		return domain.Message{}, &ValidationError{Op: "send message", Code: "VALIDATION_ERROR", Message: "cannot message yourself"}
	case content == "":
		return domain.Message{}, &ValidationError{Op: "send message", Code: "VALIDATION_ERROR", Message: "message is empty"}
	}
	return s.Create(ctx, sendInput{recipientID: recipientID, content: content})
}

// Conversations projects the inbox per counterparty, resolving every
// counterparty profile with one batched lookup. A failed lookup falls back
// to ids as names.
func (s *MailStore) Conversations(ctx context.Context) ([]domain.Conversation, error) {
	messages := s.Items()
	ids := domain.Counterparties(messages, s.viewer)
	profiles := make(map[string]domain.Profile, len(ids))
	var lookupErr error
	if len(ids) > 0 {
		found, err := s.backend.GetProfiles(ctx, ids)
		if err != nil {
			s.logger.Printf("messages: profile lookup failed: %v", err)
			lookupErr = err
		}
		for _, p := range found {
			profiles[p.ID] = p
		}
	}
	return domain.ProjectConversations(messages, s.viewer, profiles), lookupErr
}

// Thread returns the messages exchanged with otherID, oldest first.
func (s *MailStore) Thread(otherID string) []domain.Message {
	return domain.Thread(s.Items(), s.viewer, otherID)
}

func (s *MailStore) UnreadTotal() int {
	return domain.UnreadTotal(s.Items(), s.viewer)
}

// MarkAsRead flags every unread message from otherID as read with one bulk
// update, mirrored locally and rolled back if the backend refuses. The
// backend is asked even when the local copy has nothing unread, since
// messages may have arrived since the last fetch. The count is the
// backend's.
func (s *MailStore) MarkAsRead(ctx context.Context, otherID string) (int, error) {
	marked, sent := 0, false
	persist := func(ctx context.Context, _, _ []domain.Message) error {
		n, err := s.backend.MarkRead(ctx, otherID)
		marked, sent = n, true
		return err
	}
	err := s.Transact(ctx, "mark read "+otherID,
		func(items []domain.Message) ([]domain.Message, bool) {
			out, n := domain.MarkThreadRead(items, s.viewer, otherID)
			return out, n > 0
		}, persist)
	if err != nil {
		return 0, err
	}
	if !sent {
		if err := persist(ctx, nil, nil); err != nil {
			s.logger.Printf("messages: mark read %s failed: %v", otherID, err)
			return 0, err
		}
	}
	return marked, nil
}

// DefaultPollInterval is used when Poll is given a non-positive interval.
const DefaultPollInterval = 30 * time.Second

// Poll refetches the inbox every interval until ctx ends or the store closes.
func (s *MailStore) Poll(ctx context.Context, every time.Duration) {
	if every <= 0 {
		s.logger.Printf("mail: poll interval %v is not positive, using %v", every, DefaultPollInterval)
		every = DefaultPollInterval
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Fetch(ctx); errors.Is(err, collection.ErrClosed) {
				return
			}
		}
	}
}

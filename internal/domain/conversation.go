package domain

import (
	"sort"
	"time"
)

// Conversation summarises the messages exchanged with one counterparty.
type Conversation struct {
	UserID        string    `json:"userId"`
	Username      string    `json:"username"`
	AvatarURL     string    `json:"avatarUrl,omitempty"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UnreadCount   int       `json:"unreadCount"`
}

// Counterparty returns the other participant of a message from the viewer's side.
func Counterparty(m Message, viewerID string) string {
	if m.SenderID == viewerID {
		return m.RecipientID
	}
	return m.SenderID
}

// Counterparties lists the distinct counterparty ids in first-seen order.
func Counterparties(messages []Message, viewerID string) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, m := range messages {
		other := Counterparty(m, viewerID)
		if _, ok := seen[other]; ok {
			continue
		}
		seen[other] = struct{}{}
		ids = append(ids, other)
	}
	return ids
}

// SortMessages orders messages ascending by creation time, ties broken by id.
func SortMessages(messages []Message) []Message {
	out := append([]Message(nil), messages...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ProjectConversations groups the viewer's messages by counterparty. The
// input order is not trusted: messages are sorted by time before the scan so
// the last message of each group is the newest one. profiles supplies display
// metadata and may be missing entries.
func ProjectConversations(messages []Message, viewerID string, profiles map[string]Profile) []Conversation {
	byUser := make(map[string]*Conversation)
	for _, m := range SortMessages(messages) {
		other := Counterparty(m, viewerID)
		conv, ok := byUser[other]
		if !ok {
			conv = &Conversation{UserID: other}
			if profile, found := profiles[other]; found {
				conv.Username = profile.Username
				conv.AvatarURL = profile.AvatarURL
			}
			byUser[other] = conv
		}
		conv.LastMessage = m.Content
		conv.LastMessageAt = m.CreatedAt
		if m.RecipientID == viewerID && !m.IsRead {
			conv.UnreadCount++
		}
	}

	out := make([]Conversation, 0, len(byUser))
	for _, conv := range byUser {
		if conv.Username == "" {
			conv.Username = conv.UserID
		}
		out = append(out, *conv)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}

// UnreadTotal counts the messages addressed to the viewer that are unread.
func UnreadTotal(messages []Message, viewerID string) int {
	total := 0
	for _, m := range messages {
		if m.RecipientID == viewerID && !m.IsRead {
			total++
		}
	}
	return total
}

// Thread returns the messages exchanged with otherID, oldest first.
func Thread(messages []Message, viewerID, otherID string) []Message {
	out := make([]Message, 0)
	for _, m := range SortMessages(messages) {
		if Counterparty(m, viewerID) == otherID {
			out = append(out, m)
		}
	}
	return out
}

// MarkThreadRead marks the unread messages from otherID to the viewer as read,
// returning the new list and the number of messages changed.
func MarkThreadRead(messages []Message, viewerID, otherID string) ([]Message, int) {
	out := make([]Message, len(messages))
	changed := 0
	for i, m := range messages {
		if m.RecipientID == viewerID && m.SenderID == otherID && !m.IsRead {
			m.IsRead = true
			changed++
		}
		out[i] = m
	}
	return out, changed
}

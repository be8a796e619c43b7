// Package domain holds the writing entities shared by the API server and the
// client stores, along with the pure rules that act on them.
package domain

import (
	"errors"
	"strings"
	"time"
)

type Novel struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Genre       string    `json:"genre,omitempty"`
	CoverURL    string    `json:"coverUrl,omitempty"`
	IsPublic    bool      `json:"isPublic"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (n Novel) Key() string { return n.ID }

// NovelPatch is a partial update; nil fields are left untouched.
type NovelPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Genre       *string `json:"genre,omitempty"`
	CoverURL    *string `json:"coverUrl,omitempty"`
	IsPublic    *bool   `json:"isPublic,omitempty"`
}

func (p NovelPatch) Apply(n Novel) Novel {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Description != nil {
		n.Description = *p.Description
	}
	if p.Genre != nil {
		n.Genre = *p.Genre
	}
	if p.CoverURL != nil {
		n.CoverURL = *p.CoverURL
	}
	if p.IsPublic != nil {
		n.IsPublic = *p.IsPublic
	}
	return n
}

func (p NovelPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Genre == nil && p.CoverURL == nil && p.IsPublic == nil
}

type Chapter struct {
	ID          string     `json:"id"`
	NovelID     string     `json:"novelId"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Order       int        `json:"order"`
	IsPublished bool       `json:"isPublished"`
	PublishedAt *time.Time `json:"publishedAt"`
	WordCount   int        `json:"wordCount"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (c Chapter) Key() string { return c.ID }

// ChapterPatch is a partial update. Setting IsPublished to false always clears
// PublishedAt, so a draft never carries a publish time.
type ChapterPatch struct {
	Title       *string    `json:"title,omitempty"`
	Content     *string    `json:"content,omitempty"`
	Order       *int       `json:"order,omitempty"`
	IsPublished *bool      `json:"isPublished,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

func (p ChapterPatch) Apply(c Chapter) Chapter {
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Content != nil {
		c.Content = *p.Content
	}
	if p.Order != nil {
		c.Order = *p.Order
	}
	if p.IsPublished != nil {
		c.IsPublished = *p.IsPublished
		if !c.IsPublished {
			c.PublishedAt = nil
		}
	}
	if p.PublishedAt != nil && c.IsPublished {
		at := *p.PublishedAt
		c.PublishedAt = &at
	}
	return c
}

func (p ChapterPatch) Empty() bool {
	return p.Title == nil && p.Content == nil && p.Order == nil && p.IsPublished == nil && p.PublishedAt == nil
}

type LoreType string

const (
	LoreCharacter LoreType = "character"
	LoreLocation  LoreType = "location"
	LoreItem      LoreType = "item"
)

var ErrInvalidLoreType = errors.New("lore type must be character, location or item")

func ParseLoreType(value string) (LoreType, error) {
	switch LoreType(strings.ToLower(strings.TrimSpace(value))) {
	case LoreCharacter:
		return LoreCharacter, nil
	case LoreLocation:
		return LoreLocation, nil
	case LoreItem:
		return LoreItem, nil
	default:
		return "", ErrInvalidLoreType
	}
}

type LoreEntry struct {
	ID          string    `json:"id"`
	NovelID     string    `json:"novelId"`
	Title       string    `json:"title"`
	Type        LoreType  `json:"type"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (l LoreEntry) Key() string { return l.ID }

type LorePatch struct {
	Title       *string   `json:"title,omitempty"`
	Type        *LoreType `json:"type,omitempty"`
	Description *string   `json:"description,omitempty"`
}

func (p LorePatch) Apply(l LoreEntry) LoreEntry {
	if p.Title != nil {
		l.Title = *p.Title
	}
	if p.Type != nil {
		l.Type = *p.Type
	}
	if p.Description != nil {
		l.Description = *p.Description
	}
	return l
}

func (p LorePatch) Empty() bool {
	return p.Title == nil && p.Type == nil && p.Description == nil
}

type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Content     string    `json:"content"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (m Message) Key() string { return m.ID }

type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type ProfilePatch struct {
	Username  *string `json:"username,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

func (p ProfilePatch) Apply(profile Profile) Profile {
	if p.Username != nil {
		profile.Username = *p.Username
	}
	if p.Bio != nil {
		profile.Bio = *p.Bio
	}
	if p.AvatarURL != nil {
		profile.AvatarURL = *p.AvatarURL
	}
	return profile
}

// PublicNovel is a novel as shown on the explore and profile pages.
type PublicNovel struct {
	Novel
	Author Profile `json:"author"`
}

// TOCEntry is a row of a novel's public table of contents.
type TOCEntry struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Order       int       `json:"order"`
	WordCount   int       `json:"wordCount"`
	PublishedAt time.Time `json:"publishedAt"`
}

// ReaderChapter is a live chapter prepared for the public reader.
type ReaderChapter struct {
	ID          string    `json:"id"`
	NovelID     string    `json:"novelId"`
	Title       string    `json:"title"`
	HTML        string    `json:"html"`
	WordCount   int       `json:"wordCount"`
	PublishedAt time.Time `json:"publishedAt"`
	PrevID      string    `json:"prevId,omitempty"`
	NextID      string    `json:"nextId,omitempty"`
}

func Ptr[T any](v T) *T { return &v }

// Package access decides what a viewer may do with novels, chapters, lore
// and messages. Ownership is the only grant; public visibility gives readers
// read access to live content.
package access

import (
	"time"

	"writepad/internal/domain"
)

type Role string
type Action string

const (
	RoleNone   Role = "none"
	RoleReader Role = "reader"
	RoleOwner  Role = "owner"
)

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleReader:
		return action == ActionRead
	default:
		return false
	}
}

// NovelRole returns the viewer's role on a novel. viewerID may be empty for
// anonymous readers.
func NovelRole(novel domain.Novel, viewerID string) Role {
	switch {
	case viewerID != "" && novel.OwnerID == viewerID:
		return RoleOwner
	case novel.IsPublic:
		return RoleReader
	default:
		return RoleNone
	}
}

// ChapterRole extends NovelRole: readers only see live chapters.
func ChapterRole(novel domain.Novel, chapter domain.Chapter, viewerID string, now time.Time) Role {
	role := NovelRole(novel, viewerID)
	if role == RoleReader && !domain.IsLive(chapter, now) {
		return RoleNone
	}
	return role
}

// LoreRole: lore is private working material, never shown to readers.
func LoreRole(novel domain.Novel, viewerID string) Role {
	if NovelRole(novel, viewerID) == RoleOwner {
		return RoleOwner
	}
	return RoleNone
}

// CanReadMessage reports whether the viewer is a participant.
func CanReadMessage(msg domain.Message, viewerID string) bool {
	return viewerID != "" && (msg.SenderID == viewerID || msg.RecipientID == viewerID)
}

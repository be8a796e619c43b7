package domain

import (
	"errors"
	"time"
)

type ChapterStatus string

const (
	StatusDraft     ChapterStatus = "draft"
	StatusScheduled ChapterStatus = "scheduled"
	StatusLive      ChapterStatus = "live"
)

var ErrScheduleInPast = errors.New("scheduled publish time must not be before the current minute")

// Status derives the publish state of a chapter at the given instant. It is
// never stored: a scheduled chapter becomes live purely because now passes
// its PublishedAt. A published chapter without a publish time is treated as a
// draft, matching the database predicate (NULL <= now is not true).
func Status(c Chapter, now time.Time) ChapterStatus {
	if !c.IsPublished || c.PublishedAt == nil {
		return StatusDraft
	}
	if c.PublishedAt.After(now) {
		return StatusScheduled
	}
	return StatusLive
}

func IsLive(c Chapter, now time.Time) bool {
	return Status(c, now) == StatusLive
}

// LiveChapters keeps the live chapters of an ordered list, preserving order.
func LiveChapters(chapters []Chapter, now time.Time) []Chapter {
	out := make([]Chapter, 0, len(chapters))
	for _, c := range chapters {
		if IsLive(c, now) {
			out = append(out, c)
		}
	}
	return out
}

func PublishNow(now time.Time) ChapterPatch {
	return ChapterPatch{IsPublished: Ptr(true), PublishedAt: Ptr(now)}
}

func ScheduleAt(at time.Time) ChapterPatch {
	return ChapterPatch{IsPublished: Ptr(true), PublishedAt: Ptr(at)}
}

func Unpublish() ChapterPatch {
	return ChapterPatch{IsPublished: Ptr(false)}
}

// ValidateSchedule is the boundary policy for author-chosen publish times; the
// state machine itself accepts any instant. Pickers work in whole minutes, so
// any time within the current minute is accepted and publishes at once.
func ValidateSchedule(at, now time.Time) error {
	if at.Before(now.Truncate(time.Minute)) {
		return ErrScheduleInPast
	}
	return nil
}

package access

import (
	"testing"
	"time"

	"writepad/internal/domain"
)

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "owner read", role: RoleOwner, action: ActionRead, allow: true},
		{name: "owner write", role: RoleOwner, action: ActionWrite, allow: true},
		{name: "reader read", role: RoleReader, action: ActionRead, allow: true},
		{name: "reader write", role: RoleReader, action: ActionWrite, allow: false},
		{name: "none read", role: RoleNone, action: ActionRead, allow: false},
		{name: "unknown role", role: Role("admin"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNovelRole(t *testing.T) {
	private := domain.Novel{ID: "n1", OwnerID: "u1"}
	public := domain.Novel{ID: "n2", OwnerID: "u1", IsPublic: true}

	if NovelRole(private, "u1") != RoleOwner {
		t.Fatal("owner should own a private novel")
	}
	if NovelRole(private, "u2") != RoleNone || NovelRole(private, "") != RoleNone {
		t.Fatal("private novel visible to non-owner")
	}
	if NovelRole(public, "") != RoleReader || NovelRole(public, "u2") != RoleReader {
		t.Fatal("public novel should be readable")
	}
	if NovelRole(domain.Novel{}, "") != RoleNone {
		t.Fatal("empty viewer must not match empty owner")
	}
}

func TestChapterRoleHidesScheduledAndDrafts(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	novel := domain.Novel{ID: "n1", OwnerID: "u1", IsPublic: true}
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	scheduled := domain.Chapter{IsPublished: true, PublishedAt: &future}
	live := domain.Chapter{IsPublished: true, PublishedAt: &past}
	draft := domain.Chapter{}

	if ChapterRole(novel, scheduled, "u2", now) != RoleNone {
		t.Fatal("scheduled chapter leaked to reader")
	}
	if ChapterRole(novel, draft, "", now) != RoleNone {
		t.Fatal("draft leaked to reader")
	}
	if ChapterRole(novel, live, "u2", now) != RoleReader {
		t.Fatal("live chapter should be readable")
	}
	if ChapterRole(novel, scheduled, "u2", future.Add(time.Second)) != RoleReader {
		t.Fatal("scheduled chapter should go live once its time passes")
	}
	if ChapterRole(novel, draft, "u1", now) != RoleOwner {
		t.Fatal("owner should see drafts")
	}
}

func TestLoreAndMessages(t *testing.T) {
	novel := domain.Novel{OwnerID: "u1", IsPublic: true}
	if LoreRole(novel, "u2") != RoleNone || LoreRole(novel, "u1") != RoleOwner {
		t.Fatal("lore is owner-only")
	}
	msg := domain.Message{SenderID: "a", RecipientID: "b"}
	if !CanReadMessage(msg, "a") || !CanReadMessage(msg, "b") || CanReadMessage(msg, "c") || CanReadMessage(msg, "") {
		t.Fatal("message visibility wrong")
	}
}

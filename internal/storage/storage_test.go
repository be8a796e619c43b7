package storage

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseKind(t *testing.T) {
	if kind, err := ParseKind(" Covers "); err != nil || kind != KindCover {
		t.Fatalf("ParseKind(covers) = %q, %v", kind, err)
	}
	if _, err := ParseKind("documents"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestObjectKeyLayout(t *testing.T) {
	key, err := ObjectKey("user-1", KindAvatar, "image/png; charset=binary")
	if err != nil {
		t.Fatalf("ObjectKey() error = %v", err)
	}
	if !strings.HasPrefix(key, "user-1/avatars/") || !strings.HasSuffix(key, ".png") {
		t.Fatalf("unexpected key %q", key)
	}
	if err := CheckOwner("user-1", key); err != nil {
		t.Fatalf("own key rejected: %v", err)
	}
	if err := CheckOwner("user-2", key); !errors.Is(err, ErrForeignKey) {
		t.Fatalf("expected ErrForeignKey, got %v", err)
	}
	if err := CheckOwner("user-1", "user-1/../user-2/covers/x.png"); !errors.Is(err, ErrForeignKey) {
		t.Fatalf("expected traversal rejected, got %v", err)
	}
}

func TestObjectKeyRejectsNonImages(t *testing.T) {
	if _, err := ObjectKey("user-1", KindCover, "application/pdf"); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestJoinURLEscapesSegments(t *testing.T) {
	got := JoinURL("http://cdn.test/bucket/", "user 1/covers/a b.png")
	want := "http://cdn.test/bucket/user%201/covers/a%20b.png"
	if got != want {
		t.Fatalf("JoinURL() = %q, want %q", got, want)
	}
}

func TestPublicReadPolicyIsJSON(t *testing.T) {
	var policy map[string]any
	if err := json.Unmarshal([]byte(publicReadPolicy("writepad")), &policy); err != nil {
		t.Fatalf("policy is not valid JSON: %v", err)
	}
}

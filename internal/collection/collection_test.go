package collection

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"
)

type note struct {
	ID   string
	Body string
}

func (n note) Key() string { return n.ID }

type notePatch struct {
	Body *string
}

type fakeRemote struct {
	mu        sync.Mutex
	rows      map[string][]note
	nextID    int
	failList  error
	failWrite error
	updates   []string
	deletes   []string
	block     chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{rows: map[string][]note{}}
}

func (f *fakeRemote) bindings() Remote[note, string, notePatch] {
	return Remote[note, string, notePatch]{
		List: func(ctx context.Context, scope string) ([]note, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.failList != nil {
				return nil, f.failList
			}
			return append([]note(nil), f.rows[scope]...), nil
		},
		Insert: func(ctx context.Context, scope string, body string) (note, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.failWrite != nil {
				return note{}, f.failWrite
			}
			f.nextID++
			n := note{ID: string(rune('a' + f.nextID - 1)), Body: body}
			f.rows[scope] = append(f.rows[scope], n)
			return n, nil
		},
		Update: func(ctx context.Context, id string, patch notePatch) (note, error) {
			if f.block != nil {
				select {
				case <-f.block:
				case <-ctx.Done():
					return note{}, ctx.Err()
				}
			}
			f.mu.Lock()
			defer f.mu.Unlock()
			f.updates = append(f.updates, id)
			if f.failWrite != nil {
				return note{}, f.failWrite
			}
			return note{ID: id, Body: *patch.Body + " (saved)"}, nil
		},
		Delete: func(ctx context.Context, id string) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.deletes = append(f.deletes, id)
			return f.failWrite
		},
		Apply: func(n note, p notePatch) note {
			if p.Body != nil {
				n.Body = *p.Body
			}
			return n
		},
	}
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func seeded(t *testing.T, remote *fakeRemote, opts ...Option) *Store[note, string, notePatch] {
	t.Helper()
	remote.rows["scope"] = []note{{ID: "n1", Body: "one"}, {ID: "n2", Body: "two"}, {ID: "n3", Body: "three"}}
	opts = append(opts, WithLogger(quietLogger()))
	s := New[note, string, notePatch]("notes", "scope", remote.bindings(), opts...)
	if err := s.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	return s
}

func strPtr(v string) *string { return &v }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestFetchReplacesList(t *testing.T) {
	s := seeded(t, newFakeRemote())
	if s.Len() != 3 || s.Loading() || s.LastError() != "" {
		t.Fatalf("unexpected state len=%d loading=%v err=%q", s.Len(), s.Loading(), s.LastError())
	}
}

func TestFetchFailureLeavesEmptyListAndError(t *testing.T) {
	remote := newFakeRemote()
	s := seeded(t, remote)
	remote.failList = errors.New("backend unreachable")

	err := s.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty list, got %d", s.Len())
	}
	if s.LastError() != "backend unreachable" {
		t.Fatalf("expected recorded error, got %q", s.LastError())
	}
	if s.Loading() {
		t.Fatal("loading flag must be cleared on failure")
	}
}

func TestCreatePlacement(t *testing.T) {
	remote := newFakeRemote()
	appendStore := seeded(t, remote)
	created, err := appendStore.Create(context.Background(), "four")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	items := appendStore.Items()
	if items[len(items)-1].ID != created.ID {
		t.Fatalf("expected appended row, got %+v", items)
	}

	prependStore := seeded(t, newFakeRemote(), WithPlacement(Prepend))
	created, err = prependStore.Create(context.Background(), "zero")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if prependStore.Items()[0].ID != created.ID {
		t.Fatalf("expected prepended row, got %+v", prependStore.Items())
	}
}

func TestCreateThenFetchRoundTrip(t *testing.T) {
	remote := newFakeRemote()
	s := seeded(t, remote)
	created, err := s.Create(context.Background(), "four")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if _, ok := s.Get(created.ID); !ok {
		t.Fatalf("expected fetched list to include %s", created.ID)
	}
}

func TestCreateFailureDoesNotTouchList(t *testing.T) {
	remote := newFakeRemote()
	s := seeded(t, remote)
	remote.failWrite = errors.New("rejected")
	if _, err := s.Create(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	if s.Len() != 3 || s.LastError() != "rejected" {
		t.Fatalf("unexpected state len=%d err=%q", s.Len(), s.LastError())
	}
}

func TestUpdateMergesServerRow(t *testing.T) {
	s := seeded(t, newFakeRemote())
	saved, err := s.Update(context.Background(), "n2", notePatch{Body: strPtr("TWO")})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, _ := s.Get("n2")
	if got.Body != "TWO (saved)" || saved.Body != got.Body {
		t.Fatalf("expected server row merged, got %+v", got)
	}
}

func TestUpdateRollbackOnFailure(t *testing.T) {
	remote := newFakeRemote()
	s := seeded(t, remote)
	remote.failWrite = errors.New("constraint violation")

	if _, err := s.Update(context.Background(), "n2", notePatch{Body: strPtr("changed")}); err == nil {
		t.Fatal("expected error")
	}
	got, _ := s.Get("n2")
	if got.Body != "two" {
		t.Fatalf("expected pre-call snapshot, got %+v", got)
	}
}

func TestUpdateIsVisibleBeforeBackendAnswers(t *testing.T) {
	remote := newFakeRemote()
	s := seeded(t, remote)
	remote.block = make(chan struct{})

	done := make(chan error, 1)
	changed := make(chan struct{}, 8)
	s.Subscribe(func() { changed <- struct{}{} })
	go func() {
		_, err := s.Update(context.Background(), "n1", notePatch{Body: strPtr("optimistic")})
		done <- err
	}()
	<-changed

	got, _ := s.Get("n1")
	if got.Body != "optimistic" {
		t.Fatalf("expected optimistic value during round trip, got %+v", got)
	}
	close(remote.block)
	if err := <-done; err != nil {
		t.Fatalf("Update() error = %v", err)
	}
}

func TestSupersededUpdateIsNotRolledBack(t *testing.T) {
	remote := newFakeRemote()
	s := seeded(t, remote)
	remote.block = make(chan struct{})
	remote.failWrite = errors.New("boom")

	first := make(chan error, 1)
	changed := make(chan struct{}, 8)
	unsubscribe := s.Subscribe(func() { changed <- struct{}{} })
	go func() {
		_, err := s.Update(context.Background(), "n1", notePatch{Body: strPtr("first")})
		first <- err
	}()
	<-changed
	unsubscribe()

	second := make(chan error, 1)
	go func() {
		_, err := s.Update(context.Background(), "n1", notePatch{Body: strPtr("second")})
		second <- err
	}()
	// both calls block in the fake until released
	waitFor(t, func() bool {
		got, _ := s.Get("n1")
		return got.Body == "second"
	})
	close(remote.block)
	<-first
	<-second

	got, _ := s.Get("n1")
	if got.Body != "one" {
		t.Fatalf("expected last confirmed value after both updates failed, got %+v", got)
	}
}

func TestRemoveRestoresPositionOnFailure(t *testing.T) {
	remote := newFakeRemote()
	s := seeded(t, remote)
	remote.failWrite = errors.New("not allowed")

	if err := s.Remove(context.Background(), "n2"); err == nil {
		t.Fatal("expected error")
	}
	items := s.Items()
	if len(items) != 3 || items[1].ID != "n2" {
		t.Fatalf("expected n2 restored at index 1, got %+v", items)
	}
}

func TestRemoveSuccess(t *testing.T) {
	remote := newFakeRemote()
	s := seeded(t, remote)
	if err := s.Remove(context.Background(), "n1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, ok := s.Get("n1"); ok || len(remote.deletes) != 1 {
		t.Fatalf("expected n1 removed locally and remotely")
	}
}

func TestRemoveUnknown(t *testing.T) {
	s := seeded(t, newFakeRemote())
	if err := s.Remove(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransactRestoresSnapshot(t *testing.T) {
	s := seeded(t, newFakeRemote())
	err := s.Transact(context.Background(), "reverse",
		func(items []note) ([]note, bool) {
			for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
				items[i], items[j] = items[j], items[i]
			}
			return items, true
		},
		func(ctx context.Context, before, after []note) error {
			if before[0].ID != "n1" || after[0].ID != "n3" {
				t.Fatalf("unexpected before/after %v %v", before, after)
			}
			return errors.New("persist failed")
		},
	)
	if err == nil {
		t.Fatal("expected error")
	}
	if items := s.Items(); items[0].ID != "n1" || items[2].ID != "n3" {
		t.Fatalf("expected snapshot restored, got %+v", items)
	}
}

func TestTransactNoChangeSkipsPersist(t *testing.T) {
	s := seeded(t, newFakeRemote())
	called := false
	err := s.Transact(context.Background(), "noop",
		func(items []note) ([]note, bool) { return items, false },
		func(context.Context, []note, []note) error {
			called = true
			return nil
		},
	)
	if err != nil || called {
		t.Fatalf("expected no persist, err=%v called=%v", err, called)
	}
}

func TestCloseDiscardsLateResults(t *testing.T) {
	remote := newFakeRemote()
	s := seeded(t, remote)
	remote.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := s.Update(context.Background(), "n1", notePatch{Body: strPtr("late")})
		done <- err
	}()
	waitFor(t, func() bool {
		got, _ := s.Get("n1")
		return got.Body == "late"
	})
	s.Close()
	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := s.Fetch(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}

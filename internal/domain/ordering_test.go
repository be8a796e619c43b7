package domain

import (
	"testing"
)

func chapterList(titles ...string) []Chapter {
	out := make([]Chapter, 0, len(titles))
	for i, title := range titles {
		out = append(out, Chapter{ID: title, Title: title, Order: i})
	}
	return out
}

func ids(chapters []Chapter) []string {
	out := make([]string, 0, len(chapters))
	for _, c := range chapters {
		out = append(out, c.ID)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestReorderDragEndAboveIntro(t *testing.T) {
	chapters := chapterList("Intro", "Middle", "End")

	got, ok := Reorder(chapters, "End", "Intro")
	if !ok {
		t.Fatal("expected reorder to apply")
	}
	if want := []string{"End", "Intro", "Middle"}; !equalStrings(ids(got), want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}
	if !IsDense(got) {
		t.Fatalf("expected dense orders, got %+v", got)
	}
	if chapters[2].Order != 2 || chapters[0].ID != "Intro" {
		t.Fatalf("input must not be modified: %+v", chapters)
	}
}

func TestReorderMovesDownToLastPosition(t *testing.T) {
	chapters := chapterList("A", "B", "C", "D")

	got, ok := Reorder(chapters, "A", "D")
	if !ok {
		t.Fatal("expected reorder to apply")
	}
	if want := []string{"B", "C", "D", "A"}; !equalStrings(ids(got), want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}
	if got[3].Order != 3 {
		t.Fatalf("expected moved chapter at order 3, got %d", got[3].Order)
	}
}

func TestReorderPreservesRelativeOrderOfUntouched(t *testing.T) {
	titles := []string{"a", "b", "c", "d", "e", "f"}
	for _, move := range titles {
		for _, target := range titles {
			got, ok := Reorder(chapterList(titles...), move, target)
			if move == target {
				if ok {
					t.Fatalf("reorder(%s,%s) should be a no-op", move, target)
				}
				continue
			}
			if !IsDense(got) || len(got) != len(titles) {
				t.Fatalf("reorder(%s,%s) produced non-dense list %v", move, target, got)
			}
			rest := make([]string, 0)
			for _, id := range ids(got) {
				if id != move {
					rest = append(rest, id)
				}
			}
			want := make([]string, 0)
			for _, id := range titles {
				if id != move {
					want = append(want, id)
				}
			}
			if !equalStrings(rest, want) {
				t.Fatalf("reorder(%s,%s) changed untouched order: %v", move, target, rest)
			}
		}
	}
}

func TestReorderToSelfIsNoop(t *testing.T) {
	chapters := chapterList("Intro", "Middle", "End")
	got, ok := Reorder(chapters, "Middle", "Middle")
	if ok {
		t.Fatal("expected no-op")
	}
	if !equalStrings(ids(got), ids(chapters)) || !IsDense(got) {
		t.Fatalf("expected unchanged list, got %+v", got)
	}
}

func TestReorderUnknownID(t *testing.T) {
	if _, ok := Reorder(chapterList("a", "b"), "a", "zzz"); ok {
		t.Fatal("expected unknown target to be rejected")
	}
}

func TestDiffOrderOnlyChanged(t *testing.T) {
	before := chapterList("A", "B", "C", "D")
	after, _ := Reorder(before, "C", "B")

	changes := DiffOrder(before, after)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %+v", changes)
	}
	if changes[0] != (OrderChange{ID: "C", Order: 1}) || changes[1] != (OrderChange{ID: "B", Order: 2}) {
		t.Fatalf("unexpected changes: %+v", changes)
	}
}

func TestRenumberAfterRemoval(t *testing.T) {
	chapters := chapterList("A", "B", "C")
	remaining := append([]Chapter{}, chapters[0], chapters[2])
	got := Renumber(remaining)
	if !IsDense(got) {
		t.Fatalf("expected dense orders, got %+v", got)
	}
	if changes := DiffOrder(remaining, got); len(changes) != 1 || changes[0].ID != "C" {
		t.Fatalf("expected only C to change, got %+v", changes)
	}
}

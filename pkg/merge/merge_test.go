package merge

import (
	"testing"

	"boardsync/pkg/models"
)

func TestViewsFilterAndOrder(t *testing.T) {
	contribs := []models.Contribution{
		{ActorID: "a", ActorName: "A", Content: "", JoinedTS: 1},
		{ActorID: "b", ActorName: "B", Content: "hi", JoinedTS: 2},
		{ActorID: "c", ActorName: "C", Content: " ", JoinedTS: 0},
	}
	if got := Labeled(contribs); got != "[B]: hi" {
		t.Fatalf("labeled view: got %q", got)
	}
	if got := Plain(contribs); got != "hi" {
		t.Fatalf("plain view: got %q", got)
	}
	if got := ContributorCount(contribs); got != 1 {
		t.Fatalf("contributor count: got %d", got)
	}
}

func TestViewsOrderByJoinTime(t *testing.T) {
	contribs := []models.Contribution{
		{ActorID: "late", ActorName: "Late", Content: "world", JoinedTS: 20},
		{ActorID: "early", ActorName: "Early", Content: "hello", JoinedTS: 10},
	}
	if got := Labeled(contribs); got != "[Early]: hello  |  [Late]: world" {
		t.Fatalf("labeled view: got %q", got)
	}
	if got := Plain(contribs); got != "hello  world" {
		t.Fatalf("plain view: got %q", got)
	}
}

func TestLabeledFallsBackToActorID(t *testing.T) {
	contribs := []models.Contribution{
		{ActorID: "anon-7", Content: "x", JoinedTS: 1},
	}
	if got := Labeled(contribs); got != "[anon-7]: x" {
		t.Fatalf("labeled view: got %q", got)
	}
}

func TestOthersExcludesSelf(t *testing.T) {
	contribs := []models.Contribution{
		{ActorID: "me", Content: "mine", JoinedTS: 1},
		{ActorID: "x", Content: "cd", JoinedTS: 2},
	}
	if got := Others(contribs, "me"); got != "cd" {
		t.Fatalf("others view: got %q", got)
	}
}

func TestZoneAcceptsEditsInsidePrefix(t *testing.T) {
	z := NewZone("ab", "cd")
	if z.Display() != "ab  |  cd" {
		t.Fatalf("display: got %q", z.Display())
	}
	// type "X" at the end of the local prefix
	next, cursor, ok := z.ApplyEdit("abX  |  cd", 3)
	if !ok {
		t.Fatalf("edit inside prefix should be accepted")
	}
	if next.Local != "abX" || cursor != 3 {
		t.Fatalf("unexpected zone state: %+v cursor %d", next, cursor)
	}
}

func TestZoneRejectsEditsPastBoundary(t *testing.T) {
	z := NewZone("ab", "cd")
	// typing inside the separator mangles the read-only suffix
	next, cursor, ok := z.ApplyEdit("ab  X|  cd", 5)
	if ok {
		t.Fatalf("edit into read-only region must be rejected")
	}
	if next.Display() != "ab  |  cd" {
		t.Fatalf("field must revert to last valid value, got %q", next.Display())
	}
	if cursor != 2 {
		t.Fatalf("cursor must pin to the zone boundary, got %d", cursor)
	}
}

func TestZoneRejectsCursorInReadOnlySuffix(t *testing.T) {
	z := NewZone("ab", "cd")
	// no text change, but the cursor landed inside the suffix
	_, cursor, ok := z.ApplyEdit("ab  |  cd", 7)
	if ok {
		t.Fatalf("cursor in read-only region must be rejected")
	}
	if cursor != 2 {
		t.Fatalf("cursor must pin to the zone boundary, got %d", cursor)
	}
}

func TestZoneLocalMayContainDisplaySeparator(t *testing.T) {
	// a local value containing the printable separator must not let
	// the split misplace the boundary
	z := NewZone("ab  |  ", "cd")
	next, cursor, ok := z.ApplyEdit("ab  |  X  |  cd", 8)
	if !ok {
		t.Fatalf("edit inside prefix should be accepted even with separator collision")
	}
	if next.Local != "ab  |  X" || cursor != 8 {
		t.Fatalf("unexpected zone state: %+v cursor %d", next, cursor)
	}
}

func TestZoneWithoutOthersIsFullyEditable(t *testing.T) {
	z := NewZone("solo", "")
	next, cursor, ok := z.ApplyEdit("solo!", 5)
	if !ok || next.Local != "solo!" || cursor != 5 {
		t.Fatalf("lone contributor edits should always apply: %+v %d %v", next, cursor, ok)
	}
}

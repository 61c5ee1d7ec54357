package store

import (
	"testing"
	"time"

	"boardsync/pkg/logger"
	"boardsync/pkg/models"
)

func openTestDB(t *testing.T) {
	t.Helper()
	logger.Init()
	if err := Open(t.TempDir()); err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = Close() })
}

func TestResourceRoundTrip(t *testing.T) {
	openTestDB(t)
	r := models.Resource{
		ID:      "res_1",
		BoardID: "brd_1",
		Kind:    models.KindOwnedLockable,
		OwnerID: "actor-a",
		Version: 1,
		Shape:   &models.ShapePayload{X: 10, Y: 20, W: 100, H: 50, Color: "#fff"},
	}
	if err := SaveResource(r); err != nil {
		t.Fatalf("save resource: %v", err)
	}
	got, err := GetResource("res_1")
	if err != nil {
		t.Fatalf("get resource: %v", err)
	}
	if got.OwnerID != "actor-a" || got.Shape == nil || got.Shape.W != 100 {
		t.Fatalf("unexpected resource: %+v", got)
	}
	list, err := ListBoardResources("brd_1")
	if err != nil {
		t.Fatalf("list board resources: %v", err)
	}
	if len(list) != 1 || list[0].ID != "res_1" {
		t.Fatalf("expected one indexed resource, got %+v", list)
	}
}

func TestContributionsOrderedByJoin(t *testing.T) {
	openTestDB(t)
	base := time.Now().UTC().UnixNano()
	// save out of join order; listing must come back earliest-join first
	contribs := []models.Contribution{
		{DocID: "doc_1", ActorID: "zed", ActorName: "Z", Content: "late", JoinedTS: base + 2},
		{DocID: "doc_1", ActorID: "amy", ActorName: "A", Content: "early", JoinedTS: base},
		{DocID: "doc_1", ActorID: "bob", ActorName: "B", Content: "middle", JoinedTS: base + 1},
	}
	for _, c := range contribs {
		if err := SaveContribution(c); err != nil {
			t.Fatalf("save contribution: %v", err)
		}
	}
	got, err := ListContributions("doc_1")
	if err != nil {
		t.Fatalf("list contributions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 contributions, got %d", len(got))
	}
	want := []string{"amy", "bob", "zed"}
	for i, w := range want {
		if got[i].ActorID != w {
			t.Fatalf("position %d: expected %s, got %s", i, w, got[i].ActorID)
		}
	}
}

func TestContributionUpsertKeepsOneRecordPerActor(t *testing.T) {
	openTestDB(t)
	c := models.Contribution{DocID: "doc_2", ActorID: "amy", Content: "v1", JoinedTS: 1}
	if err := SaveContribution(c); err != nil {
		t.Fatalf("save contribution: %v", err)
	}
	c.Content = "v2"
	if err := SaveContribution(c); err != nil {
		t.Fatalf("save contribution again: %v", err)
	}
	got, err := ListContributions("doc_2")
	if err != nil {
		t.Fatalf("list contributions: %v", err)
	}
	if len(got) != 1 || got[0].Content != "v2" {
		t.Fatalf("expected single updated contribution, got %+v", got)
	}
}

func TestEventLogSequencesAndReplay(t *testing.T) {
	openTestDB(t)
	var seqs []uint64
	for i := 0; i < 5; i++ {
		ev, err := AppendEvent(models.Event{Type: models.EventResourceUpdated, BoardID: "brd_1", ResourceID: "res_1"})
		if err != nil {
			t.Fatalf("append event: %v", err)
		}
		seqs = append(seqs, ev.Seq)
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Fatalf("sequence not strictly increasing: %v", seqs)
		}
	}
	// replay from the second event onward
	evs, err := ListEventsSince("brd_1", seqs[1], 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("expected 3 replayed events, got %d", len(evs))
	}
	if evs[0].Seq != seqs[2] {
		t.Fatalf("replay should start after since; got seq %d want %d", evs[0].Seq, seqs[2])
	}
	// limit caps the replay
	evs, err = ListEventsSince("brd_1", 0, 2)
	if err != nil {
		t.Fatalf("list events with limit: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 events with limit, got %d", len(evs))
	}
}

func TestBoardSoftDelete(t *testing.T) {
	openTestDB(t)
	b := models.Board{ID: "brd_9", Title: "retro", Owner: "amy"}
	if err := SaveBoard(b); err != nil {
		t.Fatalf("save board: %v", err)
	}
	if err := SoftDeleteBoard("brd_9"); err != nil {
		t.Fatalf("soft delete board: %v", err)
	}
	got, err := GetBoard("brd_9")
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	if !got.Deleted || got.DeletedTS == 0 {
		t.Fatalf("expected deleted tombstone, got %+v", got)
	}
}

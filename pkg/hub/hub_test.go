package hub

import (
	"encoding/json"
	"testing"

	"boardsync/pkg/models"
)

func TestBroadcastReachesBoardSubscribersOnly(t *testing.T) {
	h := New(4)
	s1 := h.Subscribe("brd_1")
	s2 := h.Subscribe("brd_1")
	other := h.Subscribe("brd_2")
	defer s1.Close()
	defer s2.Close()
	defer other.Close()

	h.Broadcast(models.Event{Seq: 1, Type: models.EventResourceUpdated, BoardID: "brd_1", ResourceID: "res_1"})

	for _, s := range []*Subscriber{s1, s2} {
		select {
		case data := <-s.C:
			var ev models.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				t.Fatalf("unmarshal event: %v", err)
			}
			if ev.ResourceID != "res_1" {
				t.Fatalf("unexpected event: %+v", ev)
			}
		default:
			t.Fatalf("subscriber did not receive event")
		}
	}
	select {
	case <-other.C:
		t.Fatalf("event leaked to another board's subscriber")
	default:
	}
}

func TestSlowSubscriberDropped(t *testing.T) {
	h := New(1)
	s := h.Subscribe("brd_1")
	// fill the buffer, then overflow it
	h.Broadcast(models.Event{Seq: 1, BoardID: "brd_1"})
	h.Broadcast(models.Event{Seq: 2, BoardID: "brd_1"})

	if got := h.SubscriberCount("brd_1"); got != 0 {
		t.Fatalf("slow subscriber should be detached, count=%d", got)
	}
	// channel must be closed after the drop
	if _, ok := <-s.C; !ok {
		return
	}
	// one buffered event is fine; the close must follow
	if _, ok := <-s.C; ok {
		t.Fatalf("expected closed channel after drop")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	h := New(4)
	s := h.Subscribe("brd_1")
	s.Close()
	s.Close()
	if got := h.SubscriberCount("brd_1"); got != 0 {
		t.Fatalf("expected zero subscribers, got %d", got)
	}
}

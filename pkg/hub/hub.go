package hub

import (
	"encoding/json"
	"sync"

	"boardsync/pkg/logger"
	"boardsync/pkg/models"
	"boardsync/pkg/telemetry"
)

// DefaultSendBuffer is the per-subscriber outbound depth when the
// config leaves it unset.
const DefaultSendBuffer = 64

// Subscriber is one attached board listener. Events arrive on C as
// pre-marshaled JSON; the transport layer owns draining it.
type Subscriber struct {
	BoardID string
	C       chan []byte

	hub  *Hub
	once sync.Once
}

// Close detaches the subscriber and closes its channel.
func (s *Subscriber) Close() {
	s.once.Do(func() { s.hub.remove(s) })
}

// Hub fans board events out to subscribers. A subscriber whose channel
// is full is dropped rather than allowed to stall the broadcast path.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]map[*Subscriber]struct{}
	sendBuffer int
}

// New returns a Hub with the given per-subscriber buffer depth.
func New(sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Hub{
		subs:       make(map[string]map[*Subscriber]struct{}),
		sendBuffer: sendBuffer,
	}
}

// Subscribe attaches a new listener to a board.
func (h *Hub) Subscribe(boardID string) *Subscriber {
	s := &Subscriber{
		BoardID: boardID,
		C:       make(chan []byte, h.sendBuffer),
		hub:     h,
	}
	h.mu.Lock()
	if h.subs[boardID] == nil {
		h.subs[boardID] = make(map[*Subscriber]struct{})
	}
	h.subs[boardID][s] = struct{}{}
	h.mu.Unlock()
	telemetry.SubscribersGauge.Inc()
	logger.Debug("hub_subscribed", "board", boardID)
	return s
}

func (h *Hub) remove(s *Subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[s.BoardID]; ok {
		if _, present := set[s]; present {
			delete(set, s)
			close(s.C)
			telemetry.SubscribersGauge.Dec()
		}
		if len(set) == 0 {
			delete(h.subs, s.BoardID)
		}
	}
	h.mu.Unlock()
}

// Broadcast marshals the event once and delivers it to every
// subscriber of its board. Subscribers that cannot keep up are
// detached.
func (h *Hub) Broadcast(ev models.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("hub_marshal_failed", "type", ev.Type, "error", err)
		return
	}
	h.mu.RLock()
	var slow []*Subscriber
	for s := range h.subs[ev.BoardID] {
		select {
		case s.C <- data:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()
	for _, s := range slow {
		logger.Warn("hub_subscriber_dropped", "board", s.BoardID)
		s.Close()
	}
	telemetry.EventsBroadcastTotal.Inc()
}

// SubscriberCount reports attached listeners for a board.
func (h *Hub) SubscriberCount(boardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[boardID])
}

package sensor

import (
	"sync"
	"testing"
	"time"
)

func TestSensorSnapshotSamplesMemory(t *testing.T) {
	s := NewSensor(10 * time.Millisecond)
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := s.Snapshot()
		if !snap.Timestamp.IsZero() && snap.MemTotal > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("sensor never produced a populated snapshot")
}

func TestSensorThrottleFanout(t *testing.T) {
	s := NewSensor(time.Hour)

	var mu sync.Mutex
	var got []ThrottleRequest
	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		s.RegisterThrottleHandler(func(req ThrottleRequest) {
			mu.Lock()
			got = append(got, req)
			mu.Unlock()
			done <- struct{}{}
		})
	}

	s.SendThrottle(ThrottleRequest{Source: "test", Reason: "backlog", Severity: 0.6})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("handler %d never invoked", i)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	for _, req := range got {
		if req.Reason != "backlog" || req.Severity != 0.6 {
			t.Fatalf("unexpected request: %+v", req)
		}
	}
}

package events

import "testing"

func TestHub_FanOut(t *testing.T) {
	var rec Recorder
	h := NewHub(&rec)
	ch, cancel := h.Subscribe(4)
	h.Emit(Event{Kind: RegionSaved, World: "w"}.WithRegion(1, -2))

	got := <-ch
	if got.Kind != RegionSaved || *got.RegionX != 1 || *got.RegionZ != -2 || got.TimeMS == 0 {
		t.Fatalf("subscriber got=%+v", got)
	}
	if rec.Count(RegionSaved) != 1 {
		t.Fatalf("sink count: got=%d want=1", rec.Count(RegionSaved))
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after cancel")
	}
	if h.Subscribers() != 0 {
		t.Fatalf("subscribers: got=%d", h.Subscribers())
	}
	h.Emit(Event{Kind: WorldDeleted})
}

func TestHub_SlowSubscriberDrops(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe(1)
	defer cancel()
	for i := 0; i < 5; i++ {
		h.Emit(Event{Kind: ChunkPruned})
	}
	if h.Dropped() != 4 {
		t.Fatalf("dropped: got=%d want=4", h.Dropped())
	}
}

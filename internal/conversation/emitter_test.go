package conversation

import (
	"sync"
	"testing"
	"time"
)

func TestEmitter_CoalescesLevelsBehindSlowHandler(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		got  []Event
		once sync.Once
	)
	entered := make(chan struct{})
	unblock := make(chan struct{})
	e := newEmitter(func(ev Event) {
		once.Do(func() {
			close(entered)
			<-unblock
		})
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	e.emit(Event{Kind: EventPhase, Phase: PhaseListening})
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never called")
	}

	for i := range 600 {
		e.emit(Event{Kind: EventLevel, Level: float64(i) / 1000})
	}
	e.emit(Event{Kind: EventPhase, Phase: PhaseTranscribing})
	e.emit(Event{Kind: EventLevel, Level: 0.7})

	e.mu.Lock()
	queued := len(e.queue)
	e.mu.Unlock()
	if queued != 3 {
		t.Errorf("queued = %d, want 3", queued)
	}

	close(unblock)
	e.close()

	mu.Lock()
	defer mu.Unlock()
	want := []Event{
		{Kind: EventPhase, Phase: PhaseListening},
		{Kind: EventLevel, Level: 0.599},
		{Kind: EventPhase, Phase: PhaseTranscribing},
		{Kind: EventLevel, Level: 0.7},
	}
	if len(got) != len(want) {
		t.Fatalf("delivered %d events (%+v), want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i].Kind != want[i].Kind || got[i].Phase != want[i].Phase || got[i].Level != want[i].Level {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestEmitter_KeepsNonLevelEvents(t *testing.T) {
	t.Parallel()

	var got []Event
	e := newEmitter(func(ev Event) { got = append(got, ev) })
	for range 5 {
		e.emit(Event{Kind: EventMessage, Message: Message{Role: RoleBot, Text: "hi"}})
	}
	e.close()
	if len(got) != 5 {
		t.Errorf("delivered %d messages, want 5", len(got))
	}
}

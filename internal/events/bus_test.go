package events

import (
	"sync"
	"testing"
	"time"

	"jordanella.com/linemod/internal/logging"
)

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewEventBus(16, logging.Discard())

	var mu sync.Mutex
	var frames []int
	bus.Subscribe(EventTypeFrameProcessed, func(e Event) {
		mu.Lock()
		frames = append(frames, e.Data["frame"].(int))
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		bus.Publish(NewFrameProcessedEvent("s", i, 0, time.Millisecond))
	}
	// other types have no subscriber
	bus.Publish(NewObjectLoadedEvent("s", "cup", 3))
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(frames) != 5 {
		t.Fatalf("Expected 5 events, got %d", len(frames))
	}
	for i, f := range frames {
		if f != i {
			t.Errorf("Event %d carries frame %d", i, f)
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus(4, logging.Discard())
	defer bus.Stop()

	id := bus.Subscribe(EventTypeFault, func(Event) {})
	bus.Subscribe(EventTypeFault, func(Event) {})
	if got := bus.SubscriberCount(EventTypeFault); got != 2 {
		t.Fatalf("Expected 2 subscribers, got %d", got)
	}
	bus.Unsubscribe(id)
	if got := bus.SubscriberCount(EventTypeFault); got != 1 {
		t.Errorf("Expected 1 subscriber after unsubscribe, got %d", got)
	}
}

func TestTryPublishDropsWhenFull(t *testing.T) {
	bus := NewEventBus(1, logging.Discard())

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	bus.Subscribe(EventTypeFault, func(Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	// first event occupies the dispatcher, second fills the queue
	if !bus.TryPublish(NewFaultEvent("s", "frame", "low", "a", "", nil)) {
		t.Fatal("Expected the first event to be queued")
	}
	<-started
	if !bus.TryPublish(NewFaultEvent("s", "frame", "low", "b", "", nil)) {
		t.Fatal("Expected the second event to be queued")
	}
	if bus.TryPublish(NewFaultEvent("s", "frame", "low", "c", "", nil)) {
		t.Error("Expected the third event to be dropped")
	}
	if bus.Dropped() != 1 {
		t.Errorf("Expected 1 dropped event, got %d", bus.Dropped())
	}

	close(release)
	bus.Stop()
	bus.Stop()

	if bus.TryPublish(NewFaultEvent("s", "frame", "low", "d", "", nil)) {
		t.Error("Stopped bus accepted an event")
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	bus := NewEventBus(4, logging.Discard())

	done := make(chan struct{})
	bus.Subscribe(EventTypeFault, func(Event) { panic("boom") })
	bus.Subscribe(EventTypeFault, func(Event) { close(done) })

	bus.Publish(NewFaultEvent("s", "load", "high", "failed", "bad mask", map[string]interface{}{"object_id": "cup"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Second handler never ran")
	}
	bus.Stop()
}

func TestNewFaultEvent(t *testing.T) {
	e := NewFaultEvent("s1", "lookup", "critical", "match without pose", "lookup fault", map[string]interface{}{"object_id": "cup"})
	if e.Type != EventTypeFault || e.Source != "s1" {
		t.Errorf("Unexpected event header: %+v", e)
	}
	if e.Data["error"] != "lookup fault" || e.Data["object_id"] != "cup" || e.Data["category"] != "lookup" {
		t.Errorf("Unexpected data: %v", e.Data)
	}
	if _, ok := NewFaultEvent("s1", "frame", "low", "m", "", nil).Data["error"]; ok {
		t.Error("Empty error text should be omitted")
	}
}

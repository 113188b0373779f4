// Package events carries session notifications to interested tools, such as
// the websocket stream of the detect command.
package events

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"jordanella.com/linemod/internal/logging"
)

type subscription struct {
	id      SubscriptionID
	handler EventHandler
}

// DefaultEventBus queues events and dispatches them from a single goroutine
type DefaultEventBus struct {
	subscribers map[EventType][]subscription
	mu          sync.RWMutex

	queue   chan Event
	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup

	nextSubID SubscriptionID
	dropped   atomic.Int64
	logger    *logging.Logger
}

// NewEventBus creates a bus with room for bufferSize queued events
func NewEventBus(bufferSize int, logger *logging.Logger) *DefaultEventBus {
	if logger == nil {
		logger = logging.NewLogger("EventBus")
	}
	bus := &DefaultEventBus{
		subscribers: make(map[EventType][]subscription),
		queue:       make(chan Event, bufferSize),
		stopCh:      make(chan struct{}),
		nextSubID:   1,
		logger:      logger,
	}

	bus.wg.Add(1)
	go bus.processEvents()
	return bus
}

// Subscribe registers a handler for one event type
func (eb *DefaultEventBus) Subscribe(eventType EventType, handler EventHandler) SubscriptionID {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	id := eb.nextSubID
	eb.nextSubID++
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscription{id: id, handler: handler})
	return id
}

// Unsubscribe removes a subscription by ID
func (eb *DefaultEventBus) Unsubscribe(id SubscriptionID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for eventType, subs := range eb.subscribers {
		for i, sub := range subs {
			if sub.id == id {
				eb.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish queues an event, blocking while the queue is full
func (eb *DefaultEventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case <-eb.stopCh:
		eb.drop(event)
		return
	default:
	}
	select {
	case eb.queue <- event:
	case <-eb.stopCh:
		eb.drop(event)
	}
}

// TryPublish queues an event unless the queue is full or the bus stopped
func (eb *DefaultEventBus) TryPublish(event Event) bool {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case <-eb.stopCh:
		eb.drop(event)
		return false
	default:
	}
	select {
	case eb.queue <- event:
		return true
	default:
		eb.drop(event)
		return false
	}
}

func (eb *DefaultEventBus) drop(event Event) {
	if eb.dropped.Add(1) == 1 {
		eb.logger.WarnWithContext("dropping events", map[string]interface{}{"type": string(event.Type)})
	}
}

// Stop dispatches what is still queued and stops the bus. Safe to call twice.
func (eb *DefaultEventBus) Stop() {
	eb.stopped.Do(func() { close(eb.stopCh) })
	eb.wg.Wait()
}

func (eb *DefaultEventBus) processEvents() {
	defer eb.wg.Done()

	for {
		select {
		case event := <-eb.queue:
			eb.dispatch(event)
		case <-eb.stopCh:
			for {
				select {
				case event := <-eb.queue:
					eb.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (eb *DefaultEventBus) dispatch(event Event) {
	eb.mu.RLock()
	subs := eb.subscribers[event.Type]
	handlers := make([]EventHandler, len(subs))
	for i, sub := range subs {
		handlers[i] = sub.handler
	}
	eb.mu.RUnlock()

	for _, handler := range handlers {
		eb.safeHandlerCall(handler, event)
	}
}

func (eb *DefaultEventBus) safeHandlerCall(handler EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.ErrorWithContext("handler panic", fmt.Errorf("%v", r),
				map[string]interface{}{"type": string(event.Type)})
		}
	}()
	handler(event)
}

// SubscriberCount returns the number of subscribers for an event type
func (eb *DefaultEventBus) SubscriberCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers[eventType])
}

// QueueSize returns the number of events waiting for dispatch
func (eb *DefaultEventBus) QueueSize() int {
	return len(eb.queue)
}

// Dropped returns how many events were discarded
func (eb *DefaultEventBus) Dropped() int64 {
	return eb.dropped.Load()
}

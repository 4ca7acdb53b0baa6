package kernel

import (
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Event type constants for the kernel's own lifecycle and configuration
// events, in CloudEvents reverse-domain style, narrowed to what the
// kernel itself emits — no domain events, since domain logic is out of
// scope (§1).
const (
	EventTypeModuleWired         = "com.kernel.module.wired"
	EventTypeServiceWired        = "com.kernel.service.wired"
	EventTypeLifecycleStageStart = "com.kernel.lifecycle.stage.start"
	EventTypeLifecycleStageDone  = "com.kernel.lifecycle.stage.done"
	EventTypeConfigChanged       = "com.kernel.config.changed"
)

// EventSource identifies this process as a CloudEvents source.
const EventSource = "github.com/modkernel/kernel"

// Observer receives events from a Subject.
type Observer interface {
	OnEvent(ctx context.Context, event cloudevents.Event) error
	ObserverID() string
}

// Subject is the process-wide event bus every service can publish to and
// observe, exposed via ServiceParams.Event. It is the kernel's sole
// mechanism for letting external collaborators (metrics exporters, log
// shippers) see lifecycle and config-change activity without the kernel
// depending on them.
type Subject interface {
	RegisterObserver(observer Observer, eventTypes ...string) error
	UnregisterObserver(observer Observer) error
	NotifyObservers(ctx context.Context, event cloudevents.Event) error
}

type observerRegistration struct {
	observer   Observer
	eventTypes map[string]bool // empty means "all types"
}

// eventBus is the default Subject implementation.
type eventBus struct {
	mu        sync.RWMutex
	observers []*observerRegistration
	logger    Logger
}

// NewEventBus returns a Subject ready for use.
func NewEventBus(logger Logger) Subject {
	return &eventBus{logger: logger}
}

func (b *eventBus) RegisterObserver(observer Observer, eventTypes ...string) error {
	reg := &observerRegistration{observer: observer, eventTypes: map[string]bool{}}
	for _, t := range eventTypes {
		reg.eventTypes[t] = true
	}
	b.mu.Lock()
	b.observers = append(b.observers, reg)
	b.mu.Unlock()
	return nil
}

func (b *eventBus) UnregisterObserver(observer Observer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	filtered := b.observers[:0]
	for _, reg := range b.observers {
		if reg.observer.ObserverID() != observer.ObserverID() {
			filtered = append(filtered, reg)
		}
	}
	b.observers = filtered
	return nil
}

// NotifyObservers delivers event to every observer whose filter matches.
// Delivery is synchronous and errors are logged, never propagated — a
// slow or failing observer must not affect the kernel's own operation.
func (b *eventBus) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	b.mu.RLock()
	regs := append([]*observerRegistration(nil), b.observers...)
	b.mu.RUnlock()

	for _, reg := range regs {
		if len(reg.eventTypes) > 0 && !reg.eventTypes[event.Type()] {
			continue
		}
		if err := reg.observer.OnEvent(ctx, event); err != nil {
			b.logger.Warn("observer failed handling event", "observer", reg.observer.ObserverID(), "type", event.Type(), "error", err)
		}
	}
	return nil
}

// newKernelEvent builds a CloudEvent stamped with EventSource, a fresh ID
// and the current time.
func newKernelEvent(eventType string, data map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(EventSource)
	event.SetType(eventType)
	event.SetTime(time.Now())
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}

package engine

import (
	"sync"

	"github.com/quillmark/quill/internal/model"
)

// EventAction names what happened to an entity.
type EventAction string

const (
	EventCreated EventAction = "created"
	EventUpdated EventAction = "updated"
	EventDeleted EventAction = "deleted"
)

// Event is a push notification to the presentation layer about a change that
// arrived from elsewhere (a peer envelope or a resync decision). Exactly one
// of Document or Annotation is set.
type Event struct {
	Action     EventAction
	Document   *model.Document
	Annotation *model.Annotation
}

func documentEvent(subtype model.CrudSubtype, doc *model.Document) Event {
	return Event{Action: actionFor(subtype), Document: doc}
}

func annotationEvent(subtype model.CrudSubtype, ann *model.Annotation) Event {
	return Event{Action: actionFor(subtype), Annotation: ann}
}

func actionFor(subtype model.CrudSubtype) EventAction {
	switch subtype {
	case model.SubtypeCreate:
		return EventCreated
	case model.SubtypeDelete:
		return EventDeleted
	default:
		return EventUpdated
	}
}

// notifier fans events out to registered observers. Slow observers lose
// events rather than stall the engine.
type notifier struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[chan Event]struct{})}
}

func (n *notifier) publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- ev:
		default:
			// Observer buffer full; skip to keep the engine unblocked.
		}
	}
}

// Observe registers an observer channel for entity change notifications.
func (e *Engine) Observe() chan Event {
	ch := make(chan Event, 64)
	e.notifier.mu.Lock()
	e.notifier.subs[ch] = struct{}{}
	e.notifier.mu.Unlock()
	return ch
}

// Unobserve removes an observer and closes its channel.
func (e *Engine) Unobserve(ch chan Event) {
	e.notifier.mu.Lock()
	defer e.notifier.mu.Unlock()
	if _, ok := e.notifier.subs[ch]; ok {
		delete(e.notifier.subs, ch)
		close(ch)
	}
}

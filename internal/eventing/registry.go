package eventing

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Registry resolves envelopes received off NATS back into fleet events. Events are indexed
// by Go type name and by subject, so a consumer built from an older tree can still decode
// an event whose type was renamed as long as its subject is stable.
type Registry struct {
	mu        sync.RWMutex
	byType    map[string]reflect.Type
	bySubject map[string]reflect.Type
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byType:    make(map[string]reflect.Type),
		bySubject: make(map[string]reflect.Type),
	}
}

// Register adds a fleet event. A second event claiming the same subject is rejected.
func (r *Registry) Register(event Subjecter) error {
	if r == nil || event == nil {
		return fmt.Errorf("eventing: register on nil registry or event")
	}
	t := reflect.TypeOf(event)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	subject := event.Subject()
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.bySubject[subject]; ok && existing != t {
		return fmt.Errorf("eventing: subject %s already bound to %s", subject, existing)
	}
	r.byType[t.String()] = t
	r.bySubject[subject] = t
	return nil
}

// Subjects lists registered subjects in sorted order.
func (r *Registry) Subjects() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subjects := make([]string, 0, len(r.bySubject))
	for subject := range r.bySubject {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)
	return subjects
}

// DecodePayload returns the event carried by env as a value, not a pointer.
func (r *Registry) DecodePayload(env Envelope) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("eventing: nil registry")
	}
	r.mu.RLock()
	t, ok := r.byType[env.EventType]
	if !ok {
		t, ok = r.bySubject[env.Subject]
	}
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("eventing: unknown event %s (subject %q)", env.EventType, env.Subject)
	}
	target := reflect.New(t)
	if err := json.Unmarshal(env.Payload, target.Interface()); err != nil {
		return nil, fmt.Errorf("eventing: decode %s: %w", t, err)
	}
	return target.Elem().Interface(), nil
}

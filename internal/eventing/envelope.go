package eventing

import (
	"encoding/json"
	"errors"
	"reflect"
	"time"
)

const currentSchemaVersion = 1

// Envelope is the wire form of a domain event on NATS and in logs.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Subject       string          `json:"subject"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	VehicleID     string          `json:"vehicle_id,omitempty"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// Meta overrides envelope fields; zero values fall back to the event itself.
type Meta struct {
	EventID       string
	OccurredAt    time.Time
	CorrelationID string
	SchemaVersion int
}

// BuildEnvelope marshals event and fills in identity, timing and routing metadata.
func BuildEnvelope(event any, meta Meta) (Envelope, error) {
	if event == nil {
		return Envelope{}, errors.New("eventing: nil event")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, err
	}

	env := Envelope{
		EventID:       meta.EventID,
		EventType:     typeName(event),
		OccurredAt:    meta.OccurredAt,
		CorrelationID: meta.CorrelationID,
		SchemaVersion: meta.SchemaVersion,
		Payload:       payload,
	}
	if s, ok := event.(Subjecter); ok {
		env.Subject = s.Subject()
	}
	if v, ok := structField(event, "VehicleID").(string); ok {
		env.VehicleID = v
	}
	if env.OccurredAt.IsZero() {
		if t, ok := structField(event, "OccurredAt").(time.Time); ok {
			env.OccurredAt = t
		}
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now()
	}
	env.OccurredAt = env.OccurredAt.UTC()
	if env.EventID == "" {
		env.EventID = NewEventID()
	}
	if env.CorrelationID == "" {
		env.CorrelationID = env.EventID
	}
	if env.SchemaVersion == 0 {
		env.SchemaVersion = currentSchemaVersion
	}
	return env, nil
}

func typeName(event any) string {
	t := reflect.TypeOf(event)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.String()
}

// structField returns the named exported field of a struct (or pointer to one), or nil.
func structField(event any, name string) any {
	v := reflect.ValueOf(event)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	field := v.FieldByName(name)
	if !field.IsValid() || !field.CanInterface() {
		return nil
	}
	return field.Interface()
}

package eventing

import "github.com/nats-io/nuid"

// NewEventID returns a unique envelope id. Ids share the NATS client's nuid generator,
// so they are cheap to mint on every publish.
func NewEventID() string {
	return "evt_" + nuid.Next()
}

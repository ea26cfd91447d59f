// Package queue carries workflow notifications over RabbitMQ and delivers
// them to the mail dispatcher on the consuming side.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/iliyamo/document-access-gate/internal/notify"
)

// Encode serializes an event for the broker.
func Encode(ev notify.Event) ([]byte, error) {
	return json.Marshal(ev)
}

// Decode parses a broker message and rejects payloads without identity.
func Decode(body []byte) (notify.Event, error) {
	var ev notify.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Kind == "" || ev.RequestID == 0 {
		return ev, fmt.Errorf("event %q missing kind or request id", ev.ID)
	}
	return ev, nil
}

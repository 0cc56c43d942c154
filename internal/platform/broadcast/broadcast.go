package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
)

// Channel is the pub/sub channel every service instance shares, so an event
// raised on one instance reaches websocket clients connected to another.
const Channel = "ws:events"

// Event names pushed to websocket clients. These are the wire names the
// frontend subscribes to; changing them breaks deployed clients.
const (
	EventApplicationCreated = "application:created"
	EventStatusChanged      = "application:status-changed"
	EventRiskEvaluated      = "application:risk-evaluated"
)

// Delivery scopes. TargetAll reaches every client, TargetCountry clients
// watching the country in ID, TargetApplication clients subscribed to the
// application id in ID.
const (
	TargetAll         = "all"
	TargetCountry     = "country"
	TargetApplication = "application"
)

// Message is one realtime event. Target scopes delivery; ID carries the
// country code or application id the scoped targets match against.
type Message struct {
	Target string          `json:"target"`
	ID     string          `json:"id,omitempty"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

// NewMessage marshals data into a Message.
func NewMessage(target, id, event string, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("marshal broadcast data: %w", err)
	}
	return Message{Target: target, ID: id, Event: event, Data: raw}, nil
}

// Broadcaster distributes realtime events to every subscribed instance.
type Broadcaster interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(ctx context.Context) (<-chan Message, error)
}

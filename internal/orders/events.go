package orders

import (
	"encoding/json"
	"errors"
	"time"
)

// Wire names shared by the push channel and the same-tab event bus.
const (
	EventOrderCreated      = "order:created"
	EventOrderNew          = "order:new"
	EventOrderUpdated      = "order:updated"
	EventAuctionEnded      = "auction:ended"
	EventAuctionWon        = "auction:won"
	EventCustomRequestPaid = "custom_request:paid"
	EventAddressUpdated    = "order:address-updated"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually the order id
	Buyer         string          `json:"buyer,omitempty"`
	Seller        string          `json:"seller,omitempty"`
	RequestID     string          `json:"request_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"` // raw order when the event carries one
}

// ErrTransport marks failures of the system of record (network, database); callers
// keep their last-known-good state and may retry.
var ErrTransport = errors.New("transport failure")

// Package events carries order notifications from the push channel and the same-tab
// bus into a session, as typed values rather than loosely shaped payloads.
package events

import (
	"encoding/json"
	"time"

	"github.com/pantypost/order-sync/internal/orders"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindOrderCreated
	KindOrderNew
	KindOrderUpdated
	KindAuctionEnded
	KindAuctionWon
	KindCustomRequestPaid
	KindAddressUpdated
)

// Kinds is every kind a session subscribes to.
var Kinds = []Kind{
	KindOrderCreated,
	KindOrderNew,
	KindOrderUpdated,
	KindAuctionEnded,
	KindAuctionWon,
	KindCustomRequestPaid,
	KindAddressUpdated,
}

var kindNames = map[Kind]string{
	KindOrderCreated:      orders.EventOrderCreated,
	KindOrderNew:          orders.EventOrderNew,
	KindOrderUpdated:      orders.EventOrderUpdated,
	KindAuctionEnded:      orders.EventAuctionEnded,
	KindAuctionWon:        orders.EventAuctionWon,
	KindCustomRequestPaid: orders.EventCustomRequestPaid,
	KindAddressUpdated:    orders.EventAddressUpdated,
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return KindUnknown, false
}

type Origin string

const (
	OriginPush  Origin = "push"
	OriginLocal Origin = "local"
)

type Event struct {
	Kind      Kind
	ID        string
	Buyer     string
	Seller    string
	OrderID   string
	RequestID string
	// Order is the raw order when the event carries one inline.
	Order  json.RawMessage
	Origin Origin
	At     time.Time
}

func FromEnvelope(env orders.Envelope, origin Origin) (Event, bool) {
	k, ok := ParseKind(env.EventType)
	if !ok {
		return Event{}, false
	}
	ev := Event{
		Kind:      k,
		ID:        env.EventID,
		Buyer:     env.Buyer,
		Seller:    env.Seller,
		OrderID:   env.CorrelationID,
		RequestID: env.RequestID,
		Origin:    origin,
		At:        env.OccurredAt,
	}
	if p := env.Payload; len(p) > 0 && string(p) != "null" {
		ev.Order = p
	}
	return ev, true
}

// parties returns the buyer and seller of ev. An inline order names its own parties
// and those win over the envelope's; the envelope only fills in what the order omits.
func (ev Event) parties() (buyer, seller string) {
	buyer, seller = ev.Buyer, ev.Seller
	if len(ev.Order) == 0 {
		return buyer, seller
	}
	var p struct {
		Buyer  string `json:"buyer"`
		Seller string `json:"seller"`
	}
	if json.Unmarshal(ev.Order, &p) != nil {
		return buyer, seller
	}
	if p.Buyer != "" || p.Seller != "" {
		return p.Buyer, p.Seller
	}
	return buyer, seller
}

func (ev Event) RelevantTo(user string) bool {
	if user == "" {
		return false
	}
	b, s := ev.parties()
	return b == user || s == user
}

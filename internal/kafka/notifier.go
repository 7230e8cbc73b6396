package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/pantypost/order-sync/internal/logx"
	"github.com/pantypost/order-sync/internal/orders"
)

// Notifier announces persisted address changes on the push topic so other sessions
// of the same buyer merge the new address without a full load.
type Notifier struct {
	Publisher Publisher
	Service   string
	Logger    *slog.Logger
}

func (n *Notifier) AddressUpdated(_ context.Context, o orders.Order, addr orders.DeliveryAddress) {
	o = o.Clone()
	o.DeliveryAddress = &addr
	o.UpdatedAt = time.Now().UTC()

	env := NewEnvelope(orders.EventAddressUpdated, n.Service, o)
	env.CorrelationID = o.ID
	env.Buyer = o.Buyer
	env.Seller = o.Seller
	Send(n.Publisher, env)
	logx.Or(n.Logger).Debug("address_update_published", "order_id", o.ID, "event_id", env.EventID)
}

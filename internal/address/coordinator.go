// Package address applies a delivery address to an order the user can already see.
package address

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pantypost/order-sync/internal/logx"
	"github.com/pantypost/order-sync/internal/orders"
)

var (
	ErrInvalidOrder      = errors.New("invalid order")
	ErrIncompleteAddress = errors.New("address needs a full name and a first line")
	ErrNotPersisted      = errors.New("address was not saved")
)

type Lookup interface {
	Get(id string) (orders.Order, bool)
}

type Updater interface {
	UpdateOrderAddress(ctx context.Context, orderID string, addr orders.DeliveryAddress) (bool, error)
}

// Reloader performs the authoritative full load that follows a successful update.
type Reloader interface {
	Load(ctx context.Context) error
}

// Notifier tells other sessions that an address changed. Best effort.
type Notifier interface {
	AddressUpdated(ctx context.Context, o orders.Order, addr orders.DeliveryAddress)
}

type Coordinator struct {
	Orders   Lookup
	Updater  Updater
	Reloader Reloader
	Notifier Notifier
	Logger   *slog.Logger
}

// Confirm persists addr for orderID and then reloads rather than patching locally,
// so the canonical set shows exactly what the backend stored. Once the backend has
// accepted the address Confirm succeeds; a failed reload only leaves the view stale.
func (c *Coordinator) Confirm(ctx context.Context, orderID string, addr orders.DeliveryAddress) error {
	logger := logx.Or(c.Logger).With("order_id", orderID)

	o, ok := c.Orders.Get(orderID)
	if orderID == "" || !ok {
		return fmt.Errorf("%w: %q", ErrInvalidOrder, orderID)
	}
	addr = orders.SanitizeAddress(addr)
	if err := orders.ValidateAddress(addr); err != nil {
		return fmt.Errorf("%w: %v", ErrIncompleteAddress, err)
	}

	saved, err := c.Updater.UpdateOrderAddress(ctx, orderID, addr)
	if err != nil {
		logger.Error("address_update_failed", "err", err)
		return fmt.Errorf("%w: %w", orders.ErrTransport, err)
	}
	if !saved {
		logger.Warn("address_update_rejected")
		return ErrNotPersisted
	}
	logger.Info("address_updated")

	if c.Notifier != nil {
		c.Notifier.AddressUpdated(ctx, o, addr)
	}
	if err := c.Reloader.Load(ctx); err != nil {
		logger.Warn("address_reload_failed", "err", err)
	}
	return nil
}

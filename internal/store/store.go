// Package store owns the canonical order set of one user session. Every write goes
// through MergeFullLoad or MergeOne, which is what keeps entries unique by id and
// keeps statuses from moving backwards.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pantypost/order-sync/internal/logx"
	"github.com/pantypost/order-sync/internal/orders"
)

var (
	ErrNoValidOrders = errors.New("no valid orders")
	ErrNotInvolved   = errors.New("order does not involve the session user")
)

// LoadError reports a full load whose raw list was non-empty but yielded nothing usable.
type LoadError struct {
	Invalid int
	Total   int
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%d orders could not be loaded", e.Invalid)
}

func (e *LoadError) Is(target error) bool { return target == ErrNoValidOrders }

// Source is the read half of orders.Transport.
type Source interface {
	GetOrders(ctx context.Context, f orders.Filter) ([]json.RawMessage, error)
}

type Snapshot struct {
	Orders   []orders.Order
	Rejected int // records dropped by the last full load
	LoadedAt time.Time
	Err      error // last load failure; Orders is then the last-known-good set
}

type Store struct {
	user   string
	src    Source
	logger *slog.Logger

	LoadTimeout time.Duration

	sf singleflight.Group

	mu       sync.RWMutex
	list     []orders.Order
	index    map[string]int
	rejected int
	loadedAt time.Time
	lastErr  error
	now      func() time.Time
}

func New(user string, src Source, logger *slog.Logger) *Store {
	return &Store{
		user:        user,
		src:         src,
		logger:      logx.Or(logger).With("user", user),
		LoadTimeout: 15 * time.Second,
		index:       map[string]int{},
		now:         time.Now,
	}
}

func (s *Store) User() string { return s.user }

// Load performs a full load. Callers arriving while one is in flight share its result
// instead of issuing a second transport call.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	ch := s.sf.DoChan(s.user, func() (any, error) {
		// detached so one caller giving up does not fail the others
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.LoadTimeout)
		defer cancel()

		raw, err := s.src.GetOrders(fctx, orders.Filter{Buyer: s.user})
		if err != nil {
			err = fmt.Errorf("%w: %w", orders.ErrTransport, err)
			s.mu.Lock()
			s.lastErr = err
			s.mu.Unlock()
			s.logger.Error("orders_load_failed", "err", err)
			return s.Snapshot(), err
		}
		return s.MergeFullLoad(raw)
	})

	select {
	case res := <-ch:
		return res.Val.(Snapshot), res.Err
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

// MergeFullLoad replaces the canonical set with the valid records of raw.
// Invalid records are counted and logged, never surfaced one by one. When raw is
// non-empty but nothing validates, the previous set is kept and a *LoadError returned.
func (s *Store) MergeFullLoad(raw []json.RawMessage) (Snapshot, error) {
	valid := make([]orders.Order, 0, len(raw))
	rejected := 0
	for _, r := range raw {
		o, err := orders.Validate(r)
		if err != nil {
			rejected++
			s.logRejected(err)
			continue
		}
		valid = append(valid, o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(raw) > 0 && len(valid) == 0 {
		s.lastErr = &LoadError{Invalid: rejected, Total: len(raw)}
		s.logger.Warn("orders_load_unusable", "invalid", rejected)
		return s.snapshotLocked(), s.lastErr
	}

	list := make([]orders.Order, 0, len(valid))
	index := make(map[string]int, len(valid))
	synthetic := map[string]int{}
	for _, o := range valid {
		if o.Synthetic {
			// distinct id-less records with identical content stay distinct, by order of arrival
			n := synthetic[o.ID]
			synthetic[o.ID] = n + 1
			if n > 0 {
				s.logger.Warn("order_synthetic_id_collision", "order_id", o.ID, "occurrence", n+1)
				o.ID = fmt.Sprintf("%s-%d", o.ID, n+1)
			}
		}
		if i, ok := index[o.ID]; ok {
			if supersedes(list[i], o) {
				list[i] = o
			}
			continue
		}
		index[o.ID] = len(list)
		list = append(list, o)
	}

	s.list, s.index = list, index
	s.rejected = rejected
	s.loadedAt = s.now()
	s.lastErr = nil
	if rejected > 0 {
		s.logger.Warn("orders_loaded_with_rejects", "count", len(list), "rejected", rejected)
	} else {
		s.logger.Debug("orders_loaded", "count", len(list))
	}
	return s.snapshotLocked(), nil
}

// MergeOne upserts a single pushed or evented order. A new id goes to the front;
// an existing one is replaced in place only when the incoming record is not behind it.
// The bool reports whether the set changed.
func (s *Store) MergeOne(raw json.RawMessage) (Snapshot, bool, error) {
	o, err := orders.Validate(raw)
	if err != nil {
		s.logRejected(err)
		return s.Snapshot(), false, err
	}
	if !o.Involves(s.user) {
		s.logger.Warn("order_not_involved", "order_id", o.ID, "buyer", o.Buyer, "seller", o.Seller)
		return s.Snapshot(), false, fmt.Errorf("%w: %s", ErrNotInvolved, o.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[o.ID]; ok {
		if !supersedes(s.list[i], o) {
			return s.snapshotLocked(), false, nil
		}
		s.list[i] = o
		s.logger.Debug("order_updated", "order_id", o.ID, "shipping", o.ShippingStatus)
		return s.snapshotLocked(), true, nil
	}

	s.list = append([]orders.Order{o}, s.list...)
	for id, i := range s.index {
		s.index[id] = i + 1
	}
	s.index[o.ID] = 0
	s.logger.Debug("order_inserted", "order_id", o.ID)
	return s.snapshotLocked(), true, nil
}

// supersedes reports whether in may replace cur. Status rank decides first, never
// arrival time; at equal rank a record that cannot prove it is newer loses.
func supersedes(cur, in orders.Order) bool {
	moved := cur.ShippingStatus != in.ShippingStatus
	if moved && !orders.CanTransition(cur.ShippingStatus, in.ShippingStatus) {
		return false
	}
	pc, pi := cur.PaymentStatus.Rank(), in.PaymentStatus.Rank()
	if pi < pc {
		return false
	}
	if moved || pi > pc {
		return true
	}
	if !cur.UpdatedAt.IsZero() && (in.UpdatedAt.IsZero() || in.UpdatedAt.Before(cur.UpdatedAt)) {
		return false
	}
	return !reflect.DeepEqual(cur, in)
}

func (s *Store) logRejected(err error) {
	var rej *orders.RejectedError
	if errors.As(err, &rej) {
		s.logger.Warn("order_rejected", "reason", rej.Reason, "payload", string(rej.Payload))
		return
	}
	s.logger.Warn("order_rejected", "err", err)
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	out := make([]orders.Order, len(s.list))
	for i, o := range s.list {
		out[i] = o.Clone()
	}
	return Snapshot{Orders: out, Rejected: s.rejected, LoadedAt: s.loadedAt, Err: s.lastErr}
}

func (s *Store) Get(id string) (orders.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return orders.Order{}, false
	}
	return s.list[i].Clone(), true
}

// Has reports whether any canonical order satisfies match.
func (s *Store) Has(match func(orders.Order) bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.list {
		if match(o) {
			return true
		}
	}
	return false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.list)
}

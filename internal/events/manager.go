package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pantypost/order-sync/internal/logx"
)

// Sink is the session side of a subscription: the reconciler's two entry points,
// reached either directly (MergeOne) or through a debounced reload.
type Sink interface {
	MergeOne(raw json.RawMessage) error
	Reload()
	RequestPaid(requestID, orderID string)
}

// Manager keeps at most one live Subscription; starting a new one tears the old one
// down first so no handler of a previous user can reach the new user's sink.
type Manager struct {
	sources  []Source
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	current *Subscription
}

func NewManager(debounce time.Duration, logger *slog.Logger, sources ...Source) *Manager {
	return &Manager{sources: sources, debounce: debounce, logger: logx.Or(logger)}
}

func (m *Manager) Start(user string, sink Sink) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Stop()
		m.current = nil
	}

	sub := &Subscription{
		user:   user,
		sink:   sink,
		logger: m.logger.With("user", user),
	}
	sub.reload = NewDebouncer(m.debounce, sink.Reload)
	for _, src := range m.sources {
		for _, k := range Kinds {
			sub.unsubs = append(sub.unsubs, src.Subscribe(k, sub.handle))
		}
	}
	m.current = sub
	sub.logger.Debug("subscriptions_started", "count", len(sub.unsubs))
	return sub
}

func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Stop()
		m.current = nil
	}
}

type Subscription struct {
	user   string
	sink   Sink
	reload *Debouncer
	unsubs []func()
	logger *slog.Logger

	stopped  atomic.Bool
	once     sync.Once
	merged   atomic.Int64
	reloads  atomic.Int64
	dropped  atomic.Int64
	failures atomic.Int64
}

func (s *Subscription) User() string { return s.user }

func (s *Subscription) Stop() {
	s.once.Do(func() {
		s.stopped.Store(true)
		for _, u := range s.unsubs {
			u()
		}
		s.reload.Stop()
		s.logger.Debug("subscriptions_stopped")
	})
}

func (s *Subscription) Stopped() bool { return s.stopped.Load() }

type Stats struct {
	Merged, Reloads, Dropped, Failures int64
}

func (s *Subscription) Stats() Stats {
	return Stats{
		Merged:   s.merged.Load(),
		Reloads:  s.reloads.Load(),
		Dropped:  s.dropped.Load(),
		Failures: s.failures.Load(),
	}
}

func (s *Subscription) handle(ev Event) {
	if s.stopped.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.failures.Add(1)
			s.logger.Error("event_handler_panic", "kind", ev.Kind.String(), "panic", r)
		}
	}()

	if !ev.RelevantTo(s.user) {
		s.dropped.Add(1)
		return
	}

	switch ev.Kind {
	case KindOrderCreated, KindOrderNew, KindOrderUpdated, KindAddressUpdated,
		KindAuctionEnded, KindAuctionWon:
		s.mergeOrReload(ev)
	case KindCustomRequestPaid:
		if ev.RequestID != "" {
			s.sink.RequestPaid(ev.RequestID, ev.OrderID)
		}
		s.mergeOrReload(ev)
	default:
		s.dropped.Add(1)
		s.logger.Warn("event_kind_unhandled", "kind", ev.Kind.String())
	}
}

// mergeOrReload takes the fast path when the order rides along, else schedules a reload.
func (s *Subscription) mergeOrReload(ev Event) {
	if len(ev.Order) == 0 {
		s.reloads.Add(1)
		s.reload.Trigger()
		return
	}
	if err := s.sink.MergeOne(ev.Order); err != nil {
		// a payload we cannot use still tells us something changed
		s.failures.Add(1)
		s.logger.Warn("event_merge_failed", "kind", ev.Kind.String(), "event_id", ev.ID, "err", err)
		s.reloads.Add(1)
		s.reload.Trigger()
		return
	}
	s.merged.Add(1)
}

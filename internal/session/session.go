// Package session binds one signed-in user to a store, a request board, a
// subscription set and at most one poll task. Switching users tears all of it down.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pantypost/order-sync/internal/address"
	"github.com/pantypost/order-sync/internal/events"
	"github.com/pantypost/order-sync/internal/logx"
	"github.com/pantypost/order-sync/internal/negotiation"
	"github.com/pantypost/order-sync/internal/orders"
	"github.com/pantypost/order-sync/internal/poll"
	"github.com/pantypost/order-sync/internal/store"
)

var (
	ErrNoUser   = errors.New("no user")
	ErrClosed   = errors.New("session closed")
	ErrInactive = errors.New("no active session")
)

// Deps are the process-wide collaborators every session shares.
type Deps struct {
	Orders   store.Source
	Requests negotiation.Store
	Signals  poll.SignalStore
	Updater  address.Updater
	Notifier address.Notifier
	Sources  []events.Source
	Logger   *slog.Logger

	PollInterval    time.Duration
	PollMaxAttempts int
	ReloadDebounce  time.Duration
}

// Manager holds the single active session of one client.
type Manager struct {
	deps  Deps
	subs  *events.Manager
	polls *poll.Scheduler

	mu      sync.Mutex
	current *Session
}

func NewManager(d Deps) *Manager {
	d.Logger = logx.Or(d.Logger)
	if d.PollInterval <= 0 {
		d.PollInterval = 2 * time.Second
	}
	if d.PollMaxAttempts <= 0 {
		d.PollMaxAttempts = 10
	}
	if d.ReloadDebounce <= 0 {
		d.ReloadDebounce = 500 * time.Millisecond
	}
	return &Manager{
		deps:  d,
		subs:  events.NewManager(d.ReloadDebounce, d.Logger, d.Sources...),
		polls: poll.NewScheduler(d.Signals, d.Logger),
	}
}

// Activate makes userID the active user. The previous session is closed before
// anything for the new one is created; activating the current user again is a no-op.
// The returned error is the initial load's; the session is usable either way.
func (m *Manager) Activate(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, ErrNoUser
	}

	m.mu.Lock()
	if cur := m.current; cur != nil && cur.user == userID && !cur.closed.Load() {
		m.mu.Unlock()
		return cur, nil
	}
	if m.current != nil {
		m.current.close()
		m.current = nil
	}
	s := m.open(ctx, userID)
	m.current = s
	m.mu.Unlock()

	s.resumePoll(ctx)
	if err := s.requests.Load(ctx); err != nil {
		s.logger.Warn("session_requests_load_failed", "err", err)
	}
	return s, s.Load(ctx)
}

func (m *Manager) open(ctx context.Context, userID string) *Session {
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	logger := m.deps.Logger.With("user", userID)
	s := &Session{
		user:   userID,
		ctx:    sctx,
		cancel: cancel,
		deps:   m.deps,
		polls:  m.polls,
		logger: logger,
	}
	s.store = store.New(userID, m.deps.Orders, m.deps.Logger)
	s.requests = negotiation.NewService(userID, m.deps.Requests, negotiation.NewBoard(), m.deps.Logger)
	s.sub = m.subs.Start(userID, s)
	logger.Info("session_started")
	return s
}

func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Stop closes the active session, if any.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.close()
		m.current = nil
	}
}

type Session struct {
	user   string
	ctx    context.Context
	cancel context.CancelFunc
	deps   Deps
	polls  *poll.Scheduler
	logger *slog.Logger

	store    *store.Store
	requests *negotiation.Service
	sub      *events.Subscription

	mu     sync.Mutex
	task   *poll.Task
	closed atomic.Bool
	once   sync.Once
}

var (
	_ events.Sink      = (*Session)(nil)
	_ poll.Target      = (*Session)(nil)
	_ address.Reloader = (*Session)(nil)
	_ address.Lookup   = (*Session)(nil)
)

func (s *Session) User() string { return s.user }

func (s *Session) Closed() bool { return s.closed.Load() }

func (s *Session) Snapshot() store.Snapshot { return s.store.Snapshot() }

func (s *Session) Requests() *negotiation.Service { return s.requests }

func (s *Session) Subscription() *events.Subscription { return s.sub }

func (s *Session) Get(id string) (orders.Order, bool) { return s.store.Get(id) }

func (s *Session) Has(match func(orders.Order) bool) bool { return s.store.Has(match) }

// Load runs a full load and links paid custom requests to their orders.
func (s *Session) Load(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	snap, err := s.store.Load(ctx)
	if s.closed.Load() {
		return ErrClosed
	}
	s.linkRequests(snap.Orders)
	return err
}

// MergeOne is the fast path for a pushed order.
func (s *Session) MergeOne(raw json.RawMessage) error {
	if s.closed.Load() {
		return ErrClosed
	}
	snap, changed, err := s.store.MergeOne(raw)
	if err != nil {
		return err
	}
	if changed {
		s.linkRequests(snap.Orders)
	}
	return nil
}

// Reload is called by the subscription's debouncer.
func (s *Session) Reload() {
	if s.closed.Load() {
		return
	}
	if err := s.Load(s.ctx); err != nil && !errors.Is(err, ErrClosed) {
		s.logger.Warn("session_reload_failed", "err", err)
	}
}

func (s *Session) RequestPaid(requestID, orderID string) {
	if s.closed.Load() || orderID == "" {
		return
	}
	if s.requests.Board().MarkPaid(requestID, orderID) {
		s.logger.Info("request_marked_paid", "request_id", requestID, "order_id", orderID)
	}
}

func (s *Session) linkRequests(list []orders.Order) {
	board := s.requests.Board()
	for _, o := range list {
		if o.OriginalRequestID != "" && board.MarkPaid(o.OriginalRequestID, o.ID) {
			s.logger.Info("request_marked_paid", "request_id", o.OriginalRequestID, "order_id", o.ID)
		}
	}
}

// ConfirmAddress saves addr for one of this user's orders and reloads.
func (s *Session) ConfirmAddress(ctx context.Context, orderID string, addr orders.DeliveryAddress) error {
	if s.closed.Load() {
		return ErrClosed
	}
	c := &address.Coordinator{
		Orders:   s,
		Updater:  s.deps.Updater,
		Reloader: s,
		Notifier: s.deps.Notifier,
		Logger:   s.logger,
	}
	return c.Confirm(ctx, orderID, addr)
}

// Expect arms the "order expected soon" flag and starts polling for it.
func (s *Session) Expect(ctx context.Context, sig poll.Signal) (*poll.Task, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	sig.UserID = s.user
	if sig.Since.IsZero() {
		sig.Since = time.Now().UTC()
	}
	if s.deps.Signals == nil {
		return nil, errors.New("poll signals not configured")
	}
	if err := s.deps.Signals.Arm(ctx, sig); err != nil {
		return nil, err
	}
	return s.startPoll(sig), nil
}

func (s *Session) PollTask() *poll.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task
}

// resumePoll picks up a flag armed before this session existed.
func (s *Session) resumePoll(ctx context.Context) {
	if s.deps.Signals == nil {
		return
	}
	sig, ok, err := s.deps.Signals.Peek(ctx, s.user)
	if err != nil {
		s.logger.Warn("poll_signal_peek_failed", "err", err)
		return
	}
	if ok {
		s.startPoll(sig)
	}
}

func (s *Session) startPoll(sig poll.Signal) *poll.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.task != nil {
		s.task.Cancel()
	}
	s.task = s.polls.Start(s.ctx, sig, s, s.deps.PollMaxAttempts, s.deps.PollInterval)
	return s.task
}

func (s *Session) close() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.sub.Stop()
		s.mu.Lock()
		if s.task != nil {
			s.task.Cancel()
		}
		s.mu.Unlock()
		s.cancel()
		s.logger.Info("session_stopped")
	})
}

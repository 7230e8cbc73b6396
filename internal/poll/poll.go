// Package poll covers the gap between "the user probably just won something" and the
// push channel actually delivering the order: a bounded, cancellable reload loop.
package poll

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pantypost/order-sync/internal/logx"
	"github.com/pantypost/order-sync/internal/orders"
)

// ClockSkew tolerates orders stamped slightly before the signal was raised.
const ClockSkew = 5 * time.Minute

// Signal is the short-lived "an order is expected soon" flag.
type Signal struct {
	UserID     string    `json:"user_id"`
	OrderID    string    `json:"order_id,omitempty"`
	Title      string    `json:"title,omitempty"`
	WasAuction bool      `json:"was_auction"`
	Since      time.Time `json:"since"`
}

// Matches reports whether o is the order the signal is waiting for.
func (s Signal) Matches(o orders.Order) bool {
	if o.Buyer != s.UserID {
		return false
	}
	if s.OrderID != "" {
		return o.ID == s.OrderID
	}
	if s.WasAuction && !o.WasAuction {
		return false
	}
	if s.Title != "" && !strings.EqualFold(strings.TrimSpace(o.Title), strings.TrimSpace(s.Title)) {
		return false
	}
	if !s.Since.IsZero() && o.Date.Before(s.Since.Add(-ClockSkew)) {
		return false
	}
	return true
}

type SignalStore interface {
	Arm(ctx context.Context, sig Signal) error
	Peek(ctx context.Context, userID string) (Signal, bool, error)
	Clear(ctx context.Context, userID string) error
}

// Target is what a poll reloads and inspects.
type Target interface {
	Load(ctx context.Context) error
	Has(match func(orders.Order) bool) bool
}

type Outcome string

const (
	OutcomeMatched   Outcome = "matched"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeCancelled Outcome = "cancelled"
)

type Result struct {
	Outcome  Outcome
	Attempts int
}

type Scheduler struct {
	signals SignalStore
	logger  *slog.Logger
}

func NewScheduler(signals SignalStore, logger *slog.Logger) *Scheduler {
	return &Scheduler{signals: signals, logger: logx.Or(logger)}
}

type Task struct {
	sig    Signal
	cancel context.CancelFunc
	done   chan struct{}
	result Result
}

// Start runs at most maxAttempts loads, interval apart, and stops early once target
// holds a matching order. On match or exhaustion the signal is cleared exactly once;
// a cancelled task leaves it armed because the poll never concluded.
func (s *Scheduler) Start(ctx context.Context, sig Signal, target Target, maxAttempts int, interval time.Duration) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{sig: sig, cancel: cancel, done: make(chan struct{})}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	logger := s.logger.With("user", sig.UserID)
	var clearOnce sync.Once
	conclude := func(r Result) {
		t.result = r
		clearOnce.Do(func() {
			cctx, ccancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer ccancel()
			if err := s.signals.Clear(cctx, sig.UserID); err != nil {
				logger.Warn("poll_signal_clear_failed", "err", err)
			}
		})
		logger.Info("poll_concluded", "outcome", r.Outcome, "attempts", r.Attempts)
	}

	go func() {
		defer close(t.done)
		defer cancel()

		if target.Has(sig.Matches) {
			conclude(Result{Outcome: OutcomeMatched})
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		attempts := 0
		for attempts < maxAttempts {
			select {
			case <-ctx.Done():
				t.result = Result{Outcome: OutcomeCancelled, Attempts: attempts}
				return
			case <-ticker.C:
			}
			attempts++
			if err := target.Load(ctx); err != nil {
				logger.Warn("poll_load_failed", "attempt", attempts, "err", err)
			}
			if target.Has(sig.Matches) {
				conclude(Result{Outcome: OutcomeMatched, Attempts: attempts})
				return
			}
		}
		if ctx.Err() != nil {
			t.result = Result{Outcome: OutcomeCancelled, Attempts: attempts}
			return
		}
		conclude(Result{Outcome: OutcomeExhausted, Attempts: attempts})
	}()
	return t
}

func (t *Task) Signal() Signal { return t.sig }

func (t *Task) Cancel() { t.cancel() }

func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task ends and returns how it ended.
func (t *Task) Wait() Result {
	<-t.done
	return t.result
}

func (t *Task) Running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

package events

import (
	"context"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/pantypost/order-sync/internal/kafka"
	"github.com/pantypost/order-sync/internal/logx"
	"github.com/pantypost/order-sync/internal/orders"
)

// Deduper remembers event ids; Seen marks id and reports whether it was already marked.
type Deduper interface {
	Seen(ctx context.Context, id string) (bool, error)
}

// KafkaHub decodes envelopes from the push topic once per process and fans them out
// to every subscribed session.
type KafkaHub struct {
	fanout
	dedup  Deduper
	logger *slog.Logger
}

func NewKafkaHub(dedup Deduper, logger *slog.Logger) *KafkaHub {
	return &KafkaHub{dedup: dedup, logger: logx.Or(logger)}
}

// Handle is installed as the Kafka consumer handler. Returning nil commits the offset,
// so undecodable messages are logged and skipped rather than retried forever.
func (h *KafkaHub) Handle(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.Decode[orders.Envelope](m.Value)
	if err != nil {
		h.logger.Warn("push_envelope_invalid", "err", err, "offset", m.Offset)
		return nil
	}
	ev, ok := FromEnvelope(env, OriginPush)
	if !ok {
		h.logger.Debug("push_event_ignored", "type", env.EventType)
		return nil
	}

	if h.dedup != nil && ev.ID != "" {
		seen, err := h.dedup.Seen(ctx, ev.ID)
		if err != nil {
			// deliver anyway: merging is idempotent, dedup only saves work
			h.logger.Warn("push_dedup_failed", "event_id", ev.ID, "err", err)
		} else if seen {
			h.logger.Debug("push_event_duplicate", "event_id", ev.ID)
			return nil
		}
	}

	n := h.deliver(ev)
	h.logger.Debug("push_event_delivered", "type", ev.Kind.String(), "event_id", ev.ID, "handlers", n)
	return nil
}

func (h *KafkaHub) Subscribers() int { return h.count() }

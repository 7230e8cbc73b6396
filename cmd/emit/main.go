// Command emit publishes one marketplace event to the push topic. It stands in for
// the backend when exercising a running order-sync, e.g. simulating an auction win.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"

	"github.com/pantypost/order-sync/internal/config"
	"github.com/pantypost/order-sync/internal/events"
	kafkax "github.com/pantypost/order-sync/internal/kafka"
	"github.com/pantypost/order-sync/internal/orders"
)

type options struct {
	brokers   []string
	topic     string
	eventType string
	buyer     string
	seller    string
	orderID   string
	requestID string
	order     string
	orderFile string
	producer  string
	dryRun    bool
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(config.Load()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg config.Config) *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Publish one marketplace event",
		Example: `  emit --type auction:won --buyer alice --seller bob --order '{"id":"o-1","price":30,"seller":"bob","buyer":"alice","wasAuction":true}'
  emit --type order:updated --buyer alice --order-id o-1`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := o.envelope()
			if err != nil {
				return err
			}
			if o.dryRun {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(env)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			return publish(ctx, o.brokers, o.topic, env)
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&o.brokers, "brokers", cfg.KafkaBrokers, "Kafka brokers")
	f.StringVar(&o.topic, "topic", cfg.KafkaTopic, "push topic")
	f.StringVarP(&o.eventType, "type", "t", orders.EventOrderUpdated, "event type, e.g. auction:won")
	f.StringVar(&o.buyer, "buyer", "", "buyer user id")
	f.StringVar(&o.seller, "seller", "", "seller user id")
	f.StringVar(&o.orderID, "order-id", "", "order id the event refers to")
	f.StringVar(&o.requestID, "request-id", "", "custom request id (custom_request:paid)")
	f.StringVar(&o.order, "order", "", "inline order JSON")
	f.StringVar(&o.orderFile, "order-file", "", "file holding the inline order JSON")
	f.StringVar(&o.producer, "producer", "emit", "producer name stamped on the envelope")
	f.BoolVar(&o.dryRun, "dry-run", false, "print the envelope instead of publishing")
	return cmd
}

func (o *options) envelope() (orders.Envelope, error) {
	if _, ok := events.ParseKind(o.eventType); !ok {
		return orders.Envelope{}, fmt.Errorf("unknown event type %q", o.eventType)
	}
	raw := []byte(o.order)
	if o.orderFile != "" {
		b, err := os.ReadFile(o.orderFile)
		if err != nil {
			return orders.Envelope{}, err
		}
		raw = b
	}

	env := kafkax.NewEnvelope(o.eventType, o.producer, nil)
	env.Buyer, env.Seller = o.buyer, o.seller
	env.CorrelationID = o.orderID
	env.RequestID = o.requestID
	if len(raw) > 0 {
		ord, err := orders.Validate(raw)
		if err != nil {
			return orders.Envelope{}, err
		}
		env.Payload = json.RawMessage(raw)
		if env.Buyer == "" {
			env.Buyer = ord.Buyer
		}
		if env.Seller == "" {
			env.Seller = ord.Seller
		}
		if env.CorrelationID == "" {
			env.CorrelationID = ord.ID
		}
	}
	if env.Buyer == "" && env.Seller == "" {
		return orders.Envelope{}, fmt.Errorf("need --buyer, --seller or an inline order")
	}
	return env, nil
}

// syncWriter publishes synchronously; the CLI exits right after.
type syncWriter struct {
	ctx context.Context
	w   *kafka.Writer
	err error
}

func (s *syncWriter) Publish(key, value []byte, headers ...kafka.Header) {
	s.err = s.w.WriteMessages(s.ctx, kafka.Message{Key: key, Value: value, Headers: headers, Time: time.Now()})
}

func publish(ctx context.Context, brokers []string, topic string, env orders.Envelope) error {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	defer w.Close()
	sw := &syncWriter{ctx: ctx, w: w}
	kafkax.Send(sw, env)
	if sw.err != nil {
		return fmt.Errorf("publish %s: %w", env.EventType, sw.err)
	}
	fmt.Fprintf(os.Stderr, "published %s %s\n", env.EventType, env.EventID)
	return nil
}

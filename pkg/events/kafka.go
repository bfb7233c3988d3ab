// Package events streams committed exchange events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
)

const defaultQueueSize = 4096

// messageWriter is the part of kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the JSON value of every published message
type Event struct {
	Type      string `json:"type"` // "order" or "trade"
	ID        uint64 `json:"id"`
	OrderID   uint64 `json:"orderId,omitempty"`
	Ticker    string `json:"ticker"`
	Side      string `json:"side"`
	Trader    string `json:"trader,omitempty"`
	Taker     string `json:"taker,omitempty"`
	Maker     string `json:"maker,omitempty"`
	Price     string `json:"price"`
	Amount    string `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

// KafkaPublisher queues exchange events and writes them to one topic
// Messages are keyed by ticker so each market stays ordered within a partition.
// It implements dex.Listener; when the queue is full new events are dropped.
type KafkaPublisher struct {
	writer messageWriter
	queue  chan kafka.Message
	log    *zap.SugaredLogger
}

// NewKafkaPublisher creates a publisher for brokers (comma separated) and topic
func NewKafkaPublisher(brokers, topic string, log *zap.SugaredLogger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(splitBrokers(brokers)...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newPublisher(w, defaultQueueSize, log)
}

func newPublisher(w messageWriter, queueSize int, log *zap.SugaredLogger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		queue:  make(chan kafka.Message, queueSize),
		log:    log,
	}
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// OnOrder queues a newly rested order
func (p *KafkaPublisher) OnOrder(o orderbook.Order) {
	p.enqueue(o.Ticker, Event{
		Type:      "order",
		ID:        o.ID,
		Ticker:    o.Ticker,
		Side:      o.Side.String(),
		Trader:    o.Trader.Hex(),
		Price:     o.Price.Dec(),
		Amount:    o.Amount.Dec(),
		Timestamp: o.CreatedAt,
	})
}

// OnTrades queues one message per fill
func (p *KafkaPublisher) OnTrades(trades []orderbook.Trade) {
	for _, t := range trades {
		p.enqueue(t.Ticker, Event{
			Type:      "trade",
			ID:        t.ID,
			OrderID:   t.OrderID,
			Ticker:    t.Ticker,
			Side:      t.TakerSide.String(),
			Taker:     t.Taker.Hex(),
			Maker:     t.Maker.Hex(),
			Price:     t.Price.Dec(),
			Amount:    t.Amount.Dec(),
			Timestamp: t.Timestamp,
		})
	}
}

func (p *KafkaPublisher) enqueue(key string, ev Event) {
	value, err := json.Marshal(ev)
	if err != nil {
		p.log.Warnw("kafka_marshal_failed", "type", ev.Type, "id", ev.ID, "err", err)
		return
	}
	select {
	case p.queue <- kafka.Message{Key: []byte(key), Value: value}:
	default:
		p.log.Warnw("kafka_queue_full", "type", ev.Type, "id", ev.ID, "ticker", key)
	}
}

// Run drains the queue until ctx is cancelled
// Messages already queued are batched into a single write.
func (p *KafkaPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.queue:
			batch := []kafka.Message{msg}
			for n := len(p.queue); n > 0; n-- {
				batch = append(batch, <-p.queue)
			}
			if err := p.writer.WriteMessages(ctx, batch...); err != nil {
				p.log.Errorw("kafka_write_failed", "messages", len(batch), "err", err)
				continue
			}
			p.log.Debugw("kafka_written", "messages", len(batch))
		}
	}
}

// Pending returns the number of queued messages
func (p *KafkaPublisher) Pending() int {
	return len(p.queue)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

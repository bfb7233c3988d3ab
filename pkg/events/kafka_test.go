package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func trade(id uint64, ticker string) orderbook.Trade {
	return orderbook.Trade{
		ID:        id,
		OrderID:   1,
		Ticker:    ticker,
		Taker:     common.HexToAddress("0xBB"),
		Maker:     common.HexToAddress("0xAA"),
		TakerSide: orderbook.Sell,
		Amount:    uint256.NewInt(4),
		Price:     uint256.NewInt(10),
	}
}

func TestKafkaPublisher_WritesKeyedEvents(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, 16, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.OnOrder(orderbook.Order{
		ID: 1, Ticker: "REP", Side: orderbook.Buy, Trader: common.HexToAddress("0xAA"),
		Price: uint256.NewInt(10), Amount: uint256.NewInt(10), Filled: new(uint256.Int),
	})
	p.OnTrades([]orderbook.Trade{trade(1, "REP"), trade(2, "REP")})

	deadline := time.Now().Add(2 * time.Second)
	for len(w.written()) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("written %d messages, want 3", len(w.written()))
		}
		time.Sleep(5 * time.Millisecond)
	}

	msgs := w.written()
	for _, m := range msgs {
		if string(m.Key) != "REP" {
			t.Errorf("key = %q, want REP", m.Key)
		}
	}
	var ev Event
	if err := json.Unmarshal(msgs[2].Value, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "trade" || ev.ID != 2 || ev.Amount != "4" || ev.Side != "SELL" {
		t.Errorf("event = %+v", ev)
	}
}

func TestKafkaPublisher_DropsWhenFull(t *testing.T) {
	p := newPublisher(&fakeWriter{}, 2, zap.NewNop().Sugar())

	p.OnTrades([]orderbook.Trade{trade(1, "BAT"), trade(2, "BAT"), trade(3, "BAT")})

	if got := p.Pending(); got != 2 {
		t.Errorf("pending = %d, want 2", got)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := splitBrokers(" a:9092, ,b:9092")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Errorf("splitBrokers = %v", got)
	}
}

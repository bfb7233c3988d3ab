package p2p

import (
	"context"
	"errors"
	"fmt"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
)

// TopicMarket carries new orders and trades of every ticker
const TopicMarket = "hyperdex/market/1"

// Handler receives market events published by other peers
type Handler func(from peer.ID, ev MarketEvent)

// Gossip publishes committed exchange events over GossipSub
// It implements dex.Listener, and observers use SetHandler to consume the feed.
type Gossip struct {
	ctx context.Context
	h   host.Host
	ps  *pubsub.PubSub
	log *zap.SugaredLogger

	topic *pubsub.Topic
	sub   *pubsub.Subscription

	muH     sync.RWMutex
	handler Handler
}

type GossipConfig struct {
	ListenAddr string   // multiaddr, e.g. /ip4/0.0.0.0/tcp/9000
	Bootstrap  []string // full /p2p/ multiaddrs
	Logger     *zap.SugaredLogger
}

// NewGossip starts a libp2p host and joins the market topic
// ctx bounds the inbound loop and publishes made from listener callbacks.
func NewGossip(ctx context.Context, cfg GossipConfig) (*Gossip, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("listen addr: %w", err)
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, err
	}

	g := &Gossip{ctx: ctx, h: h, ps: ps, log: log}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			log.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	if g.topic, err = ps.Join(TopicMarket); err != nil {
		h.Close()
		return nil, err
	}
	if g.sub, err = g.topic.Subscribe(); err != nil {
		h.Close()
		return nil, err
	}

	go g.handleInbound(ctx)

	log.Infow("gossip_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr, "topic", TopicMarket)
	return g, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

func (g *Gossip) Host() host.Host { return g.h }

// Addrs returns the host's dialable /p2p/ multiaddrs
func (g *Gossip) Addrs() []string {
	out := make([]string, 0, len(g.h.Addrs()))
	for _, a := range g.h.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", a, g.h.ID()))
	}
	return out
}

// Peers returns the peers currently in the market topic
func (g *Gossip) Peers() []peer.ID {
	return g.topic.ListPeers()
}

func (g *Gossip) SetHandler(fn Handler) { g.muH.Lock(); g.handler = fn; g.muH.Unlock() }

// Publish gossips one event
func (g *Gossip) Publish(ctx context.Context, ev MarketEvent) error {
	data, err := gobEncode(ev)
	if err != nil {
		return err
	}
	return g.topic.Publish(ctx, data)
}

// OnOrder gossips a newly rested order
func (g *Gossip) OnOrder(o orderbook.Order) {
	g.publishEvent(MarketEvent{Kind: EventOrder, Order: orderToWire(o)})
}

// OnTrades gossips the fills of one market order
func (g *Gossip) OnTrades(trades []orderbook.Trade) {
	g.publishEvent(MarketEvent{Kind: EventTrades, Trades: tradesToWire(trades)})
}

func (g *Gossip) publishEvent(ev MarketEvent) {
	if err := g.Publish(g.ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		g.log.Warnw("gossip_publish_failed", "kind", ev.Kind, "err", err)
	}
}

// Close leaves the topic and stops the host
func (g *Gossip) Close() error {
	g.sub.Cancel()
	if err := g.topic.Close(); err != nil {
		g.log.Warnw("gossip_topic_close_failed", "err", err)
	}
	return g.h.Close()
}

// inbound

func (g *Gossip) handleInbound(ctx context.Context) {
	for {
		msg, err := g.sub.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == g.h.ID() {
			continue
		}
		var ev MarketEvent
		if err := gobDecode(msg.Data, &ev); err != nil {
			g.log.Debugw("gossip_decode_failed", "from", msg.ReceivedFrom.String(), "err", err)
			continue
		}

		g.muH.RLock()
		h := g.handler
		g.muH.RUnlock()
		if h != nil {
			h(msg.ReceivedFrom, ev)
		}
	}
}

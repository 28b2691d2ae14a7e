// Copyright (c) the wifisd authors
// Licensed under the MIT license

// Package discovery finds WiFi@SDCF cards by shouting "KTC" at the
// broadcast address and collecting the card-info datagrams that come
// back.
package discovery

import (
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ktctools/wifisd/internal/card"
	"github.com/ktctools/wifisd/internal/proto"
	"github.com/ktctools/wifisd/internal/transport"
)

var log = logrus.WithField("pkg", "discovery")

// DefaultBroadcastAddr suits the cards' factory AP configuration.
const DefaultBroadcastAddr = "192.168.0.255"

// DefaultInterval is how often the probe goes out while started.
const DefaultInterval = 10 * time.Second

// Discovery broadcasts probes and emits each responding card exactly
// once per (ip, mac) pair for the lifetime of the instance.
type Discovery struct {
	tr        *transport.Transport
	addr      string
	onCard    func(*card.Card)
	broadcast func(addr string, payload []byte) error
	cardOpts  []card.Option

	mu    sync.Mutex
	seen  map[string]*card.Card // keyed ip|mac
	stop  chan struct{}
}

type Option func(*Discovery)

// WithBroadcaster replaces the probe sender; tests use this to silence
// the network.
func WithBroadcaster(f func(addr string, payload []byte) error) Option {
	return func(d *Discovery) { d.broadcast = f }
}

// WithCardOptions passes options through to every Card built for a
// discovered peer (credentials, timeouts).
func WithCardOptions(opts ...card.Option) Option {
	return func(d *Discovery) { d.cardOpts = opts }
}

// New subscribes to the transport's broadcast stream. addr may be empty
// for the default. onCard runs on the receive goroutine and must not
// block.
func New(tr *transport.Transport, addr string, onCard func(*card.Card), opts ...Option) *Discovery {
	if addr == "" {
		addr = DefaultBroadcastAddr
	}
	d := &Discovery{
		tr:        tr,
		addr:      addr,
		onCard:    onCard,
		broadcast: transport.Broadcast,
		seen:      make(map[string]*card.Card),
	}
	for _, o := range opts {
		o(d)
	}
	tr.SubscribeAll(d.handle)
	return d
}

// Start begins probing every interval (zero means DefaultInterval).
// The first probe goes out immediately.
func (d *Discovery) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return // already running
	}
	stop := make(chan struct{})
	d.stop = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if err := d.broadcast(d.addr, proto.Probe); err != nil {
				log.WithError(err).WithField("addr", d.addr).Warn("probe broadcast failed")
			}
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop cancels the periodic probe. Already-discovered cards stay alive.
func (d *Discovery) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
	}
}

// Destroy stops probing, destroys every discovered card and drops the
// callback.
func (d *Discovery) Destroy() {
	d.Stop()
	d.mu.Lock()
	cards := d.seen
	d.seen = make(map[string]*card.Card)
	d.onCard = nil
	d.mu.Unlock()
	for _, c := range cards {
		c.Destroy()
	}
}

// Cards lists everything discovered so far, in no particular order.
func (d *Discovery) Cards() []*card.Card {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*card.Card, 0, len(d.seen))
	for _, c := range d.seen {
		out = append(out, c)
	}
	return out
}

func (d *Discovery) handle(b []byte, from *net.UDPAddr) {
	direction, cmd, err := proto.Header(b)
	if err != nil || direction != proto.DirFromCard || cmd != proto.CmdCardInfo {
		return
	}

	inf, err := card.ParseInfo(b)
	if err != nil {
		log.WithError(err).Warn("malformed card info dropped")
		return
	}

	key := inf.IP + "|" + inf.MAC
	d.mu.Lock()
	if _, dup := d.seen[key]; dup {
		d.mu.Unlock()
		return
	}
	c := card.FromInfo(d.tr, inf, d.cardOpts...)
	d.seen[key] = c
	emit := d.onCard
	d.mu.Unlock()

	log.Info(inf.String())
	if emit != nil {
		emit(c)
	}
}

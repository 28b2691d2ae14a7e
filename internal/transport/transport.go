// Copyright (c) the wifisd authors
// Licensed under the MIT license

// Package transport owns the single UDP socket that WiFi@SDCF cards
// answer on, and fans inbound datagrams out to subscribers.
//
// The card protocol is connectionless: requests go out on short-lived
// sockets, responses all come back to local port 24388. One Transport
// per process is therefore the rule. It knows nothing about frame
// contents; routing is purely by source IP.
package transport

import (
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ktctools/wifisd/internal/proto"
)

var log = logrus.WithField("pkg", "transport")

// Handler receives one inbound datagram. It must not block: it runs on
// the receive goroutine and a slow handler stalls every subscriber.
type Handler func(b []byte, from *net.UDPAddr)

type Transport struct {
	mu        sync.Mutex
	conn      net.PacketConn
	peers     map[string]Handler // keyed by source IP (no port)
	broadcast []Handler
	done      chan struct{}
}

// New binds the well-known local port and starts the receive loop.
func New() (*Transport, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: proto.LocalPort})
	if err != nil {
		return nil, err
	}
	return NewWithConn(conn), nil
}

// NewWithConn runs the dispatch loop over an injected socket. Tests use
// this with an in-memory pipe.
func NewWithConn(conn net.PacketConn) *Transport {
	t := &Transport{
		conn:  conn,
		peers: make(map[string]Handler),
		done:  make(chan struct{}),
	}
	go t.receive()
	return t
}

// Subscribe routes datagrams from ip to h, replacing any previous
// handler for that peer.
func (t *Transport) Subscribe(ip string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[ip] = h
}

// SubscribeAll appends a handler that sees every inbound datagram,
// before any per-peer handler runs.
func (t *Transport) SubscribeAll(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.broadcast = append(t.broadcast, h)
}

func (t *Transport) Unsubscribe(ip string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, ip)
}

// Destroy closes the socket and forgets every subscriber. The receive
// goroutine exits on the resulting read error.
func (t *Transport) Destroy() error {
	t.mu.Lock()
	t.peers = make(map[string]Handler)
	t.broadcast = nil
	conn := t.conn
	t.mu.Unlock()
	return conn.Close()
}

// Done is closed once the receive loop has exited.
func (t *Transport) Done() <-chan struct{} { return t.done }

func (t *Transport) receive() {
	defer close(t.done)
	for {
		// The largest card datagram is a 24-byte header plus a 14-sector
		// payload (7192 bytes); round up generously.
		buf := make([]byte, 16384)
		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			log.WithError(err).Debug("receive loop ended")
			return
		}
		udp, ok := addr.(*net.UDPAddr)
		if !ok {
			udp = &net.UDPAddr{}
			if host, _, err := net.SplitHostPort(addr.String()); err == nil {
				udp.IP = net.ParseIP(host)
			}
		}

		t.mu.Lock()
		all := t.broadcast
		peer := t.peers[udp.IP.String()]
		t.mu.Unlock()

		for _, h := range all {
			h(buf[:n], udp)
		}
		if peer != nil {
			peer(buf[:n], udp)
		}
	}
}

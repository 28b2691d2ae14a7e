// Copyright (c) the wifisd authors
// Licensed under the MIT license

package discovery

import (
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktctools/wifisd/internal/card"
	"github.com/ktctools/wifisd/internal/transport"
)

type packet struct {
	data []byte
	from net.Addr
}

type pipeConn struct {
	in     chan packet
	once   sync.Once
	closed chan struct{}
}

func newPipeConn() *pipeConn {
	return &pipeConn{in: make(chan packet, 16), closed: make(chan struct{})}
}

func (p *pipeConn) deliver(from string, b []byte) {
	p.in <- packet{data: b, from: &net.UDPAddr{IP: net.ParseIP(from), Port: 24387}}
}

func (p *pipeConn) ReadFrom(b []byte) (int, net.Addr, error) {
	select {
	case pkt := <-p.in:
		return copy(b, pkt.data), pkt.from, nil
	case <-p.closed:
		return 0, nil, net.ErrClosed
	}
}

func (p *pipeConn) WriteTo(b []byte, addr net.Addr) (int, error) { return len(b), nil }
func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
func (p *pipeConn) LocalAddr() net.Addr { return &net.UDPAddr{Port: 24388} }
func (p *pipeConn) SetDeadline(t time.Time) error { return nil }
func (p *pipeConn) SetReadDeadline(t time.Time) error { return nil }
func (p *pipeConn) SetWriteDeadline(t time.Time) error { return nil }

// cardInfoDatagram builds the command-1 announcement used across these
// tests: an SD card at 192.168.0.123, fw 1.2.3, 32768 blocks, AP mode,
// subversion "abc".
func cardInfoDatagram() []byte {
	b := make([]byte, 46)
	copy(b, "FC1307")
	b[6] = 2 // from card
	b[7] = 1 // card info
	copy(b[14:], []byte{0xC0, 0xA8, 0x00, 0x7B})
	copy(b[18:], []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})
	copy(b[24:], "SD")
	copy(b[26:], "Ver 1.2.3\x00\x00")
	binary.BigEndian.PutUint32(b[37:], 32768)
	b[41] = 1
	b[42] = 3
	copy(b[43:], "abc")
	return b
}

func harness(t *testing.T) (*Discovery, *pipeConn, chan *card.Card) {
	t.Helper()
	conn := newPipeConn()
	tr := transport.NewWithConn(conn)
	t.Cleanup(func() { tr.Destroy() })

	found := make(chan *card.Card, 16)
	d := New(tr, "", func(c *card.Card) { found <- c },
		WithBroadcaster(func(addr string, payload []byte) error { return nil }))
	t.Cleanup(d.Destroy)
	return d, conn, found
}

func TestDiscoverCard(t *testing.T) {
	_, conn, found := harness(t)

	conn.deliver("192.168.0.123", cardInfoDatagram())

	var c *card.Card
	select {
	case c = <-found:
	case <-time.After(2 * time.Second):
		t.Fatal("card never emitted")
	}

	inf := c.Info()
	assert.Equal(t, "192.168.0.123", inf.IP)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", inf.MAC)
	assert.Equal(t, "SD", inf.Type)
	assert.Equal(t, "1.2.3", inf.Version)
	assert.Equal(t, uint32(32768), inf.Capacity)
	assert.True(t, inf.APMode)
	assert.Equal(t, "abc", inf.Subver)
}

func TestDuplicateAnnouncementsEmitOnce(t *testing.T) {
	d, conn, found := harness(t)

	conn.deliver("192.168.0.123", cardInfoDatagram())
	conn.deliver("192.168.0.123", cardInfoDatagram())

	select {
	case <-found:
	case <-time.After(2 * time.Second):
		t.Fatal("card never emitted")
	}
	select {
	case <-found:
		t.Fatal("same (ip, mac) emitted twice")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Len(t, d.Cards(), 1)
}

func TestJunkDatagramsIgnored(t *testing.T) {
	_, conn, found := harness(t)

	conn.deliver("192.168.0.50", []byte("definitely not FC1307 traffic"))

	info := cardInfoDatagram()
	info[7] = 4 // a read response, not an announcement
	conn.deliver("192.168.0.123", info)

	select {
	case <-found:
		t.Fatal("junk emitted a card")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestProbeLoop(t *testing.T) {
	conn := newPipeConn()
	tr := transport.NewWithConn(conn)
	t.Cleanup(func() { tr.Destroy() })

	probes := make(chan string, 16)
	d := New(tr, "10.0.0.255", nil,
		WithBroadcaster(func(addr string, payload []byte) error {
			probes <- addr + ":" + string(payload)
			return nil
		}))
	t.Cleanup(d.Destroy)

	d.Start(10 * time.Millisecond)
	for i := 0; i < 2; i++ {
		select {
		case p := <-probes:
			require.Equal(t, "10.0.0.255:KTC", p)
		case <-time.After(2 * time.Second):
			t.Fatal("probe never sent")
		}
	}
	d.Stop()
}

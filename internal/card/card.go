// Copyright (c) the wifisd authors
// Licensed under the MIT license

// Package card talks the FC1307 block-read protocol to one WiFi@SDCF
// card: it numbers requests with transfer IDs, matches responses back
// to waiters, and gives up after a timeout.
package card

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ktctools/wifisd/internal/proto"
	"github.com/ktctools/wifisd/internal/transport"
)

var log = logrus.WithField("pkg", "card")

// ReadTimeout bounds one block read. There is no retry; the caller
// decides whether a timed-out read is worth reissuing.
const ReadTimeout = 5 * time.Second

// firstTID is where every card's transfer-ID counter starts. The value
// is arbitrary but matches the cards' own example host software, which
// makes captures easier to line up.
const firstTID = 93

const (
	DefaultUsername = "admin"
	DefaultPassword = "admin"
)

// TimeoutError reports a block read whose response never arrived.
// Request holds the exact datagram that went unanswered; Timeout is the
// wait that expired.
type TimeoutError struct {
	Request []byte
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("block read timed out after %v (%d byte request)", e.Timeout, len(e.Request))
}

// Card is a live handle to one card's IP. It owns the transfer-ID
// counter and the table of in-flight reads; the subscription on the
// shared Transport is released by Destroy.
type Card struct {
	ip       string
	info     Info
	tr       *transport.Transport
	send     func(ip string, payload []byte) error
	username string
	password string
	timeout  time.Duration

	mu      sync.Mutex
	tid     uint32
	pending map[uint32]chan []byte
}

type Option func(*Card)

// WithCredentials overrides the default admin/admin pair. Both fields
// are truncated to the 16 bytes the frame can carry.
func WithCredentials(username, password string) Option {
	return func(c *Card) {
		c.username, c.password = clip(username), clip(password)
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Card) { c.timeout = d }
}

// WithSender replaces the outbound datagram path. Tests use this to
// loop requests back without a network.
func WithSender(send func(ip string, payload []byte) error) Option {
	return func(c *Card) { c.send = send }
}

func clip(s string) string {
	if len(s) > 16 {
		return s[:16]
	}
	return s
}

// New connects a handle to the card at ip and subscribes it to the
// transport's stream for that peer.
func New(tr *transport.Transport, ip string, opts ...Option) *Card {
	c := &Card{
		ip:       ip,
		tr:       tr,
		send:     transport.Send,
		username: DefaultUsername,
		password: DefaultPassword,
		timeout:  ReadTimeout,
		tid:      firstTID,
		pending:  make(map[uint32]chan []byte),
	}
	for _, o := range opts {
		o(c)
	}
	tr.Subscribe(ip, c.handle)
	return c
}

// FromInfo connects a handle to a discovered card.
func FromInfo(tr *transport.Transport, inf Info, opts ...Option) *Card {
	c := New(tr, inf.IP, opts...)
	c.info = inf
	return c
}

func (c *Card) IP() string { return c.ip }

// Info returns what discovery learned about the card; zero-valued for
// handles built with New.
func (c *Card) Info() Info { return c.info }

// Destroy unsubscribes from the transport. In-flight reads still time
// out normally.
func (c *Card) Destroy() {
	c.tr.Unsubscribe(c.ip)
}

// ReadBinaryData fetches count sectors starting at lbaStart. Counts
// outside 1..proto.MaxReadSectors are unsupported by every card we have
// met, but the protocol does not forbid asking.
//
// Responses correlate by transfer ID and may arrive in any order; each
// pending ID resolves exactly once, by datagram or by timeout.
func (c *Card) ReadBinaryData(lbaStart uint32, count uint16) ([]byte, error) {
	if count < 1 || count > proto.MaxReadSectors {
		log.WithFields(logrus.Fields{"ip": c.ip, "count": count}).
			Warn("sector count outside 1..14, attempting anyway")
	}

	c.mu.Lock()
	tid := c.tid
	c.tid++
	slot := make(chan []byte, 1)
	c.pending[tid] = slot
	c.mu.Unlock()

	req := proto.ReadRequest{
		LBA:      lbaStart,
		Count:    count,
		Username: c.username,
		Password: c.password,
		TID:      tid,
	}.Marshal()

	defer func() {
		c.mu.Lock()
		delete(c.pending, tid)
		c.mu.Unlock()
	}()

	if err := c.send(c.ip, req); err != nil {
		return nil, fmt.Errorf("send read request to %s: %w", c.ip, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case data := <-slot:
		return data, nil
	case <-timer.C:
		return nil, &TimeoutError{Request: req, Timeout: c.timeout}
	}
}

// handle runs on the transport's receive goroutine.
func (c *Card) handle(b []byte, from *net.UDPAddr) {
	direction, cmd, err := proto.Header(b)
	if err != nil || direction != proto.DirFromCard || cmd != proto.CmdReadData {
		return // discovery traffic and junk alike
	}

	resp, err := proto.ParseReadResponse(b)
	if err != nil {
		log.WithError(err).WithField("ip", c.ip).Warn("malformed read response dropped")
		return
	}

	c.mu.Lock()
	slot := c.pending[resp.TID]
	c.mu.Unlock()
	if slot == nil {
		log.WithFields(logrus.Fields{"ip": c.ip, "tid": resp.TID}).
			Debug("response for unknown transfer dropped")
		return
	}

	data := make([]byte, len(resp.Data))
	copy(data, resp.Data)
	select {
	case slot <- data:
	default: // duplicate fragment after completion
	}
}

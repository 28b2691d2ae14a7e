// Copyright (c) the wifisd authors
// Licensed under the MIT license

package transport

import (
	"fmt"
	"net"

	"github.com/ktctools/wifisd/internal/proto"
)

// Send fires one datagram at a card from a transient socket. The card
// replies to the well-known local port, not to this socket, so it is
// closed as soon as the payload is out.
func Send(ip string, payload []byte) error {
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{
		IP:   net.ParseIP(ip),
		Port: proto.CardPort,
	})
	if err != nil {
		return fmt.Errorf("dial %s: %w", ip, err)
	}
	defer conn.Close()
	_, err = conn.Write(payload)
	return err
}

// Broadcast sends one datagram to the broadcast address on the card
// port, from a transient socket with SO_BROADCAST set.
func Broadcast(addr string, payload []byte) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := setBroadcast(conn); err != nil {
		return fmt.Errorf("SO_BROADCAST: %w", err)
	}

	_, err = conn.WriteToUDP(payload, &net.UDPAddr{
		IP:   net.ParseIP(addr),
		Port: proto.CardPort,
	})
	return err
}

// Copyright (c) the wifisd authors
// Licensed under the MIT license

//go:build !unix

package transport

import "net"

// The Go runtime sets SO_BROADCAST itself on Windows sockets.
func setBroadcast(conn *net.UDPConn) error { return nil }

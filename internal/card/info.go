// Copyright (c) the wifisd authors
// Licensed under the MIT license

package card

import (
	"encoding/binary"
	"fmt"
	"net"
	"regexp"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/ktctools/wifisd/internal/proto"
)

// Info is the identity a card announces in its command-1 response.
// Immutable once parsed.
type Info struct {
	IP       string
	MAC      string // "aa:bb:cc:dd:ee:ff"
	Type     string // "SD" or "CF"
	Version  string // "1.2.3", or "Unknown" if the banner is unparseable
	Capacity uint32 // blocks; wraps for cards >= 2 TiB, advisory only
	APMode   bool
	Subver   string
}

var versionRe = regexp.MustCompile(`Ver (\d+\.\d+\.\d+)`)

// ParseInfo decodes a command-1 "card info" datagram. The caller has
// already validated the header with proto.Header.
func ParseInfo(b []byte) (Info, error) {
	if len(b) < 43 {
		return Info{}, fmt.Errorf("card info: %w", proto.ErrShortPacket)
	}

	inf := Info{
		IP:       net.IPv4(b[14], b[15], b[16], b[17]).String(),
		MAC:      fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", b[18], b[19], b[20], b[21], b[22], b[23]),
		Type:     string(b[24:26]),
		Version:  "Unknown",
		Capacity: binary.BigEndian.Uint32(b[37:]),
		APMode:   b[41] == 1,
	}
	if m := versionRe.FindSubmatch(b[26:37]); m != nil {
		inf.Version = string(m[1])
	}
	if n := int(b[42]); n > 0 && 43+n <= len(b) {
		inf.Subver = string(b[43 : 43+n])
	}
	return inf, nil
}

// ID is a short stable identifier derived from (ip, mac), used as a log
// field and as a cache namespace.
func (i Info) ID() string {
	return strconv.FormatUint(xxhash.Sum64String(i.IP+"|"+i.MAC), 16)
}

func (i Info) String() string {
	mode := "station"
	if i.APMode {
		mode = "AP"
	}
	return fmt.Sprintf("%s card at %s (%s) fw %s/%s, %d blocks, %s mode",
		i.Type, i.IP, i.MAC, i.Version, i.Subver, i.Capacity, mode)
}

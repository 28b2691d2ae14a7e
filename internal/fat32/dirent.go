// Copyright (c) the wifisd authors
// Licensed under the MIT license

package fat32

import (
	"strings"
	"time"
	"unicode/utf16"
)

// DirEntry is one parsed 32-byte directory record, with any preceding
// long-file-name chain already folded into Name.
type DirEntry struct {
	Name         string
	Size         uint32
	IsDir        bool
	FirstCluster uint32
	Created      time.Time
	Modified     time.Time
}

const (
	attrLongName  = 0x0F
	attrDirectory = 0x10

	endOfDirectory = 0x00
	freeSlot       = 0xE5
	kanjiEscape    = 0x05 // first byte 0x05 stands in for a real 0xE5
)

// dirParser consumes directory clusters one at a time, carrying a
// partially assembled LFN across cluster boundaries.
type dirParser struct {
	lfn []uint16 // UTF-16 units accumulated so far, logical order
}

// feed parses 32-byte records out of one cluster. done reports that the
// 0x00 end-of-directory marker was hit; the chain walk stops there.
func (p *dirParser) feed(cluster []byte) (entries []DirEntry, done bool) {
	for off := 0; off+32 <= len(cluster); off += 32 {
		ent := cluster[off : off+32]

		switch {
		case ent[0] == endOfDirectory:
			return entries, true

		case ent[0] == freeSlot:
			continue

		case ent[11] == attrLongName:
			// LFN records are stored last-fragment-first, so each
			// successive record holds earlier characters: prepend.
			p.lfn = append(lfnFragment(ent), p.lfn...)
			continue
		}

		name := shortName(ent)
		if len(p.lfn) > 0 {
			name = string(utf16.Decode(p.lfn))
			p.lfn = nil
		}

		entries = append(entries, DirEntry{
			Name:         name,
			Size:         le32(ent[28:]),
			IsDir:        ent[11]&attrDirectory != 0,
			FirstCluster: uint32(le16(ent[20:]))<<16 | uint32(le16(ent[26:])),
			Created:      fatTime(le16(ent[16:]), le16(ent[14:])),
			Modified:     fatTime(le16(ent[24:]), le16(ent[22:])),
		})
	}
	return entries, false
}

// lfnFragment pulls the 13 UTF-16 units out of one LFN record,
// truncated at the first NUL.
func lfnFragment(ent []byte) []uint16 {
	units := make([]uint16, 0, 13)
	for _, off := range [13]int{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30} {
		u := le16(ent[off:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return units
}

func shortName(ent []byte) string {
	var raw [11]byte
	copy(raw[:], ent[:11])
	if raw[0] == kanjiEscape {
		raw[0] = freeSlot
	}
	base := strings.TrimRight(string(raw[:8]), " ")
	ext := strings.TrimRight(string(raw[8:11]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// fatTime decodes the packed date/time words. A zero month or day means
// the firmware never set the field; that decodes to the Unix epoch.
func fatTime(date, tim uint16) time.Time {
	month := int(date>>5) & 0xF
	day := int(date) & 0x1F
	if month == 0 || day == 0 {
		return time.Unix(0, 0).UTC()
	}
	return time.Date(
		1980+int(date>>9), time.Month(month), day,
		int(tim>>11), int(tim>>5)&0x3F, int(tim&0x1F)*2,
		0, time.UTC)
}

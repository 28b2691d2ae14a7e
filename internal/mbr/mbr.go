// Copyright (c) the wifisd authors
// Licensed under the MIT license

// Package mbr reads the four-entry partition table in sector 0.
package mbr

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("pkg", "mbr")

// FileSystem tags a partition by its MBR type code. The protocol stack
// only mounts FAT32; the rest exist so errors can name what was found.
type FileSystem int

const (
	Unknown FileSystem = iota
	FAT32
	NTFS // or exFAT, the type code is shared
	Linux
	Extended
)

func (f FileSystem) String() string {
	switch f {
	case FAT32:
		return "FAT32"
	case NTFS:
		return "NTFS/exFAT"
	case Linux:
		return "Linux"
	case Extended:
		return "Extended"
	}
	return "Unknown"
}

// Partition is one populated table slot.
type Partition struct {
	StartLBA uint32
	Length   uint32 // sectors
	Type     FileSystem
}

// BlockReader is the sector-read capability the card handle provides.
type BlockReader interface {
	ReadBinaryData(lbaStart uint32, count uint16) ([]byte, error)
}

var ErrPartitionOutOfRange = errors.New("partition index out of range")

const (
	tableOffset = 446
	entrySize   = 16
)

// Parse extracts the populated partitions from a copy of sector 0,
// preserving table order. A missing 0x55AA signature is logged, not
// fatal; enough card formatters omit it that refusing would strand
// working volumes.
func Parse(sector []byte) ([]Partition, error) {
	if len(sector) < 512 {
		return nil, fmt.Errorf("MBR sector is %d bytes, need 512", len(sector))
	}
	if sector[510] != 0x55 || sector[511] != 0xAA {
		log.Warn("MBR boot signature 0x55AA absent, continuing anyway")
	}

	var parts []Partition
	for i := 0; i < 4; i++ {
		ent := sector[tableOffset+i*entrySize:][:entrySize]
		code := ent[4]
		if code == 0 {
			continue // empty slot
		}
		parts = append(parts, Partition{
			StartLBA: binary.LittleEndian.Uint32(ent[8:]),
			Length:   binary.LittleEndian.Uint32(ent[12:]),
			Type:     detectFileSystem(code),
		})
	}
	return parts, nil
}

// Read fetches sector 0 through the card and parses it.
func Read(rd BlockReader) ([]Partition, error) {
	sector, err := rd.ReadBinaryData(0, 1)
	if err != nil {
		return nil, fmt.Errorf("read MBR: %w", err)
	}
	return Parse(sector)
}

// At bounds-checks an index into the partition list.
func At(parts []Partition, index int) (Partition, error) {
	if index < 0 || index >= len(parts) {
		return Partition{}, fmt.Errorf("%w: %d of %d", ErrPartitionOutOfRange, index, len(parts))
	}
	return parts[index], nil
}

func detectFileSystem(code byte) FileSystem {
	switch code {
	case 0x0B, 0x0C:
		return FAT32
	case 0x07:
		return NTFS
	case 0x83:
		return Linux
	case 0x05, 0x0F:
		return Extended
	}
	return Unknown
}

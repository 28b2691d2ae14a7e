// Copyright (c) the wifisd authors
// Licensed under the MIT license

// Package fat32 reads an MBR-partitioned FAT32 volume through the
// card's 512-byte block-read primitive: BPB interpretation, FAT chain
// walking, and directory parsing with long-file-name reassembly.
package fat32

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ktctools/wifisd/internal/mbr"
	"github.com/ktctools/wifisd/internal/proto"
)

var log = logrus.WithField("pkg", "fat32")

// BlockReader is the read capability a Card (or a cache wrapped around
// one) provides. lbaStart is absolute on the device.
type BlockReader interface {
	ReadBinaryData(lbaStart uint32, count uint16) ([]byte, error)
}

// endOfChain is the first FAT32 value marking a terminal cluster.
const endOfChain = 0x0FFFFFF8

var ErrDirectoryNotFound = errors.New("directory not found")

// UnsupportedFileSystemError reports a partition that is not FAT32.
type UnsupportedFileSystemError struct {
	Detected mbr.FileSystem
}

func (e *UnsupportedFileSystemError) Error() string {
	return fmt.Sprintf("unsupported file system %s (only FAT32 is readable)", e.Detected)
}

// Volume issues the card reads of each operation one at a time, so the
// block stream an operation assembles is in order even though the wire
// protocol itself promises nothing. It takes no lock: concurrent
// operations on one Volume may have reads in flight at the same time.
type Volume struct {
	rd    BlockReader
	part  mbr.Partition
	bpb   Bpb
	ready chan struct{} // closed once the BPB is parsed
	err   error         // valid after ready
}

// NewVolume starts reading the BPB in the background; every operation
// waits on that one-shot initialization.
func NewVolume(rd BlockReader, part mbr.Partition) (*Volume, error) {
	if part.Type != mbr.FAT32 {
		return nil, &UnsupportedFileSystemError{Detected: part.Type}
	}
	v := &Volume{rd: rd, part: part, ready: make(chan struct{})}
	go v.init()
	return v, nil
}

func (v *Volume) init() {
	defer close(v.ready)

	sector, err := v.rd.ReadBinaryData(v.part.StartLBA, 1)
	if err != nil {
		v.err = fmt.Errorf("read boot sector: %w", err)
		return
	}
	v.bpb, v.err = ParseBpb(sector)
	if v.err != nil {
		return
	}

	if t := v.bpb.fatType(); t != "FAT32" {
		log.WithField("type", t).Warn("volume does not classify as FAT32")
	}
	if v.bpb.RootEntCnt != 0 {
		log.WithField("rootEntCnt", v.bpb.RootEntCnt).Warn("nonzero root entry count on a FAT32 volume")
	}
}

func (v *Volume) awaitReady() error {
	<-v.ready
	return v.err
}

// Bpb returns the parsed parameter block, blocking until initialization
// finishes.
func (v *Volume) Bpb() (Bpb, error) {
	if err := v.awaitReady(); err != nil {
		return Bpb{}, err
	}
	return v.bpb, nil
}

// readSectors fetches count sectors at rel (relative to the partition),
// splitting into wire-sized batches and concatenating in order.
func (v *Volume) readSectors(rel uint32, count uint32) ([]byte, error) {
	buf := make([]byte, 0, count*uint32(v.bpb.SectorSize))
	for count > 0 {
		batch := uint16(proto.MaxReadSectors)
		if count < uint32(batch) {
			batch = uint16(count)
		}
		b, err := v.rd.ReadBinaryData(v.part.StartLBA+rel, batch)
		if err != nil {
			return nil, err
		}
		buf = append(buf, b...)
		rel += uint32(batch)
		count -= uint32(batch)
	}
	return buf, nil
}

func (v *Volume) readCluster(n uint32) ([]byte, error) {
	return v.readSectors(v.bpb.FirstSectorOfCluster(n), uint32(v.bpb.SectorsPerCluster))
}

// nextCluster looks up n's successor in the first FAT.
func (v *Volume) nextCluster(n uint32) (uint32, error) {
	fatOffset := n * 4
	fatSector := fatOffset / uint32(v.bpb.SectorSize)
	within := fatOffset % uint32(v.bpb.SectorSize)

	sector, err := v.readSectors(uint32(v.bpb.ReservedSectors)+fatSector, 1)
	if err != nil {
		return 0, fmt.Errorf("read FAT sector %d: %w", fatSector, err)
	}
	// top nibble reserved
	return binary.LittleEndian.Uint32(sector[within:]) & 0x0FFFFFFF, nil
}

// walkChain visits each cluster's contents from first until the chain
// terminates or visit asks to stop.
func (v *Volume) walkChain(first uint32, visit func(data []byte) (more bool, err error)) error {
	for cluster := first; cluster >= 2 && cluster < endOfChain; {
		data, err := v.readCluster(cluster)
		if err != nil {
			return err
		}
		more, err := visit(data)
		if err != nil || !more {
			return err
		}
		cluster, err = v.nextCluster(cluster)
		if err != nil {
			return err
		}
	}
	return nil
}

// FileContent reconstructs a file by walking its FAT chain, truncated
// to the directory entry's size.
func (v *Volume) FileContent(entry DirEntry) ([]byte, error) {
	if err := v.awaitReady(); err != nil {
		return nil, err
	}

	out := make([]byte, 0, entry.Size)
	remaining := entry.Size
	err := v.walkChain(entry.FirstCluster, func(data []byte) (bool, error) {
		take := remaining
		if take > uint32(len(data)) {
			take = uint32(len(data))
		}
		out = append(out, data[:take]...)
		remaining -= take
		return remaining > 0, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// listChain parses directory records across the whole cluster chain.
// LFN runs may straddle cluster boundaries, so one parser is fed every
// cluster in order.
func (v *Volume) listChain(first uint32) ([]DirEntry, error) {
	var (
		parser  dirParser
		entries []DirEntry
	)
	err := v.walkChain(first, func(data []byte) (bool, error) {
		batch, done := parser.feed(data)
		entries = append(entries, batch...)
		return !done, nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ListPath lists the directory at a /-separated path ("" or "/" is the
// root). Lookup is ASCII case-insensitive, like the on-disk format.
func (v *Volume) ListPath(path string) ([]DirEntry, error) {
	if err := v.awaitReady(); err != nil {
		return nil, err
	}

	cluster := v.bpb.RootCluster
	for _, seg := range strings.Split(strings.ToUpper(path), "/") {
		if seg == "" {
			continue
		}
		entries, err := v.listChain(cluster)
		if err != nil {
			return nil, err
		}
		next, ok := findDir(entries, seg)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, seg)
		}
		cluster = next
		if cluster < 2 {
			// ".." entries point at the root with cluster 0
			cluster = v.bpb.RootCluster
		}
	}
	return v.listChain(cluster)
}

// ListEntry lists the directory a previously parsed entry points at.
func (v *Volume) ListEntry(entry DirEntry) ([]DirEntry, error) {
	if err := v.awaitReady(); err != nil {
		return nil, err
	}
	cluster := entry.FirstCluster
	if cluster < 2 {
		cluster = v.bpb.RootCluster
	}
	return v.listChain(cluster)
}

// EqualNames compares file names the way FAT32 does: case-insensitive.
func (v *Volume) EqualNames(a, b string) bool {
	return strings.EqualFold(a, b)
}

func findDir(entries []DirEntry, name string) (cluster uint32, ok bool) {
	for _, e := range entries {
		if e.IsDir && strings.EqualFold(e.Name, name) {
			return e.FirstCluster, true
		}
	}
	return 0, false
}

func le16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func le32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

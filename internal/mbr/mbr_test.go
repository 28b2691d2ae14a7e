// Copyright (c) the wifisd authors
// Licensed under the MIT license

package mbr

import (
	"encoding/binary"
	"errors"
	"testing"
)

func sectorWith(entries ...[16]byte) []byte {
	s := make([]byte, 512)
	s[510], s[511] = 0x55, 0xAA
	for i, e := range entries {
		copy(s[tableOffset+i*entrySize:], e[:])
	}
	return s
}

func entry(code byte, start, length uint32) [16]byte {
	var e [16]byte
	e[4] = code
	binary.LittleEndian.PutUint32(e[8:], start)
	binary.LittleEndian.PutUint32(e[12:], length)
	return e
}

func TestParseSingleFAT32(t *testing.T) {
	parts, err := Parse(sectorWith(entry(0x0C, 2048, 8192)))
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 1 {
		t.Fatalf("got %d partitions", len(parts))
	}
	p := parts[0]
	if p.StartLBA != 2048 || p.Length != 8192 || p.Type != FAT32 {
		t.Errorf("partition = %+v", p)
	}
}

func TestParseAllTypes(t *testing.T) {
	parts, err := Parse(sectorWith(
		entry(0x0B, 100, 10),
		entry(0x07, 200, 20),
		[16]byte{}, // empty slot
		entry(0x83, 400, 40),
	))
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 3 {
		t.Fatalf("got %d partitions, want the 3 non-empty ones", len(parts))
	}
	want := []Partition{
		{100, 10, FAT32},
		{200, 20, NTFS},
		{400, 40, Linux},
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Errorf("partition %d = %+v, want %+v", i, parts[i], want[i])
		}
	}
}

func TestParseExtendedAndUnknown(t *testing.T) {
	parts, err := Parse(sectorWith(entry(0x0F, 1, 1), entry(0xEE, 2, 2)))
	if err != nil {
		t.Fatal(err)
	}
	if parts[0].Type != Extended || parts[1].Type != Unknown {
		t.Errorf("types = %v, %v", parts[0].Type, parts[1].Type)
	}
}

func TestParseMissingSignature(t *testing.T) {
	s := sectorWith(entry(0x0C, 2048, 8192))
	s[510], s[511] = 0, 0
	parts, err := Parse(s) // warned about, not fatal
	if err != nil || len(parts) != 1 {
		t.Fatalf("parts=%v err=%v", parts, err)
	}
}

func TestParseShortBuffer(t *testing.T) {
	if _, err := Parse(make([]byte, 100)); err == nil {
		t.Error("short sector accepted")
	}
}

func TestAtBounds(t *testing.T) {
	parts := []Partition{{1, 1, FAT32}}
	if _, err := At(parts, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := At(parts, 1); !errors.Is(err, ErrPartitionOutOfRange) {
		t.Errorf("index 1 error = %v", err)
	}
	if _, err := At(parts, -1); !errors.Is(err, ErrPartitionOutOfRange) {
		t.Errorf("index -1 error = %v", err)
	}
}

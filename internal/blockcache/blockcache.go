// Copyright (c) the wifisd authors
// Licensed under the MIT license

// Package blockcache keeps recently read sector batches in memory so
// hot metadata (the FAT above all) is not refetched over the air for
// every cluster hop.
package blockcache

import (
	"hash/maphash"
	"sync"

	"github.com/dgryski/go-tinylfu"
)

// Reader matches the card's block-read primitive.
type Reader interface {
	ReadBinaryData(lbaStart uint32, count uint16) ([]byte, error)
}

// DefaultSize is the number of cached batches; at one sector per batch
// that is 2 MiB of FAT and directory data.
const DefaultSize = 4096

type key struct {
	lba   uint32
	count uint16
}

var seed = maphash.MakeSeed()

func hash(k key) uint64 { return maphash.Comparable(seed, k) }

// Cached is a Reader that remembers. Entries are keyed by the exact
// (lba, count) pair, so overlapping reads do not share cache lines;
// the volume's fixed batching makes that a non-issue in practice.
type Cached struct {
	rd Reader

	mu  sync.Mutex
	lfu *tinylfu.T[key, []byte]
}

// Wrap puts a cache of n batches in front of rd. n <= 0 means
// DefaultSize.
func Wrap(rd Reader, n int) *Cached {
	if n <= 0 {
		n = DefaultSize
	}
	return &Cached{
		rd:  rd,
		lfu: tinylfu.New[key, []byte](n, n*10, hash),
	}
}

func (c *Cached) ReadBinaryData(lbaStart uint32, count uint16) ([]byte, error) {
	k := key{lbaStart, count}

	c.mu.Lock()
	b, ok := c.lfu.Get(k)
	c.mu.Unlock()
	if ok {
		return b, nil
	}

	b, err := c.rd.ReadBinaryData(lbaStart, count)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.lfu.Add(k, b)
	c.mu.Unlock()
	return b, nil
}

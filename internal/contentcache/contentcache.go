// Copyright (c) the wifisd authors
// Licensed under the MIT license

// Package contentcache persists downloaded file bodies between runs.
// A card on battery is slow and lossy; re-pulling an unchanged photo is
// wasted airtime, and (size, mtime) is as good a change detector as the
// card offers.
package contentcache

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/pebble/v2"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("pkg", "contentcache")

// Key identifies one file version on one card.
type Key struct {
	Namespace string // card ID
	Path      string // path within the volume
	Size      uint32
	ModTime   time.Time
}

// bytes renders the 8-byte store key: an xxhash over every field.
func (k Key) bytes() []byte {
	var h xxhash.Digest
	h.WriteString(k.Namespace)
	h.WriteString("\x00")
	h.WriteString(k.Path)
	h.WriteString("\x00")
	binary.Write(&h, binary.BigEndian, k.Size)
	binary.Write(&h, binary.BigEndian, k.ModTime.Unix())

	var out [8]byte
	binary.BigEndian.PutUint64(out[:], h.Sum64())
	return out[:]
}

// Cache is a pebble store of file bodies. Safe for concurrent use.
type Cache struct {
	db *pebble.DB
}

// Open creates or reopens the store under dir.
func Open(dir string) (*Cache, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

// Get returns the cached body, or ok=false on a miss. Store errors
// count as misses: the card is the source of truth, the cache is not
// worth failing a download over.
func (c *Cache) Get(k Key) (data []byte, ok bool) {
	val, closer, err := c.db.Get(k.bytes())
	if err != nil {
		if !errors.Is(err, pebble.ErrNotFound) {
			log.WithError(err).Warn("cache read failed, treating as miss")
		}
		return nil, false
	}
	defer closer.Close()
	data = make([]byte, len(val))
	copy(data, val)
	return data, true
}

// Put stores a body. A failed write is logged and forgotten.
func (c *Cache) Put(k Key, data []byte) {
	if err := c.db.Set(k.bytes(), data, pebble.NoSync); err != nil {
		log.WithError(err).Warn("cache write failed")
	}
}

// Copyright (c) the wifisd authors
// Licensed under the MIT license

package contentcache

import (
	"bytes"
	"testing"
	"time"
)

func open(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRoundTrip(t *testing.T) {
	c := open(t)

	k := Key{
		Namespace: "card1",
		Path:      "/DCIM/IMG_0001.JPG",
		Size:      3,
		ModTime:   time.Date(2021, 5, 5, 12, 0, 0, 0, time.UTC),
	}
	c.Put(k, []byte("jpg"))

	data, ok := c.Get(k)
	if !ok {
		t.Fatal("miss after put")
	}
	if !bytes.Equal(data, []byte("jpg")) {
		t.Errorf("data = %q", data)
	}
}

func TestChangedFileMisses(t *testing.T) {
	c := open(t)

	k := Key{Namespace: "card1", Path: "/A.TXT", Size: 10, ModTime: time.Unix(1000, 0)}
	c.Put(k, []byte("0123456789"))

	grown := k
	grown.Size = 11
	if _, ok := c.Get(grown); ok {
		t.Error("hit despite size change")
	}

	touched := k
	touched.ModTime = time.Unix(2000, 0)
	if _, ok := c.Get(touched); ok {
		t.Error("hit despite mtime change")
	}

	other := k
	other.Namespace = "card2"
	if _, ok := c.Get(other); ok {
		t.Error("hit across cards")
	}
}

func TestMissOnEmpty(t *testing.T) {
	c := open(t)
	if _, ok := c.Get(Key{Namespace: "x", Path: "/y"}); ok {
		t.Error("hit on empty store")
	}
}

// Copyright (c) the wifisd authors
// Licensed under the MIT license

// Package cardfs is the lazy tree view over a mounted volume: Directory
// and File handles with entry caching, glob matching and downloads.
package cardfs

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/ktctools/wifisd/internal/contentcache"
	"github.com/ktctools/wifisd/internal/fat32"
	"github.com/ktctools/wifisd/internal/mbr"
)

var (
	ErrFileNotFound = errors.New("file not found")

	// ErrDirectoryNotFound mirrors the volume's sentinel so callers
	// need only import this package.
	ErrDirectoryNotFound = fat32.ErrDirectoryNotFound
)

// Adapter is the capability set a mounted file system exposes. FAT32 is
// the only implementation today; exFAT would slot in here.
type Adapter interface {
	ListPath(path string) ([]fat32.DirEntry, error)
	ListEntry(entry fat32.DirEntry) ([]fat32.DirEntry, error)
	FileContent(entry fat32.DirEntry) ([]byte, error)
	EqualNames(a, b string) bool
}

// Sink lands a downloaded buffer on the host. The default writes
// through os.WriteFile; tests and embedders substitute their own.
type Sink func(localPath string, data []byte) (int, error)

func osSink(localPath string, data []byte) (int, error) {
	if dir := filepath.Dir(localPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return 0, err
	}
	return len(data), nil
}

// Tree ties a mounted Adapter to its download plumbing.
type Tree struct {
	vol   Adapter
	sink  Sink
	cache *contentcache.Cache // optional
	ns    string              // cache namespace, normally the card ID
}

type Option func(*Tree)

// WithSink replaces the on-host write path.
func WithSink(s Sink) Option { return func(t *Tree) { t.sink = s } }

// WithContentCache consults cache before touching the radio on
// downloads, under the given namespace.
func WithContentCache(c *contentcache.Cache, namespace string) Option {
	return func(t *Tree) { t.cache, t.ns = c, namespace }
}

// NewTree wraps an already-built adapter.
func NewTree(vol Adapter, opts ...Option) *Tree {
	t := &Tree{vol: vol, sink: osSink}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Mount reads the card's partition table and opens the indexed
// partition as FAT32. Anything else is refused with
// *fat32.UnsupportedFileSystemError.
func Mount(rd fat32.BlockReader, index int, opts ...Option) (*Tree, error) {
	parts, err := mbr.Read(rd)
	if err != nil {
		return nil, err
	}
	part, err := mbr.At(parts, index)
	if err != nil {
		return nil, err
	}
	vol, err := fat32.NewVolume(rd, part)
	if err != nil {
		return nil, err
	}
	return NewTree(vol, opts...), nil
}

// Root returns the volume's root directory handle.
func (t *Tree) Root() *Directory {
	return &Directory{tree: t, path: "/", root: true}
}

// Node is either a *Directory or a *File.
type Node interface {
	Name() string
	IsDir() bool
	Entry() fat32.DirEntry
}

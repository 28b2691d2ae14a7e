// Copyright (c) the wifisd authors
// Licensed under the MIT license

package cardfs

import (
	"time"

	"github.com/ktctools/wifisd/internal/contentcache"
	"github.com/ktctools/wifisd/internal/fat32"
)

// File is a handle on one file's directory entry. Content is fetched on
// demand, never cached on the handle.
type File struct {
	tree  *Tree
	path  string
	entry fat32.DirEntry
}

func (f *File) Name() string { return f.entry.Name }
func (f *File) IsDir() bool { return false }
func (f *File) Entry() fat32.DirEntry { return f.entry }
func (f *File) Path() string { return f.path }
func (f *File) Size() uint32 { return f.entry.Size }
func (f *File) ModTime() time.Time { return f.entry.Modified }
func (f *File) CreatedTime() time.Time { return f.entry.Created }

func (f *File) cacheKey() contentcache.Key {
	return contentcache.Key{
		Namespace: f.tree.ns,
		Path:      f.path,
		Size:      f.entry.Size,
		ModTime:   f.entry.Modified,
	}
}

// ReadContent pulls the whole file over the air (or out of the content
// cache, when one is attached and the entry's size and mtime still
// match).
func (f *File) ReadContent() ([]byte, error) {
	if f.tree.cache != nil {
		if data, ok := f.tree.cache.Get(f.cacheKey()); ok {
			return data, nil
		}
	}

	data, err := f.tree.vol.FileContent(f.entry)
	if err != nil {
		return nil, err
	}
	if f.tree.cache != nil {
		f.tree.cache.Put(f.cacheKey(), data)
	}
	return data, nil
}

// Download fetches the content and hands it to the tree's sink.
// Returns the number of bytes written.
func (f *File) Download(localPath string) (int, error) {
	data, err := f.ReadContent()
	if err != nil {
		return 0, err
	}
	return f.tree.sink(localPath, data)
}

// Copyright (c) the wifisd authors
// Licensed under the MIT license

package cardfs

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ktctools/wifisd/internal/fat32"
)

// Directory is a lazy handle on one directory. The child list is cached
// for the life of the handle; List(true) refetches.
type Directory struct {
	tree  *Tree
	path  string // volume path, "/" separated
	entry fat32.DirEntry
	root  bool

	children []Node // nil until first List
}

func (d *Directory) Name() string {
	if d.root {
		return "/"
	}
	return d.entry.Name
}

func (d *Directory) IsDir() bool { return true }
func (d *Directory) Entry() fat32.DirEntry { return d.entry }
func (d *Directory) Path() string { return d.path }

// List returns the children, from cache unless refresh is set.
func (d *Directory) List(refresh bool) ([]Node, error) {
	if d.children != nil && !refresh {
		return d.children, nil
	}

	var (
		entries []fat32.DirEntry
		err     error
	)
	if d.root {
		entries, err = d.tree.vol.ListPath("")
	} else {
		entries, err = d.tree.vol.ListEntry(d.entry)
	}
	if err != nil {
		return nil, err
	}

	children := make([]Node, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		childPath := path.Join(d.path, e.Name)
		if e.IsDir {
			children = append(children, &Directory{tree: d.tree, path: childPath, entry: e})
		} else {
			children = append(children, &File{tree: d.tree, path: childPath, entry: e})
		}
	}
	d.children = children
	return children, nil
}

// GetFile finds a child file by name, case-insensitively.
func (d *Directory) GetFile(name string) (*File, error) {
	children, err := d.List(false)
	if err != nil {
		return nil, err
	}
	for _, n := range children {
		if f, ok := n.(*File); ok && d.tree.vol.EqualNames(f.Name(), name) {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
}

// GetDirectory finds a child directory by name, case-insensitively.
func (d *Directory) GetDirectory(name string) (*Directory, error) {
	children, err := d.List(false)
	if err != nil {
		return nil, err
	}
	for _, n := range children {
		if sub, ok := n.(*Directory); ok && d.tree.vol.EqualNames(sub.Name(), name) {
			return sub, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, name)
}

// Glob returns the children whose names match a doublestar pattern.
// Matching is against bare names and ignores case, like the rest of the
// volume's name lookups, so `*.jpg` and `IMG_*` behave as a camera user
// expects.
func (d *Directory) Glob(pattern string) ([]Node, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("bad glob pattern %q", pattern)
	}
	children, err := d.List(false)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(pattern)
	var out []Node
	for _, n := range children {
		if doublestar.MatchUnvalidated(lower, strings.ToLower(n.Name())) {
			out = append(out, n)
		}
	}
	return out, nil
}

// Copyright (c) the wifisd authors
// Licensed under the MIT license

package main

import (
	"fmt"
	"os"
	"os/signal"
	"path"
	"time"

	"github.com/spf13/cobra"

	"github.com/ktctools/wifisd/internal/blockcache"
	"github.com/ktctools/wifisd/internal/card"
	"github.com/ktctools/wifisd/internal/cardfs"
	"github.com/ktctools/wifisd/internal/contentcache"
	"github.com/ktctools/wifisd/internal/discovery"
	"github.com/ktctools/wifisd/internal/mbr"
	"github.com/ktctools/wifisd/internal/transport"
	"github.com/ktctools/wifisd/internal/watcher"
)

func newDiscoverCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "broadcast probes and print the cards that answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := transport.New()
			if err != nil {
				return err
			}
			defer tr.Destroy()

			found := make(chan *card.Card, 16)
			d := discovery.New(tr, cfg.BroadcastAddr, func(c *card.Card) { found <- c })
			defer d.Destroy()
			d.Start(msDuration(cfg.BroadcastIntervalMS, discovery.DefaultInterval))

			deadline := time.After(wait)
			n := 0
			for {
				select {
				case c := <-found:
					n++
					fmt.Println(c.Info())
				case <-deadline:
					if n == 0 {
						fmt.Println("no cards answered")
					}
					return nil
				}
			}
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 15*time.Second, "how long to listen")
	return cmd
}

// connect builds the card handle and reader stack for one IP.
func connect(ip string) (*transport.Transport, *card.Card, *blockcache.Cached, error) {
	tr, err := transport.New()
	if err != nil {
		return nil, nil, nil, err
	}
	c := card.New(tr, ip,
		card.WithCredentials(cfg.Username, cfg.Password),
		card.WithTimeout(msDuration(cfg.ReadTimeoutMS, card.ReadTimeout)))
	return tr, c, blockcache.Wrap(c, 0), nil
}

func mountTree(ip string, partition int) (*cardfs.Tree, func(), error) {
	tr, c, rd, err := connect(ip)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { c.Destroy(); tr.Destroy() }

	var opts []cardfs.Option
	if cfg.CacheDir != "" {
		cc, err := contentcache.Open(cfg.CacheDir)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		prev := cleanup
		cleanup = func() { cc.Close(); prev() }
		opts = append(opts, cardfs.WithContentCache(cc, card.Info{IP: ip}.ID()))
	}

	tree, err := cardfs.Mount(rd, partition, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return tree, cleanup, nil
}

func newLsCmd() *cobra.Command {
	var (
		partition  int
		partitions bool
	)
	cmd := &cobra.Command{
		Use:   "ls <card-ip> [path]",
		Short: "list a directory on the card",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if partitions {
				tr, _, rd, err := connect(args[0])
				if err != nil {
					return err
				}
				defer tr.Destroy()
				parts, err := mbr.Read(rd)
				if err != nil {
					return err
				}
				for i, p := range parts {
					fmt.Printf("%d: %-10s start %d, %d sectors\n", i, p.Type, p.StartLBA, p.Length)
				}
				return nil
			}

			tree, cleanup, err := mountTree(args[0], partition)
			if err != nil {
				return err
			}
			defer cleanup()

			dir := tree.Root()
			if len(args) == 2 {
				for _, seg := range splitPath(args[1]) {
					if dir, err = dir.GetDirectory(seg); err != nil {
						return err
					}
				}
			}
			children, err := dir.List(false)
			if err != nil {
				return err
			}
			for _, n := range children {
				if n.IsDir() {
					fmt.Printf("%12s  %s  %s/\n", "<dir>", n.Entry().Modified.Format(time.DateTime), n.Name())
				} else {
					fmt.Printf("%12d  %s  %s\n", n.Entry().Size, n.Entry().Modified.Format(time.DateTime), n.Name())
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&partition, "partition", "p", 0, "partition index")
	cmd.Flags().BoolVar(&partitions, "partitions", false, "list the partition table instead")
	return cmd
}

func newGetCmd() *cobra.Command {
	var partition int
	cmd := &cobra.Command{
		Use:   "get <card-ip> <remote-path> [local-path]",
		Short: "download one file from the card",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, cleanup, err := mountTree(args[0], partition)
			if err != nil {
				return err
			}
			defer cleanup()

			segs := splitPath(args[1])
			if len(segs) == 0 {
				return fmt.Errorf("empty remote path")
			}
			dir := tree.Root()
			for _, seg := range segs[:len(segs)-1] {
				if dir, err = dir.GetDirectory(seg); err != nil {
					return err
				}
			}
			f, err := dir.GetFile(segs[len(segs)-1])
			if err != nil {
				return err
			}

			local := f.Name()
			if len(args) == 3 {
				local = args[2]
			}
			n, err := f.Download(local)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d bytes\n", local, n)
			return nil
		},
	}
	cmd.Flags().IntVarP(&partition, "partition", "p", 0, "partition index")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var (
		partition int
		interval  time.Duration
		patterns  []string
	)
	cmd := &cobra.Command{
		Use:   "watch <card-ip> [path]",
		Short: "poll a directory and report new, modified and removed files",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, cleanup, err := mountTree(args[0], partition)
			if err != nil {
				return err
			}
			defer cleanup()

			dir := tree.Root()
			if len(args) == 2 {
				for _, seg := range splitPath(args[1]) {
					if dir, err = dir.GetDirectory(seg); err != nil {
						return err
					}
				}
			}

			pats := patterns
			if len(pats) == 0 {
				pats = cfg.WatchPatterns
			}
			w := watcher.New(dir, watcher.Callbacks{
				OnNewFile: func(f *cardfs.File) {
					fmt.Printf("new       %s (%d bytes)\n", f.Name(), f.Size())
				},
				OnFileModified: func(f *cardfs.File) {
					fmt.Printf("modified  %s (%d bytes)\n", f.Name(), f.Size())
				},
				OnFileRemoved: func(name string) {
					fmt.Printf("removed   %s\n", name)
				},
			}, watcher.WithPatterns(pats...))
			defer w.Destroy()

			if interval == 0 {
				interval = msDuration(cfg.WatchIntervalMS, watcher.DefaultInterval)
			}
			if err := w.Start(interval); err != nil {
				return err
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt)
			<-sig
			return nil
		},
	}
	cmd.Flags().IntVarP(&partition, "partition", "p", 0, "partition index")
	cmd.Flags().DurationVar(&interval, "interval", 0, "polling interval")
	cmd.Flags().StringArrayVar(&patterns, "pattern", nil, "only watch files matching this glob (repeatable)")
	return cmd
}

func splitPath(p string) []string {
	var out []string
	for _, seg := range pathSplitAll(path.Clean("/" + p)) {
		if seg != "" && seg != "/" {
			out = append(out, seg)
		}
	}
	return out
}

func pathSplitAll(p string) []string {
	var segs []string
	for p != "/" && p != "." && p != "" {
		dir, file := path.Split(p)
		segs = append([]string{file}, segs...)
		p = path.Clean(dir)
	}
	return segs
}

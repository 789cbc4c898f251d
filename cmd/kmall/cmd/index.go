/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ssargent/kmall/pkg/codec"
	"github.com/ssargent/kmall/pkg/index"
	"github.com/ssargent/kmall/pkg/storage"
	"github.com/ssargent/kmall/pkg/store"
)

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index FILE...",
	Short: "Index KMALL files and report their contents",
	Long: `Index one or more KMALL files concurrently and print, per file, the
number of datagrams of each kind, the distinct ping counters and the bytes
that had to be skipped to resynchronise on damaged regions.

Examples:
  kmall index 0001_20231114_120000.kmall
  kmall index --cache --workers 8 survey/*.kmall
  kmall index --entries damaged.kmall`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := appFrom(cmd)
		useCache, _ := cmd.Flags().GetBool("cache")
		entries, _ := cmd.Flags().GetBool("entries")
		workers, _ := cmd.Flags().GetInt("workers")
		if !cmd.Flags().Changed("workers") {
			workers = a.config.Reader.Workers
		}

		var cache store.IndexCache
		if useCache || a.config.Reader.IndexCache {
			c, err := storage.Open(a.config.Reader.CacheDir, a.metrics)
			if err != nil {
				return err
			}
			defer c.Close()
			cache = c
		}

		results := make([]*index.Table, len(args))
		failures := make([]error, len(args))
		g, ctx := errgroup.WithContext(cmd.Context())
		if workers > 0 {
			g.SetLimit(workers)
		}
		for i, path := range args {
			i, path := i, path
			g.Go(func() error {
				config, log := a.readerConfig(path)
				config.Cache = cache
				r, err := store.OpenFile(config)
				if err != nil {
					failures[i] = err
					return nil
				}
				defer r.Close()
				if err := r.Index(ctx); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					failures[i] = err
					return nil
				}
				log.LogIndex(r.Table())
				a.metrics.RecordIndex(r.Table())
				results[i] = r.Table()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		failed := 0
		for i, path := range args {
			if failures[i] != nil {
				failed++
				fmt.Fprintf(out, "%s: %v\n", path, failures[i])
				continue
			}
			printTable(out, path, results[i], entries)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files could not be indexed", failed, len(args))
		}
		return nil
	},
}

func printTable(out io.Writer, path string, t *index.Table, entries bool) {
	report := t.Report()
	fmt.Fprintf(out, "%s: %d records, %d ping counters, %d bytes skipped in %d runs, %d corrupt headers\n",
		path, t.Len(), t.Pings().GetCardinality(), report.SkippedBytes, report.ResyncEvents, report.CorruptHeaders)

	stats := t.Stats()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, kind := range codec.Kinds() {
		if n := stats[kind]; n > 0 {
			fmt.Fprintf(tw, "  %s\t%d\n", kind, n)
		}
	}
	if n := stats[codec.KindUnknown]; n > 0 {
		fmt.Fprintf(tw, "  %s\t%d\n", codec.KindUnknown, n)
	}
	tw.Flush()

	if !entries {
		return
	}
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  OFFSET\tKIND\tSIZE\tTIME\tPING\tFAN")
	for _, e := range t.Entries() {
		ping := "-"
		if e.Kind.IsPingFragment() {
			ping = fmt.Sprintf("%d\t%d/%d", e.PingCounter, e.FanIndex, e.FansPerPing)
		} else {
			ping += "\t-"
		}
		fmt.Fprintf(tw, "  %d\t%s\t%d\t%.6f\t%s\n", e.Offset, e.Kind, e.Size(), e.Time, ping)
	}
	tw.Flush()
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().Bool("cache", false, "Load and save index tables in the on-disk cache")
	indexCmd.Flags().Bool("entries", false, "Print every index entry")
	indexCmd.Flags().IntP("workers", "w", 4, "Files indexed concurrently")
}

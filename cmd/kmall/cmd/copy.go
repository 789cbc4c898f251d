/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ssargent/kmall/pkg/codec"
	"github.com/ssargent/kmall/pkg/store"
)

// copyCmd represents the copy command
var copyCmd = &cobra.Command{
	Use:   "copy IN OUT",
	Short: "Rewrite a KMALL file in time order",
	Long: `Read a KMALL file and write its logical records to a new file in time
order. Damaged datagrams are dropped, pings are written fragment by
fragment and the output starts with a single XMB marker that replaces
any marker of the input.

Examples:
  kmall copy raw.kmall clean.kmall
  kmall copy --byte-order big raw.kmall clean.kmall`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := appFrom(cmd)
		in, outPath := args[0], args[1]

		config, log := a.readerConfig(in)
		r, err := store.OpenFile(config)
		if err != nil {
			return err
		}
		defer r.Close()
		if err := r.Index(cmd.Context()); err != nil {
			return err
		}
		stats := r.Table().Stats()

		w, err := store.CreateFile(store.WriterConfig{
			FilePath:        outPath,
			Order:           a.order,
			FsyncInterval:   a.config.Writer.FsyncInterval,
			BufferSize:      a.config.Writer.BufferSize,
			Extensions:      stats[codec.KindXMT] > 0 || stats[codec.KindXMS] > 0,
			WaterColumn:     stats[codec.KindMWC] > 0,
			SoftwareVersion: "kmall copy",
		})
		if err != nil {
			return err
		}

		for {
			lr, err := r.Next(cmd.Context())
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				w.Close()
				return err
			}
			if lr.Kind == codec.KindXMB {
				continue
			}
			if _, err := w.Write(lr); err != nil {
				w.Close()
				return err
			}
		}
		if err := w.Close(); err != nil {
			return err
		}

		rs := r.Stats()
		a.metrics.RecordReader(rs)
		a.metrics.RecordWriter(w.Written(), w.Size())
		log.Info("copied", "out", outPath, "pings", rs.Pings, "dropped", rs.Dropped, "bytes", w.Size())
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s: %d pings, %d bytes written, %d records dropped\n",
			in, outPath, rs.Pings, w.Size(), rs.Dropped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(copyCmd)
}

/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ssargent/kmall/pkg/store"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list FILE",
	Short: "List the logical records of a KMALL file",
	Long: `List the logical records of a KMALL file in time order, one line each.
Installation records come first and multi-datagram pings are printed once,
with their fan and sounding counts.

Examples:
  kmall list 0001_20231114_120000.kmall
  kmall list --limit 20 --json 0001_20231114_120000.kmall`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := appFrom(cmd)
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		config, log := a.readerConfig(args[0])
		r, err := store.OpenFile(config)
		if err != nil {
			return err
		}
		defer r.Close()

		out := cmd.OutOrStdout()
		for n := 0; limit <= 0 || n < limit; n++ {
			lr, err := r.Next(cmd.Context())
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			if lr.Ping != nil {
				log.LogPing(lr.Ping)
			}
			s := store.Summarize(lr)
			if asJSON {
				if err := writeJSON(out, s); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintln(out, s)
		}

		stats := r.Stats()
		a.metrics.RecordReader(stats)
		if r.Pending() {
			log.Warn("incomplete ping at end of file")
		}
		log.Info("listed", "pings", stats.Pings, "dropped", stats.Dropped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().IntP("limit", "n", 0, "Stop after this many records (0 lists all)")
	listCmd.Flags().Bool("json", false, "Print one JSON object per record")
}

/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ssargent/kmall/pkg/codec"
	"github.com/ssargent/kmall/pkg/store"
)

// commentCmd represents the comment command
var commentCmd = &cobra.Command{
	Use:   "comment OUT TEXT...",
	Short: "Write a KMALL file of comment records",
	Long: `Write a new KMALL file holding an XMB marker followed by one XMC
comment record per argument, stamped with the current time.

Examples:
  kmall comment notes.kmall "line 12 start" "speed reduced for turn"`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := appFrom(cmd)
		echoSounder, _ := cmd.Flags().GetUint16("echosounder")

		w, err := store.CreateFile(store.WriterConfig{
			FilePath:        args[0],
			Order:           a.order,
			FsyncInterval:   a.config.Writer.FsyncInterval,
			BufferSize:      a.config.Writer.BufferSize,
			Extensions:      a.config.Writer.Extensions,
			WaterColumn:     a.config.Writer.WaterColumn,
			SoftwareVersion: "kmall comment",
		})
		if err != nil {
			return err
		}

		for _, text := range args[1:] {
			now := time.Now()
			xmc := &codec.XMC{
				Header: codec.Header{
					EchoSounderID: echoSounder,
					TimeSec:       uint32(now.Unix()),
					TimeNanosec:   uint32(now.Nanosecond()),
				},
				Comment: text,
			}
			if _, err := w.Write(&store.LogicalRecord{Kind: codec.KindXMC, Record: xmc}); err != nil {
				w.Close()
				return err
			}
		}
		if err := w.Close(); err != nil {
			return err
		}

		a.metrics.RecordWriter(w.Written(), w.Size())
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d comments, %d bytes\n", args[0], len(args)-1, w.Size())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commentCmd)
	commentCmd.Flags().Uint16("echosounder", 0, "Echo sounder model stamped into the headers")
}

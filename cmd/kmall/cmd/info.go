/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ssargent/kmall/pkg/codec"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Describe the KMALL format",
	Long: `Print the capability metadata of the KMALL format: its identifier,
array limits and the datagram kinds the toolkit understands.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		info := codec.DescribeFormat()
		out := cmd.OutOrStdout()
		if asJSON {
			return writeJSON(out, info)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "Format\t%s (%d)\n", info.Name, info.ID)
		fmt.Fprintf(tw, "System\t%s\n", info.System)
		fmt.Fprintf(tw, "Description\t%s\n", info.Description)
		fmt.Fprintf(tw, "Max beams\t%d\n", info.MaxBeamsBath)
		fmt.Fprintf(tw, "Max pixels\t%d\n", info.MaxPixels)
		fmt.Fprintf(tw, "Max extra detections\t%d\n", info.MaxExtraDetections)
		fmt.Fprintf(tw, "Max tx pulses\t%d\n", info.MaxTxPulses)
		fmt.Fprintf(tw, "Max fans\t%d\n", info.MaxFans)
		fmt.Fprintf(tw, "Kinds\t")
		for i, k := range codec.Kinds() {
			if i > 0 {
				fmt.Fprint(tw, " ")
			}
			fmt.Fprint(tw, k)
		}
		fmt.Fprintln(tw)
		return tw.Flush()
	},
}

func writeJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().Bool("json", false, "Print as JSON")
}

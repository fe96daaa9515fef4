package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wippyai/seg16/atom"
)

type hashResult struct {
	Text    string `json:"text"`
	Raw     uint16 `json:"raw"`
	Bucket  uint16 `json:"bucket"`
	Buckets uint16 `json:"buckets"`
}

func newHashCmd() *cobra.Command {
	var buckets uint16

	cmd := &cobra.Command{
		Use:   "hash <text>...",
		Short: "Show the hash and bucket of atom names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if buckets == 0 {
				return fmt.Errorf("--buckets must be positive")
			}
			results := make([]hashResult, 0, len(args))
			for _, text := range args {
				results = append(results, hashResult{
					Text:    text,
					Raw:     atom.RawHash(text),
					Bucket:  atom.Hash(text, buckets),
					Buckets: buckets,
				})
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, results)
			}
			for _, r := range results {
				fmt.Fprintf(out, "%-24q raw=0x%04x bucket=%d/%d\n", r.Text, r.Raw, r.Bucket, r.Buckets)
			}
			return nil
		},
	}

	cmd.Flags().Uint16VarP(&buckets, "buckets", "b", atom.DefaultBuckets, "Number of hash buckets")
	return cmd
}

func init() {
	rootCmd.AddCommand(newHashCmd())
}

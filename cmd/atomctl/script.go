package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newScriptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "script [file|-]",
		Short: "Run an atom script against a fresh kernel",
		Long: `Run an atom script, one command per line. Lines starting with ';' are comments.

Commands:
  add|find|gadd|gfind <text>     intern or look up text (local or global table)
  delete|gdelete <atom>          release one reference
  name|gname <atom>              read the name of an atom
  init [buckets]                 create the local table of the current DS
  push|pop <bytes>               move the 16-bit stack pointer
  dump [global]                  list the atoms of a table
  frame                          show the current 16-bit frame
  call MODULE.ordinal [args]     call an entry point; "text" args are staged
  ds [new <size> | <selector>]   show or switch the current data segment
  ds free <selector>             release a data segment and its atom table`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			steps, runErr := s.Run(in)
			out := cmd.OutOrStdout()
			if jsonOut {
				if err := printJSON(out, steps); err != nil {
					return err
				}
				return runErr
			}
			for _, st := range steps {
				printStep(out, st)
			}
			return runErr
		},
	}
}

func printStep(w io.Writer, st step) {
	fmt.Fprintf(w, "%-32s -> %s\n", st.Command, st.Result)
	for _, e := range st.Entries {
		fmt.Fprintf(w, "  %s  bucket=%-3d refs=%-3d handle=0x%04x %q\n",
			e.Atom, e.Bucket, e.RefCount, uint16(e.Handle), e.Text)
	}
}

func init() {
	rootCmd.AddCommand(newScriptCmd())
}

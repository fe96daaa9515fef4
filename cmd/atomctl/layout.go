package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wippyai/seg16/atom"
	"github.com/wippyai/seg16/localheap"
	"github.com/wippyai/seg16/stack16"
)

type field struct {
	Name   string `json:"name"`
	Offset int    `json:"offset"`
}

type structLayout struct {
	Name   string  `json:"name"`
	Size   int     `json:"size"`
	Fields []field `json:"fields"`
}

func layouts() []structLayout {
	return []structLayout{
		{Name: "frame32", Size: stack16.Frame32Size, Fields: []field{
			{"frame16", stack16.Frame32Frame16},
			{"edi", stack16.Frame32EDI},
			{"esi", stack16.Frame32ESI},
			{"edx", stack16.Frame32EDX},
			{"ecx", stack16.Frame32ECX},
			{"ebx", stack16.Frame32EBX},
			{"restore_addr", stack16.Frame32RestoreAddr},
			{"code_selector", stack16.Frame32CodeSelector},
			{"ebp", stack16.Frame32EBP},
			{"ret_addr", stack16.Frame32RetAddr},
			{"args", stack16.Frame32Args},
		}},
		{Name: "frame16", Size: stack16.Frame16Size, Fields: []field{
			{"frame32", stack16.Frame16Frame32},
			{"ebp", stack16.Frame16EBP},
			{"entry_ip", stack16.Frame16EntryIP},
			{"ds", stack16.Frame16DS},
			{"entry_cs", stack16.Frame16EntryCS},
			{"es", stack16.Frame16ES},
			{"entry_point", stack16.Frame16EntryPoint},
			{"bp", stack16.Frame16BP},
			{"ip", stack16.Frame16IP},
			{"cs", stack16.Frame16CS},
		}},
		{Name: "atom_table", Size: atom.TableBucketsOffset, Fields: []field{
			{"size", atom.TableSizeOffset},
			{"buckets", atom.TableBucketsOffset},
		}},
		{Name: "atom_entry", Size: atom.EntryTextOffset, Fields: []field{
			{"next", atom.EntryNextOffset},
			{"refcount", atom.EntryRefOffset},
			{"length", atom.EntryLenOffset},
			{"text", atom.EntryTextOffset},
		}},
		{Name: "instance_data", Size: localheap.InstanceDataSize, Fields: []field{
			{"old_ss_sp", localheap.OffOldSSSP},
			{"heap", localheap.OffHeap},
			{"atom_table", localheap.OffAtomTable},
			{"stack_top", localheap.OffStackTop},
			{"stack_min", localheap.OffStackMin},
			{"stack_bottom", localheap.OffStackBottom},
		}},
	}
}

func newLayoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layout",
		Short: "Show the byte layout of frames and atom structures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			all := layouts()
			if jsonOut {
				return printJSON(out, all)
			}
			for _, l := range all {
				fmt.Fprintf(out, "%s (0x%02x bytes)\n", l.Name, l.Size)
				for _, f := range l.Fields {
					fmt.Fprintf(out, "  +0x%02x  %s\n", f.Offset, f.Name)
				}
			}
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(newLayoutCmd())
}

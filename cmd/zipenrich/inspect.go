package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"zipenrich/internal/columnar"
)

// NewInspectCommand returns the command that describes a parquet checkpoint
func NewInspectCommand(_ io.Reader, stdout, _ io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect file.parquet",
		Short: "print the schema and row count of a parquet checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := columnar.Inspect(args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(stdout, "file:       %s\n", info.Path)
			fmt.Fprintf(stdout, "rows:       %d\n", info.Rows)
			fmt.Fprintf(stdout, "row groups: %d\n", info.RowGroups)
			fmt.Fprintf(stdout, "modified:   %s\n", info.ModifiedTime.UTC().Format("2006-01-02T15:04:05Z"))

			tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "COLUMN\tTYPE\tNULLABLE")
			for _, f := range info.Schema.Fields() {
				fmt.Fprintf(tw, "%s\t%s\t%t\n", f.Name, f.Type, f.Nullable)
			}
			return tw.Flush()
		},
	}
}

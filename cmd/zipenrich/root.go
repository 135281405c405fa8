package main

import (
	"io"

	"github.com/spf13/cobra"

	"zipenrich/pkg/contracts"
)

// NewRootCommand creates the top level command with every subcommand
// attached.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "zipenrich",
		Short: "zipenrich - postal code imputation and demographic enrichment",
		Long: `zipenrich loads a table of geo-tagged records, cleans it, fills in missing
postal codes by reverse geocoding, derives region labels from postal codes and
joins demographic attributes onto every record.

` + contracts.GetFullVersionString() + "\n",
		Version:      contracts.Version,
		SilenceUsage: true,
	}
	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)

	rc.AddCommand(
		NewRunCommand(stdin, stdout, stderr),
		NewZipDBCommand(stdin, stdout, stderr),
		NewInspectCommand(stdin, stdout, stderr),
	)
	return rc
}

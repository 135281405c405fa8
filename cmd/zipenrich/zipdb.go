package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"zipenrich/internal/config"
	"zipenrich/internal/zipdb"
	"zipenrich/pkg/contracts/domain"
)

// NewZipDBCommand returns the command group that manages the demographic
// database.
func NewZipDBCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "zipdb",
		Short: "manage the demographic database",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", config.Default().Demographics.DBPath, "Path of the zip database.")

	importCmd := &cobra.Command{
		Use:   "import file.csv",
		Short: "import demographic rows from a CSV file",
		Long: `Import reads a CSV file with a postal code column (zipcode, zip_code, zip or
zcta) and optional median_home_value, median_household_income and population
columns. Existing entries are overwritten. Use - to read from stdin.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = stdin
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			store, err := zipdb.Open(dbPath, false)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.ImportCSV(r)
			if err != nil {
				return err
			}
			count, err := store.Count()
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "rows=%d imported=%d skipped=%d total=%d\n",
				stats.Rows, stats.Imported, stats.Skipped, count)
			return nil
		},
	}

	getCmd := &cobra.Command{
		Use:   "get zip...",
		Short: "print the demographics of postal codes as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := zipdb.Open(dbPath, true)
			if err != nil {
				return err
			}
			defer store.Close()

			enc := json.NewEncoder(stdout)
			for _, zip := range args {
				d, err := store.Get(zip)
				if err != nil {
					fmt.Fprintf(stderr, "%s: %v\n", zip, err)
					d = domain.NoData(zip)
				}
				if err := enc.Encode(d); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.AddCommand(importCmd, getCmd)
	return cmd
}

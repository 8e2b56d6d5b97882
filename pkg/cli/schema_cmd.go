package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	var seedPath string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Show the tables and columns a seed schema provides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, cleanup, err := openSeededEngine(cmd.Context(), seedPath)
			if err != nil {
				return err
			}
			defer cleanup()

			schemas, err := eng.Tables(cmd.Context())
			if err != nil {
				return err
			}

			bold := color.New(color.Bold)
			for _, ts := range schemas {
				bold.Println(ts.Name)
				for _, c := range ts.Columns {
					fmt.Printf("  %-20s %s\n", c.Name, c.Type)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&seedPath, "seed", "", "YAML schema file to load (required)")
	_ = cmd.MarkFlagRequired("seed")

	return cmd
}

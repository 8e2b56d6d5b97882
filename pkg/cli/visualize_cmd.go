package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"sqlflow/internal/domain"
	"sqlflow/internal/engine"
	"sqlflow/internal/plan"
	"sqlflow/internal/session"
	"sqlflow/internal/simulate"
	"sqlflow/internal/sqlparse"
)

func newVisualizeCmd() *cobra.Command {
	var (
		seedPath    string
		jsonOutput  bool
		maxJoinRows int
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "visualize <query>",
		Short: "Trace a SELECT statement through the logical execution order",
		Example: `  sqlflow visualize --seed seed/demo.yaml "SELECT name FROM users WHERE age > 21"
  sqlflow visualize --seed seed/demo.yaml --json "SELECT country, COUNT(*) AS n FROM users GROUP BY country"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			eng, cleanup, err := openSeededEngine(ctx, seedPath)
			if err != nil {
				return err
			}
			defer cleanup()

			q, err := sqlparse.Parse(args[0])
			if err != nil {
				return err
			}
			stages := plan.Build(q)

			sim := simulate.New(eng, simulate.WithMaxJoinRows(maxJoinRows))
			flow, err := sim.Run(ctx, stages)
			if err != nil {
				return err
			}
			viz := simulate.Assemble(q.Raw, stages, flow)

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(viz)
			}
			printVisualization(viz)
			return nil
		},
	}

	cmd.Flags().StringVar(&seedPath, "seed", "", "YAML schema file to load before running (required)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the full visualization as JSON")
	cmd.Flags().IntVar(&maxJoinRows, "max-join-rows", 10000, "cap on rows a join stage may materialize")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "wall-clock budget for the visualization")
	_ = cmd.MarkFlagRequired("seed")

	return cmd
}

// openSeededEngine opens an in-memory database and applies the seed schema.
func openSeededEngine(ctx context.Context, seedPath string) (*engine.DuckDB, func(), error) {
	seed, err := session.LoadSeed(seedPath)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := seed.Apply(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return engine.New(db), func() { _ = db.Close() }, nil
}

func printVisualization(viz *domain.QueryVisualization) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	dim := color.New(color.Faint)

	bold.Printf("Query: %s\n\n", viz.OriginalQuery)

	bold.Println("Execution order:")
	for _, step := range viz.ExecutionSteps {
		fmt.Printf("  %d. %-9s %s\n", step.Order, step.Type, step.Clause)
		dim.Printf("     %s\n", step.Description)
	}
	fmt.Println()

	for _, step := range viz.DataFlow {
		bold.Printf("Step %d: %s", step.StepOrder, step.StepType)
		dim.Printf("  (%d rows in, %d kept, %d excluded)\n",
			step.Stats.TotalRows, step.Stats.IncludedRows, step.Stats.ExcludedRows)

		for _, row := range step.Rows {
			line := formatRow(row.Data, step.Columns)
			if row.Included {
				green.Printf("  + %s\n", line)
			} else {
				red.Printf("  - %s\n", line)
				if row.ExcludedReason != "" {
					dim.Printf("      %s\n", row.ExcludedReason)
				}
			}
		}
		fmt.Println()
	}

	bold.Printf("Final result (%d rows):\n", len(viz.FinalResult.Rows))
	fmt.Printf("  %s\n", strings.Join(viz.FinalResult.Columns, " | "))
	for _, row := range viz.FinalResult.Rows {
		fmt.Printf("  %s\n", formatRow(row, viz.FinalResult.Columns))
	}
}

func formatRow(data domain.Row, columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		v, ok := data[c]
		if !ok || v == nil {
			parts[i] = "NULL"
			continue
		}
		parts[i] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, " | ")
}

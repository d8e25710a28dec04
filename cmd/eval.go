package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/argus-advisory/advisor-cli/internal/engine"
	"github.com/argus-advisory/advisor-cli/internal/fetcher"
	"github.com/argus-advisory/advisor-cli/internal/model"
	"github.com/argus-advisory/advisor-cli/internal/profiler"
)

var (
	evalPlanPath string
	evalProfile  bool
)

var evalCmd = &cobra.Command{
	Use:   "eval <data.csv | data.xlsx>",
	Short: "Evaluate a plan against a local file",
	Long:  "Runs a plan JSON against a local CSV or XLSX file and prints the result. Needs no server, queue, or API key.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataPath := args[0]

		f, err := os.Open(dataPath)
		if err != nil {
			return eris.Wrapf(err, "open %s", dataPath)
		}
		defer f.Close()

		t, err := fetcher.LoadTable(filepath.Base(dataPath), f, fetcher.CSVOptions{})
		if err != nil {
			return err
		}

		out := json.NewEncoder(os.Stdout)
		out.SetIndent("", "  ")

		if evalProfile {
			return out.Encode(profiler.Profile(t))
		}

		if evalPlanPath == "" {
			return eris.New("--plan is required unless --profile is set")
		}
		planData, err := os.ReadFile(evalPlanPath)
		if err != nil {
			return eris.Wrapf(err, "read %s", evalPlanPath)
		}
		var plan model.Plan
		if err := json.Unmarshal(planData, &plan); err != nil {
			return eris.Wrap(err, "parse plan JSON")
		}
		if err := plan.Validate(); err != nil {
			return err
		}

		result := engine.Compute(t, plan)
		if result.Value == nil && len(result.ValueBreakdown) == 0 {
			fmt.Fprintln(os.Stderr, "plan produced no usable value")
		}
		return out.Encode(result)
	},
}

func init() {
	evalCmd.Flags().StringVar(&evalPlanPath, "plan", "", "path to a plan JSON file")
	evalCmd.Flags().BoolVar(&evalProfile, "profile", false, "print the dataset profile instead of evaluating a plan")
	rootCmd.AddCommand(evalCmd)
}

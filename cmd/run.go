package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/argus-advisory/advisor-cli/internal/model"
)

var runStage string

var runCmd = &cobra.Command{
	Use:   "run <project-id>",
	Short: "Enqueue a pipeline job for a project",
	Long:  "Creates a job at the given stage (default: profile) and enqueues its message. A worker must be running to process it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		projectID := args[0]

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		project, err := env.Store.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return eris.Errorf("project %s not found", projectID)
		}

		stage := model.JobStage(runStage)
		switch stage {
		case model.StageProfile, model.StageGenerateKPIs, model.StageComputeKPIs, model.StageGenerateReport:
		default:
			return eris.Errorf("unknown stage %q", runStage)
		}

		job, err := enqueueJob(ctx, env, projectID, stage)
		if err != nil {
			return err
		}

		fmt.Printf("Enqueued %s job %s for project %q\n", job.Stage, job.ID, project.Name)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runStage, "stage", string(model.StageProfile), "pipeline stage to run")
	rootCmd.AddCommand(runCmd)
}

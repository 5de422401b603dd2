package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/valuation-cli/internal/model"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage value-building tasks",
}

var taskStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Change a task's status and apply its effect on answers and valuation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		id, _ := cmd.Flags().GetString("id")
		status, _ := cmd.Flags().GetString("status")
		actor, _ := cmd.Flags().GetString("actor")

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		task, outcome, err := env.Tasks.Transition(ctx, id, model.TaskStatus(status), optionalString(actor))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"task": task, "outcome": outcome})
	},
}

func init() {
	taskStatusCmd.Flags().String("id", "", "task ID (required)")
	taskStatusCmd.Flags().String("status", "", "new status: PENDING, IN_PROGRESS, COMPLETED, DEFERRED, BLOCKED, CANCELLED (required)")
	taskStatusCmd.Flags().String("actor", "", "acting user ID")
	_ = taskStatusCmd.MarkFlagRequired("id")
	_ = taskStatusCmd.MarkFlagRequired("status")

	taskCmd.AddCommand(taskStatusCmd)
	rootCmd.AddCommand(taskCmd)
}

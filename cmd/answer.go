package main

import (
	"github.com/spf13/cobra"
)

var answerCmd = &cobra.Command{
	Use:   "answer",
	Short: "Record a company's answer to an assessment question and recalculate",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		companyID, _ := cmd.Flags().GetString("company")
		questionID, _ := cmd.Flags().GetString("question")
		optionID, _ := cmd.Flags().GetString("option")
		actor, _ := cmd.Flags().GetString("actor")

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Tasks.RecordAnswer(ctx, companyID, questionID, optionID, optionalString(actor))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	answerCmd.Flags().String("company", "", "company ID (required)")
	answerCmd.Flags().String("question", "", "question ID (required)")
	answerCmd.Flags().String("option", "", "selected option ID (required)")
	answerCmd.Flags().String("actor", "", "acting user ID")
	_ = answerCmd.MarkFlagRequired("company")
	_ = answerCmd.MarkFlagRequired("question")
	_ = answerCmd.MarkFlagRequired("option")

	rootCmd.AddCommand(answerCmd)
}

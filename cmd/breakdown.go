package main

import (
	"github.com/spf13/cobra"
)

var (
	breakdownCompany string
	breakdownJSON    bool
)

var breakdownCmd = &cobra.Command{
	Use:   "breakdown",
	Short: "Attribute a company's value gap to categories and drivers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		b, err := env.Attribution.Breakdown(ctx, breakdownCompany)
		if err != nil {
			return err
		}
		if breakdownJSON {
			return printJSON(cmd.OutOrStdout(), b)
		}
		printBreakdown(cmd.OutOrStdout(), b)
		return nil
	},
}

func init() {
	breakdownCmd.Flags().StringVar(&breakdownCompany, "company", "", "company ID (required)")
	breakdownCmd.Flags().BoolVar(&breakdownJSON, "json", false, "print JSON instead of a table")
	_ = breakdownCmd.MarkFlagRequired("company")
	rootCmd.AddCommand(breakdownCmd)
}

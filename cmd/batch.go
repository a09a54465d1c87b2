package main

import (
	"github.com/spf13/cobra"

	"github.com/titanops/vista-sync/internal/vista"
)

var (
	batchesTenant string
	batchesLimit  int
)

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "List recent import batches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		tenantID, err := parseTenant(batchesTenant)
		if err != nil {
			return err
		}

		env, err := initEngine(ctx, "match")
		if err != nil {
			return err
		}
		defer env.Close()

		batches, err := env.Service.ListBatches(ctx, tenantID, batchesLimit)
		if err != nil {
			return err
		}
		if batches == nil {
			batches = []*vista.ImportBatch{}
		}
		return printJSON(cmd.OutOrStdout(), batches)
	},
}

func init() {
	batchesCmd.Flags().StringVar(&batchesTenant, "tenant", "", "tenant id (required)")
	batchesCmd.Flags().IntVar(&batchesLimit, "limit", 50, "max batches to list")
	_ = batchesCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(batchesCmd)
}

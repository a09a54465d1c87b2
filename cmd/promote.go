package main

import (
	"github.com/spf13/cobra"

	"github.com/titanops/vista-sync/internal/vista"
)

var (
	promoteTenant string
	promoteType   string
	promoteUser   string
)

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Create internal entities for records that are still unmatched",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		tenantID, err := parseTenant(promoteTenant)
		if err != nil {
			return err
		}
		actor, err := parseActor(promoteUser)
		if err != nil {
			return err
		}
		t, err := vista.ParseEntityType(promoteType)
		if err != nil {
			return err
		}

		env, err := initEngine(ctx, "match")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.Promote(ctx, tenantID, t, actor)
		if res != nil {
			if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
				return perr
			}
		}
		return err
	},
}

func init() {
	promoteCmd.Flags().StringVar(&promoteTenant, "tenant", "", "tenant id (required)")
	promoteCmd.Flags().StringVar(&promoteType, "type", "", "entity type (required)")
	promoteCmd.Flags().StringVar(&promoteUser, "user", "", "user id recorded as linked_by")
	_ = promoteCmd.MarkFlagRequired("tenant")
	_ = promoteCmd.MarkFlagRequired("type")
	rootCmd.AddCommand(promoteCmd)
}

package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/titanops/vista-sync/internal/vista"
)

var (
	matchTenant  string
	matchType    string
	dupMinSim    float64
	dupLimit     int
	dupTopN      int
	dupStatsOnly bool
)

var automatchCmd = &cobra.Command{
	Use:   "automatch",
	Short: "Auto-link unmatched records with one confident candidate",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		tenantID, err := parseTenant(matchTenant)
		if err != nil {
			return err
		}

		env, err := initEngine(ctx, "match")
		if err != nil {
			return err
		}
		defer env.Close()

		if matchType == "" {
			counts, err := env.Service.AutoMatchAll(ctx, tenantID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), counts)
		}

		t, err := vista.ParseEntityType(matchType)
		if err != nil {
			return err
		}
		counts, err := env.Service.Matcher.Run(ctx, tenantID, t, nil)
		if err != nil {
			return err
		}
		zap.L().Info("auto-match complete", zap.String("type", string(t)), zap.Int("matched", counts.Matched))
		return printJSON(cmd.OutOrStdout(), map[string]vista.MatchCounts{t.ResultKey(): counts})
	},
}

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Report likely matches that need review",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		tenantID, err := parseTenant(matchTenant)
		if err != nil {
			return err
		}
		t, err := vista.ParseEntityType(matchType)
		if err != nil {
			return err
		}

		env, err := initEngine(ctx, "match")
		if err != nil {
			return err
		}
		defer env.Close()

		if dupStatsOnly {
			stats, err := env.Service.DuplicateStats(ctx, tenantID, t)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		}

		groups, err := env.Service.Duplicates(ctx, tenantID, t, vista.DuplicateOptions{
			MinSimilarity: dupMinSim,
			TopN:          dupTopN,
			Limit:         dupLimit,
		})
		if err != nil {
			return err
		}
		if groups == nil {
			groups = []vista.DuplicateGroup{}
		}
		return printJSON(cmd.OutOrStdout(), groups)
	},
}

func init() {
	for _, c := range []*cobra.Command{automatchCmd, duplicatesCmd} {
		c.Flags().StringVar(&matchTenant, "tenant", "", "tenant id (required)")
		_ = c.MarkFlagRequired("tenant")
	}
	automatchCmd.Flags().StringVar(&matchType, "type", "", "entity type (default: all)")
	duplicatesCmd.Flags().StringVar(&matchType, "type", "", "entity type (required)")
	_ = duplicatesCmd.MarkFlagRequired("type")
	duplicatesCmd.Flags().Float64Var(&dupMinSim, "min-similarity", 0, "minimum candidate score (default: match.candidate_floor)")
	duplicatesCmd.Flags().IntVar(&dupLimit, "limit", 100, "max records to report")
	duplicatesCmd.Flags().IntVar(&dupTopN, "top", 0, "candidates per record (default: match.top_n)")
	duplicatesCmd.Flags().BoolVar(&dupStatsOnly, "stats", false, "print score bands only")

	rootCmd.AddCommand(automatchCmd)
	rootCmd.AddCommand(duplicatesCmd)
}

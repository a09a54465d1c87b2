package main

import (
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	deptTenant string
	deptCode   string
	deptID     string
)

var departmentsCmd = &cobra.Command{
	Use:   "departments",
	Short: "Link Vista department codes to internal departments",
}

var departmentsAutoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Link every department code that exactly matches an internal code",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		tenantID, err := parseTenant(deptTenant)
		if err != nil {
			return err
		}

		env, err := initEngine(ctx, "match")
		if err != nil {
			return err
		}
		defer env.Close()

		counts, err := env.Service.AutoLinkDepartments(ctx, tenantID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), counts)
	},
}

var departmentsLinkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link one department code to a department",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		tenantID, err := parseTenant(deptTenant)
		if err != nil {
			return err
		}
		dept, err := uuid.Parse(deptID)
		if err != nil {
			return eris.Errorf("invalid --department %q: expected a uuid", deptID)
		}

		env, err := initEngine(ctx, "match")
		if err != nil {
			return err
		}
		defer env.Close()

		counts, err := env.Service.LinkDepartmentCode(ctx, tenantID, deptCode, dept)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), counts)
	},
}

func init() {
	departmentsCmd.PersistentFlags().StringVar(&deptTenant, "tenant", "", "tenant id (required)")
	_ = departmentsCmd.MarkPersistentFlagRequired("tenant")
	departmentsLinkCmd.Flags().StringVar(&deptCode, "code", "", "Vista department code (required)")
	departmentsLinkCmd.Flags().StringVar(&deptID, "department", "", "internal department id (required)")
	_ = departmentsLinkCmd.MarkFlagRequired("code")
	_ = departmentsLinkCmd.MarkFlagRequired("department")

	departmentsCmd.AddCommand(departmentsAutoCmd)
	departmentsCmd.AddCommand(departmentsLinkCmd)
	rootCmd.AddCommand(departmentsCmd)
}

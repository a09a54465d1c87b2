package main

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/titanops/vista-sync/internal/vista"
)

var (
	importFile   string
	importTenant string
	importUser   string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a Vista workbook export",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		tenantID, err := parseTenant(importTenant)
		if err != nil {
			return err
		}
		actor, err := parseActor(importUser)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(importFile)
		if err != nil {
			return eris.Wrapf(err, "read %s", importFile)
		}

		env, err := initEngine(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := env.Service.Import(ctx, vista.ImportRequest{
			TenantID: tenantID,
			UserID:   actor,
			FileName: filepath.Base(importFile),
			Data:     data,
		})
		if sum != nil {
			if perr := printJSON(cmd.OutOrStdout(), sum); perr != nil {
				return perr
			}
		}
		if err != nil {
			return eris.Wrap(err, "import workbook")
		}

		zap.L().Info("import complete",
			zap.String("file", importFile),
			zap.Strings("sheets", sum.SheetsProcessed),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to the .xlsx export (required)")
	importCmd.Flags().StringVar(&importTenant, "tenant", "", "tenant id (required)")
	importCmd.Flags().StringVar(&importUser, "user", "", "user id recorded on the batch")
	_ = importCmd.MarkFlagRequired("file")
	_ = importCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(importCmd)
}

package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ramanngartan/arealens-geocode/internal/importer"
)

var importFilePath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a customer address file (CSV or XLSX)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		upload, err := importer.ImportFile(ctx, env.store, importFilePath)
		if err != nil {
			return eris.Wrap(err, "import file")
		}

		zap.L().Info("import complete",
			zap.String("upload_id", upload.ID),
			zap.Int("rows", upload.RowCount),
			zap.String("file", importFilePath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFilePath, "file", "", "path to address file (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}

package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ramanngartan/arealens-geocode/internal/store"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode <upload-id>",
	Short: "Geocode an upload's pending rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		uploadID := args[0]

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		upload, err := env.store.GetUpload(ctx, uploadID)
		if err != nil {
			return eris.Wrap(err, "get upload")
		}
		if upload == nil {
			return eris.Errorf("upload %s not found", uploadID)
		}
		if upload.Status == store.UploadStatusProcessing {
			return eris.Errorf("upload %s is already processing", uploadID)
		}

		if err := env.pipeline.Run(ctx, uploadID); err != nil {
			return err
		}

		outcomes, err := env.store.CountOutcomes(ctx, uploadID)
		if err != nil {
			return eris.Wrap(err, "count outcomes")
		}
		zap.L().Info("geocode complete",
			zap.String("upload_id", uploadID),
			zap.Int("success", outcomes.Success),
			zap.Int("failed", outcomes.Failed),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(geocodeCmd)
}

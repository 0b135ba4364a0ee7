package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ramanngartan/arealens-geocode/internal/store"
)

var insightsCmd = &cobra.Command{
	Use:   "insights <upload-id>",
	Short: "Compute density insights for a geocoded upload",
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
		if upload.Status != store.UploadStatusDone {
			return eris.Errorf("upload %s is %s, insights need a completed geocode run", uploadID, upload.Status)
		}

		report, err := env.insights.Compute(ctx, uploadID)
		if err != nil {
			return eris.Wrap(err, "compute insights")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(insightsCmd)
}

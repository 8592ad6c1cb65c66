package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newOSMAdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "osm-admin",
		Short: "Appends OSM administrative boundaries for every mirrored country",
		Long: `Crawls the mirror for per-country .osm.pbf extracts and appends the
administrative boundaries of each to administrative_unit. Countries that
fail are reported at the end; the others are still loaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res, err := appInstance.OSMLoader().Run(cmd.Context())
			appInstance.GetLogger().Info("osm-admin command finished",
				zap.Int("countries", res.Countries),
				zap.Int("failed", res.Failed),
				zap.Int("units", res.Units),
			)
			if err != nil {
				return fmt.Errorf("osm-admin: %w", err)
			}
			return nil
		},
	}
}

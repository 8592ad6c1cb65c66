package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newNutsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nuts",
		Short: "Replaces the NUTS region, hexagon and locator tables",
		Long: `Discovers every NUTS vintage on the distribution API, downloads the
shapefile archive of each, and rewrites nuts_region, nuts_locator and
hexagon_hash. Vintages whose archive is unavailable are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res, err := appInstance.NutsLoader().Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("nuts: %w", err)
			}
			appInstance.GetLogger().Info("nuts command finished",
				zap.Ints("loaded", res.Loaded),
				zap.Ints("skipped", res.Skipped),
			)
			return nil
		},
	}
}

package main

import (
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-sampler/internal/sheet"
)

var (
	coordsFile  string
	coordsCache string
)

var coordsCmd = &cobra.Command{
	Use:   "coords",
	Short: "Manage the coordinate cache",
}

var coordsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load address/lat/lng rows from a workbook into the cache",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path := cfg.Cache.Path
		if coordsCache != "" {
			path = coordsCache
		}
		if path == "" {
			return eris.New("coordinate cache path is required (--coord-cache or SAMPLER_CACHE_PATH)")
		}

		rows, err := sheet.ReadXLSX(coordsFile, sheet.XLSXOptions{})
		if err != nil {
			return err
		}

		cache, err := openCache(ctx, path)
		if err != nil {
			return err
		}
		defer cache.Close() //nolint:errcheck

		stored, err := cache.ImportRows(ctx, rows, filepath.Base(coordsFile))
		if err != nil {
			return err
		}
		total, err := cache.Count(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("coordinates imported",
			zap.String("file", coordsFile),
			zap.Int("stored", stored),
			zap.Int("cached", total),
		)
		return nil
	},
}

func init() {
	coordsImportCmd.Flags().StringVar(&coordsFile, "file", "", "workbook with address, lat and lng columns (required)")
	coordsImportCmd.Flags().StringVar(&coordsCache, "coord-cache", "", "coordinate cache database")
	_ = coordsImportCmd.MarkFlagRequired("file")
	coordsCmd.AddCommand(coordsImportCmd)
	rootCmd.AddCommand(coordsCmd)
}

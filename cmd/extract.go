package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-sampler/internal/boundary"
	"github.com/sells-group/parcel-sampler/internal/config"
	"github.com/sells-group/parcel-sampler/internal/coordcache"
	"github.com/sells-group/parcel-sampler/internal/extract"
	"github.com/sells-group/parcel-sampler/internal/model"
	"github.com/sells-group/parcel-sampler/internal/sheet"
)

var (
	extractMaster         string
	extractSampled        []string
	extractRepresentative string
	extractBoundaries     string
	extractBoundaryField  string
	extractCoordCache     string
	extractPlan           string
	extractSeed           uint32
	extractTarget         int
	extractPerRi          int
	extractSpatial        bool
	extractOutput         string
	extractJSON           string
	extractSheetName      string
	extractSkipRows       int
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Mark prior samples and draw this year's parcel sample",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		if err := cfg.Validate(); err != nil {
			return err
		}
		ec, err := extractionConfig(cmd)
		if err != nil {
			return err
		}

		sampled, err := parseSampledFlags(extractSampled)
		if err != nil {
			return err
		}
		wb, err := loadWorkbooks(ctx, extractMaster, sampled, extractRepresentative, sheetOptions())
		if err != nil {
			return err
		}

		if err := locateParcels(ctx, wb); err != nil {
			return err
		}

		out, err := extract.Run(ctx, extract.Input{
			Config:         ec,
			Master:         wb.Master,
			Sampled:        wb.Sampled,
			Representative: wb.Representative,
			Logger:         zap.L(),
		})
		if err != nil {
			return eris.Wrap(err, "extract")
		}

		return writeOutputs(out, cmd.OutOrStdout())
	},
}

// extractionConfig merges config file values, the plan file and flags, in
// that order of precedence.
func extractionConfig(cmd *cobra.Command) (model.ExtractionConfig, error) {
	ec := cfg.ToExtractionConfig()

	planPath := cfg.Extraction.PlanPath
	if extractPlan != "" {
		planPath = extractPlan
	}
	if planPath != "" {
		plan, err := config.LoadPlan(planPath)
		if err != nil {
			return ec, err
		}
		plan.Apply(&ec)
	}

	flags := cmd.Flags()
	if flags.Changed("seed") {
		seed := extractSeed
		ec.Seed = &seed
	}
	if flags.Changed("target") {
		ec.TotalTarget = extractTarget
	}
	if flags.Changed("per-ri") {
		ec.PerRiTarget = extractPerRi
	}
	if flags.Changed("spatial") {
		ec.Spatial.EnableSpatialFilter = extractSpatial
	}
	return ec, nil
}

// locateParcels attaches cached coordinates and assigns boundary regions
// to unclassified parcels. Both steps are optional.
func locateParcels(ctx context.Context, wb *workbooks) error {
	cachePath := cfg.Cache.Path
	if extractCoordCache != "" {
		cachePath = extractCoordCache
	}
	if cachePath != "" {
		cache, err := openCache(ctx, cachePath)
		if err != nil {
			return err
		}
		defer cache.Close() //nolint:errcheck

		if wb.Master, _, err = cache.Attach(ctx, wb.Master); err != nil {
			return err
		}
		if len(wb.Representative) > 0 {
			if wb.Representative, _, err = cache.Attach(ctx, wb.Representative); err != nil {
				return err
			}
		}
	}

	shpPath, field := cfg.Boundary.Path, cfg.Boundary.KeyField
	if extractBoundaries != "" {
		shpPath = extractBoundaries
	}
	if extractBoundaryField != "" {
		field = extractBoundaryField
	}
	if shpPath == "" {
		return nil
	}
	idx, err := boundary.LoadShapefile(shpPath, field)
	if err != nil {
		return err
	}
	wb.Master, _ = idx.AssignRegions(wb.Master)
	if len(wb.Representative) > 0 {
		wb.Representative, _ = idx.AssignRegions(wb.Representative)
	}
	return nil
}

func openCache(ctx context.Context, path string) (*coordcache.Cache, error) {
	cache, err := coordcache.Open(path)
	if err != nil {
		return nil, err
	}
	if err := cache.Migrate(ctx); err != nil {
		cache.Close() //nolint:errcheck
		return nil, err
	}
	return cache, nil
}

func writeOutputs(out *extract.Output, stdout io.Writer) error {
	res := out.Result
	if extractOutput != "" {
		if err := sheet.WriteResult(extractOutput, res); err != nil {
			return err
		}
	}
	if extractJSON != "" {
		if err := writeJSON(extractJSON, res, stdout); err != nil {
			return err
		}
	}

	zap.L().Info("extraction finished",
		zap.String("run_id", res.RunID),
		zap.Uint32("seed", res.Seed),
		zap.Int("target", res.Target),
		zap.Int("selected", len(res.SelectedParcels)),
		zap.Int("shortfall", res.Shortfall),
		zap.Int("eligible", out.Dedup.Eligible),
		zap.Bool("valid", res.Validation.Valid),
		zap.Int("errors", len(res.Validation.Errors)),
		zap.Int("warnings", len(res.Validation.Warnings)),
	)
	for _, is := range res.Validation.Errors {
		zap.L().Warn("validation error", zap.String("code", is.Code), zap.String("message", is.Message))
	}
	return nil
}

// writeJSON writes v to path, or to stdout when path is "-".
func writeJSON(path string, v any, stdout io.Writer) error {
	w := stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "create %s", path)
		}
		defer f.Close() //nolint:errcheck
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode json")
}

func sheetOptions() sheet.XLSXOptions {
	return sheet.XLSXOptions{SheetName: extractSheetName, SkipRows: extractSkipRows}
}

func init() {
	f := extractCmd.Flags()
	f.StringVar(&extractMaster, "master", "", "master parcel workbook (required)")
	f.StringArrayVar(&extractSampled, "sampled", nil, "prior sample as YEAR=PATH, repeatable")
	f.StringVar(&extractRepresentative, "representative", "", "representative parcel workbook")
	f.StringVar(&extractBoundaries, "boundaries", "", "region boundary shapefile")
	f.StringVar(&extractBoundaryField, "boundary-field", "", "shapefile attribute naming the region")
	f.StringVar(&extractCoordCache, "coord-cache", "", "coordinate cache database")
	f.StringVar(&extractPlan, "plan", "", "region plan YAML")
	f.Uint32Var(&extractSeed, "seed", 0, "random seed")
	f.IntVar(&extractTarget, "target", 0, "total target")
	f.IntVar(&extractPerRi, "per-ri", 0, "per-region target")
	f.BoolVar(&extractSpatial, "spatial", false, "enable density-aware selection")
	f.StringVar(&extractOutput, "output", "", "result workbook path")
	f.StringVar(&extractJSON, "json", "", "result JSON path, - for stdout")
	f.StringVar(&extractSheetName, "sheet", "", "input sheet name (default first sheet)")
	f.IntVar(&extractSkipRows, "skip-rows", 0, "rows above the header to skip")
	_ = extractCmd.MarkFlagRequired("master")
	rootCmd.AddCommand(extractCmd)
}

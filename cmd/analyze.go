package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-sampler/internal/dedup"
	"github.com/sells-group/parcel-sampler/internal/extract"
	"github.com/sells-group/parcel-sampler/internal/model"
)

var (
	analyzeMaster  string
	analyzeSampled []string
)

// analysis is the analyze command's report.
type analysis struct {
	Dedup   dedup.Summary          `json:"dedup"`
	Regions []model.RiStat         `json:"regions"`
	Owners  int                    `json:"owners"`
	Located int                    `json:"located"`
	Config  model.ExtractionConfig `json:"config"`
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Report eligibility and region coverage without sampling",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sampled, err := parseSampledFlags(analyzeSampled)
		if err != nil {
			return err
		}
		wb, err := loadWorkbooks(cmd.Context(), analyzeMaster, sampled, "", sheetOptions())
		if err != nil {
			return err
		}

		ec := cfg.ToExtractionConfig().Normalize()
		marked, sum := dedup.Mark(wb.Master, wb.Sampled...)

		rep := analysis{
			Dedup:   sum,
			Regions: extract.RiStats(ec, marked, nil, nil),
			Owners:  len(extract.FarmerStats(ec, marked, nil)),
			Config:  ec,
		}
		for _, p := range marked {
			if p.HasCoords() {
				rep.Located++
			}
		}

		zap.L().Info("analysis complete",
			zap.Int("parcels", sum.Total),
			zap.Int("eligible", sum.Eligible),
			zap.Int("regions", len(rep.Regions)),
			zap.Int("owners", rep.Owners),
		)
		return eris.Wrap(writeJSON("-", rep, cmd.OutOrStdout()), "analyze")
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeMaster, "master", "", "master parcel workbook (required)")
	analyzeCmd.Flags().StringArrayVar(&analyzeSampled, "sampled", nil, "prior sample as YEAR=PATH, repeatable")
	analyzeCmd.Flags().StringVar(&extractSheetName, "sheet", "", "input sheet name (default first sheet)")
	analyzeCmd.Flags().IntVar(&extractSkipRows, "skip-rows", 0, "rows above the header to skip")
	_ = analyzeCmd.MarkFlagRequired("master")
	rootCmd.AddCommand(analyzeCmd)
}

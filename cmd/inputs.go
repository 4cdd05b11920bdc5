package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/parcel-sampler/internal/dedup"
	"github.com/sells-group/parcel-sampler/internal/model"
	"github.com/sells-group/parcel-sampler/internal/sheet"
)

// sampledSource is one --sampled YEAR=PATH flag.
type sampledSource struct {
	Year int
	Path string
}

func parseSampledFlags(values []string) ([]sampledSource, error) {
	out := make([]sampledSource, 0, len(values))
	for _, v := range values {
		year, path, ok := strings.Cut(v, "=")
		if !ok || strings.TrimSpace(path) == "" {
			return nil, eris.Errorf("sampled %q: expected YEAR=PATH", v)
		}
		y, err := strconv.Atoi(strings.TrimSpace(year))
		if err != nil {
			return nil, eris.Wrapf(err, "sampled %q: invalid year", v)
		}
		out = append(out, sampledSource{Year: y, Path: strings.TrimSpace(path)})
	}
	return out, nil
}

// workbooks are the parsed input files of one run.
type workbooks struct {
	Master         []model.Parcel
	Sampled        []dedup.SampledPool
	Representative []model.Parcel
}

// loadWorkbooks reads every input workbook concurrently. Row errors are
// logged and skipped; a file that cannot be read fails the load.
func loadWorkbooks(ctx context.Context, masterPath string, sampled []sampledSource, repPath string, opts sheet.XLSXOptions) (*workbooks, error) {
	var wb workbooks
	wb.Sampled = make([]dedup.SampledPool, len(sampled))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		parcels, err := loadSheet(gctx, masterPath, opts)
		wb.Master = parcels
		return err
	})
	for i, src := range sampled {
		g.Go(func() error {
			parcels, err := loadSheet(gctx, src.Path, opts)
			wb.Sampled[i] = dedup.SampledPool{Year: src.Year, Parcels: parcels}
			return err
		})
	}
	if repPath != "" {
		g.Go(func() error {
			parcels, err := loadSheet(gctx, repPath, opts)
			wb.Representative = parcels
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "load workbooks")
	}
	return &wb, nil
}

func loadSheet(ctx context.Context, path string, opts sheet.XLSXOptions) ([]model.Parcel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parcels, rowErrs, err := sheet.LoadParcels(path, opts)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("file", path))
	if len(rowErrs) > 0 {
		log.Warn("rows skipped", zap.Int("count", len(rowErrs)), zap.String("first", rowErrs[0].Error()))
	}
	log.Info("workbook loaded", zap.Int("parcels", len(parcels)))
	return parcels, nil
}

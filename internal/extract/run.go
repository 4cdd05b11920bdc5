package extract

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-sampler/internal/dedup"
	"github.com/sells-group/parcel-sampler/internal/model"
)

// Input is everything one extraction run consumes.
type Input struct {
	Config         model.ExtractionConfig
	Master         []model.Parcel
	Sampled        []dedup.SampledPool
	Representative []model.Parcel
	Logger         *zap.Logger
}

// Output is the result of Run together with the eligibility summaries.
type Output struct {
	Result         *model.ExtractionResult
	Master         []model.Parcel
	Dedup          dedup.Summary
	Representative *dedup.Summary
}

// Run marks eligibility against the prior-year pools and extracts, with
// representative reconciliation when a representative set is given. A panic
// anywhere in the pipeline is returned as an error.
func Run(ctx context.Context, in Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "extract: run")
	}

	var out Output
	err := guard(func() {
		out.Master, out.Dedup = dedup.Mark(in.Master, in.Sampled...)
		if len(in.Representative) == 0 {
			out.Result = Extract(in.Config, out.Master, Options{Logger: in.Logger})
			return
		}
		reps, sum := dedup.Mark(in.Representative, in.Sampled...)
		out.Representative = &sum
		out.Result = Reconcile(in.Config, out.Master, reps, in.Logger)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func guard(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("extract: pipeline panicked: %v", r)
		}
	}()
	fn()
	return nil
}

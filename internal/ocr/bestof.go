package ocr

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// BestOf recognizes every input variant concurrently with the same engine
// and returns the strongest result. Preprocessing helps some photos and
// hurts others, so the pipeline races the raw and cleaned variants instead
// of guessing.
//
// A result with text always beats one without; ties break on mean word
// confidence, then on text length. Individual variant failures are
// tolerated as long as at least one variant succeeds.
func BestOf(ctx context.Context, engine Engine, inputs ...Input) (*Result, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs")
	}
	if len(inputs) == 1 {
		return engine.Recognize(ctx, inputs[0])
	}

	results := make([]*Result, len(inputs))
	errs := make([]error, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		g.Go(func() error {
			res, err := engine.Recognize(gctx, in)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var best *Result
	for _, res := range results {
		if res == nil {
			continue
		}
		if better(res, best) {
			best = res
		}
	}
	if best == nil {
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
		return nil, fmt.Errorf("no OCR result")
	}
	return best, nil
}

func better(candidate, current *Result) bool {
	if current == nil {
		return true
	}
	candHasText := candidate.PlainText != ""
	currHasText := current.PlainText != ""
	if candHasText != currHasText {
		return candHasText
	}
	if candidate.MeanConfidence != current.MeanConfidence {
		return candidate.MeanConfidence > current.MeanConfidence
	}
	return len(candidate.PlainText) > len(current.PlainText)
}

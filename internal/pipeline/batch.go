package pipeline

import (
	"context"
	"fmt"
	"slices"

	"github.com/JaimeStill/go-agents-orchestration/pkg/config"
	wf "github.com/JaimeStill/go-agents-orchestration/pkg/workflows"

	"github.com/JaimeStill/invoice-pipeline/internal/intake"
)

type batchItem struct {
	index int
	sub   intake.FileSubmission
}

type batchResult struct {
	index  int
	result Result
	err    error
}

// ProcessBatch processes every submission concurrently and returns results in
// input order. A persistence failure on one document does not stop the others;
// the first such error is returned alongside the full result set.
func (o *Orchestrator) ProcessBatch(ctx context.Context, subs []intake.FileSubmission) ([]Result, error) {
	if len(subs) == 0 {
		return nil, nil
	}

	items := make([]batchItem, len(subs))
	for i, sub := range subs {
		items[i] = batchItem{index: i, sub: sub}
	}

	processor := func(ctx context.Context, item batchItem) (batchResult, error) {
		res, err := o.Process(ctx, item.sub)
		return batchResult{index: item.index, result: res, err: err}, nil
	}

	cfg := config.DefaultParallelConfig()
	cfg.Observer = "noop"

	out, err := wf.ProcessParallel(ctx, cfg, items, processor, nil)
	if err != nil {
		return nil, fmt.Errorf("process batch: %w", err)
	}

	collected := slices.Clone(out.Results)
	slices.SortFunc(collected, func(a, b batchResult) int { return a.index - b.index })

	results := make([]Result, len(subs))
	var first error
	for _, r := range collected {
		results[r.index] = r.result
		if r.err != nil && first == nil {
			first = r.err
		}
	}

	o.logger.Info("batch processed", "count", len(subs))
	return results, first
}

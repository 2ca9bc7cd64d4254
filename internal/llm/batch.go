package llm

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchComplete completes every prompt with gen, running at most concurrency
// requests at a time. The i-th response belongs to prompts[i]. The first
// error cancels the remaining requests and is returned without partial
// results.
func BatchComplete(ctx context.Context, gen TextGenerator, prompts [][]Message, concurrency int) ([]string, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	outputs := make([]string, len(prompts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, messages := range prompts {
		i, messages := i, messages
		g.Go(func() error {
			out, err := gen.Complete(ctx, messages)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

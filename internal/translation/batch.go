package translation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// TranslateBatch translates reqs concurrently under one rate-limit check.
// Items are independent: a failed item never aborts the batch, and Items[i]
// always answers reqs[i]. Items still unresolved when the batch timeout fires
// are reported failed.
func (o *Orchestrator) TranslateBatch(ctx context.Context, identity string, reqs []Request) (BatchResult, error) {
	if err := o.admit(identity); err != nil {
		return BatchResult{}, err
	}
	if len(reqs) == 0 {
		return BatchResult{}, invalid("items", "at least one item is required")
	}
	if len(reqs) > o.opts.BatchMaxItems {
		return BatchResult{}, invalid("items", "batch has %d items; the limit is %d", len(reqs), o.opts.BatchMaxItems)
	}

	started := o.opts.Now()
	batchCtx, cancel := context.WithTimeout(ctx, o.opts.BatchTimeout)
	defer cancel()

	items := make([]BatchItem, len(reqs))
	var group errgroup.Group
	group.SetLimit(o.opts.BatchConcurrency)

	for i, req := range reqs {
		group.Go(func() error {
			items[i] = o.batchItem(batchCtx, i, req)
			return nil
		})
	}
	_ = group.Wait()

	out := BatchResult{
		ID:    uuid.NewString(),
		Items: items,
		Total: len(items),
	}
	for _, item := range items {
		switch {
		case item.Result == nil:
			out.Failed++
		case item.Result.FromCache:
			out.Succeeded++
			out.Cached++
		default:
			out.Succeeded++
		}
	}
	out.DurationMs = o.opts.Now().Sub(started).Milliseconds()

	o.logger.Info().
		Str("batch_id", out.ID).
		Int("total", out.Total).
		Int("succeeded", out.Succeeded).
		Int("failed", out.Failed).
		Int("cached", out.Cached).
		Int64("duration_ms", out.DurationMs).
		Msg("batch translated")

	return out, nil
}

func (o *Orchestrator) batchItem(ctx context.Context, index int, req Request) BatchItem {
	if err := ctx.Err(); err != nil {
		return BatchItem{Index: index, Error: batchError(err)}
	}
	result, err := o.translate(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return BatchItem{Index: index, Error: batchError(err)}
	}
	return BatchItem{Index: index, Result: &result}
}

func batchError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("batch timeout exceeded: %v", err)
	}
	return err.Error()
}

package broadcaster

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/agreemo/dashboard/backend/internal/model"
)

// ErrAllSourcesFailed means every sub-endpoint of a composite domain failed.
var ErrAllSourcesFailed = errors.New("all sub-endpoints failed")

// fetch returns the payload a domain would publish, bounded by fetchTimeout.
func (b *Broadcaster) fetch(ctx context.Context, d model.Descriptor) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, b.fetchTimeout)
	defer cancel()

	if d.IsComposite() {
		return b.fetchComposite(ctx, d)
	}
	return b.fetcher.FetchKey(ctx, d.Endpoint, d.DataKey, d.Kind)
}

// fetchComposite requests every sub-endpoint concurrently. A failed slot is
// filled with its empty payload and never cancels its siblings. Only when
// every slot fails is the cycle itself a failure, so an outage keeps the
// last snapshot instead of publishing all-empty logs.
func (b *Broadcaster) fetchComposite(ctx context.Context, d model.Descriptor) (any, error) {
	results := make([]any, len(d.SubEndpoints))
	errs := make([]error, len(d.SubEndpoints))

	var g errgroup.Group
	for i, sub := range d.SubEndpoints {
		g.Go(func() error {
			v, err := b.fetcher.FetchKey(ctx, sub.Endpoint, sub.DataKey, sub.Kind)
			if err != nil {
				b.logger.Warn("sub-endpoint fetch failed",
					"domain", d.Name, "sub", sub.Name, "error", err)
				errs[i] = err
				v = model.EmptyPayload(sub.Kind)
			}
			results[i] = v
			return nil // never fail the group
		})
	}
	_ = g.Wait()

	failed := 0
	merged := make(map[string]any, len(results))
	for i, sub := range d.SubEndpoints {
		if errs[i] != nil {
			failed++
		}
		merged[sub.Name] = results[i]
	}
	if failed == len(d.SubEndpoints) {
		return nil, fmt.Errorf("%s: %w: %w", d.Name, ErrAllSourcesFailed, errors.Join(errs...))
	}
	return merged, nil
}

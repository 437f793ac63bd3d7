package stego

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const (
	minBandPixels = 4096
	minBandBytes  = 2048
)

// forEachBand splits [0, units) into contiguous bands of at least minBand
// units and runs fn over them on at most workers goroutines. Bands never
// overlap, so fn may write its own slice of a shared buffer without locks.
func forEachBand(ctx context.Context, units, minBand, workers int, fn func(first, last int)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if units == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}

	bands := workers
	if maxBands := (units + minBand - 1) / minBand; bands > maxBands {
		bands = maxBands
	}
	size := (units + bands - 1) / bands

	if bands == 1 {
		fn(0, units)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for first := 0; first < units; first += size {
		first, last := first, min(first+size, units)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(first, last)
			return nil
		})
	}
	return g.Wait()
}

package stego

import (
	"context"

	"github.com/faanross/simulacra_lsb/internal/raster"
)

// Embed writes bits into the LSBs of the first len(bits) eligible bytes of a
// copy of r. The source raster is never modified; on any error no output is
// returned.
//
// The pixel range is cut into bands that run concurrently. Band [first,
// last) starts at stream bit first*3, so the result is identical to a
// single sequential scan.
func Embed(ctx context.Context, r *raster.Raster, bits []bool, workers int) (*raster.Raster, error) {
	if err := Validate(r, uint64(len(bits))); err != nil {
		return nil, err
	}

	out := r.Clone()
	pixels := (len(bits) + ChannelsPerPixel - 1) / ChannelsPerPixel

	err := forEachBand(ctx, pixels, minBandPixels, workers, func(first, last int) {
		k := first * ChannelsPerPixel
		for p := first; p < last; p++ {
			base := p * raster.BytesPerPixel
			for c := 0; c < ChannelsPerPixel && k < len(bits); c++ {
				out.Pix[base+c] = EmbedBit(out.Pix[base+c], bits[k])
				k++
			}
		}
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

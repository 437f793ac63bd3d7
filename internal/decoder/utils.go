package decoder

import (
	"math"

	"github.com/faanross/simulacra_lsb/internal/raster"
	"github.com/faanross/simulacra_lsb/internal/stego"
)

// Verdicts returned by AnalyzeSecurity.
const (
	VerdictRandom  = "random"  // LSB plane is statistically indistinguishable from noise
	VerdictMixed   = "mixed"   // some structure, hard to call
	VerdictNatural = "natural" // LSB plane carries visible structure
)

// Report summarizes the least significant bit plane of a raster.
type Report struct {
	EligibleBytes int
	Zeros         int
	Ones          int
	ZeroRatio     float64 // percent

	// Entropy is the Shannon entropy in bits of the bytes formed by
	// packing eight consecutive LSBs in stream order. The maximum is 8.
	Entropy    float64
	Randomness float64 // Entropy as a percent of 8

	RedAvg   float64
	GreenAvg float64
	BlueAvg  float64
	Uniform  bool // channel averages are within 30 of each other

	// DeclaredLength is the value in the header position; Plausible reports
	// whether a payload of that length would fit.
	DeclaredLength uint32
	Plausible      bool

	Verdict string
}

// AnalyzeSecurity measures how random the LSB plane of r looks. Only eligible
// bytes are inspected.
func AnalyzeSecurity(r *raster.Raster) Report {
	var rep Report
	var freq [256]int
	var packed, nbits int
	var sums [stego.ChannelsPerPixel]int64

	for i, v := range r.Pix {
		if _, ok := stego.BitIndex(i); !ok {
			continue
		}
		rep.EligibleBytes++
		sums[i%raster.BytesPerPixel] += int64(v)

		bit := int(v & 1)
		if bit == 0 {
			rep.Zeros++
		} else {
			rep.Ones++
		}
		packed = packed<<1 | bit
		nbits++
		if nbits == 8 {
			freq[packed]++
			packed, nbits = 0, 0
		}
	}

	if rep.EligibleBytes == 0 {
		rep.Verdict = VerdictNatural
		return rep
	}

	rep.ZeroRatio = float64(rep.Zeros) * 100 / float64(rep.EligibleBytes)

	total := float64(rep.EligibleBytes / 8)
	for _, count := range freq {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		rep.Entropy -= p * math.Log2(p)
	}
	rep.Randomness = rep.Entropy / 8 * 100

	pixels := float64(rep.EligibleBytes) / stego.ChannelsPerPixel
	rep.RedAvg = float64(sums[0]) / pixels
	rep.GreenAvg = float64(sums[1]) / pixels
	rep.BlueAvg = float64(sums[2]) / pixels
	spread := math.Max(rep.RedAvg, math.Max(rep.GreenAvg, rep.BlueAvg)) -
		math.Min(rep.RedAvg, math.Min(rep.GreenAvg, rep.BlueAvg))
	rep.Uniform = spread < 30

	if n, err := stego.ExtractLength(r); err == nil {
		rep.DeclaredLength = n
		rep.Plausible = stego.StreamBits(0)+uint64(n)*stego.BitsPerByte <= stego.CapacityBits(r)
	}

	switch {
	case rep.Entropy > 7.9:
		rep.Verdict = VerdictRandom
	case rep.Entropy > 7.5:
		rep.Verdict = VerdictMixed
	default:
		rep.Verdict = VerdictNatural
	}
	return rep
}

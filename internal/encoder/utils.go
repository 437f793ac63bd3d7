package encoder

import (
	"fmt"
	"io"

	"github.com/faanross/simulacra_lsb/internal/raster"
	"github.com/faanross/simulacra_lsb/internal/stego"
)

// Plan describes how a payload occupies a raster.
type Plan struct {
	Width         int
	Height        int
	EligibleBytes int
	CapacityBits  uint64
	StreamBits    uint64
	MaxPayload    int
	Utilization   float64 // percent of capacity used by the stream
}

// NewPlan computes the occupancy of a payloadLen-byte payload in r. A zero
// payloadLen still counts the header.
func NewPlan(r *raster.Raster, payloadLen int) Plan {
	p := Plan{
		Width:         r.Width,
		Height:        r.Height,
		EligibleBytes: stego.EligibleByteCount(r),
		CapacityBits:  stego.CapacityBits(r),
		StreamBits:    stego.StreamBits(payloadLen),
		MaxPayload:    stego.MaxPayload(r),
	}
	if p.CapacityBits > 0 {
		p.Utilization = float64(p.StreamBits) * 100 / float64(p.CapacityBits)
	}
	return p
}

// Fits reports whether the stream fits the raster.
func (p Plan) Fits() bool {
	return p.StreamBits <= p.CapacityBits
}

// CarrierDimensions returns the smallest width×height raster, width fixed,
// that can carry a payloadLen-byte stream.
func CarrierDimensions(payloadLen, width int) (int, int) {
	if width < 1 {
		width = DefaultWidth
	}
	bits := stego.StreamBits(payloadLen)
	pixels := (bits + stego.ChannelsPerPixel - 1) / stego.ChannelsPerPixel
	height := int((pixels + uint64(width) - 1) / uint64(width))
	if height < 1 {
		height = 1
	}
	return width, height
}

// NoiseCarrier builds an opaque carrier of random colors sized for a
// payloadLen-byte stream.
func NoiseCarrier(payloadLen, width int, rnd io.Reader) (*raster.Raster, error) {
	w, h := CarrierDimensions(payloadLen, width)
	r := raster.Blank(w, h)
	if _, err := io.ReadFull(rnd, r.Pix); err != nil {
		return nil, fmt.Errorf("generating carrier: %w", err)
	}
	for i := raster.BytesPerPixel - 1; i < len(r.Pix); i += raster.BytesPerPixel {
		r.Pix[i] = 0xFF
	}
	return r, nil
}

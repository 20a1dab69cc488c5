package grad

import (
	"fmt"
)

// Compute runs the backward pass for every batch element of in and writes
// the gradients to out. out is zeroed first, so it holds exactly the sum
// of all per-pixel contributions on success.
//
// Batches are dispatched one after another; each Accumulate call returns
// only after the device has finished. If any batch fails, Compute zeroes
// out again and returns an error wrapping both ErrDeviceFailure and the
// device's error: a partially accumulated gradient is never returned.
func Compute(dev Device, cfg *Config, in *Inputs, out *Outputs) error {
	batch, err := cfg.checkInputs(in)
	if err != nil {
		return err
	}
	if err := cfg.checkOutputs(out, batch, in.TextureHeight, in.TextureWidth); err != nil {
		return err
	}

	log := Logger()
	log.Debug("grad: compute", "batches", batch, "cameras", cfg.NumCameras(),
		"width", cfg.width, "height", cfg.height, "vertices", cfg.numVertices, "mode", cfg.mode)

	out.zero()
	for b := 0; b < batch; b++ {
		view := bindBatch(cfg, in, out, b)
		if err := dev.Accumulate(cfg, view); err != nil {
			out.zero()
			return fmt.Errorf("%w: Accumulate(batch=%v): %w", ErrDeviceFailure, b, err)
		}
		log.Debug("grad: batch accumulated", "batch", b)
	}
	return nil
}

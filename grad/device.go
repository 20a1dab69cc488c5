package grad

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Device represents a kernel execution backend.
type Device interface {
	// Accumulate runs the kernel over every camera and pixel of view and
	// returns once all contributions have been added to its gradient
	// slices.
	Accumulate(cfg *Config, view *BatchView) error
	// Close releases any device resources.
	Close()
}

// DefaultChunkSize is the number of pixels one CPU task processes.
const DefaultChunkSize = 4096

// CPUDevice runs the kernel on goroutines. The zero value runs one task at
// a time; NewCPUDevice sets the task limit.
type CPUDevice struct {
	// ChunkSize is the number of pixels per task; DefaultChunkSize when
	// not positive.
	ChunkSize int

	workers int
}

// CPUDevice implements the Device interface.
var _ Device = &CPUDevice{}

// NewCPUDevice returns a device running at most workers tasks at once.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewCPUDevice(workers int) *CPUDevice {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &CPUDevice{ChunkSize: DefaultChunkSize, workers: workers}
}

// Workers returns the task limit.
func (d *CPUDevice) Workers() int { return d.workers }

// Accumulate splits the cameras×pixels range of view into chunks. The
// first failing chunk stops the others from starting; a panicking chunk
// is recovered and reported as an error.
func (d *CPUDevice) Accumulate(cfg *Config, view *BatchView) error {
	pixels := cfg.PixelsPerCamera()
	total := cfg.NumCameras() * pixels

	chunk := d.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(max(d.workers, 1))
	for start := 0; start < total; start += chunk {
		end := min(start+chunk, total)
		g.Go(func() (err error) {
			if ctx.Err() != nil {
				return nil
			}
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("kernel panic in pixels [%v,%v) of batch %v: %v", start, end, view.Batch, r)
				}
			}()
			for q := start; q < end; q++ {
				if err := accumulatePixel(cfg, view, q/pixels, q%pixels); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Close is a no-op.
func (d *CPUDevice) Close() {}

package grad

import (
	"errors"
	"fmt"
	"math"
	"time"
	"unsafe"

	"github.com/cogentcore/webgpu/wgpu"
)

// DefaultMapTimeout bounds the wait for the gradient readback of one batch.
const DefaultMapTimeout = 30 * time.Second

// maxWorkgroupsPerDim is the WebGPU default limit on each dispatch dimension.
const maxWorkgroupsPerDim = 65535

// WebGPUDevice runs the kernel as a WebGPU compute shader. Gradients are
// accumulated on the GPU with compare-and-swap float adds and read back
// into the batch view once the dispatch completes.
//
// A WebGPUDevice is not safe for concurrent use.
type WebGPUDevice struct {
	MapTimeout time.Duration

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	bindGroupLayout *wgpu.BindGroupLayout
	pipeline        *wgpu.ComputePipeline
}

// WebGPUDevice implements the Device interface.
var _ Device = &WebGPUDevice{}

// NewWebGPUDevice requests an adapter and device and compiles the
// gradient pipeline.
func NewWebGPUDevice() (*WebGPUDevice, error) {
	d := &WebGPUDevice{MapTimeout: DefaultMapTimeout}
	if err := d.init(); err != nil {
		d.Close()
		return nil, err
	}
	Logger().Info("grad: webgpu device ready")
	return d, nil
}

func (d *WebGPUDevice) init() error {
	d.instance = wgpu.CreateInstance(nil)
	if d.instance == nil {
		return errors.New("failed to create wgpu instance")
	}

	var err error
	d.adapter, err = d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{})
	if err != nil {
		return fmt.Errorf("failed to request wgpu adapter: %w", err)
	}
	d.device, err = d.adapter.RequestDevice(nil)
	if err != nil {
		return fmt.Errorf("failed to request wgpu device: %w", err)
	}
	d.queue = d.device.GetQueue()

	shaderModule, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: "rastergrad backward",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: gradShader,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create shader module: %w", err)
	}
	defer shaderModule.Release()

	storage := func(binding uint32, typ wgpu.BufferBindingType) wgpu.BindGroupLayoutEntry {
		return wgpu.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: wgpu.ShaderStageCompute,
			Buffer:     wgpu.BufferBindingLayout{Type: typ},
		}
	}
	d.bindGroupLayout, err = d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "rastergrad bind group layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			storage(0, wgpu.BufferBindingTypeReadOnlyStorage),
			storage(1, wgpu.BufferBindingTypeReadOnlyStorage),
			storage(2, wgpu.BufferBindingTypeReadOnlyStorage),
			storage(3, wgpu.BufferBindingTypeStorage),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create bind group layout: %w", err)
	}

	pipelineLayout, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "rastergrad pipeline layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{d.bindGroupLayout},
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline layout: %w", err)
	}
	defer pipelineLayout.Release()

	d.pipeline, err = d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  "rastergrad pipeline",
		Layout: pipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     shaderModule,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create compute pipeline: %w", err)
	}
	return nil
}

// packedBatch is one batch laid out for the shader's bindings.
type packedBatch struct {
	params []uint32
	data   []float32
	ids    []int32

	// Offsets of each gradient in the grads binding and its total length.
	posGrad, colorGrad, texGrad, shGrad, gradLen int
	total                                       int
}

// pack lays out view for the shader. Face triples are validated on the
// host so the GPU and CPU devices fail on exactly the same inputs.
func (d *WebGPUDevice) pack(cfg *Config, view *BatchView) (*packedBatch, error) {
	pixels := cfg.PixelsPerCamera()
	total := cfg.NumCameras() * pixels

	faceOf := make([]int32, total)
	for q := range faceOf {
		tri, covered := faceAt(view.FaceIDs, q)
		if !covered {
			continue
		}
		f, err := cfg.resolveFace(tri, q/pixels, q%pixels)
		if err != nil {
			return nil, err
		}
		faceOf[q] = int32(max(f, 0))
	}

	p := &packedBatch{params: make([]uint32, numParams), total: total}
	appendData := func(param int, vals ...float32) {
		p.params[param] = uint32(len(p.data))
		p.data = append(p.data, vals...)
	}
	appendData(paramGradOff, view.RenderGrad...)
	appendData(paramPosOff, view.VertexPositions...)
	appendData(paramColorOff, view.VertexColors...)
	appendData(paramTexOff, view.Texture.Data...)
	appendData(paramSHOff, view.SHCoefficients...)
	appendData(paramNormalOff, view.VertexNormals...)
	appendData(paramBaryOff, view.Barycentrics...)
	p.params[paramUVOff] = uint32(len(p.data))
	if topo := cfg.Topology(); topo.HasTexCoords() {
		for f := 0; f < topo.NumFaces(); f++ {
			for _, uv := range topo.TexCoords(f) {
				p.data = append(p.data, uv[0], uv[1])
			}
		}
	}
	p.params[paramCameraOff] = uint32(len(p.data))
	for i := 0; i < cfg.NumCameras(); i++ {
		ext := cfg.Camera(i).Extrinsics()
		p.data = append(p.data, ext[:]...)
	}

	p.ids = make([]int32, 0, len(view.FaceIDs)+total)
	p.ids = append(p.ids, view.FaceIDs...)
	p.params[paramFaceOff] = uint32(len(p.ids))
	p.ids = append(p.ids, faceOf...)

	p.posGrad = 0
	p.colorGrad = p.posGrad + len(view.VertexPositionGrad)
	p.texGrad = p.colorGrad + len(view.VertexColorGrad)
	p.shGrad = p.texGrad + len(view.TextureGrad)
	p.gradLen = p.shGrad + len(view.SHCoefficientGrad)
	p.params[paramPosGradOff] = uint32(p.posGrad)
	p.params[paramColorGradOff] = uint32(p.colorGrad)
	p.params[paramTexGradOff] = uint32(p.texGrad)
	p.params[paramSHGradOff] = uint32(p.shGrad)

	p.params[paramWidth] = uint32(cfg.Width())
	p.params[paramHeight] = uint32(cfg.Height())
	p.params[paramCameras] = uint32(cfg.NumCameras())
	p.params[paramVertices] = uint32(cfg.NumVertices())
	p.params[paramTexWidth] = uint32(view.Texture.Width)
	p.params[paramTexHeight] = uint32(view.Texture.Height)
	p.params[paramMode] = uint32(cfg.Mode())
	if cfg.FaceNormalGradients() {
		p.params[paramFaceNormals] = 1
	}
	return p, nil
}

// workgroups returns the dispatch grid covering total invocations.
func workgroups(total int) (x, y uint32) {
	groups := (total + workgroupSize - 1) / workgroupSize
	if groups <= maxWorkgroupsPerDim {
		return uint32(max(groups, 1)), 1
	}
	return maxWorkgroupsPerDim, uint32((groups + maxWorkgroupsPerDim - 1) / maxWorkgroupsPerDim)
}

// Accumulate dispatches the gradient shader over view and adds the result
// to view's gradient slices.
func (d *WebGPUDevice) Accumulate(cfg *Config, view *BatchView) error {
	p, err := d.pack(cfg, view)
	if err != nil {
		return err
	}
	wgX, wgY := workgroups(p.total)
	p.params[paramDispatchWidth] = wgX * workgroupSize

	var release []func()
	defer func() {
		for _, r := range release {
			r()
		}
	}()
	newBuffer := func(label string, contents []byte) (*wgpu.Buffer, error) {
		buf, err := d.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    label,
			Contents: contents,
			Usage:    wgpu.BufferUsageStorage,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %v buffer: %w", label, err)
		}
		release = append(release, buf.Release)
		return buf, nil
	}

	paramsBuf, err := newBuffer("params", wgpu.ToBytes(p.params))
	if err != nil {
		return err
	}
	dataBuf, err := newBuffer("data", wgpu.ToBytes(p.data))
	if err != nil {
		return err
	}
	idsBuf, err := newBuffer("ids", wgpu.ToBytes(p.ids))
	if err != nil {
		return err
	}
	gradSize := uint64(p.gradLen * 4)
	gradBuf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "grads",
		Size:  gradSize,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("failed to create grads buffer: %w", err)
	}
	release = append(release, gradBuf.Release)
	readBuf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "grads readback",
		Size:  gradSize,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("failed to create read buffer: %w", err)
	}
	release = append(release, readBuf.Release)

	bindGroup, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "rastergrad bind group",
		Layout: d.bindGroupLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: paramsBuf, Size: paramsBuf.GetSize()},
			{Binding: 1, Buffer: dataBuf, Size: dataBuf.GetSize()},
			{Binding: 2, Buffer: idsBuf, Size: idsBuf.GetSize()},
			{Binding: 3, Buffer: gradBuf, Size: gradSize},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create bind group: %w", err)
	}
	release = append(release, bindGroup.Release)

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(d.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(wgX, wgY, 1)
	pass.End()
	pass.Release()

	encoder.CopyBufferToBuffer(gradBuf, 0, readBuf, 0, gradSize)
	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		encoder.Release()
		return err
	}
	d.queue.Submit(commandBuffer)
	commandBuffer.Release()
	encoder.Release()

	grads, err := d.readback(readBuf, p.gradLen)
	if err != nil {
		return err
	}
	addInto(view.VertexPositionGrad, grads[p.posGrad:p.colorGrad])
	addInto(view.VertexColorGrad, grads[p.colorGrad:p.texGrad])
	addInto(view.TextureGrad, grads[p.texGrad:p.shGrad])
	addInto(view.SHCoefficientGrad, grads[p.shGrad:p.gradLen])
	Logger().Debug("grad: webgpu batch done", "batch", view.Batch, "workgroups", wgX*wgY)
	return nil
}

// readback maps buf and decodes n floats from it.
func (d *WebGPUDevice) readback(buf *wgpu.Buffer, n int) ([]float32, error) {
	size := uint64(n * 4)
	done := make(chan struct{})
	var mapStatus wgpu.BufferMapAsyncStatus
	buf.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		mapStatus = status
		close(done)
	})

	timeout := d.MapTimeout
	if timeout <= 0 {
		timeout = DefaultMapTimeout
	}
	deadline := time.Now().Add(timeout)
poll:
	for {
		d.device.Poll(false, nil)
		select {
		case <-done:
			break poll
		default:
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out after %v waiting for gradient readback", timeout)
		}
	}
	if mapStatus != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("failed to map read buffer: %v", mapStatus)
	}

	raw := buf.GetMappedRange(0, uint(size))
	bits := unsafe.Slice((*uint32)(unsafe.Pointer(&raw[0])), n)
	out := make([]float32, n)
	for i, b := range bits {
		out[i] = math.Float32frombits(b)
	}
	buf.Unmap()
	return out, nil
}

func addInto(dst, src []float32) {
	for i, v := range src {
		dst[i] += v
	}
}

// Close releases the pipeline and the GPU handles.
func (d *WebGPUDevice) Close() {
	if d.pipeline != nil {
		d.pipeline.Release()
		d.pipeline = nil
	}
	if d.bindGroupLayout != nil {
		d.bindGroupLayout.Release()
		d.bindGroupLayout = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

// ShaderSource returns the WGSL source of the gradient kernel.
func ShaderSource() string { return gradShader }

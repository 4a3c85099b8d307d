package webgpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
)

// localsPerChunk is the number of draws one locals buffer holds.
const localsPerChunk = 1024

// localsChunk is a uniform buffer of per-draw locals addressed by dynamic offset. Locals are
// staged on the CPU during the frame and uploaded once before submission.
type localsChunk struct {
	buffer  *wgpu.Buffer
	stride  uint64
	size    uint64
	used    int
	staging []byte
	groups  map[*wgpu.BindGroupLayout]*wgpu.BindGroup
}

// allocLocals stages one draw's locals and returns the chunk and dynamic offset holding them.
// A new chunk is created when every existing one is full.
func (d *device) allocLocals(locals *model.GPULocals) (*localsChunk, uint32, error) {
	var chunk *localsChunk
	for _, c := range d.locals {
		if c.used < localsPerChunk {
			chunk = c
			break
		}
	}
	if chunk == nil {
		size := alignUp(uint64(locals.Size()), uniformAlignment)
		stride := alignUp(size, d.uniformAlign)
		buf, err := d.dev.CreateBuffer(&wgpu.BufferDescriptor{
			Label: fmt.Sprintf("locals %d", len(d.locals)),
			Size:  stride * localsPerChunk,
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("webgpu: locals buffer: %w: %w", backend.ErrOutOfMemory, err)
		}
		chunk = &localsChunk{
			buffer:  buf,
			stride:  stride,
			size:    size,
			staging: make([]byte, stride*localsPerChunk),
			groups:  make(map[*wgpu.BindGroupLayout]*wgpu.BindGroup),
		}
		d.locals = append(d.locals, chunk)
		d.logger.Debug("webgpu locals chunk allocated", "chunks", len(d.locals), "stride", stride)
	}
	offset := uint64(chunk.used) * chunk.stride
	copy(chunk.staging[offset:], locals.Marshal())
	chunk.used++
	return chunk, uint32(offset), nil
}

// bindGroup returns the chunk's bind group for a locals layout, creating it on first use.
func (c *localsChunk) bindGroup(d *device, layout *wgpu.BindGroupLayout, binding uint32) (*wgpu.BindGroup, error) {
	if bg, ok := c.groups[layout]; ok {
		return bg, nil
	}
	bg, err := d.dev.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "locals",
		Layout: layout,
		Entries: []wgpu.BindGroupEntry{{
			Binding: binding,
			Buffer:  c.buffer,
			Size:    c.size,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: locals bind group: %w", err)
	}
	c.groups[layout] = bg
	return bg, nil
}

// flush uploads the staged locals and empties the chunk for the next frame.
func (c *localsChunk) flush(q *wgpu.Queue) {
	if c.used > 0 {
		q.WriteBuffer(c.buffer, 0, c.staging[:uint64(c.used)*c.stride])
	}
	c.used = 0
}

func (c *localsChunk) reset() {
	c.used = 0
}

func (c *localsChunk) release() {
	for _, bg := range c.groups {
		bg.Release()
	}
	clear(c.groups)
	c.buffer.Release()
}

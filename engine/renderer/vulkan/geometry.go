package vulkan

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// Geometry is a mesh living inside the renderer wide vertex and index
// buffers, drawn through its own slot of the indirect draw buffer.
type Geometry struct {
	Name string

	VertexOffset uint32
	VertexCount  uint32
	IndexOffset  uint32
	IndexCount   uint32
	DrawSlot     uint32

	Material  uint32
	Transform mgl32.Mat4

	pipeline *GraphicsPipeline
}

// UploadGeometry reserves space for cfg in the shared buffers, copies it to
// the GPU and writes its indirect draw command. It waits for the device to go
// idle and must not be called while a frame is being recorded.
func (vr *VulkanRenderer) UploadGeometry(cfg metadata.GeometryConfig) (*Geometry, error) {
	if len(cfg.Vertices) == 0 || len(cfg.Indices) == 0 {
		return nil, errors.Newf("geometry %q has no vertices or no indices", cfg.Name)
	}
	for _, index := range cfg.Indices {
		if int(index) >= len(cfg.Vertices) {
			return nil, errors.Newf("geometry %q index %d is past its %d vertices", cfg.Name, index, len(cfg.Vertices))
		}
	}
	if cfg.Material >= metadata.MaterialSlotCount {
		return nil, errors.Newf("geometry %q uses material slot %d, only %d exist", cfg.Name, cfg.Material, metadata.MaterialSlotCount)
	}

	p, err := vr.MeshPipeline(cfg.Pipeline)
	if err != nil {
		return nil, errors.Wrapf(err, "geometry %q", cfg.Name)
	}

	g := &Geometry{
		Name:        cfg.Name,
		VertexCount: uint32(len(cfg.Vertices)),
		IndexCount:  uint32(len(cfg.Indices)),
		Material:    cfg.Material,
		Transform:   mgl32.Ident4(),
		pipeline:    p,
	}

	var ok bool
	if g.VertexOffset, ok = vr.vertices.Reserve(g.VertexCount); !ok {
		return nil, errors.Newf("vertex buffer cannot fit %d more vertices (%d of %d used)",
			g.VertexCount, vr.vertices.UsedElements(), vr.vertices.ElementCount())
	}
	if g.IndexOffset, ok = vr.indices.Reserve(g.IndexCount); !ok {
		vr.vertices.Free(g.VertexOffset, g.VertexCount)
		return nil, errors.Newf("index buffer cannot fit %d more indices (%d of %d used)",
			g.IndexCount, vr.indices.UsedElements(), vr.indices.ElementCount())
	}
	if g.DrawSlot, ok = vr.drawCommands.Reserve(1); !ok {
		vr.vertices.Free(g.VertexOffset, g.VertexCount)
		vr.indices.Free(g.IndexOffset, g.IndexCount)
		return nil, errors.Newf("draw command buffer is full (%d slots)", vr.drawCommands.ElementCount())
	}

	var vertexData []byte
	vertexData, err = binary.Append(nil, binary.LittleEndian, cfg.Vertices)
	if err == nil {
		err = vr.uploadBuffer(vr.vertices.Buffer(), vr.vertices.ByteOffset(g.VertexOffset), vertexData)
	}
	if err == nil {
		indexData, _ := binary.Append(nil, binary.LittleEndian, cfg.Indices)
		err = vr.uploadBuffer(vr.indices.Buffer(), vr.indices.ByteOffset(g.IndexOffset), indexData)
	}
	if err != nil {
		vr.releaseGeometry(g)
		return nil, errors.Wrapf(err, "failed to upload geometry %q", cfg.Name)
	}

	vr.writeDrawCommand(g)
	vr.geometries = append(vr.geometries, g)
	core.LogDebug("geometry %s uploaded: %d vertices at %d, %d indices at %d, draw slot %d",
		g.Name, g.VertexCount, g.VertexOffset, g.IndexCount, g.IndexOffset, g.DrawSlot)
	return g, nil
}

// DestroyGeometry returns the ranges of g to the shared buffers. In flight
// frames may still read them, so the device is drained first.
func (vr *VulkanRenderer) DestroyGeometry(g *Geometry) error {
	idx := -1
	for i, candidate := range vr.geometries {
		if candidate == g {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errors.Newf("geometry %q is not owned by this renderer", g.Name)
	}
	if err := vr.context.WaitIdle(); err != nil {
		return err
	}
	vr.geometries = append(vr.geometries[:idx], vr.geometries[idx+1:]...)
	vr.releaseGeometry(g)
	return nil
}

func (vr *VulkanRenderer) releaseGeometry(g *Geometry) {
	vr.vertices.Free(g.VertexOffset, g.VertexCount)
	vr.indices.Free(g.IndexOffset, g.IndexCount)
	vr.drawCommands.Free(g.DrawSlot, 1)
}

// writeDrawCommand fills the VkDrawIndexedIndirectCommand of g. The draw
// buffer is host visible, so the write is seen by the next submission.
func (vr *VulkanRenderer) writeDrawCommand(g *Geometry) {
	cmd := vr.drawCommands.Buffer().Mapped()[vr.drawCommands.ByteOffset(g.DrawSlot):]
	binary.LittleEndian.PutUint32(cmd[0:], g.IndexCount)
	// instanceCount
	binary.LittleEndian.PutUint32(cmd[4:], 1)
	binary.LittleEndian.PutUint32(cmd[8:], g.IndexOffset)
	// vertexOffset is signed, gl_VertexIndex includes it.
	binary.LittleEndian.PutUint32(cmd[12:], uint32(int32(g.VertexOffset)))
	binary.LittleEndian.PutUint32(cmd[16:], 0)
}

// uploadBuffer copies data into dst at dstOffset through the staging buffer of
// the next frame slot, flushing whenever the staging buffer fills up. The
// device is idle during immediate uploads, so borrowing the slot is safe.
func (vr *VulkanRenderer) uploadBuffer(dst *VulkanBuffer, dstOffset uint64, data []byte) error {
	if dstOffset+uint64(len(data)) > dst.Size {
		return errors.Newf("upload of %d bytes at %d overruns a %d byte buffer", len(data), dstOffset, dst.Size)
	}
	if err := vr.context.WaitIdle(); err != nil {
		return err
	}

	rc := vr.context
	device := rc.Device
	staging := vr.frames[vr.frameContext.Slot()].Staging
	staging.Reset()
	defer staging.Reset()

	cb, err := AllocateAndBeginSingleUse(rc, device.GraphicsCommandPool)
	if err != nil {
		return err
	}
	for len(data) > 0 {
		offset, granted := staging.RequestSpace(uint64(len(data)))
		if granted == 0 {
			if err := cb.EndSingleUse(rc, device.GraphicsCommandPool, device.GraphicsQueue, uint32(device.GraphicsQueueIndex)); err != nil {
				return err
			}
			staging.Reset()
			if cb, err = AllocateAndBeginSingleUse(rc, device.GraphicsCommandPool); err != nil {
				return err
			}
			continue
		}
		if err := staging.Write(offset, data[:granted]); err != nil {
			cb.Free(rc, device.GraphicsCommandPool)
			return err
		}
		CopyBuffer(cb, staging.Buffer(), offset, dst, dstOffset, granted)
		data = data[granted:]
		dstOffset += granted
	}
	return cb.EndSingleUse(rc, device.GraphicsCommandPool, device.GraphicsQueue, uint32(device.GraphicsQueueIndex))
}

// AcquireMaterial reserves a material slot and stores tint in it.
func (vr *VulkanRenderer) AcquireMaterial(tint [4]float32) (uint32, error) {
	slot, ok := vr.materials.Reserve(1)
	if !ok {
		return 0, errors.Newf("all %d material slots are in use", vr.materials.ElementCount())
	}
	if err := vr.SetMaterial(slot, tint); err != nil {
		vr.materials.Free(slot, 1)
		return 0, err
	}
	return slot, nil
}

// SetMaterial overwrites the tint of slot. Frames already submitted may see
// the new value.
func (vr *VulkanRenderer) SetMaterial(slot uint32, tint [4]float32) error {
	if slot >= vr.materials.ElementCount() {
		return errors.Newf("material slot %d out of range", slot)
	}
	data, err := binary.Append(nil, binary.LittleEndian, tint)
	if err != nil {
		return err
	}
	copy(vr.materials.Buffer().Mapped()[vr.materials.ByteOffset(slot):], data)
	return nil
}

func (vr *VulkanRenderer) ReleaseMaterial(slot uint32) {
	vr.materials.Free(slot, 1)
}

// meshPushConstants is the layout of the mesh push constant block.
func meshPushConstants(g *Geometry) []byte {
	data := make([]byte, 0, meshPushConstantSize)
	data, _ = binary.Append(data, binary.LittleEndian, g.Transform)
	data = binary.LittleEndian.AppendUint32(data, g.Material)
	return append(data, make([]byte, meshPushConstantSize-len(data))...)
}

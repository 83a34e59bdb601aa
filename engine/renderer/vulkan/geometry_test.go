package vulkan

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/prism/engine/renderer/allocator"
)

func hostBuffer(elementSize uint64, count uint32) *SharedBuffer {
	b := &VulkanBuffer{Size: elementSize * uint64(count), mapped: make([]byte, elementSize*uint64(count))}
	return allocator.NewDynamicBuffer(b, elementSize, count)
}

func TestWriteDrawCommand(t *testing.T) {
	vr := &VulkanRenderer{drawCommands: hostBuffer(drawCommandSize, 4)}
	g := &Geometry{IndexCount: 36, IndexOffset: 120, VertexOffset: 48, DrawSlot: 2}
	vr.writeDrawCommand(g)

	cmd := vr.drawCommands.Buffer().Mapped()[2*drawCommandSize:]
	want := []uint32{36, 1, 120, 48, 0}
	for i, w := range want {
		if got := binary.LittleEndian.Uint32(cmd[i*4:]); got != w {
			t.Errorf("word %d = %d, want %d", i, got, w)
		}
	}
	for i, b := range vr.drawCommands.Buffer().Mapped()[:2*drawCommandSize] {
		if b != 0 {
			t.Fatalf("byte %d before the slot was written", i)
		}
	}
}

func TestMaterials(t *testing.T) {
	vr := &VulkanRenderer{materials: hostBuffer(materialSize, 2)}

	tint := [4]float32{1, 0.5, 0.25, 1}
	slot, err := vr.AcquireMaterial(tint)
	if err != nil {
		t.Fatalf("AcquireMaterial: %v", err)
	}
	data := vr.materials.Buffer().Mapped()[vr.materials.ByteOffset(slot):]
	for i, want := range tint {
		if got := math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])); got != want {
			t.Errorf("channel %d = %v, want %v", i, got, want)
		}
	}

	if _, err := vr.AcquireMaterial(tint); err != nil {
		t.Fatalf("second AcquireMaterial: %v", err)
	}
	if _, err := vr.AcquireMaterial(tint); err == nil {
		t.Fatal("expected an error once every slot is taken")
	}

	vr.ReleaseMaterial(slot)
	again, err := vr.AcquireMaterial([4]float32{})
	if err != nil {
		t.Fatalf("AcquireMaterial after release: %v", err)
	}
	if again != slot {
		t.Errorf("reacquired slot = %d, want %d", again, slot)
	}

	if err := vr.SetMaterial(5, tint); err == nil {
		t.Error("expected an out of range error")
	}
}

func TestMeshPushConstants(t *testing.T) {
	g := &Geometry{Material: 7, Transform: mgl32.Translate3D(1, 2, 3)}
	data := meshPushConstants(g)
	if len(data) != meshPushConstantSize {
		t.Fatalf("len = %d, want %d", len(data), meshPushConstantSize)
	}
	// Column major, translation lives in the last column.
	for i, want := range []float32{1, 2, 3} {
		if got := math.Float32frombits(binary.LittleEndian.Uint32(data[(12+i)*4:])); got != want {
			t.Errorf("translation[%d] = %v, want %v", i, got, want)
		}
	}
	if got := binary.LittleEndian.Uint32(data[64:]); got != 7 {
		t.Errorf("material = %d, want 7", got)
	}
}

func TestOverlayPushConstants(t *testing.T) {
	transform := mgl32.Translate3D(-0.5, 0.25, 0).Mul4(mgl32.Scale3D(0.1, 0.2, 1))
	push, err := overlayPushConstants(transform)
	if err != nil {
		t.Fatal(err)
	}
	if len(push) != overlayPushConstantSize {
		t.Fatalf("len = %d, want %d", len(push), overlayPushConstantSize)
	}
	for i, want := range transform {
		if got := math.Float32frombits(binary.LittleEndian.Uint32(push[i*4:])); got != want {
			t.Errorf("element %d = %v, want %v", i, got, want)
		}
	}
}

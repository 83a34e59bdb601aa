package testbed

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Camera is a free camera positioned with Euler angles (pitch, yaw, roll).
// The view matrix is rebuilt lazily after a change.
type Camera struct {
	position mgl32.Vec3
	rotation mgl32.Vec3
	dirty    bool
	view     mgl32.Mat4
}

func NewCamera() *Camera {
	c := &Camera{}
	c.Reset()
	return c
}

func (c *Camera) Reset() {
	c.position = mgl32.Vec3{}
	c.rotation = mgl32.Vec3{}
	c.view = mgl32.Ident4()
	c.dirty = false
}

func (c *Camera) Position() mgl32.Vec3 {
	return c.position
}

func (c *Camera) SetPosition(position mgl32.Vec3) {
	c.position = position
	c.dirty = true
}

// Roll rotates the camera around its viewing axis by amount radians.
func (c *Camera) Roll(amount float32) {
	c.rotation[2] += amount
	c.dirty = true
}

func (c *Camera) View() mgl32.Mat4 {
	if c.dirty {
		rotation := mgl32.HomogRotate3DX(c.rotation.X()).
			Mul4(mgl32.HomogRotate3DY(c.rotation.Y())).
			Mul4(mgl32.HomogRotate3DZ(c.rotation.Z()))
		translation := mgl32.Translate3D(c.position.X(), c.position.Y(), c.position.Z())
		c.view = rotation.Mul4(translation).Inv()
		c.dirty = false
	}
	return c.view
}

// Right is the camera x axis in world space.
func (c *Camera) Right() mgl32.Vec3 {
	view := c.View()
	return mgl32.Vec3{view.At(0, 0), view.At(0, 1), view.At(0, 2)}.Normalize()
}

func (c *Camera) MoveRight(amount float32) {
	c.position = c.position.Add(c.Right().Mul(amount))
	c.dirty = true
}

package common

import (
	"encoding/binary"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Epsilon is the length below which a vector is treated as zero.
const Epsilon float32 = 1e-6

// Perspective creates a right-handed perspective projection matrix for WebGPU clip space,
// where depth maps to [0, 1] (mgl32.Perspective targets the GL [-1, 1] range).
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - near: near clipping plane distance (must be > 0)
//   - far: far clipping plane distance (must be > near)
//
// Returns:
//   - mgl32.Mat4: the projection matrix (column-major)
func Perspective(fovY, aspect, near, far float32) mgl32.Mat4 {
	f := 1.0 / math32.Tan(fovY/2.0)
	if aspect == 0 {
		aspect = 1
	}

	var out mgl32.Mat4
	out[0] = f / aspect
	out[5] = f
	out[10] = far / (near - far)
	out[11] = -1.0
	out[14] = (near * far) / (near - far)
	return out
}

// Ortho creates a right-handed orthographic projection matrix for WebGPU clip space,
// where depth maps to [0, 1].
//
// Parameters:
//   - left, right, bottom, top: the view volume extents
//   - near, far: the depth range along -Z in view space
//
// Returns:
//   - mgl32.Mat4: the projection matrix (column-major)
func Ortho(left, right, bottom, top, near, far float32) mgl32.Mat4 {
	rl := right - left
	tb := top - bottom
	fn := far - near

	var out mgl32.Mat4
	out[0] = 2 / rl
	out[5] = 2 / tb
	out[10] = -1 / fn
	out[12] = -(right + left) / rl
	out[13] = -(top + bottom) / tb
	out[14] = -near / fn
	out[15] = 1
	return out
}

// BuildModelMatrix constructs a model matrix from position, Euler rotation and scale.
// The rotation order is Y * X * Z (yaw-pitch-roll).
//
// Parameters:
//   - pos: translation in world space
//   - rot: rotation angles in radians around X, Y and Z
//   - scale: scale factors along each axis
//
// Returns:
//   - mgl32.Mat4: T * Ry * Rx * Rz * S
func BuildModelMatrix(pos, rot, scale mgl32.Vec3) mgl32.Mat4 {
	r := mgl32.HomogRotate3DY(rot[1]).
		Mul4(mgl32.HomogRotate3DX(rot[0])).
		Mul4(mgl32.HomogRotate3DZ(rot[2]))
	return mgl32.Translate3D(pos[0], pos[1], pos[2]).
		Mul4(r).
		Mul4(mgl32.Scale3D(scale[0], scale[1], scale[2]))
}

// Normalize3 returns v scaled to unit length. A zero-length vector is returned unchanged
// instead of producing NaN/Inf components.
//
// Parameters:
//   - v: the vector to normalize
//
// Returns:
//   - mgl32.Vec3: the normalized vector, or v when |v| is below Epsilon
func Normalize3(v mgl32.Vec3) mgl32.Vec3 {
	l := v.Len()
	if l < Epsilon {
		return v
	}
	return v.Mul(1 / l)
}

// StableUp picks an up vector that is not parallel to the given view direction.
//
// Parameters:
//   - dir: the normalized view direction
//
// Returns:
//   - mgl32.Vec3: world Y, or world Z when dir is nearly vertical
func StableUp(dir mgl32.Vec3) mgl32.Vec3 {
	if math32.Abs(dir[1]) > 0.99 {
		return mgl32.Vec3{0, 0, 1}
	}
	return mgl32.Vec3{0, 1, 0}
}

// LookAt builds a view matrix looking from eye toward center.
// A degenerate eye == center or an up vector parallel to the view direction is corrected
// so the result never contains NaN.
//
// Parameters:
//   - eye: camera position
//   - center: point being looked at
//   - up: preferred up vector
//
// Returns:
//   - mgl32.Mat4: the view matrix
func LookAt(eye, center, up mgl32.Vec3) mgl32.Mat4 {
	dir := center.Sub(eye)
	if dir.Len() < Epsilon {
		dir = mgl32.Vec3{0, 0, -1}
		center = eye.Add(dir)
	}
	dir = dir.Normalize()
	if up.Len() < Epsilon || dir.Cross(Normalize3(up)).Len() < 1e-3 {
		up = StableUp(dir)
	}
	return mgl32.LookAtV(eye, center, up)
}

// TransformPoint transforms a point (w = 1) by m and performs the perspective divide.
//
// Parameters:
//   - m: the transform
//   - p: the point
//
// Returns:
//   - mgl32.Vec3: the transformed point
//   - float32: the clip-space w before the divide
func TransformPoint(m mgl32.Mat4, p mgl32.Vec3) (mgl32.Vec3, float32) {
	c := m.Mul4x1(p.Vec4(1))
	if c[3] == 0 {
		return c.Vec3(), 0
	}
	return c.Vec3().Mul(1 / c[3]), c[3]
}

// PutFloat32s writes values little-endian into buf starting at offset.
// buf must hold at least offset + 4*len(values) bytes.
func PutFloat32s(buf []byte, offset int, values ...float32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[offset+i*4:], math32.Float32bits(v))
	}
}

// PutMat4 writes a column-major matrix (64 bytes) into buf at offset.
func PutMat4(buf []byte, offset int, m mgl32.Mat4) {
	PutFloat32s(buf, offset, m[:]...)
}

// Float32At reads a little-endian float32 from buf at offset.
func Float32At(buf []byte, offset int) float32 {
	return math32.Float32frombits(binary.LittleEndian.Uint32(buf[offset:]))
}

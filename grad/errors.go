package grad

import "errors"

var (
	// ErrInvalidConfig reports a construction-time configuration error.
	ErrInvalidConfig = errors.New("grad: invalid configuration")

	// ErrShape reports input or output buffers whose sizes disagree with
	// the configuration.
	ErrShape = errors.New("grad: buffer shape mismatch")

	// ErrDeviceFailure reports a failed kernel execution. The output
	// buffers of the call must not be used.
	ErrDeviceFailure = errors.New("grad: device execution failed")

	// ErrVertexIndex reports a face-id buffer entry outside the mesh.
	ErrVertexIndex = errors.New("grad: vertex index out of range")

	// ErrUnknownFace reports a face-id triple with no matching face in the
	// topology (textured mode needs the face to find texture coordinates).
	ErrUnknownFace = errors.New("grad: face not in topology")
)

package grad

import (
	"fmt"

	"github.com/gmlewis/rastergrad/jacobian"
	"github.com/gmlewis/rastergrad/shading"
	"github.com/go-gl/mathgl/mgl32"
)

// faceAt returns the vertex triple written at flat pixel q and whether the
// pixel is covered by a triangle.
func faceAt(ids []int32, q int) ([3]int32, bool) {
	o := q * FaceIDStride
	tri := [3]int32{ids[o], ids[o+1], ids[o+2]}
	return tri, tri[0] >= 0 && tri[1] >= 0 && tri[2] >= 0
}

// resolveFace validates a covered pixel's triple and, in textured mode,
// returns the index of its face in the topology (-1 otherwise).
func (c *Config) resolveFace(tri [3]int32, cam, pixel int) (int, error) {
	for _, v := range tri {
		if int(v) >= c.numVertices {
			return -1, fmt.Errorf("%w: pixel %v of camera %v references vertex %v, want [0,%v)",
				ErrVertexIndex, pixel, cam, v, c.numVertices)
		}
	}
	if c.mode != shading.Textured {
		return -1, nil
	}
	f, ok := c.topology.FaceIndex(tri)
	if !ok {
		return -1, fmt.Errorf("%w: pixel %v of camera %v hit %v", ErrUnknownFace, pixel, cam, tri)
	}
	return f, nil
}

// accumulatePixel adds the backward contribution of one pixel of one
// camera to the gradient slices of v. Background pixels touch nothing.
func accumulatePixel(c *Config, v *BatchView, cam, pixel int) error {
	q := cam*c.PixelsPerCamera() + pixel
	tri, covered := faceAt(v.FaceIDs, q)
	if !covered {
		return nil
	}
	face, err := c.resolveFace(tri, cam, pixel)
	if err != nil {
		return err
	}
	g := vec3At(v.RenderGrad, q)
	if g == (mgl32.Vec3{}) {
		return nil
	}

	camera := c.cameras[cam]
	bary := vec3At(v.Barycentrics, q)
	coeff := v.SHCoefficients[cam*shading.NumCoefficients : (cam+1)*shading.NumCoefficients]

	var pos, nrm [3]mgl32.Vec3
	var unnormalized mgl32.Vec3
	for k, id := range tri {
		pos[k] = vec3At(v.VertexPositions, int(id))
		nrm[k] = vec3At(v.VertexNormals, cam*c.numVertices+int(id))
		unnormalized = unnormalized.Add(nrm[k].Mul(bary[k]))
	}
	normal, norm := shading.Normalize(unnormalized)
	light := shading.Irradiance(normal, coeff)

	var albedo mgl32.Vec3
	var albedoWrtBary mgl32.Mat3
	var taps [4]shading.Tap
	switch c.mode {
	case shading.VertexColor:
		var col [3]mgl32.Vec3
		for k, id := range tri {
			col[k] = vec3At(v.VertexColors, int(id))
			albedo = albedo.Add(col[k].Mul(bary[k]))
		}
		albedoWrtBary = jacobian.AlbedoWrtBarycentric(col[0], col[1], col[2])
	case shading.Textured:
		uvs := c.topology.TexCoords(face)
		uv := uvs[0].Mul(bary[0]).Add(uvs[1].Mul(bary[1])).Add(uvs[2].Mul(bary[2]))
		var du, dv mgl32.Vec3
		albedo, du, dv = v.Texture.SampleGrad(uv)
		taps = v.Texture.Taps(uv)
		albedoWrtBary = jacobian.TexturedAlbedoWrtBarycentric(du, dv, uvs[0], uvs[1], uvs[2])
	}

	gAlbedo := shading.Hadamard(g, light)
	gLight := shading.Hadamard(g, albedo)

	// Albedo sources.
	switch c.mode {
	case shading.VertexColor:
		for k, id := range tri {
			atomicAdd3(v.VertexColorGrad, int(id), gAlbedo.Mul(bary[k]))
		}
	case shading.Textured:
		for _, tap := range taps {
			if tap.Weight != 0 {
				atomicAdd3(v.TextureGrad, tap.Index, gAlbedo.Mul(tap.Weight))
			}
		}
	}

	// Lighting coefficients.
	shGrad := v.SHCoefficientGrad[cam*shading.NumCoefficients : (cam+1)*shading.NumCoefficients]
	for ch := 0; ch < shading.NumChannels; ch++ {
		if gLight[ch] == 0 {
			continue
		}
		row := jacobian.IlluminationWrtCoefficients(normal, ch).LeftMul(gLight)
		for j, d := range row {
			atomicAdd(&shGrad[ch*shading.NumBasis+j], d)
		}
	}

	// Geometry: normal and albedo both depend on the barycentric weights,
	// which depend on the camera-space vertex positions.
	gNormal := jacobian.VecMat(gLight, jacobian.IlluminationWrtNormal(normal, coeff))
	gUnnormalized := jacobian.VecMat(gNormal, jacobian.NormalizationJacobian(unnormalized, norm))
	gBary := jacobian.VecMat(gUnnormalized, jacobian.NormalWrtBarycentric(nrm[0], nrm[1], nrm[2])).
		Add(jacobian.VecMat(gAlbedo, albedoWrtBary))

	var vcam [3]mgl32.Vec3
	for k := range pos {
		vcam[k] = camera.ToCamera(pos[k])
	}
	gCam := jacobian.BarycentricWrtVertexPositions(vcam[0], vcam[1], vcam[2], bary).LeftMul(gBary)

	var gPos [3]mgl32.Vec3
	for k := range gPos {
		gPos[k] = jacobian.VecMat(mgl32.Vec3{gCam[3*k], gCam[3*k+1], gCam[3*k+2]}, camera.Rotation)
	}
	if c.faceNormals {
		ji, jj, jk := jacobian.RigidVertexJacobians(camera.Rotation, pos[0], pos[1], pos[2])
		gFace := gUnnormalized.Mul(bary[0] + bary[1] + bary[2])
		gPos[0] = gPos[0].Add(jacobian.VecMat(gFace, ji))
		gPos[1] = gPos[1].Add(jacobian.VecMat(gFace, jj))
		gPos[2] = gPos[2].Add(jacobian.VecMat(gFace, jk))
	}
	for k, id := range tri {
		atomicAdd3(v.VertexPositionGrad, int(id), gPos[k])
	}
	return nil
}

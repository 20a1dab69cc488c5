package grad

import (
	"strconv"
	"strings"
)

// Indices into the params buffer of the gradient shader.
const (
	paramWidth = iota
	paramHeight
	paramCameras
	paramVertices
	paramTexWidth
	paramTexHeight
	paramMode
	paramFaceNormals
	paramGradOff
	paramPosOff
	paramColorOff
	paramTexOff
	paramSHOff
	paramNormalOff
	paramBaryOff
	paramUVOff
	paramCameraOff
	paramFaceOff
	paramPosGradOff
	paramColorGradOff
	paramTexGradOff
	paramSHGradOff
	paramDispatchWidth
	numParams
)

var paramNames = [numParams]string{
	"paramWidth", "paramHeight", "paramCameras", "paramVertices",
	"paramTexWidth", "paramTexHeight", "paramMode", "paramFaceNormals",
	"paramGradOff", "paramPosOff", "paramColorOff", "paramTexOff",
	"paramSHOff", "paramNormalOff", "paramBaryOff", "paramUVOff",
	"paramCameraOff", "paramFaceOff", "paramPosGradOff", "paramColorGradOff",
	"paramTexGradOff", "paramSHGradOff", "paramDispatchWidth",
}

const workgroupSize = 256

// gradShader is gradShaderWGSL with every ${name} placeholder expanded.
var gradShader = expandShader(gradShaderWGSL)

func expandShader(src string) string {
	pairs := make([]string, 0, 2*numParams+2)
	for i, name := range paramNames {
		pairs = append(pairs, "${"+name+"}", strconv.Itoa(i)+"u")
	}
	pairs = append(pairs, "${workgroupSize}", strconv.Itoa(workgroupSize))
	return strings.NewReplacer(pairs...).Replace(src)
}

// gradShaderWGSL is the per-pixel gradient kernel. Float inputs are packed
// into data, integer inputs into ids and all four gradients into grads;
// params holds the offsets (see the param* constants).
const gradShaderWGSL = `
@group(0) @binding(0) var<storage, read> params: array<u32>;
@group(0) @binding(1) var<storage, read> data: array<f32>;
@group(0) @binding(2) var<storage, read> ids: array<i32>;
@group(0) @binding(3) var<storage, read_write> grads: array<atomic<u32>>;

const MIN_NORMAL_LENGTH: f32 = 1e-8;
const DEGENERATE_TOLERANCE: f32 = 1e-6;
const MODE_TEXTURED: u32 = 1u;

fn load3(off: u32, i: u32) -> vec3<f32> {
    let o = off + 3u * i;
    return vec3<f32>(data[o], data[o + 1u], data[o + 2u]);
}

fn atomicAddF32(i: u32, delta: f32) {
    if (delta == 0.0) {
        return;
    }
    var old = atomicLoad(&grads[i]);
    loop {
        let updated = bitcast<u32>(bitcast<f32>(old) + delta);
        let r = atomicCompareExchangeWeak(&grads[i], old, updated);
        if (r.exchanged) {
            break;
        }
        old = r.old_value;
    }
}

fn atomicAdd3(off: u32, i: u32, v: vec3<f32>) {
    let o = off + 3u * i;
    atomicAddF32(o, v.x);
    atomicAddF32(o + 1u, v.y);
    atomicAddF32(o + 2u, v.z);
}

fn shBasis(n: vec3<f32>, j: u32) -> f32 {
    var b = array<f32, 9>(
        1.0, n.y, n.z, n.x,
        n.x * n.y, n.z * n.y, 3.0 * n.z * n.z - 1.0,
        n.x * n.z, n.x * n.x - n.y * n.y);
    return b[j];
}

fn irradiance(n: vec3<f32>, sh: u32) -> vec3<f32> {
    var light = vec3<f32>(0.0);
    for (var ch = 0u; ch < 3u; ch = ch + 1u) {
        var s = 0.0;
        for (var j = 0u; j < 9u; j = j + 1u) {
            s = s + data[sh + ch * 9u + j] * shBasis(n, j);
        }
        light[ch] = s;
    }
    return light;
}

// Rows are channels, columns are d/dx, d/dy, d/dz.
fn illuminationWrtNormal(d: vec3<f32>, sh: u32) -> mat3x3<f32> {
    var dx = vec3<f32>(0.0);
    var dy = vec3<f32>(0.0);
    var dz = vec3<f32>(0.0);
    for (var ch = 0u; ch < 3u; ch = ch + 1u) {
        let o = sh + ch * 9u;
        dx[ch] = data[o + 3u] + data[o + 4u] * d.y + data[o + 7u] * d.z + 2.0 * data[o + 8u] * d.x;
        dy[ch] = data[o + 1u] + data[o + 4u] * d.x + data[o + 5u] * d.z - 2.0 * data[o + 8u] * d.y;
        dz[ch] = data[o + 2u] + data[o + 5u] * d.y + 6.0 * data[o + 6u] * d.z + data[o + 7u] * d.x;
    }
    return mat3x3<f32>(dx, dy, dz);
}

fn normalizationJacobian(v: vec3<f32>, norm: f32) -> mat3x3<f32> {
    if (norm < MIN_NORMAL_LENGTH) {
        return mat3x3<f32>(vec3<f32>(0.0), vec3<f32>(0.0), vec3<f32>(0.0));
    }
    let n2 = norm * norm;
    let n3 = n2 * norm;
    let ident = mat3x3<f32>(vec3<f32>(1.0, 0.0, 0.0), vec3<f32>(0.0, 1.0, 0.0), vec3<f32>(0.0, 0.0, 1.0));
    let outer = mat3x3<f32>(v * v.x, v * v.y, v * v.z);
    return (ident * n2 - outer) * (1.0 / n3);
}

fn axisCross(d: vec3<f32>) -> mat3x3<f32> {
    return mat3x3<f32>(
        cross(vec3<f32>(1.0, 0.0, 0.0), d),
        cross(vec3<f32>(0.0, 1.0, 0.0), d),
        cross(vec3<f32>(0.0, 0.0, 1.0), d));
}

struct TexSample {
    color: vec3<f32>,
    du: vec3<f32>,
    dv: vec3<f32>,
    index: vec4<u32>,
    weight: vec4<f32>,
}

fn sampleTexture(uv: vec2<f32>) -> TexSample {
    let w = i32(params[${paramTexWidth}]);
    let h = i32(params[${paramTexHeight}]);
    let off = params[${paramTexOff}];
    let x = clamp(uv.x * f32(w) - 0.5, -1.0, f32(w));
    let y = clamp(uv.y * f32(h) - 0.5, -1.0, f32(h));
    let flx = floor(x);
    let fly = floor(y);
    let fx = x - flx;
    let fy = y - fly;
    let x0 = u32(clamp(i32(flx), 0, w - 1));
    let x1 = u32(clamp(i32(flx) + 1, 0, w - 1));
    let y0 = u32(clamp(i32(fly), 0, h - 1));
    let y1 = u32(clamp(i32(fly) + 1, 0, h - 1));

    var s: TexSample;
    s.index = vec4<u32>(y0 * u32(w) + x0, y0 * u32(w) + x1, y1 * u32(w) + x0, y1 * u32(w) + x1);
    s.weight = vec4<f32>((1.0 - fx) * (1.0 - fy), fx * (1.0 - fy), (1.0 - fx) * fy, fx * fy);

    let t00 = load3(off, s.index.x);
    let t10 = load3(off, s.index.y);
    let t01 = load3(off, s.index.z);
    let t11 = load3(off, s.index.w);
    let top = t00 * (1.0 - fx) + t10 * fx;
    let bottom = t01 * (1.0 - fx) + t11 * fx;
    s.color = top * (1.0 - fy) + bottom * fy;
    s.du = ((t10 - t00) * (1.0 - fy) + (t11 - t01) * fy) * f32(w);
    s.dv = (bottom - top) * f32(h);
    return s;
}

@compute @workgroup_size(${workgroupSize})
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let pixels = params[${paramWidth}] * params[${paramHeight}];
    let q = gid.y * params[${paramDispatchWidth}] + gid.x;
    if (q >= pixels * params[${paramCameras}]) {
        return;
    }
    let cam = q / pixels;

    let f0 = ids[4u * q];
    let f1 = ids[4u * q + 1u];
    let f2 = ids[4u * q + 2u];
    if (f0 < 0 || f1 < 0 || f2 < 0) {
        return;
    }
    let nv = params[${paramVertices}];
    let i0 = u32(f0);
    let i1 = u32(f1);
    let i2 = u32(f2);
    if (i0 >= nv || i1 >= nv || i2 >= nv) {
        return;
    }

    let g = load3(params[${paramGradOff}], q);
    if (g.x == 0.0 && g.y == 0.0 && g.z == 0.0) {
        return;
    }
    let bary = load3(params[${paramBaryOff}], q);
    let sh = params[${paramSHOff}] + cam * 27u;

    let c = params[${paramCameraOff}] + cam * 12u;
    let rot = mat3x3<f32>(
        vec3<f32>(data[c], data[c + 4u], data[c + 8u]),
        vec3<f32>(data[c + 1u], data[c + 5u], data[c + 9u]),
        vec3<f32>(data[c + 2u], data[c + 6u], data[c + 10u]));
    let trans = vec3<f32>(data[c + 3u], data[c + 7u], data[c + 11u]);

    let posOff = params[${paramPosOff}];
    let p0 = load3(posOff, i0);
    let p1 = load3(posOff, i1);
    let p2 = load3(posOff, i2);

    let nrmOff = params[${paramNormalOff}];
    let n0 = load3(nrmOff, cam * nv + i0);
    let n1 = load3(nrmOff, cam * nv + i1);
    let n2 = load3(nrmOff, cam * nv + i2);
    let un = n0 * bary.x + n1 * bary.y + n2 * bary.z;
    let norm = length(un);
    var normal = vec3<f32>(0.0);
    if (norm >= MIN_NORMAL_LENGTH) {
        normal = un / norm;
    }
    let light = irradiance(normal, sh);

    var albedo: vec3<f32>;
    var albedoWrtBary: mat3x3<f32>;
    var smp: TexSample;
    let textured = params[${paramMode}] == MODE_TEXTURED;
    if (textured) {
        let face = u32(ids[params[${paramFaceOff}] + q]);
        let uvo = params[${paramUVOff}] + face * 6u;
        let uv0 = vec2<f32>(data[uvo], data[uvo + 1u]);
        let uv1 = vec2<f32>(data[uvo + 2u], data[uvo + 3u]);
        let uv2 = vec2<f32>(data[uvo + 4u], data[uvo + 5u]);
        smp = sampleTexture(uv0 * bary.x + uv1 * bary.y + uv2 * bary.z);
        albedo = smp.color;
        albedoWrtBary = mat3x3<f32>(
            smp.du * uv0.x + smp.dv * uv0.y,
            smp.du * uv1.x + smp.dv * uv1.y,
            smp.du * uv2.x + smp.dv * uv2.y);
    } else {
        let colOff = params[${paramColorOff}];
        let c0 = load3(colOff, i0);
        let c1 = load3(colOff, i1);
        let c2 = load3(colOff, i2);
        albedo = c0 * bary.x + c1 * bary.y + c2 * bary.z;
        albedoWrtBary = mat3x3<f32>(c0, c1, c2);
    }

    let gAlbedo = g * light;
    let gLight = g * albedo;

    if (textured) {
        let tg = params[${paramTexGradOff}];
        atomicAdd3(tg, smp.index.x, gAlbedo * smp.weight.x);
        atomicAdd3(tg, smp.index.y, gAlbedo * smp.weight.y);
        atomicAdd3(tg, smp.index.z, gAlbedo * smp.weight.z);
        atomicAdd3(tg, smp.index.w, gAlbedo * smp.weight.w);
    } else {
        let cg = params[${paramColorGradOff}];
        atomicAdd3(cg, i0, gAlbedo * bary.x);
        atomicAdd3(cg, i1, gAlbedo * bary.y);
        atomicAdd3(cg, i2, gAlbedo * bary.z);
    }

    let shg = params[${paramSHGradOff}] + cam * 27u;
    for (var ch = 0u; ch < 3u; ch = ch + 1u) {
        for (var j = 0u; j < 9u; j = j + 1u) {
            atomicAddF32(shg + ch * 9u + j, gLight[ch] * shBasis(normal, j));
        }
    }

    let gNormal = gLight * illuminationWrtNormal(normal, sh);
    let gUn = gNormal * normalizationJacobian(un, norm);
    let gBary = gUn * mat3x3<f32>(n0, n1, n2) + gAlbedo * albedoWrtBary;

    let v0 = rot * p0 + trans;
    let v1 = rot * p1 + trans;
    let v2 = rot * p2 + trans;
    let d = determinant(mat3x3<f32>(v0, v1, v2));
    let scale = length(v0) * length(v1) * length(v2);

    var g0 = vec3<f32>(0.0);
    var g1 = vec3<f32>(0.0);
    var g2 = vec3<f32>(0.0);
    if (scale > 0.0 && abs(d) > DEGENERATE_TOLERANCE * scale) {
        // gBary · Adj, with the adjugate rows v1×v2, v2×v0, v0×v1.
        let gAdj = gBary.x * cross(v1, v2) + gBary.y * cross(v2, v0) + gBary.z * cross(v0, v1);
        g0 = (gAdj * (-bary.x / d)) * rot;
        g1 = (gAdj * (-bary.y / d)) * rot;
        g2 = (gAdj * (-bary.z / d)) * rot;
    }

    if (params[${paramFaceNormals}] != 0u) {
        let a = rot * (p1 - p0);
        let b = rot * (p2 - p0);
        let jj = axisCross(b) * rot;
        let jk = (axisCross(a) * rot) * -1.0;
        let gFace = gUn * (bary.x + bary.y + bary.z);
        let dj = gFace * jj;
        let dk = gFace * jk;
        g0 = g0 - dj - dk;
        g1 = g1 + dj;
        g2 = g2 + dk;
    }

    let pg = params[${paramPosGradOff}];
    atomicAdd3(pg, i0, g0);
    atomicAdd3(pg, i1, g1);
    atomicAdd3(pg, i2, g2);
}
`

package palette

import "math"

// Lab is a CIE L*a*b* triple (D65 illuminant).
type Lab struct {
	L, A, B float64
}

// sRGB -> XYZ matrix, D65.
var xyzMatrix = [3][3]float64{
	{0.4124564, 0.3575761, 0.1804375},
	{0.2126729, 0.7151522, 0.0721750},
	{0.0193339, 0.1191920, 0.9503041},
}

// D65 reference white.
const (
	whiteX = 0.95047
	whiteY = 1.0
	whiteZ = 1.08883

	labEpsilon = 0.008856
	labKappa   = 903.3
)

// RGBToLab converts an 8-bit sRGB color to CIE L*a*b*: gamma-expand to
// linear light, then XYZ, then LAB.
func RGBToLab(c RGB) Lab {
	r := srgbToLinear(float64(c.R) / 255)
	g := srgbToLinear(float64(c.G) / 255)
	b := srgbToLinear(float64(c.B) / 255)

	x := xyzMatrix[0][0]*r + xyzMatrix[0][1]*g + xyzMatrix[0][2]*b
	y := xyzMatrix[1][0]*r + xyzMatrix[1][1]*g + xyzMatrix[1][2]*b
	z := xyzMatrix[2][0]*r + xyzMatrix[2][1]*g + xyzMatrix[2][2]*b

	fx := labF(x / whiteX)
	fy := labF(y / whiteY)
	fz := labF(z / whiteZ)

	l := 116*fy - 16
	if l < 0 {
		l = 0
	}
	return Lab{
		L: l,
		A: 500 * (fx - fy),
		B: 200 * (fy - fz),
	}
}

func labF(t float64) float64 {
	if t < 1e-6 {
		t = 1e-6
	}
	if t > labEpsilon {
		return math.Cbrt(t)
	}
	return (labKappa*t + 16) / 116
}

// LabToRGB converts a L*a*b* value back to 8-bit sRGB, clamping out-of-gamut
// components. Used to build the grayscale ramps, which are spaced evenly
// in L*.
func LabToRGB(l Lab) RGB {
	fy := (l.L + 16) / 116
	fx := fy + l.A/500
	fz := fy - l.B/200

	x := whiteX * labFInv(fx)
	var y float64
	if l.L > labKappa*labEpsilon {
		y = whiteY * fy * fy * fy
	} else {
		y = whiteY * l.L / labKappa
	}
	z := whiteZ * labFInv(fz)

	// XYZ -> linear sRGB (inverse of xyzMatrix).
	r := 3.2404542*x - 1.5371385*y - 0.4985314*z
	g := -0.9692660*x + 1.8760108*y + 0.0415560*z
	b := 0.0556434*x - 0.2040259*y + 1.0572252*z

	return RGB{
		clamp255(linearToSRGB(r) * 255),
		clamp255(linearToSRGB(g) * 255),
		clamp255(linearToSRGB(b) * 255),
	}
}

func srgbToLinear(c float64) float64 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

func linearToSRGB(c float64) float64 {
	if c <= 0 {
		return 0
	}
	if c <= 0.0031308 {
		return c * 12.92
	}
	return 1.055*math.Pow(c, 1/2.4) - 0.055
}

func labFInv(f float64) float64 {
	f3 := f * f * f
	if f3 > labEpsilon {
		return f3
	}
	return (116*f - 16) / labKappa
}

func clamp255(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// DistanceSq returns the squared deltaE*76 between two LAB values.
func (l Lab) DistanceSq(o Lab) float64 {
	dl := l.L - o.L
	da := l.A - o.A
	db := l.B - o.B
	return dl*dl + da*da + db*db
}

// Distance returns deltaE*76, the Euclidean distance in LAB space.
func Distance(a, b Lab) float64 {
	return math.Sqrt(a.DistanceSq(b))
}

// LabDistance returns deltaE*76 between two sRGB colors.
func LabDistance(a, b RGB) float64 {
	return Distance(RGBToLab(a), RGBToLab(b))
}

package ecgsignal

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/mat"
)

const (
	DefaultLowCutHz  = 0.5
	DefaultHighCutHz = 40.0

	// ButterworthOrder is the order of the analog low-pass prototype. The
	// band-pass transform doubles it.
	ButterworthOrder = 4
)

// biquad is one second-order section, normalized so that a0 == 1.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// BandPass applies a zero-phase 4th order Butterworth band-pass filter to x,
// which is sampled at fs Hz, passing frequencies between lowCut and highCut
// Hz. The output has the same length as x and no phase lag.
func BandPass(x []float64, fs, lowCut, highCut float64) ([]float64, error) {
	if err := ValidateBand(fs, lowCut, highCut); err != nil {
		return nil, err
	}

	nyquist := fs / 2
	sections := butterBandPass(ButterworthOrder, lowCut/nyquist, highCut/nyquist)

	return sosFiltFilt(sections, x), nil
}

// ValidateBand checks the numeric preconditions of the band-pass design. The
// normalized corners must satisfy 0 < low < high < 1.
func ValidateBand(fs, lowCut, highCut float64) error {
	if !(fs > 0) || math.IsInf(fs, 0) {
		return fmt.Errorf("%w: sampling rate must be positive, got %g", ErrInvalidCutoff, fs)
	}
	if !(lowCut > 0) {
		return fmt.Errorf("%w: low cutoff must be positive, got %g Hz", ErrInvalidCutoff, lowCut)
	}
	if !(highCut > lowCut) {
		return fmt.Errorf("%w: high cutoff %g Hz must exceed low cutoff %g Hz", ErrInvalidCutoff, highCut, lowCut)
	}
	if highCut >= fs/2 {
		return fmt.Errorf("%w: high cutoff %g Hz must be below the Nyquist frequency %g Hz", ErrInvalidCutoff, highCut, fs/2)
	}

	return nil
}

// butterBandPass designs a digital Butterworth band-pass filter with corners
// given as fractions of Nyquist. The analog prototype is moved to the band,
// then to the z-plane with the bilinear transform (sampling rate 2, so the
// corners are pre-warped as 4*tan(pi*w/2)). Every section gets a zero at z=1
// and one at z=-1; the overall gain rides on the first section.
func butterBandPass(order int, low, high float64) []biquad {
	const fs2 = 4.0

	wl := fs2 * math.Tan(math.Pi*low/2)
	wh := fs2 * math.Tan(math.Pi*high/2)
	bw := wh - wl
	w0 := math.Sqrt(wl * wh)

	// Analog low-pass prototype poles on the left half of the unit circle
	poles := make([]complex128, 0, 2*order)
	for k := 0; k < order; k++ {
		m := float64(-order + 1 + 2*k)
		p := -cmplx.Exp(complex(0, math.Pi*m/float64(2*order)))

		// Low-pass to band-pass: each prototype pole splits in two
		pl := p * complex(bw/2, 0)
		root := cmplx.Sqrt(pl*pl - complex(w0*w0, 0))
		poles = append(poles, pl+root, pl-root)
	}

	// Band-pass to digital, tracking the gain change
	num := complex(math.Pow(fs2, float64(order)), 0)
	den := complex(1, 0)
	digital := make([]complex128, len(poles))
	for i, p := range poles {
		den *= complex(fs2, 0) - p
		digital[i] = (complex(fs2, 0) + p) / (complex(fs2, 0) - p)
	}
	gain := math.Pow(bw, float64(order)) * real(num/den)

	// Keep one pole of each conjugate pair
	upper := make([]complex128, 0, order)
	for _, p := range digital {
		if imag(p) > 0 {
			upper = append(upper, p)
		}
	}
	sort.Slice(upper, func(i, j int) bool { return cmplx.Abs(upper[i]) < cmplx.Abs(upper[j]) })

	sections := make([]biquad, 0, len(upper))
	for i, p := range upper {
		s := biquad{
			b0: 1, b1: 0, b2: -1,
			a1: -2 * real(p),
			a2: real(p)*real(p) + imag(p)*imag(p),
		}
		if i == 0 {
			s.b0 *= gain
			s.b2 *= gain
		}
		sections = append(sections, s)
	}

	return sections
}

// sosFiltFilt runs the cascade forward and then backward over an
// odd-extended copy of x, starting each pass from the steady state of a step
// whose height is the first sample of that pass.
func sosFiltFilt(sections []biquad, x []float64) []float64 {
	if len(x) == 0 {
		return []float64{}
	}

	padLen := 3 * (2*len(sections) + 1)
	if padLen > len(x)-1 {
		padLen = len(x) - 1
	}

	ext := oddExtend(x, padLen)
	zi := sosSteadyState(sections)

	y := sosFilter(sections, ext, zi, ext[0])
	reverse(y)
	y = sosFilter(sections, y, zi, y[0])
	reverse(y)

	out := make([]float64, len(x))
	copy(out, y[padLen:padLen+len(x)])

	return out
}

// oddExtend reflects n samples at each end of x about the end points.
func oddExtend(x []float64, n int) []float64 {
	last := len(x) - 1
	ext := make([]float64, 0, len(x)+2*n)
	for i := n; i > 0; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := 1; i <= n; i++ {
		ext = append(ext, 2*x[last]-x[last-i])
	}

	return ext
}

// sosSteadyState returns, per section, the transposed direct form II state
// that a unit step settles into. Each section sees the step scaled by the DC
// gain of the sections before it.
func sosSteadyState(sections []biquad) [][2]float64 {
	out := make([][2]float64, len(sections))

	scale := 1.0
	for i, s := range sections {
		// (I - companion(a)^T) zi = b[1:] - a[1:]*b[0]
		A := mat.NewDense(2, 2, []float64{
			1 + s.a1, -1,
			s.a2, 1,
		})
		B := mat.NewVecDense(2, []float64{
			s.b1 - s.a1*s.b0,
			s.b2 - s.a2*s.b0,
		})

		var zi mat.VecDense
		if err := zi.SolveVec(A, B); err != nil {
			// Only reachable for a pole on the unit circle, which a valid
			// design never produces.
			continue
		}

		out[i] = [2]float64{scale * zi.AtVec(0), scale * zi.AtVec(1)}
		scale *= (s.b0 + s.b1 + s.b2) / (1 + s.a1 + s.a2)
	}

	return out
}

// sosFilter applies the cascade once, with the initial state zi scaled by x0.
func sosFilter(sections []biquad, x []float64, zi [][2]float64, x0 float64) []float64 {
	state := make([][2]float64, len(sections))
	for i := range sections {
		state[i] = [2]float64{zi[i][0] * x0, zi[i][1] * x0}
	}

	out := make([]float64, len(x))
	for n, v := range x {
		for i, s := range sections {
			y := s.b0*v + state[i][0]
			state[i][0] = s.b1*v - s.a1*y + state[i][1]
			state[i][1] = s.b2*v - s.a2*y
			v = y
		}
		out[n] = v
	}

	return out
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}

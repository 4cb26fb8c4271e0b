package biquad

import "math"

// ButterworthQ is the Q of a single 2nd-order Butterworth stage.
const ButterworthQ = 0.7071067811865476

// Lowpass computes RBJ low-pass coefficients at the given cutoff.
// Out-of-range cutoffs return pass-through coefficients.
func Lowpass(cutoff, q, sampleRate float64) Coefficients {
	_, cw, alpha, ok := prewarp(cutoff, q, sampleRate)
	if !ok {
		return Identity()
	}

	a0 := 1 + alpha
	inv := 1.0 / a0

	return Coefficients{
		B0: ((1 - cw) * 0.5) * inv,
		B1: (1 - cw) * inv,
		B2: ((1 - cw) * 0.5) * inv,
		A1: (-2 * cw) * inv,
		A2: (1 - alpha) * inv,
	}
}

// Highpass computes RBJ high-pass coefficients at the given cutoff.
func Highpass(cutoff, q, sampleRate float64) Coefficients {
	_, cw, alpha, ok := prewarp(cutoff, q, sampleRate)
	if !ok {
		return Identity()
	}

	a0 := 1 + alpha
	inv := 1.0 / a0

	return Coefficients{
		B0: ((1 + cw) * 0.5) * inv,
		B1: -(1 + cw) * inv,
		B2: ((1 + cw) * 0.5) * inv,
		A1: (-2 * cw) * inv,
		A2: (1 - alpha) * inv,
	}
}

// BandpassCPG computes constant-peak-gain bandpass coefficients.
// Unlike the constant-skirt-gain variant where peak gain equals Q, the CPG
// peak gain at center frequency is always 1.0 regardless of Q, making it
// suitable for filter bank summation where bands should not amplify.
func BandpassCPG(freq, q, sampleRate float64) Coefficients {
	_, cw, alpha, ok := prewarp(freq, q, sampleRate)
	if !ok {
		return Coefficients{}
	}

	a0 := 1 + alpha
	inv := 1.0 / a0

	return Coefficients{
		B0: alpha * inv,
		B1: 0,
		B2: -alpha * inv,
		A1: -2 * cw * inv,
		A2: (1 - alpha) * inv,
	}
}

// Peaking computes RBJ peaking-EQ coefficients with gain in dB.
func Peaking(freq, q, gainDB, sampleRate float64) Coefficients {
	_, cw, alpha, ok := prewarp(freq, q, sampleRate)
	if !ok {
		return Identity()
	}

	a := math.Pow(10, gainDB/40)

	a0 := 1 + alpha/a
	inv := 1.0 / a0

	return Coefficients{
		B0: (1 + alpha*a) * inv,
		B1: (-2 * cw) * inv,
		B2: (1 - alpha*a) * inv,
		A1: (-2 * cw) * inv,
		A2: (1 - alpha/a) * inv,
	}
}

// HighShelf computes RBJ high-shelf coefficients with gain in dB.
func HighShelf(freq, gainDB, sampleRate float64) Coefficients {
	_, cw, _, ok := prewarp(freq, ButterworthQ, sampleRate)
	if !ok {
		return Identity()
	}

	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sampleRate
	sw := math.Sin(w0)
	// Shelf slope fixed at 1.0: alpha = sin(w0)/2 * sqrt(2).
	alpha := sw / 2 * math.Sqrt2
	beta := 2 * math.Sqrt(a) * alpha

	ap1 := a + 1
	am1 := a - 1

	a0 := ap1 - am1*cw + beta
	inv := 1.0 / a0

	return Coefficients{
		B0: a * (ap1 + am1*cw + beta) * inv,
		B1: -2 * a * (am1 + ap1*cw) * inv,
		B2: a * (ap1 + am1*cw - beta) * inv,
		A1: 2 * (am1 - ap1*cw) * inv,
		A2: (ap1 - am1*cw - beta) * inv,
	}
}

// ButterworthBandpass returns a 4th-order Butterworth band-pass built as a
// high-pass/low-pass cascade at the band edges. Used for the telephone band
// limit where steeper skirts than a single CPG section are needed.
func ButterworthBandpass(lowEdge, highEdge, sampleRate float64) []Coefficients {
	return []Coefficients{
		Highpass(lowEdge, ButterworthQ, sampleRate),
		Highpass(lowEdge, ButterworthQ, sampleRate),
		Lowpass(highEdge, ButterworthQ, sampleRate),
		Lowpass(highEdge, ButterworthQ, sampleRate),
	}
}

// prewarp validates the design frequency and returns common RBJ terms.
func prewarp(freq, q, sampleRate float64) (w0, cw, alpha float64, ok bool) {
	if sampleRate <= 0 || q <= 0 {
		return 0, 0, 0, false
	}
	w0 = 2 * math.Pi * freq / sampleRate
	if w0 <= 0 || w0 >= math.Pi {
		return 0, 0, 0, false
	}
	cw = math.Cos(w0)
	alpha = math.Sin(w0) / (2 * q)
	return w0, cw, alpha, true
}

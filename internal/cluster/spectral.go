package cluster

import "math"

// SpectralStats are the frequency-domain features the clustering sub-
// algorithm mixes into its feature vector (spectralEntropy, harmonic,
// peakToAvg, dominantFreq in the glossary). They are derived from a naive
// discrete Fourier transform over a signature's recent inter-arrival
// intervals — scripted traffic tends to concentrate energy at one or two
// frequencies, where human cadence spreads it out.
type SpectralStats struct {
	Entropy       float64 // Shannon entropy over the normalized power spectrum
	HarmonicRatio float64 // fraction of total power at the second-strongest bin
	PeakToAvg     float64 // strongest bin's power over the mean bin power
	DominantFreq  float64 // bin index of strongest power, normalized to [0,1]
}

// AnalyzeIntervals computes SpectralStats over a short inter-arrival series.
// Fewer than 4 samples carry no usable frequency content.
func AnalyzeIntervals(intervals []float64) SpectralStats {
	n := len(intervals)
	if n < 4 {
		return SpectralStats{}
	}

	bins := n / 2
	power := make([]float64, bins)
	var total float64
	for k := 0; k < bins; k++ {
		var re, im float64
		for t, x := range intervals {
			angle := 2 * math.Pi * float64(k) * float64(t) / float64(n)
			re += x * math.Cos(angle)
			im -= x * math.Sin(angle)
		}
		power[k] = re*re + im*im
		total += power[k]
	}
	if total == 0 {
		return SpectralStats{}
	}

	var entropy float64
	peak, second, peakIdx := 0.0, 0.0, 0
	for k, p := range power {
		frac := p / total
		if frac > 0 {
			entropy -= frac * math.Log2(frac)
		}
		if p > peak {
			second = peak
			peak = p
			peakIdx = k
		} else if p > second {
			second = p
		}
	}

	return SpectralStats{
		Entropy:       entropy,
		HarmonicRatio: second / total,
		PeakToAvg:     peak / (total / float64(bins)),
		DominantFreq:  float64(peakIdx) / float64(bins),
	}
}

package lag

import "sort"

// FindPeaks returns the indices of local maxima of x in increasing order.
// A flat top counts once, at its middle sample. Peaks closer than
// minDistance samples to a higher peak are discarded, highest first.
// Samples next to NaN are never peaks.
func FindPeaks(x []float64, minDistance int) []int {
	peaks := localMaxima(x)
	if minDistance <= 1 || len(peaks) < 2 {
		return peaks
	}

	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return x[peaks[order[i]]] < x[peaks[order[j]]]
	})

	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}

	for o := len(order) - 1; o >= 0; o-- {
		j := order[o]
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < minDistance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < len(peaks) && peaks[k]-peaks[j] < minDistance; k++ {
			keep[k] = false
		}
	}

	out := peaks[:0]
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

func localMaxima(x []float64) []int {
	var peaks []int
	i := 1
	last := len(x) - 1
	for i < last {
		if x[i-1] < x[i] {
			ahead := i + 1
			for ahead < last && x[ahead] == x[i] {
				ahead++
			}
			if x[ahead] < x[i] {
				peaks = append(peaks, (i+ahead-1)/2)
				i = ahead
			}
		}
		i++
	}
	return peaks
}

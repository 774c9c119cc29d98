package engine

// resampleLinear converts samples from one rate to another by linear
// interpolation. Equal rates return the input unchanged.
func resampleLinear(samples []float32, from, to int) []float32 {
	if len(samples) == 0 || from <= 0 || to <= 0 {
		return nil
	}
	if from == to {
		return samples
	}

	ratio := float64(to) / float64(from)
	n := int(float64(len(samples)) * ratio)
	out := make([]float32, n)
	last := len(samples) - 1
	for i := range out {
		src := float64(i) / ratio
		i0 := int(src)
		i1 := min(i0+1, last)
		frac := src - float64(i0)
		out[i] = float32(float64(samples[i0])*(1-frac) + float64(samples[i1])*frac)
	}
	return out
}

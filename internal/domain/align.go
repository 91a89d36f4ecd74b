package domain

// Align brings every series to a common length: the longest non-scalar input,
// or 1 when all inputs are scalar or empty. Scalars and empty series are
// broadcast; shorter series are padded at the tail with missing markers.
// Nothing is truncated. Align does not modify its inputs.
func Align(series []Series) []Series {
	n := 1
	for _, s := range series {
		if s.Len() > n {
			n = s.Len()
		}
	}

	out := make([]Series, len(series))
	for i, s := range series {
		switch {
		case s.Len() <= 1:
			out[i] = s.filled(n)
		case s.Len() < n:
			out[i] = s.padded(n)
		default:
			out[i] = s
		}
	}
	return out
}

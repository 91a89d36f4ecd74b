package domain

import (
	"math"
	"strconv"
)

// Series is a one-dimensional run of normalized values. Exactly one of Num or
// Text is used; missing numbers are NaN and missing text is "".
type Series struct {
	Num  []float64
	Text []string
}

// NumSeries wraps float values.
func NumSeries(v ...float64) Series { return Series{Num: v} }

// TextSeries wraps decoded strings.
func TextSeries(v ...string) Series { return Series{Text: v} }

// MissingSeries returns n missing numeric values.
func MissingSeries(n int) Series {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return Series{Num: out}
}

// IsText reports whether the series holds text.
func (s Series) IsText() bool { return s.Text != nil }

// Len returns the number of elements.
func (s Series) Len() int {
	if s.IsText() {
		return len(s.Text)
	}
	return len(s.Num)
}

// Missing reports whether element i is the missing marker. Indices outside the
// series are missing.
func (s Series) Missing(i int) bool {
	if i < 0 || i >= s.Len() {
		return true
	}
	if s.IsText() {
		return s.Text[i] == ""
	}
	return math.IsNaN(s.Num[i])
}

// Float returns element i as a number. Text is parsed; anything that does not
// parse, and any index out of range, is NaN.
func (s Series) Float(i int) float64 {
	if s.Missing(i) {
		return math.NaN()
	}
	if s.IsText() {
		v, err := strconv.ParseFloat(s.Text[i], 64)
		if err != nil {
			return math.NaN()
		}
		return v
	}
	return s.Num[i]
}

// String returns element i as text. Whole numbers print without a fraction so
// numeric platform numbers read the same as their character form.
func (s Series) String(i int) string {
	if s.Missing(i) {
		return ""
	}
	if s.IsText() {
		return s.Text[i]
	}
	v := s.Num[i]
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// At returns element i as a one-element series.
func (s Series) At(i int) Series {
	if s.IsText() {
		return TextSeries(s.String(i))
	}
	return NumSeries(s.Float(i))
}

// filled returns a series of length n with every element equal to s[0], or
// missing when s is empty.
func (s Series) filled(n int) Series {
	if s.IsText() {
		out := make([]string, n)
		if len(s.Text) > 0 {
			for i := range out {
				out[i] = s.Text[0]
			}
		}
		return Series{Text: out}
	}
	v := math.NaN()
	if len(s.Num) > 0 {
		v = s.Num[0]
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return Series{Num: out}
}

// padded returns s right-padded with missing markers to length n.
func (s Series) padded(n int) Series {
	if s.IsText() {
		out := make([]string, n)
		copy(out, s.Text)
		return Series{Text: out}
	}
	out := make([]float64, n)
	copy(out, s.Num)
	for i := len(s.Num); i < n; i++ {
		out[i] = math.NaN()
	}
	return Series{Num: out}
}

// ShapeKind tags the dimensionality of a normalized variable.
type ShapeKind int

const (
	// Scalar is a single broadcastable value (or a variable that was missing).
	Scalar ShapeKind = iota
	// PerLevel is a 1D run: levels of a single profile, or one value per profile.
	PerLevel
	// PerProfileLevel is a 2D levels × profiles grid.
	PerProfileLevel
)

func (k ShapeKind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case PerLevel:
		return "per-level"
	case PerProfileLevel:
		return "per-profile-level"
	default:
		return "unknown"
	}
}

// Shape describes how a Field's data is laid out.
type Shape struct {
	Kind     ShapeKind
	Levels   int
	Profiles int
}

// Field is a normalized variable. For PerProfileLevel the data is stored level
// major: element (level l, profile p) lives at l*Profiles + p.
type Field struct {
	Name  string
	Shape Shape
	Data  Series
}

// MissingField is the placeholder for a variable that could not be read.
func MissingField(name string) Field {
	return Field{Name: name, Shape: Shape{Kind: Scalar, Levels: 1, Profiles: 1}, Data: MissingSeries(1)}
}

// ScalarField builds a Scalar field from a one-element series.
func ScalarField(name string, s Series) Field {
	return Field{Name: name, Shape: Shape{Kind: Scalar, Levels: 1, Profiles: 1}, Data: s}
}

// VectorField builds a PerLevel field.
func VectorField(name string, s Series) Field {
	return Field{Name: name, Shape: Shape{Kind: PerLevel, Levels: s.Len(), Profiles: 1}, Data: s}
}

// GridField builds a PerProfileLevel field from level-major data.
func GridField(name string, levels, profiles int, s Series) Field {
	return Field{Name: name, Shape: Shape{Kind: PerProfileLevel, Levels: levels, Profiles: profiles}, Data: s}
}

// IsMissing reports whether the field carries no data at all.
func (f Field) IsMissing() bool {
	for i := 0; i < f.Data.Len(); i++ {
		if !f.Data.Missing(i) {
			return false
		}
	}
	return true
}

// Profile returns the per-level column for profile i. 1D fields are returned
// as-is so they broadcast across profiles; an index past the grid yields a
// full column of missing markers instead of failing.
func (f Field) Profile(i int) Series {
	if f.Shape.Kind != PerProfileLevel {
		return f.Data
	}
	if i < 0 || i >= f.Shape.Profiles {
		if f.Data.IsText() {
			return Series{Text: make([]string, f.Shape.Levels)}
		}
		return MissingSeries(f.Shape.Levels)
	}
	if f.Data.IsText() {
		out := make([]string, f.Shape.Levels)
		for l := range out {
			out[l] = f.Data.Text[l*f.Shape.Profiles+i]
		}
		return Series{Text: out}
	}
	out := make([]float64, f.Shape.Levels)
	for l := range out {
		out[l] = f.Data.Num[l*f.Shape.Profiles+i]
	}
	return Series{Num: out}
}

// Pick returns the per-profile scalar for profile i, falling back to the first
// entry when the field has fewer entries than profiles.
func (f Field) Pick(i int) Series {
	if f.Shape.Kind == PerProfileLevel {
		return f.Profile(i).At(0)
	}
	if i < f.Data.Len() {
		return f.Data.At(i)
	}
	return f.Data.At(0)
}

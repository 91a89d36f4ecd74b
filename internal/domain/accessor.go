package domain

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// ProfileDim is the dimension name that marks the profile axis. A 2D variable
// whose first dimension is ProfileDim is stored profiles × levels and gets
// transposed on read.
const ProfileDim = "N_PROF"

// Attribute names consulted when masking values.
const (
	AttrFillValue    = "_FillValue"
	AttrMissingValue = "missing_value"
	AttrValidMin     = "valid_min"
	AttrValidMax     = "valid_max"
)

var (
	errRagged      = errors.New("ragged array")
	errMixedValues = errors.New("mixed text and numeric values")
)

// RawVariable is a variable as the source stores it. Values holds native Go
// data: a scalar, a string, or (nested) slices of numbers, strings, or bytes.
// Mask, when set, flags elements in storage order that must read as missing.
// Char marks byte data as characters; a last dimension named STRING<n> does
// the same, as in Argo files. Other byte data is numeric.
type RawVariable struct {
	Values any
	Dims   []string
	Attrs  map[string]any
	Mask   []bool
	Char   bool
}

func (r RawVariable) isChar() bool {
	if r.Char {
		return true
	}
	n := len(r.Dims)
	return n > 0 && strings.HasPrefix(r.Dims[n-1], "STRING")
}

// VariableSource exposes the variables of one open file by name.
type VariableSource interface {
	// Raw returns the named variable. ok is false when the file has no such
	// variable; err reports a variable that exists but could not be read.
	Raw(name string) (v RawVariable, ok bool, err error)
}

// Fetch reads and normalizes one variable. Absent or unreadable variables
// never fail the caller: they come back as a missing Scalar field and the
// name (plus an error summary when there is one) is appended to missing.
func Fetch(src VariableSource, name string, missing *[]string) Field {
	raw, ok, err := src.Raw(name)
	if err != nil {
		*missing = append(*missing, fmt.Sprintf("%s: %s", name, summarize(err)))
		return MissingField(name)
	}
	if !ok {
		*missing = append(*missing, name)
		return MissingField(name)
	}
	f, err := Normalize(name, raw)
	if err != nil {
		*missing = append(*missing, fmt.Sprintf("%s: %s", name, summarize(err)))
		return MissingField(name)
	}
	return f
}

// Normalize converts a raw variable into a Field with every masked, filled,
// out-of-range, or non-finite element replaced by the missing marker.
func Normalize(name string, raw RawVariable) (Field, error) {
	fl := flat{chars: raw.isChar()}
	if err := fl.walk(reflect.ValueOf(raw.Values), 0); err != nil {
		return Field{}, fmt.Errorf("read %s: %w", name, err)
	}
	if len(fl.dims) > 2 {
		return Field{}, fmt.Errorf("read %s: %d dimensions, want at most 2", name, len(fl.dims))
	}

	data := fl.series()
	mask(data, raw)

	switch len(fl.dims) {
	case 0:
		return ScalarField(name, data), nil
	case 1:
		if fl.dims[0] == 0 {
			return MissingField(name), nil
		}
		return VectorField(name, data), nil
	}

	rows, cols := fl.dims[0], fl.dims[1]
	if rows == 0 || cols == 0 {
		return MissingField(name), nil
	}
	if len(raw.Dims) >= 2 && raw.Dims[0] == ProfileDim {
		return GridField(name, cols, rows, transpose(data, rows, cols)), nil
	}
	return GridField(name, rows, cols, data), nil
}

// flat accumulates the leaves of a nested value in row-major order.
type flat struct {
	dims   []int
	num    []float64
	text   []string
	isText bool
	seen   bool

	// chars decodes each innermost byte run as one string.
	chars bool
}

func (f *flat) series() Series {
	if f.isText {
		if f.text == nil {
			f.text = []string{}
		}
		return Series{Text: f.text}
	}
	if f.num == nil {
		f.num = []float64{}
	}
	return Series{Num: f.num}
}

func (f *flat) kind(text bool) error {
	if f.seen && f.isText != text {
		return errMixedValues
	}
	f.seen, f.isText = true, text
	return nil
}

func (f *flat) dim(depth, n int) error {
	if len(f.dims) == depth {
		f.dims = append(f.dims, n)
		return nil
	}
	if depth > len(f.dims) || f.dims[depth] != n {
		return errRagged
	}
	return nil
}

// walk descends into rv. For character data each innermost []byte or [N]byte
// decodes to one string, matching how NetCDF char arrays collapse their last
// dimension.
func (f *flat) walk(rv reflect.Value, depth int) error {
	switch rv.Kind() {
	case reflect.Invalid:
		return errors.New("no values")
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return errors.New("nil values")
		}
		return f.walk(rv.Elem(), depth)
	case reflect.Slice, reflect.Array:
		if f.chars && rv.Type().Elem().Kind() == reflect.Uint8 {
			if err := f.kind(true); err != nil {
				return err
			}
			b := make([]byte, rv.Len())
			for i := range b {
				b[i] = byte(rv.Index(i).Uint())
			}
			f.text = append(f.text, decodeText(string(b)))
			return nil
		}
		if err := f.dim(depth, rv.Len()); err != nil {
			return err
		}
		for i := 0; i < rv.Len(); i++ {
			if err := f.walk(rv.Index(i), depth+1); err != nil {
				return err
			}
		}
		return nil
	case reflect.String:
		if err := f.kind(true); err != nil {
			return err
		}
		f.text = append(f.text, decodeText(rv.String()))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return f.number(float64(rv.Int()))
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		return f.number(float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return f.number(rv.Float())
	case reflect.Bool:
		if rv.Bool() {
			return f.number(1)
		}
		return f.number(0)
	default:
		return fmt.Errorf("unsupported value type %s", rv.Type())
	}
}

func (f *flat) number(v float64) error {
	if err := f.kind(false); err != nil {
		return err
	}
	f.num = append(f.num, v)
	return nil
}

// decodeText trims NUL padding and surrounding blanks from character data.
func decodeText(s string) string {
	return strings.TrimSpace(strings.Trim(s, "\x00"))
}

func mask(s Series, raw RawVariable) {
	if s.IsText() {
		for i := range s.Text {
			if i < len(raw.Mask) && raw.Mask[i] {
				s.Text[i] = ""
			}
		}
		return
	}

	fill, hasFill := attrFloat(raw.Attrs, AttrFillValue)
	miss, hasMiss := attrFloat(raw.Attrs, AttrMissingValue)
	lo, hasLo := attrFloat(raw.Attrs, AttrValidMin)
	hi, hasHi := attrFloat(raw.Attrs, AttrValidMax)

	for i, v := range s.Num {
		switch {
		case i < len(raw.Mask) && raw.Mask[i],
			math.IsNaN(v) || math.IsInf(v, 0),
			hasFill && sameValue(v, fill),
			hasMiss && sameValue(v, miss),
			hasLo && v < lo,
			hasHi && v > hi:
			s.Num[i] = math.NaN()
		}
	}
}

// sameValue compares at float32 precision when the fill was declared on a
// float32 variable and widened, so 99999 matches whichever width it arrived in.
func sameValue(v, fill float64) bool {
	return v == fill || float32(v) == float32(fill)
}

// attrFloat reads a numeric attribute. NetCDF attributes arrive either as a
// scalar or as a one-element slice.
func attrFloat(attrs map[string]any, key string) (float64, bool) {
	v, ok := attrs[key]
	if !ok || v == nil {
		return 0, false
	}
	var fl flat
	if err := fl.walk(reflect.ValueOf(v), 0); err != nil || fl.isText || len(fl.num) == 0 {
		return 0, false
	}
	return fl.num[0], true
}

func transpose(s Series, rows, cols int) Series {
	if s.IsText() {
		out := make([]string, len(s.Text))
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				out[c*rows+r] = s.Text[r*cols+c]
			}
		}
		return Series{Text: out}
	}
	out := make([]float64, len(s.Num))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out[c*rows+r] = s.Num[r*cols+c]
		}
	}
	return Series{Num: out}
}

// summarize keeps the first line of an error, capped for log readability.
func summarize(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	const maxLen = 120
	if len(msg) > maxLen {
		msg = msg[:maxLen] + "..."
	}
	return msg
}

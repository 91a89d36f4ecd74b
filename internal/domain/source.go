package domain

import "fmt"

// MapSource is an in-memory VariableSource keyed by variable name. A value of
// type error stands in for a variable that exists but cannot be read.
type MapSource map[string]any

// Raw implements VariableSource.
func (m MapSource) Raw(name string) (RawVariable, bool, error) {
	v, ok := m[name]
	if !ok {
		return RawVariable{}, false, nil
	}
	switch v := v.(type) {
	case error:
		return RawVariable{}, true, fmt.Errorf("read %s: %w", name, v)
	case RawVariable:
		return v, true, nil
	default:
		return RawVariable{Values: v}, true, nil
	}
}

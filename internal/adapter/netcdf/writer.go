package netcdf

import (
	"fmt"
	"sort"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
)

// Variable is one variable to write. Values must be a type the CDF writer
// supports: scalars, strings, and (nested) slices of int8, int16, int32,
// float32, float64, or string.
type Variable struct {
	Name   string
	Values any
	Dims   []string
	Attrs  map[string]any
}

// WriteFile writes vars to a classic-format NetCDF file at path.
func WriteFile(path string, vars []Variable) (err error) {
	w, err := cdf.OpenWriter(path)
	if err != nil {
		return fmt.Errorf("create netcdf %s: %w", path, err)
	}
	defer func() {
		if cerr := w.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close netcdf %s: %w", path, cerr)
		}
	}()

	for _, v := range vars {
		attrs, err := orderedAttrs(v.Attrs)
		if err != nil {
			return fmt.Errorf("attributes of %s: %w", v.Name, err)
		}
		if err := w.AddVar(v.Name, api.Variable{
			Values:     v.Values,
			Dimensions: v.Dims,
			Attributes: attrs,
		}); err != nil {
			return fmt.Errorf("add %s: %w", v.Name, err)
		}
	}
	return nil
}

func orderedAttrs(m map[string]any) (*util.OrderedMap, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if m == nil {
		m = map[string]any{}
	}
	return util.NewOrderedMap(keys, m)
}

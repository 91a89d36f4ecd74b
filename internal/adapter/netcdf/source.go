// Package netcdf reads and writes Argo profile files with a pure-Go NetCDF
// implementation (classic CDF and NetCDF-4/HDF5).
package netcdf

import (
	"fmt"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/couchcryptid/argo-profile-etl/internal/domain"
)

// File is an open NetCDF file. It implements domain.VariableSource.
type File struct {
	path  string
	group api.Group
	names map[string]bool
}

// Open opens a NetCDF file for reading.
func Open(path string) (*File, error) {
	g, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open netcdf %s: %w", path, err)
	}
	names := make(map[string]bool)
	for _, n := range g.ListVariables() {
		names[n] = true
	}
	return &File{path: path, group: g, names: names}, nil
}

// Variables lists the variable names in the file.
func (f *File) Variables() []string {
	out := make([]string, 0, len(f.names))
	for n := range f.names {
		out = append(out, n)
	}
	return out
}

// Raw implements domain.VariableSource.
func (f *File) Raw(name string) (raw domain.RawVariable, ok bool, err error) {
	if !f.names[name] {
		return domain.RawVariable{}, false, nil
	}

	// The decoder signals corrupt data by panicking.
	defer func() {
		if r := recover(); r != nil {
			raw, ok, err = domain.RawVariable{}, true, fmt.Errorf("decode %s: %v", name, r)
		}
	}()

	v, err := f.group.GetVariable(name)
	if err != nil {
		return domain.RawVariable{}, true, fmt.Errorf("read %s: %w", name, err)
	}
	if v == nil {
		return domain.RawVariable{}, false, nil
	}

	attrs := make(map[string]any)
	if v.Attributes != nil {
		for _, k := range v.Attributes.Keys() {
			if val, has := v.Attributes.Get(k); has {
				attrs[k] = val
			}
		}
	}

	return domain.RawVariable{
		Values: v.Values,
		Dims:   v.Dimensions,
		Attrs:  attrs,
	}, true, nil
}

// Close releases the file.
func (f *File) Close() error {
	f.group.Close()
	return nil
}

package netcdf

import (
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"strings"
)

// Argo fill values.
const (
	FillPhysical = float32(99999)
	FillJuld     = float64(999999)
)

// Fixture describes a synthetic Argo profile file with plausible CTD values.
// Profile p has Levels-p valid levels; deeper levels hold the fill value the
// way real multi-profile files pad shallower casts.
type Fixture struct {
	FloatID  string
	Cycle    int
	Profiles int
	Levels   int
	Seed     uint64
	// Research adds a DOXY variable.
	Research bool
	// Omit lists variables to leave out of the file.
	Omit []string
}

// FileName returns the delayed-mode Argo file name for the fixture.
func (f Fixture) FileName() string {
	return fmt.Sprintf("D%s_%03d.nc", f.FloatID, f.Cycle)
}

// ValidLevels returns the number of non-fill levels in profile p.
func (f Fixture) ValidLevels(p int) int {
	return max(f.Levels-p, 1)
}

// Variables builds the variables of the fixture, stored (N_PROF, N_LEVELS)
// like real Argo files.
func (f Fixture) Variables() []Variable {
	rng := rand.New(rand.NewPCG(f.Seed, f.Seed^0x5eed))

	pres := make([][]float32, f.Profiles)
	temp := make([][]float32, f.Profiles)
	psal := make([][]float32, f.Profiles)
	doxy := make([][]float32, f.Profiles)
	lat := make([]float64, f.Profiles)
	lon := make([]float64, f.Profiles)
	juld := make([]float64, f.Profiles)
	platform := make([]string, f.Profiles)

	baseLat := -60 + rng.Float64()*120
	baseLon := -180 + rng.Float64()*360
	for p := 0; p < f.Profiles; p++ {
		pres[p] = make([]float32, f.Levels)
		temp[p] = make([]float32, f.Levels)
		psal[p] = make([]float32, f.Levels)
		doxy[p] = make([]float32, f.Levels)
		valid := f.ValidLevels(p)
		for l := 0; l < f.Levels; l++ {
			if l >= valid {
				pres[p][l], temp[p][l], psal[p][l], doxy[p][l] = FillPhysical, FillPhysical, FillPhysical, FillPhysical
				continue
			}
			depth := 5 + float64(l)*10*(1+rng.Float64()*0.1)
			pres[p][l] = float32(depth)
			temp[p][l] = float32(2 + 24*math.Exp(-depth/300) + rng.NormFloat64()*0.05)
			psal[p][l] = float32(34.2 + 0.8*(1-math.Exp(-depth/500)) + rng.NormFloat64()*0.01)
			doxy[p][l] = float32(180 + 60*math.Exp(-depth/200) + rng.NormFloat64())
		}
		lat[p] = baseLat + float64(p)*0.05
		lon[p] = baseLon + float64(p)*0.05
		juld[p] = 25000 + float64(f.Cycle)*10 + float64(p)*0.5
		platform[p] = fmt.Sprintf("%-8s", f.FloatID)
	}

	physical := func(name, units string, values [][]float32) Variable {
		return Variable{
			Name:   name,
			Values: values,
			Dims:   []string{"N_PROF", "N_LEVELS"},
			Attrs:  map[string]any{"_FillValue": FillPhysical, "units": units},
		}
	}

	vars := []Variable{
		{Name: "PLATFORM_NUMBER", Values: platform, Dims: []string{"N_PROF", "STRING8"}},
		{Name: "JULD", Values: juld, Dims: []string{"N_PROF"}, Attrs: map[string]any{
			"_FillValue": FillJuld,
			"units":      "days since 1950-01-01 00:00:00 UTC",
		}},
		{Name: "LATITUDE", Values: lat, Dims: []string{"N_PROF"}, Attrs: map[string]any{"_FillValue": 99999.0, "units": "degree_north"}},
		{Name: "LONGITUDE", Values: lon, Dims: []string{"N_PROF"}, Attrs: map[string]any{"_FillValue": 99999.0, "units": "degree_east"}},
		physical("PRES", "decibar", pres),
		physical("TEMP", "degree_Celsius", temp),
		physical("PSAL", "psu", psal),
	}
	if f.Research {
		vars = append(vars, physical("DOXY", "micromole/kg", doxy))
	}

	return slices.DeleteFunc(vars, func(v Variable) bool {
		return slices.ContainsFunc(f.Omit, func(o string) bool { return strings.EqualFold(o, v.Name) })
	})
}

// Write writes the fixture into dir and returns the file path.
func (f Fixture) Write(dir string) (string, error) {
	path := filepath.Join(dir, f.FileName())
	if err := WriteFile(path, f.Variables()); err != nil {
		return "", err
	}
	return path, nil
}

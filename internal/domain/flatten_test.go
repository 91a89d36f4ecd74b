package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSource = "D2902120_260.nc"

var testEssential = []string{"PRES", "TEMP", "PSAL", "LATITUDE", "LONGITUDE", "JULD"}

// twoProfileSource has PRES as 5 levels × 2 profiles while TEMP and PSAL are
// 1D and broadcast across both profiles.
func twoProfileSource() MapSource {
	return MapSource{
		"PRES":      [][]float64{{10, 11}, {20, 21}, {30, 31}, {40, 41}, {50, 51}},
		"TEMP":      []float64{18.1, 17.2, 15.3, 12.4, 9.5},
		"PSAL":      []float64{35.1, 35.2, 35.3, 35.4, 35.5},
		"LATITUDE":  []float64{-10, -11},
		"LONGITUDE": []float64{150, 151},
		"JULD":      []float64{25000.5, 25010.5},
	}
}

func column(t *testing.T, tbl *Table, name string) *Column {
	t.Helper()
	for _, c := range tbl.Columns {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("column %q not found in %v", name, tbl.Header())
	return nil
}

func flatten(t *testing.T, l Layout, src VariableSource) (*Table, Profiles) {
	t.Helper()
	p := l.Read(src, testSource)
	tbl, err := l.Flatten(p)
	require.NoError(t, err)
	return tbl, p
}

func TestFlatten_TwoProfilesBroadcast(t *testing.T) {
	l := NewLayout(testEssential, nil)
	tbl, p := flatten(t, l, twoProfileSource())

	assert.Empty(t, p.Missing)
	assert.Equal(t, []string{"depth", "temp", "sal", "lat", "lon", "time", "float_id", "source_file"}, tbl.Header())
	require.Equal(t, 10, tbl.Len())
	assert.Equal(t, 10, tbl.Candidates)

	depth := column(t, tbl, "depth").Num
	assert.Equal(t, []float64{10, 20, 30, 40, 50, 11, 21, 31, 41, 51}, depth)

	lat := column(t, tbl, "lat").Num
	lon := column(t, tbl, "lon").Num
	tm := column(t, tbl, "time").Num
	temp := column(t, tbl, "temp").Num
	sal := column(t, tbl, "sal").Num
	for i := 0; i < 5; i++ {
		assert.Equal(t, -10.0, lat[i])
		assert.Equal(t, -11.0, lat[i+5])
		assert.Equal(t, 150.0, lon[i])
		assert.Equal(t, 151.0, lon[i+5])
		assert.Equal(t, 25000.5, tm[i])
		assert.Equal(t, 25010.5, tm[i+5])
		assert.Equal(t, temp[i], temp[i+5])
		assert.Equal(t, sal[i], sal[i+5])
	}

	assert.Equal(t, []string{"2902120"}, unique(column(t, tbl, "float_id").Text))
	assert.Equal(t, []string{testSource}, unique(column(t, tbl, "source_file").Text))
}

func TestFlatten_MissingVariable(t *testing.T) {
	src := twoProfileSource()
	delete(src, "PSAL")

	l := NewLayout(testEssential, nil)
	tbl, p := flatten(t, l, src)

	assert.Equal(t, []string{"PSAL"}, p.Missing)
	assert.Equal(t, 10, tbl.Len())
	assert.Equal(t, l.Header(), tbl.Header())
	for _, v := range column(t, tbl, "sal").Num {
		assert.True(t, math.IsNaN(v))
	}

	o := Classify(testSource, tbl.Len(), p.Missing)
	assert.Equal(t, StatusWarning, o.Status)
	assert.Equal(t, []string{"PSAL"}, o.Missing)
}

func TestFlatten_NoLevels(t *testing.T) {
	src := twoProfileSource()
	delete(src, "PRES")

	l := NewLayout(testEssential, nil)
	_, err := l.Flatten(l.Read(src, testSource))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoLevels)
	var serr *StructuralError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, testSource, serr.Source)
}

func TestFlatten_DropsEmptyLevels(t *testing.T) {
	src := MapSource{
		"PRES": RawVariable{
			Values: [][]float32{{5, 10, 99999}, {5, 99999, 99999}},
			Dims:   []string{ProfileDim, "N_LEVELS"},
			Attrs:  map[string]any{AttrFillValue: float32(99999)},
		},
		"TEMP": RawVariable{
			Values: [][]float32{{20, 19, 99999}, {21, 99999, 99999}},
			Dims:   []string{ProfileDim, "N_LEVELS"},
			Attrs:  map[string]any{AttrFillValue: float32(99999)},
		},
		"LATITUDE": []float64{1, 2},
	}

	l := NewLayout([]string{"PRES", "TEMP", "LATITUDE"}, nil)
	tbl, _ := flatten(t, l, src)

	assert.Equal(t, 6, tbl.Candidates)
	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, []float64{5, 10, 5}, column(t, tbl, "depth").Num)
	assert.Equal(t, []float64{1, 1, 2}, column(t, tbl, "lat").Num)
}

func TestFlatten_IdentityColumnsDoNotKeepRows(t *testing.T) {
	src := MapSource{
		"PRES":     []float64{math.NaN(), 10},
		"LATITUDE": 45.0,
	}
	l := NewLayout([]string{"PRES", "LATITUDE"}, nil)
	tbl, _ := flatten(t, l, src)

	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, []float64{10}, column(t, tbl, "depth").Num)
}

func TestFlatten_ResearchValuesDoNotKeepRows(t *testing.T) {
	src := MapSource{
		"PRES":     []float64{10, nan},
		"TEMP":     []float64{18, nan},
		"PSAL":     []float64{35, nan},
		"DOXY":     []float64{200, 201},
		"LATITUDE": 45.0,
	}
	l := NewLayout([]string{"PRES", "TEMP", "PSAL", "LATITUDE"}, []string{"DOXY"})
	tbl, _ := flatten(t, l, src)

	assert.Equal(t, 2, tbl.Candidates)
	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, []float64{10}, column(t, tbl, "depth").Num)
	assert.Equal(t, []float64{200}, column(t, tbl, "doxy").Num)
}

func TestFlatten_ColumnKindsFollowLayout(t *testing.T) {
	l := NewLayout(testEssential, []string{"DOXY", "DATA_MODE", "TEMP_QC", "SENSOR_MODE"})
	l.Text = []string{"SENSOR_MODE"}

	withText := twoProfileSource()
	withText["DATA_MODE"] = []string{"R", "D"}
	withText["TEMP_QC"] = RawVariable{
		Values: []string{"11111", "11114"},
		Dims:   []string{ProfileDim, "STRING5"},
	}
	withText["SENSOR_MODE"] = []string{"CTD", "CTD"}

	// Same variables stored as numbers, or absent.
	withoutText := twoProfileSource()
	withoutText["TEMP_QC"] = []float64{1, 1, 1, 1, 4}
	withoutText["DOXY"] = []string{"200.5", "n/a", "", "201", "202"}

	a, _ := flatten(t, l, withText)
	b, _ := flatten(t, l, withoutText)

	require.Equal(t, a.Header(), b.Header())
	for i := range a.Columns {
		assert.Equal(t, a.Columns[i].IsText(), b.Columns[i].IsText(), a.Columns[i].Name)
	}
	assert.True(t, column(t, b, "data_mode").IsText())
	assert.True(t, column(t, b, "sensor_mode").IsText())
	assert.True(t, column(t, b, "temp_qc").IsText())
	assert.False(t, column(t, a, "doxy").IsText())

	assert.Equal(t, []string{""}, unique(column(t, b, "data_mode").Text))
	assert.Equal(t, "1", column(t, b, "temp_qc").Text[0])
	assert.Equal(t, "4", column(t, b, "temp_qc").Text[4])
	assertNums(t, []float64{200.5, nan, nan, 201, 202}, NumSeries(column(t, b, "doxy").Num[:5]...))
}

func TestFlatten_SingleProfile(t *testing.T) {
	src := MapSource{
		"PRES":      []float64{5, 10, 15},
		"TEMP":      []float64{20, 19},
		"LATITUDE":  12.5,
		"LONGITUDE": []float64{-30, -31},
	}
	l := NewLayout(testEssential, nil)
	tbl, p := flatten(t, l, src)

	assert.ElementsMatch(t, []string{"PSAL", "JULD"}, p.Missing)
	require.Equal(t, 3, tbl.Len())
	assertNums(t, []float64{20, 19, nan}, NumSeries(column(t, tbl, "temp").Num...))
	assert.Equal(t, []float64{12.5, 12.5, 12.5}, column(t, tbl, "lat").Num)
	assert.Equal(t, []float64{-30, -30, -30}, column(t, tbl, "lon").Num)
}

func TestFlatten_PlatformNumberPerProfile(t *testing.T) {
	src := twoProfileSource()
	src["PLATFORM_NUMBER"] = RawVariable{
		Values: [][]byte{[]byte("5901234 "), []byte("5901235 ")},
		Dims:   []string{ProfileDim, "STRING8"},
	}
	l := NewLayout(testEssential, nil)
	tbl, p := flatten(t, l, src)

	assert.Empty(t, p.Missing)
	ids := column(t, tbl, "float_id").Text
	assert.Equal(t, "5901234", ids[0])
	assert.Equal(t, "5901234", ids[4])
	assert.Equal(t, "5901235", ids[5])
	assert.Equal(t, "5901235", ids[9])
}

func TestFlatten_PlatformNumberFallsBackToFirst(t *testing.T) {
	src := twoProfileSource()
	src["PLATFORM_NUMBER"] = []string{"5901234"}
	src["LATITUDE"] = []float64{-10}

	l := NewLayout(testEssential, nil)
	tbl, _ := flatten(t, l, src)

	assert.Equal(t, []string{"5901234"}, unique(column(t, tbl, "float_id").Text))
	assert.Equal(t, []float64{-10}, uniqueNums(column(t, tbl, "lat").Num))
}

func TestFlatten_ResearchColumns(t *testing.T) {
	src := twoProfileSource()
	// DOXY only has one profile; profile 1 reads past the grid.
	src["DOXY"] = [][]float64{{200}, {201}, {202}, {203}, {204}}
	src["DATA_MODE"] = "D"

	l := NewLayout(testEssential, []string{"DOXY", "DATA_MODE", "CHLA"})
	tbl, p := flatten(t, l, src)

	assert.Equal(t, []string{"CHLA"}, p.Missing)
	assert.Equal(t,
		[]string{"depth", "temp", "sal", "doxy", "data_mode", "chla", "lat", "lon", "time", "float_id", "source_file"},
		tbl.Header())

	doxy := column(t, tbl, "doxy").Num
	assert.Equal(t, []float64{200, 201, 202, 203, 204}, doxy[:5])
	for _, v := range doxy[5:] {
		assert.True(t, math.IsNaN(v))
	}
	assert.Equal(t, []string{"D"}, unique(column(t, tbl, "data_mode").Text))
}

func TestFlatten_RowValues(t *testing.T) {
	l := NewLayout(testEssential, nil)
	tbl, _ := flatten(t, l, twoProfileSource())

	row := tbl.Row(6)
	assert.Equal(t, 21.0, row["depth"])
	assert.Equal(t, 17.2, row["temp"])
	assert.Equal(t, -11.0, row["lat"])
	assert.Equal(t, "2902120", row["float_id"])
	assert.Equal(t, testSource, row["source_file"])
}

func TestLayout_Validate(t *testing.T) {
	assert.NoError(t, NewLayout(testEssential, []string{"DOXY"}).Validate())

	err := NewLayout(nil, nil).Validate()
	assert.ErrorContains(t, err, "no essential variables")

	err = NewLayout([]string{"TEMP"}, nil).Validate()
	assert.ErrorContains(t, err, "PRES is not an essential variable")

	l := NewLayout(testEssential, []string{"temp"})
	assert.ErrorContains(t, l.Validate(), `both map to column "temp"`)

	l = NewLayout(testEssential, []string{"DOXY"})
	l.Columns = map[string]string{"DOXY": "lat"}
	assert.ErrorContains(t, l.Validate(), `column "lat"`)
}

func TestLayout_ColumnOverrides(t *testing.T) {
	l := NewLayout(testEssential, []string{"DOXY"})
	l.Columns = map[string]string{"PRES": "pressure", "DOXY": "oxygen"}

	assert.Equal(t,
		[]string{"pressure", "temp", "sal", "oxygen", "lat", "lon", "time", "float_id", "source_file"},
		l.Header())
}

func TestFloatIDFromFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"D2902120_260.nc", "2902120"},
		{"R5904567_001D.nc", "5904567"},
		{"BD6901234_010.nc", "6901234"},
		{"/data/argo/SR1900001_100.nc", "1900001"},
		{"2902120_prof.nc", "2902120"},
		{"profile.nc", "profile"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FloatIDFromFileName(tt.in))
		})
	}
}

func unique(vals []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func uniqueNums(vals []float64) []float64 {
	var out []float64
	seen := make(map[float64]bool)
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

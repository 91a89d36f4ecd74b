package domain

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// Identity column names appended after the measurement columns.
const (
	ColLat        = "lat"
	ColLon        = "lon"
	ColTime       = "time"
	ColFloatID    = "float_id"
	ColSourceFile = "source_file"
)

// Default variable roles in Argo profile files.
const (
	VarPressure  = "PRES"
	VarLatitude  = "LATITUDE"
	VarLongitude = "LONGITUDE"
	VarTime      = "JULD"
	VarPlatform  = "PLATFORM_NUMBER"
)

// ErrNoLevels means the file has no usable levels variable, so rows cannot be
// laid out.
var ErrNoLevels = errors.New("no usable levels variable")

// StructuralError marks a file whose arrays cannot be reconciled into a table.
type StructuralError struct {
	Source string
	Err    error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural error in %s: %v", e.Source, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

// defaultColumns renames well-known Argo variables. Anything else is lower-cased.
var defaultColumns = map[string]string{
	VarPressure:  "depth",
	"TEMP":       "temp",
	"PSAL":       "sal",
	VarLatitude:  ColLat,
	VarLongitude: ColLon,
	VarTime:      ColTime,
}

// defaultText are Argo variables stored as characters. Quality flags (*_QC)
// are characters too.
var defaultText = map[string]bool{
	VarPlatform:                true,
	"DATA_MODE":                true,
	"DATA_STATE_INDICATOR":     true,
	"DATA_CENTRE":              true,
	"DC_REFERENCE":             true,
	"DIRECTION":                true,
	"FIRMWARE_VERSION":         true,
	"FLOAT_SERIAL_NO":          true,
	"PI_NAME":                  true,
	"PLATFORM_TYPE":            true,
	"POSITIONING_SYSTEM":       true,
	"PROJECT_NAME":             true,
	"VERTICAL_SAMPLING_SCHEME": true,
	"WMO_INST_TYPE":            true,
}

// Layout fixes which variables are read and how they map onto output
// columns. Every table flattened with the same Layout has the same header.
type Layout struct {
	Essential []string
	Research  []string

	// Levels names the variable whose shape decides single vs multi-profile.
	Levels    string
	Latitude  string
	Longitude string
	Time      string
	Platform  string

	// Columns overrides the output column name of a variable.
	Columns map[string]string

	// Text names extra variables whose columns hold text. A column's kind
	// comes from the layout, never from one file's data, so every file
	// flattened with the same Layout has the same column types.
	Text []string
}

// NewLayout returns a Layout with the standard Argo roles.
func NewLayout(essential, research []string) Layout {
	return Layout{
		Essential: essential,
		Research:  research,
		Levels:    VarPressure,
		Latitude:  VarLatitude,
		Longitude: VarLongitude,
		Time:      VarTime,
		Platform:  VarPlatform,
	}
}

// Column returns the output column name for a variable.
func (l Layout) Column(name string) string {
	if c, ok := l.Columns[name]; ok && c != "" {
		return c
	}
	if c, ok := defaultColumns[name]; ok {
		return c
	}
	return strings.ToLower(name)
}

// IsText reports whether the column of a variable holds text.
func (l Layout) IsText(name string) bool {
	if defaultText[name] || strings.HasSuffix(name, "_QC") {
		return true
	}
	for _, n := range l.Text {
		if n == name {
			return true
		}
	}
	return false
}

func (l Layout) isIdentity(name string) bool {
	return name == l.Latitude || name == l.Longitude || name == l.Time || name == l.Platform
}

// levelVars are the essential variables that vary by level, in config order.
func (l Layout) levelVars() []string {
	return l.withoutIdentity(l.Essential)
}

func (l Layout) researchVars() []string {
	return l.withoutIdentity(l.Research)
}

func (l Layout) withoutIdentity(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !l.isIdentity(name) {
			out = append(out, name)
		}
	}
	return out
}

// Header returns the output column order: essential level columns, research
// columns, then the identity columns.
func (l Layout) Header() []string {
	var h []string
	for _, name := range l.levelVars() {
		h = append(h, l.Column(name))
	}
	for _, name := range l.researchVars() {
		h = append(h, l.Column(name))
	}
	return append(h, ColLat, ColLon, ColTime, ColFloatID, ColSourceFile)
}

// Validate checks that the layout can lay out rows at all.
func (l Layout) Validate() error {
	if len(l.Essential) == 0 {
		return errors.New("no essential variables configured")
	}
	if l.Levels == "" {
		return errors.New("no levels variable configured")
	}
	found := false
	for _, name := range l.Essential {
		if name == l.Levels {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("levels variable %s is not an essential variable", l.Levels)
	}
	seen := map[string]string{
		ColLat: l.Latitude, ColLon: l.Longitude, ColTime: l.Time,
		ColFloatID: l.Platform, ColSourceFile: "",
	}
	for _, name := range append(l.levelVars(), l.researchVars()...) {
		col := l.Column(name)
		if prev, ok := seen[col]; ok {
			return fmt.Errorf("variables %s and %s both map to column %q", prev, name, col)
		}
		seen[col] = name
	}
	return nil
}

// Variables returns every variable name the layout reads, deduplicated, in
// read order. The platform variable is last.
func (l Layout) Variables() []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range append(append(append([]string{}, l.Essential...), l.Research...), l.Platform) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Profiles is everything read from one file, ready to flatten.
type Profiles struct {
	Source  string
	Fields  map[string]Field
	Missing []string
}

// Read fetches every variable of the layout from src. Absent variables land
// in Missing; the platform variable is optional and never reported.
func (l Layout) Read(src VariableSource, source string) Profiles {
	p := Profiles{Source: source, Fields: make(map[string]Field)}
	for _, name := range l.Variables() {
		if name == l.Platform && !l.isRequested(name) {
			var ignored []string
			p.Fields[name] = Fetch(src, name, &ignored)
			continue
		}
		p.Fields[name] = Fetch(src, name, &p.Missing)
	}
	return p
}

func (l Layout) isRequested(name string) bool {
	for _, n := range l.Essential {
		if n == name {
			return true
		}
	}
	for _, n := range l.Research {
		if n == name {
			return true
		}
	}
	return false
}

func (p Profiles) field(name string) Field {
	if f, ok := p.Fields[name]; ok {
		return f
	}
	return MissingField(name)
}

// Flatten lays the profiles of one file out as rows: one per (profile, level),
// profiles in file order and levels in stored order. Rows whose essential
// columns are all missing are dropped, whatever the research columns hold.
func (l Layout) Flatten(p Profiles) (*Table, error) {
	levels := p.field(l.Levels)

	var profiles int
	switch levels.Shape.Kind {
	case PerProfileLevel:
		profiles = levels.Shape.Profiles
	case PerLevel:
		profiles = 1
	default:
		return nil, &StructuralError{Source: p.Source, Err: ErrNoLevels}
	}

	vars := append(l.levelVars(), l.researchVars()...)
	t := newTable(l, vars, p.Source)

	fallbackID := FloatIDFromFileName(p.Source)
	platform := p.field(l.Platform)
	lat, lon, tm := p.field(l.Latitude), p.field(l.Longitude), p.field(l.Time)

	cols := make([]Series, len(vars))
	for i := 0; i < profiles; i++ {
		for j, name := range vars {
			cols[j] = p.field(name).Profile(i)
		}
		aligned := Align(cols)

		floatID := fallbackID
		if !platform.IsMissing() {
			if id := platform.Pick(i).String(0); id != "" {
				floatID = id
			}
		}

		identity := identityRow{
			lat:     lat.Pick(i).Float(0),
			lon:     lon.Pick(i).Float(0),
			time:    tm.Pick(i).Float(0),
			floatID: floatID,
		}
		t.appendProfile(aligned, identity)
	}
	return t, nil
}

// FloatIDFromFileName derives the float number from an Argo file name,
// "D2902120_260.nc" → "2902120". The mode prefix letters are stripped.
func FloatIDFromFileName(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.IndexByte(base, '_'); i >= 0 {
		base = base[:i]
	}
	id := strings.TrimLeftFunc(base, func(r rune) bool {
		return r < '0' || r > '9'
	})
	if id == "" {
		return base
	}
	return id
}

type identityRow struct {
	lat, lon, time float64
	floatID        string
}

// Column is one named column of a Table. Text columns use Text; numeric
// columns use Num with NaN for missing.
type Column struct {
	Name string
	Num  []float64
	Text []string
}

// IsText reports whether the column holds strings.
func (c *Column) IsText() bool { return c.Text != nil }

// Table is the flattened form of one file.
type Table struct {
	Columns []*Column
	// Candidates counts rows laid out before empty rows were dropped.
	Candidates int

	measured  int
	essential int
	source    string
}

func newTable(l Layout, vars []string, source string) *Table {
	t := &Table{
		measured:  len(vars),
		essential: len(l.levelVars()),
		source:    filepath.Base(source),
	}
	for _, name := range vars {
		c := &Column{Name: l.Column(name), Num: []float64{}}
		if l.IsText(name) {
			c = &Column{Name: l.Column(name), Text: []string{}}
		}
		t.Columns = append(t.Columns, c)
	}
	t.Columns = append(t.Columns,
		&Column{Name: ColLat, Num: []float64{}},
		&Column{Name: ColLon, Num: []float64{}},
		&Column{Name: ColTime, Num: []float64{}},
		&Column{Name: ColFloatID, Text: []string{}},
		&Column{Name: ColSourceFile, Text: []string{}},
	)
	return t
}

func (t *Table) appendProfile(cols []Series, id identityRow) {
	n := 1
	if len(cols) > 0 {
		n = cols[0].Len()
	}
	t.Candidates += n

	for row := 0; row < n; row++ {
		empty := true
		for j, s := range cols[:t.essential] {
			if _, missing := t.Columns[j].cell(s, row); !missing {
				empty = false
				break
			}
		}
		if empty {
			continue
		}
		for j, s := range cols {
			c := t.Columns[j]
			v, _ := c.cell(s, row)
			if c.IsText() {
				c.Text = append(c.Text, v.(string))
			} else {
				c.Num = append(c.Num, v.(float64))
			}
		}
		ids := t.Columns[t.measured:]
		ids[0].Num = append(ids[0].Num, id.lat)
		ids[1].Num = append(ids[1].Num, id.lon)
		ids[2].Num = append(ids[2].Num, id.time)
		ids[3].Text = append(ids[3].Text, id.floatID)
		ids[4].Text = append(ids[4].Text, t.source)
	}
}

// cell converts element row of s to the column's kind.
func (c *Column) cell(s Series, row int) (any, bool) {
	if c.IsText() {
		v := s.String(row)
		return v, v == ""
	}
	v := s.Float(row)
	return v, math.IsNaN(v)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if len(t.Columns) == 0 {
		return 0
	}
	c := t.Columns[0]
	if c.IsText() {
		return len(c.Text)
	}
	return len(c.Num)
}

// Header returns the column names in order.
func (t *Table) Header() []string {
	h := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		h[i] = c.Name
	}
	return h
}

// Row returns row i keyed by column name. Missing numbers are NaN and missing
// text is "".
func (t *Table) Row(i int) map[string]any {
	row := make(map[string]any, len(t.Columns))
	for _, c := range t.Columns {
		if c.IsText() {
			row[c.Name] = c.Text[i]
		} else {
			row[c.Name] = c.Num[i]
		}
	}
	return row
}

// Value returns the cell at row i of column c and whether it is missing.
func (c *Column) Value(i int) (any, bool) {
	if c.IsText() {
		return c.Text[i], c.Text[i] == ""
	}
	return c.Num[i], math.IsNaN(c.Num[i])
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/argo-profile-etl/internal/domain"
	"github.com/pelletier/go-toml/v2"
)

// Variables lists which source variables are read. Essential variables are
// expected in every file; research variables are extras included when present.
type Variables struct {
	Essential []string          `toml:"essential" json:"essential"`
	Research  []string          `toml:"research" json:"research"`
	Levels    string            `toml:"levels" json:"levels,omitempty"`
	Columns   map[string]string `toml:"columns" json:"columns,omitempty"`

	// Text names variables stored as characters beyond the standard Argo ones.
	Text []string `toml:"text" json:"text,omitempty"`
}

// DefaultVariables is the core Argo CTD set.
func DefaultVariables() Variables {
	return Variables{
		Essential: []string{
			domain.VarPressure, "TEMP", "PSAL",
			domain.VarLatitude, domain.VarLongitude, domain.VarTime,
		},
	}
}

// LoadVariables reads a variables file. TOML is used unless the file has a
// .json extension. An empty path returns DefaultVariables.
func LoadVariables(path string) (Variables, error) {
	if path == "" {
		return DefaultVariables(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Variables{}, fmt.Errorf("read variables file: %w", err)
	}

	var v Variables
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &v)
	} else {
		err = toml.Unmarshal(data, &v)
	}
	if err != nil {
		return Variables{}, fmt.Errorf("parse variables file %s: %w", path, err)
	}

	v.Essential = cleanNames(v.Essential)
	v.Research = cleanNames(v.Research)
	v.Text = cleanNames(v.Text)
	if len(v.Essential) == 0 {
		return Variables{}, fmt.Errorf("variables file %s: essential list is empty", path)
	}

	if err := v.Layout().Validate(); err != nil {
		return Variables{}, fmt.Errorf("variables file %s: %w", path, err)
	}
	return v, nil
}

// Layout converts the variable lists into a flattening layout.
func (v Variables) Layout() domain.Layout {
	l := domain.NewLayout(v.Essential, v.Research)
	if v.Levels != "" {
		l.Levels = v.Levels
	}
	l.Columns = v.Columns
	l.Text = v.Text
	return l
}

// cleanNames trims blanks and drops empty and repeated names, keeping order.
func cleanNames(names []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Command validate checks the integrity of a converted output directory: CSV
// and Parquet outputs pair up, agree on columns and row counts, share one
// column set, and carry no empty measurement rows.
//
// Usage:
//
//	go run ./cmd/validate -output-dir argo_parquet
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/argo-profile-etl/internal/adapter/csvout"
	"github.com/couchcryptid/argo-profile-etl/internal/adapter/parquet"
	"github.com/couchcryptid/argo-profile-etl/internal/domain"
	"github.com/fatih/color"
)

// identityColumns close every output header, in this order.
var identityColumns = []string{
	domain.ColLat, domain.ColLon, domain.ColTime, domain.ColFloatID, domain.ColSourceFile,
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	outputDir := flag.String("output-dir", "argo_parquet", "directory containing converted outputs")
	flag.Parse()

	os.Exit(run(os.Stdout, *outputDir))
}

// csvFile is a fully read CSV output.
type csvFile struct {
	path   string
	header []string
	rows   [][]string
}

func (f csvFile) base() string {
	return strings.TrimSuffix(filepath.Base(f.path), csvout.Extension)
}

func run(out io.Writer, dir string) int {
	fmt.Fprintln(out, "=== Argo Output Validation ===")
	fmt.Fprintln(out)

	csvs, err := loadCSVs(dir)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load CSV outputs: %v\n", err)
		return 1
	}
	parquets, err := filepath.Glob(filepath.Join(dir, "*"+parquet.Extension))
	if err != nil {
		fmt.Fprintf(out, "FATAL: list Parquet outputs: %v\n", err)
		return 1
	}
	sort.Strings(parquets)
	if len(csvs) == 0 && len(parquets) == 0 {
		fmt.Fprintf(out, "FATAL: no outputs in %s\n", dir)
		return 1
	}

	phases := []*phase{
		validatePairing(csvs, parquets),
		validateCSVStructure(csvs),
		validateParquetAgreement(csvs, parquets),
		validateColumnConsistency(csvs),
	}

	pass := color.New(color.FgGreen).SprintFunc()
	fail := color.New(color.FgRed).SprintFunc()
	allPassed := true
	for _, p := range phases {
		status := pass("PASS")
		if !p.passed() {
			status = fail(fmt.Sprintf("FAIL (%d errors)", len(p.errors)))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-32s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Outputs: %d CSV, %d Parquet, %d rows\n", len(csvs), len(parquets), countRows(csvs))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

func loadCSVs(dir string) ([]csvFile, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+csvout.Extension))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	files := make([]csvFile, 0, len(paths))
	for _, p := range paths {
		f, err := loadCSV(p)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func loadCSV(path string) (csvFile, error) {
	r, err := csvout.Open(path)
	if err != nil {
		return csvFile{}, err
	}
	defer r.Close()

	f := csvFile{path: path, header: r.Header()}
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return f, nil
		}
		if err != nil {
			return csvFile{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		f.rows = append(f.rows, rec)
	}
}

func countRows(files []csvFile) int {
	n := 0
	for _, f := range files {
		n += len(f.rows)
	}
	return n
}

// validatePairing checks that, when both formats are present, every output
// has its counterpart.
func validatePairing(csvs []csvFile, parquets []string) *phase {
	p := &phase{name: "CSV/Parquet pairing"}
	if len(csvs) == 0 || len(parquets) == 0 {
		return p
	}

	haveCSV := make(map[string]bool, len(csvs))
	for _, f := range csvs {
		haveCSV[f.base()] = true
	}
	haveParquet := make(map[string]bool, len(parquets))
	for _, path := range parquets {
		base := strings.TrimSuffix(filepath.Base(path), parquet.Extension)
		haveParquet[base] = true
		if !haveCSV[base] {
			p.errorf("%s: no matching CSV", filepath.Base(path))
		}
	}
	for _, f := range csvs {
		if !haveParquet[f.base()] {
			p.errorf("%s: no matching Parquet", filepath.Base(f.path))
		}
	}
	return p
}

// validateCSVStructure checks headers, identity values, and that no row is
// empty across all measurement columns.
func validateCSVStructure(csvs []csvFile) *phase {
	p := &phase{name: "CSV structure"}
	for _, f := range csvs {
		name := filepath.Base(f.path)
		if len(f.header) <= len(identityColumns) {
			p.errorf("%s: header %v has no measurement columns", name, f.header)
			continue
		}
		measured := len(f.header) - len(identityColumns)
		if got := f.header[measured:]; !equal(got, identityColumns) {
			p.errorf("%s: header ends with %v, want %v", name, got, identityColumns)
			continue
		}

		wantSource := f.base() + ".nc"
		for i, row := range f.rows {
			line := i + 2
			empty := true
			for _, v := range row[:measured] {
				if v != "" {
					empty = false
					break
				}
			}
			if empty {
				p.errorf("%s line %d: every measurement is empty", name, line)
			}
			if row[measured+3] == "" {
				p.errorf("%s line %d: float_id is empty", name, line)
			}
			if src := row[measured+4]; src != wantSource {
				p.errorf("%s line %d: source_file %q, want %q", name, line, src, wantSource)
			}
		}
	}
	return p
}

// validateParquetAgreement checks that each Parquet output has the same
// columns and row count as its CSV counterpart.
func validateParquetAgreement(csvs []csvFile, parquets []string) *phase {
	p := &phase{name: "Parquet agreement"}
	byBase := make(map[string]csvFile, len(csvs))
	for _, f := range csvs {
		byBase[f.base()] = f
	}

	for _, path := range parquets {
		name := filepath.Base(path)
		s, err := parquet.Inspect(path)
		if err != nil {
			p.errorf("%s: %v", name, err)
			continue
		}
		f, ok := byBase[strings.TrimSuffix(name, parquet.Extension)]
		if !ok {
			continue
		}
		if !equal(s.Columns, f.header) {
			p.errorf("%s: columns %v, CSV has %v", name, s.Columns, f.header)
		}
		if int(s.Rows) != len(f.rows) {
			p.errorf("%s: %d rows, CSV has %d", name, s.Rows, len(f.rows))
		}
	}
	return p
}

// validateColumnConsistency checks that every CSV output of a run shares one
// column set.
func validateColumnConsistency(csvs []csvFile) *phase {
	p := &phase{name: "Column consistency"}
	groups := make(map[string][]string)
	for _, f := range csvs {
		key := strings.Join(f.header, ",")
		groups[key] = append(groups[key], filepath.Base(f.path))
	}
	if len(groups) <= 1 {
		return p
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(groups[keys[i]]) > len(groups[keys[j]]) })
	for _, k := range keys[1:] {
		files := groups[k]
		p.errorf("%d file(s) with columns [%s], e.g. %s; most files have [%s]", len(files), k, files[0], keys[0])
	}
	return p
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

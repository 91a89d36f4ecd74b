package parquet

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

// Summary describes a written Parquet file.
type Summary struct {
	Rows    int64
	Columns []string
}

// Inspect reads the footer of the Parquet file at path.
func Inspect(path string) (Summary, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return Summary{}, fmt.Errorf("open parquet file: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, nil, 1)
	if err != nil {
		return Summary{}, fmt.Errorf("read parquet footer: %w", err)
	}
	defer pr.ReadStop()

	s := Summary{Rows: pr.GetNumRows()}
	// Element 0 is the root group.
	for _, el := range pr.Footer.Schema[1:] {
		s.Columns = append(s.Columns, el.GetName())
	}
	return s, nil
}

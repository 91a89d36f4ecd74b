// Command genfixture writes synthetic Argo profile NetCDF files for local runs
// and demos. Values follow a plausible CTD cast, so the converter's output
// can be eyeballed.
//
// Usage:
//
//	go run ./cmd/genfixture \
//	  -out argo_nc_files \
//	  -floats 3 -cycles 20 -profiles 2 -levels 80 \
//	  -research -omit-every 7
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/couchcryptid/argo-profile-etl/internal/adapter/netcdf"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "argo_nc_files", "directory to write .nc files into")
	floats := flag.Int("floats", 2, "number of floats")
	cycles := flag.Int("cycles", 10, "cycles per float")
	profiles := flag.Int("profiles", 2, "profiles per file (N_PROF)")
	levels := flag.Int("levels", 50, "levels per profile (N_LEVELS)")
	research := flag.Bool("research", false, "include a DOXY research variable")
	omitEvery := flag.Int("omit-every", 0, "drop PSAL from every Nth file to exercise warnings (0 disables)")
	emptyEvery := flag.Int("empty-every", 0, "write every Nth file with zero bytes to exercise failures (0 disables)")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	if *floats < 1 || *cycles < 1 || *profiles < 1 || *levels < 1 {
		flag.Usage()
		return fmt.Errorf("-floats, -cycles, -profiles, and -levels must be positive")
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", *out, err)
	}

	n := 0
	for f := 0; f < *floats; f++ {
		for c := 1; c <= *cycles; c++ {
			n++
			fx := netcdf.Fixture{
				FloatID:  strconv.Itoa(2902100 + f),
				Cycle:    c,
				Profiles: *profiles,
				Levels:   *levels,
				Seed:     *seed + uint64(n),
				Research: *research,
			}
			if *emptyEvery > 0 && n%*emptyEvery == 0 {
				path := filepath.Join(*out, fx.FileName())
				if err := os.WriteFile(path, nil, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", path, err)
				}
				continue
			}
			if *omitEvery > 0 && n%*omitEvery == 0 {
				fx.Omit = []string{"PSAL"}
			}
			if _, err := fx.Write(*out); err != nil {
				return fmt.Errorf("write %s: %w", fx.FileName(), err)
			}
		}
	}

	log.Printf("wrote %d files to %s", n, *out)
	return nil
}

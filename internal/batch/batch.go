// Package batch splits a discovered file set into numbered batches and
// resolves a user's batch selection into a concrete file list.
package batch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// DefaultCount is the number of batches a file set is split into.
const DefaultCount = 4

// ErrEmptySelection means no token of a selection named any file.
var ErrEmptySelection = errors.New("selection is empty")

// SelectionError reports one token of a selection that could not be used.
// Other tokens are still honored.
type SelectionError struct {
	Token  string
	Reason string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("batch %q: %s", e.Token, e.Reason)
}

// Selection is the resolved result of a batch selection.
type Selection struct {
	// Files is sorted and free of duplicates.
	Files   []string
	Batches []int
	Invalid []*SelectionError
}

// Discover lists the files in dir matching pattern, sorted lexicographically.
// Directories are skipped.
func Discover(dir, pattern string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("source dir: %w", err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("match %q: %w", pattern, err)
	}
	files := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)
	return files, nil
}

// Plan splits files into count contiguous batches numbered from 1. The list
// is sorted first. Batch sizes differ by at most one and the larger batches
// come last, so the remainder is absorbed at the end of the list.
func Plan(files []string, count int) map[int][]string {
	if count < 1 {
		count = 1
	}
	sorted := slices.Clone(files)
	sort.Strings(sorted)

	base, extra := len(sorted)/count, len(sorted)%count
	batches := make(map[int][]string, count)
	start := 0
	for id := 1; id <= count; id++ {
		size := base
		if id > count-extra {
			size++
		}
		batches[id] = sorted[start : start+size : start+size]
		start += size
	}
	return batches
}

// IDs returns the batch ids of a plan in ascending order.
func IDs(batches map[int][]string) []int {
	ids := make([]int, 0, len(batches))
	for id := range batches {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Resolve turns a selection string into files. input is "all" or a
// comma-separated list of batch ids. Bad tokens are collected in
// Selection.Invalid without discarding the valid ones; an error is returned
// only when nothing at all was selected.
func Resolve(input string, batches map[int][]string, all []string) (Selection, error) {
	input = strings.TrimSpace(input)
	if strings.EqualFold(input, "all") {
		sel := Selection{Files: ordered(all, all), Batches: IDs(batches)}
		if len(sel.Files) == 0 {
			return sel, ErrEmptySelection
		}
		return sel, nil
	}

	var sel Selection
	var picked []string
	seen := make(map[int]bool)
	for _, tok := range strings.Split(input, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		id, err := strconv.Atoi(tok)
		if err != nil {
			sel.Invalid = append(sel.Invalid, &SelectionError{Token: tok, Reason: "not a batch number"})
			continue
		}
		files, ok := batches[id]
		if !ok {
			sel.Invalid = append(sel.Invalid, &SelectionError{
				Token:  tok,
				Reason: fmt.Sprintf("no such batch (have 1-%d)", len(batches)),
			})
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		sel.Batches = append(sel.Batches, id)
		picked = append(picked, files...)
	}
	sort.Ints(sel.Batches)
	sel.Files = ordered(picked, all)

	if len(sel.Files) == 0 {
		errs := []error{ErrEmptySelection}
		for _, e := range sel.Invalid {
			errs = append(errs, e)
		}
		return sel, errors.Join(errs...)
	}
	return sel, nil
}

// ordered deduplicates files and sorts them by their position in all, falling
// back to lexical order for files all does not contain.
func ordered(files, all []string) []string {
	pos := make(map[string]int, len(all))
	for i, f := range all {
		if _, ok := pos[f]; !ok {
			pos[f] = i
		}
	}
	seen := make(map[string]bool, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, iok := pos[out[i]]
		pj, jok := pos[out[j]]
		switch {
		case iok && jok:
			return pi < pj
		case iok != jok:
			return iok
		default:
			return out[i] < out[j]
		}
	})
	return out
}
